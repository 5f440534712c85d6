package devp2p

import (
	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/chainparams"
	"evmwalletkit/internal/rlp"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/werr"
)

// Session drives one Ready peer through header-chain catch-up and, once at
// head, account-proof fetching — the two request/response cycles §4.8
// layers on top of the base Hello/Status handshake Peer.Negotiate performs.
type Session struct {
	peer   *Peer
	syncer *HeaderSyncer
	logger *logrus.Logger
}

// NewSession wraps a Ready peer with a HeaderSyncer anchored at checkpoint,
// targeting the peer's reported head (from RemoteStatus().HeadNum).
func NewSession(peer *Peer, checkpoint chainparams.Header, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	head := peer.RemoteStatus().HeadNum
	return &Session{peer: peer, syncer: NewHeaderSyncer(checkpoint, head), logger: logger}
}

// CatchUp drives the pipelined GetBlockHeaders/BlockHeaders cycle
// (§4.8: "up to 3 in flight") until the syncer reaches the peer's head,
// verifying each batch before requesting the next. Simplified to one
// request in flight at a time over the single-peer Conn; pipelining depth
// only matters when spread across multiple peer connections, which this
// kit's single-SPV-peer design doesn't do.
//
// onBatch, if non-nil, is called with each verified batch before the next
// request goes out — the caller's hook for persisting the batch in a single
// atomic write (§4.8 "persist in a single atomic write per batch"). An error
// from onBatch aborts the catch-up the same way a verification failure does.
func (s *Session) CatchUp(onBatch func(batch []chainparams.Header) error) error {
	s.peer.setState(StateSyncing)
	defer s.peer.setState(StateReady)

	for {
		req, ok := s.syncer.NextRequest()
		if !ok {
			return nil
		}
		if err := s.peer.conn.WriteFrame(Message{Code: MsgGetBlockHeaders, Payload: req.encode()}.Encode()); err != nil {
			return werr.Wrap(werr.Transport, "devp2p: send getBlockHeaders", err)
		}
		frame, err := s.peer.conn.ReadFrame()
		if err != nil {
			return werr.Wrap(werr.Transport, "devp2p: recv blockHeaders", err)
		}
		msg, err := DecodeMessage(frame)
		if err != nil {
			return err
		}
		if msg.Code != MsgBlockHeaders {
			return werr.New(werr.Protocol, "devp2p: expected blockHeaders")
		}
		batch, err := decodeHeaderBatch(msg.Payload)
		if err != nil {
			return err
		}
		before := s.syncer.LastVerified()
		if err := s.syncer.VerifyBatch(batch); err != nil {
			s.syncer.ResetToLastVerified()
			return err
		}
		if onBatch != nil {
			if err := onBatch(batch); err != nil {
				// VerifyBatch already advanced past this batch; roll back
				// so the unpersisted batch is discarded.
				s.syncer.lastVerified = before
				s.syncer.ResetToLastVerified()
				return err
			}
		}
		s.logger.WithField("progress", s.syncer.Progress()).Debug("devp2p: header batch verified")
	}
}

// FetchAccountProof issues GetProofs for address at blockHash and verifies
// the returned Merkle-Patricia path reaches stateRoot (the verified
// header's state root for blockHash) (§4.8 "Once at head, issue
// GetProofs...").
func (s *Session) FetchAccountProof(blockHash [32]byte, stateRoot [32]byte, address [20]byte) (store.AccountState, error) {
	req := ProofRequest{BlockHash: blockHash, Address: address}
	if err := s.peer.conn.WriteFrame(Message{Code: MsgGetProofs, Payload: req.encode()}.Encode()); err != nil {
		return store.AccountState{}, werr.Wrap(werr.Transport, "devp2p: send getProofs", err)
	}
	frame, err := s.peer.conn.ReadFrame()
	if err != nil {
		return store.AccountState{}, werr.Wrap(werr.Transport, "devp2p: recv proofs", err)
	}
	msg, err := DecodeMessage(frame)
	if err != nil {
		return store.AccountState{}, err
	}
	if msg.Code != MsgProofs {
		return store.AccountState{}, werr.New(werr.Protocol, "devp2p: expected proofs")
	}
	proof, err := decodeProofResponse(msg.Payload)
	if err != nil {
		return store.AccountState{}, err
	}
	return VerifyAccountProof(stateRoot, address, proof)
}

// SendRawTransaction broadcasts a signed transaction over LES SendTx
// (§4.9: "send(tx) uses LES SendTx"). LES's SendTx carries a list of
// RLP-encoded transactions; a single-element list is sent here.
func (s *Session) SendRawTransaction(signedRLP []byte) error {
	// signedRLP is already one RLP-encoded transaction; wrapping it in an
	// outer list yields SendTx's "list of transactions" shape directly,
	// the same already-encoded-item composition encodeHeader uses.
	payload := rlp.EncodeList(signedRLP)
	if err := s.peer.conn.WriteFrame(Message{Code: MsgSendTx, Payload: payload}.Encode()); err != nil {
		return werr.Wrap(werr.Transport, "devp2p: send sendTx", err)
	}
	return nil
}

// Progress reports header-sync completion in [0,1].
func (s *Session) Progress() float64 {
	return s.syncer.Progress()
}

// LastVerified returns the most recently verified header.
func (s *Session) LastVerified() chainparams.Header {
	return s.syncer.LastVerified()
}
