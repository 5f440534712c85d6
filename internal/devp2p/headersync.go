package devp2p

import (
	"github.com/holiman/uint256"

	"evmwalletkit/internal/chainparams"
	"evmwalletkit/internal/rlp"
	"evmwalletkit/internal/werr"
)

// HeaderBatchSize is the number of headers requested per GetBlockHeaders
// round (§4.8: "amount=192").
const HeaderBatchSize = 192

// MaxInFlightBatches bounds the header-request pipeline depth.
const MaxInFlightBatches = 3

// HeaderRequest is one GetBlockHeaders query.
type HeaderRequest struct {
	Origin  uint64
	Amount  uint64
	Skip    uint64
	Reverse bool
}

func (r HeaderRequest) encode() []byte {
	reverseByte := rlp.EncodeUint64(0)
	if r.Reverse {
		reverseByte = rlp.EncodeUint64(1)
	}
	return rlp.EncodeList(
		rlp.EncodeUint64(r.Origin),
		rlp.EncodeUint64(r.Amount),
		rlp.EncodeUint64(r.Skip),
		reverseByte,
	)
}

func encodeHeader(h chainparams.Header) []byte {
	return rlp.EncodeList(
		rlp.EncodeUint64(h.Number),
		rlp.EncodeBytes(h.Hash[:]),
		rlp.EncodeBytes(h.ParentHash[:]),
		rlp.EncodeBytes(h.StateRoot[:]),
		rlp.EncodeBigInt(h.TotalDifficulty.ToBig()),
	)
}

func decodeHeader(v *rlp.Value) (chainparams.Header, error) {
	if !v.IsList || len(v.List) < 5 {
		return chainparams.Header{}, werr.New(werr.Protocol, "devp2p: malformed header")
	}
	number, err := rlp.DecodeUint64(v.List[0])
	if err != nil {
		return chainparams.Header{}, werr.Wrap(werr.Protocol, "devp2p: header number", err)
	}
	tdBig, err := rlp.DecodeBigInt(v.List[4])
	if err != nil {
		return chainparams.Header{}, werr.Wrap(werr.Protocol, "devp2p: header totalDifficulty", err)
	}
	td, overflow := uint256.FromBig(tdBig)
	if overflow {
		return chainparams.Header{}, werr.New(werr.Protocol, "devp2p: header totalDifficulty overflows uint256")
	}
	var hash, parent, root [32]byte
	copy(hash[:], v.List[1].Str())
	copy(parent[:], v.List[2].Str())
	copy(root[:], v.List[3].Str())
	return chainparams.Header{Number: number, Hash: hash, ParentHash: parent, StateRoot: root, TotalDifficulty: td}, nil
}

func decodeHeaderBatch(payload []byte) ([]chainparams.Header, error) {
	v, _, err := rlp.Decode(payload)
	if err != nil {
		return nil, werr.Wrap(werr.Protocol, "devp2p: decode header batch", err)
	}
	if !v.IsList {
		return nil, werr.New(werr.Protocol, "devp2p: header batch not a list")
	}
	out := make([]chainparams.Header, 0, len(v.List))
	for _, item := range v.List {
		h, err := decodeHeader(item)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func encodeHeaderBatch(headers []chainparams.Header) []byte {
	items := make([][]byte, len(headers))
	for i, h := range headers {
		items[i] = encodeHeader(h)
	}
	return rlp.EncodeList(items...)
}

// HeaderSyncer drives the header-chain catch-up from a checkpoint to a
// peer-reported head, verifying each batch's parent linkage, monotonic
// numbering, and cumulative total difficulty before accepting it (§4.8).
// The progress/verify-then-persist shape mirrors the example pack's
// HeaderVerifier.VerifyHeaderChain, adapted from beacon slots/roots to
// block numbers/hashes and total difficulty.
type HeaderSyncer struct {
	checkpoint   chainparams.Header
	lastVerified chainparams.Header
	head         uint64
}

// NewHeaderSyncer starts a sync from checkpoint toward headNumber.
func NewHeaderSyncer(checkpoint chainparams.Header, headNumber uint64) *HeaderSyncer {
	return &HeaderSyncer{checkpoint: checkpoint, lastVerified: checkpoint, head: headNumber}
}

// NextRequest returns the next GetBlockHeaders request, or ok=false if
// already caught up to head.
func (s *HeaderSyncer) NextRequest() (HeaderRequest, bool) {
	if s.lastVerified.Number >= s.head {
		return HeaderRequest{}, false
	}
	remaining := s.head - s.lastVerified.Number
	amount := uint64(HeaderBatchSize)
	if remaining < amount {
		amount = remaining
	}
	return HeaderRequest{Origin: s.lastVerified.Number + 1, Amount: amount, Skip: 0, Reverse: false}, true
}

// VerifyBatch checks batch against the last verified header: first header's
// parent must match, numbers must be monotonic by 1, and cumulative total
// difficulty must be consistent (non-decreasing). On success it advances
// lastVerified and returns nil; on any mismatch it returns a werr.Protocol
// error and the caller must discard the batch and retry from lastVerified.
func (s *HeaderSyncer) VerifyBatch(batch []chainparams.Header) error {
	if len(batch) == 0 {
		return werr.New(werr.Protocol, "devp2p: empty header batch")
	}
	prev := s.lastVerified
	for i, h := range batch {
		if h.ParentHash != prev.Hash {
			return werr.New(werr.Protocol, "devp2p: header parent hash mismatch")
		}
		if h.Number != prev.Number+1 {
			return werr.New(werr.Protocol, "devp2p: header number not monotonic")
		}
		if h.TotalDifficulty == nil || prev.TotalDifficulty != nil && h.TotalDifficulty.Cmp(prev.TotalDifficulty) < 0 {
			return werr.New(werr.Protocol, "devp2p: total difficulty regressed")
		}
		prev = batch[i]
	}
	s.lastVerified = prev
	return nil
}

// Progress returns verification progress in [0,1], per §4.8:
// (lastVerified.number - checkpoint.number) / (head - checkpoint.number).
func (s *HeaderSyncer) Progress() float64 {
	span := s.head - s.checkpoint.Number
	if span == 0 {
		return 1
	}
	done := s.lastVerified.Number - s.checkpoint.Number
	return float64(done) / float64(span)
}

// LastVerified returns the most recently accepted header.
func (s *HeaderSyncer) LastVerified() chainparams.Header {
	return s.lastVerified
}

// ResetToLastVerified is called after a verification failure: the pipeline
// restarts issuing requests from lastVerified, discarding any in-flight
// batches (§4.8 "reset pipeline to last verified").
func (s *HeaderSyncer) ResetToLastVerified() {}
