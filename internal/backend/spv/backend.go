// Package spv implements the SPV back-end (C9): it owns the RLPx transport
// (internal/rlpx) and the devp2p/LES peer state machine (internal/devp2p),
// supervising one peer connection with reconnect-with-backoff and deriving
// sync-controller events from header-chain and account-proof verification
// rather than from a trusted HTTP API. Grounded 1:1 on
// core/blockchain_synchronization.go's SyncManager (Start/Stop/loop/
// SyncOnce/Status), generalized from "fetch blocks from the Replicator" to
// "drive the devp2p/LES peer state machine over one TCP connection."
package spv

import (
	"context"
	"crypto/ecdsa"
	"net"
	"sync"
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/backoff"
	"evmwalletkit/internal/chainparams"
	"evmwalletkit/internal/devp2p"
	"evmwalletkit/internal/rlpx"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/txsign"
	"evmwalletkit/internal/walletsync"
	"evmwalletkit/internal/werr"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 120 * time.Second

	accountProofInterval = 15 * time.Second
)

// Backend implements walletsync.Backend over a single devp2p/LES peer
// connection. Only the native asset is ever tracked: SPV account proofs
// verify a single account's balance/nonce against the header chain, not
// arbitrary ERC-20 storage slots, so Register/Unregister of non-native
// contracts are no-ops (§4.9's "not supported in SPV mode" extends to
// anything beyond the one native account proof).
type Backend struct {
	peerAddr      string
	localStatic   *ecdsa.PrivateKey
	remoteStatic  *ecdsa.PublicKey
	params        chainparams.Params
	address       addr.Address
	logger        *logrus.Logger

	mu     sync.Mutex
	sink   walletsync.EventSink
	cancel context.CancelFunc
	done   chan struct{}

	refreshCh chan struct{}
	store     store.Store

	sessionMu sync.RWMutex
	session   *devp2p.Session

	nonceMu sync.Mutex
}

// NewBackend builds an SPV back-end that dials peerAddr (host:port) using
// localStatic as its static node key and remoteStatic as the peer's known
// static public key (SPV has no discovery layer; the peer is pinned by
// configuration), tracking address against params' checkpoint and genesis.
func NewBackend(peerAddr string, localStatic *ecdsa.PrivateKey, remoteStatic *ecdsa.PublicKey, params chainparams.Params, address addr.Address, st store.Store, logger *logrus.Logger) *Backend {
	return &Backend{
		peerAddr:     peerAddr,
		localStatic:  localStatic,
		remoteStatic: remoteStatic,
		params:       params,
		address:      address,
		store:        st,
		logger:       logger,
	}
}

var _ walletsync.Backend = (*Backend)(nil)

// Start begins the reconnect-with-backoff supervisor loop.
func (b *Backend) Start(ctx context.Context, sink walletsync.EventSink) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return werr.New(werr.State, "spv: backend already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.sink = sink
	b.cancel = cancel
	b.done = make(chan struct{})
	b.refreshCh = make(chan struct{}, 1)
	b.mu.Unlock()

	sink.OnSyncState(walletsync.NotSynced())
	go b.supervise(runCtx)
	return nil
}

// Stop signals the supervisor loop to wind down and waits up to 5s.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	select {
	case <-done:
		return nil
	case <-deadline.C:
		return werr.New(werr.Cancelled, "spv: backend stop deadline exceeded")
	case <-ctx.Done():
		return werr.Wrap(werr.Cancelled, "spv: backend stop", ctx.Err())
	}
}

// Refresh requests an immediate account-proof re-fetch on the live session.
func (b *Backend) Refresh() {
	b.mu.Lock()
	ch := b.refreshCh
	b.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// supervise owns the connect/negotiate/sync/account-proof cycle, retrying
// with capped full-jitter backoff (base 2s, cap 120s) on any Transport or
// Protocol failure, per §4.9.
func (b *Backend) supervise(ctx context.Context) {
	defer close(b.done)

	policy := backoff.New(backoffBase, backoffCap)
	for {
		if ctx.Err() != nil {
			return
		}
		b.sink.OnSyncState(walletsync.Syncing(0))
		err := b.runSession(ctx)
		if err == nil {
			return // context cancelled cleanly from within runSession
		}
		b.logger.WithError(err).Warn("spv: session ended, reconnecting")
		b.sink.OnSyncState(walletsync.NotSynced())

		wait := policy.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runSession dials one peer, negotiates, catches up the header chain, and
// then loops re-fetching the account proof on a fixed cadence until ctx is
// cancelled or the connection fails.
func (b *Backend) runSession(ctx context.Context) error {
	conn, err := net.Dial("tcp", b.peerAddr)
	if err != nil {
		return werr.Wrap(werr.Transport, "spv: dial peer", err)
	}

	secrets, err := rlpx.DialHandshake(conn, b.localStatic, b.remoteStatic)
	if err != nil {
		conn.Close()
		return werr.Wrap(werr.Transport, "spv: rlpx handshake", err)
	}
	rconn := rlpx.NewConn(conn, secrets)
	defer rconn.Close()

	peer := devp2p.NewPeer(rconn, b.params, b.logger)
	localHello := devp2p.Hello{
		Version:    5,
		ClientID:   "evmwalletkit/spv",
		Caps:       []devp2p.Capability{{Name: "les", Version: 2}},
		ListenPort: 0,
		NodeID:     crypto.FromECDSAPub(&b.localStatic.PublicKey),
	}
	localStatus := devp2p.Status{
		ProtocolVersion: 2,
		NetworkID:       b.params.NetworkID,
		HeadTd:          b.params.Checkpoint.TotalDifficulty.ToBig(),
		HeadHash:        b.params.Checkpoint.Hash,
		HeadNum:         b.params.Checkpoint.Number,
		GenesisHash:     b.params.GenesisHash,
	}
	if err := peer.Negotiate(localHello, localStatus); err != nil {
		return err
	}

	session := devp2p.NewSession(peer, b.params.Checkpoint, b.logger)
	b.sessionMu.Lock()
	b.session = session
	b.sessionMu.Unlock()
	defer func() {
		b.sessionMu.Lock()
		b.session = nil
		b.sessionMu.Unlock()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go peer.Keepalive(stop)

	if err := session.CatchUp(b.persistHeaderBatch); err != nil {
		return err
	}
	if err := b.store.SetLastBlockHeight(session.LastVerified().Number); err != nil {
		return werr.Wrap(werr.State, "spv: persist last block height", err)
	}
	b.sink.OnLastBlockHeight(session.LastVerified().Number)

	ticker := time.NewTicker(accountProofInterval)
	defer ticker.Stop()

	for {
		if err := b.fetchAccountProof(session); err != nil {
			return err
		}
		b.sink.OnSyncState(walletsync.Synced())

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-b.refreshCh:
		}
	}
}

// persistHeaderBatch is Session.CatchUp's onBatch hook: it writes a whole
// verified batch into the header store under one lock acquisition, keyed by
// hash with a number index, before the next request round-trip goes out.
func (b *Backend) persistHeaderBatch(batch []chainparams.Header) error {
	headers := make([]store.Header, len(batch))
	for i, h := range batch {
		headers[i] = store.Header{
			Number:          h.Number,
			Hash:            h.Hash,
			ParentHash:      h.ParentHash,
			StateRoot:       h.StateRoot,
			TotalDifficulty: h.TotalDifficulty.ToBig().String(),
		}
	}
	if err := b.store.PutHeaders(headers); err != nil {
		return werr.Wrap(werr.State, "spv: persist header batch", err)
	}
	return nil
}

func (b *Backend) fetchAccountProof(session *devp2p.Session) error {
	head := session.LastVerified()
	account, err := session.FetchAccountProof(head.Hash, head.StateRoot, b.address)
	if err != nil {
		return err
	}
	current, err := b.store.AccountState()
	if err != nil {
		return werr.Wrap(werr.State, "spv: read account state", err)
	}
	if current.Balance != account.Balance {
		if err := b.store.SetBalance(store.NativeContract, account.Balance); err != nil {
			return werr.Wrap(werr.State, "spv: persist balance", err)
		}
		b.sink.OnBalance(store.NativeContract, account.Balance)
	}
	if err := b.store.SetAccountState(account); err != nil {
		return werr.Wrap(werr.State, "spv: persist account state", err)
	}
	return nil
}

// Send broadcasts a signed transaction over the live session's LES SendTx
// message. Requires a connected peer; returns Transport if none is live.
func (b *Backend) Send(ctx context.Context, raw txsign.RawTransaction, chainID uint64, priv *ecdsa.PrivateKey) (txsign.Transaction, error) {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()

	b.sessionMu.RLock()
	session := b.session
	b.sessionMu.RUnlock()
	if session == nil {
		return txsign.Transaction{}, werr.New(werr.Transport, "spv: no live peer session")
	}

	nonce, err := b.nextNonce()
	if err != nil {
		return txsign.Transaction{}, err
	}
	tx, signedRLP, err := txsign.Sign(raw, nonce, chainID, priv)
	if err != nil {
		return txsign.Transaction{}, err
	}
	if err := session.SendRawTransaction(signedRLP); err != nil {
		return txsign.Transaction{}, err
	}
	return tx, nil
}

// nextNonce derives the next nonce from the last verified account proof;
// SPV mode has no mempool-aware getTransactionCount("pending"), so this is
// the verified account's on-chain nonce.
func (b *Backend) nextNonce() (uint64, error) {
	account, err := b.store.AccountState()
	if err != nil {
		return 0, werr.Wrap(werr.State, "spv: read account state", err)
	}
	return account.Nonce, nil
}

// Call is not supported in SPV mode (§4.9).
func (b *Backend) Call(ctx context.Context, to addr.Address, data []byte) ([]byte, error) {
	return nil, werr.New(werr.Unsupported, "spv: call is not supported in SPV mode")
}

// EstimateGas is not supported in SPV mode (§4.9).
func (b *Backend) EstimateGas(ctx context.Context, to addr.Address, data []byte) (uint64, error) {
	return 0, werr.New(werr.Unsupported, "spv: estimateGas is not supported in SPV mode")
}

// GetLogs is not supported in SPV mode: account proofs verify balance/nonce
// against the state root, not arbitrary event logs.
func (b *Backend) GetLogs(ctx context.Context, query walletsync.LogQuery) ([]walletsync.LogEntry, error) {
	return nil, werr.New(werr.Unsupported, "spv: getLogs is not supported in SPV mode")
}

// Register is a no-op in SPV mode beyond the one native account already
// tracked; ERC-20 balances require eth_call, unavailable over LES account
// proofs alone.
func (b *Backend) Register(contract store.Contract) {}

// Unregister is a no-op in SPV mode for the same reason as Register.
func (b *Backend) Unregister(contract store.Contract) {}

// Address returns the account this back-end is tracking.
func (b *Backend) Address() addr.Address {
	return b.address
}
