package walletsync

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/txsign"
	"evmwalletkit/internal/werr"
)

const subscriberBuffer = 32

// BalanceUpdate carries one contract's new balance over the balance stream,
// since a controller may track the native asset plus any number of
// registered ERC-20 contracts.
type BalanceUpdate struct {
	Contract store.Contract
	Balance  string
}

// Controller is the sync controller (C10): it owns exactly one Backend
// (invariant I4 — API xor SPV, never both), feeds it events it forwards,
// deduplicated, across four typed subscription streams, and exposes the
// read/send surface the trade planner (C11) and any CLI/HTTP front-end
// drive. Grounded on core/network.go's Node Broadcast/Subscribe pattern:
// each Subscribe* call spins up its own forwarding channel the way
// Node.Subscribe does, replacing the teacher's libp2p pubsub topic with a
// plain in-process fan-out since there is no peer-to-peer transport at this
// layer.
type Controller struct {
	store   store.Store
	logger  *logrus.Logger
	chainID uint64

	mu      sync.Mutex
	backend Backend
	cancel  context.CancelFunc

	lastHeight uint64
	syncState  SyncState
	balances   map[store.Contract]string

	subMu         sync.Mutex
	heightSubs    []chan uint64
	syncStateSubs []chan SyncState
	balanceSubs   []chan BalanceUpdate
	txSubs        []chan []store.TxRecord
}

// NewController builds a Controller with no backend attached; call Start to
// attach and run one.
func NewController(st store.Store, chainID uint64, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{
		store:     st,
		logger:    logger,
		chainID:   chainID,
		syncState: NotSynced(),
		balances:  make(map[store.Contract]string),
	}
}

var _ EventSink = (*Controller)(nil)

// Start attaches backend as the controller's single live backend and begins
// its sync loop. Returns State if a backend is already running (I4).
func (c *Controller) Start(ctx context.Context, backend Backend) error {
	c.mu.Lock()
	if c.backend != nil {
		c.mu.Unlock()
		return werr.New(werr.State, "walletsync: a backend is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.backend = backend
	c.cancel = cancel
	c.mu.Unlock()

	if err := backend.Start(runCtx, c); err != nil {
		c.mu.Lock()
		c.backend = nil
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		return err
	}
	return nil
}

// Stop terminates the live backend (I4's "clear() must terminate it
// first" applies equally to a plain stop) within its bounded deadline.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	backend := c.backend
	cancel := c.cancel
	c.backend = nil
	c.cancel = nil
	c.mu.Unlock()

	if backend == nil {
		return nil
	}
	defer cancel()
	return backend.Stop(ctx)
}

// Clear stops the live backend, if any, then wipes the store — used when
// switching accounts or recovering from a State error (§7).
func (c *Controller) Clear(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastHeight = 0
	c.syncState = NotSynced()
	c.balances = make(map[store.Contract]string)
	c.mu.Unlock()
	return c.store.Clear()
}

// Refresh requests an out-of-cadence sync pass from the live backend, if
// any.
func (c *Controller) Refresh() {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend != nil {
		backend.Refresh()
	}
}

// ValidateAddress validates an address string through the same EIP-55
// validator send()/register() destinations go through.
func ValidateAddress(s string) (addr.Address, error) {
	return addr.Validate(s)
}

// LastBlockHeight returns the most recently observed height.
func (c *Controller) LastBlockHeight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeight
}

// SyncState returns the current sync state.
func (c *Controller) SyncState() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncState
}

// Balance returns the last observed balance for contract, or the
// persisted value if no event has arrived yet this session.
func (c *Controller) Balance(contract store.Contract) (string, error) {
	c.mu.Lock()
	v, ok := c.balances[contract]
	c.mu.Unlock()
	if ok {
		return v, nil
	}
	return c.store.Balance(contract)
}

// Transactions queries the persisted transaction log.
func (c *Controller) Transactions(q store.TxQuery) ([]store.TxRecord, error) {
	return c.store.Transactions(q)
}

// Fee computes gasPrice * GasLimitFor(contract.kind).
func (c *Controller) Fee(gasPrice *big.Int, contract store.Contract) *big.Int {
	return Fee(gasPrice, contract)
}

// Send forwards to the live backend's Send. Returns State if no backend is
// running.
func (c *Controller) Send(ctx context.Context, raw txsign.RawTransaction, priv *ecdsa.PrivateKey) (txsign.Transaction, error) {
	c.mu.Lock()
	backend := c.backend
	chainID := c.chainID
	c.mu.Unlock()
	if backend == nil {
		return txsign.Transaction{}, werr.New(werr.State, "walletsync: no backend running")
	}
	return backend.Send(ctx, raw, chainID, priv)
}

// Call forwards to the live backend's Call.
func (c *Controller) Call(ctx context.Context, to addr.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend == nil {
		return nil, werr.New(werr.State, "walletsync: no backend running")
	}
	return backend.Call(ctx, to, data)
}

// EstimateGas forwards to the live backend's EstimateGas.
func (c *Controller) EstimateGas(ctx context.Context, to addr.Address, data []byte) (uint64, error) {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend == nil {
		return 0, werr.New(werr.State, "walletsync: no backend running")
	}
	return backend.EstimateGas(ctx, to, data)
}

// GetLogs forwards to the live backend's GetLogs.
func (c *Controller) GetLogs(ctx context.Context, query LogQuery) ([]LogEntry, error) {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend == nil {
		return nil, werr.New(werr.State, "walletsync: no backend running")
	}
	return backend.GetLogs(ctx, query)
}

// Register adds contract to the set the live backend tracks.
func (c *Controller) Register(contract store.Contract) {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend != nil {
		backend.Register(contract)
	}
}

// Unregister drops contract from the set the live backend tracks.
func (c *Controller) Unregister(contract store.Contract) {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend != nil {
		backend.Unregister(contract)
	}
}

// ReceiveAddress returns the account the live backend is tracking. Returns
// State if no backend is running.
func (c *Controller) ReceiveAddress() (addr.Address, error) {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend == nil {
		return addr.Address{}, werr.New(werr.State, "walletsync: no backend running")
	}
	return backend.Address(), nil
}

// OnLastBlockHeight implements EventSink.
func (c *Controller) OnLastBlockHeight(height uint64) {
	c.mu.Lock()
	if height == c.lastHeight {
		c.mu.Unlock()
		return
	}
	c.lastHeight = height
	c.mu.Unlock()
	c.publishHeight(height)
}

// OnSyncState implements EventSink.
func (c *Controller) OnSyncState(state SyncState) {
	c.mu.Lock()
	if c.syncState.Equal(state) {
		c.mu.Unlock()
		return
	}
	c.syncState = state
	c.mu.Unlock()
	c.publishSyncState(state)
}

// OnBalance implements EventSink.
func (c *Controller) OnBalance(contract store.Contract, balance string) {
	c.mu.Lock()
	if c.balances[contract] == balance {
		c.mu.Unlock()
		return
	}
	c.balances[contract] = balance
	c.mu.Unlock()
	c.publishBalance(BalanceUpdate{Contract: contract, Balance: balance})
}

// OnTransactions implements EventSink.
func (c *Controller) OnTransactions(contract store.Contract, txs []store.TxRecord) {
	if len(txs) == 0 {
		return
	}
	c.publishTransactions(txs)
}

// SubscribeLastBlockHeight returns a channel of deduplicated height
// updates and an unsubscribe func. The channel has a bounded buffer; a
// slow subscriber that falls behind has its oldest pending updates dropped
// rather than blocking the back-end's event dispatch.
func (c *Controller) SubscribeLastBlockHeight() (<-chan uint64, func()) {
	ch := make(chan uint64, subscriberBuffer)
	c.subMu.Lock()
	c.heightSubs = append(c.heightSubs, ch)
	c.subMu.Unlock()
	return ch, func() { c.unsubscribeHeight(ch) }
}

// SubscribeSyncState returns a channel of deduplicated sync-state updates.
func (c *Controller) SubscribeSyncState() (<-chan SyncState, func()) {
	ch := make(chan SyncState, subscriberBuffer)
	c.subMu.Lock()
	c.syncStateSubs = append(c.syncStateSubs, ch)
	c.subMu.Unlock()
	return ch, func() { c.unsubscribeSyncState(ch) }
}

// SubscribeBalance returns a channel of deduplicated per-contract balance
// updates.
func (c *Controller) SubscribeBalance() (<-chan BalanceUpdate, func()) {
	ch := make(chan BalanceUpdate, subscriberBuffer)
	c.subMu.Lock()
	c.balanceSubs = append(c.balanceSubs, ch)
	c.subMu.Unlock()
	return ch, func() { c.unsubscribeBalance(ch) }
}

// SubscribeTransactions returns a channel of newly observed transaction
// batches, in the order the backend reported them.
func (c *Controller) SubscribeTransactions() (<-chan []store.TxRecord, func()) {
	ch := make(chan []store.TxRecord, subscriberBuffer)
	c.subMu.Lock()
	c.txSubs = append(c.txSubs, ch)
	c.subMu.Unlock()
	return ch, func() { c.unsubscribeTransactions(ch) }
}

func (c *Controller) publishHeight(height uint64) {
	c.subMu.Lock()
	subs := c.heightSubs
	c.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- height:
		default:
			// Full buffer: discard the oldest pending height so the
			// newest one is kept.
			select {
			case <-ch:
			default:
			}
			trySend(ch, height, c.logger, "lastBlockHeight")
		}
	}
}

func (c *Controller) publishSyncState(state SyncState) {
	c.subMu.Lock()
	subs := c.syncStateSubs
	c.subMu.Unlock()
	for _, ch := range subs {
		trySend(ch, state, c.logger, "syncState")
	}
}

func (c *Controller) publishBalance(update BalanceUpdate) {
	c.subMu.Lock()
	subs := c.balanceSubs
	c.subMu.Unlock()
	for _, ch := range subs {
		trySend(ch, update, c.logger, "balance")
	}
}

func (c *Controller) publishTransactions(txs []store.TxRecord) {
	c.subMu.Lock()
	subs := c.txSubs
	c.subMu.Unlock()
	for _, ch := range subs {
		trySend(ch, txs, c.logger, "transactions")
	}
}

// trySend delivers v to ch without blocking; a full buffer means a slow
// subscriber, logged and dropped rather than stalling the caller (the
// back-end's own sync loop).
func trySend[T any](ch chan T, v T, logger *logrus.Logger, stream string) {
	select {
	case ch <- v:
	default:
		logger.WithField("stream", stream).Warn("walletsync: subscriber buffer full, dropping update")
	}
}

func (c *Controller) unsubscribeHeight(target chan uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.heightSubs = removeChan(c.heightSubs, target)
}

func (c *Controller) unsubscribeSyncState(target chan SyncState) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.syncStateSubs = removeChan(c.syncStateSubs, target)
}

func (c *Controller) unsubscribeBalance(target chan BalanceUpdate) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.balanceSubs = removeChan(c.balanceSubs, target)
}

func (c *Controller) unsubscribeTransactions(target chan []store.TxRecord) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.txSubs = removeChan(c.txSubs, target)
}

func removeChan[T any](subs []chan T, target chan T) []chan T {
	out := subs[:0]
	for _, ch := range subs {
		if ch != target {
			out = append(out, ch)
		}
	}
	return out
}
