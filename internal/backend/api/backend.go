package api

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/backoff"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/txsign"
	"evmwalletkit/internal/walletsync"
	"evmwalletkit/internal/werr"
)

const (
	txPageSize = 100

	backoffBase = time.Second
	backoffCap  = 60 * time.Second
)

// Backend implements walletsync.Backend by polling a JSON-RPC node and an
// Etherscan-style transaction index on a fixed cadence. Grounded on
// core/blockchain_synchronization.go's SyncManager Start/Stop/loop shape.
type Backend struct {
	rpc     *RPCClient
	txIndex *TxIndexClient
	store   store.Store
	address addr.Address
	logger  *logrus.Logger

	pollInterval time.Duration

	mu        sync.Mutex
	sink      walletsync.EventSink
	cancel    context.CancelFunc
	done      chan struct{}
	refreshCh chan struct{}

	extraMu   sync.RWMutex
	contracts map[store.Contract]struct{}

	nonceMu sync.Mutex
}

// NewBackend builds an API back-end against rpc/txIndex, tracking address in
// st, polling every pollInterval.
func NewBackend(rpc *RPCClient, txIndex *TxIndexClient, st store.Store, address addr.Address, pollInterval time.Duration, logger *logrus.Logger) *Backend {
	return &Backend{
		rpc:          rpc,
		txIndex:      txIndex,
		store:        st,
		address:      address,
		logger:       logger,
		pollInterval: pollInterval,
		contracts:    map[store.Contract]struct{}{store.NativeContract: {}},
	}
}

var _ walletsync.Backend = (*Backend)(nil)

// Start begins the polling sync loop, pushing events into sink until Stop.
func (b *Backend) Start(ctx context.Context, sink walletsync.EventSink) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return werr.New(werr.State, "api: backend already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.sink = sink
	b.cancel = cancel
	b.done = make(chan struct{})
	b.refreshCh = make(chan struct{}, 1)
	b.mu.Unlock()

	sink.OnSyncState(walletsync.NotSynced())
	go b.loop(runCtx)
	return nil
}

// Stop signals the poll loop to wind down and waits up to 5s for it to exit.
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
		return werr.New(werr.Cancelled, "api: backend stop deadline exceeded")
	case <-ctx.Done():
		return werr.Wrap(werr.Cancelled, "api: backend stop", ctx.Err())
	}
}

// Refresh requests an out-of-cadence sync pass.
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

func (b *Backend) loop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		if err := b.syncOnce(ctx); err != nil {
			b.logger.WithError(err).Warn("api: sync pass failed")
			if werr.Is(err, werr.Validation) {
				b.sink.OnSyncState(walletsync.NotSynced())
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-b.refreshCh:
		}
	}
}

// syncOnce runs the five-step poll pass described in §4.6, retrying
// transport errors with capped full-jitter backoff; a Validation error
// (missing auth key) is fatal and returned without retry.
func (b *Backend) syncOnce(ctx context.Context) error {
	b.sink.OnSyncState(walletsync.Syncing(0))

	height, err := b.retryUint64(ctx, func() (uint64, error) { return b.rpc.BlockNumber(ctx) })
	if err != nil {
		return err
	}
	if err := b.store.SetLastBlockHeight(height); err != nil {
		return werr.Wrap(werr.State, "api: persist block height", err)
	}
	b.sink.OnLastBlockHeight(height)

	if err := b.syncContract(ctx, store.NativeContract); err != nil {
		return err
	}
	b.extraMu.RLock()
	contracts := make([]store.Contract, 0, len(b.contracts))
	for c := range b.contracts {
		if c != store.NativeContract {
			contracts = append(contracts, c)
		}
	}
	b.extraMu.RUnlock()
	for _, c := range contracts {
		if err := b.syncContract(ctx, c); err != nil {
			return err
		}
	}

	if _, err := b.retryUint64(ctx, func() (uint64, error) { return b.rpc.GetTransactionCount(ctx, b.address) }); err != nil {
		return err
	}

	if err := b.syncTransactions(ctx, store.NativeContract, height); err != nil {
		return err
	}

	b.sink.OnSyncState(walletsync.Synced())
	return nil
}

func (b *Backend) syncContract(ctx context.Context, contract store.Contract) error {
	if !contract.Native {
		// ERC-20 balance polling needs an eth_call against balanceOf; native
		// is the only kind this back-end's RPCClient fetches directly today.
		return nil
	}
	balance, err := b.retryBig(ctx, func() (*big.Int, error) { return b.rpc.GetBalance(ctx, b.address) })
	if err != nil {
		return err
	}
	current, err := b.store.Balance(contract)
	if err != nil {
		return werr.Wrap(werr.State, "api: read balance", err)
	}
	next := balance.String()
	if current != next {
		if err := b.store.SetBalance(contract, next); err != nil {
			return werr.Wrap(werr.State, "api: persist balance", err)
		}
		b.sink.OnBalance(contract, next)
	}
	return nil
}

// syncTransactions pages the tx index starting just past the highest block
// height already persisted for contract, not the chain head itself — the
// head advances every pass regardless of whether any transaction sync has
// happened yet, so reusing it as the watermark would make fromBlock ==
// headHeight+1 on every pass and no transaction would ever be ingested.
func (b *Backend) syncTransactions(ctx context.Context, contract store.Contract, headHeight uint64) error {
	latest, err := b.store.Transactions(store.TxQuery{Contract: &contract, Limit: 1})
	if err != nil {
		return werr.Wrap(werr.State, "api: read last synced transaction", err)
	}
	var fromBlock uint64
	if len(latest) > 0 {
		fromBlock = latest[0].BlockHeight + 1
	}
	if fromBlock > headHeight {
		return nil
	}
	for page := 1; ; page++ {
		var txs []store.TxRecord
		op := func() error {
			var opErr error
			txs, opErr = b.txIndex.ListTransactions(ctx, b.address, fromBlock, page, txPageSize)
			return classifyRetry(opErr)
		}
		if err := cenkalti.Retry(op, backoff.New(backoffBase, backoffCap)); err != nil {
			return unwrapRetry(err)
		}
		if len(txs) == 0 {
			return nil
		}
		if err := b.store.AppendTransactions(txs); err != nil {
			return werr.Wrap(werr.State, "api: persist transactions", err)
		}
		b.sink.OnTransactions(contract, txs)
		if len(txs) < txPageSize {
			return nil
		}
	}
}

// retryUint64/retryBig wrap a single RPC call with capped full-jitter
// backoff for Transport failures; Validation/Protocol failures are
// returned immediately since retrying them cannot succeed.
func (b *Backend) retryUint64(ctx context.Context, op func() (uint64, error)) (uint64, error) {
	var result uint64
	wrapped := func() error {
		v, err := op()
		result = v
		return classifyRetry(err)
	}
	if err := cenkalti.Retry(wrapped, backoff.New(backoffBase, backoffCap)); err != nil {
		return 0, unwrapRetry(err)
	}
	return result, nil
}

func (b *Backend) retryBig(ctx context.Context, op func() (*big.Int, error)) (*big.Int, error) {
	var result *big.Int
	wrapped := func() error {
		v, err := op()
		result = v
		return classifyRetry(err)
	}
	if err := cenkalti.Retry(wrapped, backoff.New(backoffBase, backoffCap)); err != nil {
		return nil, unwrapRetry(err)
	}
	return result, nil
}

// classifyRetry marks a non-retriable error so cenkalti.Retry stops
// immediately instead of exhausting the backoff schedule.
func classifyRetry(err error) error {
	if err == nil {
		return nil
	}
	if werr.Is(err, werr.Transport) {
		return err
	}
	return cenkalti.Permanent(err)
}

func unwrapRetry(err error) error {
	var perm *cenkalti.PermanentError
	if ok := asPermanent(err, &perm); ok {
		return perm.Err
	}
	return err
}

func asPermanent(err error, target **cenkalti.PermanentError) bool {
	if p, ok := err.(*cenkalti.PermanentError); ok {
		*target = p
		return true
	}
	return false
}

// Send assigns the next nonce, signs raw, and broadcasts it. Sends are
// serialized per-backend so two concurrent Send calls cannot race on nonce
// assignment.
func (b *Backend) Send(ctx context.Context, raw txsign.RawTransaction, chainID uint64, priv *ecdsa.PrivateKey) (txsign.Transaction, error) {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()

	nonce, err := b.rpc.GetTransactionCount(ctx, b.address)
	if err != nil {
		return txsign.Transaction{}, err
	}
	tx, signedRLP, err := txsign.Sign(raw, nonce, chainID, priv)
	if err != nil {
		return txsign.Transaction{}, err
	}
	if _, err := b.rpc.SendRawTransaction(ctx, signedRLP); err != nil {
		return txsign.Transaction{}, err
	}
	return tx, nil
}

// Call performs a read-only eth_call.
func (b *Backend) Call(ctx context.Context, to addr.Address, data []byte) ([]byte, error) {
	return b.rpc.Call(ctx, to, data)
}

// EstimateGas performs eth_estimateGas.
func (b *Backend) EstimateGas(ctx context.Context, to addr.Address, data []byte) (uint64, error) {
	return b.rpc.EstimateGas(ctx, to, data)
}

// GetLogs fetches eth_getLogs over query's range.
func (b *Backend) GetLogs(ctx context.Context, query walletsync.LogQuery) ([]walletsync.LogEntry, error) {
	logs, err := b.rpc.GetLogs(ctx, query.FromBlock, query.ToBlock, query.Address, query.Topics)
	if err != nil {
		return nil, err
	}
	out := make([]walletsync.LogEntry, 0, len(logs))
	for _, l := range logs {
		entry, err := decodeLogEntry(l)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func decodeLogEntry(l rpcLog) (walletsync.LogEntry, error) {
	address, err := addr.Validate(l.Address)
	if err != nil {
		return walletsync.LogEntry{}, werr.Wrap(werr.Protocol, "api: log address", err)
	}
	blockHeight, err := parseHexUint64(l.BlockNumber)
	if err != nil {
		return walletsync.LogEntry{}, err
	}
	data, err := decodeHexBytes(l.Data)
	if err != nil {
		return walletsync.LogEntry{}, err
	}
	hashBytes, err := decodeHexBytes(l.TxHash)
	if err != nil {
		return walletsync.LogEntry{}, err
	}
	var txHash [32]byte
	copy(txHash[:], hashBytes)

	topics := make([][32]byte, 0, len(l.Topics))
	for _, t := range l.Topics {
		tb, err := decodeHexBytes(t)
		if err != nil {
			return walletsync.LogEntry{}, err
		}
		var topic [32]byte
		copy(topic[:], tb)
		topics = append(topics, topic)
	}

	return walletsync.LogEntry{
		Address:     address,
		Topics:      topics,
		Data:        data,
		BlockHeight: blockHeight,
		TxHash:      txHash,
	}, nil
}

// Register adds contract to the set this back-end tracks balance/
// transactions for.
func (b *Backend) Register(contract store.Contract) {
	b.extraMu.Lock()
	defer b.extraMu.Unlock()
	b.contracts[contract] = struct{}{}
}

// Unregister drops contract from tracking.
func (b *Backend) Unregister(contract store.Contract) {
	if contract.Native {
		return
	}
	b.extraMu.Lock()
	defer b.extraMu.Unlock()
	delete(b.contracts, contract)
}

// Address returns the account this back-end is tracking.
func (b *Backend) Address() addr.Address {
	return b.address
}
