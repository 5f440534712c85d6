// Package walletsync implements the sync controller (C10): the façade that
// owns exactly one back-end (API or SPV) per instance, multiplexes its
// events across per-(account,contract) state, and fans them out to
// subscribers. Grounded on the teacher's core/network.go Broadcast/Subscribe
// channel pattern, generalized into the four typed event streams spec.md
// names and a per-controller event sink rather than a process-global hook.
package walletsync

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/txsign"
)

// SyncStateKind is one of Synced, NotSynced, or Syncing(progress).
type SyncStateKind int

const (
	SyncStateNotSynced SyncStateKind = iota
	SyncStateSyncing
	SyncStateSynced
)

func (k SyncStateKind) String() string {
	switch k {
	case SyncStateNotSynced:
		return "NotSynced"
	case SyncStateSyncing:
		return "Syncing"
	case SyncStateSynced:
		return "Synced"
	default:
		return "Unknown"
	}
}

// SyncState carries progress when Kind is Syncing.
type SyncState struct {
	Kind     SyncStateKind
	Progress *float64
}

func Synced() SyncState           { return SyncState{Kind: SyncStateSynced} }
func NotSynced() SyncState        { return SyncState{Kind: SyncStateNotSynced} }
func Syncing(progress float64) SyncState {
	p := progress
	return SyncState{Kind: SyncStateSyncing, Progress: &p}
}

// Equal reports whether two SyncStates carry the same kind and progress,
// used by the controller's dedup-by-equality fan-out.
func (s SyncState) Equal(o SyncState) bool {
	if s.Kind != o.Kind {
		return false
	}
	if (s.Progress == nil) != (o.Progress == nil) {
		return false
	}
	if s.Progress != nil && *s.Progress != *o.Progress {
		return false
	}
	return true
}

// LogQuery selects a range of logs for Backend.GetLogs.
type LogQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Address   addr.Address
	Topics    [][32]byte
}

// LogEntry is one matched log record.
type LogEntry struct {
	Address     addr.Address
	Topics      [][32]byte
	Data        []byte
	BlockHeight uint64
	TxHash      [32]byte
}

// EventSink receives the four event kinds a Backend pushes into the
// controller (§4.10: "pushes four event kinds into the controller"), and is
// implemented by Controller itself.
type EventSink interface {
	OnLastBlockHeight(height uint64)
	OnSyncState(state SyncState)
	OnBalance(contract store.Contract, balance string)
	OnTransactions(contract store.Contract, txs []store.TxRecord)
}

// Backend is the dual back-end abstraction (C6 API / C9 SPV) the controller
// drives. Exactly one is live per controller instance (invariant I4).
type Backend interface {
	// Start begins the sync loop, pushing events to sink until Stop.
	Start(ctx context.Context, sink EventSink) error
	// Stop signals the back-end to wind down within its bounded deadline.
	Stop(ctx context.Context) error
	// Refresh requests an out-of-cadence sync pass.
	Refresh()

	// Send assigns a nonce, signs raw with priv under chainID, and
	// broadcasts it. Sends to the same account are serialized by the
	// back-end itself.
	Send(ctx context.Context, raw txsign.RawTransaction, chainID uint64, priv *ecdsa.PrivateKey) (txsign.Transaction, error)
	// Call and EstimateGas are read operations against contract code;
	// SPV mode fails both with werr.Unsupported.
	Call(ctx context.Context, to addr.Address, data []byte) ([]byte, error)
	EstimateGas(ctx context.Context, to addr.Address, data []byte) (uint64, error)
	GetLogs(ctx context.Context, query LogQuery) ([]LogEntry, error)

	// Register/Unregister add or drop an ERC-20 contract from the set the
	// back-end tracks balance/transactions for.
	Register(contract store.Contract)
	Unregister(contract store.Contract)

	// Address returns the account this back-end is tracking.
	Address() addr.Address
}

// GasLimitFor returns the default gas limit for a transaction kind, used by
// Controller.Fee (§4.10: native=21000, ERC-20=100000).
func GasLimitFor(contract store.Contract) uint64 {
	if contract.Native {
		return 21000
	}
	return 100000
}

// Fee computes gasPrice * gasLimitFor(contract.kind).
func Fee(gasPrice *big.Int, contract store.Contract) *big.Int {
	return new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(GasLimitFor(contract)))
}
