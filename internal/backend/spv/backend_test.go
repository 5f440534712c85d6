package spv

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/chainparams"
	"evmwalletkit/internal/cryptoprim"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/txsign"
	"evmwalletkit/internal/walletsync"
	"evmwalletkit/internal/werr"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type fakeSink struct {
	mu     sync.Mutex
	states []walletsync.SyncState
}

func (f *fakeSink) OnLastBlockHeight(uint64)                             {}
func (f *fakeSink) OnBalance(store.Contract, string)                     {}
func (f *fakeSink) OnTransactions(store.Contract, []store.TxRecord)      {}
func (f *fakeSink) OnSyncState(s walletsync.SyncState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
}
func (f *fakeSink) lastState() walletsync.SyncState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return walletsync.NotSynced()
	}
	return f.states[len(f.states)-1]
}

func newTestBackend(t *testing.T, peerAddr string) *Backend {
	t.Helper()
	address, err := addr.Validate(testAddress)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	localKey, err := cryptoprim.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate local key: %v", err)
	}
	remoteKey, err := cryptoprim.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate remote key: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewBackend(peerAddr, localKey, &remoteKey.PublicKey, chainparams.Ropsten, address, store.NewMemStore(), logger)
}

func TestCallEstimateGasGetLogsUnsupported(t *testing.T) {
	b := newTestBackend(t, "127.0.0.1:0")

	if _, err := b.Call(context.Background(), addr.Address{}, nil); !werr.Is(err, werr.Unsupported) {
		t.Fatalf("Call err = %v, want Unsupported", err)
	}
	if _, err := b.EstimateGas(context.Background(), addr.Address{}, nil); !werr.Is(err, werr.Unsupported) {
		t.Fatalf("EstimateGas err = %v, want Unsupported", err)
	}
	if _, err := b.GetLogs(context.Background(), walletsync.LogQuery{}); !werr.Is(err, werr.Unsupported) {
		t.Fatalf("GetLogs err = %v, want Unsupported", err)
	}
}

func TestRegisterUnregisterAreNoOps(t *testing.T) {
	b := newTestBackend(t, "127.0.0.1:0")
	b.Register(store.ERC20Contract(addr.Address{1}))
	b.Unregister(store.ERC20Contract(addr.Address{1}))
	b.Unregister(store.NativeContract)
}

func TestStartRetriesOnUnreachablePeerAndStopsCleanly(t *testing.T) {
	// Port 1 on localhost has no listener: connecting should fail
	// immediately, driving the supervisor into NotSynced and a
	// reconnect-with-backoff cycle Stop can still interrupt.
	b := newTestBackend(t, "127.0.0.1:1")
	sink := &fakeSink{}

	if err := b.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := sink.lastState(); got.Kind != walletsync.SyncStateNotSynced && got.Kind != walletsync.SyncStateSyncing {
		t.Fatalf("sink state = %v, want NotSynced or Syncing", got.Kind)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSendWithoutLiveSessionFails(t *testing.T) {
	b := newTestBackend(t, "127.0.0.1:0")
	priv, err := cryptoprim.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	to, err := addr.Validate(testAddress)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	raw := txsign.Build(big.NewInt(1), 21000, to, big.NewInt(0), nil)
	_, err = b.Send(context.Background(), raw, 1, priv)
	if !werr.Is(err, werr.Transport) {
		t.Fatalf("Send err = %v, want Transport", err)
	}
}
