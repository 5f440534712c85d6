package walletsync

import (
	"context"
	"crypto/ecdsa"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/txsign"
	"evmwalletkit/internal/werr"
)

type fakeBackend struct {
	sink       EventSink
	startErr   error
	stopErr    error
	registered []store.Contract
	address    addr.Address
}

func (b *fakeBackend) Start(ctx context.Context, sink EventSink) error {
	b.sink = sink
	return b.startErr
}
func (b *fakeBackend) Stop(ctx context.Context) error { return b.stopErr }
func (b *fakeBackend) Refresh()                       {}
func (b *fakeBackend) Send(ctx context.Context, raw txsign.RawTransaction, chainID uint64, priv *ecdsa.PrivateKey) (txsign.Transaction, error) {
	return txsign.Transaction{}, nil
}
func (b *fakeBackend) Call(ctx context.Context, to addr.Address, data []byte) ([]byte, error) {
	return []byte("result"), nil
}
func (b *fakeBackend) EstimateGas(ctx context.Context, to addr.Address, data []byte) (uint64, error) {
	return 21000, nil
}
func (b *fakeBackend) GetLogs(ctx context.Context, query LogQuery) ([]LogEntry, error) {
	return nil, nil
}
func (b *fakeBackend) Register(contract store.Contract)   { b.registered = append(b.registered, contract) }
func (b *fakeBackend) Unregister(contract store.Contract) {}
func (b *fakeBackend) Address() addr.Address              { return b.address }

func newTestController() *Controller {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewController(store.NewMemStore(), 3, logger)
}

func TestStartRejectsSecondBackend(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	if err := c.Start(ctx, &fakeBackend{}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := c.Start(ctx, &fakeBackend{})
	if !werr.Is(err, werr.State) {
		t.Fatalf("second Start err = %v, want State", err)
	}
}

func TestReceiveAddressRequiresRunningBackend(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	if _, err := c.ReceiveAddress(); !werr.Is(err, werr.State) {
		t.Fatalf("ReceiveAddress before Start: err = %v, want State", err)
	}

	want := addr.Address{0xaa, 0xbb}
	if err := c.Start(ctx, &fakeBackend{address: want}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, err := c.ReceiveAddress()
	if err != nil {
		t.Fatalf("ReceiveAddress: %v", err)
	}
	if got != want {
		t.Fatalf("ReceiveAddress = %x, want %x", got, want)
	}
}

func TestOnLastBlockHeightDedupsAndPublishes(t *testing.T) {
	c := newTestController()
	ch, unsub := c.SubscribeLastBlockHeight()
	defer unsub()

	c.OnLastBlockHeight(100)
	c.OnLastBlockHeight(100) // duplicate, must not publish again
	c.OnLastBlockHeight(101)

	select {
	case h := <-ch:
		if h != 100 {
			t.Fatalf("first update = %d, want 100", h)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first height update")
	}
	select {
	case h := <-ch:
		if h != 101 {
			t.Fatalf("second update = %d, want 101", h)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second height update")
	}
	select {
	case h := <-ch:
		t.Fatalf("unexpected third update: %d", h)
	default:
	}
	if c.LastBlockHeight() != 101 {
		t.Fatalf("LastBlockHeight() = %d, want 101", c.LastBlockHeight())
	}
}

func TestOnSyncStateDedupsByEquality(t *testing.T) {
	c := newTestController()
	ch, unsub := c.SubscribeSyncState()
	defer unsub()

	c.OnSyncState(Syncing(0.5))
	c.OnSyncState(Syncing(0.5)) // equal, must not publish again
	c.OnSyncState(Synced())

	first := <-ch
	if first.Kind != SyncStateSyncing {
		t.Fatalf("first state = %v, want Syncing", first.Kind)
	}
	second := <-ch
	if second.Kind != SyncStateSynced {
		t.Fatalf("second state = %v, want Synced", second.Kind)
	}
	select {
	case s := <-ch:
		t.Fatalf("unexpected third state: %v", s)
	default:
	}
}

func TestOnBalancePublishesPerContract(t *testing.T) {
	c := newTestController()
	ch, unsub := c.SubscribeBalance()
	defer unsub()

	token := store.ERC20Contract(addr.Address{1})
	c.OnBalance(store.NativeContract, "1000")
	c.OnBalance(store.NativeContract, "1000") // duplicate
	c.OnBalance(token, "5")

	first := <-ch
	if first.Contract != store.NativeContract || first.Balance != "1000" {
		t.Fatalf("first update = %+v", first)
	}
	second := <-ch
	if second.Contract != token || second.Balance != "5" {
		t.Fatalf("second update = %+v", second)
	}

	bal, err := c.Balance(store.NativeContract)
	if err != nil || bal != "1000" {
		t.Fatalf("Balance(native) = %q, %v", bal, err)
	}
}

func TestOnTransactionsSkipsEmptyBatches(t *testing.T) {
	c := newTestController()
	ch, unsub := c.SubscribeTransactions()
	defer unsub()

	c.OnTransactions(store.NativeContract, nil)
	select {
	case txs := <-ch:
		t.Fatalf("unexpected publish for empty batch: %v", txs)
	default:
	}

	batch := []store.TxRecord{{Nonce: 1}}
	c.OnTransactions(store.NativeContract, batch)
	got := <-ch
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
}

func TestSendCallWithNoBackendReturnStateError(t *testing.T) {
	c := newTestController()
	if _, err := c.Send(context.Background(), txsign.RawTransaction{}, nil); !werr.Is(err, werr.State) {
		t.Fatalf("Send err = %v, want State", err)
	}
	if _, err := c.Call(context.Background(), addr.Address{}, nil); !werr.Is(err, werr.State) {
		t.Fatalf("Call err = %v, want State", err)
	}
}

func TestRegisterForwardsToLiveBackend(t *testing.T) {
	c := newTestController()
	backend := &fakeBackend{}
	if err := c.Start(context.Background(), backend); err != nil {
		t.Fatalf("Start: %v", err)
	}
	token := store.ERC20Contract(addr.Address{2})
	c.Register(token)
	if len(backend.registered) != 1 || backend.registered[0] != token {
		t.Fatalf("backend.registered = %+v, want [%+v]", backend.registered, token)
	}
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	c := newTestController()
	ch, unsub := c.SubscribeLastBlockHeight()
	unsub()

	c.OnLastBlockHeight(42)
	select {
	case h := <-ch:
		t.Fatalf("unexpected delivery after unsubscribe: %d", h)
	case <-time.After(50 * time.Millisecond):
	}
}
