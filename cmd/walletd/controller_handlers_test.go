package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/txsign"
	"evmwalletkit/internal/walletsync"
)

// fakeBackend is a no-op walletsync.Backend: it never pushes events, so the
// controller stays at its zero-value NotSynced state until a test drives
// it directly via the store.
type fakeBackend struct{}

func (fakeBackend) Start(ctx context.Context, sink walletsync.EventSink) error { return nil }
func (fakeBackend) Stop(ctx context.Context) error                            { return nil }
func (fakeBackend) Refresh()                                                  {}
func (fakeBackend) Send(ctx context.Context, raw txsign.RawTransaction, chainID uint64, priv *ecdsa.PrivateKey) (txsign.Transaction, error) {
	return txsign.Transaction{}, nil
}
func (fakeBackend) Call(ctx context.Context, to addr.Address, data []byte) ([]byte, error) {
	return nil, nil
}
func (fakeBackend) EstimateGas(ctx context.Context, to addr.Address, data []byte) (uint64, error) {
	return 0, nil
}
func (fakeBackend) GetLogs(ctx context.Context, query walletsync.LogQuery) ([]walletsync.LogEntry, error) {
	return nil, nil
}
func (fakeBackend) Register(contract store.Contract)   {}
func (fakeBackend) Unregister(contract store.Contract) {}
func (fakeBackend) Address() addr.Address              { return addr.Address{} }

func newTestWalletController(t *testing.T) *walletController {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemStore()
	if err := st.SetBalance(store.NativeContract, "1000"); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	if err := st.AppendTransactions([]store.TxRecord{{
		Hash:        [32]byte{1},
		BlockHeight: 5,
		Nonce:       0,
		Value:       "42",
		Contract:    store.NativeContract,
	}}); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	controller := walletsync.NewController(st, 3, logger)
	if err := controller.Start(context.Background(), fakeBackend{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { controller.Stop(context.Background()) })
	return newWalletController(controller)
}

func TestStatusReportsNotSyncedByDefault(t *testing.T) {
	wc := newTestWalletController(t)
	rr := httptest.NewRecorder()
	wc.Status(rr, httptest.NewRequest(http.MethodGet, "/api/wallet/status", nil))

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["syncState"] != "NotSynced" {
		t.Fatalf("syncState = %v, want NotSynced", body["syncState"])
	}
}

func TestBalanceReadsNativeByDefault(t *testing.T) {
	wc := newTestWalletController(t)
	rr := httptest.NewRecorder()
	wc.Balance(rr, httptest.NewRequest(http.MethodGet, "/api/wallet/balance", nil))

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["balance"] != "1000" {
		t.Fatalf("balance = %v, want 1000", body["balance"])
	}
}

func TestBalanceRejectsInvalidToken(t *testing.T) {
	wc := newTestWalletController(t)
	rr := httptest.NewRecorder()
	wc.Balance(rr, httptest.NewRequest(http.MethodGet, "/api/wallet/balance?token=not-an-address", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestTransactionsListsSeededEntry(t *testing.T) {
	wc := newTestWalletController(t)
	rr := httptest.NewRecorder()
	wc.Transactions(rr, httptest.NewRequest(http.MethodGet, "/api/wallet/transactions", nil))

	var body map[string][]map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	txs := body["transactions"]
	if len(txs) != 1 {
		t.Fatalf("len(transactions) = %d, want 1", len(txs))
	}
	if txs[0]["value"] != "42" {
		t.Fatalf("value = %v, want 42", txs[0]["value"])
	}
}

func TestTransactionsRejectsInvalidLimit(t *testing.T) {
	wc := newTestWalletController(t)
	rr := httptest.NewRecorder()
	wc.Transactions(rr, httptest.NewRequest(http.MethodGet, "/api/wallet/transactions?limit=abc", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
