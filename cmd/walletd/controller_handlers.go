package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"evmwalletkit/internal/store"
	"evmwalletkit/internal/walletsync"
)

// walletController adapts a running walletsync.Controller to HTTP handlers,
// grounded on the teacher's walletserver/controllers/wallet_controller.go:
// one struct wrapping the backing service, one method per route, each
// encoding a JSON map on success or calling http.Error on failure.
type walletController struct {
	sync *walletsync.Controller
}

func newWalletController(sync *walletsync.Controller) *walletController {
	return &walletController{sync: sync}
}

// Status reports the current sync state and last observed block height.
func (wc *walletController) Status(w http.ResponseWriter, r *http.Request) {
	state := wc.sync.SyncState()
	resp := map[string]any{
		"syncState":       state.Kind.String(),
		"lastBlockHeight": wc.sync.LastBlockHeight(),
	}
	if state.Progress != nil {
		resp["progress"] = *state.Progress
	}
	json.NewEncoder(w).Encode(resp)
}

// Balance reports the native-asset balance, or an ERC-20 token's balance
// when the "token" query parameter names one.
func (wc *walletController) Balance(w http.ResponseWriter, r *http.Request) {
	contract := store.NativeContract
	if tokenStr := r.URL.Query().Get("token"); tokenStr != "" {
		token, err := addrValidateQuery(tokenStr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		contract = store.ERC20Contract(token)
	}
	balance, err := wc.sync.Balance(contract)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"balance": balance})
}

// Transactions lists the account's transaction log, newest first, optionally
// paginated by a "from" hash and bounded by a "limit" query parameter.
func (wc *walletController) Transactions(w http.ResponseWriter, r *http.Request) {
	q := store.TxQuery{}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = limit
	}
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		hash, err := parseTxHash(fromStr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q.FromHash = &hash
	}

	txs, err := wc.sync.Transactions(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		out = append(out, map[string]any{
			"hash":        hexBytes(tx.Hash[:]),
			"blockHeight": tx.BlockHeight,
			"nonce":       tx.Nonce,
			"from":        tx.From.Hex(),
			"to":          tx.To.Hex(),
			"value":       tx.Value,
		})
	}
	json.NewEncoder(w).Encode(map[string]any{"transactions": out})
}
