package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/werr"
)

// TxIndexClient queries an Etherscan-compatible transaction-index service
// for historical transactions not yet known to the local store.
type TxIndexClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewTxIndexClient builds a client against endpoint, authenticated with
// apiKey. An empty apiKey is a fatal configuration error the back-end
// surfaces as NotSynced (§4.6 "auth-key missing").
func NewTxIndexClient(endpoint, apiKey string, timeout time.Duration) *TxIndexClient {
	return &TxIndexClient{endpoint: endpoint, apiKey: apiKey, httpClient: &http.Client{Timeout: timeout}}
}

type etherscanEnvelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Result  []etherscanTxRecord `json:"result"`
}

type etherscanTxRecord struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	Nonce       string `json:"nonce"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

// ListTransactions pages the normal-transaction list for address starting
// at fromBlock; an empty page signals the caller to stop (§4.6 step 4).
func (c *TxIndexClient) ListTransactions(ctx context.Context, address addr.Address, fromBlock uint64, page, pageSize int) ([]store.TxRecord, error) {
	if c.apiKey == "" {
		return nil, werr.New(werr.Validation, "api: etherscan api key missing")
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address.Hex())
	q.Set("startblock", strconv.FormatUint(fromBlock, 10))
	q.Set("endblock", "99999999")
	q.Set("page", strconv.Itoa(page))
	q.Set("offset", strconv.Itoa(pageSize))
	q.Set("sort", "asc")
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, werr.Wrap(werr.Transport, "api: build txindex request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, werr.Wrap(werr.Transport, "api: txindex request failed", err)
	}
	defer resp.Body.Close()

	var env etherscanEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, werr.Wrap(werr.Transport, "api: decode txindex response", err)
	}
	// Etherscan returns status "0" with message "No transactions found" for
	// an empty, otherwise-successful page; only a transport-level failure
	// is retried, an empty result is simply the end of pagination.
	if env.Status != "1" && env.Message != "No transactions found" {
		return nil, werr.New(werr.Protocol, "api: etherscan error: "+env.Message)
	}

	out := make([]store.TxRecord, 0, len(env.Result))
	for _, r := range env.Result {
		rec, err := decodeEtherscanTx(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeEtherscanTx(r etherscanTxRecord) (store.TxRecord, error) {
	fromAddr, err := addr.Validate(r.From)
	if err != nil {
		return store.TxRecord{}, werr.Wrap(werr.Protocol, "api: txindex from address", err)
	}
	toAddr, err := addr.Validate(r.To)
	if err != nil {
		return store.TxRecord{}, werr.Wrap(werr.Protocol, "api: txindex to address", err)
	}
	blockHeight, err := strconv.ParseUint(r.BlockNumber, 10, 64)
	if err != nil {
		return store.TxRecord{}, werr.Wrap(werr.Protocol, "api: txindex block number", err)
	}
	nonce, err := strconv.ParseUint(r.Nonce, 10, 64)
	if err != nil {
		return store.TxRecord{}, werr.Wrap(werr.Protocol, "api: txindex nonce", err)
	}
	var hash [32]byte
	hashBytes, err := decodeHexBytes(r.Hash)
	if err != nil {
		return store.TxRecord{}, werr.Wrap(werr.Protocol, "api: txindex hash", err)
	}
	copy(hash[:], hashBytes)

	return store.TxRecord{
		Hash:        hash,
		BlockHeight: blockHeight,
		Nonce:       nonce,
		From:        fromAddr,
		To:          toAddr,
		Value:       r.Value,
		Contract:    store.NativeContract,
	}, nil
}
