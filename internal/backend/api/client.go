// Package api implements the API back-end (C6): a JSON-RPC client plus an
// Etherscan-style transaction-index client, driving the periodic polling
// sync loop described in §4.6. Grounded on the teacher's
// core/blockchain_synchronization.go SyncManager shape (Start/Stop/loop/
// SyncOnce), generalized from "pull blocks from the Replicator" to "poll
// blockNumber/balance/nonce/tx-index over HTTP."
package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/werr"
)

// RPCClient is a minimal JSON-RPC 2.0 HTTP client for the subset of
// eth_* methods the API back-end needs.
type RPCClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewRPCClient builds a client against endpoint, using the given timeout
// for each request.
func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	return &RPCClient{endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	// uuid.NewString correlates each JSON-RPC request with its response,
	// the natural role of the envelope's "id" field.
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: uuid.NewString(), Method: method, Params: params})
	if err != nil {
		return werr.Wrap(werr.Validation, "api: marshal rpc request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return werr.Wrap(werr.Transport, "api: build rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return werr.Wrap(werr.Transport, "api: rpc request failed", err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return werr.Wrap(werr.Transport, "api: decode rpc response", err)
	}
	if decoded.Error != nil {
		return werr.New(werr.Protocol, fmt.Sprintf("api: rpc error %d: %s", decoded.Error.Code, decoded.Error.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return werr.Wrap(werr.Protocol, "api: unmarshal rpc result", err)
	}
	return nil
}

func parseHexUint64(s string) (uint64, error) {
	n, err := strconv.ParseUint(trimHexPrefix(s), 16, 64)
	if err != nil {
		return 0, werr.Wrap(werr.Protocol, "api: parse hex quantity", err)
	}
	return n, nil
}

func parseHexBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(trimHexPrefix(s), 16)
	if !ok {
		return nil, werr.New(werr.Protocol, "api: bad hex big integer: "+s)
	}
	return n, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// BlockNumber fetches eth_blockNumber.
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.call(ctx, "eth_blockNumber", nil, &hex); err != nil {
		return 0, err
	}
	return parseHexUint64(hex)
}

// GetBalance fetches eth_getBalance(address, "latest").
func (c *RPCClient) GetBalance(ctx context.Context, a addr.Address) (*big.Int, error) {
	var hex string
	if err := c.call(ctx, "eth_getBalance", []any{a.Hex(), "latest"}, &hex); err != nil {
		return nil, err
	}
	return parseHexBig(hex)
}

// GetTransactionCount fetches eth_getTransactionCount(address, "pending"),
// used by the caller to assign the next nonce.
func (c *RPCClient) GetTransactionCount(ctx context.Context, a addr.Address) (uint64, error) {
	var hex string
	if err := c.call(ctx, "eth_getTransactionCount", []any{a.Hex(), "pending"}, &hex); err != nil {
		return 0, err
	}
	return parseHexUint64(hex)
}

// GasPrice fetches eth_gasPrice.
func (c *RPCClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var hex string
	if err := c.call(ctx, "eth_gasPrice", nil, &hex); err != nil {
		return nil, err
	}
	return parseHexBig(hex)
}

// SendRawTransaction fetches eth_sendRawTransaction(signedRLP).
func (c *RPCClient) SendRawTransaction(ctx context.Context, signedRLP []byte) ([32]byte, error) {
	var hex string
	if err := c.call(ctx, "eth_sendRawTransaction", []any{"0x" + fmt.Sprintf("%x", signedRLP)}, &hex); err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	b, err := parseHexBig(hex)
	if err != nil {
		return [32]byte{}, err
	}
	b.FillBytes(out[:])
	return out, nil
}

// Call fetches eth_call({to, data}, "latest").
func (c *RPCClient) Call(ctx context.Context, to addr.Address, data []byte) ([]byte, error) {
	var hex string
	callObj := map[string]string{"to": to.Hex(), "data": "0x" + fmt.Sprintf("%x", data)}
	if err := c.call(ctx, "eth_call", []any{callObj, "latest"}, &hex); err != nil {
		return nil, err
	}
	return decodeHexBytes(hex)
}

// EstimateGas fetches eth_estimateGas({to, data}).
func (c *RPCClient) EstimateGas(ctx context.Context, to addr.Address, data []byte) (uint64, error) {
	var hex string
	callObj := map[string]string{"to": to.Hex(), "data": "0x" + fmt.Sprintf("%x", data)}
	if err := c.call(ctx, "eth_estimateGas", []any{callObj}, &hex); err != nil {
		return 0, err
	}
	return parseHexUint64(hex)
}

type rpcLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
}

// GetLogs fetches eth_getLogs({fromBlock, toBlock, address, topics}).
func (c *RPCClient) GetLogs(ctx context.Context, fromBlock, toBlock uint64, address addr.Address, topics [][32]byte) ([]rpcLog, error) {
	topicStrs := make([]string, len(topics))
	for i, t := range topics {
		topicStrs[i] = "0x" + hex.EncodeToString(t[:])
	}
	filter := map[string]any{
		"fromBlock": "0x" + strconv.FormatUint(fromBlock, 16),
		"toBlock":   "0x" + strconv.FormatUint(toBlock, 16),
		"address":   address.Hex(),
		"topics":    topicStrs,
	}
	var logs []rpcLog
	if err := c.call(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func decodeHexBytes(s string) ([]byte, error) {
	s = trimHexPrefix(s)
	if len(s)%2 != 0 {
		s = "0" + s
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, werr.Wrap(werr.Protocol, "api: decode hex bytes", err)
	}
	return out, nil
}
