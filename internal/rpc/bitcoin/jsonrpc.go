// Package bitcoin implements the Bitcoin upstream clients: a JSON-RPC
// client for a local Bitcoin Core node and a REST client for a public API
// (Blockstream-shaped), fronted by a Source Router that prefers the local
// node and falls back to the public API on failure.
package bitcoin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/rpc"
)

// jsonrpcRequest is a JSON-RPC 1.0 request, as Bitcoin Core expects it —
// no "jsonrpc" version member, unlike 2.0.
type jsonrpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int    `json:"id"`
}

type jsonrpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSONRPCClient talks to a local Bitcoin Core node over JSON-RPC 1.0 with
// HTTP basic auth. It implements rpc.Client.
type JSONRPCClient struct {
	url       string
	user      string
	password  string
	transport *rpc.Transport
}

// NewJSONRPCClient builds a client for a local Bitcoin Core node.
func NewJSONRPCClient(url, user, password string) *JSONRPCClient {
	return &JSONRPCClient{
		url:       url,
		user:      user,
		password:  password,
		transport: rpc.NewTransport("local"),
	}
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	body, err := json.Marshal(jsonrpcRequest{Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, rpc.NewError(rpc.Fatal, method, "local", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, rpc.NewError(rpc.Fatal, method, "local", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.password)

	respBody, err := c.transport.Do(ctx, method, req)
	if err != nil {
		return nil, err
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, rpc.NewError(rpc.Fatal, method, "local", fmt.Errorf("malformed response: %w", err))
	}
	if resp.Error != nil {
		msg := strings.ToLower(resp.Error.Message)
		if strings.Contains(msg, "out of range") || strings.Contains(msg, "not found") {
			return nil, rpc.NewError(rpc.NotFound, method, "local", fmt.Errorf("%s", resp.Error.Message))
		}
		return nil, rpc.ClassifyJSONRPCError(method, "local", &rpc.JSONRPCError{Code: resp.Error.Code, Message: resp.Error.Message})
	}
	return resp.Result, nil
}

// GetTipHeight calls getblockcount.
func (c *JSONRPCClient) GetTipHeight(ctx context.Context) (domain.Position, error) {
	raw, err := c.call(ctx, "getblockcount")
	if err != nil {
		return 0, err
	}
	var height uint64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, rpc.NewError(rpc.Fatal, "getblockcount", "local", err)
	}
	return domain.Position(height), nil
}

// GetBlock calls getblockhash then getblock at verbosity 2, which
// includes full transaction data in the same round trip.
func (c *JSONRPCClient) GetBlock(ctx context.Context, pos domain.Position) (*domain.Block, error) {
	hashRaw, err := c.call(ctx, "getblockhash", uint64(pos))
	if err != nil {
		return nil, err
	}
	var hash string
	if err := json.Unmarshal(hashRaw, &hash); err != nil {
		return nil, rpc.NewError(rpc.Fatal, "getblockhash", "local", err)
	}

	blockRaw, err := c.call(ctx, "getblock", hash, 2)
	if err != nil {
		return nil, err
	}
	var blockData map[string]any
	if err := json.Unmarshal(blockRaw, &blockData); err != nil {
		return nil, rpc.NewError(rpc.Fatal, "getblock", "local", err)
	}
	return parseBlock(blockData, "local")
}

// GetBlockTransactions re-fetches the block at verbosity 2 and parses its
// transactions. limit == 0 means all.
func (c *JSONRPCClient) GetBlockTransactions(ctx context.Context, pos domain.Position, limit int) ([]*domain.Transaction, error) {
	hashRaw, err := c.call(ctx, "getblockhash", uint64(pos))
	if err != nil {
		return nil, err
	}
	var hash string
	if err := json.Unmarshal(hashRaw, &hash); err != nil {
		return nil, rpc.NewError(rpc.Fatal, "getblockhash", "local", err)
	}

	blockRaw, err := c.call(ctx, "getblock", hash, 2)
	if err != nil {
		return nil, err
	}
	var blockData map[string]any
	if err := json.Unmarshal(blockRaw, &blockData); err != nil {
		return nil, rpc.NewError(rpc.Fatal, "getblock", "local", err)
	}
	return parseTransactions(blockData, pos, limit, "local")
}

func parseBlock(data map[string]any, source string) (*domain.Block, error) {
	height, ok := data["height"].(float64)
	if !ok {
		return nil, rpc.NewError(rpc.Fatal, "getblock", source, fmt.Errorf("missing height"))
	}
	hash, ok := data["hash"].(string)
	if !ok {
		return nil, rpc.NewError(rpc.Fatal, "getblock", source, fmt.Errorf("missing hash"))
	}
	ts, ok := data["time"].(float64)
	if !ok {
		return nil, rpc.NewError(rpc.Fatal, "getblock", source, fmt.Errorf("missing time"))
	}
	parent, _ := data["previousblockhash"].(string)
	size, _ := data["size"].(float64)
	difficulty, _ := data["difficulty"].(float64)
	merkle, _ := data["merkleroot"].(string)
	var nonce uint64
	if n, ok := data["nonce"].(float64); ok {
		nonce = uint64(n)
	}
	var txCount int
	if tx, ok := data["tx"].([]any); ok {
		txCount = len(tx)
	}

	return &domain.Block{
		Position:   domain.Position(height),
		Hash:       hash,
		ParentHash: parent,
		Timestamp:  unixToTime(ts),
		Size:       int64(size),
		TxCount:    txCount,
		Meta: domain.BlockMeta{
			Difficulty: difficulty,
			Nonce:      nonce,
			MerkleRoot: merkle,
		},
		Source: source,
		ChainID: domain.ChainBitcoin,
	}, nil
}

func parseTransactions(blockData map[string]any, pos domain.Position, limit int, source string) ([]*domain.Transaction, error) {
	txsRaw, ok := blockData["tx"].([]any)
	if !ok {
		return nil, rpc.NewError(rpc.Fatal, "getblock", source, fmt.Errorf("missing tx array"))
	}

	out := make([]*domain.Transaction, 0, len(txsRaw))
	for i, raw := range txsRaw {
		if limit > 0 && i >= limit {
			break
		}
		txData, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		txid, ok := txData["txid"].(string)
		if !ok {
			continue
		}
		var fee int64
		if f, ok := txData["fee"].(float64); ok {
			fee = int64(f * 1e8)
		}
		var size int64
		if s, ok := txData["size"].(float64); ok {
			size = int64(s)
		}

		out = append(out, &domain.Transaction{
			ChainID:  domain.ChainBitcoin,
			TxID:     txid,
			Position: pos,
			Index:    i,
			Fee:      fee,
			Size:     size,
			Status:   domain.TxSuccess,
			Source:   source,
		})
	}
	return out, nil
}

