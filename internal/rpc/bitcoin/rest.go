package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/rpc"
)

// RESTClient talks to a Blockstream-shaped public Bitcoin API. It
// implements rpc.Client.
type RESTClient struct {
	baseURL   string
	transport *rpc.Transport
}

// NewRESTClient builds a client for a public Bitcoin REST API.
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL:   baseURL,
		transport: rpc.NewTransport("public"),
	}
}

func (c *RESTClient) get(ctx context.Context, op, path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, rpc.NewError(rpc.Fatal, op, "public", err)
	}
	return c.transport.Do(ctx, op, req)
}

// GetTipHeight calls GET /blocks/tip/height.
func (c *RESTClient) GetTipHeight(ctx context.Context) (domain.Position, error) {
	body, err := c.get(ctx, "GetTipHeight", "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(string(body), 10, 64)
	if err != nil {
		return 0, rpc.NewError(rpc.Fatal, "GetTipHeight", "public", fmt.Errorf("malformed height: %w", err))
	}
	return domain.Position(height), nil
}

// GetBlock resolves the position to a hash via GET /block-height/{n}, then
// fetches GET /block/{hash}.
func (c *RESTClient) GetBlock(ctx context.Context, pos domain.Position) (*domain.Block, error) {
	hashBody, err := c.get(ctx, "GetBlock", "/block-height/"+strconv.FormatUint(uint64(pos), 10))
	if err != nil {
		return nil, err
	}
	hash := string(hashBody)

	body, err := c.get(ctx, "GetBlock", "/block/"+hash)
	if err != nil {
		return nil, err
	}

	var blk restBlock
	if err := json.Unmarshal(body, &blk); err != nil {
		return nil, rpc.NewError(rpc.Fatal, "GetBlock", "public", fmt.Errorf("malformed block: %w", err))
	}
	return blk.toDomain(), nil
}

// GetBlockTransactions paginates GET /block/{hash}/txs[/start_index] —
// the public API returns pages of 25 transactions.
func (c *RESTClient) GetBlockTransactions(ctx context.Context, pos domain.Position, limit int) ([]*domain.Transaction, error) {
	hashBody, err := c.get(ctx, "GetBlockTransactions", "/block-height/"+strconv.FormatUint(uint64(pos), 10))
	if err != nil {
		return nil, err
	}
	hash := string(hashBody)

	const pageSize = 25
	var out []*domain.Transaction
	for start := 0; ; start += pageSize {
		path := "/block/" + hash + "/txs"
		if start > 0 {
			path = fmt.Sprintf("%s/%d", path, start)
		}
		body, err := c.get(ctx, "GetBlockTransactions", path)
		if err != nil {
			return nil, err
		}

		var page []restTx
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, rpc.NewError(rpc.Fatal, "GetBlockTransactions", "public", fmt.Errorf("malformed tx page: %w", err))
		}
		if len(page) == 0 {
			break
		}
		for i, t := range page {
			out = append(out, t.toDomain(pos, start+i))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if len(page) < pageSize {
			break
		}
	}
	return out, nil
}

type restBlock struct {
	ID           string  `json:"id"`
	Height       uint64  `json:"height"`
	PreviousHash string  `json:"previousblockhash"`
	Timestamp    int64   `json:"timestamp"`
	Size         int64   `json:"size"`
	TxCount      int     `json:"tx_count"`
	Difficulty   float64 `json:"difficulty"`
	Nonce        uint64  `json:"nonce"`
	MerkleRoot   string  `json:"merkle_root"`
}

func (b restBlock) toDomain() *domain.Block {
	return &domain.Block{
		ChainID:    domain.ChainBitcoin,
		Position:   domain.Position(b.Height),
		Hash:       b.ID,
		ParentHash: b.PreviousHash,
		Timestamp:  unixToTime(float64(b.Timestamp)),
		Size:       b.Size,
		TxCount:    b.TxCount,
		Meta: domain.BlockMeta{
			Difficulty: b.Difficulty,
			Nonce:      b.Nonce,
			MerkleRoot: b.MerkleRoot,
		},
		Source: "public",
	}
}

type restTx struct {
	TxID string `json:"txid"`
	Fee  int64  `json:"fee"`
	Size int64  `json:"size"`
}

func (t restTx) toDomain(pos domain.Position, index int) *domain.Transaction {
	return &domain.Transaction{
		ChainID:  domain.ChainBitcoin,
		TxID:     t.TxID,
		Position: pos,
		Index:    index,
		Fee:      t.Fee,
		Size:     t.Size,
		Status:   domain.TxSuccess,
		Source:   "public",
	}
}

func unixToTime(sec float64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
