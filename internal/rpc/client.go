// Package rpc defines the capability set every chain's upstream client
// implements, and the error taxonomy shared across them. It intentionally
// holds no chain-specific transport code — see internal/rpc/bitcoin and
// internal/rpc/solana for the concrete wire formats.
package rpc

import (
	"context"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
)

// DefaultTimeout is the per-request timeout every client enforces unless
// overridden.
const DefaultTimeout = 5 * time.Second

// Client is the capability set a chain variant must implement: typed
// access to one upstream, surfacing rate-limit and transient errors
// distinctly. It replaces the source's mixin-based sharing with plain
// composition — each chain wires an RPC client, a validator, and the
// shared collector state machine together rather than inheriting from a
// common base.
type Client interface {
	// GetTipHeight returns the chain's best-known position.
	GetTipHeight(ctx context.Context) (domain.Position, error)

	// GetBlock fetches one block. The returned error's Kind is one of
	// NotFound, Skipped (Solana only), RateLimited, Transient, or Fatal.
	GetBlock(ctx context.Context, pos domain.Position) (*domain.Block, error)

	// GetBlockTransactions fetches the transactions belonging to a block
	// already fetched via GetBlock, in on-chain order. limit == 0 means
	// all transactions.
	GetBlockTransactions(ctx context.Context, pos domain.Position, limit int) ([]*domain.Transaction, error)
}
