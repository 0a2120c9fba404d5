// Package storage defines the Cursor Store and Sink contracts the
// collector depends on. internal/infra/storage/postgres is the concrete
// implementation backing both with a single Postgres connection pool.
package storage

import (
	"context"
	"errors"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
)

// ErrCursorNotFound is returned by Load when a chain has never committed.
var ErrCursorNotFound = errors.New("cursor not found")

// CursorStore reads and writes the last-committed position per chain.
type CursorStore interface {
	// Load returns the chain's last-committed position, or
	// ErrCursorNotFound if the chain has never committed.
	Load(ctx context.Context, chain domain.ChainID) (domain.Cursor, error)
}

// WriteResult reports how much of a batch actually committed. Partial
// commits never advance the cursor past the first gap.
type WriteResult struct {
	// CommittedThrough is the highest position written this batch, or 0
	// if nothing committed.
	CommittedThrough domain.Position
	// Committed is the count of blocks actually written (skipped slots,
	// which have no block row, are not counted).
	Committed int
}

// Sink batches and idempotently upserts blocks, transactions, quality
// verdicts, and metric samples, and atomically advances the chain's
// cursor alongside them.
type Sink interface {
	// CommitBatch inserts blocks/txs/quality/metric rows and advances the
	// chain's cursor to newPosition in one atomic write. An implementation
	// may instead commit only a contiguous prefix of the blocks and advance
	// the cursor to the last of them; WriteResult reports how far it got.
	// It is the caller's responsibility (the collector) to pass only a
	// contiguous prefix starting at cursor+1.
	CommitBatch(
		ctx context.Context,
		chain domain.ChainID,
		blocks []*domain.Block,
		txs []*domain.Transaction,
		quality []domain.QualityVerdict,
		metric domain.MetricSample,
		newPosition domain.Position,
		mode domain.CollectionMode,
	) (WriteResult, error)

	// StorageSizeBytes estimates total bytes occupied by committed
	// records, for the Supervisor's size safety budget.
	StorageSizeBytes(ctx context.Context) (int64, error)
}
