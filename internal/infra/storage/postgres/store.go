package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/infra/storage"
)

// DefaultBatchSize is N from the Sink contract: the default number of
// records written per round-trip.
const DefaultBatchSize = 500

// maxBatchRetries is M from the Sink contract: after this many failed
// whole-batch attempts, the store falls back to per-record inserts to
// isolate a poison record.
const maxBatchRetries = 3

// Store implements storage.CursorStore and storage.Sink against a single
// Postgres connection pool, using one transaction per commit so record
// inserts and the cursor advance are atomic (spec's Open Question 1,
// option (a) trivially satisfied since Postgres supports multi-statement
// transactions).
type Store struct {
	db  *DB
	log *slog.Logger
}

// NewStore builds a Store.
func NewStore(db *DB) *Store {
	return &Store{db: db, log: slog.Default()}
}

func tableNames(chain domain.ChainID) (blocks, txs string, err error) {
	switch chain {
	case domain.ChainBitcoin:
		return "blocks_btc", "txs_btc", nil
	case domain.ChainSolana:
		return "blocks_sol", "txs_sol", nil
	default:
		return "", "", fmt.Errorf("unknown chain %q", chain)
	}
}

// Load returns the chain's last-committed position.
func (s *Store) Load(ctx context.Context, chain domain.ChainID) (domain.Cursor, error) {
	var row struct {
		ChainID   string    `db:"chain_id"`
		Position  int64     `db:"position"`
		Mode      string    `db:"mode"`
		StartedAt time.Time `db:"started_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT chain_id, position, mode, started_at, updated_at
		FROM cursor WHERE chain_id = $1`, string(chain))
	if err == sql.ErrNoRows {
		return domain.Cursor{}, storage.ErrCursorNotFound
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("failed to load cursor: %w", err)
	}

	return domain.Cursor{
		ChainID:   chain,
		Position:  domain.Position(row.Position),
		Mode:      domain.CollectionMode(row.Mode),
		StartedAt: row.StartedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// StorageSizeBytes sums pg_total_relation_size across the engine's own
// tables, for the Supervisor's size safety budget.
func (s *Store) StorageSizeBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(pg_total_relation_size(quote_ident(tablename))), 0)
		FROM pg_tables
		WHERE tablename IN ('blocks_btc','txs_btc','blocks_sol','txs_sol','quality','metrics')`)
	if err != nil {
		return 0, fmt.Errorf("failed to compute storage size: %w", err)
	}
	return total, nil
}

// CommitBatch atomically inserts blocks/txs/quality/metric rows and
// advances the cursor. It attempts the whole-batch transaction up to
// maxBatchRetries times in total; after that it falls back to per-record commits,
// isolating and logging the first record that won't insert and
// discarding everything after it so the committed set stays a
// contiguous prefix.
func (s *Store) CommitBatch(
	ctx context.Context,
	chain domain.ChainID,
	blocks []*domain.Block,
	txs []*domain.Transaction,
	quality []domain.QualityVerdict,
	metric domain.MetricSample,
	newPosition domain.Position,
	mode domain.CollectionMode,
) (storage.WriteResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		err := s.commitTx(ctx, chain, blocks, txs, quality, metric, newPosition, mode)
		if err == nil {
			return storage.WriteResult{CommittedThrough: newPosition, Committed: len(blocks)}, nil
		}
		lastErr = err
		s.log.Warn("batch commit failed, retrying", "chain", chain, "attempt", attempt+1, "error", err)
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}

	s.log.Warn("batch commit exhausted retries, falling back to per-record commits", "chain", chain, "error", lastErr)
	return s.commitPerRecord(ctx, chain, blocks, txs, quality, metric, mode)
}

func (s *Store) commitTx(
	ctx context.Context,
	chain domain.ChainID,
	blocks []*domain.Block,
	txs []*domain.Transaction,
	quality []domain.QualityVerdict,
	metric domain.MetricSample,
	newPosition domain.Position,
	mode domain.CollectionMode,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	blocksTable, txsTable, err := tableNames(chain)
	if err != nil {
		return err
	}

	if err := insertBlocks(ctx, tx, chain, blocksTable, blocks); err != nil {
		return err
	}
	if err := insertTxs(ctx, tx, txsTable, txs); err != nil {
		return err
	}
	if err := insertQuality(ctx, tx, quality); err != nil {
		return err
	}
	if err := insertMetric(ctx, tx, metric); err != nil {
		return err
	}
	if err := upsertCursor(ctx, tx, chain, newPosition, mode); err != nil {
		return err
	}

	return tx.Commit()
}

// commitPerRecord inserts blocks (with their transactions) one at a time
// in ascending position order, stopping at the first failure so the
// committed set remains a contiguous prefix, then advances the cursor
// only to the last position that actually committed.
func (s *Store) commitPerRecord(
	ctx context.Context,
	chain domain.ChainID,
	blocks []*domain.Block,
	txs []*domain.Transaction,
	quality []domain.QualityVerdict,
	metric domain.MetricSample,
	mode domain.CollectionMode,
) (storage.WriteResult, error) {
	blocksTable, txsTable, err := tableNames(chain)
	if err != nil {
		return storage.WriteResult{}, err
	}

	txsByPosition := make(map[domain.Position][]*domain.Transaction)
	for _, t := range txs {
		txsByPosition[t.Position] = append(txsByPosition[t.Position], t)
	}

	var committed domain.Position
	var count int
	for _, b := range blocks {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			break
		}
		if err := insertBlocks(ctx, tx, chain, blocksTable, []*domain.Block{b}); err != nil {
			tx.Rollback()
			s.log.Error("isolating poison block record", "chain", chain, "position", b.Position, "error", err)
			break
		}
		if err := insertTxs(ctx, tx, txsTable, txsByPosition[b.Position]); err != nil {
			tx.Rollback()
			s.log.Error("isolating poison transaction record", "chain", chain, "position", b.Position, "error", err)
			break
		}
		if err := tx.Commit(); err != nil {
			s.log.Error("failed to commit isolated record", "chain", chain, "position", b.Position, "error", err)
			break
		}
		committed = b.Position
		count++
	}

	if count == 0 {
		return storage.WriteResult{}, fmt.Errorf("sink unavailable: every record in batch failed to commit")
	}

	// Quality and metric rows are best-effort audit data; their own
	// failure must not discard already-committed blocks/txs.
	if auditTx, err := s.db.BeginTxx(ctx, nil); err == nil {
		_ = insertQuality(ctx, auditTx, quality)
		_ = insertMetric(ctx, auditTx, metric)
		_ = upsertCursor(ctx, auditTx, chain, committed, mode)
		if err := auditTx.Commit(); err != nil {
			auditTx.Rollback()
		}
	}

	return storage.WriteResult{CommittedThrough: committed, Committed: count}, nil
}

// blockColumns are the shared columns plus the chain-specific metadata
// columns actually present on that chain's blocks table (see
// migrations/00001_init.sql): blocks_btc carries difficulty/nonce/
// merkle_root, blocks_sol carries parent_slot, neither carries the other.
func blockColumns(chain domain.ChainID) []string {
	shared := []string{"position", "hash", "parent_hash", "block_time", "size", "tx_count", "source"}
	switch chain {
	case domain.ChainBitcoin:
		return append(shared, "difficulty", "nonce", "merkle_root")
	case domain.ChainSolana:
		return append(shared, "parent_slot")
	default:
		return shared
	}
}

func blockValues(chain domain.ChainID, b *domain.Block) []any {
	shared := []any{int64(b.Position), b.Hash, b.ParentHash, b.Timestamp, b.Size, b.TxCount, b.Source}
	switch chain {
	case domain.ChainBitcoin:
		return append(shared, b.Meta.Difficulty, int64(b.Meta.Nonce), b.Meta.MerkleRoot)
	case domain.ChainSolana:
		return append(shared, int64(b.Meta.ParentSlot))
	default:
		return shared
	}
}

// chunk splits items into groups of at most size, the Sink's N-per-
// round-trip contract (DefaultBatchSize unless the caller overrides it).
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		return [][]T{items}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func insertBlocks(ctx context.Context, tx *sqlx.Tx, chain domain.ChainID, table string, blocks []*domain.Block) error {
	for _, page := range chunk(blocks, DefaultBatchSize) {
		if err := insertBlockPage(ctx, tx, chain, table, page); err != nil {
			return err
		}
	}
	return nil
}

func insertBlockPage(ctx context.Context, tx *sqlx.Tx, chain domain.ChainID, table string, blocks []*domain.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	columns := blockColumns(chain)
	width := len(columns)

	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO %s (%s) VALUES `, table, strings.Join(columns, ", "))
	args := make([]any, 0, len(blocks)*width)
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * width
		sb.WriteByte('(')
		for col := 0; col < width; col++ {
			if col > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%d", base+col+1)
		}
		sb.WriteByte(')')
		args = append(args, blockValues(chain, b)...)
	}
	sb.WriteString(" ON CONFLICT (position) DO UPDATE SET hash = EXCLUDED.hash, parent_hash = EXCLUDED.parent_hash")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert blocks into %s: %w", table, err)
	}
	return nil
}

func insertTxs(ctx context.Context, tx *sqlx.Tx, table string, txs []*domain.Transaction) error {
	for _, page := range chunk(txs, DefaultBatchSize) {
		if err := insertTxPage(ctx, tx, table, page); err != nil {
			return err
		}
	}
	return nil
}

func insertTxPage(ctx context.Context, tx *sqlx.Tx, table string, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO %s (tx_id, position, idx, fee, size, status, source) VALUES `, table)
	args := make([]any, 0, len(txs)*7)
	for i, t := range txs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, t.TxID, int64(t.Position), t.Index, t.Fee, t.Size, string(t.Status), t.Source)
	}
	sb.WriteString(" ON CONFLICT (tx_id) DO UPDATE SET position = EXCLUDED.position, status = EXCLUDED.status")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert transactions into %s: %w", table, err)
	}
	return nil
}

func insertQuality(ctx context.Context, tx *sqlx.Tx, quality []domain.QualityVerdict) error {
	if len(quality) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO quality (chain_id, position, level, issues) VALUES `)
	args := make([]any, 0, len(quality)*4)
	for i, q := range quality {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4)
		args = append(args, string(q.ChainID), int64(q.Position), string(q.Level), strings.Join(q.Issues, ","))
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert quality rows: %w", err)
	}
	return nil
}

func insertMetric(ctx context.Context, tx *sqlx.Tx, m domain.MetricSample) error {
	if m.ChainID == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO metrics (chain_id, cycle_at, duration_ms, records_in, records_out, error_count, last_error_tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(m.ChainID), m.CycleAt, m.Duration.Milliseconds(), m.RecordsIn, m.RecordsOut, m.ErrorCount, m.LastErrorTag)
	if err != nil {
		return fmt.Errorf("failed to insert metric row: %w", err)
	}
	return nil
}

func upsertCursor(ctx context.Context, tx *sqlx.Tx, chain domain.ChainID, position domain.Position, mode domain.CollectionMode) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cursor (chain_id, position, mode, started_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (chain_id) DO UPDATE SET
			position = EXCLUDED.position,
			updated_at = now()`,
		string(chain), int64(position), string(mode))
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}
