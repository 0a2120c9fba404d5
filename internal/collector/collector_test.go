package collector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/infra/storage"
	"github.com/maruthiprithivi/chainwatch/internal/rpc"
)

type stubClient struct {
	tip    domain.Position
	blocks map[domain.Position]*domain.Block
	errs   map[domain.Position]error
}

func (s *stubClient) GetTipHeight(ctx context.Context) (domain.Position, error) {
	return s.tip, nil
}

func (s *stubClient) GetBlock(ctx context.Context, pos domain.Position) (*domain.Block, error) {
	if err, ok := s.errs[pos]; ok {
		return nil, err
	}
	b, ok := s.blocks[pos]
	if !ok {
		return nil, rpc.NewError(rpc.NotFound, "GetBlock", "stub", nil)
	}
	return b, nil
}

func (s *stubClient) GetBlockTransactions(ctx context.Context, pos domain.Position, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

type stubCursorStore struct {
	cursor domain.Cursor
	found  bool
}

func (s *stubCursorStore) Load(ctx context.Context, chain domain.ChainID) (domain.Cursor, error) {
	if !s.found {
		return domain.Cursor{}, storage.ErrCursorNotFound
	}
	return s.cursor, nil
}

type stubSink struct {
	committed domain.Position
	calls     int
}

func (s *stubSink) CommitBatch(ctx context.Context, chain domain.ChainID, blocks []*domain.Block, txs []*domain.Transaction, quality []domain.QualityVerdict, metric domain.MetricSample, newPosition domain.Position, mode domain.CollectionMode) (storage.WriteResult, error) {
	s.calls++
	s.committed = newPosition
	return storage.WriteResult{CommittedThrough: newPosition, Committed: len(blocks)}, nil
}

func (s *stubSink) StorageSizeBytes(ctx context.Context) (int64, error) {
	return 0, nil
}

func makeBlock(pos domain.Position) *domain.Block {
	return &domain.Block{
		ChainID:   domain.ChainBitcoin,
		Position:  pos,
		Hash:      fmt.Sprintf("%064x", pos),
		Timestamp: time.Now(),
	}
}

func TestCollector_CommitsContiguousWindow(t *testing.T) {
	client := &stubClient{
		tip: 5,
		blocks: map[domain.Position]*domain.Block{
			1: makeBlock(1), 2: makeBlock(2), 3: makeBlock(3), 4: makeBlock(4), 5: makeBlock(5),
		},
	}
	cursors := &stubCursorStore{found: true, cursor: domain.Cursor{ChainID: domain.ChainBitcoin, Position: 0, Mode: domain.ModeBackfill}}
	sink := &stubSink{}

	c := New(Config{
		ChainID:       domain.ChainBitcoin,
		Client:        client,
		Cursors:       cursors,
		Sink:          sink,
		Mode:          domain.ModeBackfill,
		Parallelism:   3,
		CycleInterval: time.Millisecond,
	})

	more, rateLimited, err := c.cycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rateLimited {
		t.Error("expected no rate limiting")
	}
	if sink.committed != 3 {
		t.Errorf("expected commit through position 3 (window = parallelism), got %d", sink.committed)
	}
	if !more {
		t.Error("expected more work since tip (5) exceeds committed position (3)")
	}
}

func TestCollector_StopsAtFirstGap(t *testing.T) {
	client := &stubClient{
		tip: 5,
		blocks: map[domain.Position]*domain.Block{
			1: makeBlock(1), 3: makeBlock(3),
		},
	}
	cursors := &stubCursorStore{found: true, cursor: domain.Cursor{ChainID: domain.ChainBitcoin, Position: 0, Mode: domain.ModeBackfill}}
	sink := &stubSink{}

	c := New(Config{
		ChainID:       domain.ChainBitcoin,
		Client:        client,
		Cursors:       cursors,
		Sink:          sink,
		Mode:          domain.ModeBackfill,
		Parallelism:   3,
		CycleInterval: time.Millisecond,
	})

	if _, _, err := c.cycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.committed != 1 {
		t.Errorf("expected commit to stop at position 1 (gap at 2), got %d", sink.committed)
	}
}

func TestCollector_InitializesFromGenesisOnBackfillWithNoCursor(t *testing.T) {
	client := &stubClient{tip: 2, blocks: map[domain.Position]*domain.Block{1: makeBlock(1), 2: makeBlock(2)}}
	cursors := &stubCursorStore{found: false}
	sink := &stubSink{}

	c := New(Config{
		ChainID:       domain.ChainBitcoin,
		Client:        client,
		Cursors:       cursors,
		Sink:          sink,
		Mode:          domain.ModeBackfill,
		StartPosition: 0,
		Parallelism:   5,
		CycleInterval: time.Millisecond,
	})

	if _, _, err := c.cycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.committed != 2 {
		t.Errorf("expected commit through tip position 2, got %d", sink.committed)
	}
}

func TestCollector_RateLimitTripsBackoff(t *testing.T) {
	client := &stubClient{
		tip: 3,
		errs: map[domain.Position]error{
			1: rpc.NewError(rpc.RateLimited, "GetBlock", "stub", nil),
		},
	}
	cursors := &stubCursorStore{found: true, cursor: domain.Cursor{ChainID: domain.ChainBitcoin, Position: 0, Mode: domain.ModeBackfill}}
	sink := &stubSink{}

	c := New(Config{
		ChainID:       domain.ChainBitcoin,
		Client:        client,
		Cursors:       cursors,
		Sink:          sink,
		Mode:          domain.ModeBackfill,
		Parallelism:   3,
		CycleInterval: time.Millisecond,
	})

	_, rateLimited, _ := c.cycle(context.Background())
	if !rateLimited {
		t.Fatal("expected rate-limited signal from cycle")
	}
	c.recordRateLimit()
	if c.throttleDelay() <= c.cfg.CycleInterval {
		t.Error("expected throttle delay to include backoff after a rate-limited cycle")
	}
}
