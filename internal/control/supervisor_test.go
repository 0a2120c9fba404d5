package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/collector"
	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/infra/storage"
)

type noopClient struct{}

func (noopClient) GetTipHeight(ctx context.Context) (domain.Position, error) { return 0, nil }
func (noopClient) GetBlock(ctx context.Context, pos domain.Position) (*domain.Block, error) {
	return nil, nil
}
func (noopClient) GetBlockTransactions(ctx context.Context, pos domain.Position, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

type noopCursorStore struct{}

func (noopCursorStore) Load(ctx context.Context, chain domain.ChainID) (domain.Cursor, error) {
	return domain.Cursor{ChainID: chain, Position: 0}, nil
}

type noopSink struct{}

func (noopSink) CommitBatch(ctx context.Context, chain domain.ChainID, blocks []*domain.Block, txs []*domain.Transaction, quality []domain.QualityVerdict, metric domain.MetricSample, newPosition domain.Position, mode domain.CollectionMode) (storage.WriteResult, error) {
	return storage.WriteResult{}, nil
}
func (noopSink) StorageSizeBytes(ctx context.Context) (int64, error) { return 0, nil }

type unreachableSink struct{ noopSink }

func (unreachableSink) StorageSizeBytes(ctx context.Context) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func newTestSupervisor() *Supervisor {
	return New(SupervisorConfig{
		Collectors: map[domain.ChainID]collector.Config{
			domain.ChainBitcoin: {
				ChainID:       domain.ChainBitcoin,
				Client:        noopClient{},
				Cursors:       noopCursorStore{},
				Sink:          noopSink{},
				Mode:          domain.ModeTip,
				Parallelism:   1,
				CycleInterval: time.Hour,
			},
		},
		Sink:        noopSink{},
		GracePeriod: 100 * time.Millisecond,
	})
}

func TestSupervisor_StartStopLifecycle(t *testing.T) {
	s := newTestSupervisor()

	if got, _ := s.Start(context.Background()); got != StartAccepted {
		t.Fatalf("expected accepted, got %s", got)
	}
	if got, _ := s.Start(context.Background()); got != StartAlreadyRunning {
		t.Fatalf("expected already_running on second Start, got %s", got)
	}

	status := s.Status()
	if !status.IsRunning {
		t.Error("expected IsRunning true after Start")
	}

	if got := s.Stop(); got != StopStopped {
		t.Fatalf("expected stopped, got %s", got)
	}
	if got := s.Stop(); got != StopNotRunning {
		t.Fatalf("expected not_running on second Stop, got %s", got)
	}
}

func TestSupervisor_StartRejectsWhenStoreUnreachable(t *testing.T) {
	s := New(SupervisorConfig{
		Collectors: map[domain.ChainID]collector.Config{
			domain.ChainBitcoin: {
				ChainID:       domain.ChainBitcoin,
				Client:        noopClient{},
				Cursors:       noopCursorStore{},
				Sink:          noopSink{},
				Mode:          domain.ModeTip,
				Parallelism:   1,
				CycleInterval: time.Hour,
			},
		},
		Sink:        unreachableSink{},
		GracePeriod: 100 * time.Millisecond,
	})

	result, reason := s.Start(context.Background())
	if result != StartRejected {
		t.Fatalf("expected rejected, got %s", result)
	}
	if reason != "store_unreachable" {
		t.Errorf("expected store_unreachable reason, got %q", reason)
	}

	status := s.Status()
	if status.IsRunning {
		t.Error("expected IsRunning false after a rejected start")
	}
}

func TestSupervisor_HealthUnhealthyBeforeAnyCommit(t *testing.T) {
	s := newTestSupervisor()
	s.Start(context.Background())
	defer s.Stop()

	health := s.Health()
	chainHealth, ok := health.Chains[domain.ChainBitcoin]
	if !ok {
		t.Fatal("expected bitcoin chain health entry")
	}
	if chainHealth.SecondsSinceLastCommit != -1 {
		t.Errorf("expected -1 (never committed), got %f", chainHealth.SecondsSinceLastCommit)
	}
	if chainHealth.Status != Unhealthy {
		t.Errorf("expected unhealthy before any commit, got %s", chainHealth.Status)
	}
}

func TestSupervisor_BackfillProgressReportsZeroBeforeDiscovery(t *testing.T) {
	s := newTestSupervisor()
	s.Start(context.Background())
	defer s.Stop()

	progress := s.BackfillProgress()
	p, ok := progress[domain.ChainBitcoin]
	if !ok {
		t.Fatal("expected bitcoin progress entry")
	}
	if p.Start != 0 || p.Current != 0 || p.Target != 0 {
		t.Errorf("expected zero start/current/target, got %d/%d/%d", p.Start, p.Current, p.Target)
	}
}
