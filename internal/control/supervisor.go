// Package control implements the Collection Supervisor: the
// external control-plane contract (Start/Stop/Status/Health/
// BackfillProgress) layered over one collector.Collector per enabled
// chain. The Supervisor exclusively owns its collectors; it spawns one
// goroutine per chain and a budget-monitoring goroutine, and never
// reaches into a chain's internals beyond the accessor methods
// collector.Collector exposes.
package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maruthiprithivi/chainwatch/internal/collector"
	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/infra/storage"
	"github.com/maruthiprithivi/chainwatch/internal/metrics"
)

// StartResult is Start's outcome.
type StartResult string

const (
	StartAccepted       StartResult = "accepted"
	StartAlreadyRunning StartResult = "already_running"
	StartRejected       StartResult = "rejected"
)

// StopOutcome is Stop's outcome.
type StopOutcome string

const (
	StopStopped    StopOutcome = "stopped"
	StopNotRunning StopOutcome = "not_running"
)

// HealthStatus is one chain's or the overall run's classification.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// ChainHealth is one chain's health snapshot.
type ChainHealth struct {
	Status                 HealthStatus
	SecondsSinceLastCommit float64
	ErrorCount5m           int
}

// Health is the Health() operation's full response.
type Health struct {
	Overall HealthStatus
	Chains  map[domain.ChainID]ChainHealth
}

// Progress is one chain's BackfillProgress() entry.
type Progress struct {
	Start   domain.Position
	Current domain.Position
	Target  domain.Position
	Percent float64
}

// Status is the Status() operation's full response.
type Status struct {
	IsRunning bool
	StartedAt time.Time
	PerChain  map[domain.ChainID]domain.ChainCounters
}

// SupervisorConfig wires one Collector per enabled chain plus the
// run-wide safety budgets.
type SupervisorConfig struct {
	Collectors   map[domain.ChainID]collector.Config
	Sink         storage.Sink // used for the size safety budget; any enabled chain's Sink works since they share one pool
	MaxDuration  time.Duration // 0 disables the time budget
	MaxSizeBytes int64         // 0 disables the size budget
	GracePeriod  time.Duration // how long Stop waits for collectors to drain a final commit
}

// Supervisor is the process-wide singleton owning every chain's
// collector and the single CollectionRun record describing the current
// or most recent run.
type Supervisor struct {
	cfg SupervisorConfig
	log *slog.Logger

	mu         sync.Mutex
	run        domain.CollectionRun
	collectors map[domain.ChainID]*collector.Collector
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New builds a Supervisor. It does not start any collector until Start
// is called.
func New(cfg SupervisorConfig) *Supervisor {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	return &Supervisor{
		cfg: cfg,
		log: slog.Default().With("component", "supervisor"),
		run: domain.CollectionRun{Chains: make(map[domain.ChainID]*domain.ChainCounters)},
	}
}

// Start spawns one collector goroutine per enabled chain plus the
// budget monitor, and opens a new CollectionRun. Idempotent:
// already_running is signaled rather than returned as an error. Rejects
// with reason "store_unreachable" if the shared Sink can't be reached,
// since every collector's first commit would otherwise fail after
// already having started fetching.
func (s *Supervisor) Start(ctx context.Context) (StartResult, string) {
	s.mu.Lock()
	if s.run.IsRunning {
		s.mu.Unlock()
		return StartAlreadyRunning, ""
	}
	s.mu.Unlock()

	if s.cfg.Sink != nil {
		if _, err := s.cfg.Sink.StorageSizeBytes(ctx); err != nil {
			s.log.Error("rejecting start, store unreachable", "error", err)
			return StartRejected, "store_unreachable"
		}
	}

	s.mu.Lock()
	if s.run.IsRunning {
		s.mu.Unlock()
		return StartAlreadyRunning, ""
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	runID := uuid.New()
	collectors := make(map[domain.ChainID]*collector.Collector, len(s.cfg.Collectors))
	for chainID, cfg := range s.cfg.Collectors {
		collectors[chainID] = collector.New(cfg)
	}
	s.collectors = collectors
	s.run = domain.CollectionRun{
		RunID:     runID,
		IsRunning: true,
		StartedAt: time.Now(),
		Chains:    make(map[domain.ChainID]*domain.ChainCounters),
	}
	for chainID := range s.cfg.Collectors {
		s.run.Chains[chainID] = &domain.ChainCounters{}
	}
	s.mu.Unlock()

	runLog := s.log.With("run_id", runID)
	for chainID, c := range collectors {
		s.wg.Add(1)
		go func(chainID domain.ChainID, c *collector.Collector) {
			defer s.wg.Done()
			runLog.Info("starting collector", "chain", chainID)
			c.Run(runCtx)
			runLog.Info("collector exited", "chain", chainID, "state", c.State())
		}(chainID, c)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorBudgets(runCtx)
	}()

	return StartAccepted, ""
}

// Stop signals cancellation to every collector, waits up to the grace
// period for them to drain a final commit, and closes the run with
// manual as the stop reason.
func (s *Supervisor) Stop() StopOutcome {
	s.mu.Lock()
	if !s.run.IsRunning {
		s.mu.Unlock()
		return StopNotRunning
	}
	s.mu.Unlock()

	s.closeRun(domain.StopManual)
	return StopStopped
}

func (s *Supervisor) closeRun(reason domain.StopReason) {
	s.mu.Lock()
	if !s.run.IsRunning {
		s.mu.Unlock()
		return
	}
	s.run.IsRunning = false
	s.run.StoppedAt = time.Now()
	s.run.StopReason = reason
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.GracePeriod):
		s.log.Warn("grace period elapsed before all collectors drained", "reason", reason)
	}
}

// monitorBudgets checks the run-wide time and size safety budgets once
// per tick across all chains, stopping the run if either is exceeded.
func (s *Supervisor) monitorBudgets(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkBudgets(ctx)
		}
	}
}

func (s *Supervisor) checkBudgets(ctx context.Context) {
	s.mu.Lock()
	startedAt := s.run.StartedAt
	running := s.run.IsRunning
	s.mu.Unlock()
	if !running {
		return
	}

	if s.cfg.MaxDuration > 0 && time.Since(startedAt) >= s.cfg.MaxDuration {
		s.log.Info("time budget exceeded, stopping run")
		s.closeRun(domain.StopTimeBudget)
		return
	}

	if s.cfg.Sink != nil {
		size, err := s.cfg.Sink.StorageSizeBytes(ctx)
		if err != nil {
			s.log.Warn("failed to check storage size budget", "error", err)
			return
		}
		metrics.SinkStorageBytes.Set(float64(size))

		if s.cfg.MaxSizeBytes > 0 && size >= s.cfg.MaxSizeBytes {
			s.log.Info("size budget exceeded, stopping run", "bytes", size)
			s.closeRun(domain.StopSizeBudget)
		}
	}
}

// Status reports whether the run is active and each chain's current
// counters.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	isRunning := s.run.IsRunning
	startedAt := s.run.StartedAt
	collectors := s.collectors
	s.mu.Unlock()

	perChain := make(map[domain.ChainID]domain.ChainCounters, len(collectors))
	for chainID, c := range collectors {
		counters := c.Counters()
		if isRunning {
			elapsed := time.Since(startedAt).Seconds()
			if elapsed > 0 {
				counters.RatePerSec = float64(counters.Records) / elapsed
			}
		}
		perChain[chainID] = counters
	}

	return Status{IsRunning: isRunning, StartedAt: startedAt, PerChain: perChain}
}

// Health classifies each running chain and reports the worst-case
// overall status.
func (s *Supervisor) Health() Health {
	s.mu.Lock()
	collectors := s.collectors
	s.mu.Unlock()

	chains := make(map[domain.ChainID]ChainHealth, len(collectors))
	overall := Healthy

	for chainID, c := range collectors {
		h := classifyChain(c)
		chains[chainID] = h
		if worse(h.Status, overall) {
			overall = h.Status
		}
	}

	return Health{Overall: overall, Chains: chains}
}

func classifyChain(c *collector.Collector) ChainHealth {
	if c.State() == collector.StateFatal {
		return ChainHealth{Status: Unhealthy, SecondsSinceLastCommit: -1, ErrorCount5m: c.RecentErrorCount()}
	}

	since := c.SecondsSinceLastCommit()
	errs := c.RecentErrorCount()

	status := Unhealthy
	switch {
	case since >= 0 && since < 60 && errs < 5:
		status = Healthy
	case (since >= 0 && since < 300) || errs >= 5:
		status = Degraded
	}

	return ChainHealth{Status: status, SecondsSinceLastCommit: since, ErrorCount5m: errs}
}

// worse reports whether candidate outranks current in severity.
func worse(candidate, current HealthStatus) bool {
	rank := map[HealthStatus]int{Healthy: 0, Degraded: 1, Unhealthy: 2}
	return rank[candidate] > rank[current]
}

// BackfillProgress reports start/current/target/percent per chain.
func (s *Supervisor) BackfillProgress() map[domain.ChainID]Progress {
	s.mu.Lock()
	collectors := s.collectors
	s.mu.Unlock()

	out := make(map[domain.ChainID]Progress, len(collectors))
	for chainID, c := range collectors {
		start, current, target, percent := c.BackfillProgress()
		out[chainID] = Progress{Start: start, Current: current, Target: target, Percent: percent}
	}
	return out
}

// RunInfo reports the current or most recently completed run's timing
// and stop reason, for the control-plane Start/Stop responses.
func (s *Supervisor) RunInfo() (startedAt, stoppedAt time.Time, stopReason domain.StopReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.StartedAt, s.run.StoppedAt, s.run.StopReason
}

// Chains returns the set of chain IDs this Supervisor was configured
// with, regardless of whether a run is currently active.
func (s *Supervisor) Chains() []domain.ChainID {
	out := make([]domain.ChainID, 0, len(s.cfg.Collectors))
	for chainID := range s.cfg.Collectors {
		out = append(out, chainID)
	}
	return out
}
