// Package collector implements the per-chain collector state machine:
// Idle -> Discovering -> Planning -> Fetching -> Committing -> Throttling
// -> Idle, with terminal Stopped and Fatal states. One Collector drives
// exactly one chain end to end — discovering the tip, fetching a bounded
// window in parallel, validating, and committing the longest contiguous
// prefix before throttling back to Idle.
package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/core/validate"
	"github.com/maruthiprithivi/chainwatch/internal/infra/storage"
	"github.com/maruthiprithivi/chainwatch/internal/metrics"
	"github.com/maruthiprithivi/chainwatch/internal/rpc"
)

const (
	backoffInitial = 2 * time.Second
	backoffMax     = 120 * time.Second
	maxSkipRun     = 10
)

// Config wires one chain's collector to its upstream client and the
// shared stores.
type Config struct {
	ChainID       domain.ChainID
	Client        rpc.Client
	Cursors       storage.CursorStore
	Sink          storage.Sink
	Mode          domain.CollectionMode
	StartPosition domain.Position // used only when Mode == ModeBackfill and no cursor exists yet
	Parallelism   int
	TxLimit       int
	CycleInterval time.Duration
}

// fetchResult is one position's outcome from the Fetching state.
type fetchResult struct {
	block   *domain.Block
	txs     []*domain.Transaction
	skipped bool
	err     error
}

// Collector runs one chain's state machine loop. The Supervisor owns a
// Collector per enabled chain and reads its counters/state directly —
// there is no shared table indirection, since Go's pointer semantics
// already give the Supervisor safe concurrent read access via the
// exported accessor methods.
type Collector struct {
	cfg  Config
	stop chan struct{}

	running atomic.Bool

	mu            sync.Mutex
	state         State
	cursor        domain.Cursor
	haveCursor    bool
	startPosition domain.Position
	lastTip       domain.Position
	prevHash      string
	counters      domain.ChainCounters
	lastMetric    domain.MetricSample
	lastCommitAt  time.Time
	backoff       time.Duration
}

// New builds a Collector. It does not start running until Run is called.
func New(cfg Config) *Collector {
	return &Collector{
		cfg:   cfg,
		stop:  make(chan struct{}),
		state: StateIdle,
	}
}

// Run drives the state machine until ctx is canceled, Stop is called, or
// the collector enters Fatal. It is meant to run in its own goroutine,
// one per enabled chain, under the Supervisor.
func (c *Collector) Run(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	defer c.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			c.setState(StateStopped)
			return
		case <-c.stop:
			c.setState(StateStopped)
			return
		default:
		}

		more, rateLimited, err := c.cycle(ctx)
		if err != nil && rpc.KindOf(err) == rpc.Fatal {
			c.setState(StateFatal)
			return
		}

		if rateLimited {
			c.recordRateLimit()
		} else if err == nil {
			c.resetBackoff()
		}

		if more {
			continue
		}

		c.setState(StateThrottling)
		if !c.sleep(ctx, c.throttleDelay()) {
			c.setState(StateStopped)
			return
		}
	}
}

// Stop signals the loop to drain and exit. Safe to call multiple times.
func (c *Collector) Stop() {
	if c.running.Load() {
		select {
		case <-c.stop:
		default:
			close(c.stop)
		}
	}
}

func (c *Collector) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stop:
		return false
	case <-timer.C:
		return true
	}
}

// cycle runs one Discovering->Planning->Fetching->Committing pass and
// reports whether more work remains immediately (skip the throttle
// sleep) and whether a RateLimited response was seen.
func (c *Collector) cycle(ctx context.Context) (more bool, rateLimited bool, err error) {
	cycleStart := time.Now()

	c.setState(StateDiscovering)
	cursor, err := c.loadOrInitCursor(ctx)
	if err != nil {
		return false, false, err
	}

	tip, err := c.cfg.Client.GetTipHeight(ctx)
	if err != nil {
		c.recordError(err)
		return false, false, err
	}
	c.mu.Lock()
	c.lastTip = tip
	c.mu.Unlock()
	metrics.TipPosition.WithLabelValues(string(c.cfg.ChainID)).Set(float64(tip))

	if cursor.Position >= tip {
		metrics.Observe(string(c.cfg.ChainID), "idle", 0, 0, "", time.Since(cycleStart).Seconds())
		return false, false, nil
	}

	window := domain.Position(c.cfg.Parallelism)
	if window < 1 {
		window = 1
	}
	target := cursor.Position + window
	if target > tip {
		target = tip
	}

	c.setState(StatePlanning)
	positions := make([]domain.Position, 0, int(target-cursor.Position))
	for p := cursor.Position + 1; p <= target; p++ {
		positions = append(positions, p)
	}

	c.setState(StateFetching)
	results, rateLimited := c.fetch(ctx, positions, tip)

	c.setState(StateCommitting)
	metric, newPosition, fatalErr := c.buildCommit(cycleStart, positions, results)

	if newPosition <= cursor.Position {
		c.publishMetric(metric)
		outcome := "throttled"
		if rateLimited {
			outcome = "rate_limited"
		}
		metrics.Observe(string(c.cfg.ChainID), outcome, metric.RecordsOut, metric.ErrorCount, metric.LastErrorTag, metric.Duration.Seconds())
		return false, rateLimited, fatalErr
	}

	blocks, txs, quality := c.collectBatch(positions, results, newPosition)
	result, err := c.cfg.Sink.CommitBatch(ctx, c.cfg.ChainID, blocks, txs, quality, metric, newPosition, c.cfg.Mode)
	if err != nil {
		c.recordError(err)
		metrics.Observe(string(c.cfg.ChainID), "sink_error", 0, metric.ErrorCount+1, "sink_error", metric.Duration.Seconds())
		return false, rateLimited, err
	}

	c.mu.Lock()
	c.cursor.Position = result.CommittedThrough
	c.counters.Position = result.CommittedThrough
	c.counters.Records += int64(result.Committed)
	c.lastCommitAt = time.Now()
	c.lastMetric = metric
	c.mu.Unlock()

	metrics.CursorPosition.WithLabelValues(string(c.cfg.ChainID)).Set(float64(result.CommittedThrough))
	metrics.Observe(string(c.cfg.ChainID), "committed", result.Committed, metric.ErrorCount, metric.LastErrorTag, metric.Duration.Seconds())

	return result.CommittedThrough < tip, rateLimited, fatalErr
}

// fetch dispatches GetBlock+GetBlockTransactions pairs in chunks of the
// configured parallelism, collapsing to sequential (chunk size 1) for
// the remainder of the cycle as soon as any RateLimited response is
// observed.
func (c *Collector) fetch(ctx context.Context, positions []domain.Position, tip domain.Position) (map[domain.Position]fetchResult, bool) {
	results := make(map[domain.Position]fetchResult, len(positions))
	var mu sync.Mutex
	rateLimited := false

	parallelism := c.cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	for i := 0; i < len(positions); {
		mu.Lock()
		chunkSize := parallelism
		if rateLimited {
			chunkSize = 1
		}
		mu.Unlock()

		end := i + chunkSize
		if end > len(positions) {
			end = len(positions)
		}
		chunk := positions[i:end]

		var wg sync.WaitGroup
		for _, pos := range chunk {
			wg.Add(1)
			go func(pos domain.Position) {
				defer wg.Done()
				r := c.fetchOne(ctx, pos, tip)
				mu.Lock()
				results[pos] = r
				if rpc.KindOf(r.err) == rpc.RateLimited {
					rateLimited = true
				}
				mu.Unlock()
			}(pos)
		}
		wg.Wait()
		i = end
	}

	return results, rateLimited
}

func (c *Collector) fetchOne(ctx context.Context, pos domain.Position, tip domain.Position) fetchResult {
	block, err := c.cfg.Client.GetBlock(ctx, pos)
	if err != nil {
		switch rpc.KindOf(err) {
		case rpc.Skipped:
			return fetchResult{skipped: true}
		case rpc.NotFound:
			if pos <= tip {
				// the chain advanced past this position between
				// discovery and fetch; treat as retryable.
				return fetchResult{err: rpc.NewError(rpc.Transient, "GetBlock", "", err)}
			}
			return fetchResult{err: err}
		default:
			return fetchResult{err: err}
		}
	}

	txs, err := c.cfg.Client.GetBlockTransactions(ctx, pos, c.cfg.TxLimit)
	if err != nil {
		return fetchResult{err: err}
	}
	return fetchResult{block: block, txs: txs}
}

// buildCommit walks positions in order from the cursor, stopping at the
// first gap (an unresolved error) or after maxSkipRun consecutive empty
// Solana slots, and returns the metric for the cycle plus the highest
// position that can be committed.
func (c *Collector) buildCommit(cycleStart time.Time, positions []domain.Position, results map[domain.Position]fetchResult) (domain.MetricSample, domain.Position, error) {
	c.mu.Lock()
	newPosition := c.cursor.Position
	c.mu.Unlock()

	errCount := 0
	var lastErrorTag string
	var fatalErr error
	skipRun := 0

	for _, pos := range positions {
		r := results[pos]
		if r.err != nil {
			errCount++
			lastErrorTag = string(rpc.KindOf(r.err))
			if rpc.KindOf(r.err) == rpc.Fatal {
				fatalErr = r.err
			}
			break
		}
		if r.skipped {
			skipRun++
			newPosition = pos
			if skipRun >= maxSkipRun {
				break
			}
			continue
		}
		skipRun = 0
		newPosition = pos
	}

	metric := domain.MetricSample{
		ChainID:      c.cfg.ChainID,
		CycleAt:      cycleStart,
		Duration:     time.Since(cycleStart),
		RecordsIn:    len(positions),
		RecordsOut:   int(newPosition) - int(c.counters.Position),
		ErrorCount:   errCount,
		LastErrorTag: lastErrorTag,
	}
	return metric, newPosition, fatalErr
}

// collectBatch re-walks the already-resolved results to build the
// ordered block/tx/quality slices for the prefix ending at newPosition,
// validating each record and tracking the prior block's hash across
// calls for parent-hash consistency checks.
func (c *Collector) collectBatch(positions []domain.Position, results map[domain.Position]fetchResult, newPosition domain.Position) ([]*domain.Block, []*domain.Transaction, []domain.QualityVerdict) {
	var blocks []*domain.Block
	var txs []*domain.Transaction
	var quality []domain.QualityVerdict

	c.mu.Lock()
	prevHash := c.prevHash
	c.mu.Unlock()

	for _, pos := range positions {
		if pos > newPosition {
			break
		}
		r := results[pos]
		if r.skipped || r.block == nil {
			continue
		}

		qv := validate.Block(r.block, prevHash, c.cfg.Mode)
		blocks = append(blocks, r.block)
		quality = append(quality, qv)
		prevHash = r.block.Hash

		for _, tx := range r.txs {
			quality = append(quality, validate.Transaction(tx))
			txs = append(txs, tx)
		}
	}

	c.mu.Lock()
	c.prevHash = prevHash
	c.mu.Unlock()

	return blocks, txs, quality
}

func (c *Collector) publishMetric(m domain.MetricSample) {
	c.mu.Lock()
	c.lastMetric = m
	c.mu.Unlock()
}

func (c *Collector) recordError(err error) {
	c.mu.Lock()
	c.counters.LastError = err.Error()
	c.mu.Unlock()
}

func (c *Collector) loadOrInitCursor(ctx context.Context) (domain.Cursor, error) {
	c.mu.Lock()
	have := c.haveCursor
	cur := c.cursor
	c.mu.Unlock()
	if have {
		return cur, nil
	}

	cur, err := c.cfg.Cursors.Load(ctx, c.cfg.ChainID)
	switch {
	case errors.Is(err, storage.ErrCursorNotFound):
		start := c.cfg.StartPosition
		if c.cfg.Mode == domain.ModeTip {
			tip, tipErr := c.cfg.Client.GetTipHeight(ctx)
			if tipErr != nil {
				return domain.Cursor{}, tipErr
			}
			start = tip
		}
		now := time.Now()
		cur = domain.Cursor{ChainID: c.cfg.ChainID, Position: start, StartedAt: now, Mode: c.cfg.Mode, UpdatedAt: now}
	case err != nil:
		return domain.Cursor{}, err
	}

	c.mu.Lock()
	c.cursor = cur
	c.haveCursor = true
	c.startPosition = cur.Position
	c.counters.Position = cur.Position
	c.mu.Unlock()
	return cur, nil
}

func (c *Collector) recordRateLimit() {
	c.mu.Lock()
	if c.backoff == 0 {
		c.backoff = backoffInitial
	} else {
		c.backoff *= 2
	}
	if c.backoff > backoffMax {
		c.backoff = backoffMax
	}
	c.mu.Unlock()
}

func (c *Collector) resetBackoff() {
	c.mu.Lock()
	c.backoff = 0
	c.mu.Unlock()
}

func (c *Collector) throttleDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.CycleInterval + c.backoff
}

func (c *Collector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State reports the collector's current state, for Status/Health.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counters reports the chain's current position/records/last-error, for
// the Status control-plane endpoint.
func (c *Collector) Counters() domain.ChainCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// SecondsSinceLastCommit reports how long it has been since this chain's
// last successful commit, for the Health classification. It returns -1
// if the collector has never committed.
func (c *Collector) SecondsSinceLastCommit() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastCommitAt.IsZero() {
		return -1
	}
	return time.Since(c.lastCommitAt).Seconds()
}

// RecentErrorCount reports the error count from the most recently
// published cycle metric, used as a proxy for the Health endpoint's
// 5-minute error rate classification.
func (c *Collector) RecentErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMetric.ErrorCount
}

// BackfillProgress reports start/current/target/percent for this chain.
func (c *Collector) BackfillProgress() (start, current, target domain.Position, percent float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start = c.startPosition
	current = c.cursor.Position
	target = c.lastTip
	if target <= start {
		return start, current, target, 100
	}
	percent = float64(current-start) / float64(target-start) * 100
	if percent > 100 {
		percent = 100
	}
	return start, current, target, percent
}
