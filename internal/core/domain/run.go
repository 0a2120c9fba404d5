package domain

import (
	"time"

	"github.com/google/uuid"
)

// StopReason records why a CollectionRun ended.
type StopReason string

const (
	StopManual     StopReason = "manual"
	StopTimeBudget StopReason = "time_budget"
	StopSizeBudget StopReason = "size_budget"
	StopFatal      StopReason = "fatal"
)

// ChainCounters is the per-chain slice of a CollectionRun's bookkeeping,
// surfaced verbatim by the Status control-plane endpoint.
type ChainCounters struct {
	Position   Position
	Records    int64
	RatePerSec float64
	LastError  string
}

// CollectionRun is the supervisor-level singleton describing the current or
// most recent run. Exactly one is live at a time within a process. RunID
// distinguishes one Start/Stop cycle's log lines from the next when a
// process restarts mid-run.
type CollectionRun struct {
	RunID      uuid.UUID
	IsRunning  bool
	StartedAt  time.Time
	StoppedAt  time.Time
	StopReason StopReason
	Chains     map[ChainID]*ChainCounters
}
