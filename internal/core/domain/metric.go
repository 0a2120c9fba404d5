package domain

import "time"

// MetricSample summarizes one collector cycle for telemetry and the
// control-plane status endpoint.
type MetricSample struct {
	ChainID      ChainID
	CycleAt      time.Time
	Duration     time.Duration
	RecordsIn    int // positions attempted
	RecordsOut   int // positions committed
	ErrorCount   int
	LastErrorTag string
}
