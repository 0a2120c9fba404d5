package domain

// QualityLevel is the outcome of validating one record. It is informational
// only: a bad verdict is persisted for audit but never blocks insertion.
type QualityLevel string

const (
	QualityOK      QualityLevel = "ok"
	QualityWarn    QualityLevel = "warn"
	QualitySuspect QualityLevel = "suspect"
)

// QualityVerdict is the result of running the validator against one block
// or transaction record.
type QualityVerdict struct {
	ChainID  ChainID
	Position Position
	Level    QualityLevel
	Issues   []string // ordered list of issue tags, e.g. "missing_hash", "stale_timestamp"
}

// OK reports whether the verdict carries no issues worth surfacing.
func (v QualityVerdict) OK() bool {
	return v.Level == QualityOK
}

var qualityRank = map[QualityLevel]int{QualityOK: 0, QualityWarn: 1, QualitySuspect: 2}

// Add escalates the verdict to at least level and appends an issue tag.
// It never downgrades a verdict already at a higher level.
func (v *QualityVerdict) Add(level QualityLevel, issue string) {
	if qualityRank[level] > qualityRank[v.Level] {
		v.Level = level
	}
	v.Issues = append(v.Issues, issue)
}
