// Package validate implements the pure per-record quality checks the
// engine runs before handing a record to the Sink. Validation never
// drops or blocks a record — it only annotates it with a QualityVerdict
// for the audit stream.
package validate

import (
	"regexp"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
)

var (
	bitcoinHashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)
	base58Re      = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// tipFreshnessWindow bounds how far a tip-mode block's timestamp may drift
// from wall clock before it's flagged stale.
const tipFreshnessWindow = 2 * time.Hour

// Block runs completeness, accuracy, consistency, and format checks
// against a block. prevHash is the hash of the previously committed
// block for the same chain, if known; pass "" when unavailable — the
// parent-hash check is then skipped rather than failed.
func Block(b *domain.Block, prevHash string, mode domain.CollectionMode) domain.QualityVerdict {
	v := domain.QualityVerdict{ChainID: b.ChainID, Position: b.Position, Level: domain.QualityOK}

	// Completeness.
	if b.Hash == "" {
		v.Add(domain.QualityWarn, "missing_hash")
	}
	if b.Timestamp.IsZero() {
		v.Add(domain.QualityWarn, "missing_timestamp")
	}

	// Accuracy.
	if b.Size < 0 {
		v.Add(domain.QualityWarn, "negative_size")
	}

	// Format.
	if b.Hash != "" && !validHash(b.ChainID, b.Hash) {
		v.Add(domain.QualityWarn, "malformed_hash")
	}

	// Consistency.
	if b.ChainID == domain.ChainSolana && uint64(b.Meta.BlockHeight) > uint64(b.Position) {
		v.Add(domain.QualitySuspect, "block_height_exceeds_slot")
	}
	if mode == domain.ModeTip && !b.Timestamp.IsZero() {
		drift := time.Since(b.Timestamp)
		if drift < 0 {
			drift = -drift
		}
		if drift > tipFreshnessWindow {
			v.Add(domain.QualityWarn, "stale_timestamp")
		}
	}
	if prevHash != "" && b.ParentHash != "" && b.ParentHash != prevHash {
		// A reorg monitor is out of scope; this only downgrades the
		// verdict, it never blocks the chain.
		v.Add(domain.QualitySuspect, "parent_hash_mismatch")
	}

	return v
}

// Transaction runs completeness, accuracy, and format checks against a
// transaction.
func Transaction(t *domain.Transaction) domain.QualityVerdict {
	v := domain.QualityVerdict{ChainID: t.ChainID, Position: t.Position, Level: domain.QualityOK}

	if t.TxID == "" {
		v.Add(domain.QualityWarn, "missing_tx_id")
	}
	if t.Fee < 0 {
		v.Add(domain.QualityWarn, "negative_fee")
	}
	if t.Size < 0 {
		v.Add(domain.QualityWarn, "negative_size")
	}
	if t.TxID != "" && !validHash(t.ChainID, t.TxID) {
		v.Add(domain.QualityWarn, "malformed_tx_id")
	}

	return v
}

func validHash(chain domain.ChainID, hash string) bool {
	switch chain {
	case domain.ChainBitcoin:
		return bitcoinHashRe.MatchString(hash)
	case domain.ChainSolana:
		return base58Re.MatchString(hash)
	default:
		return true
	}
}

