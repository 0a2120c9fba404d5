package validate

import (
	"testing"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
)

func TestBlock_OKOnCleanRecord(t *testing.T) {
	b := &domain.Block{
		ChainID:    domain.ChainBitcoin,
		Position:   100,
		Hash:       "000000000000000000000000000000000000000000000000000000000000000a",
		ParentHash: "09",
		Timestamp:  time.Now(),
	}
	// trim to 64 hex chars
	b.Hash = b.Hash[len(b.Hash)-64:]

	v := Block(b, "", domain.ModeBackfill)
	if v.Level != domain.QualityOK {
		t.Errorf("expected ok verdict, got %s with issues %v", v.Level, v.Issues)
	}
}

func TestBlock_MissingHashWarns(t *testing.T) {
	b := &domain.Block{ChainID: domain.ChainBitcoin, Position: 1, Timestamp: time.Now()}
	v := Block(b, "", domain.ModeBackfill)
	if v.Level != domain.QualityWarn {
		t.Errorf("expected warn verdict, got %s", v.Level)
	}
}

func TestBlock_ParentHashMismatchIsSuspectNotBlocking(t *testing.T) {
	b := &domain.Block{
		ChainID:    domain.ChainBitcoin,
		Position:   101,
		Hash:       "111111111111111111111111111111111111111111111111111111111111111a"[0:64],
		ParentHash: "aaaa",
		Timestamp:  time.Now(),
	}
	v := Block(b, "bbbb", domain.ModeBackfill)
	if v.Level != domain.QualitySuspect {
		t.Errorf("expected suspect verdict on parent hash mismatch, got %s", v.Level)
	}
	// Validation never blocks insertion — callers always get a verdict, never an error.
}

func TestBlock_StaleTipTimestampWarns(t *testing.T) {
	b := &domain.Block{
		ChainID:   domain.ChainBitcoin,
		Position:  1,
		Hash:      "222222222222222222222222222222222222222222222222222222222222222a"[0:64],
		Timestamp: time.Now().Add(-3 * time.Hour),
	}
	v := Block(b, "", domain.ModeTip)
	if v.Level != domain.QualityWarn {
		t.Errorf("expected warn for stale tip timestamp, got %s", v.Level)
	}
}

func TestBlock_SolanaBlockHeightExceedsSlotIsSuspect(t *testing.T) {
	b := &domain.Block{
		ChainID:  domain.ChainSolana,
		Position: 100,
		Hash:     "3sZ8iH1Y3q8X2bK9vL7mN4pQ6rT5uW1xY2zA3bC4dE5",
		Meta:     domain.BlockMeta{BlockHeight: 200},
	}
	v := Block(b, "", domain.ModeTip)
	if v.Level != domain.QualitySuspect {
		t.Errorf("expected suspect verdict, got %s", v.Level)
	}
}

func TestTransaction_NegativeFeeWarns(t *testing.T) {
	tx := &domain.Transaction{ChainID: domain.ChainBitcoin, TxID: "444444444444444444444444444444444444444444444444444444444444444a"[0:64], Fee: -1}
	v := Transaction(tx)
	if v.Level != domain.QualityWarn {
		t.Errorf("expected warn verdict, got %s", v.Level)
	}
}
