package solana

import (
	"encoding/json"
	"testing"

	"github.com/maruthiprithivi/chainwatch/internal/rpc"
)

func TestClassifySkippedSlot(t *testing.T) {
	err := rpc.ClassifyJSONRPCError("getBlock", "rpc", &rpc.JSONRPCError{Code: skippedSlotCode, Message: "Slot 1001 was skipped"})
	// ClassifyJSONRPCError doesn't know about the Solana-specific code;
	// the client's call() method special-cases it before reaching
	// ClassifyJSONRPCError, so this just documents the boundary.
	if rpc.KindOf(err) == rpc.Skipped {
		t.Fatal("ClassifyJSONRPCError should not itself classify Skipped — that's the client's responsibility")
	}
}

func TestSolanaBlock_FailedTransactionStatus(t *testing.T) {
	raw := `{
		"blockhash": "abc",
		"previousBlockhash": "def",
		"parentSlot": 99,
		"blockTime": 1700000000,
		"transactions": [
			{"transaction": {"signatures": ["sig1"]}, "meta": {"err": null, "fee": 5000}},
			{"transaction": {"signatures": ["sig2"]}, "meta": {"err": {"InstructionError": [0, "Custom"]}, "fee": 5000}}
		]
	}`

	var blk solanaBlock
	if err := json.Unmarshal([]byte(raw), &blk); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	txs := blk.transactions(1000, 0)
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].Status != "success" {
		t.Errorf("expected tx 0 success, got %s", txs[0].Status)
	}
	if txs[1].Status != "failed" {
		t.Errorf("expected tx 1 failed, got %s", txs[1].Status)
	}
}

func TestSolanaBlock_ToDomainCarriesBlockHeight(t *testing.T) {
	raw := `{
		"blockhash": "abc",
		"previousBlockhash": "def",
		"parentSlot": 99,
		"blockHeight": 950,
		"blockTime": 1700000000
	}`

	var blk solanaBlock
	if err := json.Unmarshal([]byte(raw), &blk); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	b := blk.toDomain(1000)
	if b.Meta.BlockHeight != 950 {
		t.Errorf("expected block height 950, got %d", b.Meta.BlockHeight)
	}
}

func TestSolanaBlock_RespectsLimit(t *testing.T) {
	raw := `{
		"blockhash": "abc",
		"previousBlockhash": "def",
		"parentSlot": 99,
		"transactions": [
			{"transaction": {"signatures": ["sig1"]}, "meta": {"fee": 1}},
			{"transaction": {"signatures": ["sig2"]}, "meta": {"fee": 1}},
			{"transaction": {"signatures": ["sig3"]}, "meta": {"fee": 1}}
		]
	}`

	var blk solanaBlock
	if err := json.Unmarshal([]byte(raw), &blk); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	txs := blk.transactions(1000, 2)
	if len(txs) != 2 {
		t.Fatalf("expected limit of 2 transactions, got %d", len(txs))
	}
}
