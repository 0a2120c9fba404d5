package postgres

import (
	"testing"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
)

func TestTableNames(t *testing.T) {
	cases := []struct {
		chain      domain.ChainID
		wantBlocks string
		wantTxs    string
	}{
		{domain.ChainBitcoin, "blocks_btc", "txs_btc"},
		{domain.ChainSolana, "blocks_sol", "txs_sol"},
	}
	for _, c := range cases {
		blocks, txs, err := tableNames(c.chain)
		if err != nil {
			t.Fatalf("unexpected error for chain %s: %v", c.chain, err)
		}
		if blocks != c.wantBlocks || txs != c.wantTxs {
			t.Errorf("chain %s: got (%s, %s), want (%s, %s)", c.chain, blocks, txs, c.wantBlocks, c.wantTxs)
		}
	}
}

func TestTableNames_UnknownChain(t *testing.T) {
	if _, _, err := tableNames("dogecoin"); err == nil {
		t.Error("expected error for unknown chain")
	}
}
