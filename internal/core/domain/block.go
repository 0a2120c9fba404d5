package domain

import "time"

// Position is the engine's chain-agnostic monotonic index of a block or
// slot: height for Bitcoin, slot number for Solana.
type Position uint64

// BlockMeta carries the handful of chain-specific fields that don't fit a
// shared column set. Only the fields relevant to the block's chain are set.
type BlockMeta struct {
	Difficulty  float64  // Bitcoin
	Nonce       uint64   // Bitcoin
	MerkleRoot  string   // Bitcoin
	ParentSlot  Position // Solana
	BlockHeight Position // Solana; compared against Position (the slot) for consistency
}

// Block is one committed unit of chain progression. Its natural key is
// (ChainID, Position).
type Block struct {
	ChainID    ChainID
	Position   Position
	Hash       string
	ParentHash string
	Timestamp  time.Time // producer timestamp, chain-reported
	Size       int64
	TxCount    int
	Meta       BlockMeta
	Source     string // which upstream supplied this record, e.g. "local", "public", "rpc"
	IngestedAt time.Time
}
