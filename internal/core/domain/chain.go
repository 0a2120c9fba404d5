package domain

// ChainID identifies one of the two collectors the engine runs.
type ChainID string

const (
	ChainBitcoin ChainID = "bitcoin"
	ChainSolana  ChainID = "solana"
)

// CollectionMode controls where a chain's collector starts when no cursor
// exists yet.
type CollectionMode string

const (
	ModeTip      CollectionMode = "tip"
	ModeBackfill CollectionMode = "backfill"
)
