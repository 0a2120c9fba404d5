package domain

import "time"

// Cursor is the resume pointer for one chain: the last position committed
// atomically with its records.
type Cursor struct {
	ChainID   ChainID
	Position  Position
	StartedAt time.Time
	Mode      CollectionMode
	UpdatedAt time.Time
}
