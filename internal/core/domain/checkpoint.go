package domain

import "time"

// Checkpoint is the highest block fully processed for a (chain, currency) pair.
type Checkpoint struct {
	Chain     ChainID
	Currency  string
	Block     uint64
	UpdatedAt time.Time
}
