package domain

import "time"

// ChainID is the internal code of a monitored network, e.g. "ETX".
type ChainID string

// ChainType selects the adapter that knows how to talk to a chain.
type ChainType string

const (
	ChainTypeEVM ChainType = "evm"
)

const (
	ChainETX ChainID = "ETX"
	ChainETH ChainID = "ETH"
)

// DefaultBlockTime is used when a chain config does not declare one.
const DefaultBlockTime = 2 * time.Second
