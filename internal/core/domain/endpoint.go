package domain

// Endpoint is one RPC server URL serving a chain.
type Endpoint struct {
	Chain ChainID
	URL   string
}

func (e Endpoint) String() string {
	return e.URL
}

// IsZero reports whether no endpoint has been selected.
func (e Endpoint) IsZero() bool {
	return e.URL == ""
}
