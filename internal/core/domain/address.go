package domain

import "strings"

// NormalizeAddress lower-cases an address so comparisons are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// AddressSet is a set of normalized addresses.
type AddressSet map[string]struct{}

// NewAddressSet builds a set from raw addresses, dropping empty entries.
func NewAddressSet(addrs ...string) AddressSet {
	set := make(AddressSet, len(addrs))
	for _, a := range addrs {
		if n := NormalizeAddress(a); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Contains reports whether addr (in any case) is in the set.
func (s AddressSet) Contains(addr string) bool {
	if addr == "" {
		return false
	}
	_, ok := s[NormalizeAddress(addr)]
	return ok
}

func (s AddressSet) Len() int {
	return len(s)
}
