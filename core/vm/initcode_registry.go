package vm

import (
	"github.com/globe-project/globe-evmone/core/types"
	"github.com/globe-project/globe-evmone/crypto"
)

// InitcodeRegistry is the per-transaction lookup table for TXCREATE: every
// initcode supplied in an initcodes-type transaction, keyed by its keccak256
// hash. It is built once at transaction start and is read-only during
// execution. For duplicate hashes the first occurrence wins.
type InitcodeRegistry struct {
	ordered [][]byte
	byHash  map[types.Hash][]byte
}

// NewInitcodeRegistry indexes the transaction's initcode list. The caller is
// expected to have admission-validated the list already (count and size
// limits); the registry itself imposes no limits.
func NewInitcodeRegistry(initcodes [][]byte) *InitcodeRegistry {
	r := &InitcodeRegistry{
		ordered: initcodes,
		byHash:  make(map[types.Hash][]byte, len(initcodes)),
	}
	for _, ic := range initcodes {
		h := crypto.Keccak256Hash(ic)
		if _, ok := r.byHash[h]; !ok {
			r.byHash[h] = ic
		}
	}
	return r
}

// Get returns the initcode with the given hash.
func (r *InitcodeRegistry) Get(hash types.Hash) ([]byte, bool) {
	if r == nil {
		return nil, false
	}
	ic, ok := r.byHash[hash]
	return ic, ok
}

// Len returns the number of initcodes carried by the transaction, including
// duplicates.
func (r *InitcodeRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ordered)
}
