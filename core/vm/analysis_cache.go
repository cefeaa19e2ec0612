package vm

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/globe-project/globe-evmone/core/types"
)

// analysisCacheSize bounds the number of cached analyses. An analysis is a
// few hundred bytes plus the padded code, so this keeps the cache well under
// typical block-processing working sets.
const analysisCacheSize = 4096

// AnalysisCache memoizes code analyses by code hash. Contracts are analyzed
// once per code blob rather than once per call frame.
type AnalysisCache struct {
	cache *lru.Cache[types.Hash, *CodeAnalysis]
}

// NewAnalysisCache returns a cache with the default size.
func NewAnalysisCache() *AnalysisCache {
	c, _ := lru.New[types.Hash, *CodeAnalysis](analysisCacheSize)
	return &AnalysisCache{cache: c}
}

// Analyze returns the cached analysis for codeHash, analyzing and caching on
// miss. The zero hash is never cached (unknown-code sentinel).
func (ac *AnalysisCache) Analyze(rules ForkRules, codeHash types.Hash, code []byte) (*CodeAnalysis, error) {
	if ac != nil && !codeHash.IsZero() {
		if a, ok := ac.cache.Get(codeHash); ok {
			return a, nil
		}
	}
	a, err := Analyze(rules, code)
	if err != nil {
		return nil, err
	}
	if ac != nil && !codeHash.IsZero() {
		ac.cache.Add(codeHash, a)
	}
	return a, nil
}
