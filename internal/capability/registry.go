// Package capability maps key-pair algorithms to the signature algorithms and
// key sizes they support.
//
// A Registry is built once from two tabular sources and is immutable
// afterwards, so it can be shared freely between goroutines.
package capability

import (
	"slices"
	"sort"
)

// SignatureEntry is one row of the signature algorithm table.
type SignatureEntry struct {
	KeyPairAlgorithm   string
	SignatureAlgorithm string
}

// KeySizeEntry is one row of the key size table.
// A nil KeySize stands for a blank cell: the algorithm has no selectable size.
type KeySizeEntry struct {
	Algorithm string
	KeySize   *int
}

// Registry answers capability queries for key-pair algorithms.
type Registry struct {
	signatures map[string][]string
	keySizes   map[string][]int
	algorithms []string
}

// Build indexes the given entries.
//
// Signature algorithms are grouped per key-pair algorithm, deduplicated and
// sorted by byte order. Key sizes are grouped per algorithm, deduplicated and
// sorted numerically; rows without a key size register the algorithm with an
// empty size set.
func Build(sigs []SignatureEntry, sizes []KeySizeEntry) *Registry {
	r := &Registry{
		signatures: make(map[string][]string),
		keySizes:   make(map[string][]int),
	}
	seen := make(map[string]bool)

	for _, e := range sigs {
		if !slices.Contains(r.signatures[e.KeyPairAlgorithm], e.SignatureAlgorithm) {
			r.signatures[e.KeyPairAlgorithm] = append(r.signatures[e.KeyPairAlgorithm], e.SignatureAlgorithm)
		}
		seen[e.KeyPairAlgorithm] = true
	}
	for _, e := range sizes {
		if _, ok := r.keySizes[e.Algorithm]; !ok {
			r.keySizes[e.Algorithm] = nil
		}
		if e.KeySize != nil && !slices.Contains(r.keySizes[e.Algorithm], *e.KeySize) {
			r.keySizes[e.Algorithm] = append(r.keySizes[e.Algorithm], *e.KeySize)
		}
		seen[e.Algorithm] = true
	}

	for alg := range r.signatures {
		sort.Strings(r.signatures[alg])
	}
	for alg := range r.keySizes {
		sort.Ints(r.keySizes[alg])
	}
	for alg := range seen {
		r.algorithms = append(r.algorithms, alg)
	}
	sort.Strings(r.algorithms)

	return r
}

// SignatureAlgorithmsFor returns the signature algorithms usable with the
// key-pair algorithm. Unknown algorithms yield an empty result.
func (r *Registry) SignatureAlgorithmsFor(keyPairAlgorithm string) []string {
	return slices.Clone(r.signatures[keyPairAlgorithm])
}

// KeySizesFor returns the key sizes registered for the algorithm.
// Unknown algorithms and algorithms listed only with blank sizes yield an
// empty result; callers fall back to provider defaults in that case.
func (r *Registry) KeySizesFor(algorithm string) []int {
	return slices.Clone(r.keySizes[algorithm])
}

// KeyPairAlgorithms returns every algorithm named in either table.
func (r *Registry) KeyPairAlgorithms() []string {
	return slices.Clone(r.algorithms)
}

// DefaultSignatureAlgorithm returns the first signature algorithm for the
// key-pair algorithm, or "" if none is registered.
func (r *Registry) DefaultSignatureAlgorithm(keyPairAlgorithm string) string {
	if sigs := r.signatures[keyPairAlgorithm]; len(sigs) > 0 {
		return sigs[0]
	}
	return ""
}

// Knows reports whether the registry lists signature algorithms for the key-pair algorithm.
func (r *Registry) Knows(keyPairAlgorithm string) bool {
	return len(r.signatures[keyPairAlgorithm]) > 0
}

// Supports reports whether signatureAlgorithm is registered for keyPairAlgorithm.
func (r *Registry) Supports(keyPairAlgorithm, signatureAlgorithm string) bool {
	_, found := slices.BinarySearch(r.signatures[keyPairAlgorithm], signatureAlgorithm)
	return found
}
