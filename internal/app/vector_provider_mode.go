package app

import "strings"

type VectorProvider string

const (
	// VectorProviderMemory is the in-process flat index persisted under
	// INDEX_DIR. It is the default and needs no external service.
	VectorProviderMemory VectorProvider = "memory"
	// VectorProviderQdrant stores vectors in a remote Qdrant collection
	// configured through QDRANT_URL / QDRANT_COLLECTION.
	VectorProviderQdrant VectorProvider = "qdrant"
)

// ParseVectorProvider normalizes a raw VECTOR_PROVIDER value. The empty
// string maps to the memory default; unknown values report ok=false so
// the bootstrap can fail with a typed error instead of guessing.
func ParseVectorProvider(raw string) (VectorProvider, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(VectorProviderMemory):
		return VectorProviderMemory, true
	case string(VectorProviderQdrant):
		return VectorProviderQdrant, true
	default:
		return "", false
	}
}
