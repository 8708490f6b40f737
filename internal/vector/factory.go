package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search with a compact binary file format.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeChromem uses chromem-go collections persisted as a gob export.
	IndexTypeChromem IndexType = "chromem"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "memory" (default), "chromem".
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeChromem:
		return NewChromemIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, chromem)", indexType)
	}
}

// FileName returns the file name an index of the given type is saved under.
func FileName(indexType string) string {
	switch IndexType(indexType) {
	case IndexTypeChromem:
		return "vectors.gob.gz"
	default:
		return "vectors.bin"
	}
}
