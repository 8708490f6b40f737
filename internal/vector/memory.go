package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/hyperjump/kansa/pkg/utils"
)

// fileMagic prefixes every file written by MemoryIndex.Save.
var fileMagic = [4]byte{'K', 'V', 'E', 'C'}

const fileVersion uint16 = 1

var errBadFile = errors.New("not a memory index file")

// MemoryIndex is a flat index scoring every stored vector by cosine
// similarity. Rows live back to back in one slice; row i spans
// data[i*dims:(i+1)*dims].
type MemoryIndex struct {
	mu   sync.RWMutex
	dims int
	ids  []string
	data []float32
	row  map[string]int
}

// NewMemoryIndex creates an empty flat index for vectors of length dims.
func NewMemoryIndex(dims int) (*MemoryIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dims)
	}
	return &MemoryIndex{dims: dims, row: make(map[string]int)}, nil
}

func (m *MemoryIndex) Type() string    { return string(IndexTypeMemory) }
func (m *MemoryIndex) Dimensions() int { return m.dims }

func (m *MemoryIndex) vector(i int) []float32 {
	return m.data[i*m.dims : (i+1)*m.dims]
}

func (m *MemoryIndex) checkDims(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != m.dims {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), m.dims)
		}
	}
	return nil
}

// Add copies vectors into the index. A known ID is updated in place.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("got %d ids for %d vectors", len(ids), len(vectors))
	}
	if err := m.checkDims(vectors...); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if r, ok := m.row[id]; ok {
			copy(m.vector(r), vectors[i])
			continue
		}
		m.row[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.data = append(m.data, vectors[i]...)
	}
	return nil
}

// Search ranks every row by cosine similarity to query. Equal scores keep
// insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if err := m.checkDims(query); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}

	order := make([]int, len(m.ids))
	scores := make([]float64, len(m.ids))
	for i := range m.ids {
		order[i] = i
		scores[i] = utils.Cosine(query, m.vector(i))
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})

	k = min(k, len(order))
	out := make([]*VectorResult, k)
	for n, i := range order[:k] {
		out[n] = &VectorResult{ID: m.ids[i], Score: scores[i], Vector: slices.Clone(m.vector(i))}
	}
	return out, nil
}

// Remove drops the given IDs and compacts the remaining rows in order.
// Unknown IDs are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		if r, ok := m.row[id]; ok {
			drop[r] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}
	keep := 0
	for i, id := range m.ids {
		if drop[i] {
			delete(m.row, id)
			continue
		}
		if keep != i {
			m.ids[keep] = id
			copy(m.data[keep*m.dims:(keep+1)*m.dims], m.vector(i))
			m.row[id] = keep
		}
		keep++
	}
	m.ids = m.ids[:keep]
	m.data = m.data[:keep*m.dims]
	return nil
}

// Save writes the index to path, creating parent directories. Layout, little
// endian: magic (4), version (2), dims (4), count (4), then count records of
// idLen (2), id, dims float32 values.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := []any{fileMagic, fileVersion, uint32(m.dims), uint32(len(m.ids))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	rec := make([]byte, 4*m.dims)
	for i, id := range m.ids {
		if len(id) > math.MaxUint16 {
			return fmt.Errorf("id too long: %d bytes", len(id))
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(id))); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.WriteString(id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		for j, x := range m.vector(i) {
			binary.LittleEndian.PutUint32(rec[4*j:], math.Float32bits(x))
		}
		if _, err := w.Write(rec); err != nil {
			return fmt.Errorf("write vector %q: %w", id, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	return f.Sync()
}

// Load replaces the contents with the file at path. The file must have been
// written for the same dimensions. A failed load leaves the index untouched.
func (m *MemoryIndex) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var (
		magic   [4]byte
		version uint16
		dims    uint32
		count   uint32
	)
	for _, v := range []any{&magic, &version, &dims, &count} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read header: %w", err)
		}
	}
	if magic != fileMagic {
		return fmt.Errorf("%s: %w", path, errBadFile)
	}
	if version != fileVersion {
		return fmt.Errorf("unsupported index file version %d", version)
	}
	if int(dims) != m.dims {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dims, m.dims)
	}

	ids := make([]string, 0, count)
	data := make([]float32, 0, int(count)*m.dims)
	row := make(map[string]int, count)
	rec := make([]byte, 4*m.dims)
	for i := 0; i < int(count); i++ {
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return fmt.Errorf("read record %d: %w", i, err)
		}
		id := make([]byte, n)
		if _, err := io.ReadFull(r, id); err != nil {
			return fmt.Errorf("read record %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, rec); err != nil {
			return fmt.Errorf("read record %d: %w", i, err)
		}
		for j := 0; j < m.dims; j++ {
			data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(rec[4*j:])))
		}
		row[string(id)] = len(ids)
		ids = append(ids, string(id))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids, m.data, m.row = ids, data, row
	return nil
}

// Size returns the number of stored vectors.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

func (m *MemoryIndex) Close() error { return nil }
