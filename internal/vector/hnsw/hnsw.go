// Package hnsw implements vector.Index in-process on coder/hnsw, for local
// use without a Qdrant server. The graph and its metadata persist to a pair
// of files: <path> for the graph and <path>.meta for ids and payloads.
package hnsw

import (
	"bufio"
	"cmp"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/coder/hnsw"

	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("hnsw: index is closed")

// Index is an in-memory cosine-similarity index.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	ids     map[string]uint64
	keys    map[uint64]string
	meta    map[string]vector.Metadata
	nextKey uint64

	closed bool
}

// snapshot is the gob-encoded sidecar next to the exported graph.
type snapshot struct {
	Dims    int
	IDs     map[string]uint64
	Meta    map[string]vector.Metadata
	NextKey uint64
}

// New creates an empty index for vectors of length dims.
func New(dims int) *Index {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return &Index{
		graph: g,
		dims:  dims,
		ids:   make(map[string]uint64),
		keys:  make(map[uint64]string),
		meta:  make(map[string]vector.Metadata),
	}
}

// Open loads an index saved with Save. A missing file yields an empty index
// of dims, so a fresh workspace needs no setup.
func Open(path string, dims int) (*Index, error) {
	idx := New(dims)
	f, err := os.Open(path + ".meta")
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open hnsw metadata: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	if dims > 0 && snap.Dims != dims {
		return nil, &vector.DimensionError{Expected: snap.Dims, Got: dims}
	}

	gf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hnsw graph: %w", err)
	}
	defer gf.Close()
	if err := idx.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, fmt.Errorf("import hnsw graph: %w", err)
	}

	idx.dims = snap.Dims
	idx.ids = snap.IDs
	idx.meta = snap.Meta
	idx.nextKey = snap.NextKey
	for id, key := range idx.ids {
		idx.keys[key] = id
	}
	if idx.meta == nil {
		idx.meta = make(map[string]vector.Metadata)
	}
	return idx, nil
}

// Save writes the graph and sidecar atomically (temp file plus rename).
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error { return x.graph.Export(f) }); err != nil {
		return fmt.Errorf("export hnsw graph: %w", err)
	}
	snap := snapshot{Dims: x.dims, IDs: x.ids, Meta: x.meta, NextKey: x.nextKey}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(snap) }); err != nil {
		return fmt.Errorf("encode hnsw metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("close temp file", slog.String("path", tmp), slog.String("error", cerr.Error()))
		}
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Upsert adds records. Replacing an id orphans its old graph node instead of
// deleting it, since coder/hnsw can break when its last node is removed.
func (x *Index) Upsert(_ context.Context, records []vector.Record) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	for _, rec := range records {
		if len(rec.Vector) != x.dims {
			return &vector.DimensionError{Expected: x.dims, Got: len(rec.Vector)}
		}
	}

	for _, rec := range records {
		if old, ok := x.ids[rec.ID]; ok {
			delete(x.keys, old)
		}
		key := x.nextKey
		x.nextKey++

		vec := make([]float32, len(rec.Vector))
		copy(vec, rec.Vector)
		normalize(vec)
		x.graph.Add(hnsw.MakeNode(key, vec))

		x.ids[rec.ID] = key
		x.keys[key] = rec.ID
		x.meta[rec.ID] = rec.Metadata
	}
	return nil
}

// Query returns up to topK live matches. Orphaned nodes are filtered out, so
// the search over-fetches by the orphan count to still fill topK.
func (x *Index) Query(_ context.Context, vec []float32, topK int) ([]vector.Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrClosed
	}
	if len(vec) != x.dims {
		return nil, &vector.DimensionError{Expected: x.dims, Got: len(vec)}
	}
	if topK <= 0 || x.graph.Len() == 0 {
		return []vector.Match{}, nil
	}

	q := make([]float32, len(vec))
	copy(q, vec)
	normalize(q)

	orphans := x.graph.Len() - len(x.ids)
	nodes := x.graph.Search(q, topK+orphans)

	out := make([]vector.Match, 0, topK)
	for _, n := range nodes {
		id, ok := x.keys[n.Key]
		if !ok {
			continue
		}
		dist := x.graph.Distance(q, n.Value)
		out = append(out, vector.Match{ID: id, Score: 1 - dist/2})
	}
	slices.SortStableFunc(out, func(a, b vector.Match) int { return cmp.Compare(b.Score, a.Score) })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (x *Index) Fetch(_ context.Context, ids []string) (map[string]vector.Metadata, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrClosed
	}
	out := make(map[string]vector.Metadata, len(ids))
	for _, id := range ids {
		if m, ok := x.meta[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

// Delete removes ids lazily; see Upsert.
func (x *Index) Delete(_ context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if key, ok := x.ids[id]; ok {
			delete(x.keys, key)
			delete(x.ids, id)
			delete(x.meta, id)
		}
	}
	return nil
}

func (x *Index) Dimensions(context.Context) (int, error) {
	return x.dims, nil
}

// EnsureCollection checks dims against the index; an in-process index has
// nothing to create.
func (x *Index) EnsureCollection(_ context.Context, dims int) error {
	if dims != x.dims {
		return &vector.DimensionError{Expected: x.dims, Got: dims}
	}
	return nil
}

// Len reports the number of live records.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	return nil
}

func normalize(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

var (
	_ vector.Index       = (*Index)(nil)
	_ vector.Provisioner = (*Index)(nil)
)
