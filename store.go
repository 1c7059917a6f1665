package cropsight

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Prototype is the mean embedding representing one known class, built from a
// handful of exemplar images. Prototypes are created by the Learner and are
// read-only afterwards.
type Prototype struct {
	Label       string
	Vector      []float32
	SampleCount int
	CreatedAt   time.Time
	EstAccuracy float64
}

// PrototypeStore holds one prototype per class label. Labels are unique
// case-insensitively. Reads must be safe while a Put is in flight elsewhere;
// two racing Puts of the same label leave exactly one winner, the loser gets
// a *DuplicateClassError.
type PrototypeStore interface {
	// Get returns the prototype for label, or ErrNotFound.
	Get(ctx context.Context, label string) (*Prototype, error)

	// Put inserts a new prototype. Returns *DuplicateClassError if the label
	// already exists under case-insensitive comparison.
	Put(ctx context.Context, p *Prototype) error

	// All returns a snapshot of every stored prototype. Iteration order is
	// unspecified.
	All(ctx context.Context) ([]*Prototype, error)
}

// MemStore is an in-memory PrototypeStore. Useful for tests and for running
// without a database file.
type MemStore struct {
	mu     sync.RWMutex
	protos map[string]*Prototype // keyed by lowercased label
}

func NewMemStore() *MemStore {
	return &MemStore{protos: make(map[string]*Prototype)}
}

func (m *MemStore) Get(ctx context.Context, label string) (*Prototype, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.protos[strings.ToLower(label)]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *MemStore) Put(ctx context.Context, p *Prototype) error {
	key := strings.ToLower(p.Label)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.protos[key]; ok {
		return &DuplicateClassError{Label: p.Label}
	}

	// Stored prototypes are immutable, so clone the vector to decouple from
	// the caller's slice.
	clone := *p
	clone.Vector = append([]float32(nil), p.Vector...)
	m.protos[key] = &clone
	return nil
}

func (m *MemStore) All(ctx context.Context) ([]*Prototype, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Prototype, 0, len(m.protos))
	for _, p := range m.protos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}
