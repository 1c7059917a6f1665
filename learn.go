package cropsight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cropsight/cropsight/encoder"
)

// Exemplar count bounds for learning a new class.
const (
	MinExemplars = 5
	MaxExemplars = 10
)

// Learner builds a prototype for a new class from exemplar images: one
// embedding per exemplar, averaged element-wise. Exemplars embed concurrently
// but a single failure aborts the whole operation; partial prototypes are
// never persisted.
type Learner struct {
	enc   encoder.Encoder
	store PrototypeStore
}

func NewLearner(enc encoder.Encoder, store PrototypeStore) *Learner {
	return &Learner{enc: enc, store: store}
}

// Learn registers a new class from 5 to 10 exemplar images and returns the
// created prototype. A label that already exists is rejected with
// *DuplicateClassError and the existing prototype is left as-is.
func (l *Learner) Learn(ctx context.Context, label string, images [][]byte) (*Prototype, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, &ValidationError{Reason: "class label is empty"}
	}
	if n := len(images); n < MinExemplars || n > MaxExemplars {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("need %d-%d exemplar images, got %d", MinExemplars, MaxExemplars, n),
		}
	}

	// Check the label up front for a friendly error. The store's own
	// uniqueness check still decides the winner if two learns race.
	if _, err := l.store.Get(ctx, label); err == nil {
		return nil, &DuplicateClassError{Label: label}
	} else if err != ErrNotFound {
		return nil, err
	}

	vectors := make([][]float32, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			vec, err := l.enc.Embed(gctx, img)
			if err != nil {
				return fmt.Errorf("exemplar %d: %w", i+1, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mean, err := meanVector(vectors)
	if err != nil {
		return nil, err
	}

	p := &Prototype{
		Label:       label,
		Vector:      mean,
		SampleCount: len(images),
		CreatedAt:   time.Now().UTC(),
		EstAccuracy: estimateAccuracy(mean, vectors),
	}
	if err := l.store.Put(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// estimateAccuracy scores how tightly the exemplars cluster around their
// prototype: the average exemplar-to-prototype confidence. A loose cluster
// means the prototype will separate poorly from neighbors.
func estimateAccuracy(mean []float32, vectors [][]float32) float64 {
	var total float64
	for _, v := range vectors {
		sim, err := cosineSimilarity(mean, v)
		if err != nil {
			return 0
		}
		total += clamp01((sim + 1) / 2)
	}
	return total / float64(len(vectors))
}
