package cropsight

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/cropsight/cropsight/encoder"
)

// fakeEncoder returns scripted embeddings, matched to images by their first
// byte, or via fn when set.
type fakeEncoder struct {
	dim int
	fn  func(image []byte) ([]float32, error)
}

var _ encoder.Encoder = (*fakeEncoder)(nil)

func (f *fakeEncoder) Name() string    { return "fake" }
func (f *fakeEncoder) IsHealthy() bool { return true }

func (f *fakeEncoder) Dim() int {
	if f.dim == 0 {
		return 3
	}
	return f.dim
}

func (f *fakeEncoder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if f.fn != nil {
		return f.fn(image)
	}
	if len(image) == 0 {
		return nil, &encoder.InputError{Reason: "empty image"}
	}
	// Deterministic unit-ish vector derived from the first byte so distinct
	// images land in distinct directions.
	v := float32(image[0])
	return []float32{v, v / 2, 1}, nil
}

func exemplars(n int) [][]byte {
	images := make([][]byte, n)
	for i := range images {
		images[i] = []byte{byte(i + 1), 0xff}
	}
	return images
}

func TestLearn(t *testing.T) {
	t.Run("creates prototype from exemplar mean", func(t *testing.T) {
		store := NewMemStore()
		learner := NewLearner(&fakeEncoder{fn: func(image []byte) ([]float32, error) {
			v := float32(image[0])
			return []float32{v, 2 * v}, nil
		}}, store)

		proto, err := learner.Learn(t.Context(), "Corn Smut", exemplars(5))
		if err != nil {
			t.Fatalf("Unexpected error %s", err)
		}

		if expected, actual := "Corn Smut", proto.Label; expected != actual {
			t.Errorf("Expected label %q, got %q", expected, actual)
		}
		if expected, actual := 5, proto.SampleCount; expected != actual {
			t.Errorf("Expected sample count %d, got %d", expected, actual)
		}
		// First bytes are 1..5, so the element-wise means are 3 and 6
		if math.Abs(float64(proto.Vector[0]-3)) > 1e-6 || math.Abs(float64(proto.Vector[1]-6)) > 1e-6 {
			t.Errorf("Expected mean vector [3 6], got %v", proto.Vector)
		}

		if _, err := store.Get(t.Context(), "corn smut"); err != nil {
			t.Errorf("Expected prototype persisted, got %v", err)
		}
	})

	t.Run("identical exemplars estimate perfect accuracy", func(t *testing.T) {
		learner := NewLearner(&fakeEncoder{fn: func(image []byte) ([]float32, error) {
			return []float32{1, 2, 3}, nil
		}}, NewMemStore())

		proto, err := learner.Learn(t.Context(), "rust", exemplars(5))
		if err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		if math.Abs(proto.EstAccuracy-1.0) > 1e-6 {
			t.Errorf("Expected estimated accuracy ~1.0, got %f", proto.EstAccuracy)
		}
	})

	t.Run("exemplar count bounds", func(t *testing.T) {
		learner := NewLearner(&fakeEncoder{}, NewMemStore())

		for _, n := range []int{0, 4, 11} {
			_, err := learner.Learn(t.Context(), "aphid", exemplars(n))
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Errorf("Expected ValidationError for %d exemplars, got %v", n, err)
			}
		}

		for _, n := range []int{MinExemplars, MaxExemplars} {
			label := fmt.Sprintf("class %d", n)
			if _, err := learner.Learn(t.Context(), label, exemplars(n)); err != nil {
				t.Errorf("Expected %d exemplars accepted, got %v", n, err)
			}
		}
	})

	t.Run("empty label", func(t *testing.T) {
		learner := NewLearner(&fakeEncoder{}, NewMemStore())

		_, err := learner.Learn(t.Context(), "   ", exemplars(5))
		var valErr *ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("Expected ValidationError, got %v", err)
		}
	})

	t.Run("duplicate label rejected", func(t *testing.T) {
		store := NewMemStore()
		learner := NewLearner(&fakeEncoder{}, store)

		if _, err := learner.Learn(t.Context(), "aphid", exemplars(5)); err != nil {
			t.Fatalf("Unexpected error %s", err)
		}

		_, err := learner.Learn(t.Context(), "Aphid", exemplars(5))
		var dupErr *DuplicateClassError
		if !errors.As(err, &dupErr) {
			t.Fatalf("Expected DuplicateClassError, got %v", err)
		}

		protos, err := store.All(t.Context())
		if err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		if expected, actual := 1, len(protos); expected != actual {
			t.Errorf("Expected %d prototype after rejected relearn, got %d", expected, actual)
		}
	})

	t.Run("embed failure aborts without persisting", func(t *testing.T) {
		store := NewMemStore()
		learner := NewLearner(&fakeEncoder{fn: func(image []byte) ([]float32, error) {
			if image[0] == 3 {
				return nil, errors.New("decode failed")
			}
			return []float32{1, 2}, nil
		}}, store)

		_, err := learner.Learn(t.Context(), "blight", exemplars(5))
		if err == nil {
			t.Fatal("Expected an error when one exemplar fails to embed")
		}

		if _, err := store.Get(t.Context(), "blight"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected no prototype persisted, got %v", err)
		}
	})
}
