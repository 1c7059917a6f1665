package cropsight

import (
	"fmt"
	"math"

	"github.com/cropsight/cropsight/detector"
)

// simEpsilon is the tolerance within which two similarity scores are
// considered tied. Ties break to the lexicographically smallest label so
// classification stays deterministic.
const simEpsilon = 1e-9

// Match is the outcome of classifying one query embedding.
type Match struct {
	Label      string
	Similarity float64
	Confidence float64
	Risk       detector.Risk
}

// Classifier scores a query embedding against class prototypes using cosine
// similarity.
type Classifier struct {
	Bands detector.RiskBands
}

func NewClassifier(bands detector.RiskBands) *Classifier {
	return &Classifier{Bands: bands}
}

// Classify finds the best-matching prototype for the query embedding.
// Similarity maps to confidence via (sim+1)/2, clamped to [0,1]. Returns
// ErrNoPrototypes when protos is empty.
func (c *Classifier) Classify(query []float32, protos []*Prototype) (*Match, error) {
	if len(protos) == 0 {
		return nil, ErrNoPrototypes
	}

	best := &Match{Similarity: math.Inf(-1)}
	for _, p := range protos {
		sim, err := cosineSimilarity(query, p.Vector)
		if err != nil {
			return nil, fmt.Errorf("prototype %q: %w", p.Label, err)
		}

		switch {
		case sim > best.Similarity+simEpsilon:
			best.Label, best.Similarity = p.Label, sim
		case math.Abs(sim-best.Similarity) <= simEpsilon && p.Label < best.Label:
			best.Label, best.Similarity = p.Label, sim
		}
	}

	best.Confidence = clamp01((best.Similarity + 1) / 2)
	best.Risk = c.Bands.Level(best.Confidence)
	return best, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched lengths are an error, never a silent zero.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embeddings are different lengths, %d and %d", len(a), len(b))
	}

	var dot, ma, mb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		ma += float64(a[i]) * float64(a[i])
		mb += float64(b[i]) * float64(b[i])
	}
	if ma < 1e-12 || mb < 1e-12 {
		return 0, nil
	}

	return dot / (math.Sqrt(ma) * math.Sqrt(mb)), nil
}

// meanVector computes the element-wise mean of the given vectors. All vectors
// must share the same length.
func meanVector(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to average")
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embeddings are different lengths, %d and %d", dim, len(v))
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	mean := make([]float32, dim)
	inv := 1.0 / float64(len(vectors))
	for i, s := range sum {
		mean[i] = float32(s * inv)
	}
	return mean, nil
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}
