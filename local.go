package cropsight

import (
	"context"
	"fmt"

	"github.com/cropsight/cropsight/detector"
	"github.com/cropsight/cropsight/encoder"
)

// LocalDetector is the prototype-classifier detection strategy: embed the
// image, score it against every stored prototype, pick the best match. An
// empty store surfaces as ErrNoPrototypes so the chain falls through to
// external providers.
type LocalDetector struct {
	enc        encoder.Encoder
	store      PrototypeStore
	classifier *Classifier
}

var _ detector.Detector = (*LocalDetector)(nil)

func NewLocalDetector(enc encoder.Encoder, store PrototypeStore, classifier *Classifier) *LocalDetector {
	return &LocalDetector{enc: enc, store: store, classifier: classifier}
}

func (d *LocalDetector) Name() string { return "local-prototype" }

func (d *LocalDetector) IsHealthy() bool { return d.enc.IsHealthy() }

func (d *LocalDetector) Detect(ctx context.Context, image []byte) (*detector.Result, error) {
	vec, err := d.enc.Embed(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}

	protos, err := d.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading prototypes: %w", err)
	}

	match, err := d.classifier.Classify(vec, protos)
	if err != nil {
		return nil, err
	}

	return &detector.Result{
		Label:      match.Label,
		Confidence: match.Confidence,
		Risk:       match.Risk,
	}, nil
}
