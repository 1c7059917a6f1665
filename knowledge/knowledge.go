package knowledge

import (
	"context"

	"github.com/cropsight/cropsight/detector"
)

// Generator produces descriptive knowledge about a detected pest or disease.
// Generation is best-effort; callers treat any error as "no knowledge".
type Generator interface {
	// Name returns the name of the backing knowledge source.
	Name() string

	// GenerateKnowledge returns a knowledge card for the given class label.
	// The detection confidence is passed along so the source can hedge its
	// wording for uncertain detections.
	GenerateKnowledge(ctx context.Context, label string, confidence float64) (*Card, error)
}

// Card is the narrative knowledge for one class. Every field is authoritative
// for its topic and replaces whatever a detection provider returned.
type Card struct {
	Symptoms   []string           `json:"symptoms"`
	Treatment  detector.Treatment `json:"treatment"`
	Prevention []string           `json:"prevention"`
	Prognosis  string             `json:"prognosis"`
	SpreadRisk string             `json:"spread_risk"`
}
