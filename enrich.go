package cropsight

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cropsight/cropsight/detector"
	"github.com/cropsight/cropsight/knowledge"
)

// noInfoSentinel is the placeholder some providers emit instead of real
// symptom text. Treated the same as an empty symptoms list.
const noInfoSentinel = "information not available"

// DefaultEnrichThreshold is the confidence below which a detection gets
// enriched even when its textual fields look complete.
const DefaultEnrichThreshold = 0.65

// Gate decides whether a detection result needs supplemental knowledge and,
// when it does, merges generated knowledge into the result. Enrichment is
// best-effort: a generator failure returns the original result untouched.
type Gate struct {
	gen       knowledge.Generator
	threshold float64
	logger    *slog.Logger
}

func NewGate(gen knowledge.Generator, threshold float64, logger *slog.Logger) *Gate {
	if threshold <= 0 {
		threshold = DefaultEnrichThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{gen: gen, threshold: threshold, logger: logger}
}

// ShouldEnrich reports whether the result needs supplemental knowledge: low
// confidence, missing or sentinel symptoms, or missing structured fields.
func (g *Gate) ShouldEnrich(res *detector.Result) bool {
	if res.Confidence < g.threshold {
		return true
	}
	if symptomsMissing(res.Symptoms) {
		return true
	}
	if res.Treatment.Empty() || len(res.Prevention) == 0 {
		return true
	}
	return false
}

// Enrich fetches knowledge for the result's label and merges it in. Numeric
// detection fields (confidence, risk) are preserved; narrative fields are
// replaced wholesale because the knowledge source is authoritative for them.
// Returns a new result, leaving the input unmodified.
func (g *Gate) Enrich(ctx context.Context, res *detector.Result) *detector.Result {
	if g.gen == nil {
		return res
	}

	card, err := g.gen.GenerateKnowledge(ctx, res.Label, res.Confidence)
	if err != nil {
		g.logger.Warn("knowledge generation failed, returning unenriched result",
			"generator", g.gen.Name(), "label", res.Label, "error", err)
		return res
	}

	merged := *res
	merged.Symptoms = card.Symptoms
	merged.Treatment = card.Treatment
	merged.Prevention = card.Prevention
	merged.Prognosis = card.Prognosis
	merged.SpreadRisk = card.SpreadRisk
	merged.Enriched = true
	return &merged
}

func symptomsMissing(symptoms []string) bool {
	if len(symptoms) == 0 {
		return true
	}
	if len(symptoms) == 1 && strings.EqualFold(strings.TrimSpace(symptoms[0]), noInfoSentinel) {
		return true
	}
	return false
}
