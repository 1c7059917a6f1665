package detector

import "context"

// Detector identifies a crop pest or disease from an image using a specific
// backing strategy (local prototypes, a remote vision model, ...).
type Detector interface {
	// Name returns the identifier of the backing strategy, e.g. "local-prototype"
	// or "gemini". The chain records it as the provenance of a result.
	Name() string

	// Detect returns a detection result for the provided image. The image data
	// should be the full contents of a JPEG or PNG file including the header.
	// The provided ctx bounds the attempt; implementations must honor
	// cancellation.
	Detect(ctx context.Context, image []byte) (*Result, error)

	// IsHealthy returns whether the backing service is reachable.
	IsHealthy() bool
}

// Result is a single detection outcome. Results are created per request and
// never mutated after being returned; enrichment produces a copy.
type Result struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Risk       Risk      `json:"risk_level"`
	Provenance string    `json:"provenance"`
	Symptoms   []string  `json:"symptoms,omitempty"`
	Treatment  Treatment `json:"treatment"`
	Prevention []string  `json:"prevention,omitempty"`
	Prognosis  string    `json:"prognosis,omitempty"`
	SpreadRisk string    `json:"spread_risk,omitempty"`
	Enriched   bool      `json:"enriched"`
}

// Treatment holds the structured treatment sections for a detected pest or
// disease.
type Treatment struct {
	ImmediateActions  []string `json:"immediate_actions,omitempty"`
	ChemicalControl   []string `json:"chemical_control,omitempty"`
	OrganicControl    []string `json:"organic_control,omitempty"`
	CulturalPractices []string `json:"cultural_practices,omitempty"`
}

// Empty reports whether no treatment section has any content.
func (t Treatment) Empty() bool {
	return len(t.ImmediateActions) == 0 &&
		len(t.ChemicalControl) == 0 &&
		len(t.OrganicControl) == 0 &&
		len(t.CulturalPractices) == 0
}

// Risk grades how urgently a detection should be acted upon.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// RiskBands maps a confidence score onto a Risk. Each field is the inclusive
// lower bound of its band.
type RiskBands struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// DefaultRiskBands are the conventional confidence cutoffs.
var DefaultRiskBands = RiskBands{Critical: 0.95, High: 0.80, Medium: 0.60}

// Level returns the risk band for the given confidence.
func (b RiskBands) Level(confidence float64) Risk {
	switch {
	case confidence >= b.Critical:
		return RiskCritical
	case confidence >= b.High:
		return RiskHigh
	case confidence >= b.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}
