package gemini

import (
	"testing"

	"github.com/cropsight/cropsight/knowledge"
)

func TestDecodeModelJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"plain", `{"label": "aphid", "confidence": 0.8}`},
		{"fenced", "```json\n{\"label\": \"aphid\", \"confidence\": 0.8}\n```"},
		{"bare fence", "```\n{\"label\": \"aphid\", \"confidence\": 0.8}\n```"},
		{"padded", "  \n{\"label\": \"aphid\", \"confidence\": 0.8}\n  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out struct {
				Label      string  `json:"label"`
				Confidence float64 `json:"confidence"`
			}
			if err := decodeModelJSON(tc.in, &out); err != nil {
				t.Fatalf("Unexpected error %s", err)
			}
			if expected, actual := "aphid", out.Label; expected != actual {
				t.Errorf("Expected label %q, got %q", expected, actual)
			}
			if expected, actual := 0.8, out.Confidence; expected != actual {
				t.Errorf("Expected confidence %f, got %f", expected, actual)
			}
		})
	}

	t.Run("malformed", func(t *testing.T) {
		var out struct{}
		if err := decodeModelJSON("the image shows an aphid", &out); err == nil {
			t.Error("Expected an error for non-JSON output")
		}
	})

	t.Run("knowledge card keys", func(t *testing.T) {
		const doc = `{"symptoms": ["yellowing leaves"],
			"treatment": {"immediate_actions": ["prune"], "organic_control": ["neem oil"]},
			"prevention": ["crop rotation"], "prognosis": "good", "spread_risk": "moderate"}`

		var card knowledge.Card
		if err := decodeModelJSON(doc, &card); err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		if expected, actual := 1, len(card.Symptoms); expected != actual {
			t.Errorf("Expected %d symptom, got %d", expected, actual)
		}
		if expected, actual := "prune", card.Treatment.ImmediateActions[0]; expected != actual {
			t.Errorf("Expected immediate action %q, got %q", expected, actual)
		}
		if expected, actual := "moderate", card.SpreadRisk; expected != actual {
			t.Errorf("Expected spread risk %q, got %q", expected, actual)
		}
	})
}

func TestClamp01(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}
	for _, tc := range cases {
		if got := clamp01(tc.in); got != tc.want {
			t.Errorf("clamp01(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
