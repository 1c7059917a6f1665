// Package gemini adapts Google's Gemini API to the detection provider and
// knowledge generator contracts.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/cropsight/cropsight/detector"
	"github.com/cropsight/cropsight/internal/ratelimit"
	"github.com/cropsight/cropsight/knowledge"
)

const defaultModel = "gemini-2.0-flash"

const detectPrompt = `You are a crop pest and plant disease identification system.
Identify the pest or disease shown in this crop image. Respond with JSON only:
{"label": "<species or disease name>", "confidence": <0.0-1.0>}
If the plant looks healthy use the label "healthy".`

const knowledgePrompt = `You are an agricultural extension knowledge base.
Provide practical guidance for the crop pest or disease %q (detection confidence %.2f).
Respond with JSON only, using exactly these keys:
{"symptoms": [..], "treatment": {"immediate_actions": [..], "chemical_control": [..],
"organic_control": [..], "cultural_practices": [..]}, "prevention": [..],
"prognosis": "...", "spread_risk": "..."}`

// Client implements both detector.Detector and knowledge.Generator on top of
// a single Gemini API client.
type Client struct {
	gc    *genai.Client
	model string
	bands detector.RiskBands

	rl *ratelimit.Limiter
}

var (
	_ detector.Detector   = (*Client)(nil)
	_ knowledge.Generator = (*Client)(nil)
)

func New(ctx context.Context, apiKey, model string, bands detector.RiskBands) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		gc:    gc,
		model: model,
		bands: bands,
		rl:    ratelimit.New(30, time.Minute),
	}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) IsHealthy() bool { return c.gc != nil }

// Detect asks Gemini to identify the pest or disease in the image. Only label
// and confidence come back from detection; the enrichment gate fills in the
// narrative fields afterwards.
func (c *Client) Detect(ctx context.Context, image []byte) (*detector.Result, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(detectPrompt),
		genai.NewPartFromBytes(image, http.DetectContentType(image)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.gc.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini detect failed: %w", err)
	}

	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := decodeModelJSON(resp.Text(), &out); err != nil {
		return nil, fmt.Errorf("gemini returned malformed detection: %w", err)
	}
	if out.Label == "" {
		return nil, fmt.Errorf("gemini returned no label")
	}
	conf := clamp01(out.Confidence)

	return &detector.Result{
		Label:      out.Label,
		Confidence: conf,
		Risk:       c.bands.Level(conf),
	}, nil
}

// GenerateKnowledge asks Gemini for a knowledge card about the given class.
func (c *Client) GenerateKnowledge(ctx context.Context, label string, confidence float64) (*knowledge.Card, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(knowledgePrompt, label, confidence)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.gc.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini knowledge generation failed: %w", err)
	}

	var card knowledge.Card
	if err := decodeModelJSON(resp.Text(), &card); err != nil {
		return nil, fmt.Errorf("gemini returned malformed knowledge card: %w", err)
	}

	return &card, nil
}

// decodeModelJSON unmarshals model output, tolerating markdown code fences
// some models wrap around JSON despite instructions.
func decodeModelJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return json.Unmarshal([]byte(strings.TrimSpace(text)), v)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
