// Package openaivision adapts OpenAI vision chat models to the detection
// provider contract.
package openaivision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cropsight/cropsight/detector"
	"github.com/cropsight/cropsight/internal/ratelimit"
)

const defaultModel = "gpt-4o-mini"

const detectPrompt = `Identify the crop pest or plant disease shown in this image.
Respond with JSON only: {"label": "<species or disease name>", "confidence": <0.0-1.0>}.
If the plant looks healthy use the label "healthy".`

type Client struct {
	oac   *oagc.Client
	model string
	bands detector.RiskBands

	rl *ratelimit.Limiter // For requests to the OpenAI API
}

var _ detector.Detector = (*Client)(nil)

// Init creates a client using the API key from the environment (the openai-go
// default) and the given HTTP client.
func Init(httpClient *http.Client, model string, bands detector.RiskBands) *Client {
	if model == "" {
		model = defaultModel
	}

	return &Client{
		oac: oagc.NewClient(
			option.WithHTTPClient(httpClient),
		),
		model: model,
		bands: bands,
		rl:    ratelimit.New(20, time.Minute),
	}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) IsHealthy() bool { return true }

func (c *Client) Detect(ctx context.Context, image []byte) (*detector.Result, error) {
	// Rate limit use of the OpenAI API
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}

	dataURL := "data:" + http.DetectContentType(image) + ";base64," +
		base64.StdEncoding.EncodeToString(image)

	params := oagc.ChatCompletionNewParams{
		Model: oagc.F(oagc.ChatModel(c.model)),
		Messages: oagc.F([]oagc.ChatCompletionMessageParamUnion{
			oagc.UserMessageParts(
				oagc.TextPart(detectPrompt),
				oagc.ImagePart(dataURL),
			),
		}),
		MaxTokens: oagc.Int(200),
	}
	resp, err := c.oac.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai detect failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("openai returned malformed detection: %w", err)
	}
	if out.Label == "" {
		return nil, fmt.Errorf("openai returned no label")
	}

	conf := out.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}

	return &detector.Result{
		Label:      out.Label,
		Confidence: conf,
		Risk:       c.bands.Level(conf),
	}, nil
}
