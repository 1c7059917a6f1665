// Package encsrv adapts a remote image-encoder HTTP service to the Encoder
// interface. The service accepts a base64 image and answers with a
// fixed-length embedding vector.
package encsrv

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cropsight/cropsight/encoder"
)

type Client struct {
	endpoint string
	dim      int

	client *http.Client
}

var _ encoder.Encoder = (*Client)(nil)

func New(endpoint string, dim int, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: endpoint,
		dim:      dim,
		client:   httpClient,
	}
}

func (c *Client) Name() string { return "remote" }

func (c *Client) Dim() int { return c.dim }

func (c *Client) IsHealthy() bool {
	resp, err := http.Get(c.endpoint + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (c *Client) Embed(ctx context.Context, image []byte) ([]float32, error) {
	reqbody := struct {
		ImageBase64 string `json:"image_base64"`
	}{
		ImageBase64: "data:" + http.DetectContentType(image) + ";base64," +
			base64.StdEncoding.EncodeToString(image),
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&reqbody); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/api/v1/generate-embedding", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &encoder.InputError{Reason: "encoder rejected image: " + string(msg)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("encoder service returned %s", resp.Status)
	}

	respbody := struct {
		Embedding []float32 `json:"embedding"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&respbody); err != nil {
		return nil, err
	}
	if len(respbody.Embedding) != c.dim {
		return nil, fmt.Errorf("encoder returned %d-dim vector, want %d", len(respbody.Embedding), c.dim)
	}

	return respbody.Embedding, nil
}
