// internal/ml/client.go
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/erarta/api.neucor.ai/internal/models"
)

// Client talks to the internal photo analysis microservice. The service
// is trusted via a shared internal token, not end-user credentials.
type Client struct {
	baseURL    string
	token      string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		model:      "openai",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) WithModel(model string) *Client {
	c.model = model
	return c
}

func (c *Client) Model() string {
	return c.model
}

type analyzeRequest struct {
	UserID   int64  `json:"user_id"`
	ImageURL string `json:"image_url"`
}

// Analyze sends a photo URL to the analysis service and returns the
// nutrition estimate. Non-200 responses are returned as errors with the
// service's body attached.
func (c *Client) Analyze(ctx context.Context, userID int64, imageURL string) (*models.KBZHU, error) {
	body, err := json.Marshal(analyzeRequest{UserID: userID, ImageURL: imageURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis service unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, respBody)
	}

	var kbzhu models.KBZHU
	if err := json.Unmarshal(respBody, &kbzhu); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	return &kbzhu, nil
}
