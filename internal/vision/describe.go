package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured signals a missing credential or endpoint, so callers can
// show a specific note instead of a generic failure message.
var ErrNotConfigured = errors.New("vision service not configured")

// DefaultPrompt is used when the caller supplies no prompt of its own.
const DefaultPrompt = "Describe this image in detail, focusing on any crops, plants, pests, soil conditions or farm equipment visible."

// Client converts a still image into a natural-language description via the
// vision back-end.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
}

// NewClient creates a vision description client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    baseURL,
		APIKey:     apiKey,
	}
}

type describeRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt,omitempty"`
}

type describeResponse struct {
	Description string `json:"description"`
}

// Describe returns a natural-language description of the base64 image.
// A missing credential yields ErrNotConfigured; transient failures yield a
// generic error. Either way the caller must still produce a sendable message.
func (c *Client) Describe(ctx context.Context, imageBase64, prompt string) (string, error) {
	if c.APIKey == "" || c.BaseURL == "" {
		return "", ErrNotConfigured
	}
	imageBase64 = strings.TrimSpace(imageBase64)
	if imageBase64 == "" {
		return "", fmt.Errorf("vision: empty image payload")
	}
	// The payload may arrive with a data-URI prefix; the back-end wants bare base64.
	if strings.HasPrefix(imageBase64, "data:") {
		if idx := strings.Index(imageBase64, ","); idx >= 0 {
			imageBase64 = imageBase64[idx+1:]
		}
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}

	reqBody, _ := json.Marshal(describeRequest{Image: imageBase64, Prompt: prompt})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/describe", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: status=%d", ErrNotConfigured, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vision: status=%d body=%s", resp.StatusCode, string(b))
	}

	var dr describeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", fmt.Errorf("vision: decode response: %w", err)
	}
	desc := strings.TrimSpace(dr.Description)
	if desc == "" {
		return "", fmt.Errorf("vision: empty description")
	}
	return desc, nil
}
