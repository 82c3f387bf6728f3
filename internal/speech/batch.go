package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BatchResult is the response of the batched transcription fallback.
type BatchResult struct {
	Transcript string `json:"transcript"`
	Language   string `json:"language,omitempty"`
}

// BatchTranscriber transcribes a complete recorded audio payload in one call.
// It is the fallback used when no live transcript materialized.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, audio []byte) (BatchResult, error)
}

// BatchClient calls the remote transcription service over HTTP.
type BatchClient struct {
	HTTPClient *http.Client
	URL        string
	APIKey     string
}

// NewBatchClient creates a batched transcription client.
func NewBatchClient(url, apiKey string) *BatchClient {
	return &BatchClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		URL:        url,
		APIKey:     apiKey,
	}
}

// Transcribe posts the recorded audio and returns the transcript.
func (c *BatchClient) Transcribe(ctx context.Context, audio []byte) (BatchResult, error) {
	if c.URL == "" {
		return BatchResult{}, fmt.Errorf("transcribe: service URL missing")
	}
	if len(audio) == 0 {
		return BatchResult{}, fmt.Errorf("transcribe: empty audio payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(audio))
	if err != nil {
		return BatchResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.APIKey != "" {
		req.Header.Set("Authorization", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return BatchResult{}, fmt.Errorf("transcribe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return BatchResult{}, fmt.Errorf("transcribe: status=%d body=%s", resp.StatusCode, string(b))
	}

	var br BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return BatchResult{}, fmt.Errorf("transcribe: decode response: %w", err)
	}
	br.Transcript = strings.TrimSpace(br.Transcript)
	return br, nil
}
