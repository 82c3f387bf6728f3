package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteSource talks to the document-extraction back-end over HTTP. The
// back-end exposes two endpoints: POST /v1/info returns the page count of a
// document, POST /v1/pages returns the text of one page.
type RemoteSource struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewRemoteSource creates an HTTP page source for the given service base URL.
func NewRemoteSource(baseURL string) *RemoteSource {
	return &RemoteSource{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    baseURL,
	}
}

type infoRequest struct {
	Document string `json:"document"`
}

type infoResponse struct {
	PageCount int `json:"page_count"`
}

type pageRequest struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
}

type pageResponse struct {
	Text string `json:"text"`
}

// Open queries the back-end for the document's page count and returns a
// handle that fetches page text on demand.
func (s *RemoteSource) Open(ctx context.Context, data []byte) (Document, error) {
	if s.BaseURL == "" {
		return nil, fmt.Errorf("extract: service URL missing")
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	var info infoResponse
	if err := s.post(ctx, "/v1/info", infoRequest{Document: encoded}, &info); err != nil {
		return nil, err
	}
	if info.PageCount <= 0 {
		return nil, fmt.Errorf("extract: document has no pages")
	}
	return &remoteDocument{source: s, encoded: encoded, pageCount: info.PageCount}, nil
}

func (s *RemoteSource) post(ctx context.Context, path string, body, out any) error {
	reqBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("extract: status=%d body=%s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("extract: decode response: %w", err)
	}
	return nil
}

type remoteDocument struct {
	source    *RemoteSource
	encoded   string
	pageCount int
}

func (d *remoteDocument) PageCount() int { return d.pageCount }

func (d *remoteDocument) PageText(ctx context.Context, page int) (string, error) {
	var out pageResponse
	if err := d.source.post(ctx, "/v1/pages", pageRequest{Document: d.encoded, Page: page}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (d *remoteDocument) Close() error { return nil }
