package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
)

// pageSeparator is an internal accumulation device between page texts.
// It is stripped from the final text before returning.
const pageSeparator = "\n--- page break ---\n"

// Result is the tagged outcome of a document extraction. A failed result
// never carries text, and ExtractedPages never exceeds PageCount.
type Result struct {
	Success        bool   `json:"success"`
	Text           string `json:"text,omitempty"`
	PageCount      int    `json:"pageCount,omitempty"`
	ExtractedPages int    `json:"extractedPages,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Document is an opened binary document ready for per-page text extraction.
type Document interface {
	PageCount() int
	PageText(ctx context.Context, page int) (string, error)
	Close() error
}

// PageSource is the narrow contract of the document-extraction back-end:
// it parses raw document bytes and yields text page by page.
type PageSource interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Extractor turns a base64 document payload into cleaned, concatenated text.
type Extractor struct {
	source PageSource
}

// NewExtractor creates an extractor over the given page source.
func NewExtractor(source PageSource) *Extractor {
	return &Extractor{source: source}
}

// ExtractText decodes the payload and extracts at most maxPages pages of
// text. A single page's failure is logged and skipped; only a fully empty
// outcome is reported as a failure, and even that is a recoverable condition,
// not an exception. Extracting the same payload twice yields the same text.
func (e *Extractor) ExtractText(ctx context.Context, payload string, maxPages int) Result {
	data, err := decodePayload(payload)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("invalid document payload: %v", err)}
	}

	doc, err := e.source.Open(ctx, data)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to open document: %v", err)}
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	attempted := pageCount
	if maxPages > 0 && maxPages < attempted {
		attempted = maxPages
	}

	var pages []string
	extracted := 0
	for i := 0; i < attempted; i++ {
		text, err := doc.PageText(ctx, i)
		if err != nil {
			log.Printf("extract: page %d failed, skipping: %v", i+1, err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, text)
		extracted++
	}

	if extracted == 0 {
		return Result{
			Success:        false,
			Error:          "no text extracted (likely scanned/image document)",
			PageCount:      pageCount,
			ExtractedPages: 0,
		}
	}

	combined := strings.Join(pages, pageSeparator)
	return Result{
		Success:        true,
		Text:           cleanText(combined),
		PageCount:      pageCount,
		ExtractedPages: extracted,
	}
}

// decodePayload strips any data-URI prefix and decodes the base64 body.
func decodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("empty payload")
	}
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ","); idx >= 0 {
			payload = payload[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	return data, nil
}

// cleanText removes the internal page separators and collapses repeated
// whitespace into single spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, pageSeparator, " ")
	return strings.Join(strings.Fields(s), " ")
}
