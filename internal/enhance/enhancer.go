package enhance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/CynicPixel/bhumi-ai/internal/extract"
	"github.com/CynicPixel/bhumi-ai/internal/vision"
)

// Default instructions substituted when the user supplied no literal text.
const (
	defaultDocumentPrompt = "Please analyze this document."
	defaultImagePrompt    = "Please analyze this image."
)

// Attachment is one document attached to a message: a declared media type and
// the base64 payload (raw or with a data-URI prefix).
type Attachment struct {
	MediaType string
	Data      string
}

// DocumentExtractor is the narrow contract the enhancer needs from the
// document pipeline.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, payload string, maxPages int) extract.Result
}

// ImageDescriber is the narrow contract for the vision adapter.
type ImageDescriber interface {
	Describe(ctx context.Context, imageBase64, prompt string) (string, error)
}

// Enhancer splices extraction or description output into the user's literal
// text, choosing a strategy per declared media type. Results are computed
// once per attachment and never cached.
type Enhancer struct {
	extractor DocumentExtractor
	describer ImageDescriber
	maxPages  int
}

// NewEnhancer creates an enhancer over the given collaborators.
func NewEnhancer(extractor DocumentExtractor, describer ImageDescriber, maxPages int) *Enhancer {
	if maxPages <= 0 {
		maxPages = 10
	}
	return &Enhancer{extractor: extractor, describer: describer, maxPages: maxPages}
}

// Enhance returns the message body to transmit. With no attachment the text
// passes through unchanged. With an attachment, the enhancement block (or a
// degraded-service note) is appended after the user text with a blank-line
// separator; the attachment is never silently dropped.
func (e *Enhancer) Enhance(ctx context.Context, text string, att *Attachment) string {
	text = strings.TrimSpace(text)
	if att == nil {
		return text
	}

	switch {
	case isPDF(att.MediaType):
		return e.enhancePDF(ctx, text, att)
	case isImage(att.MediaType):
		return e.enhanceImage(ctx, text, att)
	default:
		// Unknown attachment types ride along as documents.
		return e.enhancePDF(ctx, text, att)
	}
}

func (e *Enhancer) enhancePDF(ctx context.Context, text string, att *Attachment) string {
	if text == "" {
		text = defaultDocumentPrompt
	}
	res := e.extractor.ExtractText(ctx, att.Data, e.maxPages)
	if res.Success {
		log.Printf("enhance: extracted %d/%d pages", res.ExtractedPages, res.PageCount)
		return text + "\n\n[PDF Content: " + res.Text + "]"
	}
	log.Printf("enhance: pdf extraction failed: %s", res.Error)
	return text + fmt.Sprintf(
		"\n\n[Note: A PDF was attached but its text could not be extracted (%s). Please describe what the document contains or ask your question with more detail.]",
		res.Error)
}

func (e *Enhancer) enhanceImage(ctx context.Context, text string, att *Attachment) string {
	if text == "" {
		text = defaultImagePrompt
	}
	desc, err := e.describer.Describe(ctx, att.Data, "")
	if err == nil {
		return text + "\n\n[Image Description: " + desc + "]"
	}
	if errors.Is(err, vision.ErrNotConfigured) {
		log.Printf("enhance: vision service not configured: %v", err)
		return text + "\n\n[Note: An image was attached but the image description service is not configured. Please describe the image in your message.]"
	}
	log.Printf("enhance: image description failed: %v", err)
	return text + "\n\n[Note: An image was attached but could not be described right now. Please describe the image in your message.]"
}

func isPDF(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return mt == "application/pdf" || strings.HasSuffix(mt, "+pdf") || strings.Contains(mt, "pdf")
}

func isImage(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}
