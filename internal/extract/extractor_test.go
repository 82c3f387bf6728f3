package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

// fakeSource yields canned page texts; a nil entry simulates a failed page.
type fakeSource struct {
	pages   []*string
	openErr error
}

func page(s string) *string { return &s }

func (f *fakeSource) Open(ctx context.Context, data []byte) (Document, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeDocument{pages: f.pages}, nil
}

type fakeDocument struct {
	pages []*string
}

func (d *fakeDocument) PageCount() int { return len(d.pages) }

func (d *fakeDocument) PageText(ctx context.Context, i int) (string, error) {
	if d.pages[i] == nil {
		return "", errors.New("corrupt page")
	}
	return *d.pages[i], nil
}

func (d *fakeDocument) Close() error { return nil }

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestExtractText_AllPages(t *testing.T) {
	src := &fakeSource{pages: []*string{page("first  page\ntext"), page("second page")}}
	e := NewExtractor(src)
	res := e.ExtractText(context.Background(), encode("pdf-bytes"), 10)
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Text != "first page text second page" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if res.PageCount != 2 || res.ExtractedPages != 2 {
		t.Fatalf("unexpected counts: pages=%d extracted=%d", res.PageCount, res.ExtractedPages)
	}
}

func TestExtractText_SkipsFailedPage(t *testing.T) {
	src := &fakeSource{pages: []*string{page("ok page"), nil, page("last page")}}
	e := NewExtractor(src)
	res := e.ExtractText(context.Background(), encode("pdf-bytes"), 10)
	if !res.Success {
		t.Fatalf("expected partial success, got error %q", res.Error)
	}
	if res.ExtractedPages != 2 || res.PageCount != 3 {
		t.Fatalf("unexpected counts: pages=%d extracted=%d", res.PageCount, res.ExtractedPages)
	}
	if res.Text != "ok page last page" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestExtractText_AllPagesFail(t *testing.T) {
	src := &fakeSource{pages: []*string{nil, nil}}
	e := NewExtractor(src)
	res := e.ExtractText(context.Background(), encode("pdf-bytes"), 10)
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Text != "" {
		t.Fatalf("failed result must not carry text, got %q", res.Text)
	}
	if res.ExtractedPages != 0 || res.PageCount != 2 {
		t.Fatalf("unexpected counts: pages=%d extracted=%d", res.PageCount, res.ExtractedPages)
	}
	if res.Error != "no text extracted (likely scanned/image document)" {
		t.Fatalf("unexpected error: %q", res.Error)
	}
}

func TestExtractText_PageCap(t *testing.T) {
	src := &fakeSource{pages: []*string{page("one"), page("two"), page("three")}}
	e := NewExtractor(src)
	res := e.ExtractText(context.Background(), encode("pdf-bytes"), 2)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Text != "one two" {
		t.Fatalf("expected only capped pages, got %q", res.Text)
	}
	if res.PageCount != 3 || res.ExtractedPages != 2 {
		t.Fatalf("unexpected counts: pages=%d extracted=%d", res.PageCount, res.ExtractedPages)
	}
}

func TestExtractText_DataURIPrefixStripped(t *testing.T) {
	src := &fakeSource{pages: []*string{page("hello")}}
	e := NewExtractor(src)
	payload := "data:application/pdf;base64," + encode("pdf-bytes")
	res := e.ExtractText(context.Background(), payload, 10)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
}

func TestExtractText_BadBase64(t *testing.T) {
	e := NewExtractor(&fakeSource{})
	res := e.ExtractText(context.Background(), "not-valid-base64!!!", 10)
	if res.Success {
		t.Fatalf("expected failure on invalid payload")
	}
	if res.Text != "" {
		t.Fatalf("failed result must not carry text")
	}
}

func TestExtractText_Idempotent(t *testing.T) {
	src := &fakeSource{pages: []*string{page("same  text"), page("again")}}
	e := NewExtractor(src)
	payload := encode("pdf-bytes")
	first := e.ExtractText(context.Background(), payload, 10)
	second := e.ExtractText(context.Background(), payload, 10)
	if first.Text != second.Text {
		t.Fatalf("extraction not idempotent: %q vs %q", first.Text, second.Text)
	}
}

func TestExtractText_OpenError(t *testing.T) {
	e := NewExtractor(&fakeSource{openErr: errors.New("unreadable")})
	res := e.ExtractText(context.Background(), encode("pdf-bytes"), 10)
	if res.Success {
		t.Fatalf("expected failure when document cannot be opened")
	}
}
