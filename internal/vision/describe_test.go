package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDescribe_NotConfigured(t *testing.T) {
	c := NewClient("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Describe(ctx, "aW1n", "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDescribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/describe" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"description":"  a wheat field with rust spots  "}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	desc, err := c.Describe(context.Background(), "aW1n", "")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if desc != "a wheat field with rust spots" {
		t.Fatalf("unexpected description: %q", desc)
	}
}

func TestDescribe_UnauthorizedMapsToNotConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key")
	_, err := c.Describe(context.Background(), "aW1n", "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured on 401, got %v", err)
	}
}

func TestDescribe_TransientFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_500", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not-json")) }},
		{"empty_description", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"description":""}`)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient(srv.URL, "key")
			_, err := c.Describe(context.Background(), "aW1n", "")
			if err == nil {
				t.Fatalf("expected error; got nil")
			}
			if errors.Is(err, ErrNotConfigured) {
				t.Fatalf("transient failure must not map to ErrNotConfigured")
			}
		})
	}
}

func TestDescribe_StripsDataURIPrefix(t *testing.T) {
	var gotImage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req describeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotImage = req.Image
		_, _ = w.Write([]byte(`{"description":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	if _, err := c.Describe(context.Background(), "data:image/png;base64,aW1n", ""); err != nil {
		t.Fatalf("describe: %v", err)
	}
	if gotImage != "aW1n" {
		t.Fatalf("expected bare base64, got %q", gotImage)
	}
}
