package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestDoRequestDecodesJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected Authorization header, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("lang") != "en" {
			t.Errorf("expected lang=en query param, got %q", r.URL.Query().Get("lang"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AuthToken: "test-token", MaxRetries: 1})

	var out struct {
		Text string `json:"text"`
	}
	err := c.DoRequest(context.Background(), RequestOptions{
		Method:      http.MethodGet,
		Path:        "/transcribe",
		QueryParams: map[string]string{"lang": "en"},
		Response:    &out,
	})
	if err != nil {
		t.Fatalf("DoRequest: %v", err)
	}
	if out.Text != "hello" {
		t.Fatalf("expected decoded text 'hello', got %q", out.Text)
	}
}

func TestDoRequestRawReturnsBodyUndecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("raw-bytes"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 1})
	body, err := c.DoRequestRaw(context.Background(), RequestOptions{Method: http.MethodGet, Path: "/raw"})
	if err != nil {
		t.Fatalf("DoRequestRaw: %v", err)
	}
	if string(body) != "raw-bytes" {
		t.Fatalf("expected 'raw-bytes', got %q", string(body))
	}
}

func TestDoRequestClientErrorIsNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 3})
	err := c.DoRequest(context.Background(), RequestOptions{Method: http.MethodGet, Path: "/bad"})
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected exactly one attempt for a permanent client error, got %d", got)
	}
}

func TestDoRequestServerErrorIsRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 1})
	err := c.DoRequest(context.Background(), RequestOptions{Method: http.MethodGet, Path: "/fail"})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if got := atomic.LoadInt32(&attempts); got < 2 {
		t.Fatalf("expected at least 2 attempts (initial + 1 retry), got %d", got)
	}
}

func TestNewClientDefaultsMaxRetries(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://example.invalid"})
	if c.maxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", c.maxRetries)
	}
}

func TestSharedReturnsSameClient(t *testing.T) {
	if Shared() != Shared() {
		t.Fatal("expected Shared() to return the same pooled client instance")
	}
}
