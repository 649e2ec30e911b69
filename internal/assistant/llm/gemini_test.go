package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeminiComplete(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"generated answer"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGemini(Config{APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-1.5-flash"})
	out, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "You are an ERP assistant."},
		{Role: "user", Content: "explain stock entry"},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if out != "generated answer" {
		t.Errorf("Complete() = %q", out)
	}
	if gotPath != "/models/gemini-1.5-flash:generateContent" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "g-key" {
		t.Errorf("key = %s", gotKey)
	}
	if gotReq.SystemInstruction == nil || len(gotReq.SystemInstruction.Parts) != 1 {
		t.Errorf("system instruction = %+v", gotReq.SystemInstruction)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "explain stock entry" {
		t.Errorf("contents = %+v", gotReq.Contents)
	}
}

func TestGeminiRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGemini(Config{APIKey: "g-key", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrRateLimit) {
		t.Errorf("Complete() error = %v, want ErrRateLimit", err)
	}
}

func TestGeminiAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c := NewGemini(Config{APIKey: "bad", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("Complete() succeeded with an API error body")
	}
}

func TestGeminiNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewGemini(Config{APIKey: "g-key", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("Complete() succeeded with no candidates")
	}
}
