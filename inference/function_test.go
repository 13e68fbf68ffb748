package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFunctionGateway_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		var req functionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Message != "Hello" {
			t.Errorf("Expected prompt Hello, got %q", req.Message)
		}
		json.NewEncoder(w).Encode(functionResponse{Response: "Hi there"})
	}))
	defer srv.Close()

	g := NewFunctionGateway(srv.URL)
	got, err := g.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Hi there" {
		t.Errorf("Expected completion %q, got %q", "Hi there", got)
	}
}

func TestFunctionGateway_SendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("Expected bearer header, got %q", got)
		}
		json.NewEncoder(w).Encode(functionResponse{Response: "ok"})
	}))
	defer srv.Close()

	g := NewFunctionGateway(srv.URL).WithAPIKey("sekrit")
	if _, err := g.Complete(context.Background(), "ping"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestFunctionGateway_RemoteErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(functionResponse{Error: "model overloaded"})
	}))
	defer srv.Close()

	g := NewFunctionGateway(srv.URL)
	_, err := g.Complete(context.Background(), "Hello")
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("Expected *InferenceError, got %v", err)
	}
}

func TestFunctionGateway_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	g := NewFunctionGateway(srv.URL)
	_, err := g.Complete(context.Background(), "Hello")
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("Expected *InferenceError, got %v", err)
	}
}

func TestFunctionGateway_EmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(functionResponse{})
	}))
	defer srv.Close()

	g := NewFunctionGateway(srv.URL)
	_, err := g.Complete(context.Background(), "Hello")
	if err == nil {
		t.Fatal("Expected error for empty completion")
	}
}

func TestFunctionGateway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(functionResponse{Response: "too late"})
	}))
	defer srv.Close()

	g := NewFunctionGateway(srv.URL).WithTimeout(20 * time.Millisecond)
	_, err := g.Complete(context.Background(), "Hello")
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("Expected *InferenceError on timeout, got %v", err)
	}
}
