package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/irislabs/voice-gateway/internal/config"
)

func newTestClient(endpoint string) *Client {
	return NewClient(config.STTConfig{Endpoint: endpoint, Timeout: 2 * time.Second})
}

func TestTranscribeSuccess(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sample_rate") != "16000" {
			t.Errorf("missing sample_rate query param, got %q", r.URL.RawQuery)
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"  check my fleet  "}`)
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).Transcribe(context.Background(), []byte{1, 2, 3}, 16000, 1)
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "check my fleet" {
		t.Fatalf("unexpected transcript: %q", text)
	}
	if len(gotBody) != 3 {
		t.Fatalf("expected raw pcm body, got %d bytes", len(gotBody))
	}
}

func TestTranscribeEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"   "}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Transcribe(context.Background(), nil, 16000, 1)
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestTranscribeRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, `{"text":"second try"}`)
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).Transcribe(context.Background(), nil, 16000, 1)
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "second try" {
		t.Fatalf("unexpected transcript: %q", text)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestTranscribeUnavailableAfterRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Transcribe(context.Background(), nil, 16000, 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestTranscribeFatalSkipsRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Transcribe(context.Background(), nil, 16000, 1)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("credential rejection must not retry, got %d calls", calls.Load())
	}
}

func TestTranscribeNoEndpoint(t *testing.T) {
	client := NewClient(config.STTConfig{})
	_, err := client.Transcribe(context.Background(), nil, 16000, 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestTranscribeHonorsContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).Transcribe(ctx, nil, 16000, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
