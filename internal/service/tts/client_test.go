package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irislabs/voice-gateway/internal/config"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newFakeBackend runs handler for each synthesis connection and returns a
// client pointed at it.
func newFakeBackend(t *testing.T, handler func(conn *websocket.Conn, req synthesisRequest)) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var req synthesisRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		handler(conn, req)
	}))
	t.Cleanup(server.Close)

	return NewClient(config.TTSConfig{
		Endpoint:     "ws" + strings.TrimPrefix(server.URL, "http"),
		SampleRate:   24000,
		ChunkTimeout: time.Second,
	})
}

func TestSynthesizeStreamsChunks(t *testing.T) {
	client := newFakeBackend(t, func(conn *websocket.Conn, req synthesisRequest) {
		if req.Text != "Hello there." {
			t.Errorf("unexpected text: %q", req.Text)
		}
		if req.SampleRate != 24000 {
			t.Errorf("expected default sample rate, got %d", req.SampleRate)
		}
		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2})
		conn.WriteMessage(websocket.BinaryMessage, []byte{3, 4})
		ctrl, _ := json.Marshal(synthesisControl{Done: true})
		conn.WriteMessage(websocket.TextMessage, ctrl)
	})

	var got [][]byte
	err := client.Synthesize(context.Background(), Request{Text: "Hello there."}, func(chunk []byte) error {
		got = append(got, append([]byte(nil), chunk...))
		return nil
	})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if len(got) != 2 || got[0][0] != 1 || got[1][0] != 3 {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestSynthesizeBackendError(t *testing.T) {
	client := newFakeBackend(t, func(conn *websocket.Conn, req synthesisRequest) {
		ctrl, _ := json.Marshal(synthesisControl{Error: "voice model crashed"})
		conn.WriteMessage(websocket.TextMessage, ctrl)
	})

	err := client.Synthesize(context.Background(), Request{Text: "Hello."}, func([]byte) error { return nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSynthesizeChunkTimeout(t *testing.T) {
	client := newFakeBackend(t, func(conn *websocket.Conn, req synthesisRequest) {
		// Never send anything; the client read deadline must fire.
		time.Sleep(2 * time.Second)
	})

	err := client.Synthesize(context.Background(), Request{Text: "Hello."}, func([]byte) error { return nil })
	if !errors.Is(err, ErrChunkTimeout) {
		t.Fatalf("expected ErrChunkTimeout, got %v", err)
	}
}

func TestSynthesizeCancelStopsStream(t *testing.T) {
	client := newFakeBackend(t, func(conn *websocket.Conn, req synthesisRequest) {
		for i := 0; i < 100; i++ {
			if err := conn.WriteMessage(websocket.BinaryMessage, []byte{byte(i)}); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	err := client.Synthesize(ctx, Request{Text: "Hello."}, func([]byte) error {
		seen++
		if seen == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if seen < 2 {
		t.Fatalf("expected at least 2 chunks before cancel, got %d", seen)
	}
}

func TestSynthesizeEmitAbortsStream(t *testing.T) {
	client := newFakeBackend(t, func(conn *websocket.Conn, req synthesisRequest) {
		conn.WriteMessage(websocket.BinaryMessage, []byte{1})
		conn.WriteMessage(websocket.BinaryMessage, []byte{2})
	})

	wantErr := errors.New("queue full")
	err := client.Synthesize(context.Background(), Request{Text: "Hello."}, func([]byte) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected emit error, got %v", err)
	}
}

func TestSynthesizeNoEndpoint(t *testing.T) {
	client := NewClient(config.TTSConfig{})
	err := client.Synthesize(context.Background(), Request{Text: "Hello."}, func([]byte) error { return nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
