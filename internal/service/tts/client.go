package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irislabs/voice-gateway/internal/config"
)

var (
	// ErrUnavailable is returned when the synthesizer cannot be reached.
	ErrUnavailable = errors.New("tts: service unavailable")
	// ErrChunkTimeout is returned when the synthesizer stalls mid-stream.
	ErrChunkTimeout = errors.New("tts: chunk timeout")
	// ErrFatal is returned when the backend refuses the handshake for a
	// reason a retry cannot cure.
	ErrFatal = errors.New("tts: request rejected")
)

// Request is one utterance to synthesize.
type Request struct {
	Text         string
	Exaggeration float64
	SpeechRate   float64
	SampleRate   int
}

// Synthesizer streams PCM audio for a chunk of text. emit is called once
// per audio frame in stream order; a non-nil return aborts the synthesis.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request, emit func(chunk []byte) error) error
}

// Client speaks a small WebSocket protocol with the synthesis backend:
// one JSON request frame out, then binary PCM frames in until a JSON
// {"done":true} frame closes the utterance.
type Client struct {
	endpoint     string
	sampleRate   int
	chunkTimeout time.Duration
	dialer       *websocket.Dialer
}

// NewClient builds a client from the TTS configuration.
func NewClient(cfg config.TTSConfig) *Client {
	timeout := cfg.ChunkTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		sampleRate:   sampleRate,
		chunkTimeout: timeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// SampleRate reports the PCM rate the backend produces.
func (c *Client) SampleRate() int {
	return c.sampleRate
}

type synthesisRequest struct {
	Text         string  `json:"text"`
	Exaggeration float64 `json:"exaggeration,omitempty"`
	SpeechRate   float64 `json:"speech_rate,omitempty"`
	SampleRate   int     `json:"sample_rate"`
}

type synthesisControl struct {
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Synthesize opens a fresh connection, streams the audio through emit and
// returns once the backend signals completion.
func (c *Client) Synthesize(ctx context.Context, req Request, emit func(chunk []byte) error) error {
	if c.endpoint == "" {
		return fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, http.Header{})
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
				return fmt.Errorf("%w: handshake returned %d", ErrFatal, resp.StatusCode)
			}
			return fmt.Errorf("%w: handshake returned %d", ErrUnavailable, resp.StatusCode)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	// Unblock the read loop when the caller cancels (barge-in).
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	payload := synthesisRequest{
		Text:         req.Text,
		Exaggeration: req.Exaggeration,
		SpeechRate:   req.SpeechRate,
		SampleRate:   req.SampleRate,
	}
	if payload.SampleRate <= 0 {
		payload.SampleRate = c.sampleRate
	}
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.chunkTimeout)); err != nil {
			return err
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				return ErrChunkTimeout
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			if err := emit(data); err != nil {
				return err
			}
		case websocket.TextMessage:
			var ctrl synthesisControl
			if err := json.Unmarshal(data, &ctrl); err != nil {
				return fmt.Errorf("tts: malformed control frame: %w", err)
			}
			if ctrl.Error != "" {
				return fmt.Errorf("%w: %s", ErrUnavailable, ctrl.Error)
			}
			if ctrl.Done {
				return nil
			}
		}
	}
}
