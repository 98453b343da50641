package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/irislabs/voice-gateway/internal/config"
)

var (
	// ErrEmptyTranscript is returned when the recognizer produced no text
	// for the utterance.
	ErrEmptyTranscript = errors.New("stt: empty transcript")
	// ErrUnavailable is returned when the recognizer could not be reached
	// after retrying.
	ErrUnavailable = errors.New("stt: service unavailable")
	// ErrFatal is returned on rejections a retry cannot cure, like bad
	// credentials or an exhausted quota.
	ErrFatal = errors.New("stt: request rejected")
)

// Transcriber converts a complete PCM capture into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, sampleRate, channels int) (string, error)
}

// Client posts raw PCM to an HTTP recognizer and decodes the transcript.
// Transient failures are retried once with a short randomized backoff.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// NewClient builds a client from the STT configuration.
func NewClient(cfg config.STTConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
	}
}

type transcriptResponse struct {
	Text string `json:"text"`
}

func isFatalStatus(code int) bool {
	return code == http.StatusUnauthorized ||
		code == http.StatusForbidden ||
		code == http.StatusTooManyRequests
}

// Transcribe sends the capture and returns the recognized text. An empty
// or whitespace-only result maps to ErrEmptyTranscript; transport and
// server errors map to ErrUnavailable once the retry is exhausted.
// Credential and quota rejections map to ErrFatal without a retry.
func (c *Client) Transcribe(ctx context.Context, audio []byte, sampleRate, channels int) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(200+rand.Intn(300)) * time.Millisecond
			log.Printf("[stt] retrying after %v: %v", backoff, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := c.post(ctx, audio, sampleRate, channels)
		if err == nil {
			if strings.TrimSpace(text) == "" {
				return "", ErrEmptyTranscript
			}
			return strings.TrimSpace(text), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, ErrFatal) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) post(ctx context.Context, audio []byte, sampleRate, channels int) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.endpoint + "?" + url.Values{
		"sample_rate": {strconv.Itoa(sampleRate)},
		"channels":    {strconv.Itoa(channels)},
	}.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if isFatalStatus(resp.StatusCode) {
			return "", fmt.Errorf("%w: recognizer returned %d: %s",
				ErrFatal, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return "", fmt.Errorf("recognizer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode transcript: %w", err)
	}
	return parsed.Text, nil
}
