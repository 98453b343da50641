package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irislabs/voice-gateway/internal/analysis/emotion"
	"github.com/irislabs/voice-gateway/internal/memory"
	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
	"github.com/irislabs/voice-gateway/internal/protocol"
	"github.com/irislabs/voice-gateway/internal/service/stt"
	"github.com/irislabs/voice-gateway/internal/service/tts"
)

// State is the session lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateGenerating State = "generating"
	StateSpeaking   State = "speaking"
	StateClosed     State = "closed"
)

// Responder runs the main reply path for one transcript.
type Responder interface {
	Respond(ctx context.Context, userID, transcript string, style Style, ack string, onDelta func(string)) (string, error)
}

// Acknowledgment is the fast-layer output: a short filler line plus how
// the transcript was classified.
type Acknowledgment struct {
	Text   string
	Intent string
	// NeedsFollowUp reports whether a main answer follows the filler.
	NeedsFollowUp bool
}

// Acknowledger produces the fast filler line, or false for none.
type Acknowledger interface {
	Acknowledge(ctx context.Context, transcript string, style Style) (Acknowledgment, bool)
}

// Config carries the per-session knobs resolved by the handler.
type Config struct {
	UserID        string
	Style         Style
	ChunkMode     string
	CaptureMax    time.Duration
	QueueCapacity int
}

// Deps are the collaborating services, injectable for tests.
type Deps struct {
	STT       stt.Transcriber
	TTS       tts.Synthesizer
	Responder Responder
	Ack       Acknowledger
	Memory    *memory.Engine
	// TTSSampleRate is the PCM rate announced in server AUDIO_START frames.
	TTSSampleRate int
}

// Session drives one websocket conversation: capture, recognition, the
// dual model paths and synthesis. Incoming frames arrive on the handler's
// read goroutine via HandleFrame; everything outbound flows through a
// single Outbound writer. A turn runs on its own goroutine and owns a
// cancellable context, which is how barge-in stops it.
type Session struct {
	id   string
	cfg  Config
	deps Deps
	out  *Outbound

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	capture    captureState
	turnCancel context.CancelFunc
	turnDone   chan struct{}
}

type captureState struct {
	buf        bytes.Buffer
	sampleRate int
	channels   int
}

// NewSession wires a session around an accepted connection.
func NewSession(conn Conn, binary bool, cfg Config, deps Deps) *Session {
	if cfg.CaptureMax <= 0 {
		cfg.CaptureMax = 60 * time.Second
	}
	if deps.TTSSampleRate <= 0 {
		deps.TTSSampleRate = 24000
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		deps:   deps,
		out:    NewOutbound(conn, binary, cfg.QueueCapacity),
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// SendError pushes an ERROR frame through the session writer. The handler
// uses it to report frame-level violations before closing the connection.
func (s *Session) SendError(code, message string) {
	s.sendError(code, message)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start announces readiness to the client.
func (s *Session) Start() {
	s.out.Send(protocol.EncodeReady())
	log.Printf("[voice] session %s ready for user %s", s.id, s.cfg.UserID)
}

// Close cancels any running turn and stops the writer. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	done := s.turnDone
	s.mu.Unlock()

	s.cancel()
	if done != nil {
		<-done
	}
	s.out.Close()
	log.Printf("[voice] session %s closed", s.id)
}

// HandleFrame processes one client frame on the read goroutine. A non-nil
// error means the connection should be torn down.
func (s *Session) HandleFrame(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.Ping:
		return s.out.Send(protocol.EncodePong())
	case protocol.AudioStart:
		return s.handleAudioStart(msg)
	case protocol.AudioChunk:
		return s.handleAudioChunk(msg)
	case protocol.AudioEnd:
		return s.handleAudioEnd()
	case protocol.Synthesize:
		return s.handleSynthesize(msg)
	default:
		// Server-to-client types coming from the client.
		s.sendError(CodeProtocol, fmt.Sprintf("unexpected %s from client", msg.Type))
		return nil
	}
}

func (s *Session) handleAudioStart(msg *protocol.Message) error {
	var meta protocol.AudioStartPayload
	if len(msg.Payload) > 0 {
		if err := msg.DecodeJSON(&meta); err != nil {
			s.sendError(CodeProtocol, "malformed audio_start payload")
			return nil
		}
	}
	if meta.SampleRate <= 0 {
		meta.SampleRate = 16000
	}
	if meta.Channels <= 0 {
		meta.Channels = 1
	}

	s.mu.Lock()
	switch s.state {
	case StateProcessing, StateGenerating, StateSpeaking:
		// Barge-in: kill the running turn and drop its queued output.
		if s.turnCancel != nil {
			s.turnCancel()
		}
		s.out.Bump()
		log.Printf("[voice] session %s barge-in, turn interrupted", s.id)
	case StateClosed:
		s.mu.Unlock()
		return errors.New("session closed")
	}
	s.state = StateListening
	s.capture.buf.Reset()
	s.capture.sampleRate = meta.SampleRate
	s.capture.channels = meta.Channels
	s.mu.Unlock()
	return nil
}

func (s *Session) handleAudioChunk(msg *protocol.Message) error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		s.sendError(CodeProtocol, "audio_chunk outside an utterance")
		return nil
	}

	s.capture.buf.Write(msg.Payload)
	overflow := s.captureDurationLocked() > s.cfg.CaptureMax
	if overflow {
		s.capture.buf.Reset()
		s.state = StateIdle
	}
	s.mu.Unlock()

	if overflow {
		s.sendError(CodeInputTooLong,
			fmt.Sprintf("utterance exceeded %s, discarded", s.cfg.CaptureMax))
	}
	return nil
}

// captureDurationLocked derives the capture length from the PCM size.
// Callers hold s.mu.
func (s *Session) captureDurationLocked() time.Duration {
	bytesPerSecond := 2 * s.capture.sampleRate * s.capture.channels
	if bytesPerSecond <= 0 {
		return 0
	}
	seconds := float64(s.capture.buf.Len()) / float64(bytesPerSecond)
	return time.Duration(seconds * float64(time.Second))
}

func (s *Session) handleAudioEnd() error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		s.sendError(CodeProtocol, "audio_end without audio_start")
		return nil
	}

	audio := make([]byte, s.capture.buf.Len())
	copy(audio, s.capture.buf.Bytes())
	sampleRate := s.capture.sampleRate
	channels := s.capture.channels
	s.capture.buf.Reset()

	s.state = StateProcessing
	turnCtx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.turnCancel = cancel
	s.turnDone = done
	gen := s.out.Generation()
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s.runTurn(turnCtx, gen, audio, sampleRate, channels)
	}()
	return nil
}

func (s *Session) handleSynthesize(msg *protocol.Message) error {
	var req protocol.SynthesizePayload
	if err := msg.DecodeJSON(&req); err != nil || req.Text == "" {
		s.sendError(CodeProtocol, "malformed synthesize payload")
		return nil
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.sendError(CodeProtocol, "synthesize is only valid while idle")
		return nil
	}
	s.state = StateSpeaking
	turnCtx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.turnCancel = cancel
	s.turnDone = done
	gen := s.out.Generation()
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s.runSynthesize(turnCtx, gen, req)
	}()
	return nil
}

// runTurn is the full pipeline for one utterance: recognize, acknowledge,
// generate, synthesize. It runs on its own goroutine; ctx cancellation
// (barge-in or shutdown) makes it bail out quietly.
func (s *Session) runTurn(ctx context.Context, gen uint64, audio []byte, sampleRate, channels int) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[voice] session %s turn panicked: %v", s.id, r)
			s.sendErrorGen(gen, CodeInternal, "internal error")
			s.finishTurn(gen)
		}
	}()

	transcript, err := s.deps.STT.Transcribe(ctx, audio, sampleRate, channels)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, stt.ErrEmptyTranscript):
			// Silence is not an error; the turn just has nothing to answer.
			s.out.SendGen(gen, protocol.EncodeDone())
		case errors.Is(err, stt.ErrFatal):
			s.sendErrorGen(gen, CodeUpstreamFatal, "speech recognition rejected the request")
		default:
			s.sendErrorGen(gen, CodeUpstream, "speech recognition is unavailable")
		}
		s.finishTurn(gen)
		return
	}

	s.out.SendGen(gen, protocol.EncodeTranscription(transcript, true))
	if _, err := s.deps.Memory.AddTurn(s.cfg.UserID, memmodel.RoleUser, transcript); err != nil {
		log.Printf("[voice] session %s failed to persist user turn: %v", s.id, err)
	}

	if s.deps.Responder == nil {
		s.sendErrorGen(gen, CodeUpstream, "no language model configured")
		s.out.SendGen(gen, protocol.EncodeDone())
		s.finishTurn(gen)
		return
	}

	// The acknowledgment runs concurrently with the main path. ackDone
	// gates the first main-path audio frame so the filler always plays
	// first; text deltas are not held back.
	ackDone := make(chan struct{})
	ackText := ""
	if s.deps.Ack != nil {
		if ack, ok := s.deps.Ack.Acknowledge(ctx, transcript, s.cfg.Style); ok {
			ackText = ack.Text
			if ack.Intent != "" {
				log.Printf("[voice] session %s intent %s", s.id, ack.Intent)
			}
		}
	}
	if ackText != "" {
		s.out.SendGen(gen, protocol.EncodeLLMChunk(ackText, true))
		go func() {
			defer close(ackDone)
			s.speakChunk(ctx, gen, transcript, ackText)
		}()
	} else {
		close(ackDone)
	}

	s.setState(StateGenerating)

	chunker := NewChunker(s.cfg.ChunkMode)
	ttsQueue := make(chan string, 16)
	var speakWG sync.WaitGroup
	speakWG.Add(1)
	go func() {
		defer speakWG.Done()
		select {
		case <-ackDone:
		case <-ctx.Done():
			return
		}
		for chunk := range ttsQueue {
			s.setState(StateSpeaking)
			s.speakChunk(ctx, gen, transcript, chunk)
		}
	}()

	enqueue := func(chunk string) {
		select {
		case ttsQueue <- chunk:
		case <-ctx.Done():
		}
	}

	reply, err := s.deps.Responder.Respond(ctx, s.cfg.UserID, transcript, s.cfg.Style, ackText,
		func(delta string) {
			s.out.SendGen(gen, protocol.EncodeLLMChunk(delta, false))
			for _, chunk := range chunker.Feed(delta) {
				enqueue(chunk)
			}
		})
	if rest := chunker.Flush(); rest != "" && err == nil {
		enqueue(rest)
	}
	close(ttsQueue)
	speakWG.Wait()

	if err != nil {
		s.finishTurn(gen)
		switch {
		case ctx.Err() != nil && s.ctx.Err() == nil:
			// Barge-in; the next turn is already starting.
		case errors.Is(err, ErrFirstTokenTimeout), errors.Is(err, ErrTurnTimeout):
			s.sendErrorGen(gen, CodeUpstream, "the reply took too long")
			s.out.SendGen(gen, protocol.EncodeDone())
		case s.ctx.Err() == nil:
			s.sendErrorGen(gen, CodeUpstream, "could not generate a reply")
			s.out.SendGen(gen, protocol.EncodeDone())
		}
		return
	}

	if reply != "" {
		if _, err := s.deps.Memory.AddTurn(s.cfg.UserID, memmodel.RoleAssistant, reply); err != nil {
			log.Printf("[voice] session %s failed to persist reply: %v", s.id, err)
		}
	}

	s.out.SendGen(gen, protocol.EncodeDone())
	s.finishTurn(gen)
	log.Printf("[voice] session %s turn done in %v (%d chars)", s.id, time.Since(started).Round(time.Millisecond), len(reply))
}

// speakChunk synthesizes one text chunk as a full audio segment, tinting
// the style's base prosody with the chunk's detected tone. Failures are
// logged and reported once; the turn keeps going so later chunks and the
// DONE frame still arrive.
func (s *Session) speakChunk(ctx context.Context, gen uint64, transcript, text string) {
	if s.deps.TTS == nil || ctx.Err() != nil {
		return
	}

	tone := emotion.Analyze(transcript, text)

	s.out.SendGen(gen, protocol.EncodeAudioStart(s.deps.TTSSampleRate))
	var sent int
	err := s.deps.TTS.Synthesize(ctx, tts.Request{
		Text:         text,
		Exaggeration: clampUnit(s.cfg.Style.Exaggeration + tone.Exaggeration),
		SpeechRate:   s.cfg.Style.SpeechRate + tone.RateShift,
		SampleRate:   s.deps.TTSSampleRate,
	}, func(chunk []byte) error {
		sent += len(chunk)
		return s.out.SendGen(gen, protocol.EncodeTTSAudio(chunk, false))
	})
	if err != nil && ctx.Err() == nil {
		switch {
		case errors.Is(err, ErrSlowClient):
			// The client stopped draining; the whole turn is abandoned.
			s.sendErrorGen(gen, CodeSlowClient, "client is not draining audio")
			s.abortTurn()
		case errors.Is(err, tts.ErrFatal):
			log.Printf("[voice] session %s synthesis rejected: %v", s.id, err)
			s.sendErrorGen(gen, CodeUpstreamFatal, "speech synthesis rejected the request")
		default:
			log.Printf("[voice] session %s synthesis failed: %v", s.id, err)
			s.sendErrorGen(gen, CodeUpstream, "speech synthesis is unavailable")
		}
	}

	duration := float64(sent) / float64(2*s.deps.TTSSampleRate)
	s.out.SendGen(gen, protocol.EncodeAudioEnd(duration))
}

// runSynthesize is the direct TTS path: no models, one segment, one DONE.
func (s *Session) runSynthesize(ctx context.Context, gen uint64, req protocol.SynthesizePayload) {
	if req.Exaggeration == 0 {
		req.Exaggeration = s.cfg.Style.Exaggeration
	}
	if req.SpeechRate == 0 {
		req.SpeechRate = s.cfg.Style.SpeechRate
	}

	s.out.SendGen(gen, protocol.EncodeAudioStart(s.deps.TTSSampleRate))
	var sent int
	err := s.deps.TTS.Synthesize(ctx, tts.Request{
		Text:         req.Text,
		Exaggeration: req.Exaggeration,
		SpeechRate:   req.SpeechRate,
		SampleRate:   s.deps.TTSSampleRate,
	}, func(chunk []byte) error {
		sent += len(chunk)
		return s.out.SendGen(gen, protocol.EncodeTTSAudio(chunk, false))
	})
	duration := float64(sent) / float64(2*s.deps.TTSSampleRate)
	s.out.SendGen(gen, protocol.EncodeAudioEnd(duration))

	if err != nil && ctx.Err() == nil {
		if errors.Is(err, ErrSlowClient) {
			s.sendErrorGen(gen, CodeSlowClient, "client is not draining audio")
		} else {
			s.sendErrorGen(gen, CodeUpstream, "speech synthesis is unavailable")
		}
	}
	s.out.SendGen(gen, protocol.EncodeDone())
	s.finishTurn(gen)
}

// abortTurn cancels the running turn without touching the state; the turn
// goroutine unwinds through its usual exit path.
func (s *Session) abortTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnCancel != nil {
		s.turnCancel()
	}
}

// finishTurn returns the session to idle unless something else already
// moved it on (a barge-in capture or a close).
func (s *Session) finishTurn(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateListening {
		return
	}
	if gen != s.out.Generation() {
		return
	}
	s.state = StateIdle
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateListening {
		return
	}
	s.state = state
}

func (s *Session) sendError(code, message string) {
	s.out.Send(protocol.EncodeError(code, message))
}

func (s *Session) sendErrorGen(gen uint64, code, message string) {
	s.out.SendGen(gen, protocol.EncodeError(code, message))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
