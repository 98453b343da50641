package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope is the JSON fallback representation of a wire message. Audio
// payloads travel base64-encoded in Data; everything else uses the typed
// fields. Semantics match the binary frames one to one.
type Envelope struct {
	Type            string  `json:"type"`
	SampleRate      int     `json:"sampleRate,omitempty"`
	Channels        int     `json:"channels,omitempty"`
	Data            string  `json:"data,omitempty"`
	Text            string  `json:"text,omitempty"`
	IsFinal         bool    `json:"isFinal,omitempty"`
	NeedsFollowup   bool    `json:"needsFollowup,omitempty"`
	Code            string  `json:"code,omitempty"`
	Message         string  `json:"message,omitempty"`
	Exaggeration    float64 `json:"exaggeration,omitempty"`
	SpeechRate      float64 `json:"speechRate,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

var jsonNames = map[MessageType]string{
	AudioStart:    "audio_start",
	AudioChunk:    "audio_chunk",
	AudioEnd:      "audio_end",
	Transcription: "transcription",
	LLMChunk:      "llm_chunk",
	TTSAudio:      "tts_audio",
	Error:         "error",
	Ready:         "ready",
	Done:          "done",
	Synthesize:    "synthesize",
	Ping:          "ping",
	Pong:          "pong",
}

var jsonTypes = func() map[string]MessageType {
	m := make(map[string]MessageType, len(jsonNames))
	for t, name := range jsonNames {
		m[name] = t
	}
	return m
}()

// ParseEnvelope decodes a JSON text frame into the common Message form.
func ParseEnvelope(data []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid json message: %w", err)
	}

	t, ok := jsonTypes[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %q", env.Type)
	}

	msg := &Message{Type: t}
	if env.IsFinal {
		msg.Flags |= FlagIsFinal
	}
	if env.NeedsFollowup {
		msg.Flags |= FlagNeedsFollowup
	}

	switch t {
	case AudioChunk, TTSAudio:
		if env.Data != "" {
			raw, err := base64.StdEncoding.DecodeString(env.Data)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 audio payload: %w", err)
			}
			msg.Payload = raw
		}
	case AudioStart:
		payload, _ := json.Marshal(AudioStartPayload{SampleRate: env.SampleRate, Channels: env.Channels})
		msg.Payload = payload
	case Synthesize:
		payload, _ := json.Marshal(SynthesizePayload{
			Text:         env.Text,
			Exaggeration: env.Exaggeration,
			SpeechRate:   env.SpeechRate,
		})
		msg.Payload = payload
	case Transcription, LLMChunk:
		msg.Payload = []byte(env.Text)
	}

	return msg, nil
}

// EncodeEnvelope re-encodes a binary frame as its JSON fallback form.
func EncodeEnvelope(frame []byte) ([]byte, error) {
	msg, err := Parse(frame)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		Type:          jsonNames[msg.Type],
		IsFinal:       msg.IsFinal(),
		NeedsFollowup: msg.NeedsFollowup(),
	}

	switch msg.Type {
	case AudioChunk, TTSAudio:
		env.Data = base64.StdEncoding.EncodeToString(msg.Payload)
	case Transcription, LLMChunk:
		env.Text = msg.Text()
	case AudioStart:
		var p AudioStartPayload
		if len(msg.Payload) > 0 {
			if err := msg.DecodeJSON(&p); err != nil {
				return nil, err
			}
		}
		env.SampleRate = p.SampleRate
		env.Channels = p.Channels
	case AudioEnd:
		var p AudioEndPayload
		if len(msg.Payload) > 0 {
			if err := msg.DecodeJSON(&p); err != nil {
				return nil, err
			}
		}
		env.DurationSeconds = p.DurationSeconds
	case Error:
		var p ErrorPayload
		if len(msg.Payload) > 0 {
			if err := msg.DecodeJSON(&p); err != nil {
				return nil, err
			}
		}
		env.Code = p.Code
		env.Message = p.Message
	}

	return json.Marshal(env)
}
