package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a binary wire message. Byte 0 of every frame.
type MessageType uint8

const (
	// AudioStart opens an utterance (C→S) or a TTS segment (S→C).
	AudioStart MessageType = 0x01
	// AudioChunk carries raw little-endian int16 PCM (C→S).
	AudioChunk MessageType = 0x02
	// AudioEnd closes an utterance (C→S) or a TTS segment (S→C).
	AudioEnd MessageType = 0x03
	// Transcription carries UTF-8 transcript text (S→C).
	Transcription MessageType = 0x04
	// LLMChunk carries a UTF-8 text delta from the model (S→C).
	LLMChunk MessageType = 0x05
	// TTSAudio carries raw synthesized PCM (S→C).
	TTSAudio MessageType = 0x06
	// Error carries JSON error details (S→C).
	Error MessageType = 0x07
	// Ready is sent once after the connection is accepted (S→C).
	Ready MessageType = 0x08
	// Done marks the end of a turn (S→C).
	Done MessageType = 0x09
	// Synthesize requests direct TTS without running the models (C→S).
	Synthesize MessageType = 0x0A
	// Ping is a client keepalive (C→S).
	Ping MessageType = 0x0B
	// Pong answers a ping (S→C).
	Pong MessageType = 0x0C
)

func (t MessageType) String() string {
	switch t {
	case AudioStart:
		return "audio_start"
	case AudioChunk:
		return "audio_chunk"
	case AudioEnd:
		return "audio_end"
	case Transcription:
		return "transcription"
	case LLMChunk:
		return "llm_chunk"
	case TTSAudio:
		return "tts_audio"
	case Error:
		return "error"
	case Ready:
		return "ready"
	case Done:
		return "done"
	case Synthesize:
		return "synthesize"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Flags is the bitfield in byte 1 of every frame.
type Flags uint8

const (
	// FlagIsFinal distinguishes final from partial transcripts and streams.
	FlagIsFinal Flags = 0x01
	// FlagNeedsFollowup marks an acknowledgment whose main answer follows.
	FlagNeedsFollowup Flags = 0x02
)

// Message is a parsed binary wire frame. Payload aliases the slice handed
// to Parse; callers that retain it past the read loop must copy.
type Message struct {
	Type    MessageType
	Flags   Flags
	Payload []byte
}

// IsFinal reports whether the IS_FINAL flag bit is set.
func (m *Message) IsFinal() bool {
	return m.Flags&FlagIsFinal != 0
}

// NeedsFollowup reports whether the NEEDS_FOLLOWUP flag bit is set.
func (m *Message) NeedsFollowup() bool {
	return m.Flags&FlagNeedsFollowup != 0
}

// Text decodes the payload as UTF-8 text.
func (m *Message) Text() string {
	return string(m.Payload)
}

// DecodeJSON unmarshals the payload into v.
func (m *Message) DecodeJSON(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// ErrUnknownType is returned by Parse for type codes outside 0x01..0x0C.
type ErrUnknownType struct {
	Code uint8
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown message type: 0x%02x", e.Code)
}

// Parse decodes a binary frame: byte 0 type, byte 1 flags, bytes 2+ payload.
func Parse(data []byte) (*Message, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("message too short: %d bytes (need at least 2)", len(data))
	}

	t := MessageType(data[0])
	if t < AudioStart || t > Pong {
		return nil, &ErrUnknownType{Code: data[0]}
	}

	msg := &Message{
		Type:  t,
		Flags: Flags(data[1]),
	}
	if len(data) > 2 {
		msg.Payload = data[2:]
	}
	return msg, nil
}

// Encode produces a wire frame for the given type, flags and payload.
func Encode(t MessageType, flags Flags, payload []byte) []byte {
	buf := make([]byte, 2+len(payload))
	buf[0] = byte(t)
	buf[1] = byte(flags)
	copy(buf[2:], payload)
	return buf
}

// AudioStartPayload is the JSON metadata of an AUDIO_START frame.
type AudioStartPayload struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels,omitempty"`
}

// AudioEndPayload is the JSON metadata of a server AUDIO_END frame.
type AudioEndPayload struct {
	DurationSeconds float64 `json:"durationSeconds"`
}

// SynthesizePayload is the JSON body of a SYNTHESIZE request.
type SynthesizePayload struct {
	Text         string  `json:"text"`
	Exaggeration float64 `json:"exaggeration"`
	SpeechRate   float64 `json:"speechRate"`
}

// ErrorPayload is the JSON body of an ERROR frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Convenience encoders for the common server-side frames.

// EncodeReady encodes an empty READY frame.
func EncodeReady() []byte {
	return Encode(Ready, 0, nil)
}

// EncodePong encodes an empty PONG frame.
func EncodePong() []byte {
	return Encode(Pong, 0, nil)
}

// EncodeDone encodes the end-of-turn frame.
func EncodeDone() []byte {
	return Encode(Done, FlagIsFinal, nil)
}

// EncodeTranscription encodes a transcript frame.
func EncodeTranscription(text string, isFinal bool) []byte {
	var flags Flags
	if isFinal {
		flags = FlagIsFinal
	}
	return Encode(Transcription, flags, []byte(text))
}

// EncodeLLMChunk encodes a streaming text delta.
func EncodeLLMChunk(delta string, needsFollowup bool) []byte {
	var flags Flags
	if needsFollowup {
		flags = FlagNeedsFollowup
	}
	return Encode(LLMChunk, flags, []byte(delta))
}

// EncodeTTSAudio encodes a raw PCM chunk.
func EncodeTTSAudio(pcm []byte, isFinal bool) []byte {
	var flags Flags
	if isFinal {
		flags = FlagIsFinal
	}
	return Encode(TTSAudio, flags, pcm)
}

// EncodeAudioStart encodes a server AUDIO_START carrying the TTS sample rate.
func EncodeAudioStart(sampleRate int) []byte {
	payload, _ := json.Marshal(AudioStartPayload{SampleRate: sampleRate})
	return Encode(AudioStart, 0, payload)
}

// EncodeAudioEnd encodes a server AUDIO_END with the segment duration.
func EncodeAudioEnd(durationSeconds float64) []byte {
	payload, _ := json.Marshal(AudioEndPayload{DurationSeconds: durationSeconds})
	return Encode(AudioEnd, FlagIsFinal, payload)
}

// EncodeError encodes an ERROR frame with a machine-readable code.
func EncodeError(code, message string) []byte {
	payload, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Encode(Error, 0, payload)
}
