package voice

import "errors"

// Machine-readable error codes carried by ERROR frames.
const (
	// CodeProtocol covers malformed frames and frames that are valid on
	// the wire but illegal in the current state.
	CodeProtocol = "PROTOCOL"
	// CodeInputTooLong is sent when a capture exceeds the configured cap.
	CodeInputTooLong = "INPUT_TOO_LONG"
	// CodeUpstream covers transient STT, TTS and model failures,
	// timeouts included.
	CodeUpstream = "UPSTREAM"
	// CodeUpstreamFatal covers rejections that a retry cannot cure, like
	// bad credentials or an exhausted quota.
	CodeUpstreamFatal = "UPSTREAM_FATAL"
	// CodeSlowClient is sent when the client cannot drain the outbound
	// queue in time.
	CodeSlowClient = "SLOW_CLIENT"
	// CodeInternal covers everything else.
	CodeInternal = "INTERNAL"
)

// Sentinels the Responder implementation returns so the session can
// classify deadline misses without inspecting the underlying model error.
var (
	// ErrFirstTokenTimeout means the model produced nothing before the
	// first-token deadline.
	ErrFirstTokenTimeout = errors.New("first token timeout")
	// ErrTurnTimeout means one full turn overran its budget.
	ErrTurnTimeout = errors.New("turn timeout")
)
