package ai

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/irislabs/voice-gateway/internal/voice"
)

// FallbackAck is spoken when the fast model misses its deadline.
const FallbackAck = "Got it, working on that."

const defaultAckTimeout = 600 * time.Millisecond

// Pure greetings and bare confirmations get no acknowledgment; the main
// reply is short enough on its own.
var greetingPattern = regexp.MustCompile(`^(hi|hey|hello|yes|no|ok|okay|thanks|thank you|bye)[\s!?.]*$`)

// ackPattern maps a transcript match to a canned acknowledgment and the
// intent it implies. Checked in order; first hit wins.
type ackPattern struct {
	match  func(string) bool
	reply  string
	intent string
}

var ackPatterns = []ackPattern{
	{containsAny("fleet", "ship"), "Checking your fleet.", "fleet_status"},
	{containsAny("wallet", "balance", "credits"), "Checking your balance.", "wallet_balance"},
	{containsAny("market", "price", "prices"), "Looking at the market.", "market_info"},
	{containsAny("help"), "Sure, let me help.", "help"},
	{hasPrefixAny("what", "where", "when", "who", "why", "how", "is ", "are ", "can ", "do ", "does "), "Let me check.", "question"},
	{hasPrefixAny("check", "show", "tell", "find", "get", "set", "buy", "sell", "send"), "On it.", "command"},
}

func containsAny(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
}

func hasPrefixAny(prefixes ...string) func(string) bool {
	return func(s string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(s, p) {
				return true
			}
		}
		return false
	}
}

// Acknowledger produces the sub-second filler line that bridges the gap
// until the main reply starts speaking. The pattern table answers most
// transcripts without a model round-trip; the fast model covers the rest
// under a hard deadline.
type Acknowledger struct {
	model   model.ChatModel
	timeout time.Duration
}

// NewAcknowledger builds the fast path. fastModel may be nil; the pattern
// table and fallback still work without it.
func NewAcknowledger(fastModel model.ChatModel) *Acknowledger {
	return &Acknowledger{model: fastModel, timeout: defaultAckTimeout}
}

// Acknowledge returns the acknowledgment for a transcript, or false when
// the style or transcript calls for none.
func (a *Acknowledger) Acknowledge(ctx context.Context, transcript string, style voice.Style) (voice.Acknowledgment, bool) {
	if style.Feedback == voice.FeedbackNone {
		return voice.Acknowledgment{}, false
	}

	lowered := strings.ToLower(strings.TrimSpace(transcript))
	if len(lowered) < 5 || greetingPattern.MatchString(lowered) {
		return voice.Acknowledgment{}, false
	}

	for _, p := range ackPatterns {
		if p.match(lowered) {
			return voice.Acknowledgment{Text: p.reply, Intent: p.intent, NeedsFollowUp: true}, true
		}
	}

	// Brief styles never pay for a model round-trip.
	if style.Feedback == voice.FeedbackBrief || a.model == nil {
		return fallbackAcknowledgment(), true
	}

	return a.modelAck(ctx, transcript), true
}

func fallbackAcknowledgment() voice.Acknowledgment {
	return voice.Acknowledgment{Text: FallbackAck, Intent: "generic", NeedsFollowUp: true}
}

// modelAckResponse is the constrained shape the fast model is asked for.
type modelAckResponse struct {
	Text          string `json:"text"`
	Intent        string `json:"intent"`
	NeedsFollowUp *bool  `json:"needsFollowUp"`
}

func (a *Acknowledger) modelAck(ctx context.Context, transcript string) voice.Acknowledgment {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.model.Generate(callCtx, []*schema.Message{
		schema.SystemMessage("You acknowledge a spoken request before the real answer is ready. " +
			"Reply with only a JSON object {\"text\": string, \"intent\": string, \"needsFollowUp\": bool}. " +
			"text is a natural filler of at most six words, like \"Checking that now.\"; " +
			"intent is a short snake_case label for what the user wants; " +
			"needsFollowUp is true when a fuller answer must follow."),
		schema.UserMessage(transcript),
	})
	if err != nil {
		log.Printf("[ai] fast acknowledgment missed deadline: %v", err)
		return fallbackAcknowledgment()
	}

	var parsed modelAckResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &parsed); err != nil || strings.TrimSpace(parsed.Text) == "" {
		log.Printf("[ai] fast acknowledgment unparseable: %.80q", resp.Content)
		return fallbackAcknowledgment()
	}

	followUp := true
	if parsed.NeedsFollowUp != nil {
		followUp = *parsed.NeedsFollowUp
	}
	return voice.Acknowledgment{
		Text:          strings.TrimSpace(parsed.Text),
		Intent:        parsed.Intent,
		NeedsFollowUp: followUp,
	}
}
