package ai

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
	"github.com/irislabs/voice-gateway/internal/voice"
)

const personaPreamble = `You are the onboard voice interface of the user's ship. You speak every reply aloud, so keep answers short, conversational and free of markdown, lists and URLs. Use the memory tools to recall and store facts about the user; never claim to remember something without checking.`

const maxContextEntities = 8

// PromptInput carries everything the prompt builder needs. It stays a
// plain value so the builder is trivially testable.
type PromptInput struct {
	Transcript string
	Style      voice.Style
	// Acknowledgment is the filler line already spoken, if any. The main
	// reply must continue past it rather than repeat it.
	Acknowledgment string
	// Summary is the cached prose summary; only fresh summaries belong
	// here.
	Summary string
	// Entities are the most recently touched graph nodes.
	Entities []memmodel.EntityView
	// History is the recent conversation in chronological order.
	History []memmodel.Turn
}

// BuildMessages assembles the full message list for one main-model turn.
func BuildMessages(in PromptInput) []*schema.Message {
	var sys strings.Builder
	sys.WriteString(personaPreamble)

	if in.Style.PromptModifier != "" {
		sys.WriteString("\n\n")
		sys.WriteString(in.Style.PromptModifier)
	}

	if in.Summary != "" {
		sys.WriteString("\n\nWhat you know about the user:\n")
		sys.WriteString(in.Summary)
	}

	if block := entityBlock(in.Entities); block != "" {
		sys.WriteString("\n\nRecently discussed:\n")
		sys.WriteString(block)
	}

	if in.Acknowledgment != "" {
		sys.WriteString("\n\nYou already said: \"")
		sys.WriteString(in.Acknowledgment)
		sys.WriteString("\" Continue naturally from there without repeating it.")
	}

	// The current transcript is usually persisted before the request is
	// assembled, so it shows up as the newest history turn too. Drop that
	// copy; the transcript is appended once, below.
	history := in.History
	if n := len(history); n > 0 && history[n-1].Role == memmodel.RoleUser && history[n-1].Content == in.Transcript {
		history = history[:n-1]
	}

	messages := []*schema.Message{schema.SystemMessage(sys.String())}
	for _, turn := range history {
		if turn.Role == memmodel.RoleAssistant {
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		} else {
			messages = append(messages, schema.UserMessage(turn.Content))
		}
	}
	return append(messages, schema.UserMessage(in.Transcript))
}

// entityBlock renders the context entities as terse lines the model can
// scan, capped so the prompt stays bounded.
func entityBlock(entities []memmodel.EntityView) string {
	if len(entities) == 0 {
		return ""
	}
	if len(entities) > maxContextEntities {
		entities = entities[:maxContextEntities]
	}

	var b strings.Builder
	for _, e := range entities {
		b.WriteString("- ")
		b.WriteString(e.Name)
		b.WriteString(" (")
		b.WriteString(e.EntityType)
		b.WriteString(")")
		if len(e.Observations) > 0 {
			obs := e.Observations
			if len(obs) > 3 {
				obs = obs[:3]
			}
			b.WriteString(": ")
			b.WriteString(strings.Join(obs, "; "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
