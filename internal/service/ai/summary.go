package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/irislabs/voice-gateway/internal/memory"
	"github.com/irislabs/voice-gateway/internal/tools"
)

// NewSummaryGenerator returns the LLM-backed regeneration path for the
// get_memory_summary tool: it renders the user's graph and asks the model
// for a few sentences of prose.
func NewSummaryGenerator(chatModel model.ChatModel, engine *memory.Engine) tools.SummaryGenerator {
	return func(ctx context.Context, userID string) (string, error) {
		graph, err := engine.ReadGraph(userID)
		if err != nil {
			return "", err
		}
		if len(graph.Entities) == 0 {
			return "", fmt.Errorf("nothing in memory yet")
		}

		var b strings.Builder
		for _, e := range graph.Entities {
			fmt.Fprintf(&b, "%s (%s)", e.Name, e.EntityType)
			if len(e.Observations) > 0 {
				fmt.Fprintf(&b, ": %s", strings.Join(e.Observations, "; "))
			}
			b.WriteString("\n")
		}
		for _, rel := range graph.Relations {
			fmt.Fprintf(&b, "%s %s %s\n", rel.From, rel.RelationType, rel.To)
		}

		resp, err := chatModel.Generate(ctx, []*schema.Message{
			schema.SystemMessage("Summarize what is known about the user in two to four plain sentences. " +
				"Write prose, no lists, no preamble."),
			schema.UserMessage(b.String()),
		})
		if err != nil {
			return "", fmt.Errorf("summary generation failed: %w", err)
		}

		text := strings.TrimSpace(resp.Content)
		if len(text) < 10 {
			return "", fmt.Errorf("summary generation produced nothing usable")
		}
		return text, nil
	}
}
