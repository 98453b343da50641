package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/irislabs/voice-gateway/internal/memory"
	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
)

func (r *Registry) registerMemoryTools() {
	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "search_memory",
			Desc: "Search the user's long-term memory for entities matching a query. Use this before answering questions about people, ships, places or preferences the user mentioned before.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Words to look for in entity names and observations", Required: true},
				"limit": {Type: schema.Integer, Desc: "Maximum number of results, default 5"},
			}),
		},
		Run: r.runSearchMemory,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "remember",
			Desc: "Store a new entity in long-term memory, or add observations to it if it already exists.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"name":        {Type: schema.String, Desc: "Entity name, e.g. a person, ship or place", Required: true},
				"entity_type": {Type: schema.String, Desc: "One of: person, ship, fleet, location, organization, event, preference, concept"},
				"observations": {
					Type:     schema.Array,
					Desc:     "Facts about the entity, one per element",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
				},
			}),
		},
		Run: r.runRemember,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "add_observation",
			Desc: "Append facts to an entity that already exists in memory.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"entity_name": {Type: schema.String, Desc: "Exact name of the entity", Required: true},
				"observations": {
					Type:     schema.Array,
					Desc:     "Facts to append",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
			}),
		},
		Run: r.runAddObservation,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "create_relation",
			Desc: "Link two entities that both exist in memory, e.g. Alice commands The Armada.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"from":          {Type: schema.String, Desc: "Source entity name", Required: true},
				"to":            {Type: schema.String, Desc: "Target entity name", Required: true},
				"relation_type": {Type: schema.String, Desc: "Verb phrase, e.g. commands, docked_at, owns", Required: true},
			}),
		},
		Run: r.runCreateRelation,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "forget",
			Desc: "Delete entities from memory when the user asks to forget them. Their observations and relations go too.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"names": {
					Type:     schema.Array,
					Desc:     "Exact names of the entities to delete",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
			}),
		},
		Run: r.runForget,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "remove_observation",
			Desc: "Delete specific facts from an entity without deleting the entity.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"entity_name": {Type: schema.String, Desc: "Exact name of the entity", Required: true},
				"observations": {
					Type:     schema.Array,
					Desc:     "Exact observation texts to remove",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
			}),
		},
		Run: r.runRemoveObservation,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "open_nodes",
			Desc: "Load specific entities and the relations between them by exact name.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"names": {
					Type:     schema.Array,
					Desc:     "Exact entity names",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
			}),
		},
		Run: r.runOpenNodes,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "get_memory_summary",
			Desc: "Get a short prose summary of everything known about the user. Regenerates automatically when the cached one is out of date.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		Run: r.runGetMemorySummary,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "get_recent_conversation",
			Desc: "Recall the most recent turns of conversation with this user.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"limit": {Type: schema.Integer, Desc: "How many turns, default 10"},
			}),
		},
		Run: r.runGetRecentConversation,
	})
}

func (r *Registry) runSearchMemory(ctx context.Context, userID string, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	hits, err := r.engine.SearchNodes(userID, query, intArg(args, "limit", 5))
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "no matching memories", nil
	}
	return marshalResult(hits)
}

func (r *Registry) runRemember(ctx context.Context, userID string, args map[string]any) (string, error) {
	name := strings.TrimSpace(stringArg(args, "name"))
	if name == "" {
		return "", fmt.Errorf("name is required")
	}

	created, err := r.engine.CreateEntities(userID, []memory.EntityInput{{
		Name:         name,
		EntityType:   stringArg(args, "entity_type"),
		Observations: stringSliceArg(args, "observations"),
	}}, false)
	if err != nil {
		return "", err
	}
	return marshalResult(created)
}

func (r *Registry) runAddObservation(ctx context.Context, userID string, args map[string]any) (string, error) {
	name := strings.TrimSpace(stringArg(args, "entity_name"))
	obs := stringSliceArg(args, "observations")
	if name == "" || len(obs) == 0 {
		return "", fmt.Errorf("entity_name and observations are required")
	}

	added, err := r.engine.AddObservations(userID, name, obs, false)
	if err != nil {
		if err == memory.ErrEntityNotFound {
			return fmt.Sprintf("no entity named %q; use remember to create it first", name), nil
		}
		return "", err
	}
	return fmt.Sprintf("added %d observations to %s", added, name), nil
}

func (r *Registry) runCreateRelation(ctx context.Context, userID string, args map[string]any) (string, error) {
	from := strings.TrimSpace(stringArg(args, "from"))
	to := strings.TrimSpace(stringArg(args, "to"))
	relType := strings.TrimSpace(stringArg(args, "relation_type"))
	if from == "" || to == "" || relType == "" {
		return "", fmt.Errorf("from, to and relation_type are required")
	}

	created, err := r.engine.CreateRelation(userID, from, to, relType)
	if err != nil {
		return "", err
	}
	if !created {
		return "relation already exists or an endpoint is missing", nil
	}
	return fmt.Sprintf("linked %s -[%s]-> %s", from, relType, to), nil
}

func (r *Registry) runForget(ctx context.Context, userID string, args map[string]any) (string, error) {
	names := stringSliceArg(args, "names")
	if len(names) == 0 {
		return "", fmt.Errorf("names is required")
	}

	deleted, err := r.engine.DeleteEntities(userID, names)
	if err != nil {
		return "", err
	}
	if len(deleted) == 0 {
		return "nothing matched those names", nil
	}
	return fmt.Sprintf("forgot: %s", strings.Join(deleted, ", ")), nil
}

func (r *Registry) runRemoveObservation(ctx context.Context, userID string, args map[string]any) (string, error) {
	name := strings.TrimSpace(stringArg(args, "entity_name"))
	obs := stringSliceArg(args, "observations")
	if name == "" || len(obs) == 0 {
		return "", fmt.Errorf("entity_name and observations are required")
	}

	removed, err := r.engine.DeleteObservations(userID, name, obs)
	if err != nil {
		if err == memory.ErrEntityNotFound {
			return fmt.Sprintf("no entity named %q", name), nil
		}
		return "", err
	}
	return fmt.Sprintf("removed %d observations from %s", len(removed), name), nil
}

func (r *Registry) runOpenNodes(ctx context.Context, userID string, args map[string]any) (string, error) {
	names := stringSliceArg(args, "names")
	if len(names) == 0 {
		return "", fmt.Errorf("names is required")
	}

	graph, err := r.engine.OpenNodes(userID, names)
	if err != nil {
		return "", err
	}
	if len(graph.Entities) == 0 {
		return "no entities with those names", nil
	}
	return marshalResult(graph)
}

func (r *Registry) runGetMemorySummary(ctx context.Context, userID string, args map[string]any) (string, error) {
	view, err := r.engine.GetSummary(userID)
	if err != nil {
		return "", err
	}
	if view != nil && !view.Stale {
		return view.Text, nil
	}

	text, err := r.generateSummary(ctx, userID)
	if err != nil {
		// Serve the stale text rather than nothing.
		if view != nil {
			return view.Text, nil
		}
		return "", err
	}
	if err := r.engine.SaveSummary(userID, text); err != nil && err != memory.ErrSummaryTooShort {
		return "", err
	}
	return text, nil
}

// generateSummary prefers the LLM-backed generator and falls back to a
// flat listing of the most recently touched entities.
func (r *Registry) generateSummary(ctx context.Context, userID string) (string, error) {
	if r.summarize != nil {
		return r.summarize(ctx, userID)
	}

	entities, err := r.engine.RecentEntities(userID, 10)
	if err != nil {
		return "", err
	}
	if len(entities) == 0 {
		return "", fmt.Errorf("nothing in memory yet")
	}

	var b strings.Builder
	for _, e := range entities {
		b.WriteString(e.Name)
		b.WriteString(" (")
		b.WriteString(e.EntityType)
		b.WriteString(")")
		if len(e.Observations) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(e.Observations, "; "))
		}
		b.WriteString(". ")
	}
	return strings.TrimSpace(b.String()), nil
}

func (r *Registry) runGetRecentConversation(ctx context.Context, userID string, args map[string]any) (string, error) {
	turns, err := r.engine.RecentTurns(userID, intArg(args, "limit", 10))
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "no recent conversation", nil
	}

	var b strings.Builder
	for _, turn := range turns {
		if turn.Role == memmodel.RoleUser {
			b.WriteString("user: ")
		} else {
			b.WriteString("assistant: ")
		}
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
