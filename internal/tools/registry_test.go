package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/irislabs/voice-gateway/internal/memory"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *memory.Engine) {
	t.Helper()
	engine, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"), memory.Options{})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return NewRegistry(engine, opts...), engine
}

func TestRegistryExposesAllTools(t *testing.T) {
	registry, _ := newTestRegistry(t)

	want := []string{
		"search_memory", "remember", "add_observation", "create_relation",
		"forget", "remove_observation", "open_nodes", "get_memory_summary",
		"get_recent_conversation", "get_current_time", "calculate",
		"wallet_balance", "fleet_status",
	}
	infos := registry.Infos()
	if len(infos) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(infos))
	}
	for i, name := range want {
		if infos[i].Name != name {
			t.Fatalf("tool %d: got %s, want %s", i, infos[i].Name, name)
		}
	}
}

func TestRememberThenSearch(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	out, err := registry.Call(ctx, "alice", "remember",
		`{"name":"The Armada","entity_type":"fleet","observations":["has 4 ships"]}`)
	if err != nil {
		t.Fatalf("remember err: %v", err)
	}
	if !strings.Contains(out, "The Armada") {
		t.Fatalf("unexpected remember result: %s", out)
	}

	out, err = registry.Call(ctx, "alice", "search_memory", `{"query":"armada"}`)
	if err != nil {
		t.Fatalf("search err: %v", err)
	}
	var hits []map[string]any
	if err := json.Unmarshal([]byte(out), &hits); err != nil {
		t.Fatalf("search result not json: %v\n%s", err, out)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
}

func TestToolFailureReturnsContentNotError(t *testing.T) {
	registry, _ := newTestRegistry(t)

	out, err := registry.Call(context.Background(), "alice", "add_observation",
		`{"entity_name":"Ghost Ship","observations":["missing"]}`)
	if err != nil {
		t.Fatalf("tool-level failure must not surface as error: %v", err)
	}
	if !strings.Contains(out, "Ghost Ship") {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestUnknownToolIsAnError(t *testing.T) {
	registry, _ := newTestRegistry(t)
	if _, err := registry.Call(context.Background(), "alice", "self_destruct", "{}"); err == nil {
		t.Fatalf("unknown tool must error")
	}
}

func TestMalformedArgumentsReported(t *testing.T) {
	registry, _ := newTestRegistry(t)
	out, err := registry.Call(context.Background(), "alice", "search_memory", `{"query":`)
	if err != nil {
		t.Fatalf("malformed args must not surface as error: %v", err)
	}
	if !strings.Contains(out, "malformed") {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestCalculate(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	cases := []struct {
		expr string
		want string
	}{
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"15% of 2400", "360"},
		{"100 / 8", "12.5"},
		{"-5 + 10", "5"},
		{"2,400 * 2", "4800"},
	}
	for _, tc := range cases {
		out, err := registry.Call(ctx, "alice", "calculate", `{"expression":"`+tc.expr+`"}`)
		if err != nil {
			t.Fatalf("calculate(%q) err: %v", tc.expr, err)
		}
		if out != tc.want {
			t.Fatalf("calculate(%q) = %s, want %s", tc.expr, out, tc.want)
		}
	}

	out, _ := registry.Call(ctx, "alice", "calculate", `{"expression":"5 / 0"}`)
	if !strings.Contains(out, "division by zero") {
		t.Fatalf("expected division by zero notice, got %s", out)
	}
}

func TestGetMemorySummaryRegeneratesWhenStale(t *testing.T) {
	var generated int
	registry, engine := newTestRegistry(t, WithSummaryGenerator(
		func(ctx context.Context, userID string) (string, error) {
			generated++
			return "Alice commands The Armada out of Jita.", nil
		}))
	ctx := context.Background()

	if _, err := registry.Call(ctx, "alice", "remember",
		`{"name":"The Armada","entity_type":"fleet"}`); err != nil {
		t.Fatalf("remember err: %v", err)
	}

	out, err := registry.Call(ctx, "alice", "get_memory_summary", "{}")
	if err != nil {
		t.Fatalf("summary err: %v", err)
	}
	if out != "Alice commands The Armada out of Jita." {
		t.Fatalf("unexpected summary: %s", out)
	}
	if generated != 1 {
		t.Fatalf("expected 1 generation, got %d", generated)
	}

	// Cached and fresh: the generator must not run again.
	if _, err := registry.Call(ctx, "alice", "get_memory_summary", "{}"); err != nil {
		t.Fatalf("summary err: %v", err)
	}
	if generated != 1 {
		t.Fatalf("fresh summary must come from cache, generator ran %d times", generated)
	}

	view, err := engine.GetSummary("alice")
	if err != nil || view == nil {
		t.Fatalf("summary not persisted: %v", err)
	}
}

func TestDomainToolsWithoutEndpoint(t *testing.T) {
	registry, _ := newTestRegistry(t)

	out, err := registry.Call(context.Background(), "alice", "wallet_balance", "{}")
	if err != nil {
		t.Fatalf("wallet_balance err: %v", err)
	}
	if !strings.Contains(out, "not configured") {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestDomainToolsProxyToGameAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fleet/alice" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		io.WriteString(w, `{"ships":4,"docked":2}`)
	}))
	defer server.Close()

	registry, _ := newTestRegistry(t, WithDomainEndpoint(server.URL))
	out, err := registry.Call(context.Background(), "alice", "fleet_status", "{}")
	if err != nil {
		t.Fatalf("fleet_status err: %v", err)
	}
	if !strings.Contains(out, `"ships":4`) {
		t.Fatalf("unexpected result: %s", out)
	}
}
