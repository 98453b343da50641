package memoryapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/irislabs/voice-gateway/internal/memory"
	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
)

func newTestAPI(t *testing.T) (*httptest.Server, *memory.Engine) {
	t.Helper()
	engine, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"), memory.Options{})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		New(engine).RegisterRoutes(api)
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, engine
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode err: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request err: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do err: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEntityLifecycleOverREST(t *testing.T) {
	server, engine := newTestAPI(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/memory/entities", map[string]any{
		"userId": "alice",
		"entities": []map[string]any{{
			"name":         "The Armada",
			"entityType":   "fleet",
			"observations": []string{"has 4 ships"},
		}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/memory/graph?userId=alice", nil)
	var graph memmodel.Graph
	if err := json.NewDecoder(resp.Body).Decode(&graph); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(graph.Entities) != 1 || graph.Entities[0].Name != "The Armada" {
		t.Fatalf("unexpected graph: %+v", graph)
	}

	// REST writes are user edits.
	edits, err := engine.UserEdits("alice")
	if err != nil || len(edits) != 1 {
		t.Fatalf("expected 1 user edit, got %d (%v)", len(edits), err)
	}

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/memory/entities", map[string]any{
		"userId": "alice",
		"names":  []string{"The Armada"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete returned %d", resp.StatusCode)
	}
}

func TestSearchEndpoint(t *testing.T) {
	server, engine := newTestAPI(t)
	if _, err := engine.CreateEntities("alice", []memory.EntityInput{
		{Name: "Jita Station", EntityType: "location"},
	}, false); err != nil {
		t.Fatalf("seed err: %v", err)
	}

	resp := doJSON(t, http.MethodGet, server.URL+"/api/memory/search?userId=alice&q=jita", nil)
	var body struct {
		Results []memmodel.EntityView `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].Name != "Jita Station" {
		t.Fatalf("unexpected results: %+v", body.Results)
	}
}

func TestSummaryEndpoints(t *testing.T) {
	server, _ := newTestAPI(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/memory/summary?userId=alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing summary should 404, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPut, server.URL+"/api/memory/summary", map[string]string{
		"userId": "alice",
		"text":   "Alice commands The Armada.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put summary returned %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPut, server.URL+"/api/memory/summary", map[string]string{
		"userId": "alice",
		"text":   "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("too-short summary should 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/memory/summary?userId=alice", nil)
	var view memmodel.SummaryView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if view.Text != "Alice commands The Armada." || view.Stale {
		t.Fatalf("unexpected summary view: %+v", view)
	}
}

func TestMissingUserIDRejected(t *testing.T) {
	server, _ := newTestAPI(t)
	resp := doJSON(t, http.MethodGet, server.URL+"/api/memory/graph", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	server, engine := newTestAPI(t)
	if _, err := engine.AddTurn("alice", memmodel.RoleUser, "check my fleet"); err != nil {
		t.Fatalf("seed err: %v", err)
	}

	resp := doJSON(t, http.MethodGet, server.URL+"/api/memory/history?userId=alice", nil)
	var body struct {
		Turns []memmodel.Turn `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(body.Turns))
	}

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/memory/history?userId=alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear returned %d", resp.StatusCode)
	}

	turns, _ := engine.RecentTurns("alice", 10)
	if len(turns) != 0 {
		t.Fatalf("history not cleared, %d turns left", len(turns))
	}
}
