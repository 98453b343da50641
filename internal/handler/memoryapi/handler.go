package memoryapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/irislabs/voice-gateway/internal/memory"
	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
	"github.com/irislabs/voice-gateway/pkg/utils"
)

// Handler exposes the knowledge graph over REST. Writes through this
// surface count as user edits, which is what drives summary staleness
// after the user corrects their own memory.
type Handler struct {
	engine *memory.Engine
}

// New builds the memory API handler.
func New(engine *memory.Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes mounts the memory endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/memory", func(r chi.Router) {
		r.Get("/graph", h.getGraph)
		r.Get("/search", h.search)
		r.Get("/summary", h.getSummary)
		r.Put("/summary", h.putSummary)
		r.Get("/edits", h.listEdits)
		r.Get("/history", h.getHistory)
		r.Delete("/history", h.clearHistory)
		r.Post("/entities", h.createEntities)
		r.Delete("/entities", h.deleteEntities)
		r.Post("/observations", h.addObservations)
		r.Delete("/observations", h.deleteObservations)
		r.Post("/relations", h.createRelation)
		r.Delete("/relations", h.deleteRelations)
	})
}

func userIDParam(r *http.Request) string {
	return r.URL.Query().Get("userId")
}

func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	graph, err := h.engine.ReadGraph(userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to read graph")
		return
	}
	utils.RespondJSON(w, http.StatusOK, graph)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	query := r.URL.Query().Get("q")
	if userID == "" || query == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId and q query parameters are required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	hits, err := h.engine.SearchNodes(userID, query, limit)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	view, err := h.engine.GetSummary(userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}
	if view == nil {
		utils.RespondError(w, http.StatusNotFound, "no summary generated yet")
		return
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

type summaryRequest struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

func (h *Handler) putSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId and text are required")
		return
	}

	if err := h.engine.SaveSummary(req.UserID, req.Text); err != nil {
		if errors.Is(err, memory.ErrSummaryTooShort) {
			utils.RespondError(w, http.StatusBadRequest, "summary text is too short")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to save summary")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) listEdits(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	edits, err := h.engine.UserEdits(userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list edits")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"edits": edits})
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	turns, err := h.engine.RecentTurns(userID, limit)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (h *Handler) clearHistory(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	removed, err := h.engine.ClearHistory(userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

type entitiesRequest struct {
	UserID   string               `json:"userId"`
	Entities []memory.EntityInput `json:"entities"`
}

func (h *Handler) createEntities(w http.ResponseWriter, r *http.Request) {
	var req entitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || len(req.Entities) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "userId and entities are required")
		return
	}

	created, err := h.engine.CreateEntities(req.UserID, req.Entities, true)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create entities")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{"entities": created})
}

type deleteEntitiesRequest struct {
	UserID string   `json:"userId"`
	Names  []string `json:"names"`
}

func (h *Handler) deleteEntities(w http.ResponseWriter, r *http.Request) {
	var req deleteEntitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || len(req.Names) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "userId and names are required")
		return
	}

	deleted, err := h.engine.DeleteEntities(req.UserID, req.Names)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete entities")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

type observationsRequest struct {
	UserID       string   `json:"userId"`
	EntityName   string   `json:"entityName"`
	Observations []string `json:"observations"`
}

func (h *Handler) addObservations(w http.ResponseWriter, r *http.Request) {
	var req observationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.UserID == "" || req.EntityName == "" || len(req.Observations) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "userId, entityName and observations are required")
		return
	}

	added, err := h.engine.AddObservations(req.UserID, req.EntityName, req.Observations, true)
	if err != nil {
		if errors.Is(err, memory.ErrEntityNotFound) {
			utils.RespondError(w, http.StatusNotFound, "entity not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to add observations")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"added": added})
}

func (h *Handler) deleteObservations(w http.ResponseWriter, r *http.Request) {
	var req observationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.UserID == "" || req.EntityName == "" || len(req.Observations) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "userId, entityName and observations are required")
		return
	}

	removed, err := h.engine.DeleteObservations(req.UserID, req.EntityName, req.Observations)
	if err != nil {
		if errors.Is(err, memory.ErrEntityNotFound) {
			utils.RespondError(w, http.StatusNotFound, "entity not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete observations")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

type relationRequest struct {
	UserID       string `json:"userId"`
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

func (h *Handler) createRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.UserID == "" || req.From == "" || req.To == "" || req.RelationType == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId, from, to and relationType are required")
		return
	}

	created, err := h.engine.CreateRelation(req.UserID, req.From, req.To, req.RelationType)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create relation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"created": created})
}

type deleteRelationsRequest struct {
	UserID    string                  `json:"userId"`
	Relations []memmodel.RelationView `json:"relations"`
}

func (h *Handler) deleteRelations(w http.ResponseWriter, r *http.Request) {
	var req deleteRelationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || len(req.Relations) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "userId and relations are required")
		return
	}

	removed, err := h.engine.DeleteRelations(req.UserID, req.Relations)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete relations")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
