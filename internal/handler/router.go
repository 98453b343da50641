package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/irislabs/voice-gateway/internal/config"
	"github.com/irislabs/voice-gateway/internal/handler/memoryapi"
	"github.com/irislabs/voice-gateway/internal/handler/voicews"
	"github.com/irislabs/voice-gateway/internal/memory"
	middlewarePkg "github.com/irislabs/voice-gateway/internal/middleware"
	"github.com/irislabs/voice-gateway/internal/voice"
	"github.com/irislabs/voice-gateway/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(deps voice.Deps, engine *memory.Engine, voiceCfg config.VoiceConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	voiceHandler := voicews.New(deps, voiceCfg)
	voiceHandler.RegisterRoutes(r)

	memoryHandler := memoryapi.New(engine)
	r.Route("/api", func(api chi.Router) {
		memoryHandler.RegisterRoutes(api)
	})

	return r
}
