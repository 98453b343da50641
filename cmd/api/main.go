package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/irislabs/voice-gateway/internal/config"
	"github.com/irislabs/voice-gateway/internal/handler"
	"github.com/irislabs/voice-gateway/internal/memory"
	"github.com/irislabs/voice-gateway/internal/service/ai"
	"github.com/irislabs/voice-gateway/internal/service/stt"
	"github.com/irislabs/voice-gateway/internal/service/tts"
	"github.com/irislabs/voice-gateway/internal/tools"
	"github.com/irislabs/voice-gateway/internal/voice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	engine, err := memory.Open(cfg.Memory.DBPath, memory.Options{
		ConversationTTL: cfg.Memory.ConversationTTL,
	})
	if err != nil {
		log.Fatalf("failed to open memory store: %v", err)
	}
	defer engine.Close()
	engine.StartCleanup(ctx, cfg.Memory.CleanupInterval)
	log.Printf("memory store open at %s", cfg.Memory.DBPath)

	sttClient := stt.NewClient(cfg.STT)
	if !cfg.STT.Enabled() {
		log.Println("STT_ENDPOINT not set, speech recognition disabled")
	}
	ttsClient := tts.NewClient(cfg.TTS)
	if !cfg.TTS.Enabled() {
		log.Println("TTS_ENDPOINT not set, speech synthesis disabled")
	}

	registryOpts := []tools.Option{tools.WithDomainEndpoint(cfg.Voice.DomainEndpoint)}

	var responder voice.Responder
	var acknowledger voice.Acknowledger
	if cfg.LLM.Enabled() {
		mainModel, err := cfg.LLM.NewMainChatModel(ctx)
		if err != nil {
			log.Fatalf("failed to initialize main model: %v", err)
		}
		registryOpts = append(registryOpts, tools.WithSummaryGenerator(ai.NewSummaryGenerator(mainModel, engine)))

		registry := tools.NewRegistry(engine, registryOpts...)
		aiService, err := ai.NewService(mainModel, registry, engine)
		if err != nil {
			log.Fatalf("failed to initialize AI service: %v", err)
		}
		responder = aiService

		if cfg.LLM.FastEnabled() {
			fastModel, err := cfg.LLM.NewFastChatModel(ctx)
			if err != nil {
				log.Printf("warning: fast model unavailable, using the pattern table only: %v", err)
				acknowledger = ai.NewAcknowledger(nil)
			} else {
				acknowledger = ai.NewAcknowledger(fastModel)
			}
		} else {
			acknowledger = ai.NewAcknowledger(nil)
		}
		log.Println("AI service initialized")
	} else {
		log.Println("LLM credentials not configured, replies disabled")
	}

	deps := voice.Deps{
		STT:           sttClient,
		TTS:           ttsClient,
		Responder:     responder,
		Ack:           acknowledger,
		Memory:        engine,
		TTSSampleRate: cfg.TTS.SampleRate,
	}

	router := handler.NewRouter(deps, engine, cfg.Voice)
	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voice gateway listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
