package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every runtime setting of the gateway.
type Config struct {
	Server ServerConfig
	STT    STTConfig
	TTS    TTSConfig
	LLM    LLMConfig
	Memory MemoryConfig
	Voice  VoiceConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	stt, err := loadSTTConfig()
	if err != nil {
		return nil, err
	}

	tts, err := loadTTSConfig()
	if err != nil {
		return nil, err
	}

	llm := loadLLMConfig()

	mem, err := loadMemoryConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, STT: stt, TTS: tts, LLM: llm, Memory: mem, Voice: voice}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	addr := strings.TrimSpace(os.Getenv("VOICE_WS_ADDR"))
	if addr == "" {
		addr = "8080"
	}

	if strings.Contains(addr, ":") {
		// Allow ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: addr}, nil
	}

	if _, err := strconv.Atoi(addr); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid VOICE_WS_ADDR value: %q", addr)
	}

	return ServerConfig{Addr: ":" + addr}, nil
}

// STTConfig describes the speech-to-text egress.
type STTConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// Enabled reports whether an STT endpoint is configured.
func (c STTConfig) Enabled() bool {
	return c.Endpoint != ""
}

func loadSTTConfig() (STTConfig, error) {
	timeout, err := parseDurationEnv("STT_TIMEOUT", 8*time.Second)
	if err != nil {
		return STTConfig{}, err
	}

	return STTConfig{
		Endpoint: strings.TrimSpace(os.Getenv("STT_ENDPOINT")),
		Timeout:  timeout,
	}, nil
}

// TTSConfig describes the text-to-speech egress.
type TTSConfig struct {
	Endpoint     string
	SampleRate   int
	ChunkTimeout time.Duration
}

// Enabled reports whether a TTS endpoint is configured.
func (c TTSConfig) Enabled() bool {
	return c.Endpoint != ""
}

func loadTTSConfig() (TTSConfig, error) {
	timeout, err := parseDurationEnv("TTS_CHUNK_TIMEOUT", 10*time.Second)
	if err != nil {
		return TTSConfig{}, err
	}

	sampleRate := 24000
	if override, err := parseOptionalIntEnv("TTS_SAMPLE_RATE"); err != nil {
		return TTSConfig{}, err
	} else if override != nil {
		sampleRate = *override
	}

	return TTSConfig{
		Endpoint:     strings.TrimSpace(os.Getenv("TTS_ENDPOINT")),
		SampleRate:   sampleRate,
		ChunkTimeout: timeout,
	}, nil
}

// LLMConfig describes the two model endpoints: the main model carries the
// tool loop, the fast model serves the acknowledgment path.
type LLMConfig struct {
	MainAPIKey  string
	MainModel   string
	MainBaseURL string
	FastAPIKey  string
	FastModel   string
	FastBaseURL string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether the main model is usable.
func (c LLMConfig) Enabled() bool {
	return c.MainModel != "" && c.MainAPIKey != ""
}

// FastEnabled reports whether the dedicated fast model is usable. The
// pattern table still answers without one.
func (c LLMConfig) FastEnabled() bool {
	return c.FastModel != "" && c.FastAPIKey != ""
}

// NewMainChatModel builds the tool-capable model instance.
func (c LLMConfig) NewMainChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("main model credentials missing: set LLM_MAIN_API_KEY and LLM_MAIN_MODEL")
	}
	return c.newChatModel(ctx, c.MainAPIKey, c.MainModel, c.MainBaseURL)
}

// NewFastChatModel builds the small acknowledgment model instance.
func (c LLMConfig) NewFastChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.FastEnabled() {
		return nil, fmt.Errorf("fast model credentials missing: set LLM_FAST_MODEL")
	}
	return c.newChatModel(ctx, c.FastAPIKey, c.FastModel, c.FastBaseURL)
}

func (c LLMConfig) newChatModel(ctx context.Context, apiKey, modelName, baseURL string) (model.ChatModel, error) {
	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       modelName,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadLLMConfig() LLMConfig {
	mainKey := strings.TrimSpace(os.Getenv("LLM_MAIN_API_KEY"))
	fastKey := strings.TrimSpace(os.Getenv("LLM_FAST_API_KEY"))
	if fastKey == "" {
		// The fast model usually lives behind the same gateway key.
		fastKey = mainKey
	}

	temperature, _ := parseOptionalFloatEnv("LLM_TEMPERATURE")
	maxTokens, _ := parseOptionalIntEnv("LLM_MAX_TOKENS")

	return LLMConfig{
		MainAPIKey:  mainKey,
		MainModel:   strings.TrimSpace(os.Getenv("LLM_MAIN_MODEL")),
		MainBaseURL: getEnvOrDefault("LLM_MAIN_ENDPOINT", ""),
		FastAPIKey:  fastKey,
		FastModel:   strings.TrimSpace(os.Getenv("LLM_FAST_MODEL")),
		FastBaseURL: getEnvOrDefault("LLM_FAST_ENDPOINT", ""),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// MemoryConfig describes the embedded store and its maintenance schedule.
type MemoryConfig struct {
	DBPath          string
	ConversationTTL time.Duration
	CleanupInterval time.Duration
}

func loadMemoryConfig() (MemoryConfig, error) {
	ttlHours := 48
	if override, err := parseOptionalIntEnv("CONVERSATION_TTL_HOURS"); err != nil {
		return MemoryConfig{}, err
	} else if override != nil && *override > 0 {
		ttlHours = *override
	}

	cleanupMinutes := 60
	if override, err := parseOptionalIntEnv("MEMORY_CLEANUP_MINUTES"); err != nil {
		return MemoryConfig{}, err
	} else if override != nil && *override > 0 {
		cleanupMinutes = *override
	}

	return MemoryConfig{
		DBPath:          getEnvOrDefault("MEMORY_DB_PATH", "data/memory.db"),
		ConversationTTL: time.Duration(ttlHours) * time.Hour,
		CleanupInterval: time.Duration(cleanupMinutes) * time.Minute,
	}, nil
}

// VoiceConfig describes per-session defaults and limits.
type VoiceConfig struct {
	CaptureMaxSeconds int
	OutboundQueueCap  int
	ChunkMode         string
	DefaultStyle      string
	DomainEndpoint    string
}

func loadVoiceConfig() (VoiceConfig, error) {
	captureMax := 60
	if override, err := parseOptionalIntEnv("CAPTURE_MAX_SECONDS"); err != nil {
		return VoiceConfig{}, err
	} else if override != nil && *override > 0 {
		captureMax = *override
	}

	queueCap := 64
	if override, err := parseOptionalIntEnv("OUTBOUND_QUEUE_CAPACITY"); err != nil {
		return VoiceConfig{}, err
	} else if override != nil && *override > 0 {
		queueCap = *override
	}

	mode := getEnvOrDefault("CHUNK_MODE_DEFAULT", "sentence")
	if mode != "sentence" && mode != "paragraph" {
		return VoiceConfig{}, fmt.Errorf("invalid CHUNK_MODE_DEFAULT value: %q", mode)
	}

	return VoiceConfig{
		CaptureMaxSeconds: captureMax,
		OutboundQueueCap:  queueCap,
		ChunkMode:         mode,
		DefaultStyle:      getEnvOrDefault("VOICE_STYLE_DEFAULT", "normal"),
		DomainEndpoint:    strings.TrimSpace(os.Getenv("DOMAIN_API_ENDPOINT")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
