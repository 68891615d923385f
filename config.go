package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var defaultPlayerNames = []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Frank", "Grace", "Heidi", "Ivan"}

// AppConfig holds all simulator configuration.
// Priority (lowest → highest): defaults < .env file < env vars < JSON config file < CLI flags.
type AppConfig struct {
	// Game
	Players       []string `json:"players"`        // exactly nine seat names
	Seed          int64    `json:"seed"`           // rng seed for roles, forced ballots and the random provider
	MaxRounds     int      `json:"max_rounds"`     // draw after this many rounds, 0 = unlimited
	StalemateDays int      `json:"stalemate_days"` // idle days before ballots are forced, 0 = never
	WerewolfChat  bool     `json:"werewolf_chat"`  // werewolves talk before voting at night

	// Output
	DB            string `json:"db"`             // sqlite archive connection string, empty = no archive
	Dev           bool   `json:"dev"`            // dev mode: verbose logging, db dumps on errors
	GameLogDir    string `json:"game_log_dir"`   // transcript directory, empty = no transcript
	SpectatorAddr string `json:"spectator_addr"` // websocket listen address, empty = no spectator feed

	// Logging (extended diagnostics, off by default)
	LogOutputDir string `json:"log_output_dir"`
	LogRequests  bool   `json:"log_requests"`
	LogPrompts   bool   `json:"log_prompts"`
	LogDB        bool   `json:"log_db"`
	LogWS        bool   `json:"log_ws"`
	LogDebug     bool   `json:"log_debug"`

	// Decision provider
	Provider          string        `json:"provider"`            // random | ollama | openai | claude | gemini | groq | deepseek | openai-compatible
	Model             string        `json:"model"`               // model name
	OllamaURL         string        `json:"ollama_url"`          // Ollama server URL
	ProviderURL       string        `json:"provider_url"`        // base URL for openai-compatible
	APIKey            string        `json:"api_key"`             // API key for openai, claude, gemini, deepseek, openai-compatible
	GroqAPIKey        string        `json:"groq_api_key"`        // API key for groq provider
	Temperature       string        `json:"temperature"`         // float 0-1 as string
	Thinking          string        `json:"thinking"`            // none | low | medium | high | auto
	MaxTokens         int           `json:"max_tokens"`          // completion cap per call
	MaxRetries        int           `json:"max_retries"`         // retries after a failed call
	RetryDelay        time.Duration `json:"-"`                   // first backoff step (JSON: "retry_delay": "2s")
	RequestsPerMinute int           `json:"requests_per_minute"` // 0 = unlimited
	MaxContextTokens  int           `json:"max_context_tokens"`  // history budget per prompt, 0 = unlimited
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		OutputDir:   cfg.LogOutputDir,
		LogRequests: cfg.LogRequests,
		LogPrompts:  cfg.LogPrompts,
		LogDB:       cfg.LogDB,
		LogWS:       cfg.LogWS,
		Debug:       cfg.LogDebug,
	}
}

func (cfg AppConfig) toGameConfig() GameConfig {
	return GameConfig{
		Seed:          cfg.Seed,
		MaxRounds:     cfg.MaxRounds,
		StalemateDays: cfg.StalemateDays,
		WerewolfChat:  cfg.WerewolfChat,
	}
}

func defaultConfig() AppConfig {
	game := defaultGameConfig()
	return AppConfig{
		Players:       append([]string(nil), defaultPlayerNames...),
		Seed:          time.Now().UnixNano(),
		MaxRounds:     game.MaxRounds,
		StalemateDays: game.StalemateDays,
		GameLogDir:    "game_logs",
		Provider:      "random",
		OllamaURL:     "http://localhost:11434",
		Temperature:   "0.7",
		MaxTokens:     2000,
		MaxRetries:    3,
		RetryDelay:    5 * time.Second,
	}
}

func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// loadConfig builds a config by layering: defaults → .env file → env vars → JSON config file.
// CLI flag overrides are applied separately by flagValues.applyTo after flag.Parse.
func loadConfig(configPath, envPath string) AppConfig {
	cfg := defaultConfig()

	// Layer 1: .env only fills variables that are not already set
	if envPath != "" {
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("Config: loaded environment from %s", envPath)
		} else if !os.IsNotExist(err) {
			log.Printf("Config: failed to read %s: %v", envPath, err)
		}
	}

	// Layer 2: env vars
	envStr := os.Getenv
	envBool := func(key string) (val bool, set bool) {
		v := os.Getenv(key)
		if v == "" {
			return false, false
		}
		return v == "1" || v == "true" || v == "yes", true
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				log.Printf("Config: invalid %s=%q: %v", key, v, err)
			}
		}
	}

	if v := envStr("PLAYERS"); v != "" {
		cfg.Players = splitNames(v)
	}
	if v := envStr("SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		} else {
			log.Printf("Config: invalid SEED=%q: %v", v, err)
		}
	}
	envInt("MAX_ROUNDS", &cfg.MaxRounds)
	envInt("STALEMATE_DAYS", &cfg.StalemateDays)
	if v, ok := envBool("WEREWOLF_CHAT"); ok {
		cfg.WerewolfChat = v
	}
	if v := envStr("DB"); v != "" {
		cfg.DB = v
	}
	if v, ok := envBool("DEV"); ok {
		cfg.Dev = v
	}
	if v := envStr("GAME_LOG_DIR"); v != "" {
		cfg.GameLogDir = v
	}
	if v := envStr("SPECTATOR_ADDR"); v != "" {
		cfg.SpectatorAddr = v
	}
	if v := envStr("LOG_OUTPUT_DIR"); v != "" {
		cfg.LogOutputDir = v
	}
	if v, ok := envBool("LOG_REQUESTS"); ok {
		cfg.LogRequests = v
	}
	if v, ok := envBool("LOG_PROMPTS"); ok {
		cfg.LogPrompts = v
	}
	if v, ok := envBool("LOG_DB"); ok {
		cfg.LogDB = v
	}
	if v, ok := envBool("LOG_WS"); ok {
		cfg.LogWS = v
	}
	if v, ok := envBool("LOG_DEBUG"); ok {
		cfg.LogDebug = v
	}
	if v := envStr("PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := envStr("MODEL"); v != "" {
		cfg.Model = v
	}
	if v := envStr("OLLAMA_URL"); v != "" {
		cfg.OllamaURL = v
	}
	if v := envStr("PROVIDER_URL"); v != "" {
		cfg.ProviderURL = v
	}
	if v := envStr("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := envStr("GROQ_API_KEY"); v != "" {
		cfg.GroqAPIKey = v
	}
	if v := envStr("TEMPERATURE"); v != "" {
		cfg.Temperature = v
	}
	if v := envStr("THINKING"); v != "" {
		cfg.Thinking = v
	}
	envInt("MAX_TOKENS", &cfg.MaxTokens)
	envInt("MAX_RETRIES", &cfg.MaxRetries)
	if v := envStr("RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetryDelay = d
		} else {
			log.Printf("Config: invalid RETRY_DELAY=%q: %v", v, err)
		}
	}
	envInt("REQUESTS_PER_MINUTE", &cfg.RequestsPerMinute)
	envInt("MAX_CONTEXT_TOKENS", &cfg.MaxContextTokens)

	// Layer 3: JSON config file, only fields present in the file override env vars
	if data, err := os.ReadFile(configPath); err == nil {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(data, &overlay); err != nil {
			log.Printf("Config: failed to parse %s: %v", configPath, err)
		} else {
			applyJSONOverlay(&cfg, overlay)
			log.Printf("Config: loaded from %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Config: failed to read %s: %v", configPath, err)
	}

	return cfg
}

// applyJSONOverlay only sets fields that are explicitly present in the JSON map.
func applyJSONOverlay(cfg *AppConfig, m map[string]json.RawMessage) {
	set := func(key string, dst any) {
		if v, ok := m[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				log.Printf("Config: invalid %s: %v", key, err)
			}
		}
	}
	set("players", &cfg.Players)
	set("seed", &cfg.Seed)
	set("max_rounds", &cfg.MaxRounds)
	set("stalemate_days", &cfg.StalemateDays)
	set("werewolf_chat", &cfg.WerewolfChat)
	set("db", &cfg.DB)
	set("dev", &cfg.Dev)
	set("game_log_dir", &cfg.GameLogDir)
	set("spectator_addr", &cfg.SpectatorAddr)
	set("log_output_dir", &cfg.LogOutputDir)
	set("log_requests", &cfg.LogRequests)
	set("log_prompts", &cfg.LogPrompts)
	set("log_db", &cfg.LogDB)
	set("log_ws", &cfg.LogWS)
	set("log_debug", &cfg.LogDebug)
	set("provider", &cfg.Provider)
	set("model", &cfg.Model)
	set("ollama_url", &cfg.OllamaURL)
	set("provider_url", &cfg.ProviderURL)
	set("api_key", &cfg.APIKey)
	set("groq_api_key", &cfg.GroqAPIKey)
	set("temperature", &cfg.Temperature)
	set("thinking", &cfg.Thinking)
	set("max_tokens", &cfg.MaxTokens)
	set("max_retries", &cfg.MaxRetries)
	set("requests_per_minute", &cfg.RequestsPerMinute)
	set("max_context_tokens", &cfg.MaxContextTokens)

	if v, ok := m["retry_delay"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			log.Printf("Config: invalid retry_delay: %v", err)
		} else if d, err := time.ParseDuration(s); err != nil {
			log.Printf("Config: invalid retry_delay %q: %v", s, err)
		} else {
			cfg.RetryDelay = d
		}
	}
}

// flagValues holds pointers to all registered CLI flags.
type flagValues struct {
	configPath        *string
	envPath           *string
	players           *string
	seed              *int64
	maxRounds         *int
	stalemateDays     *int
	werewolfChat      *bool
	db                *string
	dev               *bool
	gameLogDir        *string
	spectatorAddr     *string
	logOutputDir      *string
	logRequests       *bool
	logPrompts        *bool
	logDB             *bool
	logWS             *bool
	logDebug          *bool
	provider          *string
	model             *string
	ollamaURL         *string
	providerURL       *string
	apiKey            *string
	groqAPIKey        *string
	temperature       *string
	thinking          *string
	maxTokens         *int
	maxRetries        *int
	retryDelay        *time.Duration
	requestsPerMinute *int
	maxContextTokens  *int
}

// registerFlags registers all CLI flags on fs and returns pointers to their values.
// Call fs.Parse() after this, then applyTo to layer them over the loaded config.
func registerFlags(fs *flag.FlagSet) flagValues {
	return flagValues{
		configPath:        fs.String("config", "config.json", "path to JSON config file"),
		envPath:           fs.String("env", ".env", "path to .env file"),
		players:           fs.String("players", "", "comma-separated list of nine player names"),
		seed:              fs.Int64("seed", 0, "random seed (roles, forced ballots, random provider)"),
		maxRounds:         fs.Int("max-rounds", 0, "end the game as a draw after this many rounds (0 = unlimited)"),
		stalemateDays:     fs.Int("stalemate-days", 0, "idle days before abstaining ballots are forced (0 = never)"),
		werewolfChat:      fs.Bool("werewolf-chat", false, "let werewolves talk privately before their night vote"),
		db:                fs.String("db", "", "sqlite archive connection string"),
		dev:               fs.Bool("dev", false, "enable development mode (verbose logging, db dumps on error)"),
		gameLogDir:        fs.String("game-log-dir", "", "directory for game transcripts"),
		spectatorAddr:     fs.String("spectator-addr", "", "WebSocket spectator listen address (e.g. :8080)"),
		logOutputDir:      fs.String("log-output-dir", "", "directory for extended log files"),
		logRequests:       fs.Bool("log-requests", false, "log LLM HTTP requests and responses"),
		logPrompts:        fs.Bool("log-prompts", false, "log prompts and replies"),
		logDB:             fs.Bool("log-db", false, "log database dumps"),
		logWS:             fs.Bool("log-ws", false, "log WebSocket messages"),
		logDebug:          fs.Bool("log-debug", false, "enable debug logging"),
		provider:          fs.String("provider", "", "decision provider (random|ollama|openai|claude|gemini|groq|deepseek|openai-compatible)"),
		model:             fs.String("model", "", "LLM model name"),
		ollamaURL:         fs.String("ollama-url", "", "Ollama server URL"),
		providerURL:       fs.String("provider-url", "", "base URL for openai-compatible provider"),
		apiKey:            fs.String("api-key", "", "API key for the provider"),
		groqAPIKey:        fs.String("groq-api-key", "", "Groq API key"),
		temperature:       fs.String("temperature", "", "sampling temperature 0-1"),
		thinking:          fs.String("thinking", "", "thinking mode: none|low|medium|high|auto"),
		maxTokens:         fs.Int("max-tokens", 0, "completion token cap per call"),
		maxRetries:        fs.Int("max-retries", 0, "retries after a failed LLM call"),
		retryDelay:        fs.Duration("retry-delay", 0, "first retry backoff (doubles each attempt)"),
		requestsPerMinute: fs.Int("requests-per-minute", 0, "LLM rate limit (0 = unlimited)"),
		maxContextTokens:  fs.Int("max-context-tokens", 0, "token budget for game history in prompts (0 = unlimited)"),
	}
}

// applyTo overlays any CLI flags that were explicitly set onto cfg.
// Flags that were not passed on the command line are ignored (env/JSON values win).
func (fv flagValues) applyTo(fs *flag.FlagSet, cfg *AppConfig) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "players":
			cfg.Players = splitNames(*fv.players)
		case "seed":
			cfg.Seed = *fv.seed
		case "max-rounds":
			cfg.MaxRounds = *fv.maxRounds
		case "stalemate-days":
			cfg.StalemateDays = *fv.stalemateDays
		case "werewolf-chat":
			cfg.WerewolfChat = *fv.werewolfChat
		case "db":
			cfg.DB = *fv.db
		case "dev":
			cfg.Dev = *fv.dev
		case "game-log-dir":
			cfg.GameLogDir = *fv.gameLogDir
		case "spectator-addr":
			cfg.SpectatorAddr = *fv.spectatorAddr
		case "log-output-dir":
			cfg.LogOutputDir = *fv.logOutputDir
		case "log-requests":
			cfg.LogRequests = *fv.logRequests
		case "log-prompts":
			cfg.LogPrompts = *fv.logPrompts
		case "log-db":
			cfg.LogDB = *fv.logDB
		case "log-ws":
			cfg.LogWS = *fv.logWS
		case "log-debug":
			cfg.LogDebug = *fv.logDebug
		case "provider":
			cfg.Provider = *fv.provider
		case "model":
			cfg.Model = *fv.model
		case "ollama-url":
			cfg.OllamaURL = *fv.ollamaURL
		case "provider-url":
			cfg.ProviderURL = *fv.providerURL
		case "api-key":
			cfg.APIKey = *fv.apiKey
		case "groq-api-key":
			cfg.GroqAPIKey = *fv.groqAPIKey
		case "temperature":
			cfg.Temperature = *fv.temperature
		case "thinking":
			cfg.Thinking = *fv.thinking
		case "max-tokens":
			cfg.MaxTokens = *fv.maxTokens
		case "max-retries":
			cfg.MaxRetries = *fv.maxRetries
		case "retry-delay":
			cfg.RetryDelay = *fv.retryDelay
		case "requests-per-minute":
			cfg.RequestsPerMinute = *fv.requestsPerMinute
		case "max-context-tokens":
			cfg.MaxContextTokens = *fv.maxContextTokens
		}
	})
}
