package main

import (
	"flag"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// unsetenv clears key for the test and restores it afterwards.
func unsetenv(t *testing.T, key string) {
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PLAYERS", "PROVIDER", "MAX_ROUNDS", "STALEMATE_DAYS", "RETRY_DELAY"} {
		unsetenv(t, key)
	}
	cfg := loadConfig(filepath.Join(t.TempDir(), "missing.json"), "")
	if !slices.Equal(cfg.Players, defaultPlayerNames) {
		t.Errorf("players = %v", cfg.Players)
	}
	if cfg.Provider != "random" || cfg.MaxRounds != 30 || cfg.StalemateDays != 3 || cfg.RetryDelay != 5*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PLAYERS", "a, b ,c,,d")
	t.Setenv("SEED", "42")
	t.Setenv("MAX_ROUNDS", "12")
	t.Setenv("WEREWOLF_CHAT", "yes")
	t.Setenv("PROVIDER", "ollama")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("MAX_TOKENS", "not-a-number")

	cfg := loadConfig(filepath.Join(t.TempDir(), "missing.json"), "")
	if !slices.Equal(cfg.Players, []string{"a", "b", "c", "d"}) {
		t.Errorf("players = %q", cfg.Players)
	}
	if cfg.Seed != 42 || cfg.MaxRounds != 12 || !cfg.WerewolfChat || cfg.Provider != "ollama" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("retry delay = %s", cfg.RetryDelay)
	}
	if cfg.MaxTokens != 2000 {
		t.Errorf("invalid MAX_TOKENS changed the value to %d", cfg.MaxTokens)
	}
}

func TestJSONOverridesEnv(t *testing.T) {
	t.Setenv("PROVIDER", "ollama")
	t.Setenv("MODEL", "llama3")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{"provider": "claude", "players": ["P1","P2","P3","P4","P5","P6","P7","P8","P9"], "retry_delay": "2s", "stalemate_days": 0}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := loadConfig(path, "")
	if cfg.Provider != "claude" {
		t.Errorf("provider = %s, want the JSON value", cfg.Provider)
	}
	if cfg.Model != "llama3" {
		t.Errorf("model = %s, env value should survive", cfg.Model)
	}
	if len(cfg.Players) != 9 || cfg.Players[8] != "P9" {
		t.Errorf("players = %v", cfg.Players)
	}
	if cfg.RetryDelay != 2*time.Second || cfg.StalemateDays != 0 {
		t.Errorf("retry=%s stalemate=%d", cfg.RetryDelay, cfg.StalemateDays)
	}
}

func TestDotEnvFillsOnlyUnsetVars(t *testing.T) {
	unsetenv(t, "MODEL")
	unsetenv(t, "GROQ_API_KEY")
	t.Setenv("PROVIDER", "groq")

	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("PROVIDER=openai\nMODEL=mixtral\nGROQ_API_KEY=secret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := loadConfig(filepath.Join(t.TempDir(), "missing.json"), envPath)
	if cfg.Provider != "groq" {
		t.Errorf("provider = %s, the environment should win over .env", cfg.Provider)
	}
	if cfg.Model != "mixtral" || cfg.GroqAPIKey != "secret" {
		t.Errorf(".env not loaded: model=%s key=%s", cfg.Model, cfg.GroqAPIKey)
	}
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	fs := flag.NewFlagSet("werewolf", flag.ContinueOnError)
	fv := registerFlags(fs)
	if err := fs.Parse([]string{"-provider", "gemini", "-seed", "7", "-players", "x,y", "-retry-delay", "1s", "-werewolf-chat"}); err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig()
	cfg.Model = "kept"
	cfg.MaxRounds = 5
	fv.applyTo(fs, &cfg)

	if cfg.Provider != "gemini" || cfg.Seed != 7 || cfg.RetryDelay != time.Second || !cfg.WerewolfChat {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if !slices.Equal(cfg.Players, []string{"x", "y"}) {
		t.Errorf("players = %v", cfg.Players)
	}
	if cfg.Model != "kept" || cfg.MaxRounds != 5 {
		t.Errorf("unset flags overwrote config: model=%s max_rounds=%d", cfg.Model, cfg.MaxRounds)
	}
}

func TestToGameConfig(t *testing.T) {
	cfg := AppConfig{Seed: 3, MaxRounds: 8, StalemateDays: 2, WerewolfChat: true}
	want := GameConfig{Seed: 3, MaxRounds: 8, StalemateDays: 2, WerewolfChat: true}
	if got := cfg.toGameConfig(); got != want {
		t.Errorf("toGameConfig = %+v, want %+v", got, want)
	}
}
