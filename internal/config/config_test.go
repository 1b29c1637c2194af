package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp moves into an empty directory so no stray .env is loaded.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_DefaultsToRulesOnly(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sepet")
	t.Setenv("ENGINE_API_KEY", "")
	t.Setenv("ENGINE_PROVIDER", "")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.EngineEnabled() {
		t.Errorf("expected no engine, got provider %q", c.EngineProvider)
	}
	if c.AnalysisStrategy != "sequential" || c.StageTimeout != 45*time.Second {
		t.Errorf("unexpected analysis defaults: %q %v", c.AnalysisStrategy, c.StageTimeout)
	}
	if c.ContactPhone != "(92) 99207-1671" {
		t.Errorf("unexpected contact phone %q", c.ContactPhone)
	}
}

func TestLoad_KeyImpliesOpenAICompatible(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sepet")
	t.Setenv("ENGINE_API_KEY", "sk-test")
	t.Setenv("ENGINE_PROVIDER", "")
	t.Setenv("ENGINE_MODEL", "")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.EngineProvider != ProviderOpenAI || c.EngineModel != "MiniMax-Text-01" {
		t.Errorf("got provider %q model %q", c.EngineProvider, c.EngineModel)
	}
}

func TestLoad_ValidationErrorsAreJoined(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENGINE_PROVIDER", "anthropic")
	t.Setenv("ENGINE_API_KEY", "")
	t.Setenv("ANALYSIS_STRATEGY", "parallel")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"DATABASE_URL", "ENGINE_API_KEY", "ANALYSIS_STRATEGY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sepet")
	t.Setenv("ENGINE_PROVIDER", "llama")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "llama") {
		t.Errorf("expected unknown provider error, got %v", err)
	}
}

func TestLoadDotEnv_EnvironmentWins(t *testing.T) {
	dir := chdirTemp(t)
	content := "# comment\nSTAGE_TIMEOUT=\"20\"\nNATS_URL=nats://file:4222\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/sepet")
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("STAGE_TIMEOUT", "")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.NATSURL != "nats://env:4222" {
		t.Errorf("environment should win, got %q", c.NATSURL)
	}
	if c.StageTimeout != 20*time.Second {
		t.Errorf("expected 20s from .env, got %v", c.StageTimeout)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"12", 12 * time.Second},
		{"1m30s", 90 * time.Second},
		{"soon", 5 * time.Second},
	}
	for _, tc := range tests {
		t.Setenv("SOME_TIMEOUT", tc.val)
		if got := getEnvAsDuration("SOME_TIMEOUT", 5*time.Second); got != tc.want {
			t.Errorf("%q: got %v, want %v", tc.val, got, tc.want)
		}
	}
}
