package config_test

import (
	"testing"

	"github.com/tarawell/tara-companion/backend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "UPSTREAM_BASE_URL", "UPSTREAM_TIMEOUT",
		"ARK_API_KEY", "ARK_MODEL",
		"SPEECH_APP_ID", "SPEECH_ACCESS_TOKEN", "SPEECH_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected default addr: %s", cfg.Server.Addr)
	}
	if cfg.Upstream.Enabled() {
		t.Fatal("upstream must be disabled without UPSTREAM_BASE_URL")
	}
	if cfg.Upstream.TimeoutSeconds != 30 {
		t.Fatalf("unexpected default upstream timeout: %d", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.AI.Enabled() {
		t.Fatal("ai gateway must be disabled without credentials")
	}
	if cfg.Speech.Enabled {
		t.Fatal("speech must be disabled without credentials")
	}
	if cfg.Speech.ASRLanguage != "en-US" {
		t.Fatalf("unexpected default ASR language: %s", cfg.Speech.ASRLanguage)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("unexpected default log level: %s", cfg.Log.Level)
	}
}

func TestLoadServerAddrVariants(t *testing.T) {
	cases := []struct {
		port    string
		want    string
		wantErr bool
	}{
		{port: "9090", want: ":9090"},
		{port: ":9090", want: ":9090"},
		{port: "127.0.0.1:9090", want: "127.0.0.1:9090"},
		{port: "  8081  ", want: ":8081"},
		{port: "80 80", wantErr: true},
	}

	for _, tc := range cases {
		t.Setenv("PORT", tc.port)

		cfg, err := config.Load()
		if tc.wantErr {
			if err == nil {
				t.Fatalf("PORT=%q: expected error", tc.port)
			}
			continue
		}
		if err != nil {
			t.Fatalf("PORT=%q: %v", tc.port, err)
		}
		if cfg.Server.Addr != tc.want {
			t.Fatalf("PORT=%q: got addr %s, want %s", tc.port, cfg.Server.Addr, tc.want)
		}
	}
}

func TestLoadUpstreamTrimsTrailingSlash(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/v1/")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Upstream.Enabled() {
		t.Fatal("upstream must be enabled")
	}
	if cfg.Upstream.BaseURL != "https://api.example.com/v1" {
		t.Fatalf("unexpected base URL: %s", cfg.Upstream.BaseURL)
	}
}

func TestLoadSpeechRequiresBothCredentials(t *testing.T) {
	t.Setenv("SPEECH_APP_ID", "app-123")
	t.Setenv("SPEECH_ACCESS_TOKEN", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Speech.Enabled {
		t.Fatal("speech must stay disabled without the access token")
	}

	t.Setenv("SPEECH_ACCESS_TOKEN", "token-456")
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Speech.Enabled {
		t.Fatal("speech must be enabled with both credentials")
	}
}

func TestLoadAIEnabledVariants(t *testing.T) {
	t.Setenv("ARK_MODEL", "test-model")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("ARK_ACCESS_KEY", "")
	t.Setenv("ARK_SECRET_KEY", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.AI.Enabled() {
		t.Fatal("api key plus model must enable the ai gateway")
	}

	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_ACCESS_KEY", "ak")
	t.Setenv("ARK_SECRET_KEY", "sk")
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.AI.Enabled() {
		t.Fatal("ak/sk pair plus model must enable the ai gateway")
	}

	t.Setenv("ARK_SECRET_KEY", "")
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AI.Enabled() {
		t.Fatal("access key without secret must not enable the ai gateway")
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for malformed UPSTREAM_TIMEOUT")
	}
	t.Setenv("UPSTREAM_TIMEOUT", "")

	t.Setenv("SPEECH_TTS_SPEED", "fast")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for malformed SPEECH_TTS_SPEED")
	}
	t.Setenv("SPEECH_TTS_SPEED", "")

	t.Setenv("ARK_TEMPERATURE", "warm")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for malformed ARK_TEMPERATURE")
	}
}
