package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RTC.AppID = "test-app"
	cfg.RateLimiting.Enabled = true
	cfg.Tracing.Enabled = true
	cfg.Redis.Enabled = true
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid, got: %v", err)
	}
	if err := validBaseConfig().Validate(); err != nil {
		t.Fatalf("base config should be valid, got: %v", err)
	}
}

func TestDefaultRTC(t *testing.T) {
	r := DefaultRTC()
	if r.Codec != "vp8" || r.ChannelProfile != "communication" || r.AssetDir != "/wasms" {
		t.Errorf("unexpected rtc defaults: %+v", r)
	}
	if r.VideoEncoder.Width != 640 || r.VideoEncoder.Height != 480 || r.VideoEncoder.FrameRate != 30 {
		t.Errorf("unexpected encoder defaults: %+v", r.VideoEncoder)
	}
	if r.SubscribeRetry.MaxAttempts != 5 || r.RenderRetry.MaxAttempts != 5 {
		t.Errorf("retry budgets should default to 5 attempts")
	}
	if r.ReconcileDelay != 500*time.Millisecond {
		t.Errorf("ReconcileDelay = %v, want 500ms", r.ReconcileDelay)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"pong must exceed ping", func(c *Config) { c.WebSocket.PongTimeout = c.WebSocket.PingInterval }},
		{"unknown codec", func(c *Config) { c.RTC.Codec = "theora" }},
		{"unknown profile", func(c *Config) { c.RTC.ChannelProfile = "webinar" }},
		{"unknown role", func(c *Config) { c.RTC.ClientRole = "moderator" }},
		{"unknown region", func(c *Config) { c.RTC.GeoFencing = []string{"EUROPE", "MARS"} }},
		{"log level out of range", func(c *Config) { c.RTC.LogLevel = 5 }},
		{"empty asset dir", func(c *Config) { c.RTC.AssetDir = "" }},
		{"bitrate inverted", func(c *Config) { c.RTC.VideoEncoder.BitrateMin = 2000 }},
		{"unknown encryption", func(c *Config) { c.RTC.Encryption.Mode = "rot13" }},
		{"zero subscribe attempts", func(c *Config) { c.RTC.SubscribeRetry.MaxAttempts = 0 }},
		{"zero render attempts", func(c *Config) { c.RTC.RenderRetry.MaxAttempts = 0 }},
		{"zero error expiry", func(c *Config) { c.Store.ErrorExpiry = 0 }},
		{"zero transcript limit", func(c *Config) { c.Store.TranscriptLimit = 0 }},
		{"tracing without url", func(c *Config) { c.Tracing.JaegerURL = "" }},
		{"sample rate above one", func(c *Config) { c.Tracing.SampleRate = 1.5 }},
		{"redis without address", func(c *Config) { c.Redis.Address = "" }},
		{"token secret without ttl", func(c *Config) { c.Token.Secret = "s"; c.Token.TTL = 0 }},
		{"history without path", func(c *Config) { c.History.Path = "" }},
		{"http rps must be > 0", func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
		{"ws burst must be > 0", func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 }},
		{"ws max message size must be >= 0", func(c *Config) { c.RateLimiting.WebSocket.MaxMessageSizeBytes = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Server.Address = %q, want :8080", cfg.Server.Address)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callkit.yaml")
	data := []byte(`
server:
  address: ":9000"
rtc:
  app_id: "abc"
  codec: "h264"
  channel_profile: "live_broadcasting"
  client_role: "audience"
  geo_fencing: ["EUROPE", "ASIA"]
  enable_dual_stream: true
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != ":9000" || cfg.RTC.AppID != "abc" || cfg.RTC.Codec != "h264" {
		t.Errorf("yaml values not applied: %+v", cfg.RTC)
	}
	if !cfg.RTC.EnableDualStream || len(cfg.RTC.GeoFencing) != 2 {
		t.Errorf("rtc flags not applied: %+v", cfg.RTC)
	}
	// untouched defaults survive
	if cfg.RTC.VideoEncoder.Width != 640 || cfg.Store.ErrorExpiry != 10*time.Second {
		t.Errorf("defaults lost after yaml merge")
	}
}

func TestLoad_InvalidYAMLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("rtc:\n  codec: \"mpeg2\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid codec to be rejected")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CALLKIT_APP_ID", "from-env")
	t.Setenv("CALLKIT_LOG_LEVEL", "debug")
	t.Setenv("CALLKIT_RTC_DEBUG", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RTC.AppID != "from-env" || cfg.Logging.Level != "debug" || !cfg.RTC.Debug {
		t.Errorf("env overrides not applied: app=%q level=%q debug=%v", cfg.RTC.AppID, cfg.Logging.Level, cfg.RTC.Debug)
	}
}
