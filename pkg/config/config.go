package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	WebSocket struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		SendBufferSize int           `yaml:"send_buffer_size"`
	} `yaml:"websocket"`

	RTC RTC `yaml:"rtc"`

	Store struct {
		ErrorExpiry     time.Duration `yaml:"error_expiry"`
		StatsInterval   time.Duration `yaml:"stats_interval"`
		TranscriptLimit int           `yaml:"transcript_limit"`
	} `yaml:"store"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Token struct {
		Secret string        `yaml:"secret"`
		TTL    time.Duration `yaml:"ttl"`
	} `yaml:"token"`

	History struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"history"`

	Simulator struct {
		DevicesFile string `yaml:"devices_file"`
	} `yaml:"simulator"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// RTC is the adapter-level configuration consumed at construction.
type RTC struct {
	AppID            string   `yaml:"app_id"`
	Debug            bool     `yaml:"debug"`
	LogLevel         int      `yaml:"log_level"` // engine log level 0 (debug) .. 4 (none)
	Codec            string   `yaml:"codec"`
	ChannelProfile   string   `yaml:"channel_profile"`
	ClientRole       string   `yaml:"client_role"`
	GeoFencing       []string `yaml:"geo_fencing"`
	EnableDualStream bool     `yaml:"enable_dual_stream"`
	AssetDir         string   `yaml:"virtual_background_asset_dir"`

	VideoEncoder struct {
		Width      int `yaml:"width"`
		Height     int `yaml:"height"`
		FrameRate  int `yaml:"frame_rate"`
		BitrateMin int `yaml:"bitrate_min"`
		BitrateMax int `yaml:"bitrate_max"`
	} `yaml:"video_encoder"`

	Encryption struct {
		Mode string `yaml:"mode"`
		Key  string `yaml:"key"`
		Salt string `yaml:"salt"`
	} `yaml:"encryption"`

	SubscribeRetry struct {
		MaxAttempts  int           `yaml:"max_attempts"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		Step         time.Duration `yaml:"step"`
	} `yaml:"subscribe_retry"`

	RenderRetry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Step        time.Duration `yaml:"step"`
	} `yaml:"render_retry"`

	ReconcileDelay         time.Duration `yaml:"reconcile_delay"`
	UserJoinedRecheckDelay time.Duration `yaml:"user_joined_recheck_delay"`
	SpeakingThreshold      int           `yaml:"speaking_threshold"`
	TokenExpiryWarningSec  int           `yaml:"token_expiry_warning_seconds"`
}

var (
	validCodecs   = map[string]bool{"vp8": true, "vp9": true, "h264": true, "av1": true}
	validProfiles = map[string]bool{"communication": true, "live_broadcasting": true}
	validRoles    = map[string]bool{"broadcaster": true, "audience": true}
	validRegions  = map[string]bool{
		"CHINA": true, "ASIA": true, "EUROPE": true, "NORTH_AMERICA": true,
		"JAPAN": true, "INDIA": true, "GLOBAL": true,
	}
	validEncryption = map[string]bool{
		"": true, "none": true, "aes-128-xts": true, "aes-256-xts": true, "aes-128-gcm": true,
		"aes-256-gcm": true, "aes-128-gcm2": true, "aes-256-gcm2": true,
	}
)

// Validate checks the RTC section.
func (r *RTC) Validate() error {
	if !validCodecs[r.Codec] {
		return fmt.Errorf("rtc.codec must be one of vp8, vp9, h264, av1")
	}
	if !validProfiles[r.ChannelProfile] {
		return fmt.Errorf("rtc.channel_profile must be communication or live_broadcasting")
	}
	if !validRoles[r.ClientRole] {
		return fmt.Errorf("rtc.client_role must be broadcaster or audience")
	}
	for _, region := range r.GeoFencing {
		if !validRegions[region] {
			return fmt.Errorf("rtc.geo_fencing contains unknown region %q", region)
		}
	}
	if r.LogLevel < 0 || r.LogLevel > 4 {
		return fmt.Errorf("rtc.log_level must be between 0 and 4")
	}
	if r.AssetDir == "" {
		return fmt.Errorf("rtc.virtual_background_asset_dir must not be empty")
	}
	if r.VideoEncoder.Width <= 0 || r.VideoEncoder.Height <= 0 || r.VideoEncoder.FrameRate <= 0 {
		return fmt.Errorf("rtc.video_encoder dimensions and frame_rate must be > 0")
	}
	if r.VideoEncoder.BitrateMin > r.VideoEncoder.BitrateMax {
		return fmt.Errorf("rtc.video_encoder.bitrate_min must be <= bitrate_max")
	}
	if !validEncryption[r.Encryption.Mode] {
		return fmt.Errorf("rtc.encryption.mode %q is not supported", r.Encryption.Mode)
	}
	if r.SubscribeRetry.MaxAttempts <= 0 {
		return fmt.Errorf("rtc.subscribe_retry.max_attempts must be > 0")
	}
	if r.RenderRetry.MaxAttempts <= 0 {
		return fmt.Errorf("rtc.render_retry.max_attempts must be > 0")
	}
	if r.ReconcileDelay < 0 || r.UserJoinedRecheckDelay < 0 {
		return fmt.Errorf("rtc delays must be >= 0")
	}
	return nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket.ping_interval must be > 0")
	}
	if c.WebSocket.PongTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket.pong_timeout must be > ping_interval")
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("websocket.send_buffer_size must be > 0")
	}

	if err := c.RTC.Validate(); err != nil {
		return err
	}

	if c.Store.ErrorExpiry <= 0 {
		return fmt.Errorf("store.error_expiry must be > 0")
	}
	if c.Store.StatsInterval <= 0 {
		return fmt.Errorf("store.stats_interval must be > 0")
	}
	if c.Store.TranscriptLimit <= 0 {
		return fmt.Errorf("store.transcript_limit must be > 0")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Token.Secret != "" && c.Token.TTL <= 0 {
		return fmt.Errorf("token.ttl must be > 0 when token.secret is set")
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path must not be empty when history.enabled=true")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultRTC returns the adapter defaults: vp8, communication profile, 640x480@30
// with 400-1000 kbps, and the subscribe/render retry budgets.
func DefaultRTC() RTC {
	r := RTC{
		Codec:                  "vp8",
		ChannelProfile:         "communication",
		ClientRole:             "broadcaster",
		LogLevel:               3,
		AssetDir:               "/wasms",
		ReconcileDelay:         500 * time.Millisecond,
		UserJoinedRecheckDelay: 200 * time.Millisecond,
		SpeakingThreshold:      10,
		TokenExpiryWarningSec:  30,
	}
	r.VideoEncoder.Width = 640
	r.VideoEncoder.Height = 480
	r.VideoEncoder.FrameRate = 30
	r.VideoEncoder.BitrateMin = 400
	r.VideoEncoder.BitrateMax = 1000
	r.Encryption.Mode = "none"
	r.SubscribeRetry.MaxAttempts = 5
	r.SubscribeRetry.InitialDelay = 300 * time.Millisecond
	r.SubscribeRetry.Step = 500 * time.Millisecond
	r.RenderRetry.MaxAttempts = 5
	r.RenderRetry.Step = 300 * time.Millisecond
	return r
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.WebSocket.PingInterval = 30 * time.Second
	cfg.WebSocket.PongTimeout = 60 * time.Second
	cfg.WebSocket.WriteTimeout = 10 * time.Second
	cfg.WebSocket.SendBufferSize = 256

	cfg.RTC = DefaultRTC()

	cfg.Store.ErrorExpiry = 10 * time.Second
	cfg.Store.StatsInterval = time.Second
	cfg.Store.TranscriptLimit = 200

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "callkit"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.Token.TTL = time.Hour

	cfg.History.Enabled = true
	cfg.History.Path = "callkit-history.db"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 20
	cfg.RateLimiting.HTTP.Burst = 40
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 10
	cfg.RateLimiting.WebSocket.Burst = 20
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 16 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("CALLKIT_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("CALLKIT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if appID := os.Getenv("CALLKIT_APP_ID"); appID != "" {
		c.RTC.AppID = appID
	}
	if secret := os.Getenv("CALLKIT_TOKEN_SECRET"); secret != "" {
		c.Token.Secret = secret
	}
	if addr := os.Getenv("CALLKIT_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CALLKIT_RTC_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			c.RTC.Debug = debug
		}
	}
}
