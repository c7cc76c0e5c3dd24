// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pinfetch/internal/messages"
)

// Size policies for oversized videos.
const (
	SizePolicyOffload  = "offload"
	SizePolicyDuration = "duration"
)

// DefaultUserAgent is the browser identity sent with every provider request.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_11_5) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/50.0.2661.102 Safari/537.36"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Offload   OffloadConfig   `mapstructure:"offload"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// HTTPConfig configures the outbound request identity and timeout.
type HTTPConfig struct {
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	UserAgent      string            `mapstructure:"user_agent"`
	Headers        map[string]string `mapstructure:"headers"`
}

// ProviderConfig describes the content provider links must resolve to.
type ProviderConfig struct {
	Domain  string `mapstructure:"domain"`
	APIBase string `mapstructure:"api_base"`
}

// CacheConfig selects the resolution cache backend.
type CacheConfig struct {
	RedisURL   string `mapstructure:"redis_url"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// OffloadConfig points at the secondary delivery worker.
type OffloadConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	ListenPort     int    `mapstructure:"listen_port"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DeliveryConfig governs the size decision for videos.
type DeliveryConfig struct {
	SizePolicy         string `mapstructure:"size_policy"`
	MaxVideoDurationMS int64  `mapstructure:"max_video_duration_ms"`
	SupportMessage     string `mapstructure:"support_message"`
	SupportChannelURL  string `mapstructure:"support_channel_url"`
}

// TelegramConfig holds bot credentials and the webhook base.
type TelegramConfig struct {
	Token      string `mapstructure:"token"`
	WebhookURL string `mapstructure:"webhook_url"`
	// APIEndpoint overrides the Bot API URL format, e.g. for a local Bot API server.
	APIEndpoint string `mapstructure:"api_endpoint"`
}

// PolicyConfig configures admission control for chats.
type PolicyConfig struct {
	BlockedChats []int64 `mapstructure:"blocked_chats"`
	ChatRPS      float64 `mapstructure:"chat_rps"`
	ChatBurst    int     `mapstructure:"chat_burst"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// PubSubConfig holds metadata for outcome notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelemetryConfig controls tracing. An empty ProjectID keeps spans local.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PINFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// PORT is what container platforms inject.
	if err := v.BindEnv("server.port", "PINFETCH_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.request_timeout_seconds", 420)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.headers", map[string]string{})
	v.SetDefault("provider.domain", "pinterest")
	v.SetDefault("provider.api_base", "https://api.pinterest.com")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("offload.url", "")
	v.SetDefault("offload.api_key", "")
	v.SetDefault("offload.listen_port", 5001)
	v.SetDefault("offload.timeout_seconds", 300)
	v.SetDefault("delivery.size_policy", SizePolicyOffload)
	v.SetDefault("delivery.max_video_duration_ms", 60000)
	v.SetDefault("delivery.support_message", "")
	v.SetDefault("delivery.support_channel_url", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.api_endpoint", "")
	v.SetDefault("policy.blocked_chats", []int64{})
	v.SetDefault("policy.chat_rps", 2.5)
	v.SetDefault("policy.chat_burst", 3)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("telemetry.service_name", "pinfetch")
	v.SetDefault("telemetry.version", "dev")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Provider.Domain == "" {
		return fmt.Errorf("provider.domain must be set")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	switch c.Delivery.SizePolicy {
	case SizePolicyOffload:
	case SizePolicyDuration:
		if c.Delivery.MaxVideoDurationMS <= 0 {
			return fmt.Errorf("delivery.max_video_duration_ms must be > 0 for the duration policy")
		}
	default:
		return fmt.Errorf("delivery.size_policy must be %q or %q", SizePolicyOffload, SizePolicyDuration)
	}
	if c.Offload.TimeoutSeconds <= 0 {
		return fmt.Errorf("offload.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	if budget := c.minServerRequestTimeout(); c.ServerRequestTimeout() <= budget {
		return fmt.Errorf("server.request_timeout_seconds must exceed %v (offload timeout plus resolution calls)", budget)
	}
	return nil
}

// resolutionCalls is the number of outbound calls that can precede delivery:
// the link redirect, the shortlink API and the page fetch.
const resolutionCalls = 3

// minServerRequestTimeout is the longest a webhook delivery can legitimately
// run: every resolution call at its limit, the optional headless render, and
// a full offload.
func (c Config) minServerRequestTimeout() time.Duration {
	budget := c.OffloadTimeout() + resolutionCalls*c.RequestTimeout()
	if c.Headless.Enabled {
		budget += c.NavigationTimeout()
	}
	return budget
}

// RequestTimeout is the bound applied to every outbound HTTP call.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ServerRequestTimeout bounds one inbound webhook delivery.
func (c Config) ServerRequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// OffloadTimeout bounds an offload round trip, video download and upload included.
func (c Config) OffloadTimeout() time.Duration {
	return time.Duration(c.Offload.TimeoutSeconds) * time.Second
}

// NavigationTimeout bounds one headless page render.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// SupportMessage is appended after every delivered asset.
func (c Config) SupportMessage() string {
	if c.Delivery.SupportMessage != "" {
		return c.Delivery.SupportMessage
	}
	return messages.DefaultSupport
}

// CacheTTL is the lifetime of a resolved descriptor.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// IdentityHeaders returns the fixed header set sent with provider requests.
func (c Config) IdentityHeaders() http.Header {
	h := http.Header{}
	for k, v := range c.HTTP.Headers {
		h.Set(k, v)
	}
	if c.HTTP.UserAgent != "" {
		h.Set("User-Agent", c.HTTP.UserAgent)
	}
	return h
}
