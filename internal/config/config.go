package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/spf13/viper"
)

var (
	ServiceName    = "trading-dashboard"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	Port                    map[string]string         `mapstructure:"port"`
	FrontendURL             string                    `mapstructure:"frontend_url"`
	Database                map[string]DatabaseConfig `mapstructure:"database"`
	Redis                   map[string]RedisConfig    `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig       `mapstructure:"nats_jetstream"`
	Session                 SessionConfig             `mapstructure:"session"`
	Discord                 DiscordConfig             `mapstructure:"discord"`
	Providers               ProvidersConfig           `mapstructure:"providers"`
	Cache                   CacheConfig               `mapstructure:"cache"`
	RateLimit               RateLimitConfig           `mapstructure:"rate_limit"`
	Signals                 SignalsConfig             `mapstructure:"signals"`
	InternalBotKey          string                    `mapstructure:"internal_bot_key"`
	Whop                    WhopConfig                `mapstructure:"whop"`
	OpenAI                  OpenAIConfig              `mapstructure:"openai"`
	Realtime                RealtimeConfig            `mapstructure:"realtime"`
	Mentor                  MentorConfig              `mapstructure:"mentor"`
	Trial                   TrialConfig               `mapstructure:"trial"`
}

type NatsJetstreamConfig struct {
	URL             string                   `mapstructure:"url"`
	MaxRetries      int                      `mapstructure:"max_retries"`
	ReconnectFactor float64                  `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration            `mapstructure:"min_jitter"`
	MaxJitter       time.Duration            `mapstructure:"max_jitter"`
	TimeoutHandler  map[string]time.Duration `mapstructure:"timeout_handler"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type RedisConfig struct {
	CacheDSN string `mapstructure:"cache_dsn"`
}

type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	Secure     bool          `mapstructure:"secure"`
}

type DiscordConfig struct {
	ClientID           string            `mapstructure:"client_id"`
	ClientSecret       string            `mapstructure:"client_secret"`
	RedirectURI        string            `mapstructure:"redirect_uri"`
	BotToken           string            `mapstructure:"bot_token"`
	GuildID            string            `mapstructure:"guild_id"`
	FeedbackWebhookURL string            `mapstructure:"feedback_webhook_url"`
	RoleIDs            map[string]string `mapstructure:"role_ids"` // admin, elite, pro, core
}

type ProvidersConfig struct {
	AlphaVantageKey   string        `mapstructure:"alpha_vantage_key"`
	FinnhubAPIKey     string        `mapstructure:"finnhub_api_key"`
	CryptoPanicKey    string        `mapstructure:"crypto_panic_key"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	NewsFeeds         []string      `mapstructure:"news_feeds"`
}

type CacheConfig struct {
	SnapshotPath    string        `mapstructure:"snapshot_path"`
	PersistDebounce time.Duration `mapstructure:"persist_debounce"`
}

type RateLimitConfig struct {
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
	BypassPrefixes    []string      `mapstructure:"bypass_prefixes"`
}

type SignalsConfig struct {
	PruneDays     int      `mapstructure:"prune_days"`
	PruneSchedule string   `mapstructure:"prune_schedule"`
	BotSecrets    []string `mapstructure:"bot_secrets"`
}

type WhopConfig struct {
	WebhookSecret string            `mapstructure:"webhook_secret"`
	ProductPlans  map[string]string `mapstructure:"product_plans"`
}

type OpenAIConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	ModelMax          string  `mapstructure:"model_max"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type RealtimeConfig struct {
	UpstreamURL    string        `mapstructure:"upstream_url"`
	Allowlist      []string      `mapstructure:"allowlist"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ClientBuffer   int           `mapstructure:"client_buffer"`
}

type MentorConfig struct {
	DefaultCapacity int `mapstructure:"default_capacity"`
}

type TrialConfig struct {
	Duration time.Duration `mapstructure:"duration"`
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	setDefaults()

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("env", "development")
	viper.SetDefault("log.log_level", "info")
	viper.SetDefault("graceful_shutdown_timeout", 15*time.Second)
	viper.SetDefault("port.http", "8787")
	viper.SetDefault("port.grpc", "9787")
	viper.SetDefault("session.cookie_name", "joat_session")
	viper.SetDefault("session.ttl", 7*24*time.Hour)
	viper.SetDefault("providers.request_timeout", 10*time.Second)
	viper.SetDefault("providers.requests_per_second", 5)
	viper.SetDefault("cache.snapshot_path", "server-cache.json")
	viper.SetDefault("cache.persist_debounce", 500*time.Millisecond)
	viper.SetDefault("rate_limit.window", time.Minute)
	viper.SetDefault("rate_limit.bypass_prefixes", []string{"/api/news"})
	viper.SetDefault("signals.prune_days", 10)
	viper.SetDefault("signals.prune_schedule", "@every 1h")
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.model_max", "gpt-4o")
	viper.SetDefault("openai.requests_per_second", 2)
	viper.SetDefault("realtime.upstream_url", "wss://advanced-trade-ws.coinbase.com")
	viper.SetDefault("realtime.reconnect_delay", 1500*time.Millisecond)
	viper.SetDefault("realtime.ping_interval", 25*time.Second)
	viper.SetDefault("realtime.client_buffer", 64)
	viper.SetDefault("mentor.default_capacity", 10)
	viper.SetDefault("trial.duration", 7*24*time.Hour)
}

// RequestsPerWindow falls back to the environment specific default when unset.
func (c *EnvConfig) RequestsPerWindow() int {
	if c.RateLimit.RequestsPerWindow > 0 {
		return c.RateLimit.RequestsPerWindow
	}
	if c.Env == constant.ProductionEnvironment {
		return 2000
	}
	return 5000
}
