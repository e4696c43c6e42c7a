package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime settings for the bot. Values come from a
// config.yaml (optional) overlaid with environment variables; a local .env
// file is loaded first so the env path works in development too.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Genius   GeniusConfig   `mapstructure:"genius"`
	Search   SearchConfig   `mapstructure:"search"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Turso    TursoConfig    `mapstructure:"turso"`
	Media    MediaConfig    `mapstructure:"media"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type TelegramConfig struct {
	Token      string `mapstructure:"token"`
	WebhookURL string `mapstructure:"webhook_url"`
	Port       int    `mapstructure:"port"`
}

type GeniusConfig struct {
	APIToken     string `mapstructure:"api_token"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type SearchConfig struct {
	PageSize   int           `mapstructure:"page_size"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	BusyTTL    time.Duration `mapstructure:"busy_ttl"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
}

type CacheConfig struct {
	Path string        `mapstructure:"path"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type TursoConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	AuthToken   string `mapstructure:"auth_token"`
}

type MediaConfig struct {
	YtdlpPath  string        `mapstructure:"ytdlp_path"`
	FfmpegPath string        `mapstructure:"ffmpeg_path"`
	WorkDir    string        `mapstructure:"work_dir"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration and validates required credentials.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("telegram.port", 3000)
	v.SetDefault("search.page_size", 5)
	v.SetDefault("search.session_ttl", time.Hour)
	v.SetDefault("search.busy_ttl", 5*time.Minute)
	v.SetDefault("cache.path", "lyrics-cache.db")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("media.ytdlp_path", "yt-dlp")
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.work_dir", "")
	v.SetDefault("media.timeout", 5*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Required for the env-only path, viper does not bind nested keys
	// automatically.
	for _, key := range []string{
		"telegram.token", "telegram.webhook_url", "telegram.port",
		"genius.api_token", "genius.client_id", "genius.client_secret",
		"search.page_size", "search.session_ttl", "search.busy_ttl",
		"redis.url", "redis.password",
		"cache.path", "cache.ttl",
		"turso.database_url", "turso.auth_token",
		"media.ytdlp_path", "media.ffmpeg_path", "media.work_dir", "media.timeout",
		"logging.level", "logging.format",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("missing required setting: TELEGRAM_TOKEN")
	}
	if cfg.Genius.APIToken == "" && (cfg.Genius.ClientID == "" || cfg.Genius.ClientSecret == "") {
		return nil, fmt.Errorf("missing required setting: GENIUS_API_TOKEN or GENIUS_CLIENT_ID/GENIUS_CLIENT_SECRET")
	}

	return &cfg, nil
}
