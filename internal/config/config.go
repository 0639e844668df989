package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/VoiceBot/internal/app"
	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/dkeye/VoiceBot/internal/logging"
	"github.com/dkeye/VoiceBot/internal/storage"
)

type Config struct {
	Mode      string          `mapstructure:"mode"`
	Port      int             `mapstructure:"port"`
	Log       logging.Config  `mapstructure:"log"`
	Bot       BotConfig       `mapstructure:"bot"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Storage   storage.Config  `mapstructure:"storage"`
	Timeouts  app.Timeouts    `mapstructure:"timeouts"`
	Quality   domain.Quality  `mapstructure:"quality"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Session   SessionConfig   `mapstructure:"session"`
}

type BotConfig struct {
	Token   string        `mapstructure:"token"`
	Timeout int           `mapstructure:"poll_timeout"`
	Debug   bool          `mapstructure:"debug"`
	Workers int           `mapstructure:"workers"`
	Drain   time.Duration `mapstructure:"drain"`
}

// AssistantConfig holds the user-account credentials handed to the call engine.
type AssistantConfig struct {
	APIID         int    `mapstructure:"api_id"`
	APIHash       string `mapstructure:"api_hash"`
	SessionString string `mapstructure:"session_string"`
}

type EngineConfig struct {
	URL        string        `mapstructure:"url"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Handshake  time.Duration `mapstructure:"handshake"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

type ResolverConfig struct {
	Binary string               `mapstructure:"binary"`
	Policy domain.ResolvePolicy `mapstructure:",squash"`
}

type DispatchConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// env binds the deployment's environment variables onto config keys.
var envKeys = map[string]string{
	"bot.token":                "BOT_TOKEN",
	"assistant.api_id":         "API_ID",
	"assistant.api_hash":       "API_HASH",
	"assistant.session_string": "SESSION_STRING",
	"port":                     "PORT",
	"engine.url":               "ENGINE_URL",
	"log.level":                "LOG_LEVEL",
	"storage.base_path":        "DOWNLOAD_DIR",
	"resolver.cookies_file":    "COOKIES_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("⚠️ Config file not found, using defaults and environment")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("✅ Loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("engine", cfg.Engine.URL).
		Msg("🧩 Config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log.level", "info")

	v.SetDefault("bot.poll_timeout", 60)
	v.SetDefault("bot.workers", 64)
	v.SetDefault("bot.drain", "10s")

	v.SetDefault("engine.url", "ws://127.0.0.1:8765/ws")
	v.SetDefault("engine.read_limit", 1<<20)
	v.SetDefault("engine.ping_period", "54s")
	v.SetDefault("engine.handshake", "10s")
	v.SetDefault("engine.backoff", "2s")

	v.SetDefault("resolver.binary", "yt-dlp")
	v.SetDefault("resolver.max_height", 480)
	v.SetDefault("resolver.container", "mp4")
	v.SetDefault("resolver.download", false)
	v.SetDefault("resolver.max_duration", "0s")
	v.SetDefault("resolver.cookies_file", "cookies.txt")

	v.SetDefault("storage.base_path", "downloads")

	d := app.DefaultTimeouts()
	v.SetDefault("timeouts.join", d.Join)
	v.SetDefault("timeouts.resolve", d.Resolve)
	v.SetDefault("timeouts.engine", d.Engine)

	v.SetDefault("quality.audio", "high")
	v.SetDefault("quality.video", "sd_480p")

	v.SetDefault("dispatch.limit", 5)
	v.SetDefault("dispatch.interval", "10s")

	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("session.sweep_interval", "1m")
}

func bindEnv(v *viper.Viper) error {
	for key, name := range envKeys {
		if err := v.BindEnv(key, name); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.Assistant.APIID == 0 {
		errs = append(errs, errors.New("API_ID is required"))
	}
	if c.Assistant.APIHash == "" {
		errs = append(errs, errors.New("API_HASH is required"))
	}
	if c.Assistant.SessionString == "" {
		errs = append(errs, errors.New("SESSION_STRING is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.Engine.URL == "" {
		errs = append(errs, errors.New("engine url is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
