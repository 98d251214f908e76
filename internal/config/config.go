// Package config resolves wamux settings from flags, WAMUX_* environment
// variables, an optional .env file and built-in defaults, in that order.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ricochet1k/wamux/internal/autoreply"
	"github.com/ricochet1k/wamux/internal/mirror"
	"github.com/ricochet1k/wamux/internal/qr"
	"github.com/ricochet1k/wamux/internal/service"
)

const EnvPrefix = "WAMUX"

const (
	KeyAddr         = "addr"
	KeySessionsDir  = "sessions-dir"
	KeyLogLevel     = "log-level"
	KeyLogFormat    = "log-format"
	KeyRetryDelay   = "retry-delay"
	KeyEnvFile      = "env-file"
	KeyProvider     = "autoreply.provider"
	KeyEnabled      = "autoreply.enabled"
	KeySystemPrompt = "autoreply.system-prompt"
	KeyTimeout      = "autoreply.timeout"
	KeyThreshold    = "autoreply.breaker-threshold"
	KeyCooldown     = "autoreply.breaker-cooldown"
	KeyDeepSeekKey  = "deepseek.api-key"
	KeyDeepSeekURL  = "deepseek.base-url"
	KeyDeepSeekModl = "deepseek.model"
	KeyGeminiKey    = "gemini.api-key"
	KeyGeminiModel  = "gemini.model"
	KeyRedisAddr    = "redis.addr"
	KeyRedisPrefix  = "redis.prefix"
	KeyQRSize       = "qr.size"
)

type AutoReply struct {
	Provider         string
	Enabled          bool
	SystemPrompt     string
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type Redis struct {
	Addr   string
	Prefix string
}

type Config struct {
	Addr        string
	SessionsDir string
	LogLevel    string
	LogFormat   string
	RetryDelay  time.Duration
	AutoReply   AutoReply
	DeepSeek    autoreply.DeepSeekConfig
	Gemini      autoreply.GeminiConfig
	Redis       Redis
	QRSize      int
}

// PolicyConfig is the subset handed to autoreply.New.
func (c Config) PolicyConfig() autoreply.Config {
	return autoreply.Config{
		Provider: c.AutoReply.Provider,
		DeepSeek: c.DeepSeek,
		Gemini:   c.Gemini,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAddr, ":3000")
	v.SetDefault(KeySessionsDir, "./sessions")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyRetryDelay, service.DefaultRetryDelay)
	v.SetDefault(KeyEnvFile, ".env")
	v.SetDefault(KeyProvider, autoreply.ProviderDeepSeek)
	v.SetDefault(KeyEnabled, true)
	v.SetDefault(KeySystemPrompt, autoreply.DefaultSystemPrompt)
	v.SetDefault(KeyTimeout, service.DefaultReplyTimeout)
	v.SetDefault(KeyThreshold, 3)
	v.SetDefault(KeyCooldown, time.Minute)
	v.SetDefault(KeyDeepSeekKey, "")
	v.SetDefault(KeyDeepSeekURL, autoreply.DefaultDeepSeekBaseURL)
	v.SetDefault(KeyDeepSeekModl, autoreply.DefaultDeepSeekModel)
	v.SetDefault(KeyGeminiKey, "")
	v.SetDefault(KeyGeminiModel, autoreply.DefaultGeminiModel)
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyRedisPrefix, mirror.DefaultPrefix)
	v.SetDefault(KeyQRSize, qr.DefaultSize)
}

// RegisterFlags adds the command-line overrides. Nested keys use dashes on
// the command line (--autoreply-provider for autoreply.provider).
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyAddr, ":3000", "HTTP listen address (falls back to $PORT)")
	fs.String(KeySessionsDir, "./sessions", "directory holding per-session credentials")
	fs.String(KeyLogLevel, "info", "log level (trace, debug, info, warn, error)")
	fs.String(KeyLogFormat, "console", "log format (console, json)")
	fs.Duration(KeyRetryDelay, service.DefaultRetryDelay, "delay before reconnecting a dropped session")
	fs.String(KeyEnvFile, ".env", "dotenv file loaded when present")
	fs.String(flagName(KeyProvider), autoreply.ProviderDeepSeek, "auto-reply provider (deepseek, gemini, none)")
	fs.Bool(flagName(KeyEnabled), true, "start with auto-replies enabled")
	fs.String(flagName(KeyRedisAddr), "", "Redis address for the event mirror (empty disables it)")
}

func flagName(key string) string {
	return strings.ReplaceAll(key, ".", "-")
}

// Load resolves the configuration. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := f.Name
			for _, k := range []string{KeyProvider, KeyEnabled, KeyRedisAddr} {
				if flagName(k) == f.Name {
					key = k
				}
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = errors.Wrapf(err, "bind flag %s", f.Name)
			}
		})
		if bindErr != nil {
			return Config{}, bindErr
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := loadEnvFile(v.GetString(KeyEnvFile)); err != nil {
		return Config{}, err
	}

	// Unprefixed names used by hosting platforms and the provider SDKs.
	for key, envs := range map[string][]string{
		KeyAddr:        {"WAMUX_ADDR", "PORT"},
		KeyDeepSeekKey: {"WAMUX_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY"},
		KeyGeminiKey:   {"WAMUX_GEMINI_API_KEY", "GEMINI_API_KEY"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, errors.Wrapf(err, "bind env %s", key)
		}
	}

	cfg := Config{
		Addr:        normalizeAddr(v.GetString(KeyAddr)),
		SessionsDir: v.GetString(KeySessionsDir),
		LogLevel:    v.GetString(KeyLogLevel),
		LogFormat:   v.GetString(KeyLogFormat),
		RetryDelay:  v.GetDuration(KeyRetryDelay),
		AutoReply: AutoReply{
			Provider:         strings.ToLower(v.GetString(KeyProvider)),
			Enabled:          v.GetBool(KeyEnabled),
			SystemPrompt:     v.GetString(KeySystemPrompt),
			Timeout:          v.GetDuration(KeyTimeout),
			BreakerThreshold: v.GetInt(KeyThreshold),
			BreakerCooldown:  v.GetDuration(KeyCooldown),
		},
		DeepSeek: autoreply.DeepSeekConfig{
			APIKey:  v.GetString(KeyDeepSeekKey),
			BaseURL: v.GetString(KeyDeepSeekURL),
			Model:   v.GetString(KeyDeepSeekModl),
		},
		Gemini: autoreply.GeminiConfig{
			APIKey: v.GetString(KeyGeminiKey),
			Model:  v.GetString(KeyGeminiModel),
		},
		Redis: Redis{
			Addr:   v.GetString(KeyRedisAddr),
			Prefix: v.GetString(KeyRedisPrefix),
		},
		QRSize: v.GetInt(KeyQRSize),
	}
	return cfg, cfg.Validate()
}

// loadEnvFile exports the file's variables without overriding ones already
// set in the process environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

// normalizeAddr turns a bare port ("8080", as PORT usually is) into ":8080".
func normalizeAddr(addr string) string {
	if addr == "" || strings.Contains(addr, ":") {
		return addr
	}
	for _, r := range addr {
		if r < '0' || r > '9' {
			return addr
		}
	}
	return ":" + addr
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.SessionsDir == "" {
		return errors.New("sessions-dir must not be empty")
	}
	if c.RetryDelay <= 0 {
		return errors.Errorf("retry-delay must be positive, got %s", c.RetryDelay)
	}
	switch c.AutoReply.Provider {
	case autoreply.ProviderDeepSeek, autoreply.ProviderGemini, autoreply.ProviderNone:
	default:
		return errors.Errorf("unknown auto-reply provider %q", c.AutoReply.Provider)
	}
	if c.AutoReply.Timeout <= 0 {
		return errors.Errorf("autoreply.timeout must be positive, got %s", c.AutoReply.Timeout)
	}
	if c.AutoReply.BreakerThreshold <= 0 {
		return errors.Errorf("autoreply.breaker-threshold must be positive, got %d", c.AutoReply.BreakerThreshold)
	}
	if c.QRSize <= 0 {
		return errors.Errorf("qr.size must be positive, got %d", c.QRSize)
	}
	return nil
}
