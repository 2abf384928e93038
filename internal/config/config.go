// Package config builds the application configuration.
//
// SOURCES (later wins):
//
//	defaults → .env file → TOML file (-config flag) → process environment
//
// The result is a plain struct built once in main and passed down; nothing
// else in the module reads the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const minSecretLength = 16

// Config is everything the server and the manage command need.
type Config struct {
	Addr        string
	DatabaseURL string

	SecretKey string
	// SecretGenerated is true when SecretKey was not configured and a random
	// one was made up. Sessions then do not survive a restart.
	SecretGenerated bool

	TokenLifetime time.Duration
	CookieName    string
	CookieSecure  bool

	// TemplateDir and StaticDir override the embedded web assets when set.
	TemplateDir string
	StaticDir   string

	AutoMigrate     bool
	LogLevel        string
	ShutdownTimeout time.Duration

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Default returns the built-in defaults, without a secret key.
func Default() Config {
	return Config{
		Addr:            ":8000",
		DatabaseURL:     "sqlite:///./app.db",
		TokenLifetime:   time.Hour,
		CookieName:      "auth",
		AutoMigrate:     true,
		LogLevel:        "info",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads the configuration from ./.env, the optional TOML file at
// configFile and the environment.
func Load(configFile string) (Config, error) {
	return load(configFile, ".env", os.LookupEnv)
}

func load(configFile, envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	var (
		dotenv map[string]string
		err    error
	)
	if envFile != "" {
		dotenv, err = godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(func(key string) (string, bool) {
		v, ok := dotenv[key]
		return v, ok
	}); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", envFile, err)
	}

	if configFile != "" {
		if err := cfg.applyFile(configFile); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	if cfg.SecretKey == "" {
		if cfg.SecretKey, err = randomSecret(); err != nil {
			return Config{}, err
		}
		cfg.SecretGenerated = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors Config for TOML decoding. Pointers tell "absent" from
// "set to the zero value".
type fileConfig struct {
	Addr            *string `toml:"addr"`
	DatabaseURL     *string `toml:"database_url"`
	SecretKey       *string `toml:"secret_key"`
	TokenLifetime   *string `toml:"token_lifetime"`
	CookieName      *string `toml:"cookie_name"`
	CookieSecure    *bool   `toml:"cookie_secure"`
	TemplateDir     *string `toml:"template_dir"`
	StaticDir       *string `toml:"static_dir"`
	AutoMigrate     *bool   `toml:"auto_migrate"`
	LogLevel        *string `toml:"log_level"`
	ShutdownTimeout *string `toml:"shutdown_timeout"`

	GitHub struct {
		ClientID     *string `toml:"client_id"`
		ClientSecret *string `toml:"client_secret"`
		CallbackURL  *string `toml:"callback_url"`
	} `toml:"github"`
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config: %s: unknown keys %v", path, undecoded)
	}

	setString(&c.Addr, fc.Addr)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.SecretKey, fc.SecretKey)
	setString(&c.CookieName, fc.CookieName)
	setString(&c.TemplateDir, fc.TemplateDir)
	setString(&c.StaticDir, fc.StaticDir)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.GitHubClientID, fc.GitHub.ClientID)
	setString(&c.GitHubClientSecret, fc.GitHub.ClientSecret)
	setString(&c.GitHubCallbackURL, fc.GitHub.CallbackURL)
	if fc.CookieSecure != nil {
		c.CookieSecure = *fc.CookieSecure
	}
	if fc.AutoMigrate != nil {
		c.AutoMigrate = *fc.AutoMigrate
	}

	if fc.TokenLifetime != nil {
		if c.TokenLifetime, err = parseDuration(*fc.TokenLifetime); err != nil {
			return fmt.Errorf("config: %s: token_lifetime: %w", path, err)
		}
	}
	if fc.ShutdownTimeout != nil {
		if c.ShutdownTimeout, err = parseDuration(*fc.ShutdownTimeout); err != nil {
			return fmt.Errorf("config: %s: shutdown_timeout: %w", path, err)
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// applyEnv overrides fields whose variables lookup knows about.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		c.Addr = ":" + port
	}
	str("ADDR", &c.Addr)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SECRET_KEY", &c.SecretKey)
	str("COOKIE_NAME", &c.CookieName)
	str("TEMPLATE_DIR", &c.TemplateDir)
	str("STATIC_DIR", &c.StaticDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("GITHUB_CLIENT_ID", &c.GitHubClientID)
	str("GITHUB_CLIENT_SECRET", &c.GitHubClientSecret)
	str("GITHUB_CALLBACK_URL", &c.GitHubCallbackURL)

	bools := []struct {
		key string
		dst *bool
	}{
		{"COOKIE_SECURE", &c.CookieSecure},
		{"AUTO_MIGRATE", &c.AutoMigrate},
	}
	for _, b := range bools {
		if v, ok := lookup(b.key); ok && v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", b.key, err)
			}
			*b.dst = parsed
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TOKEN_LIFETIME", &c.TokenLifetime},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok && v != "" {
			parsed, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}
	return nil
}

// parseDuration accepts Go durations ("90m") and bare seconds ("3600").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate checks the fields that have no safe fallback.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if _, err := ParseDatabaseURL(c.DatabaseURL); err != nil {
		errs = append(errs, err)
	}
	if len(c.SecretKey) < minSecretLength {
		errs = append(errs, fmt.Errorf("secret key must be at least %d characters", minSecretLength))
	}
	if c.TokenLifetime <= 0 {
		errs = append(errs, errors.New("token lifetime must be positive"))
	}
	if strings.TrimSpace(c.CookieName) == "" {
		errs = append(errs, errors.New("cookie name is required"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GitHub client id and secret must be set together"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// GitHubEnabled reports whether the GitHub login routes should be mounted.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// SlogLevel is LogLevel as a slog.Level. Validate has already rejected
// unknown names, which fall back to Info here.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// SecretPrefix is the part of the secret key that is safe to log.
func (c Config) SecretPrefix() string {
	if len(c.SecretKey) <= 8 {
		return c.SecretKey
	}
	return c.SecretKey[:8]
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level %q: want debug, info, warn or error", s)
	}
	return level, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("config: generating secret key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
