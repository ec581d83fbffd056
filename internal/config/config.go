package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	appName            = "mailpilot"
	defaultRedirectURI = "http://localhost:8000/api/auth/gmail/callback"
)

// Config holds all mailpilot configuration.
type Config struct {
	Gmail      GmailConfig      `toml:"gmail"`
	GenAI      GenAIConfig      `toml:"genai"`
	Database   DatabaseConfig   `toml:"database"`
	Vector     VectorConfig     `toml:"vector"`
	Redis      RedisConfig      `toml:"redis"`
	Server     ServerConfig     `toml:"server"`
	Security   SecurityConfig   `toml:"security"`
	Processing ProcessingConfig `toml:"processing"`
	Features   FeaturesConfig   `toml:"features"`
	RateLimits RateLimitConfig  `toml:"rate_limits"`
	Log        LogConfig        `toml:"log"`
	Launch     LaunchConfig     `toml:"launch"`
}

// GmailConfig holds Gmail OAuth credentials.
type GmailConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// GenAIConfig holds Gemini settings for embeddings and text generation.
type GenAIConfig struct {
	APIKey         string `toml:"api_key"`
	EmbeddingModel string `toml:"embedding_model"`
	Dimensions     int    `toml:"dimensions"`
	ChatModel      string `toml:"chat_model"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type VectorConfig struct {
	Collection     string  `toml:"collection"`
	ScoreThreshold float64 `toml:"score_threshold"`
}

// RedisConfig points at the OAuth state store. An empty Addr keeps state in memory.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type ServerConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	AllowOrigins []string `toml:"allow_origins"`
	Environment  string   `toml:"environment"`
}

// SecurityConfig holds API token and token-encryption settings.
type SecurityConfig struct {
	SecretKey                string `toml:"secret_key"`
	Algorithm                string `toml:"algorithm"`
	AccessTokenExpireMinutes int    `toml:"access_token_expire_minutes"`
	EncryptionKey            string `toml:"encryption_key"`
}

type ProcessingConfig struct {
	MaxEmailsPerSync    int    `toml:"max_emails_per_sync"`
	SyncIntervalMinutes int    `toml:"sync_interval_minutes"`
	DailySummaryTime    string `toml:"daily_summary_time"`
	Timezone            string `toml:"timezone"`
	EmbeddingBatchSize  int    `toml:"embedding_batch_size"`
}

type FeaturesConfig struct {
	Gmail        bool `toml:"gmail"`
	Outlook      bool `toml:"outlook"`
	DailySummary bool `toml:"daily_summary"`
	AIDrafting   bool `toml:"ai_drafting"`
	SmartSearch  bool `toml:"smart_search"`
}

// RateLimitConfig caps outbound API calls. Gmail is per second, Gemini per minute.
type RateLimitConfig struct {
	GmailPerSecond  int `toml:"gmail_per_second"`
	GeminiPerMinute int `toml:"gemini_per_minute"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// LaunchConfig holds the defaults for the index server launcher.
type LaunchConfig struct {
	Binary               string `toml:"binary"`
	Port                 int    `toml:"port"`
	IDEVersion           string `toml:"ide_version"`
	StoragePath          string `toml:"storage_path"`
	LocalEmbedding       bool   `toml:"local_embedding"`
	EmbeddingStorageType string `toml:"embedding_storage_type"`
	AppID                string `toml:"app_id"`
	LimitCPU             int    `toml:"limit_cpu"`
	SourceProduct        string `toml:"source_product"`
}

func defaults() Config {
	return Config{
		GenAI: GenAIConfig{
			EmbeddingModel: "gemini-embedding-001",
			Dimensions:     768,
			ChatModel:      "gemini-2.0-flash",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DataDir(), "mailpilot.db"),
		},
		Vector: VectorConfig{
			Collection:     "email_vectors",
			ScoreThreshold: 0.3,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			AllowOrigins: []string{"http://localhost:3000", "http://localhost:8501"},
			Environment:  "development",
		},
		Security: SecurityConfig{
			Algorithm:                "HS256",
			AccessTokenExpireMinutes: 30,
		},
		Processing: ProcessingConfig{
			MaxEmailsPerSync:    100,
			SyncIntervalMinutes: 30,
			DailySummaryTime:    "08:30",
			Timezone:            "Asia/Kolkata",
			EmbeddingBatchSize:  20,
		},
		Features: FeaturesConfig{
			Gmail:        true,
			DailySummary: true,
			AIDrafting:   true,
			SmartSearch:  true,
		},
		RateLimits: RateLimitConfig{
			GmailPerSecond:  250,
			GeminiPerMinute: 15,
		},
		Log: LogConfig{
			Level: "info",
		},
		Launch: LaunchConfig{
			Binary:               "ckg_server",
			Port:                 50051,
			EmbeddingStorageType: "sqlite",
			LimitCPU:             1,
		},
	}
}

// Load reads config from path, then applies a .env file in the working
// directory (if any) and environment overrides. If path is empty or missing,
// defaults are used as the base.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	setString(lookup, "GMAIL_CLIENT_ID", &c.Gmail.ClientID)
	setString(lookup, "GMAIL_CLIENT_SECRET", &c.Gmail.ClientSecret)
	if v, ok := lookup("GMAIL_REDIRECT_URI"); ok && v != "" && !isLocalhost(v) {
		c.Gmail.RedirectURI = v
	}
	if c.Gmail.RedirectURI == "" {
		c.Gmail.RedirectURI = defaultRedirectURI
	}

	setString(lookup, "GEMINI_API_KEY", &c.GenAI.APIKey)
	setString(lookup, "EMBEDDING_MODEL", &c.GenAI.EmbeddingModel)
	setString(lookup, "DATABASE_PATH", &c.Database.Path)
	setString(lookup, "QDRANT_COLLECTION_NAME", &c.Vector.Collection)
	setString(lookup, "REDIS_ADDR", &c.Redis.Addr)
	setString(lookup, "HOST", &c.Server.Host)
	setString(lookup, "ENVIRONMENT", &c.Server.Environment)
	setString(lookup, "SECRET_KEY", &c.Security.SecretKey)
	setString(lookup, "ENCRYPTION_KEY", &c.Security.EncryptionKey)
	setString(lookup, "LOG_LEVEL", &c.Log.Level)
	setString(lookup, "LOG_FILE", &c.Log.File)
	setString(lookup, "TIMEZONE", &c.Processing.Timezone)
	setString(lookup, "DAILY_SUMMARY_TIME", &c.Processing.DailySummaryTime)

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Server.Port},
		{"EMBEDDING_DIMENSIONS", &c.GenAI.Dimensions},
		{"ACCESS_TOKEN_EXPIRE_MINUTES", &c.Security.AccessTokenExpireMinutes},
		{"MAX_EMAILS_PER_SYNC", &c.Processing.MaxEmailsPerSync},
		{"SYNC_INTERVAL_MINUTES", &c.Processing.SyncIntervalMinutes},
		{"GMAIL_API_RATE_LIMIT", &c.RateLimits.GmailPerSecond},
		{"GEMINI_API_RATE_LIMIT", &c.RateLimits.GeminiPerMinute},
	}
	for _, e := range ints {
		if err := setInt(lookup, e.key, e.dst); err != nil {
			return err
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"ENABLE_GMAIL", &c.Features.Gmail},
		{"ENABLE_OUTLOOK", &c.Features.Outlook},
		{"ENABLE_DAILY_SUMMARY", &c.Features.DailySummary},
		{"ENABLE_AI_DRAFTING", &c.Features.AIDrafting},
		{"ENABLE_SMART_SEARCH", &c.Features.SmartSearch},
	}
	for _, e := range bools {
		if err := setBool(lookup, e.key, e.dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("ALLOW_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowOrigins = origins
	}
	return nil
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func setInt(lookup lookupFunc, key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(lookup lookupFunc, key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func isLocalhost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// Validate reports settings required before serving requests.
func (c *Config) Validate() error {
	var missing []string
	if c.Features.Gmail && (c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "") {
		missing = append(missing, "gmail client credentials")
	}
	if c.IsProduction() && c.Security.SecretKey == "" {
		missing = append(missing, "security secret key")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.SummaryClock(); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SyncInterval returns the background sync period.
func (c *Config) SyncInterval() time.Duration {
	if c.Processing.SyncIntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Processing.SyncIntervalMinutes) * time.Minute
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Security.AccessTokenExpireMinutes) * time.Minute
}

// Location returns the configured digest timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Processing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Processing.Timezone, err)
	}
	return loc, nil
}

// SummaryClock parses DailySummaryTime as HH:MM.
func (c *Config) SummaryClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.Processing.DailySummaryTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily summary time %q: %w", c.Processing.DailySummaryTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// ConfigDir returns the mailpilot config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

// DataDir returns the mailpilot data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appName)
}
