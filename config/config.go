package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the document QA system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains server and application settings
type GeneralConfig struct {
	Listen           string `mapstructure:"listen"`
	Debug            bool   `mapstructure:"debug"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	FallbackLanguage string `mapstructure:"fallback_language"` // th or en
}

// LLMConfig selects and configures the generation backend
type LLMConfig struct {
	// Provider picks the backend once at startup: "openai" or "ollama".
	Provider string        `mapstructure:"provider"`
	OpenAI   OpenAIConfig  `mapstructure:"openai"`
	Ollama   OllamaConfig  `mapstructure:"ollama"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig configures the cloud-hosted backend
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// OllamaConfig configures the locally-hosted backend
type OllamaConfig struct {
	Host        string  `mapstructure:"host"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// QuotaConfig bounds daily LLM usage per user
type QuotaConfig struct {
	// DailyCallLimits maps purpose buckets to daily call counts.
	// A missing bucket or a limit of 0 means unlimited.
	DailyCallLimits map[string]int64 `mapstructure:"daily_call_limits"`
	// TokenBudgets maps purpose buckets to daily token budgets.
	TokenBudgets map[string]int64 `mapstructure:"token_budgets"`
	// Timezone resolves the local calendar day for counter rollover.
	Timezone string `mapstructure:"timezone"`
}

// RetrievalConfig tunes lexical scoring and relevance gating
type RetrievalConfig struct {
	ChunkSize       int     `mapstructure:"chunk_size"`
	Overlap         int     `mapstructure:"overlap"`
	TopK            int     `mapstructure:"top_k"`
	MinScore        float64 `mapstructure:"min_score"`
	MinMatchedTerms int     `mapstructure:"min_matched_terms"`
}

// ChatConfig bounds prompt assembly
type ChatConfig struct {
	MaxContextChars int           `mapstructure:"max_context_chars"`
	MaxHistoryChars int           `mapstructure:"max_history_chars"`
	MaxHistoryTurns int           `mapstructure:"max_history_turns"`
	CancelTTL       time.Duration `mapstructure:"cancel_ttl"`
}

// DatabasesConfig contains storage backends
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains connection settings for the relational store
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds the postgres connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains connection settings for the counter cache
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if r.Host == "" || r.Port == "" {
		return fmt.Errorf("redis not configured (databases.redis.host/port)")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "openai":
		if l.OpenAI.APIKey == "" {
			return fmt.Errorf("llm.openai.api_key required when provider is openai")
		}
	case "ollama":
		// host defaults are fine
	default:
		return fmt.Errorf("llm.provider must be openai or ollama, got %q", l.Provider)
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.listen", ":10011")
	viper.SetDefault("general.fallback_language", "en")
	viper.SetDefault("llm.provider", "ollama")
	viper.SetDefault("llm.timeout", 120*time.Second)
	viper.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.openai.model", "gpt-4o-mini")
	viper.SetDefault("llm.openai.max_tokens", 800)
	viper.SetDefault("llm.openai.temperature", 0.2)
	viper.SetDefault("llm.ollama.host", "http://localhost:11434")
	viper.SetDefault("llm.ollama.model", "llama3")
	viper.SetDefault("llm.ollama.temperature", 0.2)
	viper.SetDefault("quota.timezone", "Asia/Bangkok")
	viper.SetDefault("quota.daily_call_limits", map[string]int64{"chat": 200, "upload": 200})
	viper.SetDefault("quota.token_budgets", map[string]int64{"chat": 120000, "upload": 80000})
	viper.SetDefault("retrieval.chunk_size", 900)
	viper.SetDefault("retrieval.overlap", 150)
	viper.SetDefault("retrieval.top_k", 6)
	viper.SetDefault("retrieval.min_score", 4.0)
	viper.SetDefault("retrieval.min_matched_terms", 2)
	viper.SetDefault("chat.max_context_chars", 12000)
	viper.SetDefault("chat.max_history_chars", 4000)
	viper.SetDefault("chat.max_history_turns", 8)
	viper.SetDefault("chat.cancel_ttl", 5*time.Minute)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DOCLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Databases.Redis.Validate(); err != nil {
		panic(err)
	}
	return &config
}
