package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingEnvironmentVariables = errors.New("missing required environment variables")

// Config holds application configuration loaded from files and environment variables.
type Config struct {
	Env        string     `mapstructure:"env"`       // current application environment (local, dev, production etc)
	LogLevel   string     `mapstructure:"log_level"` // overrides the environment's default log level
	LLM        LLM        `mapstructure:"llm"`        // completion endpoint section
	Generation Generation `mapstructure:"generation"` // batching and pacing section
	Output     Output     `mapstructure:"output"`     // record store section
	HTTP       HTTP       `mapstructure:"http"`       // web façade section
	DB         DB         `mapstructure:"database"`   // optional Postgres mirror section
	Telegram   Telegram   `mapstructure:"telegram"`   // optional run notifications section
	Schedule   Schedule   `mapstructure:"schedule"`   // optional periodic runs section
}

// LLM contains completion endpoint parameters.
type LLM struct {
	APIKey      string        `mapstructure:"-"`           // loaded from OPENAI_API_KEY only
	BaseURL     string        `mapstructure:"base_url"`    // OpenAI-compatible API root
	Model       string        `mapstructure:"model"`       // model name
	Temperature float64       `mapstructure:"temperature"` // decoding temperature
	MaxTokens   int           `mapstructure:"max_tokens"`  // output length cap
	Timeout     time.Duration `mapstructure:"timeout"`     // per request timeout
	MaxRetries  int           `mapstructure:"max_retries"` // attempts per completion
	RetryDelay  time.Duration `mapstructure:"retry_delay"` // base delay between attempts
}

// Generation contains batching parameters.
type Generation struct {
	BatchSize      int           `mapstructure:"batch_size"`      // items per generation call
	DefaultCount   int           `mapstructure:"default_count"`   // items requested when no count is given
	MaxCount       int           `mapstructure:"max_count"`       // upper bound for web requests
	BatchDelay     time.Duration `mapstructure:"batch_delay"`     // pause between consecutive batches
	ReferenceLimit int           `mapstructure:"reference_limit"` // characters of reference text embedded in prompts
}

// Output contains record store locations.
type Output struct {
	Path               string `mapstructure:"path"`                 // default CLI destination
	AppendPath         string `mapstructure:"append_path"`          // preferred merged dataset
	AppendFallbackPath string `mapstructure:"append_fallback_path"` // used when AppendPath does not exist
}

// HTTP contains web façade parameters.
type HTTP struct {
	Addr         string        `mapstructure:"addr"`          // listen address
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // header read timeout
	SyncTimeout  time.Duration `mapstructure:"sync_timeout"`  // upper bound for synchronous generation
	RunRetention time.Duration `mapstructure:"run_retention"` // how long finished runs stay queryable
}

// DB contains database-related configuration parameters.
type DB struct {
	URL             string        `mapstructure:"-"`                 // database connection string loaded from environment
	MaxConnections  int           `mapstructure:"max_connections"`   // maximum number of open connections in the pool
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"` // maximum lifetime of a single connection
}

// Enabled reports whether the Postgres mirror is configured.
func (db DB) Enabled() bool {
	return db.URL != ""
}

// DSN returns the database connection string if it is configured.
func (db DB) DSN() (string, error) {
	if db.URL == "" {
		return "", ErrMissingEnvironmentVariables
	}
	return db.URL, nil
}

// Telegram contains run notification parameters.
type Telegram struct {
	Token  string `mapstructure:"-"`       // bot token loaded from environment
	ChatID int64  `mapstructure:"chat_id"` // chat receiving run summaries
}

// Enabled reports whether run summaries should be sent.
func (t Telegram) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

// Schedule lists generation jobs run periodically by the web server.
type Schedule struct {
	Jobs []ScheduledJob `mapstructure:"jobs"`
}

// ScheduledJob is one periodic generation run.
type ScheduledJob struct {
	Spec             string `mapstructure:"spec"`              // cron expression, standard five fields
	Subject          string `mapstructure:"subject"`           // subject to generate
	Topic            string `mapstructure:"topic"`             // optional topic
	Count            int    `mapstructure:"count"`             // items per run
	ReferencePath    string `mapstructure:"reference_path"`    // optional grounding file
	SkipVerification bool   `mapstructure:"skip_verification"` // skip the verifier pass
	Output           string `mapstructure:"output"`            // appended record store
}

// Load reads configuration from .env, config files and environment variables.
func Load() (*Config, error) {
	return LoadFrom("./config", ".env")
}

// LoadFrom is Load with explicit config directory and dotenv file.
func LoadFrom(configDir, dotenvPath string) (*Config, error) {
	// Populate the process environment from the dotenv file without overriding it.
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading %s: %w", dotenvPath, err)
	}

	// Initialize Viper instance and base config options.
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	// Configure environment variable handling and key mapping.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // map nested keys to ENV style names
	v.AutomaticEnv()

	// Bind explicit environment variables to configuration keys.
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("telegram_api_token", "TELEGRAM_API_TOKEN")
	_ = v.BindEnv("env", "APP_ENV")

	// Try to read configuration file if present.
	if err := v.ReadInConfig(); err != nil {
		var fileLookupErr viper.ConfigFileNotFoundError
		if !errors.As(err, &fileLookupErr) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	// Unmarshal configuration into strongly typed struct.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Load sensitive values from environment variables.
	cfg.LLM.APIKey = v.GetString("openai_api_key")
	cfg.DB.URL = v.GetString("database_url")
	cfg.Telegram.Token = v.GetString("telegram_api_token")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")

	v.SetDefault("generation.batch_size", 5)
	v.SetDefault("generation.default_count", 10)
	v.SetDefault("generation.max_count", 50)
	v.SetDefault("generation.batch_delay", "1s")
	v.SetDefault("generation.reference_limit", 8000)

	v.SetDefault("output.path", "domande_generate.jsonl")
	v.SetDefault("output.append_path", "domande_unite_no_duplicati.jsonl")
	v.SetDefault("output.append_fallback_path", "domande_unite.jsonl")

	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.sync_timeout", "15m")
	v.SetDefault("http.run_retention", "1h")

	v.SetDefault("database.max_connections", 5)
	v.SetDefault("database.max_conn_lifetime", "30m")

	v.SetDefault("telegram.chat_id", 0)
}
