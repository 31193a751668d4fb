package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config contains all runtime settings for the debate service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	LogLevel         string
	LogFormat        string

	StoreDriver      string
	DatabaseURL      string
	SQLitePath       string
	StoreAutoMigrate bool

	SessionRetention       time.Duration
	SessionJanitorInterval time.Duration
	SessionBusyMode        string
	SessionQueueTimeout    time.Duration

	LLMProvider      string
	GeminiAPIKey     string
	GeminiModel      string
	LLMHTTPURL       string
	LLMTimeout       time.Duration
	LLMTemperature   float64
	LLMMaxTokens     int
	LLMRetryInterval time.Duration

	DebateMinRounds           int
	DebateModeratorEvery      int
	DebateAutoAdvance         bool
	DebateDefaultUserPosition string
	DebateEvaluationMode      string
	DebateStrictJSON          bool

	MemoryBudget       int
	MemoryBudgetUnit   string
	MemoryTailTurns    int
	MemoryRefreshEvery int

	PersonaCatalogPath string

	CoachingKeywords    []string
	FeedbackKeywords    []string
	TopicChangeKeywords []string
}

var defaults = map[string]any{
	"APP_BIND_ADDR":                ":8080",
	"APP_SHUTDOWN_TIMEOUT":         "15s",
	"APP_METRICS_NAMESPACE":        "agora",
	"APP_ALLOW_ANY_ORIGIN":         "false",
	"APP_LOG_LEVEL":                "info",
	"APP_LOG_FORMAT":               "json",
	"STORE_DRIVER":                 "auto",
	"STORE_AUTO_MIGRATE":           "true",
	"SESSION_RETENTION":            "24h",
	"SESSION_JANITOR_INTERVAL":     "10m",
	"SESSION_BUSY_MODE":            "reject",
	"SESSION_QUEUE_TIMEOUT":        "10s",
	"LLM_PROVIDER":                 "auto",
	"GEMINI_MODEL":                 "gemini-1.5-flash",
	"LLM_TIMEOUT":                  "30s",
	"LLM_TEMPERATURE":              "0.7",
	"LLM_MAX_TOKENS":               "1000",
	"LLM_RETRY_INTERVAL":           "250ms",
	"DEBATE_MIN_ROUNDS":            "3",
	"DEBATE_MODERATOR_EVERY":       "3",
	"DEBATE_AUTO_ADVANCE":          "true",
	"DEBATE_DEFAULT_USER_POSITION": "for",
	"DEBATE_EVALUATION_MODE":       "model",
	"DEBATE_STRICT_JSON":           "false",
	"MEMORY_BUDGET":                "6000",
	"MEMORY_BUDGET_UNIT":           "chars",
	"MEMORY_TAIL_TURNS":            "6",
	"MEMORY_REFRESH_EVERY":         "4",
}

// Load reads environment variables, plus the YAML file named by APP_CONFIG_FILE when
// set, and applies safe defaults. Environment variables win over the file.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if path := strings.TrimSpace(v.GetString("APP_CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("APP_CONFIG_FILE read error: %w", err)
		}
	}

	r := reader{v: v}
	cfg := Config{
		BindAddr:                  r.str("APP_BIND_ADDR"),
		ShutdownTimeout:           r.duration("APP_SHUTDOWN_TIMEOUT"),
		MetricsNamespace:          r.str("APP_METRICS_NAMESPACE"),
		AllowAnyOrigin:            r.boolean("APP_ALLOW_ANY_ORIGIN"),
		LogLevel:                  strings.ToLower(r.str("APP_LOG_LEVEL")),
		LogFormat:                 strings.ToLower(r.str("APP_LOG_FORMAT")),
		StoreDriver:               strings.ToLower(r.str("STORE_DRIVER")),
		DatabaseURL:               r.str("DATABASE_URL"),
		SQLitePath:                r.str("SQLITE_PATH"),
		StoreAutoMigrate:          r.boolean("STORE_AUTO_MIGRATE"),
		SessionRetention:          r.duration("SESSION_RETENTION"),
		SessionJanitorInterval:    r.duration("SESSION_JANITOR_INTERVAL"),
		SessionBusyMode:           strings.ToLower(r.str("SESSION_BUSY_MODE")),
		SessionQueueTimeout:       r.duration("SESSION_QUEUE_TIMEOUT"),
		LLMProvider:               strings.ToLower(r.str("LLM_PROVIDER")),
		GeminiAPIKey:              r.str("GEMINI_API_KEY"),
		GeminiModel:               r.str("GEMINI_MODEL"),
		LLMHTTPURL:                r.str("LLM_HTTP_URL"),
		LLMTimeout:                r.duration("LLM_TIMEOUT"),
		LLMTemperature:            r.float("LLM_TEMPERATURE"),
		LLMMaxTokens:              r.integer("LLM_MAX_TOKENS"),
		LLMRetryInterval:          r.duration("LLM_RETRY_INTERVAL"),
		DebateMinRounds:           r.integer("DEBATE_MIN_ROUNDS"),
		DebateModeratorEvery:      r.integer("DEBATE_MODERATOR_EVERY"),
		DebateAutoAdvance:         r.boolean("DEBATE_AUTO_ADVANCE"),
		DebateDefaultUserPosition: strings.ToLower(r.str("DEBATE_DEFAULT_USER_POSITION")),
		DebateEvaluationMode:      strings.ToLower(r.str("DEBATE_EVALUATION_MODE")),
		DebateStrictJSON:          r.boolean("DEBATE_STRICT_JSON"),
		MemoryBudget:              r.integer("MEMORY_BUDGET"),
		MemoryBudgetUnit:          strings.ToLower(r.str("MEMORY_BUDGET_UNIT")),
		MemoryTailTurns:           r.integer("MEMORY_TAIL_TURNS"),
		MemoryRefreshEvery:        r.integer("MEMORY_REFRESH_EVERY"),
		PersonaCatalogPath:        r.str("PERSONA_CATALOG_PATH"),
		CoachingKeywords:          r.list("CLASSIFIER_COACHING_KEYWORDS"),
		FeedbackKeywords:          r.list("CLASSIFIER_FEEDBACK_KEYWORDS"),
		TopicChangeKeywords:       r.list("CLASSIFIER_TOPIC_KEYWORDS"),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("APP_BIND_ADDR must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("APP_LOG_FORMAT must be json or console")
	}
	switch c.StoreDriver {
	case "auto", "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("STORE_DRIVER must be auto, memory, postgres or sqlite")
	}
	if c.StoreDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
	}
	if c.StoreDriver == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
	}
	if c.SessionRetention < time.Minute {
		return fmt.Errorf("SESSION_RETENTION must be at least 1m")
	}
	if c.SessionJanitorInterval <= 0 {
		return fmt.Errorf("SESSION_JANITOR_INTERVAL must be positive")
	}
	switch c.SessionBusyMode {
	case "reject", "queue":
	default:
		return fmt.Errorf("SESSION_BUSY_MODE must be reject or queue")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if c.DebateMinRounds < 1 {
		return fmt.Errorf("DEBATE_MIN_ROUNDS must be at least 1")
	}
	if c.DebateModeratorEvery < 0 {
		return fmt.Errorf("DEBATE_MODERATOR_EVERY must be >= 0")
	}
	switch c.DebateDefaultUserPosition {
	case "for", "against":
	default:
		return fmt.Errorf("DEBATE_DEFAULT_USER_POSITION must be for or against")
	}
	switch c.DebateEvaluationMode {
	case "model", "rubric":
	default:
		return fmt.Errorf("DEBATE_EVALUATION_MODE must be model or rubric")
	}
	if c.MemoryBudget <= 0 {
		return fmt.Errorf("MEMORY_BUDGET must be positive")
	}
	switch c.MemoryBudgetUnit {
	case "chars", "tokens":
	default:
		return fmt.Errorf("MEMORY_BUDGET_UNIT must be chars or tokens")
	}
	if c.MemoryTailTurns <= 0 {
		return fmt.Errorf("MEMORY_TAIL_TURNS must be positive")
	}
	if c.MemoryRefreshEvery <= 0 {
		return fmt.Errorf("MEMORY_REFRESH_EVERY must be positive")
	}
	return nil
}

// reader keeps the first parse error so Load can read every key in one pass.
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) str(key string) string {
	return strings.TrimSpace(cast.ToString(r.v.Get(key)))
}

func (r *reader) duration(key string) time.Duration {
	d, err := cast.ToDurationE(r.str(key))
	r.keep(key, err)
	return d
}

func (r *reader) integer(key string) int {
	n, err := cast.ToIntE(r.str(key))
	r.keep(key, err)
	return n
}

func (r *reader) float(key string) float64 {
	f, err := cast.ToFloat64E(r.str(key))
	r.keep(key, err)
	return f
}

func (r *reader) boolean(key string) bool {
	switch strings.ToLower(r.str(key)) {
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	}
	b, err := cast.ToBoolE(r.str(key))
	r.keep(key, err)
	return b
}

// list splits a comma separated value. An empty value yields nil.
func (r *reader) list(key string) []string {
	raw := r.str(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) keep(key string, err error) {
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s parse error: %w", key, err)
	}
}
