package model

import "time"

// ================ Config ================
type ServerConfig struct {
	Addr              string        `envconfig:"SERVER_ADDR" default:":8000"`
	ReadHeaderTimeout time.Duration `envconfig:"SERVER_READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout   time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

type AppDefaults struct {
	ApplicationType string `envconfig:"APPLICATION_TYPE" default:"TODO"`
}

type StorageConfig struct {
	// Backend selects the tenant data variant: "sql" or "redis".
	Backend    string `envconfig:"DB_TYPE" default:"sql"`
	SettingsDB string `envconfig:"APP_SETTINGS_DB" default:"settings"`
}

type LLMConfig struct {
	Provider    string  `envconfig:"LLM_PROVIDER" default:"gemini"`
	MaxTokens   int     `envconfig:"LLM_MAX_TOKENS" default:"8192"`
	Temperature float32 `envconfig:"LLM_TEMPERATURE" default:"0.2"`

	Gemini GeminiConfig
	OpenAI OpenAIConfig
	Ollama OllamaConfig
}

type GeminiConfig struct {
	APIKey      string `envconfig:"GEMINI_API_KEY"`
	BaseURL     string `envconfig:"GEMINI_BASE_URL"`
	Model       string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	DesignModel string `envconfig:"GEMINI_DESIGN_MODEL" default:"gemini-2.5-flash"`
}

type OpenAIConfig struct {
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	BaseURL string `envconfig:"OPENAI_BASE_URL"`
	Model   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
}

type OllamaConfig struct {
	URL     string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	Model   string        `envconfig:"OLLAMA_MODEL" default:"gemma3:12b"`
	Timeout time.Duration `envconfig:"OLLAMA_TIMEOUT" default:"5m"`
}

type InitConfig struct {
	MaxAttempts  int           `envconfig:"INIT_MAX_ATTEMPTS" default:"3"`
	RetryBackoff time.Duration `envconfig:"INIT_RETRY_BACKOFF" default:"30s"`
	ClaimTTL     time.Duration `envconfig:"INIT_CLAIM_TTL" default:"10m"`
}

// Policy converts the retry settings into a RetryPolicy.
func (c InitConfig) Policy() RetryPolicy {
	return RetryPolicy{MaxAttempts: c.MaxAttempts, Backoff: c.RetryBackoff}
}
