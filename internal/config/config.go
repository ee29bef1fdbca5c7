package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	// HTTP
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	ChatPath   string `env:"CHAT_PATH" envDefault:"/api/chat"`

	// LLM settings. The API key is checked per request so a missing key
	// surfaces as a 500 instead of a crash loop.
	LLMProvider       LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	APIKey            string      `env:"DEEPSEEK_API_KEY"`
	BaseURL           string      `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	Model             string      `env:"DEEPSEEK_MODEL" envDefault:"deepseek-chat"`
	Temperature       float32     `env:"TEMPERATURE" envDefault:"0.7"`
	StreamTemperature float32     `env:"STREAM_TEMPERATURE" envDefault:"0.3"`
	YandexOAuthToken  string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID    string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// Sessions
	HistoryLimit    int           `env:"HISTORY_LIMIT" envDefault:"10"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	CleanupSchedule string        `env:"CLEANUP_SCHEDULE" envDefault:"@every 1h"`
	ReportSchedule  string        `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Storage
	LogFilePath string `env:"LOG_FILE_PATH" envDefault:"logs/log.jsonl"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
