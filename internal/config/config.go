package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Supported values of MODEL_PROVIDER.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

type Config struct {
	AppPort         int    `mapstructure:"APP_PORT"`
	ModelProvider   string `mapstructure:"MODEL_PROVIDER"`
	OllamaURL       string `mapstructure:"OLLAMA_URL"`
	OpenAIAPIKey    string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `mapstructure:"OPENAI_BASE_URL"`
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `mapstructure:"ANTHROPIC_BASE_URL"`
	GeminiAPIKey     string `mapstructure:"GEMINI_API_KEY"`
	GeminiBaseURL    string `mapstructure:"GEMINI_BASE_URL"`
	ClassifierModel string `mapstructure:"CLASSIFIER_MODEL"`
	GeneratorModel  string `mapstructure:"GENERATOR_MODEL"`
	SystemPrompt    string `mapstructure:"SYSTEM_PROMPT"`
	MaxEventLength  int    `mapstructure:"MAX_EVENT_LENGTH"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`

	// ConfigFile is the .env file the values were read from, empty when only
	// defaults and environment variables were used.
	ConfigFile string `mapstructure:"-"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetDefault("APP_PORT", 8000)
	v.SetDefault("MODEL_PROVIDER", ProviderOllama)
	v.SetDefault("OLLAMA_URL", "http://ollama:11434")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("ANTHROPIC_API_KEY", "")
	v.SetDefault("ANTHROPIC_BASE_URL", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_BASE_URL", "")
	v.SetDefault("CLASSIFIER_MODEL", "llama3.2:1b")
	v.SetDefault("GENERATOR_MODEL", "llama3.1:8b")
	v.SetDefault("SYSTEM_PROMPT", "You are a helpful assistant.\n\n")
	v.SetDefault("MAX_EVENT_LENGTH", 500)
	v.SetDefault("LOG_LEVEL", "INFO")

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.ModelProvider = strings.ToLower(cfg.ModelProvider)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.ModelProvider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("unsupported MODEL_PROVIDER %q", c.ModelProvider)
	}
	if c.ClassifierModel == "" || c.GeneratorModel == "" {
		return errors.New("CLASSIFIER_MODEL and GENERATOR_MODEL must be set")
	}
	if c.MaxEventLength < 0 {
		return fmt.Errorf("MAX_EVENT_LENGTH must not be negative, got %d", c.MaxEventLength)
	}
	return nil
}
