package llm

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

// Settings configures the OpenAI-compatible chat completion backend used by
// default, plus optional extra providers.
type Settings struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key" validate:"required"`
	Model       string  `mapstructure:"model" yaml:"model" validate:"required"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gt=0"`

	// Providers are served through geppetto engines, keyed by the name
	// profiles use as llm_provider.
	Providers map[string]ProviderSettings `mapstructure:"providers" yaml:"providers" validate:"dive"`
}

// ProviderSettings configures one geppetto-backed provider. Temperature and
// max_tokens default to the top-level values.
type ProviderSettings struct {
	// APIType is the geppetto api type (openai, claude, gemini, ollama, ...).
	// It defaults to the provider name.
	APIType     string  `mapstructure:"api_type" yaml:"api_type"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key" validate:"required"`
	Model       string  `mapstructure:"model" yaml:"model" validate:"required"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
}

func newSettingsViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("temperature", DefaultTemperature)
	v.SetDefault("max_tokens", DefaultMaxTokens)
	_ = v.BindEnv("api_key", "CHORUS_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("model", "CHORUS_LLM_MODEL")
	_ = v.BindEnv("base_url", "CHORUS_LLM_BASE_URL")
	_ = v.BindEnv("temperature", "CHORUS_LLM_TEMPERATURE")
	_ = v.BindEnv("max_tokens", "CHORUS_LLM_MAX_TOKENS")
	return v
}

// LoadSettings reads backend settings from a YAML file. Missing optional keys
// fall back to defaults, and CHORUS_LLM_* environment variables override the
// file.
func LoadSettings(path string) (*Settings, error) {
	v := newSettingsViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "could not read llm config %s", path)
	}
	return settingsFromViper(v)
}

func settingsFromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode llm config")
	}
	for name, ps := range s.Providers {
		if !v.IsSet("providers." + name + ".temperature") {
			ps.Temperature = s.Temperature
		}
		if !v.IsSet("providers." + name + ".max_tokens") {
			ps.MaxTokens = s.MaxTokens
		}
		s.Providers[name] = ps
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, errors.Wrap(err, "invalid llm config")
	}
	return s, nil
}
