package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/opendental/eob-processor/internal/errors"
	"github.com/spf13/viper"
)

// Config holds all settings for the EOB processor. It is built once at
// startup and read-only afterwards; every component receives it by
// argument.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Region     string           `mapstructure:"region"`
	Env        string           `mapstructure:"env"`
	LogLevel   string           `mapstructure:"log_level"`
	Storage    StorageConfig    `mapstructure:"storage"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds object store settings
type StorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// OCRConfig holds document recognition service settings. Endpoint and
// SubscriptionKey come from the secret store, never from files.
type OCRConfig struct {
	Endpoint        string `mapstructure:"-"`
	SubscriptionKey string `mapstructure:"-"`
	Model           string `mapstructure:"model"`
	APIVersion      string `mapstructure:"api_version"`
	Timeout         int    `mapstructure:"timeout"`
	PollInterval    int    `mapstructure:"poll_interval"`
	MaxPolls        int    `mapstructure:"max_polls"`
}

// LLMConfig holds extraction model settings. Endpoint and
// SubscriptionKey come from the secret store.
type LLMConfig struct {
	Endpoint        string `mapstructure:"-"`
	SubscriptionKey string `mapstructure:"-"`
	Deployment      string `mapstructure:"deployment"`
	APIVersion      string `mapstructure:"api_version"`
	Timeout         int    `mapstructure:"timeout"`
	MaxTokens       int    `mapstructure:"max_tokens"`
	RPM             int    `mapstructure:"rpm"`
}

// ExtractionConfig holds the prompt template and the expected result
// schema. The schema is configuration, not code: the required top-level
// keys track whatever the prompt template promises.
type ExtractionConfig struct {
	PromptPath    string   `mapstructure:"prompt_path"`
	Prompt        string   `mapstructure:"-"`
	RequiredKeys  []string `mapstructure:"required_keys"`
	TokenOverhead int      `mapstructure:"token_overhead"`
}

// NotifyConfig holds downstream function settings
type NotifyConfig struct {
	FunctionURL string `mapstructure:"function_url"`
	Timeout     int    `mapstructure:"timeout"`
}

// SecretResolver resolves a named path from the remote parameter store.
type SecretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// StaticResolver serves secrets from a map, for tests.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(_ context.Context, name string) (string, error) {
	v, ok := r[name]
	if !ok {
		return "", fmt.Errorf("parameter %s not found", name)
	}
	return v, nil
}

// Load builds the configuration from defaults, an optional config file,
// environment variables, and the remote secret store. Any missing
// required secret is fatal to startup.
func Load(ctx context.Context, configPath string, resolver SecretResolver) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigMissing.Code, "failed to read config file")
		}
	}

	v.SetEnvPrefix("EOB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigMissing.Code, "failed to unmarshal config")
	}

	loadEnvOverrides(&cfg)

	if err := resolveSecrets(ctx, &cfg, resolver); err != nil {
		return nil, err
	}

	if err := loadPrompt(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("region", "us-east-1")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")

	v.SetDefault("storage.bucket", "dev-opendentalintegration-eob-upload")

	v.SetDefault("ocr.model", "prebuilt-layout")
	v.SetDefault("ocr.api_version", "2023-07-31")
	v.SetDefault("ocr.timeout", 60)
	v.SetDefault("ocr.poll_interval", 2)
	v.SetDefault("ocr.max_polls", 60)

	v.SetDefault("llm.deployment", "gpt-5-mini")
	v.SetDefault("llm.api_version", "2024-12-01-preview")
	v.SetDefault("llm.timeout", 120)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.rpm", 60)

	v.SetDefault("extraction.prompt_path", "system_prompt.txt")
	v.SetDefault("extraction.required_keys", []string{"Records"})
	v.SetDefault("extraction.token_overhead", 4000)

	v.SetDefault("notify.timeout", 30)
}

// loadEnvOverrides honors the bare variable names the deployment has
// always used, which the EOB_ prefix scheme does not cover.
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.Region = getEnv("AWS_REGION", cfg.Region)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Storage.Bucket = getEnv("BUCKET_NAME", cfg.Storage.Bucket)
	cfg.Notify.FunctionURL = getEnv("POSTPROCESS_FUNCTION_URL", cfg.Notify.FunctionURL)

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

// SecretPrefix returns the parameter namespace for the environment tag.
func SecretPrefix(env string) string {
	return "/opendental/" + env
}

func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	prefix := SecretPrefix(cfg.Env)

	targets := []struct {
		name string
		dst  *string
	}{
		{prefix + "/ocr_endpoint", &cfg.OCR.Endpoint},
		{prefix + "/ocr_subscription_key", &cfg.OCR.SubscriptionKey},
		{prefix + "/llm_endpoint", &cfg.LLM.Endpoint},
		{prefix + "/llm_subscription_key", &cfg.LLM.SubscriptionKey},
	}

	for _, t := range targets {
		value, err := resolver.Resolve(ctx, t.name)
		if err != nil {
			return errors.Wrap(err, errors.ErrSecretUnavailable.Code, fmt.Sprintf("failed to resolve %s", t.name))
		}
		if value == "" {
			return errors.New(errors.ErrConfigMissing.Code, fmt.Sprintf("parameter %s is empty", t.name))
		}
		*t.dst = value
	}

	return nil
}

func loadPrompt(cfg *Config) error {
	data, err := os.ReadFile(cfg.Extraction.PromptPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigMissing.Code,
			fmt.Sprintf("missing prompt template at %s", cfg.Extraction.PromptPath))
	}
	cfg.Extraction.Prompt = strings.TrimSpace(string(data))
	if cfg.Extraction.Prompt == "" {
		return errors.New(errors.ErrConfigMissing.Code, "prompt template is empty")
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Storage.Bucket == "" {
		return errors.New(errors.ErrConfigMissing.Code, "storage.bucket is required")
	}
	if cfg.OCR.Endpoint == "" || cfg.OCR.SubscriptionKey == "" {
		return errors.New(errors.ErrConfigMissing.Code, "ocr endpoint and key are required")
	}
	if cfg.LLM.Endpoint == "" || cfg.LLM.SubscriptionKey == "" {
		return errors.New(errors.ErrConfigMissing.Code, "llm endpoint and key are required")
	}
	if len(cfg.Extraction.RequiredKeys) == 0 {
		return errors.New(errors.ErrConfigMissing.Code, "extraction.required_keys is required")
	}
	return nil
}
