package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the orchestrator.
type Config struct {
	Server   ServerConfig             `yaml:"server"`
	LLM      LLMConfig                `yaml:"llm"`
	Store    StoreConfig              `yaml:"store"`
	Backends map[string]BackendConfig `yaml:"backends"`
	Logging  LoggingConfig            `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"OR_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"OR_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"OR_SERVER_WRITE_TIMEOUT"`
	EnableCORS   bool          `yaml:"enable_cors" env:"OR_SERVER_ENABLE_CORS"`
}

// LLMConfig holds the chat model configuration shared by the planner and
// the question generator.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"OR_LLM_PROVIDER"`
	Model       string  `yaml:"model" env:"OR_LLM_MODEL"`
	APIKey      string  `yaml:"api_key" env:"OR_LLM_API_KEY"`
	BaseURL     string  `yaml:"base_url" env:"OR_LLM_BASE_URL"`
	Temperature float32 `yaml:"temperature" env:"OR_LLM_TEMPERATURE"`

	// QuestionTemperature applies to question generation only; slightly
	// higher than planning so phrasing stays natural.
	QuestionTemperature float32 `yaml:"question_temperature" env:"OR_LLM_QUESTION_TEMPERATURE"`
}

// StoreConfig holds the task graph store configuration.
type StoreConfig struct {
	// Path is the SQLite database file. An empty path selects the
	// in-memory store.
	Path string `yaml:"path" env:"OR_STORE_PATH"`
}

// BackendConfig describes one action backend.
type BackendConfig struct {
	// Type selects the provider implementation: "mcp" or "script".
	Type string `yaml:"type"`

	// URL is the MCP server endpoint for mcp backends.
	URL string `yaml:"url"`

	// Auth describes how users authorize against this backend.
	Auth AuthConfig `yaml:"auth"`

	// OperationOverrides maps a function identifier directly to an
	// operation name, consulted before the heuristic match.
	OperationOverrides map[string]string `yaml:"operation_overrides"`
}

// AuthConfig describes the authorization requirements of a backend.
type AuthConfig struct {
	// Kind is "none", "oauth" or "credential".
	Kind string `yaml:"kind"`

	// RedirectURL is the authorization URL template for oauth backends.
	// The placeholders {user_id} and {backend} are substituted.
	RedirectURL string `yaml:"redirect_url"`

	// CredentialFields lists the secret fields a credential backend needs.
	CredentialFields []string `yaml:"credential_fields"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"OR_LOG_LEVEL"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   false,
		},
		LLM: LLMConfig{
			Provider:            "openai",
			Model:               "gpt-4o-mini",
			Temperature:         0.1,
			QuestionTemperature: 0.4,
		},
		Store:    StoreConfig{},
		Backends: map[string]BackendConfig{},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path (if it exists), applies
// environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvToStruct recursively applies environment variables to struct
// fields carrying an env tag.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && fieldType.Type != reflect.TypeOf(time.Duration(0)) {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
