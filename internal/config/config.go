package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. FIXTURE_WASM_CALL_BUDGET.
const EnvPrefix = "FIXTURE"

// Config is the fixturectl configuration.
type Config struct {
	// Directories searched for fixture manifests.
	FixturePaths []string `mapstructure:"fixture_paths" validate:"min=1,dive,required"`
	// Name of the fixture commands act on when none is given.
	Fixture  string     `mapstructure:"fixture"`
	LogLevel string     `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Wasm     WasmConfig `mapstructure:"wasm"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per instance (in pages, 64KB each). 0 means no limit.
	MemoryPages uint32 `mapstructure:"memory_pages" validate:"lte=65536"`
	// Keep source locations in trap stack traces.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances. 0 means no limit.
	MaxInstances int `mapstructure:"max_instances" validate:"gte=0"`
	// Execution budget for one exported call.
	CallBudget time.Duration `mapstructure:"call_budget" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads defaults, then the file at configPath when given, then
// FIXTURE_* environment variables, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("fixture_paths", []string{"./fixtures"})
	v.SetDefault("fixture", "")
	v.SetDefault("log_level", "info")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 1024) // 64MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.call_budget", "1s")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// ValidationError reports invalid configuration values.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	var fields []string
	if errs, ok := e.Err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return "invalid config: " + strings.Join(fields, ", ")
	}
	return fmt.Sprintf("invalid config: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
