package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/luxsim/helio/pkg/config/provider"
)

// envVarPattern matches ${VAR} and ${VAR:-default} references in file values.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Loader turns raw configuration bytes from a provider into a validated
// Config. Loading is: fetch bytes, parse YAML, expand ${VAR} references,
// decode, overlay environment variables, fill defaults, validate.
type Loader struct {
	provider provider.Provider
}

// NewLoader creates a loader backed by the given provider.
func NewLoader(p provider.Provider) *Loader {
	return &Loader{provider: p}
}

// Load fetches and materializes the configuration.
func (l *Loader) Load() (*Config, error) {
	data, err := l.provider.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return ParseBytes(data)
}

// Watch forwards change notifications from the underlying provider, if it
// supports watching.
func (l *Loader) Watch(callback func()) error {
	return l.provider.Watch(callback)
}

// Close releases provider resources.
func (l *Loader) Close() error {
	return l.provider.Close()
}

// ParseBytes parses YAML configuration bytes into a validated Config.
func ParseBytes(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	expanded := expandEnvVars(raw)

	cfg := &Config{}
	if err := decodeConfig(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.ApplyEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads configuration from a YAML file on disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseBytes(data)
}

// decodeConfig maps the parsed YAML tree onto the Config struct using the
// yaml tags, with weak typing so "8080" decodes into an int port and
// "300s" into a time.Duration.
func decodeConfig(input interface{}, out *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input)
}

// expandEnvVars walks the parsed YAML tree and substitutes ${VAR} and
// ${VAR:-default} references in string values with environment values.
func expandEnvVars(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		expanded := make(map[string]interface{}, len(v))
		for key, val := range v {
			expanded[key] = expandEnvVars(val)
		}
		return expanded
	case []interface{}:
		expanded := make([]interface{}, len(v))
		for i, val := range v {
			expanded[i] = expandEnvVars(val)
		}
		return expanded
	case string:
		return expandString(v)
	default:
		return value
	}
}

func expandString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, fallback := groups[1], groups[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return fallback
	})
}
