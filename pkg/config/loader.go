package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// EnvPrefix prefixes environment overrides, e.g. MEMGATE_LOGGING_LEVEL.
const EnvPrefix = "MEMGATE"

// Load reads the YAML file at path over the defaults, then applies
// MEMGATE_* environment overrides. An empty path loads defaults and
// environment only. ${VAR} references in the file are substituted before
// parsing.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
		if err != nil {
			return nil, memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
		content := substituteEnvVars(string(data))
		if err := v.ReadConfig(bytes.NewReader([]byte(content))); err != nil {
			return nil, memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to parse config file").
				WithDetail("path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("inventory.search_paths", d.Inventory.SearchPaths)
	v.SetDefault("inventory.max_args_length", d.Inventory.MaxArgsLength)
	v.SetDefault("inventory.builtins", d.Inventory.Builtins)
	v.SetDefault("inventory.extensions", d.Inventory.Extensions)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("access.cache_pages", d.Access.CachePages)
	v.SetDefault("access.cache_page_size", d.Access.CachePageSize)
	v.SetDefault("access.chunk_size", d.Access.ChunkSize)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to write config file").
			WithDetail("path", path)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
