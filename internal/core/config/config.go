package config

import (
	"time"

	"github.com/tmaun/accelhost/internal/core/domain"
	redisclient "github.com/tmaun/accelhost/internal/infra/redis"
	"github.com/tmaun/accelhost/internal/infra/store"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Selection SelectionConfig    `yaml:"selection"`
	Loading   LoadingConfig      `yaml:"loading"`
	Recovery  RecoveryConfig     `yaml:"recovery"`
	UI        UIConfig           `yaml:"ui"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  store.Config       `yaml:"database"`
}

// ServerConfig holds HTTP status server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SelectionConfig holds backend selection settings.
type SelectionConfig struct {
	// Priority is the backend probe order, e.g. [cuda, openvino, cpu].
	// Empty uses the built-in default.
	Priority []domain.BackendKind `yaml:"priority"`

	// LargeModelMemoryMB overrides the large-tier memory requirement.
	// 0 keeps the 6400MB default; 4096 matches the alternate table.
	LargeModelMemoryMB int `yaml:"large_model_memory_mb"`
}

// LoadingConfig holds backend module loading settings.
type LoadingConfig struct {
	ModuleDir string `yaml:"module_dir"`
	ModelDir  string `yaml:"model_dir"`
	CacheDir  string `yaml:"cache_dir"`

	ValidationTimeout Duration `yaml:"validation_timeout"`
	OpenVINOTimeout   Duration `yaml:"openvino_timeout"`
}

// RecoveryConfig holds runtime recovery settings.
type RecoveryConfig struct {
	BackoffUnit Duration `yaml:"backoff_unit"`
}

// Duration parses either a Go duration string ("5s", "500ms") or a plain
// integer nanosecond count from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UIConfig holds front-end notification settings.
type UIConfig struct {
	WebsocketURL string `yaml:"websocket_url"` // empty disables UI notifications
}
