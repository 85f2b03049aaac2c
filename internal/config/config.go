// Package config loads runtime settings from a config file, WIREFLOW_
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. WIREFLOW_LOG_LEVEL.
const EnvPrefix = "WIREFLOW"

// Keys understood by Load. Nested keys map to environment variables with
// dots replaced by underscores.
var Keys = []string{
	"flows",
	"log.level",
	"log.format",
	"runtime.channel_capacity",
	"runtime.stop_timeout",
	"journal.driver",
	"journal.dsn",
	"journal.prefix",
}

// Config holds the configuration of one wireflow process.
type Config struct {
	Flows   string        `mapstructure:"flows" validate:"required"`
	Log     LogConfig     `mapstructure:"log"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Journal JournalConfig `mapstructure:"journal"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type RuntimeConfig struct {
	ChannelCapacity int           `mapstructure:"channel_capacity" validate:"gte=1"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`
}

type JournalConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=none memory sqlite postgres redis"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	Prefix string `mapstructure:"prefix"`
}

// Default returns the settings used for every key left unset.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Runtime: RuntimeConfig{
			ChannelCapacity: 16,
			StopTimeout:     10 * time.Second,
		},
		Journal: JournalConfig{Driver: "none"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New returns a viper instance bound to the WIREFLOW_ environment.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range Keys {
		// BindEnv only fails without a key.
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads path (if not empty) into v, fills unset values from Default
// and validates the result. Runtime values are defaulted by viper, so an
// explicit zero reaches the validator.
func Load(v *viper.Viper, path string) (*Config, error) {
	def := Default()
	v.SetDefault("runtime.channel_capacity", def.Runtime.ChannelCapacity)
	v.SetDefault("runtime.stop_timeout", def.Runtime.StopTimeout)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := mergo.Merge(&cfg.Log, def.Log); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if err := mergo.Merge(&cfg.Journal, def.Journal); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg and reports every offending key.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", keyOf(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid %s", strings.Join(msgs, "; "))
}

// keyOf turns a validator namespace such as Config.Runtime.ChannelCapacity
// into the config key runtime.channel_capacity.
func keyOf(ns string) string {
	parts := strings.Split(ns, ".")[1:]
	for i, p := range parts {
		var b strings.Builder
		for j, r := range p {
			if r >= 'A' && r <= 'Z' {
				if j > 0 && !(p[j-1] >= 'A' && p[j-1] <= 'Z') {
					b.WriteByte('_')
				}
				r += 'a' - 'A'
			}
			b.WriteRune(r)
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, ".")
}

// Logger builds a slog.Logger writing to w.
func (c LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
