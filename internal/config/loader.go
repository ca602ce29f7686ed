package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override, e.g. FINGERGAME_FPS.
	EnvPrefix = "FINGERGAME_"
	// EnvConfigFile names the optional YAML config file.
	EnvConfigFile = EnvPrefix + "CONFIG"
)

// TunableKeys are the settings that may be changed at runtime and persisted
// in the settings store.
var TunableKeys = []string{"celebration_ms", "target_min", "target_max", "up_axis", "max_hands"}

// IsTunable reports whether key may be stored as a setting.
func IsTunable(key string) bool {
	for _, k := range TunableKeys {
		if k == key {
			return true
		}
	}
	return false
}

type loadOptions struct {
	settings map[string]string
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithSettings layers stored settings between the config file and the
// environment. Keys outside TunableKeys are ignored.
func WithSettings(settings map[string]string) LoadOption {
	return func(o *loadOptions) {
		o.settings = settings
	}
}

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. YAML file if FINGERGAME_CONFIG is set
//  3. stored settings (WithSettings)
//  4. env (prefix FINGERGAME_)
func Load(_ context.Context, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	if err := setTunables(k, o.settings); err != nil {
		return nil, err
	}

	// FINGERGAME_TARGET_MAX -> target_max; underscores stay to match the koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplySettings returns a copy of c with the given tunable settings applied
// and validated. c is left unchanged.
func (c *Config) ApplySettings(settings map[string]string) (*Config, error) {
	for key := range settings {
		if !IsTunable(key) {
			return nil, fmt.Errorf("%w: %q is not a tunable setting", ErrInvalidConfig, key)
		}
	}

	k := koanf.New(".")
	if err := setTunables(k, settings); err != nil {
		return nil, err
	}

	out := *c
	if err := k.UnmarshalWithConf("", &out, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tunables returns the current value of every tunable key as a string.
func (c *Config) Tunables() map[string]string {
	return map[string]string{
		"celebration_ms": fmt.Sprint(c.CelebrationMS),
		"target_min":     fmt.Sprint(c.TargetMin),
		"target_max":     fmt.Sprint(c.TargetMax),
		"up_axis":        c.UpAxis,
		"max_hands":      fmt.Sprint(c.MaxHands),
	}
}

func setTunables(k *koanf.Koanf, settings map[string]string) error {
	for key, value := range settings {
		if !IsTunable(key) {
			continue
		}
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("%w: setting %s: %v", ErrLoadConfig, key, err)
		}
	}
	return nil
}
