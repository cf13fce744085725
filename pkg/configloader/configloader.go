package configloader

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Option донастраивает viper перед декодированием.
type Option func(v *viper.Viper) error

// WithFlags привязывает флаги командной строки к ключам конфига.
// bindings: ключ конфига → имя флага.
func WithFlags(fs *pflag.FlagSet, bindings map[string]string) Option {
	return func(v *viper.Viper) error {
		for key, name := range bindings {
			f := fs.Lookup(name)
			if f == nil {
				return fmt.Errorf("configloader: unknown flag %q for key %q", name, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("configloader: bind flag %q: %w", name, err)
			}
		}
		return nil
	}
}

// WithValue задаёт значение с наивысшим приоритетом (например, позиционный аргумент).
func WithValue(key string, val interface{}) Option {
	return func(v *viper.Viper) error {
		v.Set(key, val)
		return nil
	}
}

// Load загружает конфиг в cfgPtr: из YAML + ENV + flags + defaults.
// envPrefix - префикс ENV переменных, например: "OILPRICEAPI"
func Load(path, envPrefix string, cfgPtr interface{}, opts ...Option) error {
	v := viper.New()

	// Шаг 1: apply registered defaults
	for key, val := range getDefaults() {
		v.SetDefault(key, val)
	}

	// Шаг 2: environment override
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Шаг 3: read file (if provided)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", path, err)
		}
	}

	// Шаг 4: flags и прочие overrides
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return err
		}
	}

	// Шаг 5: decode
	if err := decode(v.AllSettings(), cfgPtr); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	// Шаг 6: validate if possible
	if v, ok := cfgPtr.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}

	return nil
}
