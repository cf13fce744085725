package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/YaganovValera/energy-stream/pkg/configloader"
)

const (
	EnvPrefix = "OILPRICEAPI"

	ProductionURL = "wss://api.oilpriceapi.com/cable"
	LocalURL      = "ws://localhost:5000/cable"
)

/*
   --------------------------------------------------------------------------
   СТРУКТУРЫ
   --------------------------------------------------------------------------
*/

// Config - все настройки клиента.
type Config struct {
	ServiceName    string `mapstructure:"service_name" json:"service_name"`
	ServiceVersion string `mapstructure:"service_version" json:"service_version"`
	APIKey         string `mapstructure:"api_key" json:"api_key"`
	WSURL          string `mapstructure:"ws_url" json:"ws_url"`
	Local          bool   `mapstructure:"local" json:"local"`
	Channel        string `mapstructure:"channel" json:"channel"`

	Connection ConnectionConfig `mapstructure:"connection" json:"connection"`
	Reconnect  ReconnectConfig  `mapstructure:"reconnect" json:"reconnect"`
	Display    DisplayConfig    `mapstructure:"display" json:"display"`
	Report     ReportConfig     `mapstructure:"report" json:"report"`
	Export     ExportConfig     `mapstructure:"export" json:"export"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http" json:"http"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" json:"telemetry"`
}

// ConnectionConfig хранит таймауты WebSocket.
type ConnectionConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" json:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval" json:"ping_interval"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout" json:"ping_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
}

type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" json:"base_delay"`
	Jitter      float64       `mapstructure:"jitter" json:"jitter"`
}

// DisplayConfig соответствует флагам -v, -p, -a, -s.
type DisplayConfig struct {
	Verbose bool `mapstructure:"verbose" json:"verbose"`
	Pings   bool `mapstructure:"pings" json:"pings"`
	All     bool `mapstructure:"all" json:"all"`
	Scroll  bool `mapstructure:"scroll" json:"scroll"`
}

type ReportConfig struct {
	Interval    time.Duration `mapstructure:"interval" json:"interval"`
	RecentLines int           `mapstructure:"recent_lines" json:"recent_lines"`
}

type ExportConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Dir     string `mapstructure:"dir" json:"dir"`
}

// LoggingConfig - диагностический zap-лог. По умолчанию только warn+,
// чтобы не портить дашборд; File уводит лог со stderr.
type LoggingConfig struct {
	Level   string `mapstructure:"level" json:"level"`
	DevMode bool   `mapstructure:"dev_mode" json:"dev_mode"`
	File    string `mapstructure:"file" json:"file"`
}

// HTTPConfig - observer API. Пустой Addr выключает сервер.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" json:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// TelemetryConfig - OTLP экспорт. Пустой Endpoint выключает трассировку.
type TelemetryConfig struct {
	Endpoint     string  `mapstructure:"endpoint" json:"endpoint"`
	Insecure     bool    `mapstructure:"insecure" json:"insecure"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" json:"sampler_ratio"`
}

/*
   --------------------------------------------------------------------------
   DEFAULTS
   --------------------------------------------------------------------------
*/

func init() {
	configloader.RegisterDefaults("service_name", "energy-stream")
	configloader.RegisterDefaults("service_version", "v0.1.0")
	// пустые значения нужны, чтобы AutomaticEnv видел ключи
	configloader.RegisterDefaults("api_key", "")
	configloader.RegisterDefaults("ws_url", "")
	configloader.RegisterDefaults("local", false)
	configloader.RegisterDefaults("channel", "EnergyPricesChannel")

	configloader.RegisterDefaults("connection.handshake_timeout", "30s")
	configloader.RegisterDefaults("connection.ping_interval", "60s")
	configloader.RegisterDefaults("connection.ping_timeout", "10s")
	configloader.RegisterDefaults("connection.write_timeout", "5s")

	configloader.RegisterDefaults("reconnect.max_attempts", 5)
	configloader.RegisterDefaults("reconnect.base_delay", "1s")
	configloader.RegisterDefaults("reconnect.jitter", 0.0)

	configloader.RegisterDefaults("display.verbose", false)
	configloader.RegisterDefaults("display.pings", false)
	configloader.RegisterDefaults("display.all", false)
	configloader.RegisterDefaults("display.scroll", false)

	configloader.RegisterDefaults("report.interval", "500ms")
	configloader.RegisterDefaults("report.recent_lines", 8)

	configloader.RegisterDefaults("export.enabled", false)
	configloader.RegisterDefaults("export.dir", ".")

	configloader.RegisterDefaults("logging.level", "warn")
	configloader.RegisterDefaults("logging.dev_mode", false)
	configloader.RegisterDefaults("logging.file", "")

	configloader.RegisterDefaults("http.addr", "")
	configloader.RegisterDefaults("http.read_timeout", "10s")
	configloader.RegisterDefaults("http.write_timeout", "15s")
	configloader.RegisterDefaults("http.idle_timeout", "60s")
	configloader.RegisterDefaults("http.shutdown_timeout", "5s")

	configloader.RegisterDefaults("telemetry.endpoint", "")
	configloader.RegisterDefaults("telemetry.insecure", true)
	configloader.RegisterDefaults("telemetry.sampler_ratio", 1.0)
}

/*
   --------------------------------------------------------------------------
   LOADER
   --------------------------------------------------------------------------
*/

// Load читает defaults, ENV (OILPRICEAPI_*), файл и overrides.
func Load(path string, opts ...configloader.Option) (*Config, error) {
	var cfg Config
	if err := configloader.Load(path, EnvPrefix, &cfg, opts...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

/*
   --------------------------------------------------------------------------
   VALIDATION
   --------------------------------------------------------------------------
*/

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (argument or %s_API_KEY)", EnvPrefix)
	}
	if c.WSURL != "" && !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		return fmt.Errorf("ws_url must start with ws:// or wss://")
	}
	if c.Channel == "" {
		return fmt.Errorf("channel is required")
	}

	durations := []struct {
		key string
		d   time.Duration
	}{
		{"connection.handshake_timeout", c.Connection.HandshakeTimeout},
		{"connection.ping_interval", c.Connection.PingInterval},
		{"connection.ping_timeout", c.Connection.PingTimeout},
		{"connection.write_timeout", c.Connection.WriteTimeout},
		{"reconnect.base_delay", c.Reconnect.BaseDelay},
		{"report.interval", c.Report.Interval},
	}
	for _, f := range durations {
		if f.d <= 0 {
			return fmt.Errorf("%s must be > 0", f.key)
		}
	}

	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must be >= 0")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		return fmt.Errorf("reconnect.jitter must be in [0, 1)")
	}
	if c.Report.RecentLines <= 0 {
		return fmt.Errorf("report.recent_lines must be > 0")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	if c.HTTP.Addr != "" {
		if err := validateHTTP(&c.HTTP); err != nil {
			return err
		}
	}
	if c.Telemetry.SamplerRatio < 0 || c.Telemetry.SamplerRatio > 1 {
		return fmt.Errorf("telemetry.sampler_ratio must be in [0, 1]")
	}
	return nil
}

func validateHTTP(h *HTTPConfig) error {
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"http.read_timeout", h.ReadTimeout},
		{"http.write_timeout", h.WriteTimeout},
		{"http.idle_timeout", h.IdleTimeout},
		{"http.shutdown_timeout", h.ShutdownTimeout},
	}
	for _, f := range durations {
		if f.d <= 0 {
			return fmt.Errorf("%s must be > 0", f.key)
		}
	}
	return nil
}

/*
   --------------------------------------------------------------------------
   HELPERS
   --------------------------------------------------------------------------
*/

// ResolveURL: явный ws_url (флаг --url или ENV) > --local > production.
func (c *Config) ResolveURL() string {
	switch {
	case c.WSURL != "":
		return c.WSURL
	case c.Local:
		return LocalURL
	default:
		return ProductionURL
	}
}

// Redacted возвращает копию с замаскированным ключом, для PrintConfig.
func (c Config) Redacted() Config {
	if n := len(c.APIKey); n > 4 {
		c.APIKey = strings.Repeat("*", n-4) + c.APIKey[n-4:]
	} else if n > 0 {
		c.APIKey = "****"
	}
	return c
}
