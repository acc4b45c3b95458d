package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// Config es la configuración completa de kitebatch.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// BrokerConfig describe la conexión a Kite Connect. Las credenciales solo
// llegan por entorno (.env), nunca desde el YAML.
type BrokerConfig struct {
	BaseURL  string `yaml:"base_url"`
	Exchange string `yaml:"exchange"` // NSE | BSE
	Product  string `yaml:"product"`  // CNC (delivery) | MIS | NRML

	APIKey      string `yaml:"-"`
	APISecret   string `yaml:"-"`
	AccessToken string `yaml:"-"`
}

// DispatchConfig controla el envío de órdenes.
type DispatchConfig struct {
	PacingMS  *int   `yaml:"pacing_ms"`  // pausa fija entre órdenes; 0 la desactiva
	OrderKind string `yaml:"order_kind"` // market | gtt
	Live      bool   `yaml:"live"`       // false = dry run por defecto
}

// StorageConfig controla dónde se persiste el diario de batches.
type StorageConfig struct {
	DSN      string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	Disabled bool   `yaml:"disabled"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// MetricsConfig expone /metrics si Addr no está vacío.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodifica YAML, aplica overrides de entorno y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// defaultPacingMS se usa cuando pacing_ms no aparece en el YAML.
const defaultPacingMS = 500

// Pacing devuelve la pausa entre órdenes como time.Duration.
func (c *Config) Pacing() time.Duration {
	if c.Dispatch.PacingMS == nil {
		return defaultPacingMS * time.Millisecond
	}
	return time.Duration(*c.Dispatch.PacingMS) * time.Millisecond
}

// OrderKind devuelve el tipo de orden configurado (market si no es válido;
// Validate lo reporta).
func (c *Config) OrderKind() domain.OrderKind {
	k, ok := domain.ParseOrderKind(c.Dispatch.OrderKind)
	if !ok {
		return domain.KindImmediate
	}
	return k
}

// HasSession reports whether broker calls can be authenticated.
func (c *Config) HasSession() bool {
	return c.Broker.APIKey != "" && c.Broker.AccessToken != ""
}

// Validate devuelve todos los problemas de configuración a la vez.
func (c *Config) Validate() error {
	var err error

	switch c.Broker.Exchange {
	case "NSE", "BSE":
	default:
		err = multierr.Append(err, fmt.Errorf("broker.exchange %q: must be NSE or BSE", c.Broker.Exchange))
	}
	switch c.Broker.Product {
	case "CNC", "MIS", "NRML":
	default:
		err = multierr.Append(err, fmt.Errorf("broker.product %q: must be CNC, MIS or NRML", c.Broker.Product))
	}
	if _, ok := domain.ParseOrderKind(c.Dispatch.OrderKind); !ok {
		err = multierr.Append(err, fmt.Errorf("dispatch.order_kind %q: must be market or gtt", c.Dispatch.OrderKind))
	}
	if c.Dispatch.PacingMS != nil && *c.Dispatch.PacingMS < 0 {
		err = multierr.Append(err, fmt.Errorf("dispatch.pacing_ms %d: must not be negative", *c.Dispatch.PacingMS))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log.level %q: must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format %q: must be text or json", c.Log.Format))
	}
	if c.Dispatch.Live && !c.HasSession() {
		err = multierr.Append(err, fmt.Errorf("dispatch.live requires KITE_API_KEY and KITE_ACCESS_TOKEN"))
	}

	if err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Broker.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Broker.AccessToken = v
	}
	if v := os.Getenv("KITE_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Broker.BaseURL == "" {
		cfg.Broker.BaseURL = "https://api.kite.trade"
	}
	cfg.Broker.Exchange = strings.ToUpper(strings.TrimSpace(cfg.Broker.Exchange))
	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = "NSE"
	}
	cfg.Broker.Product = strings.ToUpper(strings.TrimSpace(cfg.Broker.Product))
	if cfg.Broker.Product == "" {
		cfg.Broker.Product = "CNC"
	}
	if cfg.Dispatch.PacingMS == nil {
		ms := defaultPacingMS
		cfg.Dispatch.PacingMS = &ms
	}
	if cfg.Dispatch.OrderKind == "" {
		cfg.Dispatch.OrderKind = "market"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "kitebatch.db"
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
