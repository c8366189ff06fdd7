package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a missing or invalid setting detected at startup.
var ErrConfiguration = errors.New("configuration failure")

const (
	DefaultHorizonDays     = 30
	DefaultGroupingColumn  = "Country"
	DefaultMeasurementBase = "https://api.ooni.io"
	DefaultTelemetryBase   = "https://api.cloudflare.com/client/v4"
	DefaultDirectoryURL    = "https://www.datacenters.com/locations?query={query}"
)

type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Store       StoreConfig       `yaml:"store"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Log         LogConfig         `yaml:"log"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Server      ServerConfig      `yaml:"server"`
}

type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	ReadWorkers int    `yaml:"read_workers"`
}

type DirectoryConfig struct {
	Mode      string        `yaml:"mode"` // http or browser
	URL       string        `yaml:"url"`
	ProxyURL  string        `yaml:"proxy_url"`
	ProxyKey  string        `yaml:"proxy_key"`
	Timeout   time.Duration `yaml:"timeout"`
	Workers   int           `yaml:"workers"`
	Selectors Selectors     `yaml:"selectors"`
}

// Selectors locate listing cards in a directory page. Meta matches the type
// line then the address line of a card. Link is used when the card itself is
// not an anchor.
type Selectors struct {
	Card string `yaml:"card"`
	Name string `yaml:"name"`
	Meta string `yaml:"meta"`
	Link string `yaml:"link"`
}

type MeasurementConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Limit             int           `yaml:"limit"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Workers           int           `yaml:"workers"`
}

type TelemetryConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	Workers    int           `yaml:"workers"`
	TopDomains int           `yaml:"top_domains"`
}

type PipelineConfig struct {
	Tables         []string `yaml:"tables"`
	Tests          []string `yaml:"tests"`
	HorizonDays    int      `yaml:"horizon_days"`
	GroupingColumn string   `yaml:"grouping_column"`
	PreviewRows    int      `yaml:"preview_rows"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
			Timeout:  60 * time.Second,
		},
		Store: StoreConfig{Driver: "sqlite", DSN: "telecom.db", ReadWorkers: 4},
		Directory: DirectoryConfig{
			Mode:    "http",
			URL:     DefaultDirectoryURL,
			Timeout: 45 * time.Second,
			Workers: 4,
			Selectors: Selectors{
				Card: "a.flex.flex-col.gap-2.rounded.border",
				Name: "div.font-medium",
				Meta: "div.text-xs.text-gray-500",
				Link: "a[href]",
			},
		},
		Measurement: MeasurementConfig{
			BaseURL:           DefaultMeasurementBase,
			Limit:             1000,
			Timeout:           30 * time.Second,
			RequestsPerMinute: 120,
			Workers:           8,
		},
		Telemetry: TelemetryConfig{
			BaseURL:    DefaultTelemetryBase,
			Timeout:    30 * time.Second,
			Workers:    4,
			TopDomains: 20,
		},
		Pipeline: PipelineConfig{
			Tables:         []string{"mcc_mnc_table", "traforama_isp_list", "mideye_mobile_network_list"},
			Tests:          []string{"web_connectivity", "whatsapp", "telegram", "signal", "facebook_messenger"},
			HorizonDays:    DefaultHorizonDays,
			GroupingColumn: DefaultGroupingColumn,
			PreviewRows:    20,
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{ServiceName: "telecom-radar"},
		Server:  ServerConfig{Addr: ":8000"},
	}
}

// Load reads .env (if present), the optional YAML file at path, then applies
// environment overrides on top of Default().
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		blob, err := os.ReadFile(path)
		if err != nil {
			return cfg, eris.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(blob, &cfg); err != nil {
			return cfg, eris.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.LLM.Provider, "TELECOM_RADAR_LLM_PROVIDER")
	setString(&cfg.LLM.Model, "TELECOM_RADAR_LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "TELECOM_RADAR_LLM_BASE_URL")
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	default:
		setString(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	}
	setString(&cfg.Store.Driver, "TELECOM_RADAR_DB_DRIVER")
	setString(&cfg.Store.DSN, "TELECOM_RADAR_DB")
	setString(&cfg.Directory.Mode, "TELECOM_RADAR_DIRECTORY_MODE")
	setString(&cfg.Directory.ProxyKey, "SCRAPER_API_KEY")
	setString(&cfg.Telemetry.Token, "CLOUDFLARE_API_TOKEN")
	setString(&cfg.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Log.Level, "TELECOM_RADAR_LOG_LEVEL")
	setString(&cfg.Server.Addr, "TELECOM_RADAR_ADDR")
	if v := envInt("TELECOM_RADAR_HORIZON_DAYS"); v > 0 {
		cfg.Pipeline.HorizonDays = v
	}
}

// Validate reports every missing credential or endpoint at once.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		missing = append(missing, "llm.api_key")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		missing = append(missing, "llm.model")
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai":
	default:
		missing = append(missing, "llm.provider (anthropic|openai)")
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		missing = append(missing, "store.dsn")
	}
	if strings.TrimSpace(c.Telemetry.Token) == "" {
		missing = append(missing, "telemetry.token")
	}
	if strings.TrimSpace(c.Measurement.BaseURL) == "" {
		missing = append(missing, "measurement.base_url")
	}
	if strings.TrimSpace(c.Directory.URL) == "" {
		missing = append(missing, "directory.url")
	}
	if len(c.Pipeline.Tables) == 0 {
		missing = append(missing, "pipeline.tables")
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrConfiguration, "missing or invalid: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
