package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/coinbook/internal/errs"
)

const (
	DefaultKuCoinBaseURL = "https://api.kucoin.com"
	DefaultNotionBaseURL = "https://api.notion.com"
	DefaultNotionVersion = "2022-06-28"
	DefaultKeyVersion    = "2"
	DefaultTimeout       = 20 * time.Second
	DefaultAddr          = ":3333"
	DefaultJournalDir    = "./wal/journal"
	DefaultCertCacheDir  = "./certs"
	DefaultLogLevel      = "info"
	DefaultNotionRPS     = 3.0
	DefaultRetryInterval = time.Second
	DefaultRetryMax      = 30 * time.Second
)

// Config is the whole runtime configuration. It is treated as immutable once loaded.
type Config struct {
	KuCoin  KuCoin  `yaml:"kucoin"`
	Notion  Notion  `yaml:"notion"`
	HTTP    HTTP    `yaml:"http"`
	Server  Server  `yaml:"server"`
	Journal Journal `yaml:"journal"`
	Retry   Retry   `yaml:"retry"`
	Log     Log     `yaml:"log"`
}

type KuCoin struct {
	BaseURL       string   `yaml:"base_url,omitempty"`
	APIKey        string   `yaml:"api_key"`
	APISecret     string   `yaml:"api_secret"`
	APIPassphrase string   `yaml:"api_passphrase"`
	KeyVersion    string   `yaml:"key_version,omitempty"`
	Partitions    []string `yaml:"partitions,omitempty"`
}

type Notion struct {
	BaseURL           string  `yaml:"base_url,omitempty"`
	Token             string  `yaml:"token"`
	DatabaseID        string  `yaml:"database_id"`
	Version           string  `yaml:"version,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

type HTTP struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type Server struct {
	Addr         string   `yaml:"addr,omitempty"`
	TLSDomains   []string `yaml:"tls_domains,omitempty"`
	CertCacheDir string   `yaml:"cert_cache_dir,omitempty"`
}

type Journal struct {
	Dir      string `yaml:"dir,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// Retry applies to CLI invocations only. Zero retries by default.
type Retry struct {
	MaxRetries      int           `yaml:"max_retries,omitempty"`
	InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
}

type Log struct {
	Level string `yaml:"level,omitempty"`
}

// Load reads an optional .env file, the yaml file at path (skipped when path is empty)
// and then applies environment overrides and defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var c Config
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(f, &c); err != nil {
			return Config{}, fmt.Errorf("incorrect yaml config %s: %w", path, err)
		}
	}

	c.applyEnv(os.LookupEnv)
	c.applyDefaults()

	if c.HTTP.Timeout < 0 {
		return Config{}, fmt.Errorf("incorrect 'http.timeout' param: %s", c.HTTP.Timeout)
	}
	if c.Retry.MaxRetries < 0 {
		return Config{}, fmt.Errorf("incorrect 'retry.max_retries' param: %d", c.Retry.MaxRetries)
	}

	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, name string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(&c.KuCoin.APIKey, "KUCOIN_API_KEY")
	set(&c.KuCoin.APISecret, "KUCOIN_API_SECRET")
	set(&c.KuCoin.APIPassphrase, "KUCOIN_API_PASSPHRASE")
	set(&c.KuCoin.BaseURL, "KUCOIN_BASE_URL")
	set(&c.KuCoin.KeyVersion, "KUCOIN_KEY_VERSION")
	set(&c.Notion.Token, "NOTION_TOKEN")
	set(&c.Notion.DatabaseID, "NOTION_DATABASE_ID")
	set(&c.Notion.Version, "NOTION_VERSION")
	set(&c.Log.Level, "COINBOOK_LOG_LEVEL")

	host, _ := lookup("MCP_HOST")
	port, _ := lookup("MCP_PORT")
	host, port = strings.TrimSpace(host), strings.TrimSpace(port)
	if host != "" || port != "" {
		curHost, curPort := splitAddr(c.Server.Addr)
		if host != "" {
			curHost = host
		}
		if port != "" {
			curPort = port
		}
		c.Server.Addr = net.JoinHostPort(curHost, curPort)
	}
}

func splitAddr(addr string) (string, string) {
	if addr == "" {
		addr = DefaultAddr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", strings.TrimPrefix(DefaultAddr, ":")
	}
	return host, port
}

func (c *Config) applyDefaults() {
	if c.KuCoin.BaseURL == "" {
		c.KuCoin.BaseURL = DefaultKuCoinBaseURL
	}
	if c.KuCoin.KeyVersion == "" {
		c.KuCoin.KeyVersion = DefaultKeyVersion
	}
	if len(c.KuCoin.Partitions) == 0 {
		c.KuCoin.Partitions = []string{"main", "trade"}
	}
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = DefaultNotionBaseURL
	}
	if c.Notion.Version == "" {
		c.Notion.Version = DefaultNotionVersion
	}
	if c.Notion.RequestsPerSecond == 0 {
		c.Notion.RequestsPerSecond = DefaultNotionRPS
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultTimeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.CertCacheDir == "" {
		c.Server.CertCacheDir = DefaultCertCacheDir
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = DefaultJournalDir
	}
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = DefaultRetryInterval
	}
	if c.Retry.MaxInterval == 0 {
		c.Retry.MaxInterval = DefaultRetryMax
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

type setting struct {
	name  string
	value string
}

// ValidateKuCoin fails when any exchange credential is missing.
func (c Config) ValidateKuCoin() error {
	return requireSettings("kucoin config", c.kucoinSettings())
}

// ValidateNotion fails when the Notion token or database id is missing.
func (c Config) ValidateNotion() error {
	return requireSettings("notion config", c.notionSettings())
}

// Validate checks every required value and lists all that are missing.
func (c Config) Validate() error {
	return requireSettings("config", append(c.kucoinSettings(), c.notionSettings()...))
}

func (c Config) kucoinSettings() []setting {
	return []setting{
		{"KUCOIN_API_KEY", c.KuCoin.APIKey},
		{"KUCOIN_API_SECRET", c.KuCoin.APISecret},
		{"KUCOIN_API_PASSPHRASE", c.KuCoin.APIPassphrase},
		{"KUCOIN_BASE_URL", c.KuCoin.BaseURL},
	}
}

func (c Config) notionSettings() []setting {
	return []setting{
		{"NOTION_TOKEN", c.Notion.Token},
		{"NOTION_DATABASE_ID", c.Notion.DatabaseID},
	}
}

func requireSettings(op string, settings []setting) error {
	var absent []string
	for _, s := range settings {
		if strings.TrimSpace(s.value) == "" {
			absent = append(absent, s.name)
		}
	}
	if len(absent) == 0 {
		return nil
	}
	return errs.Configuration(op, errs.WithMessage("missing %s", strings.Join(absent, ", ")))
}

// Write stores c as yaml at path.
func Write(path string, c Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
