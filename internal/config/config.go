package config

import (
	"fmt"
	"time"

	"github.com/rmacedof/fuelsync/pkg/utils"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Portal   PortalConfig    `mapstructure:"portal"`
	Sync     SyncConfig      `mapstructure:"sync"`
	Stations []StationConfig `mapstructure:"stations"`
	Logger   LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// PortalConfig holds the fuel-portal endpoints and login credentials.
// Username and password are only ever read from the environment.
type PortalConfig struct {
	LoginURL        string        `mapstructure:"login_url"`
	APIBaseURL      string        `mapstructure:"api_base_url"`
	APIHost         string        `mapstructure:"api_host"`
	InvoicePath     string        `mapstructure:"invoice_path"`
	DetailPath      string        `mapstructure:"detail_path"`
	SalesPath       string        `mapstructure:"sales_path"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	LoginTimeout    time.Duration `mapstructure:"login_timeout"`
	TokenWait       time.Duration `mapstructure:"token_wait"`
	TokenSettleWait time.Duration `mapstructure:"token_settle_wait"`
}

// SyncConfig tunes the bulk and on-demand extraction pipelines
type SyncConfig struct {
	Workers               int      `mapstructure:"workers"`
	ReimburseLookbackDays int      `mapstructure:"reimburse_lookback_days"`
	InvoicePageSize       int      `mapstructure:"invoice_page_size"`
	DetailPageSize        int      `mapstructure:"detail_page_size"`
	SalesPageSize         int      `mapstructure:"sales_page_size"`
	SecondaryMarker       string   `mapstructure:"secondary_marker"`
	ExemptFragments       []string `mapstructure:"exempt_fragments"`
}

// StationConfig is one allow-listed station (tax id + display name)
type StationConfig struct {
	CNPJ string `mapstructure:"cnpj"`
	Name string `mapstructure:"name"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/fuelsync.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Portal defaults
	viper.SetDefault("portal.login_url", "https://portal.profrotas.com.br/")
	viper.SetDefault("portal.api_base_url", "https://api-portal.profrotas.com.br")
	viper.SetDefault("portal.api_host", "api-portal.profrotas.com.br")
	viper.SetDefault("portal.invoice_path", "/api/financeiroRevenda/pesquisa")
	viper.SetDefault("portal.detail_path", "/api/detalhamentoNotaFiscal/pesquisa")
	viper.SetDefault("portal.sales_path", "/api/revenda/autorizacao/pesquisa")
	viper.SetDefault("portal.request_timeout", 30*time.Second)
	viper.SetDefault("portal.login_timeout", 90*time.Second)
	viper.SetDefault("portal.token_wait", 15*time.Second)
	viper.SetDefault("portal.token_settle_wait", 3*time.Second)

	// Sync defaults
	viper.SetDefault("sync.workers", 5)
	viper.SetDefault("sync.reimburse_lookback_days", 7)
	viper.SetDefault("sync.invoice_page_size", 50)
	viper.SetDefault("sync.detail_page_size", 500)
	viper.SetDefault("sync.sales_page_size", 200)
	viper.SetDefault("sync.secondary_marker", "arla")
	viper.SetDefault("sync.exempt_fragments", []string{})

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("portal.username", "PORTAL_USER")
	viper.BindEnv("portal.password", "PORTAL_PASS")
	viper.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Portal.Username == "" {
		return fmt.Errorf("portal.username is required (set PORTAL_USER)")
	}
	if c.Portal.Password == "" {
		return fmt.Errorf("portal.password is required (set PORTAL_PASS)")
	}
	if c.Portal.APIBaseURL == "" {
		return fmt.Errorf("portal.api_base_url is required")
	}
	if len(c.Stations) == 0 {
		return fmt.Errorf("at least one station must be configured")
	}
	for i, s := range c.Stations {
		if s.CNPJ == "" {
			return fmt.Errorf("stations[%d].cnpj is required", i)
		}
		if err := utils.ValidateCNPJ(s.CNPJ); err != nil {
			return fmt.Errorf("stations[%d]: %w", i, err)
		}
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive")
	}
	if c.Sync.SalesPageSize > 200 {
		// The sales endpoint rejects pages above 200.
		c.Sync.SalesPageSize = 200
	}
	return nil
}

// AllowList returns the configured stations as a cnpj -> display name map
func (c *Config) AllowList() map[string]string {
	m := make(map[string]string, len(c.Stations))
	for _, s := range c.Stations {
		m[s.CNPJ] = s.Name
	}
	return m
}
