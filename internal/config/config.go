// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// CourtConfig describes one bookable court type and its hourly price.
type CourtConfig struct {
	Type        string  `yaml:"type"`
	Label       string  `yaml:"label"`
	HourlyPrice float64 `yaml:"hourly_price"`
}

type BookingConfig struct {
	// Operating hours: a slot at hour h is bookable when OpenHour <= h < CloseHour.
	OpenHour  int `yaml:"open_hour"`
	CloseHour int `yaml:"close_hour"`
	// Maximum confirmed reservations a user may hold at once.
	MaxActivePerUser int `yaml:"max_active_per_user"`
	// Minutes a pending_payment reservation holds its slot before the
	// sweep cancels it and releases the slot.
	PendingTTLMinutes int `yaml:"pending_ttl_minutes"`
	// IANA timezone used for the past-slot check.
	Timezone string `yaml:"timezone"`
}

type AdminConfig struct {
	// Email of the facility owner. Any caller whose verified email
	// matches is granted operator privileges.
	Email string `yaml:"email"`
}

type PaymentsConfig struct {
	APIBase       string `yaml:"api_base"`
	Currency      string `yaml:"currency"`
	AccessToken   string `yaml:"-"` // Loaded from environment
	WebhookSecret string `yaml:"-"` // Loaded from environment
}

type EmailConfig struct {
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type AuthConfig struct {
	// When true (development only), identity may be supplied via
	// X-User-* headers instead of a Clerk session.
	AllowDevHeaders bool   `yaml:"allow_dev_headers"`
	ClerkSecretKey  string `yaml:"-"` // Loaded from environment
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`
	Booking  BookingConfig  `yaml:"booking"`
	Courts   []CourtConfig  `yaml:"courts"`
	Admin    AdminConfig    `yaml:"admin"`
	Payments PaymentsConfig `yaml:"payments"`
	Email    EmailConfig    `yaml:"email"`
	Auth     AuthConfig     `yaml:"auth"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// Read and parse YAML config
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Load sensitive values from environment
	cfg.Payments.AccessToken = strings.TrimSpace(os.Getenv("MP_ACCESS_TOKEN"))
	cfg.Payments.WebhookSecret = os.Getenv("MP_WEBHOOK_SECRET")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.Auth.ClerkSecretKey = os.Getenv("CLERK_SECRET_KEY")

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Booking.OpenHour == 0 && c.Booking.CloseHour == 0 {
		c.Booking.OpenHour = 8
		c.Booking.CloseHour = 24
	}
	if c.Booking.MaxActivePerUser == 0 {
		c.Booking.MaxActivePerUser = 2
	}
	if c.Booking.PendingTTLMinutes == 0 {
		c.Booking.PendingTTLMinutes = 15
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "America/Argentina/Buenos_Aires"
	}
	if c.Payments.APIBase == "" {
		c.Payments.APIBase = "https://api.mercadopago.com"
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "ARS"
	}
	if len(c.Courts) == 0 {
		c.Courts = []CourtConfig{
			{Type: "5v5", Label: "Cancha 5", HourlyPrice: 28000},
			{Type: "7v7", Label: "Cancha 7", HourlyPrice: 42000},
		}
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}
	if c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.Filename == "" {
		return fmt.Errorf("database filename is required for sqlite")
	}
	if c.Booking.OpenHour < 0 || c.Booking.CloseHour > 24 || c.Booking.OpenHour >= c.Booking.CloseHour {
		return fmt.Errorf("invalid operating hours: %d-%d", c.Booking.OpenHour, c.Booking.CloseHour)
	}
	if c.Booking.MaxActivePerUser < 1 {
		return fmt.Errorf("max_active_per_user must be at least 1")
	}
	if c.Booking.PendingTTLMinutes < 1 {
		return fmt.Errorf("pending_ttl_minutes must be at least 1")
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Booking.Timezone, err)
	}
	if c.Admin.Email == "" {
		return fmt.Errorf("admin email is required")
	}
	seen := map[string]bool{}
	for _, court := range c.Courts {
		if court.Type == "" {
			return fmt.Errorf("court type is required")
		}
		if seen[court.Type] {
			return fmt.Errorf("duplicate court type: %s", court.Type)
		}
		seen[court.Type] = true
		if court.HourlyPrice <= 0 {
			return fmt.Errorf("court %s: hourly price must be positive", court.Type)
		}
	}
	return nil
}

// Court returns the catalog entry for the given court type.
func (c *Config) Court(courtType string) (CourtConfig, bool) {
	for _, court := range c.Courts {
		if court.Type == courtType {
			return court, true
		}
	}
	return CourtConfig{}, false
}

// Location returns the facility timezone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PendingTTL returns how long a pending_payment reservation holds its slot.
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Booking.PendingTTLMinutes) * time.Minute
}
