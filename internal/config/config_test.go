package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testYAML = `
app:
  name: "Club Anden"
  environment: "test"
  port: 8080
  base_url: "http://localhost:8080"

database:
  driver: "sqlite"
  filename: "anden.db"

booking:
  open_hour: 9
  close_hour: 23
  max_active_per_user: 2
  pending_ttl_minutes: 10
  timezone: "America/Argentina/Buenos_Aires"

courts:
  - type: "5v5"
    label: "Cancha 5"
    hourly_price: 30000
  - type: "7v7"
    label: "Cancha 7"
    hourly_price: 45000

admin:
  email: "owner@club.com"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("MP_ACCESS_TOKEN", " TEST-token \n")
	t.Setenv("MP_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("CLERK_SECRET_KEY", "sk_test_123")

	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Name != "Club Anden" || cfg.App.Port != 8080 {
		t.Fatalf("app section: %+v", cfg.App)
	}
	if cfg.Booking.OpenHour != 9 || cfg.Booking.CloseHour != 23 {
		t.Fatalf("operating hours: %+v", cfg.Booking)
	}
	if cfg.PendingTTL() != 10*time.Minute {
		t.Fatalf("pending ttl: %v", cfg.PendingTTL())
	}
	if cfg.Payments.AccessToken != "TEST-token" {
		t.Fatalf("access token should be trimmed, got %q", cfg.Payments.AccessToken)
	}
	if cfg.Payments.WebhookSecret != "whsec_test" {
		t.Fatalf("webhook secret: %q", cfg.Payments.WebhookSecret)
	}
	if cfg.Auth.ClerkSecretKey != "sk_test_123" {
		t.Fatalf("clerk secret: %q", cfg.Auth.ClerkSecretKey)
	}

	court, ok := cfg.Court("7v7")
	if !ok || court.HourlyPrice != 45000 {
		t.Fatalf("court lookup: %+v ok=%v", court, ok)
	}
	if _, ok := cfg.Court("11v11"); ok {
		t.Fatal("unknown court type should not resolve")
	}

	if cfg.Location().String() != "America/Argentina/Buenos_Aires" {
		t.Fatalf("location: %s", cfg.Location())
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	minimal := `
app:
  name: "Club Anden"
  port: 8080
database:
  driver: "sqlite"
  filename: "anden.db"
admin:
  email: "owner@club.com"
`
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Booking.OpenHour != 8 || cfg.Booking.CloseHour != 24 {
		t.Fatalf("default hours: %+v", cfg.Booking)
	}
	if cfg.Booking.MaxActivePerUser != 2 {
		t.Fatalf("default limit: %d", cfg.Booking.MaxActivePerUser)
	}
	if cfg.Booking.PendingTTLMinutes != 15 {
		t.Fatalf("default ttl: %d", cfg.Booking.PendingTTLMinutes)
	}
	if cfg.Payments.APIBase != "https://api.mercadopago.com" || cfg.Payments.Currency != "ARS" {
		t.Fatalf("payment defaults: %+v", cfg.Payments)
	}
	if len(cfg.Courts) != 2 {
		t.Fatalf("default catalog: %+v", cfg.Courts)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing app name", `
app:
  port: 8080
database: {driver: "sqlite", filename: "a.db"}
admin: {email: "owner@club.com"}
`},
		{"unsupported driver", `
app: {name: "X", port: 8080}
database: {driver: "postgres", filename: "a.db"}
admin: {email: "owner@club.com"}
`},
		{"inverted operating hours", `
app: {name: "X", port: 8080}
database: {driver: "sqlite", filename: "a.db"}
booking: {open_hour: 22, close_hour: 10}
admin: {email: "owner@club.com"}
`},
		{"missing admin email", `
app: {name: "X", port: 8080}
database: {driver: "sqlite", filename: "a.db"}
`},
		{"duplicate court type", `
app: {name: "X", port: 8080}
database: {driver: "sqlite", filename: "a.db"}
admin: {email: "owner@club.com"}
courts:
  - {type: "5v5", label: "A", hourly_price: 100}
  - {type: "5v5", label: "B", hourly_price: 200}
`},
		{"invalid timezone", `
app: {name: "X", port: 8080}
database: {driver: "sqlite", filename: "a.db"}
booking: {timezone: "Mars/Olympus"}
admin: {email: "owner@club.com"}
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
