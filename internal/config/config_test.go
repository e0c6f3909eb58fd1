package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
http_server:
  address: "localhost:9090"
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Env != "local" {
		t.Fatalf("expected env local, got %q", cfg.Env)
	}
	if cfg.Driver != DriverPostgres {
		t.Fatalf("expected postgres driver, got %q", cfg.Driver)
	}
	if cfg.AccessTokenTTL() != time.Hour {
		t.Fatalf("expected 1h access ttl, got %s", cfg.AccessTokenTTL())
	}
	if cfg.RefreshTokenTTL() != 24*time.Hour {
		t.Fatalf("expected 24h refresh ttl, got %s", cfg.RefreshTokenTTL())
	}
	if cfg.Google.Enabled() {
		t.Fatal("google sign-in must be disabled without credentials")
	}
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	path := writeConfig(t, `
http_server:
  address: "localhost:9090"
jwt:
  secret: "short"
`)

	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestLoadConfigRejectsSubSecondAccessTTL(t *testing.T) {
	path := writeConfig(t, `
http_server:
  address: "localhost:9090"
jwt:
  secret: "0123456789abcdef0123456789abcdef"
  access_token_expiration_ms: 500
`)

	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected sub-second access token expiration to be rejected")
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
db:
  driver: "mysql"
http_server:
  address: "localhost:9090"
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`)

	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected unknown driver to be rejected")
	}
}

func TestMustLoadConfigPanicsOnMissingFile(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()

	MustLoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
}
