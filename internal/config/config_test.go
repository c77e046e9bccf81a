package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithFake(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CARRIER_FAKE", "true")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != "8080" || c.PreviewRows != 20 || c.RowRetryAttempts != 3 {
		t.Fatalf("defaults %+v", c)
	}
	if c.Carrier.BaseURL == "" {
		t.Fatal("carrier base url default missing")
	}
}

func TestLoadRequiresCredentialsWithoutFake(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CARRIER_FAKE", "")
	t.Setenv("CARRIER_CLIENT_ID", "")
	t.Setenv("CARRIER_CLIENT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	body := []byte("port: \"9090\"\nlabelDir: /var/labels\nshipper:\n  accountNumber: A1B2C3\n  name: Acme\n  countryCode: US\ncarrier:\n  clientId: file-id\n  clientSecret: file-secret\n")
	if err := os.WriteFile(file, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("CARRIER_FAKE", "")
	t.Setenv("PORT", "7070")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != "7070" {
		t.Fatalf("env should override file: %q", c.Port)
	}
	if c.LabelDir != "/var/labels" || c.Shipper.AccountNumber != "A1B2C3" {
		t.Fatalf("file values lost: %+v", c)
	}
	if c.Carrier.ClientID != "file-id" {
		t.Fatalf("carrier id %q", c.Carrier.ClientID)
	}
}
