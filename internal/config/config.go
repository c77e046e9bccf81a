package config

import (
    "fmt"
    "os"
    "strconv"

    "gopkg.in/yaml.v3"

    "shipbatch/internal/model"
)

// Config is the process configuration. Values load from an optional YAML
// file first, then environment variables override field by field, so a
// deployment can keep static settings in the file and secrets in the env.
type Config struct {
    Port        string `yaml:"port"`
    DatabaseURL string `yaml:"databaseUrl"`
    RedisURL    string `yaml:"redisUrl"`
    LabelDir    string `yaml:"labelDir"`

    Carrier struct {
        BaseURL      string  `yaml:"baseUrl"`
        ClientID     string  `yaml:"clientId"`
        ClientSecret string  `yaml:"clientSecret"`
        MaxRPS       float64 `yaml:"maxRps"`
    } `yaml:"carrier"`

    Shipper ShipperConfig `yaml:"shipper"`

    PreviewRows      int `yaml:"previewRows"`
    RowRetryAttempts int `yaml:"rowRetryAttempts"`
}

// ShipperConfig is the YAML shape of the job-level shipper context.
type ShipperConfig struct {
    AccountNumber string `yaml:"accountNumber"`
    Name          string `yaml:"name"`
    AttentionName string `yaml:"attentionName"`
    Phone         string `yaml:"phone"`
    Line1         string `yaml:"addressLine1"`
    Line2         string `yaml:"addressLine2"`
    City          string `yaml:"city"`
    StateProvince string `yaml:"stateProvinceCode"`
    PostalCode    string `yaml:"postalCode"`
    CountryCode   string `yaml:"countryCode"`
}

// Context converts the config shape to the domain shipper context.
func (s ShipperConfig) Context() model.ShipperContext {
    return model.ShipperContext{
        AccountNumber: s.AccountNumber,
        Address: model.Address{
            Name: s.Name, AttentionName: s.AttentionName, Phone: s.Phone,
            Line1: s.Line1, Line2: s.Line2, City: s.City,
            StateProvince: s.StateProvince, PostalCode: s.PostalCode, CountryCode: s.CountryCode,
        },
    }
}

const (
    carrierSandboxURL = "https://wwwcie.ups.com"
    defaultPreviewRows = 20
    defaultRowRetries  = 3
)

// Load builds the configuration. A missing config file is not an error,
// missing carrier credentials are: the process can serve previews against a
// fake but refuses to boot an execute path without credentials unless
// CARRIER_FAKE=true.
func Load() (Config, error) {
    var c Config
    path := envOr("CONFIG_FILE", "config.yaml")
    if data, err := os.ReadFile(path); err == nil {
        if err := yaml.Unmarshal(data, &c); err != nil {
            return Config{}, fmt.Errorf("parse %s: %w", path, err)
        }
    }

    c.Port = envOr("PORT", nonEmpty(c.Port, "8080"))
    c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
    c.RedisURL = envOr("REDIS_URL", c.RedisURL)
    c.LabelDir = envOr("LABEL_DIR", nonEmpty(c.LabelDir, "labels"))

    c.Carrier.BaseURL = envOr("CARRIER_BASE_URL", nonEmpty(c.Carrier.BaseURL, carrierSandboxURL))
    c.Carrier.ClientID = envOr("CARRIER_CLIENT_ID", c.Carrier.ClientID)
    c.Carrier.ClientSecret = envOr("CARRIER_CLIENT_SECRET", c.Carrier.ClientSecret)
    if v := os.Getenv("CARRIER_MAX_RPS"); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 { c.Carrier.MaxRPS = f }
    }

    c.Shipper.AccountNumber = envOr("SHIPPER_ACCOUNT", c.Shipper.AccountNumber)
    c.Shipper.Name = envOr("SHIPPER_NAME", c.Shipper.Name)
    c.Shipper.AttentionName = envOr("SHIPPER_ATTENTION", c.Shipper.AttentionName)
    c.Shipper.Phone = envOr("SHIPPER_PHONE", c.Shipper.Phone)
    c.Shipper.Line1 = envOr("SHIPPER_ADDRESS1", c.Shipper.Line1)
    c.Shipper.Line2 = envOr("SHIPPER_ADDRESS2", c.Shipper.Line2)
    c.Shipper.City = envOr("SHIPPER_CITY", c.Shipper.City)
    c.Shipper.StateProvince = envOr("SHIPPER_STATE", c.Shipper.StateProvince)
    c.Shipper.PostalCode = envOr("SHIPPER_ZIP", c.Shipper.PostalCode)
    c.Shipper.CountryCode = envOr("SHIPPER_COUNTRY", c.Shipper.CountryCode)

    if v := os.Getenv("PREVIEW_ROWS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { c.PreviewRows = n }
    }
    if c.PreviewRows <= 0 { c.PreviewRows = defaultPreviewRows }
    if v := os.Getenv("ROW_RETRY_ATTEMPTS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { c.RowRetryAttempts = n }
    }
    if c.RowRetryAttempts <= 0 { c.RowRetryAttempts = defaultRowRetries }

    if !UseFakeCarrier() && (c.Carrier.ClientID == "" || c.Carrier.ClientSecret == "") {
        return Config{}, fmt.Errorf("carrier credentials missing; set CARRIER_CLIENT_ID and CARRIER_CLIENT_SECRET or CARRIER_FAKE=true")
    }
    return c, nil
}

// UseFakeCarrier reports whether the process should run against the
// in-memory carrier fake instead of the live API.
func UseFakeCarrier() bool {
    v := os.Getenv("CARRIER_FAKE")
    return v == "true" || v == "1"
}

func envOr(k, d string) string {
    if v := os.Getenv(k); v != "" { return v }
    return d
}

func nonEmpty(v, d string) string {
    if v != "" { return v }
    return d
}
