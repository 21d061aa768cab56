// Package config loads VEIL engine settings from an optional YAML file with
// environment-variable overrides. Environment always wins so container
// deployments can run file-less.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// DefaultToken is the development-only shared secret. Production refuses
// to start while the configured token still carries this marker.
const DefaultToken = "dev-secret-token-CHANGE-IN-PROD"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Security SecurityConfig `yaml:"security"`
	Stores   StoresConfig   `yaml:"stores"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Services ServicesConfig `yaml:"services"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"` // "dev" or "prod"
}

type SecurityConfig struct {
	InternalToken       string `yaml:"internal_token"`
	AuthorizedProxyHash string `yaml:"authorized_proxy_hash"`
}

type StoresConfig struct {
	KVURL string `yaml:"kv_url"`
}

type LedgerConfig struct {
	File string `yaml:"file"`
	// KeyFile holds a base64 Ed25519 signing key. Empty means an
	// ephemeral key, which only dev may use.
	KeyFile string `yaml:"key_file"`
}

type ServicesConfig struct {
	PolicyURL string `yaml:"policy_url"`
	ModelURL  string `yaml:"model_url"`
	ModelName string `yaml:"model_name"`
}

// Defaults returns the development configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Env:  "dev",
		},
		Security: SecurityConfig{
			InternalToken: DefaultToken,
			// mitmproxy:10.2.0
			AuthorizedProxyHash: "sha256:54930c87ec0ee025a42dd2bb80d04de0ef4e571b34e2d51cd93be501c7b8e020",
		},
		Stores: StoresConfig{
			KVURL: "redis://redis:6379",
		},
		Ledger: LedgerConfig{
			File: "veil.ledger.jsonl",
		},
		Services: ServicesConfig{
			PolicyURL: "http://veil-opa:8181/v1/data/veil/allow",
			ModelURL:  "http://veil-ollama:11434/api/generate",
			ModelName: "llama3.2:1b",
		},
	}
}

// Load reads the YAML file at path (if non-empty and present), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setIfPresent(&c.Server.Env, "ENV")
	setIfPresent(&c.Server.Port, "PORT")
	setIfPresent(&c.Security.InternalToken, "INTERNAL_TOKEN")
	setIfPresent(&c.Security.AuthorizedProxyHash, "AUTHORIZED_PROXY_HASH")
	setIfPresent(&c.Stores.KVURL, "KV_URL")
	setIfPresent(&c.Ledger.File, "LEDGER_FILE")
	setIfPresent(&c.Ledger.KeyFile, "LEDGER_KEY_FILE")
	setIfPresent(&c.Services.PolicyURL, "POLICY_URL")
	setIfPresent(&c.Services.ModelURL, "MODEL_URL")
	setIfPresent(&c.Services.ModelName, "MODEL_NAME")
}

func setIfPresent(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// IsDev reports whether dev-only concessions (UNKNOWN proxy fingerprint,
// nonce-store fail-open) are permitted.
func (c *Config) IsDev() bool {
	return c.Server.Env != "prod"
}

// Validate enforces the production startup guards. A prod engine with the
// default secret or no pinned proxy image is a deployment mistake, not a
// runtime condition; refuse to start.
func (c *Config) Validate() error {
	if c.Server.Env != "dev" && c.Server.Env != "prod" {
		return fmt.Errorf("config: ENV must be dev or prod, got %q", c.Server.Env)
	}
	if c.Server.Env == "prod" {
		if c.Security.InternalToken == "" || strings.Contains(c.Security.InternalToken, "CHANGE-IN-PROD") {
			return fmt.Errorf("config: INTERNAL_TOKEN must be set in production")
		}
		if c.Security.AuthorizedProxyHash == "" {
			return fmt.Errorf("config: AUTHORIZED_PROXY_HASH must be set in production")
		}
	}
	return nil
}
