// Package config loads the attestor process configuration. The core itself
// has no persisted state; configuration covers only the signing key, the
// pinned signature convention, execution budget overrides, and telemetry.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/claimvm/core/pkg/budget"
	"github.com/Mindburn-Labs/claimvm/core/pkg/signer"
)

// Config is the full attestor configuration.
type Config struct {
	// AttestorKeyHex is the 32-byte secp256k1 private key, hex encoded.
	AttestorKeyHex string `yaml:"attestor_key_hex"`

	// SignatureConvention pins whether the EIP-191 personal-message prefix
	// is applied before signing. Must match the verifying contract.
	SignatureConvention string `yaml:"signature_convention"`

	// ServerVersion, when set, is injected into every processor before
	// identity hashing.
	ServerVersion string `yaml:"server_version,omitempty"`

	Budget budget.Budget `yaml:"budget"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	// MaxConcurrent bounds the processing pool; zero means the pool default.
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`

	// SubmitRatePerSec throttles claim submission; zero disables the limiter.
	SubmitRatePerSec float64 `yaml:"submit_rate_per_sec,omitempty"`
}

// TelemetryConfig toggles instrumentation.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration with the standard budget and the EIP-191
// convention. The key must still be supplied.
func Default() *Config {
	return &Config{
		SignatureConvention: string(signer.ConventionEIP191),
		Budget:              budget.Default(),
		Telemetry:           TelemetryConfig{Enabled: true},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for use.
func (c *Config) Validate() error {
	if c.AttestorKeyHex == "" {
		return fmt.Errorf("attestor_key_hex is required")
	}
	if !signer.Convention(c.SignatureConvention).Valid() {
		return fmt.Errorf("signature_convention must be %q or %q, got %q",
			signer.ConventionRaw, signer.ConventionEIP191, c.SignatureConvention)
	}
	if c.Budget.TimeLimitMs <= 0 || c.Budget.MaxJSONPathResults <= 0 ||
		c.Budget.MaxOutputValues <= 0 || c.Budget.MaxStringLength <= 0 {
		return fmt.Errorf("budget limits must be positive")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if c.SubmitRatePerSec < 0 {
		return fmt.Errorf("submit_rate_per_sec must not be negative")
	}
	return nil
}

// Signer builds the attestor signer from the configured key.
func (c *Config) Signer() (*signer.Secp256k1Signer, error) {
	return signer.NewSecp256k1SignerFromHex(c.AttestorKeyHex)
}

// Convention returns the pinned signature convention.
func (c *Config) Convention() signer.Convention {
	return signer.Convention(c.SignatureConvention)
}
