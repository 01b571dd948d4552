package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == ModeAPI },
			expect: "api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default env is local",
			check:  func(c *Config) bool { return c.AlfredEnv == EnvLocal },
			expect: "local",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default enclave runtime mode is dev-shim",
			check:  func(c *Config) bool { return c.EnclaveRuntimeMode == RuntimeDevShim },
			expect: "dev-shim",
		},
		{
			name:   "default clock skew is 30 seconds",
			check:  func(c *Config) bool { return c.MaxClockSkew().Seconds() == 30 },
			expect: "30s",
		},
		{
			name:   "default retry base is 30 seconds",
			check:  func(c *Config) bool { return c.RetryBaseSeconds == 30 },
			expect: "30",
		},
		{
			name:   "default retry max is 900 seconds",
			check:  func(c *Config) bool { return c.RetryMaxSeconds == 900 },
			expect: "900",
		},
		{
			name:   "default tee attestation required is true",
			check:  func(c *Config) bool { return c.TEEAttestationRequired },
			expect: "true",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestValidateLocalEnvSkipsGuards(t *testing.T) {
	cfg := &Config{AlfredEnv: EnvLocal}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error in local env, got %v", err)
	}
}

func TestValidateNonLocalRequiresSharedSecret(t *testing.T) {
	cfg := &Config{
		AlfredEnv:         EnvProduction,
		DataEncryptionKey: "a-sufficiently-long-key-value",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing shared secret outside local env")
	}
}

func TestValidateNonLocalRequiresDataEncryptionKey(t *testing.T) {
	cfg := &Config{
		AlfredEnv:              EnvProduction,
		EnclaveRPCSharedSecret: "a-sufficiently-long-secret",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing data encryption key outside local env")
	}
}

func TestValidateNonLocalPasses(t *testing.T) {
	cfg := &Config{
		AlfredEnv:              EnvStaging,
		EnclaveRPCSharedSecret: "a-sufficiently-long-secret",
		DataEncryptionKey:      "a-sufficiently-long-key-value",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
