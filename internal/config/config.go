// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Environment is the deployment tier. It gates the hard attestation guards
// in internal/attestation.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "production"
)

// RuntimeMode selects how the host reaches the enclave process.
type RuntimeMode string

const (
	RuntimeDisabled RuntimeMode = "disabled"
	RuntimeDevShim  RuntimeMode = "dev-shim"
	RuntimeRemote   RuntimeMode = "remote"
)

// Mode selects which loop cmd/alfred runs.
type Mode string

const (
	ModeAPI     Mode = "api"
	ModeWorker  Mode = "worker"
	ModeEnclave Mode = "enclave"
	ModeMigrate Mode = "migrate"
)

// Config holds all application configuration, loaded from environment
// variables. Only the fields relevant to the selected Mode are required
// to be populated.
type Config struct {
	Mode Mode `env:"ALFRED_MODE" envDefault:"api"`

	// Server
	Host string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"APP_PORT" envDefault:"8080"`

	AlfredEnv Environment `env:"ALFRED_ENV" envDefault:"local"`

	// Database / cache
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/alfred?sslmode=disable"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Migrations
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// Identity provider (Clerk-issued JWTs, verified via JWKS)
	IdentityIssuerURL  string   `env:"IDENTITY_ISSUER_URL"`
	IdentityAudience   string   `env:"IDENTITY_AUDIENCE"`
	IdentityJWKSLeeway string   `env:"IDENTITY_JWKS_LEEWAY" envDefault:"60s"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitPerUser   int      `env:"RATE_LIMIT_PER_USER" envDefault:"120"`
	RateLimitWindow    string   `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitGlobal    int      `env:"RATE_LIMIT_GLOBAL" envDefault:"5000"`

	// Enclave RPC transport
	EnclaveRPCBaseURL      string      `env:"ENCLAVE_RPC_BASE_URL" envDefault:"http://localhost:8081"`
	EnclaveRPCSharedSecret string      `env:"ENCLAVE_RPC_SHARED_SECRET"`
	EnclaveRuntimeMode     RuntimeMode `env:"ENCLAVE_RUNTIME_MODE" envDefault:"dev-shim"`
	MaxClockSkewSeconds    int64       `env:"MAX_CLOCK_SKEW_SECONDS" envDefault:"30"`
	RPCContractVersion     string      `env:"RPC_CONTRACT_VERSION" envDefault:"1.0.0"`

	// Attestation / KMS key-binding policy
	TEEAttestationRequired   bool     `env:"TEE_ATTESTATION_REQUIRED" envDefault:"true"`
	TEEAllowedMeasurements   []string `env:"TEE_ALLOWED_MEASUREMENTS" envSeparator:","`
	TEEExpectedRuntime       string   `env:"TEE_EXPECTED_RUNTIME" envDefault:"alfred-enclave"`
	TEEAttestationPublicKey  string   `env:"TEE_ATTESTATION_PUBLIC_KEY"`
	TEEAttestationPrivateKey string   `env:"TEE_ATTESTATION_PRIVATE_KEY"`
	TEEMaxAttestationAgeSecs int64    `env:"TEE_MAX_ATTESTATION_AGE_SECONDS" envDefault:"300"`
	TEEAllowInsecureDev      bool     `env:"TEE_ALLOW_INSECURE_DEV_ATTESTATION" envDefault:"false"`
	TEESelfMeasurement       string   `env:"TEE_SELF_MEASUREMENT" envDefault:"dev-local-enclave"`
	KMSKeyID                 string   `env:"KMS_KEY_ID" envDefault:"alfred-primary"`
	KMSKeyVersion            int      `env:"KMS_KEY_VERSION" envDefault:"1"`

	// Enclave's long-term X25519 envelope keypair (base64). Required in
	// enclave mode outside local env so the client-facing public key
	// survives a restart; generated fresh in local/dev if unset.
	TEEEnvelopePrivateKey string `env:"TEE_ENVELOPE_PRIVATE_KEY"`

	// OAuth (Google Calendar / Gmail, brokered by the enclave)
	OAuthGoogleClientID     string `env:"OAUTH_GOOGLE_CLIENT_ID"`
	OAuthGoogleClientSecret string `env:"OAUTH_GOOGLE_CLIENT_SECRET"`
	OAuthGoogleRedirectURL  string `env:"OAUTH_GOOGLE_REDIRECT_URL"`

	// LLM provider reliability knobs
	LLMProvider            string  `env:"LLM_PROVIDER" envDefault:"dev-shim"`
	LLMRequestTimeout      string  `env:"LLM_REQUEST_TIMEOUT" envDefault:"8s"`
	LLMFailureThreshold    int     `env:"LLM_FAILURE_THRESHOLD" envDefault:"5"`
	LLMOpenCooldown        string  `env:"LLM_OPEN_COOLDOWN" envDefault:"30s"`
	LLMRateLimitWindow     string  `env:"LLM_RATE_LIMIT_WINDOW" envDefault:"1m"`
	LLMRateLimitPerUser    uint32  `env:"LLM_RATE_LIMIT_PER_USER" envDefault:"20"`
	LLMRateLimitGlobal     uint32  `env:"LLM_RATE_LIMIT_GLOBAL" envDefault:"1000"`
	LLMCacheTTL            string  `env:"LLM_CACHE_TTL" envDefault:"2m"`
	LLMCacheMaxEntries     int     `env:"LLM_CACHE_MAX_ENTRIES" envDefault:"512"`
	LLMBudgetWindow        string  `env:"LLM_BUDGET_WINDOW" envDefault:"24h"`
	LLMBudgetMaxUSD        float64 `env:"LLM_BUDGET_MAX_USD" envDefault:"50"`

	// Worker / scheduler
	WorkerBatchSize    int    `env:"WORKER_BATCH_SIZE" envDefault:"20"`
	WorkerLeaseSeconds int64  `env:"WORKER_LEASE_SECONDS" envDefault:"60"`
	WorkerPollInterval string `env:"WORKER_POLL_INTERVAL" envDefault:"10s"`
	RetryBaseSeconds   int64  `env:"RETRY_BASE_SECONDS" envDefault:"30"`
	RetryMaxSeconds    int64  `env:"RETRY_MAX_SECONDS" envDefault:"900"`
	RetryMaxAttempts   int    `env:"RETRY_MAX_ATTEMPTS" envDefault:"10"`

	// Push delivery (APNs)
	APNsSandboxEndpoint    string `env:"APNS_SANDBOX_ENDPOINT"`
	APNsProductionEndpoint string `env:"APNS_PRODUCTION_ENDPOINT"`
	APNsAuthToken          string `env:"APNS_AUTH_TOKEN"`

	// Ops notification channel (dead-letter / automation failure alerts).
	// Reuses the Slack bot integration as an internal ops notifier rather
	// than a user-facing channel.
	SlackOpsBotToken string `env:"SLACK_OPS_BOT_TOKEN"`
	SlackOpsChannel  string `env:"SLACK_OPS_CHANNEL" envDefault:"#alfred-ops"`

	// Data encryption (column-level pgp_sym_encrypt key, enclave-bound)
	DataEncryptionKey string `env:"DATA_ENCRYPTION_KEY"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate enforces the non-local hard guards: outside "local", the RPC
// shared secret must be long enough to be a real secret and data
// encryption must be configured. Attestation-specific guards live in
// internal/attestation.HardGuard, which also consults AlfredEnv.
func (c *Config) Validate() error {
	if c.AlfredEnv == EnvLocal {
		return nil
	}
	if len(c.EnclaveRPCSharedSecret) < 16 {
		return fmt.Errorf("ENCLAVE_RPC_SHARED_SECRET must be at least 16 characters outside local env")
	}
	if strings.TrimSpace(c.DataEncryptionKey) == "" {
		return fmt.Errorf("DATA_ENCRYPTION_KEY is required outside local env")
	}
	return nil
}

// MaxClockSkew returns the configured clock skew as a duration.
func (c *Config) MaxClockSkew() time.Duration {
	return time.Duration(c.MaxClockSkewSeconds) * time.Second
}
