// Package app wires cmd/alfred's four run modes (api, worker, enclave,
// migrate) from a loaded config.Config: infrastructure connections,
// the store, and every handler/engine package's concrete dependencies.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/alfredhq/backend/internal/attestation"
	"github.com/alfredhq/backend/internal/audit"
	"github.com/alfredhq/backend/internal/config"
	"github.com/alfredhq/backend/internal/cryptoutil"
	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/enclave/google"
	"github.com/alfredhq/backend/internal/enclave/llm"
	"github.com/alfredhq/backend/internal/enclave/rpchandlers"
	"github.com/alfredhq/backend/internal/hostapi"
	"github.com/alfredhq/backend/internal/jobs"
	"github.com/alfredhq/backend/internal/jobs/push"
	"github.com/alfredhq/backend/internal/ops"
	"github.com/alfredhq/backend/internal/platform"
	"github.com/alfredhq/backend/internal/rpcauth"
	"github.com/alfredhq/backend/internal/store"
	"github.com/alfredhq/backend/internal/telemetry"
)

var googleOAuthScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/gmail.readonly",
}

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the mode selected by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting alfred", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if cfg.Mode == config.ModeMigrate {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	q := store.New(db)

	auditWriter := audit.NewWriter(q, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	switch cfg.Mode {
	case config.ModeAPI:
		return runAPI(ctx, cfg, logger, q, rdb, auditWriter, metricsReg)
	case config.ModeWorker:
		return runWorker(ctx, cfg, logger, q, auditWriter)
	case config.ModeEnclave:
		return runEnclave(ctx, cfg, logger, q, rdb, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func rpcClientConfig(cfg *config.Config) rpcauth.Config {
	return rpcauth.Config{
		SharedSecret:    cfg.EnclaveRPCSharedSecret,
		ContractVersion: cfg.RPCContractVersion,
		MaxClockSkew:    cfg.MaxClockSkew(),
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, q *store.Queries, rdb *redis.Client, auditWriter *audit.Writer, metricsReg *prometheus.Registry) error {
	auth, err := hostapi.NewAuthenticator(ctx, cfg.IdentityIssuerURL, cfg.IdentityAudience)
	if err != nil {
		return fmt.Errorf("initializing authenticator: %w", err)
	}

	rpcClient := enclave.NewRPCClient(&http.Client{Timeout: 15 * time.Second}, cfg.EnclaveRPCBaseURL, rpcClientConfig(cfg))

	rateWindow, err := time.ParseDuration(cfg.RateLimitWindow)
	if err != nil {
		return fmt.Errorf("parsing RATE_LIMIT_WINDOW: %w", err)
	}
	rateLimiter := hostapi.NewRateLimiter(rdb, cfg.RateLimitPerUser, rateWindow)

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.OAuthGoogleClientID,
		ClientSecret: cfg.OAuthGoogleClientSecret,
		RedirectURL:  cfg.OAuthGoogleRedirectURL,
		Scopes:       googleOAuthScopes,
		Endpoint:     googleoauth.Endpoint,
	}

	handlers := hostapi.NewHandlers(hostapi.HandlerDeps{
		Devices: hostapi.DeviceDeps{Store: q, Audit: auditWriter, DataEncryptionKey: cfg.DataEncryptionKey},
		Connectors: hostapi.ConnectorDeps{
			Store:             q,
			Audit:             auditWriter,
			RPC:               rpcClient,
			OAuthConfig:       oauthCfg,
			DataEncryptionKey: cfg.DataEncryptionKey,
			KMSKeyID:          cfg.KMSKeyID,
			KMSKeyVersion:     cfg.KMSKeyVersion,
		},
		Preferences: hostapi.PreferencesDeps{Store: q, Audit: auditWriter},
		Automation:  hostapi.AutomationDeps{Store: q, Audit: auditWriter, DataEncryptionKey: cfg.DataEncryptionKey},
		AuditEvents: hostapi.AuditEventDeps{Store: q},
		Assistant:   hostapi.AssistantDeps{Store: q, Audit: auditWriter, RPC: rpcClient},
		Privacy:     hostapi.PrivacyDeps{Store: q, Audit: auditWriter},
	})

	router := hostapi.Router(hostapi.RouterConfig{
		Logger:             logger,
		Auth:               auth,
		Store:              q,
		PerUserRateLimiter: rateLimiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Handlers:           handlers,
	})
	router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, q *store.Queries, auditWriter *audit.Writer) error {
	pollInterval, err := time.ParseDuration(cfg.WorkerPollInterval)
	if err != nil {
		return fmt.Errorf("parsing WORKER_POLL_INTERVAL: %w", err)
	}

	rpcClient := enclave.NewRPCClient(&http.Client{Timeout: 30 * time.Second}, cfg.EnclaveRPCBaseURL, rpcClientConfig(cfg))
	pushSender := push.NewSender(&http.Client{Timeout: 10 * time.Second}, cfg.APNsSandboxEndpoint, cfg.APNsProductionEndpoint, cfg.APNsAuthToken)
	notifier := ops.NewNotifier(cfg.SlackOpsBotToken, cfg.SlackOpsChannel, logger)

	workerID, err := os.Hostname()
	if err != nil || workerID == "" {
		workerID = "alfred-worker"
	}

	scheduler := jobs.NewScheduler(q, logger, workerID, pollInterval, cfg.WorkerBatchSize, cfg.WorkerLeaseSeconds, cfg.DataEncryptionKey)
	worker := jobs.NewWorker(jobs.WorkerConfig{
		Store:             q,
		Audit:             auditWriter,
		RPC:               rpcClient,
		Push:              pushSender,
		Ops:               notifier,
		Logger:            logger,
		WorkerID:          workerID,
		Interval:          pollInterval,
		BatchSize:         cfg.WorkerBatchSize,
		LeaseSeconds:      cfg.WorkerLeaseSeconds,
		DataEncryptionKey: cfg.DataEncryptionKey,
		RetryBaseSeconds:  cfg.RetryBaseSeconds,
		RetryMaxSeconds:   cfg.RetryMaxSeconds,
		RetryMaxAttempts:  cfg.RetryMaxAttempts,
	})

	engine := &jobs.Engine{Scheduler: scheduler, Worker: worker}
	logger.Info("worker started", "worker_id", workerID)
	return engine.Run(ctx)
}

func runEnclave(ctx context.Context, cfg *config.Config, logger *slog.Logger, q *store.Queries, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	policy, err := attestation.PolicyFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("building attestation policy: %w", err)
	}
	if err := attestation.HardGuard(cfg.AlfredEnv, policy, cfg.EnclaveRPCBaseURL); err != nil {
		return fmt.Errorf("attestation hard guard: %w", err)
	}

	envelopeKeys, err := loadEnvelopeKeyPair(cfg, logger)
	if err != nil {
		return fmt.Errorf("loading envelope keypair: %w", err)
	}

	attestationPrivKey, err := loadAttestationPrivateKey(cfg, logger)
	if err != nil {
		return fmt.Errorf("loading attestation private key: %w", err)
	}

	googleClient := google.NewClient(&http.Client{Timeout: 15 * time.Second}, cfg.OAuthGoogleClientID, cfg.OAuthGoogleClientSecret, q, cfg.DataEncryptionKey)

	reliabilityCfg, err := llmReliabilityConfig(cfg)
	if err != nil {
		return fmt.Errorf("building llm reliability config: %w", err)
	}
	gateway := llm.NewReliableGateway(llm.NewDevShimGateway(cfg.LLMProvider), llm.NewReliabilityState(time.Now()), reliabilityCfg)

	sessionRing := rpchandlers.NewDerivedKeyring(cfg.DataEncryptionKey, fmt.Sprintf("kms-v%d", cfg.KMSKeyVersion))

	handlers := rpchandlers.NewHandlers(rpchandlers.Deps{
		Store:                 q,
		Google:                googleClient,
		Gateway:               gateway,
		EnclaveKeys:           envelopeKeys,
		SessionRing:           sessionRing,
		AttestationPrivateKey: attestationPrivKey,
		Runtime:               cfg.TEEExpectedRuntime,
		Measurement:           cfg.TEESelfMeasurement,
		ReplayGuard:           attestation.NewReplayGuard(),
		Logger:                logger,
	})

	var nonceChecker rpcauth.NonceChecker
	if cfg.AlfredEnv == config.EnvLocal {
		nonceChecker = rpcauth.NewInProcessNonceCache()
	} else {
		nonceChecker = rpcauth.NewRedisNonceCache(rdb, "enclave-rpc-nonce")
	}

	hardGuard := func() error {
		return attestation.HardGuard(cfg.AlfredEnv, policy, cfg.EnclaveRPCBaseURL)
	}

	server := enclave.NewServer(logger, rpcClientConfig(cfg), nonceChecker, hardGuard)
	router := server.Routes(handlers)
	router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("enclave rpc server listening", "addr", cfg.ListenAddr(), "envelope_public_key", base64.StdEncoding.EncodeToString(envelopeKeys.PublicKey[:]))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down enclave rpc server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func loadEnvelopeKeyPair(cfg *config.Config, logger *slog.Logger) (*cryptoutil.EnvelopeKeyPair, error) {
	if cfg.TEEEnvelopePrivateKey == "" {
		if cfg.AlfredEnv != config.EnvLocal {
			return nil, fmt.Errorf("TEE_ENVELOPE_PRIVATE_KEY is required outside local env")
		}
		logger.Warn("TEE_ENVELOPE_PRIVATE_KEY unset, generating an ephemeral envelope keypair for this process lifetime only")
		return cryptoutil.GenerateEnvelopeKeyPair()
	}

	raw, err := base64.StdEncoding.DecodeString(cfg.TEEEnvelopePrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding TEE_ENVELOPE_PRIVATE_KEY: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("TEE_ENVELOPE_PRIVATE_KEY must decode to 32 bytes, got %d", len(raw))
	}
	var priv [32]byte
	copy(priv[:], raw)
	return cryptoutil.EnvelopeKeyPairFromPrivateKey(priv)
}

func loadAttestationPrivateKey(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.TEEAttestationPrivateKey == "" {
		if cfg.AlfredEnv != config.EnvLocal {
			return nil, fmt.Errorf("TEE_ATTESTATION_PRIVATE_KEY is required outside local env")
		}
		logger.Warn("TEE_ATTESTATION_PRIVATE_KEY unset, generating an ephemeral Ed25519 keypair for this process lifetime only")
		pub, priv, err := cryptoutil.GenerateEd25519Keypair()
		if err != nil {
			return nil, err
		}
		logger.Warn("ephemeral attestation public key, add to TEE_ATTESTATION_PUBLIC_KEY to verify signed evidence", "public_key", base64.StdEncoding.EncodeToString(pub))
		return priv, nil
	}

	priv, err := base64.StdEncoding.DecodeString(cfg.TEEAttestationPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding TEE_ATTESTATION_PRIVATE_KEY: %w", err)
	}
	return priv, nil
}

func llmReliabilityConfig(cfg *config.Config) (llm.ReliabilityConfig, error) {
	rateWindow, err := time.ParseDuration(cfg.LLMRateLimitWindow)
	if err != nil {
		return llm.ReliabilityConfig{}, fmt.Errorf("parsing LLM_RATE_LIMIT_WINDOW: %w", err)
	}
	openCooldown, err := time.ParseDuration(cfg.LLMOpenCooldown)
	if err != nil {
		return llm.ReliabilityConfig{}, fmt.Errorf("parsing LLM_OPEN_COOLDOWN: %w", err)
	}
	cacheTTL, err := time.ParseDuration(cfg.LLMCacheTTL)
	if err != nil {
		return llm.ReliabilityConfig{}, fmt.Errorf("parsing LLM_CACHE_TTL: %w", err)
	}
	budgetWindow, err := time.ParseDuration(cfg.LLMBudgetWindow)
	if err != nil {
		return llm.ReliabilityConfig{}, fmt.Errorf("parsing LLM_BUDGET_WINDOW: %w", err)
	}

	return llm.ReliabilityConfig{
		RateLimitWindow:                rateWindow,
		RateLimitGlobalMaxRequests:     cfg.LLMRateLimitGlobal,
		RateLimitPerUserMaxRequests:    cfg.LLMRateLimitPerUser,
		CircuitBreakerFailureThreshold: uint32(cfg.LLMFailureThreshold),
		CircuitBreakerCooldown:         openCooldown,
		CacheTTL:                       cacheTTL,
		CacheMaxEntries:                cfg.LLMCacheMaxEntries,
		BudgetWindow:                   budgetWindow,
		BudgetMaxEstimatedCostUSD:      cfg.LLMBudgetMaxUSD,
	}, nil
}
