package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Load builds the configuration from defaults and overrides provided via
// environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9300,
			ShutdownTimeout: 30 * time.Second,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			LogLevel:        "info",
		},
		HTTP: HTTPConfig{
			ProbeTimeout:        5 * time.Second,
			FetchTimeout:        30 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			UserAgent:           "citation-processor/1.0 (+https://alt.example.com/bot)",
			MinHostInterval:     2 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "citation_processor",
			Name:     "citations",
			SSLMode:  "prefer",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Guards: GuardConfig{
			DominantShareThreshold: 0.5,
			DominantShareWindow:    20,
			DominantCooldown:       5 * time.Minute,
			HostAttemptCap:         25,
			DiversityFloor:         3,
			SuccessRateFloor:       0.2,
			SuccessRateMinSamples:  5,
			ContestedWarmup:        10,
			ContestedRatio:         0.3,
			HostQPSInterval:        2 * time.Second,
			RetryBudget:            5,
			RequeueBaseDelay:       30 * time.Second,
			RequeueMaxDelay:        15 * time.Minute,
		},
		Scanner: ScannerConfig{
			MinContentLength:        600,
			HighConfidenceThreshold: 60,
			ReprocessCooldown:       24 * time.Hour,
			VerifyFailureCooldown:   1 * time.Hour,
			IdleInterval:            10 * time.Second,
		},
		Scorer: ScorerConfig{
			BaseURL: "http://relevance-scorer:8400",
			Timeout: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     2 * time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
			JitterFactor:  0.1,
		},
		Audit: AuditConfig{
			BasePath: "/var/audit/citation-processor",
			Enabled:  true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "citation-processor",
			ServiceVersion: "1.0.0",
			Environment:    "development",
			OTLPEndpoint:   "http://localhost:4318",
			Enabled:        false,
			SampleRatio:    0.1,
		},
	}
}

func loadFromEnv(cfg *Config) error {
	if err := loadServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	if err := loadHTTPConfig(&cfg.HTTP); err != nil {
		return fmt.Errorf("failed to load HTTP config: %w", err)
	}

	if err := loadDatabaseConfig(&cfg.Database); err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}

	loadRedisConfig(&cfg.Redis)

	if err := loadGuardConfig(&cfg.Guards); err != nil {
		return fmt.Errorf("failed to load guard config: %w", err)
	}

	if err := loadScannerConfig(&cfg.Scanner); err != nil {
		return fmt.Errorf("failed to load scanner config: %w", err)
	}

	if err := loadScorerConfig(&cfg.Scorer); err != nil {
		return fmt.Errorf("failed to load scorer config: %w", err)
	}

	if err := loadRetryConfig(&cfg.Retry); err != nil {
		return fmt.Errorf("failed to load retry config: %w", err)
	}

	if err := loadAuditConfig(&cfg.Audit); err != nil {
		return fmt.Errorf("failed to load audit config: %w", err)
	}

	if err := loadTelemetryConfig(&cfg.Telemetry); err != nil {
		return fmt.Errorf("failed to load telemetry config: %w", err)
	}

	return nil
}

func loadServerConfig(cfg *ServerConfig) error {
	var err error

	if cfg.Port, err = parseIntEnv("SERVER_PORT", cfg.Port); err != nil {
		return err
	}

	if cfg.ShutdownTimeout, err = parseDurationEnv("SERVER_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}

	if cfg.ReadTimeout, err = parseDurationEnv("SERVER_READ_TIMEOUT", cfg.ReadTimeout); err != nil {
		return err
	}

	if cfg.WriteTimeout, err = parseDurationEnv("SERVER_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return nil
}

func loadHTTPConfig(cfg *HTTPConfig) error {
	var err error

	if cfg.ProbeTimeout, err = parseDurationEnv("HTTP_PROBE_TIMEOUT", cfg.ProbeTimeout); err != nil {
		return err
	}

	if cfg.FetchTimeout, err = parseDurationEnv("HTTP_FETCH_TIMEOUT", cfg.FetchTimeout); err != nil {
		return err
	}

	if cfg.MaxIdleConns, err = parseIntEnv("HTTP_MAX_IDLE_CONNS", cfg.MaxIdleConns); err != nil {
		return err
	}

	if cfg.MaxIdleConnsPerHost, err = parseIntEnv("HTTP_MAX_IDLE_CONNS_PER_HOST", cfg.MaxIdleConnsPerHost); err != nil {
		return err
	}

	if cfg.IdleConnTimeout, err = parseDurationEnv("HTTP_IDLE_CONN_TIMEOUT", cfg.IdleConnTimeout); err != nil {
		return err
	}

	if agent := os.Getenv("HTTP_USER_AGENT"); agent != "" {
		cfg.UserAgent = agent
	}

	if cfg.MinHostInterval, err = parseDurationEnv("HTTP_MIN_HOST_INTERVAL", cfg.MinHostInterval); err != nil {
		return err
	}

	if cfg.AllowPrivateHosts, err = parseBoolEnv("HTTP_ALLOW_PRIVATE_HOSTS", cfg.AllowPrivateHosts); err != nil {
		return err
	}

	return nil
}

func loadDatabaseConfig(cfg *DatabaseConfig) error {
	var err error

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}

	if cfg.Port, err = parseIntEnv("DB_PORT", cfg.Port); err != nil {
		return err
	}

	if user := os.Getenv("CITATION_PROCESSOR_DB_USER"); user != "" {
		cfg.User = user
	}

	if password := os.Getenv("CITATION_PROCESSOR_DB_PASSWORD"); password != "" {
		cfg.Password = password
	}

	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}

	if mode := os.Getenv("DB_SSL_MODE"); mode != "" {
		cfg.SSLMode = mode
	}

	if cfg.MaxConns, err = parseIntEnv("DB_MAX_CONNS", cfg.MaxConns); err != nil {
		return err
	}

	return nil
}

func loadRedisConfig(cfg *RedisConfig) {
	if u := os.Getenv("REDIS_URL"); u != "" {
		cfg.URL = u
	}
}

func loadGuardConfig(cfg *GuardConfig) error {
	var err error

	if domain := os.Getenv("GUARD_DOMINANT_DOMAIN"); domain != "" {
		cfg.DominantDomain = domain
	}

	if cfg.DominantShareThreshold, err = parseFloatEnv("GUARD_DOMINANT_SHARE_THRESHOLD", cfg.DominantShareThreshold); err != nil {
		return err
	}

	if cfg.DominantShareWindow, err = parseIntEnv("GUARD_DOMINANT_SHARE_WINDOW", cfg.DominantShareWindow); err != nil {
		return err
	}

	if cfg.DominantCooldown, err = parseDurationEnv("GUARD_DOMINANT_COOLDOWN", cfg.DominantCooldown); err != nil {
		return err
	}

	if cfg.HostAttemptCap, err = parseIntEnv("GUARD_HOST_ATTEMPT_CAP", cfg.HostAttemptCap); err != nil {
		return err
	}

	if cfg.DiversityFloor, err = parseIntEnv("GUARD_DIVERSITY_FLOOR", cfg.DiversityFloor); err != nil {
		return err
	}

	if cfg.SuccessRateFloor, err = parseFloatEnv("GUARD_SUCCESS_RATE_FLOOR", cfg.SuccessRateFloor); err != nil {
		return err
	}

	if cfg.SuccessRateMinSamples, err = parseIntEnv("GUARD_SUCCESS_RATE_MIN_SAMPLES", cfg.SuccessRateMinSamples); err != nil {
		return err
	}

	if cfg.ContestedWarmup, err = parseIntEnv("GUARD_CONTESTED_WARMUP", cfg.ContestedWarmup); err != nil {
		return err
	}

	if cfg.ContestedRatio, err = parseFloatEnv("GUARD_CONTESTED_RATIO", cfg.ContestedRatio); err != nil {
		return err
	}

	if cfg.HostQPSInterval, err = parseDurationEnv("GUARD_HOST_QPS_INTERVAL", cfg.HostQPSInterval); err != nil {
		return err
	}

	if cfg.RetryBudget, err = parseIntEnv("GUARD_RETRY_BUDGET", cfg.RetryBudget); err != nil {
		return err
	}

	if cfg.RequeueBaseDelay, err = parseDurationEnv("GUARD_REQUEUE_BASE_DELAY", cfg.RequeueBaseDelay); err != nil {
		return err
	}

	if cfg.RequeueMaxDelay, err = parseDurationEnv("GUARD_REQUEUE_MAX_DELAY", cfg.RequeueMaxDelay); err != nil {
		return err
	}

	return nil
}

func loadScannerConfig(cfg *ScannerConfig) error {
	var err error

	if cfg.MinContentLength, err = parseIntEnv("SCANNER_MIN_CONTENT_LENGTH", cfg.MinContentLength); err != nil {
		return err
	}

	if cfg.HighConfidenceThreshold, err = parseFloatEnv("SCANNER_HIGH_CONFIDENCE_THRESHOLD", cfg.HighConfidenceThreshold); err != nil {
		return err
	}

	if cfg.ReprocessCooldown, err = parseDurationEnv("SCANNER_REPROCESS_COOLDOWN", cfg.ReprocessCooldown); err != nil {
		return err
	}

	if cfg.VerifyFailureCooldown, err = parseDurationEnv("SCANNER_VERIFY_FAILURE_COOLDOWN", cfg.VerifyFailureCooldown); err != nil {
		return err
	}

	if cfg.IdleInterval, err = parseDurationEnv("SCANNER_IDLE_INTERVAL", cfg.IdleInterval); err != nil {
		return err
	}

	return nil
}

func loadScorerConfig(cfg *ScorerConfig) error {
	var err error

	if u := os.Getenv("SCORER_BASE_URL"); u != "" {
		cfg.BaseURL = u
	}

	if cfg.Timeout, err = parseDurationEnv("SCORER_TIMEOUT", cfg.Timeout); err != nil {
		return err
	}

	return nil
}

func loadRetryConfig(cfg *RetryConfig) error {
	var err error

	if cfg.MaxAttempts, err = parseIntEnv("RETRY_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return err
	}

	if cfg.BaseDelay, err = parseDurationEnv("RETRY_BASE_DELAY", cfg.BaseDelay); err != nil {
		return err
	}

	if cfg.MaxDelay, err = parseDurationEnv("RETRY_MAX_DELAY", cfg.MaxDelay); err != nil {
		return err
	}

	if cfg.BackoffFactor, err = parseFloatEnv("RETRY_BACKOFF_FACTOR", cfg.BackoffFactor); err != nil {
		return err
	}

	if cfg.JitterFactor, err = parseFloatEnv("RETRY_JITTER_FACTOR", cfg.JitterFactor); err != nil {
		return err
	}

	return nil
}

func loadAuditConfig(cfg *AuditConfig) error {
	var err error

	if path := os.Getenv("AUDIT_BASE_PATH"); path != "" {
		cfg.BasePath = path
	}

	if cfg.Enabled, err = parseBoolEnv("AUDIT_ENABLED", cfg.Enabled); err != nil {
		return err
	}

	return nil
}

func loadTelemetryConfig(cfg *TelemetryConfig) error {
	var err error

	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		cfg.ServiceName = name
	}

	if version := os.Getenv("SERVICE_VERSION"); version != "" {
		cfg.ServiceVersion = version
	}

	if env := os.Getenv("DEPLOYMENT_ENV"); env != "" {
		cfg.Environment = env
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.OTLPEndpoint = endpoint
	}

	if cfg.Enabled, err = parseBoolEnv("OTEL_ENABLED", cfg.Enabled); err != nil {
		return err
	}

	if cfg.SampleRatio, err = parseFloatEnv("OTEL_TRACE_SAMPLE_RATIO", cfg.SampleRatio); err != nil {
		return err
	}

	return nil
}

func parseIntEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}

	return v, nil
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}

	return v, nil
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}

	return v, nil
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}

	return v, nil
}
