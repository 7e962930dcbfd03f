package config

import "time"

// Config is the complete service configuration, assembled from defaults and
// environment overrides.
type Config struct {
	Server    ServerConfig
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Guards    GuardConfig
	Scanner   ScannerConfig
	Scorer    ScorerConfig
	Retry     RetryConfig
	Audit     AuditConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	LogLevel        string
}

// HTTPConfig holds outbound HTTP client settings for probes and fetches.
type HTTPConfig struct {
	ProbeTimeout        time.Duration
	FetchTimeout        time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	UserAgent           string
	// MinHostInterval is the politeness floor between requests to one host.
	MinHostInterval time.Duration
	// AllowPrivateHosts disables the private-network fetch guard. Local
	// development only; never enable in production.
	AllowPrivateHosts bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds frontier store settings.
type RedisConfig struct {
	URL string
}

// GuardConfig tunes the admission guard pipeline. Guard order is fixed; only
// thresholds are configurable.
type GuardConfig struct {
	// DominantDomain is the designated heavy source whose share is bounded.
	DominantDomain string
	// DominantShareThreshold is the rolling share of recent attempts from
	// the dominant domain that triggers a cooldown.
	DominantShareThreshold float64
	// DominantShareWindow is how many recent attempts the rolling share is
	// computed over.
	DominantShareWindow int
	// DominantCooldown is how long the heavy source stays rejected once
	// its share threshold trips.
	DominantCooldown time.Duration
	// HostAttemptCap caps attempts per host per run.
	HostAttemptCap int
	// DiversityFloor is the number of distinct hosts that must be seen
	// before the dominant domain is admitted again.
	DiversityFloor int
	// SuccessRateFloor rejects hosts whose rolling accept-rate drops below
	// this fraction.
	SuccessRateFloor float64
	// SuccessRateMinSamples delays the success-rate guard until a host has
	// this many recorded outcomes.
	SuccessRateMinSamples int
	// ContestedWarmup is the number of processed admissions before the
	// contested-ratio guard activates.
	ContestedWarmup int
	// ContestedRatio is the fraction of post-warmup admissions that must
	// be contested candidates.
	ContestedRatio float64
	// HostQPSInterval is the minimum interval between admitted requests to
	// one host.
	HostQPSInterval time.Duration
	// RetryBudget bounds re-enqueues per candidate before it is discarded.
	RetryBudget int
	// RequeueBaseDelay seeds the exponential backoff for rejected or
	// transiently failed candidates.
	RequeueBaseDelay time.Duration
	// RequeueMaxDelay caps the backoff.
	RequeueMaxDelay time.Duration
}

// ScannerConfig tunes the citation state machine.
type ScannerConfig struct {
	// MinContentLength is the extraction floor; shorter output is an
	// extraction failure, not a relevance denial.
	MinContentLength int
	// HighConfidenceThreshold is the priority score above which the model
	// verdict overrides the substantive-article heuristic.
	HighConfidenceThreshold float64
	// ReprocessCooldown gates re-scanning of high-score denied citations.
	// Tunable on purpose: observed policies conflict, so neither extreme
	// is hardcoded.
	ReprocessCooldown time.Duration
	// VerifyFailureCooldown delays retrying a failed verification.
	VerifyFailureCooldown time.Duration
	// IdleInterval is how long the run loop sleeps when the frontier is
	// empty before polling again.
	IdleInterval time.Duration
}

// ScorerConfig holds the relevance scorer API settings.
type ScorerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RetryConfig tunes the network retrier.
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// AuditConfig holds the run audit trail settings.
type AuditConfig struct {
	BasePath string
	Enabled  bool
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	Enabled        bool
	SampleRatio    float64
}
