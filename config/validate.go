package config

import (
	"errors"
	"fmt"
)

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", cfg.Server.Port)
	}

	if cfg.HTTP.ProbeTimeout <= 0 {
		return errors.New("probe timeout must be positive")
	}

	if cfg.HTTP.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}

	if cfg.Guards.DominantShareThreshold <= 0 || cfg.Guards.DominantShareThreshold > 1 {
		return fmt.Errorf("dominant share threshold must be in (0,1]: %f", cfg.Guards.DominantShareThreshold)
	}

	if cfg.Guards.DominantShareWindow <= 0 {
		return errors.New("dominant share window must be positive")
	}

	if cfg.Guards.HostAttemptCap <= 0 {
		return errors.New("host attempt cap must be positive")
	}

	if cfg.Guards.DiversityFloor < 0 {
		return errors.New("diversity floor must not be negative")
	}

	if cfg.Guards.SuccessRateFloor < 0 || cfg.Guards.SuccessRateFloor > 1 {
		return fmt.Errorf("success rate floor must be in [0,1]: %f", cfg.Guards.SuccessRateFloor)
	}

	if cfg.Guards.ContestedRatio < 0 || cfg.Guards.ContestedRatio > 1 {
		return fmt.Errorf("contested ratio must be in [0,1]: %f", cfg.Guards.ContestedRatio)
	}

	if cfg.Guards.HostQPSInterval < 0 {
		return errors.New("host QPS interval must not be negative")
	}

	if cfg.Guards.RetryBudget <= 0 {
		return errors.New("retry budget must be positive")
	}

	if cfg.Scanner.MinContentLength <= 0 {
		return errors.New("minimum content length must be positive")
	}

	if cfg.Scanner.HighConfidenceThreshold < 0 || cfg.Scanner.HighConfidenceThreshold > 100 {
		return fmt.Errorf("high confidence threshold must be in [0,100]: %f", cfg.Scanner.HighConfidenceThreshold)
	}

	if cfg.Scanner.ReprocessCooldown < 0 {
		return errors.New("reprocess cooldown must not be negative")
	}

	if cfg.Scorer.BaseURL == "" {
		return errors.New("scorer base URL is required")
	}

	if cfg.Retry.MaxAttempts <= 0 {
		return errors.New("retry max attempts must be positive")
	}

	if cfg.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry backoff factor must be >= 1: %f", cfg.Retry.BackoffFactor)
	}

	return nil
}
