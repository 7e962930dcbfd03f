package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"citation-processor/audit"
	"citation-processor/config"
	"citation-processor/connector"
	"citation-processor/domain"
	"citation-processor/extract"
	"citation-processor/frontier"
	"citation-processor/handler"
	"citation-processor/orchestrator"
	"citation-processor/ratelimit"
	"citation-processor/repository"
	"citation-processor/retry"
	"citation-processor/scanner"
	"citation-processor/scorer"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	DBPool        *pgxpool.Pool
	Frontier      frontier.Frontier
	Manager       *orchestrator.Manager
	RunHandler    *handler.RunHandler
	HealthHandler *handler.HealthHandler
	Logger        *slog.Logger
}

// BuildDependencies constructs all application dependencies.
// Returns a cleanup function that should be deferred.
func BuildDependencies(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Dependencies, func(), error) {
	dbPool, err := repository.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		dbPool.Close()
		return nil, nil, err
	}
	redisClient := redis.NewClient(redisOpts)

	citationRepo := repository.NewCitationRepository(dbPool, log)
	pageRepo := repository.NewPageRepository(dbPool, log)
	contentRepo := repository.NewContentRepository(dbPool, log)

	limiter, err := ratelimit.NewHostLimiter(cfg.HTTP.MinHostInterval, log)
	if err != nil {
		redisClient.Close()
		dbPool.Close()
		return nil, nil, err
	}

	fetcher := connector.New(cfg.HTTP, limiter, log)
	extractor := extract.New(cfg.Scanner.MinContentLength)
	relevance := newRetryingScorer(cfg.Scorer, cfg.Retry, log)

	scan := scanner.New(
		cfg.Scanner,
		citationRepo,
		pageRepo,
		contentRepo,
		fetcher,
		extractor,
		relevance,
		limiter,
		log,
	)

	fr := frontier.NewRedisFrontier(redisClient, log)
	processor := orchestrator.NewPageProcessor(pageRepo, scan, log)
	trail := audit.NewTrail(cfg.Audit, log)
	manager := orchestrator.NewManager(fr, processor, trail, cfg.Guards, cfg.Scanner.IdleInterval, log)

	cleanup := func() {
		manager.StopAll()
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis client", "error", err)
		}
		dbPool.Close()
	}

	return &Dependencies{
		DBPool:        dbPool,
		Frontier:      fr,
		Manager:       manager,
		RunHandler:    handler.NewRunHandler(ctx, manager, fr, scan, log),
		HealthHandler: handler.NewHealthHandler(dbPool, log),
		Logger:        log,
	}, cleanup, nil
}

// retryingScorer retries transient scorer failures in place, so a blip on
// the scoring API does not burn the candidate's requeue budget.
type retryingScorer struct {
	inner   *scorer.Scorer
	retrier *retry.Retrier
}

func newRetryingScorer(scorerCfg config.ScorerConfig, retryCfg config.RetryConfig, log *slog.Logger) *retryingScorer {
	classifier := func(err error) bool {
		return errors.Is(err, domain.ErrScoringUnavailable)
	}
	return &retryingScorer{
		inner: scorer.New(scorerCfg, log),
		retrier: retry.New(retry.Config{
			MaxAttempts:   retryCfg.MaxAttempts,
			BaseDelay:     retryCfg.BaseDelay,
			MaxDelay:      retryCfg.MaxDelay,
			BackoffFactor: retryCfg.BackoffFactor,
			JitterFactor:  retryCfg.JitterFactor,
		}, classifier, log),
	}
}

func (r *retryingScorer) Score(ctx context.Context, text, title, topicContext string) (*scorer.Verdict, error) {
	var verdict *scorer.Verdict
	err := r.retrier.Do(ctx, func() error {
		var scoreErr error
		verdict, scoreErr = r.inner.Score(ctx, text, title, topicContext)
		return scoreErr
	})
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

var _ scanner.RelevanceScorer = (*retryingScorer)(nil)
