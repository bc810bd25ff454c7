// Command drivebridge runs the resilient cloud-storage front-end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/drivebridge/drivebridge/auth"
	"github.com/drivebridge/drivebridge/cache"
	"github.com/drivebridge/drivebridge/config"
	"github.com/drivebridge/drivebridge/drive"
	"github.com/drivebridge/drivebridge/health"
	"github.com/drivebridge/drivebridge/observe"
	"github.com/drivebridge/drivebridge/resilience"
	"github.com/drivebridge/drivebridge/secret"
	"github.com/drivebridge/drivebridge/server"
	"github.com/drivebridge/drivebridge/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "drivebridge:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: cfg.Observe.ServiceName,
		Version:     version.Get().Version,
		Tracing: observe.TracingConfig{
			Enabled:   cfg.Observe.TracingEnabled,
			Exporter:  cfg.Observe.TracingExporter,
			SamplePct: cfg.Observe.TracingSamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  cfg.Observe.MetricsEnabled,
			Exporter: cfg.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   cfg.Observe.LogLevel,
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	logger := obs.Logger()
	metrics, err := observe.NewMetrics(obs.Meter())
	if err != nil {
		return err
	}
	tracer := observe.NewTracer(obs.Tracer())

	// Credentials may be given as secretref: values or environment refs.
	creds, err := resolveCredentials(ctx, &cfg.Auth)
	if err != nil {
		return err
	}

	guards, err := buildGuards(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	store, err := auth.NewFileTokenStore(cfg.Auth.TokenFile)
	if err != nil {
		return err
	}
	manager, err := auth.NewManager(auth.Config{
		ClientID:     creds.clientID,
		ClientSecret: creds.clientSecret,
		RedirectURL:  cfg.Auth.RedirectURL,
		StateSecret:  []byte(creds.stateSecret),
	}, store)
	if err != nil {
		return err
	}

	client, err := drive.NewClient(drive.Config{
		BaseURL:            cfg.Drive.BaseURL,
		UploadBaseURL:      cfg.Drive.UploadBaseURL,
		TokenSource:        &managerTokenSource{manager: manager},
		Executor:           guards.executor,
		Bulkhead:           guards.bulkhead,
		ResumableThreshold: cfg.Drive.ResumableThresholdBytes,
		Cache:              cache.NewMemoryCache(cache.Policy{DefaultTTL: cfg.Drive.FolderCacheTTL, MaxTTL: time.Hour}),
		CacheTTL:           cfg.Drive.FolderCacheTTL,
		Logger:             logger,
		Tracer:             tracer,
	})
	if err != nil {
		return err
	}

	agg := health.NewAggregator()
	agg.Register(health.NewBreakerChecker("gdrive_breaker", guards.breaker))
	agg.Register(health.NewAuthChecker(manager))
	if cfg.Drive.BaseURL != "" {
		agg.Register(health.NewReachabilityChecker("gdrive_api", cfg.Drive.BaseURL, nil))
	}

	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	}, server.Deps{
		Storage:        client,
		Auth:           manager,
		Health:         agg,
		Breaker:        guards.breaker,
		Limiter:        guards.limiter,
		Bulkhead:       guards.bulkhead,
		MetricsHandler: promhttp.Handler(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "starting drivebridge",
		observe.F("version", version.Get().Version),
		observe.F("addr", cfg.Server.Addr))
	return srv.Run(ctx)
}

// guards bundles the resilience primitives shared by the storage client and
// the status endpoints.
type guards struct {
	executor *resilience.Executor
	breaker  *resilience.CircuitBreaker
	limiter  *resilience.RateLimiter
	bulkhead *resilience.Bulkhead
}

func buildGuards(ctx context.Context, cfg *config.Config, logger observe.Logger, metrics observe.Metrics) (*guards, error) {
	retry, err := resilience.NewRetryPolicy(resilience.RetryConfig{
		MaxAttempts:    cfg.Resilience.Retry.MaxAttempts,
		BaseDelay:      cfg.Resilience.Retry.BaseDelay,
		MaxDelay:       cfg.Resilience.Retry.MaxDelay,
		Multiplier:     cfg.Resilience.Retry.Multiplier,
		JitterFraction: cfg.Resilience.Retry.JitterFraction,
	})
	if err != nil {
		return nil, err
	}

	limiter, err := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Rate:  cfg.Resilience.RateLimit.Rate,
		Burst: cfg.Resilience.RateLimit.Burst,
	})
	if err != nil {
		return nil, err
	}

	breaker, err := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Resilience.Breaker.FailureThreshold,
		OpenDuration:     cfg.Resilience.Breaker.OpenDuration,
		OnStateChange: func(from, to resilience.State) {
			logger.Warn(ctx, "circuit breaker state change",
				observe.F("from", from.String()), observe.F("to", to.String()))
			metrics.RecordBreakerTransition(ctx, "gdrive", from.String(), to.String())
		},
	})
	if err != nil {
		return nil, err
	}

	bulkhead, err := resilience.NewBulkhead(resilience.BulkheadConfig{
		MaxConcurrent: cfg.Resilience.Bulkhead.MaxConcurrent,
		MaxWait:       cfg.Resilience.Bulkhead.MaxWait,
	})
	if err != nil {
		return nil, err
	}

	meta := observe.CallMeta{Dependency: "gdrive", Operation: "call"}
	executor := resilience.NewExecutor(
		resilience.WithCircuitBreaker(breaker),
		resilience.WithRateLimiter(limiter),
		resilience.WithRetryPolicy(retry),
		resilience.WithAttemptHook(func(a resilience.Attempt) {
			metrics.RecordAttempt(ctx, meta, a.Number, a.Duration, a.Err)
		}),
	)

	return &guards{executor: executor, breaker: breaker, limiter: limiter, bulkhead: bulkhead}, nil
}

// credentials are the resolved secret values from the auth config.
type credentials struct {
	clientID     string
	clientSecret string
	stateSecret  string
}

func resolveCredentials(ctx context.Context, cfg *config.AuthConfig) (*credentials, error) {
	resolver := secret.DefaultResolver()

	clientID, err := resolver.ResolveValue(ctx, cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("resolving auth.client_id: %w", err)
	}
	clientSecret, err := resolver.ResolveValue(ctx, cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("resolving auth.client_secret: %w", err)
	}
	stateSecret, err := resolver.ResolveValue(ctx, cfg.StateSecret)
	if err != nil {
		return nil, fmt.Errorf("resolving auth.state_secret: %w", err)
	}

	return &credentials{
		clientID:     clientID,
		clientSecret: clientSecret,
		stateSecret:  stateSecret,
	}, nil
}

// managerTokenSource defers to the auth manager on each call so the service
// can start before the authorization flow has been completed. Requests that
// need storage access fail with auth.ErrNotAuthorized until then.
type managerTokenSource struct {
	manager *auth.Manager
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	source, err := s.manager.TokenSource(context.Background())
	if err != nil {
		return nil, err
	}
	return source.Token()
}
