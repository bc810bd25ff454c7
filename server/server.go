package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drivebridge/drivebridge/auth"
	"github.com/drivebridge/drivebridge/drive"
	"github.com/drivebridge/drivebridge/health"
	"github.com/drivebridge/drivebridge/observe"
	"github.com/drivebridge/drivebridge/resilience"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string

	// ReadTimeout bounds reading the request, header included.
	// Default: 30s
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response. Uploads pass through to the
	// storage API, so this needs headroom. Default: 120s
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration

	// MaxUploadBytes bounds the accepted request body on uploads.
	// Default: 64 MiB
	MaxUploadBytes int64
}

// Storage is the slice of the drive client the handlers use.
type Storage interface {
	UploadFile(ctx context.Context, req drive.UploadRequest) (*drive.File, error)
	DeleteFolder(ctx context.Context, folderPath string) error
}

// Authorizer is the slice of the auth manager the handlers use.
type Authorizer interface {
	AuthCodeURL() (string, error)
	HandleCallback(ctx context.Context, code, state string) error
	SubmitCode(ctx context.Context, code string) error
	Status() auth.Status
}

// Deps are the collaborators the server exposes over HTTP.
type Deps struct {
	Storage Storage
	Auth    Authorizer
	Health  *health.Aggregator

	// Breaker, Limiter, and Bulkhead feed the /service/status snapshot.
	// Each is optional.
	Breaker  *resilience.CircuitBreaker
	Limiter  *resilience.RateLimiter
	Bulkhead *resilience.Bulkhead

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	Logger observe.Logger
}

// Server is the HTTP front-end.
type Server struct {
	config Config
	deps   Deps
	engine *gin.Engine
	http   *http.Server
}

// New creates the server and registers all routes.
func New(config Config, deps Deps) (*Server, error) {
	if deps.Storage == nil {
		return nil, errors.New("server: storage client is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("server: auth manager is required")
	}

	// Apply defaults
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 120 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 15 * time.Second
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 64 << 20
	}
	if deps.Logger == nil {
		deps.Logger = observe.NopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(RequestID(), AccessLog(deps.Logger.With("http")), Recovery(deps.Logger.With("http")))

	s := &Server{
		config: config,
		deps:   deps,
		engine: engine,
		http: &http.Server{
			Addr:         config.Addr,
			Handler:      engine,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.POST("/upload_file", s.handleUploadFile)
	s.engine.POST("/delete_folder", s.handleDeleteFolder)

	s.engine.GET("/authorize_gdrive", s.handleAuthorize)
	s.engine.POST("/submit_auth_code", s.handleSubmitAuthCode)
	s.engine.GET("/oauth/callback", s.handleOAuthCallback)
	s.engine.GET("/auth/status", s.handleAuthStatus)

	s.engine.GET("/ping", s.handlePing)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/service/status", s.handleServiceStatus)
	s.engine.GET("/info", s.handleInfo)
	s.engine.GET("/version", s.handleVersion)

	if s.deps.MetricsHandler != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.MetricsHandler))
	}

	s.engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not_found", "no such endpoint")
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info(ctx, "server listening", observe.F("addr", s.config.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.deps.Logger.Info(shutdownCtx, "server shutting down")
	return s.http.Shutdown(shutdownCtx)
}
