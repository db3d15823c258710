package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/api"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
	"github.com/tendant/simple-media/pkg/simplemedia/metrics"
)

// HTTPSettings covers the HTTP layer only. Backends are configured by
// config.WithEnv.
type HTTPSettings struct {
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat       string        `yaml:"log_format" env:"LOG_FORMAT"` // json or text, by environment when empty
	MaxUploadMB     int           `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB" env-default:"32"`
	DefaultMaxMB    int           `yaml:"default_max_size_mb" env:"DEFAULT_MAX_SIZE_MB" env-default:"10"`
	AllowedTypes    []string      `yaml:"allowed_mime_prefixes" env:"ALLOWED_MIME_PREFIXES" env-default:"image/"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func loadHTTPSettings() (HTTPSettings, error) {
	var s HTTPSettings
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &s); err != nil {
			return s, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return s, nil
	}
	if err := cleanenv.ReadEnv(&s); err != nil {
		return s, err
	}
	return s, nil
}

func newLogger(settings HTTPSettings, environment string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	format := settings.LogFormat
	if format == "" {
		format = "text"
		if environment == "production" {
			format = "json"
		}
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func main() {
	_ = godotenv.Load()

	settings, err := loadHTTPSettings()
	if err != nil {
		slog.Error("Failed to read HTTP settings", "err", err)
		os.Exit(1)
	}

	serverConfig, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(settings, serverConfig.Environment)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := serverConfig.BuildService(ctx, logger)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	server := NewHTTPServer(rt, serverConfig, settings, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Simple Media Server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.Storage.Type,
			"reconcile_queue", serverConfig.RedisURL != "")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
	}
	logger.Info("Server exiting")
}

// HTTPServer exposes the media service, health and metrics over HTTP
type HTTPServer struct {
	runtime  *config.Runtime
	config   *config.ServerConfig
	settings HTTPSettings
	logger   *slog.Logger
}

// NewHTTPServer creates a new HTTP server wrapper
func NewHTTPServer(rt *config.Runtime, serverConfig *config.ServerConfig, settings HTTPSettings, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{
		runtime:  rt,
		config:   serverConfig,
		settings: settings,
		logger:   logger,
	}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.settings.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.settings.RequestTimeout))
	}

	// CORS for development
	if s.config.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}
				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/health", s.handleHealth)
	if s.runtime.Registry != nil {
		r.Handle("/metrics", metrics.Handler(s.runtime.Registry))
	}

	handler := api.NewHandler(s.runtime.Service,
		api.WithLogger(s.logger),
		api.WithMaxUploadMB(s.settings.MaxUploadMB),
		api.WithDefaultPolicy(simplemedia.UploadPolicy{
			MaxSizeMB:           s.settings.DefaultMaxMB,
			AllowedMimePrefixes: s.settings.AllowedTypes,
		}),
	)
	r.Mount("/api/v1", handler.Routes())

	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Database    string `json:"database"`
	Storage     string `json:"storage"`
	Error       string `json:"error,omitempty"`
}

// handleHealth reports unhealthy when the document store cannot answer
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "healthy",
		Environment: s.config.Environment,
		Database:    s.config.DatabaseType,
		Storage:     s.config.Storage.Type,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if _, err := s.runtime.Docs.Now(ctx); err != nil {
		s.logger.ErrorContext(r.Context(), "Health check failed", "err", err)
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
