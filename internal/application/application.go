package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/avasilenko/rulegen/internal/api"
	"github.com/avasilenko/rulegen/internal/config"
	"github.com/avasilenko/rulegen/internal/rules"
	"github.com/avasilenko/rulegen/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage     storage.Storage
	synthesizer rules.Synthesizer
	handler     *api.Handler
	router      http.Handler
	logger      *zap.Logger
	server      *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := storage.NewMemoryStorage()
	if err := store.SetTransforms(cfg.InitialTransforms); err != nil {
		return nil, fmt.Errorf("failed to apply initial transforms: %w", err)
	}

	synth := rules.New()
	handler := api.NewHandler(synth, store, api.WithSettings(cfg.Build))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	rootHandler := BuildRootHandler(apiRouter)

	server := &http.Server{
		Addr:              listenAddr(cfg.Port),
		Handler:           rootHandler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return &App{
		storage:     store,
		synthesizer: synth,
		handler:     handler,
		router:      apiRouter,
		logger:      logger,
		server:      server,
	}, nil
}

// BuildRootHandler constructs the root HTTP handler: a JSON service descriptor
// at the root path and the API router under /api/.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)

	descriptor := map[string]any{
		"service": "rulegen",
		"endpoints": []string{
			"GET /api/health",
			"GET /api/transforms",
			"PUT /api/transforms",
			"POST /api/synthesize",
		},
	}
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(descriptor)
	}))

	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              listenAddr(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
