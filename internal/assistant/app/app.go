// Package app assembles the assistant: store, classifier, executor, model
// registry, analysis worker, notifier, and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ontime-erp/assistant/internal/assistant/audit"
	"github.com/ontime-erp/assistant/internal/assistant/executor"
	"github.com/ontime-erp/assistant/internal/assistant/intent"
	"github.com/ontime-erp/assistant/internal/assistant/jobs"
	"github.com/ontime-erp/assistant/internal/assistant/llm"
	"github.com/ontime-erp/assistant/internal/assistant/server"
	"github.com/ontime-erp/assistant/internal/assistant/store"
)

// ProviderConfig is one configured model provider.
type ProviderConfig struct {
	// Name is the registry key: "openai", "deepseek", "mistral", "gemini".
	Name string
	// APIKey authenticates against the provider.
	APIKey string
	// BaseURL and Model override the provider defaults when set.
	BaseURL string
	Model   string
}

// Config holds the full application configuration.
type Config struct {
	DatabasePath string
	ListenAddr   string

	// Tokens maps API bearer tokens to acting users.
	Tokens map[string]string
	// Roles maps users to application roles for prompt adornment.
	Roles map[string][]string
	// AdminUsers are granted the full capability wildcard at startup.
	AdminUsers []string

	Providers       []ProviderConfig
	DefaultProvider string

	// RateLimit is the per-user model calls allowed per minute.
	RateLimit int
	// JobRetention is how long finished analysis jobs stay queryable.
	JobRetention time.Duration
	// JobStaleAfter is how long a processing job may go untouched before the
	// worker requeues it as orphaned.
	JobStaleAfter time.Duration
	// WorkerPoll is the sleep between polls of an empty job queue.
	WorkerPoll time.Duration

	// Matrix configures the operations-room notifier.  All three fields plus
	// OpsRoom must be set for notifications to be enabled.
	Matrix  audit.MatrixConfig
	OpsRoom string
}

// App is the assembled assistant.
type App struct {
	cfg      Config
	store    *store.Store
	worker   *jobs.Worker
	srv      *http.Server
	log      *slog.Logger
	stopOnce sync.Once
}

// New wires the application from config.  It opens the database, registers
// the configured model providers, and prepares (but does not start) the
// worker and HTTP server.
func New(cfg Config) (*App, error) {
	if len(cfg.Tokens) == 0 {
		return nil, fmt.Errorf("at least one API token must be configured")
	}

	log := slog.Default()

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	for _, admin := range cfg.AdminUsers {
		if err := st.Grant(context.Background(), admin, "*", "*"); err != nil {
			st.Close()
			return nil, fmt.Errorf("grant admin capability: %w", err)
		}
	}

	classifier, err := intent.New()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load intent rules: %w", err)
	}

	registry := llm.NewRegistry()
	for _, p := range cfg.Providers {
		c, err := newCompleter(p)
		if err != nil {
			st.Close()
			return nil, err
		}
		registry.Register(p.Name, c)
		log.Info("model provider registered", "provider", p.Name)
	}
	if cfg.DefaultProvider != "" {
		if err := registry.SetDefault(cfg.DefaultProvider); err != nil {
			st.Close()
			return nil, fmt.Errorf("select default provider: %w", err)
		}
	}

	notifier, jobNotifier := buildNotifier(cfg, log)

	worker := jobs.New(st, registry, jobs.Options{
		Provider:     cfg.DefaultProvider,
		PollInterval: cfg.WorkerPoll,
		Retention:    cfg.JobRetention,
		StaleAfter:   cfg.JobStaleAfter,
		Notifier:     jobNotifier,
		Logger:       log,
	})

	handler := server.NewHandler(server.Deps{
		Classifier: classifier,
		Executor:   executor.New(st, log),
		Completer:  registry,
		Limiter:    llm.NewRateLimiter(cfg.RateLimit, time.Minute),
		Store:      st,
		Notifier:   notifier,
		Roles:      cfg.Roles,
		Tokens:     cfg.Tokens,
		Logger:     log,
	})

	return &App{
		cfg:    cfg,
		store:  st,
		worker: worker,
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}, nil
}

func newCompleter(p ProviderConfig) (llm.Completer, error) {
	cfg := llm.Config{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model}
	switch p.Name {
	case "openai":
		return llm.NewOpenAI(cfg), nil
	case "deepseek":
		return llm.NewDeepSeek(cfg), nil
	case "mistral":
		return llm.NewMistral(cfg), nil
	case "gemini":
		return llm.NewGemini(cfg), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", p.Name)
	}
}

func buildNotifier(cfg Config, log *slog.Logger) (audit.Notifier, jobs.Notifier) {
	if cfg.OpsRoom == "" || cfg.Matrix.Homeserver == "" {
		log.Info("operations-room notifications disabled")
		return audit.Noop{}, audit.Noop{}
	}
	sender, err := audit.NewMatrixSender(cfg.Matrix)
	if err != nil {
		log.Warn("operations-room notifier unavailable", "error", err)
		return audit.Noop{}, audit.Noop{}
	}
	n := audit.NewMatrixNotifier(sender, cfg.OpsRoom)
	log.Info("operations-room notifications enabled", "room", cfg.OpsRoom)
	return n, n
}

// Run starts the analysis worker and the HTTP server and blocks until a
// shutdown signal arrives or the server fails.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.worker.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.ListenAddr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		cancel()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", "error", err)
	}

	cancel()
	wg.Wait()
	return nil
}

// Stop releases resources.  Safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if err := a.store.Close(); err != nil {
			a.log.Error("close store", "error", err)
		}
	})
}
