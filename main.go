package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/flatjson/document"
	"github.com/stevemurr/flatjson/handler"
	"github.com/stevemurr/flatjson/store"
)

const shutdownTimeout = 10 * time.Second

// Config holds the server configuration read from the environment.
type Config struct {
	Host      string
	Port      string
	DataDir   string
	Backend   string
	Origins   []string
	LogLevel  slog.Level
	LogFormat string
	// Snapshot is restored at startup and saved on shutdown when set.
	Snapshot string
	// SeedFile is a JSON document loaded at startup when no snapshot exists.
	SeedFile string
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig() (Config, error) {
	cfg := Config{
		Host:      env("HOST", "0.0.0.0"),
		Port:      env("PORT", "8080"),
		DataDir:   env("DATA_DIR", "./data"),
		Backend:   env("STORE_BACKEND", "json"),
		Origins:   strings.Split(env("ALLOWED_ORIGINS", "*"), ","),
		LogFormat: env("LOG_FORMAT", "text"),
		Snapshot:  os.Getenv("SNAPSHOT"),
		SeedFile:  os.Getenv("SEED_FILE"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT: unknown format %q", cfg.LogFormat)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func newLogger(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// corsMiddleware wraps an http.Handler with CORS headers.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	// Fast path: wildcard allows everything.
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range allowedOrigins {
				if strings.TrimSpace(o) == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request with an X-Request-ID and logs it.
func requestIDMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request",
			slog.String("id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// bootstrap fills m from the configured snapshot or seed file.
func bootstrap(m *store.Manager, b store.Backend, cfg Config, logger *slog.Logger) error {
	if cfg.Snapshot != "" {
		err := m.Restore(b, cfg.Snapshot)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrSnapshotNotFound) {
			return err
		}
		logger.Info("no snapshot to restore", slog.String("snapshot", cfg.Snapshot))
	}
	if cfg.SeedFile == "" {
		return nil
	}
	raw, err := os.ReadFile(cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	doc, err := document.ParseJSON(raw)
	if err != nil {
		return fmt.Errorf("parse seed file %s: %w", cfg.SeedFile, err)
	}
	if err := m.Init(doc); err != nil {
		return fmt.Errorf("seed file %s: %w", cfg.SeedFile, err)
	}
	logger.Info("seeded", slog.String("file", cfg.SeedFile), slog.Int("entries", m.Len()))
	return nil
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	b, err := store.New(cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("create store (backend=%s): %w", cfg.Backend, err)
	}
	if c, ok := b.(io.Closer); ok {
		defer c.Close()
	}

	m := store.NewManager(store.WithLogger(logger))
	if err := bootstrap(m, b, cfg, logger); err != nil {
		return err
	}

	h := handler.New(m, b, handler.WithLogger(logger))
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           requestIDMiddleware(corsMiddleware(h, cfg.Origins), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("flatjson starting",
			slog.String("addr", srv.Addr),
			slog.String("store", cfg.Backend),
			slog.String("data", cfg.DataDir),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if cfg.Snapshot != "" {
		return m.Persist(b, cfg.Snapshot)
	}
	return nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(os.Stderr, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", slog.Any("error", err))
		os.Exit(1)
	}
}
