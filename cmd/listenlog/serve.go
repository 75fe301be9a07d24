package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/1mb-dev/listenlog/internal/api"
	"github.com/1mb-dev/listenlog/internal/discord"
	"github.com/1mb-dev/listenlog/internal/logging"
	"github.com/1mb-dev/listenlog/internal/metrics"
	"github.com/1mb-dev/listenlog/internal/tracker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller, the HTTP API and the optional Discord bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The poller can never authenticate without all three
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	a, err := wireApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	pollInterval, err := cfg.GetPollInterval()
	if err != nil {
		return fmt.Errorf("invalid poll interval: %w", err)
	}
	maxDelta, err := cfg.GetMaxDelta()
	if err != nil {
		return fmt.Errorf("invalid max delta: %w", err)
	}
	shutdownTimeout, err := cfg.GetShutdownTimeout()
	if err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	loop := tracker.New(a.client, a.repo, tracker.Options{
		Interval: pollInterval,
		MaxDelta: maxDelta,
		Logger:   logger.With("component", "tracker"),
	})

	var bot *discord.Bot
	if cfg.Discord.Token != "" {
		replies := discord.NewReplies(a.stats, a.client, a.client, logger)
		bot, err = discord.New(cfg.Discord.Token, cfg.Discord.GuildID, replies, logger.With("component", "discord"))
		if err != nil {
			return err
		}
	}

	server, err := newServer(a, loop)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.Run(ctx)
	}()

	if bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil {
				logger.Error("discord bot stopped", logging.Err(err))
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listenlog starting", "version", version, "addr", server.Addr, "database", cfg.Database.Path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = err
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logging.Err(err))
	}

	wg.Wait()
	if runErr != nil {
		return runErr
	}

	logger.Info("stopped")
	return nil
}

// newServer builds the HTTP server: API routes plus health, readiness and metrics.
func newServer(a *app, loop *tracker.Loop) (*http.Server, error) {
	cfg := a.cfg
	logger := a.logger

	mux := http.NewServeMux()

	// Health check (liveness probe)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok " + version))
	})

	// Readiness check (verifies database connectivity)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := a.repo.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Metrics endpoint (runtime + application stats), localhost only
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		state := loop.State()
		output := map[string]any{
			"version": version,
			"runtime": map[string]any{
				"goroutines":        runtime.NumGoroutine(),
				"memory_alloc_mb":   float64(mem.Alloc) / 1024 / 1024,
				"memory_sys_mb":     float64(mem.Sys) / 1024 / 1024,
				"gc_runs":           mem.NumGC,
				"gc_pause_total_ms": float64(mem.PauseTotalNs) / 1e6,
			},
			"app":   metrics.Get().Snapshot(),
			"cache": a.cache.Stats(),
			"tracker": map[string]any{
				"last_track":       state.LastTrack,
				"last_artist":      state.LastArtist,
				"last_progress_ms": state.LastProgressMs,
				"has_progress":     state.HasProgress,
				"last_poll":        state.LastPoll,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(output); err != nil {
			logger.Error("encoding metrics failed", logging.Err(err))
		}
	})

	api.NewHandler(a.client, a.stats, a.cache, logger).RegisterRoutes(mux)

	readTimeout, err := cfg.GetReadTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	writeTimeout, err := cfg.GetWriteTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid write timeout: %w", err)
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           securityHeaders(metrics.Middleware(logger.With("component", "http"))(mux)),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout / 3,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       writeTimeout * 8,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}, nil
}

// securityHeaders adds standard security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
