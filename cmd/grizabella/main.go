// Command grizabella runs the tri-store knowledge engine as a standalone
// process, serving schema/instance/query operations over the RPC
// dispatcher until it receives a shutdown signal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grizabella-go/grizabella/internal/config"
	"github.com/grizabella-go/grizabella/internal/rpc"
	"github.com/grizabella-go/grizabella/pkg/grizabella"
)

func main() {
	os.Exit(run())
}

func run() int {
	dbPath := flag.String("db-path", defaultDBPath(), "database name or filesystem path")
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	createIfMissing := flag.Bool("create", true, "create the database's substrate directories if they don't already exist")
	listenAddr := flag.String("listen-addr", "", "address the RPC HTTP server listens on, overriding server.listen_addr")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grizabella: %v\n", err)
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("grizabella starting", "db_path", *dbPath, "log_level", cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := grizabella.Open(ctx, *dbPath, *createIfMissing, grizabella.WithConfig(*cfg))
	if err != nil {
		slog.Error("failed to open database", "err", err)
		return 1
	}

	dispatcher := rpc.NewDispatcher(db)
	mux := http.NewServeMux()
	rpc.NewServer(dispatcher).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	srvErrs := make(chan error, 1)
	if srv.Addr != "" {
		go func() {
			slog.Info("rpc server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErrs <- err
			}
		}()
	} else {
		slog.Warn("no listen address configured, RPC surface is not reachable over the network")
	}

	slog.Info("grizabella ready — press Ctrl+C to shut down")
	select {
	case <-ctx.Done():
	case err := <-srvErrs:
		slog.Error("rpc server failed", "err", err)
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if srv.Addr != "" {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("rpc server shutdown error", "err", err)
		}
	}
	if err := db.Close(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// defaultDBPath resolves the database path flag's default: the
// GRIZABELLA_DB_PATH environment variable when set, otherwise a stable
// built-in name that the Path Resolver maps under the user's home
// directory.
func defaultDBPath() string {
	if v := os.Getenv("GRIZABELLA_DB_PATH"); v != "" {
		return v
	}
	return "default"
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", path)
		}
		return nil, err
	}
	return cfg, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.SlogLevel()}))
}
