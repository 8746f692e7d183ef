package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nicktill/moldwatch/pkg/config"
	"github.com/nicktill/moldwatch/pkg/export"
	"github.com/nicktill/moldwatch/pkg/logging"
	"github.com/nicktill/moldwatch/pkg/server"
	"github.com/nicktill/moldwatch/pkg/server/monitor"
)

// app is the wired service: store, router and background tasks.
type app struct {
	cfg     *config.Config
	backend *server.Backend
	router  http.Handler
	gcTask  *monitor.TaskMonitor
}

func main() {
	configPath := flag.String("config", os.Getenv("MOLDWATCH_CONFIG"), "path to a YAML config file")
	seedPath := flag.String("seed", "", "JSON seed file loaded into the memory or badger store at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moldwatch: %v\n", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moldwatch: %v\n", err)
		os.Exit(1)
	}
	logging.Init(level, cfg.Log.JSON)

	if err := run(cfg, *seedPath); err != nil {
		logging.Component("server").Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// newApp opens the store, loads the optional seed file and builds the router.
func newApp(ctx context.Context, cfg *config.Config, seedPath string) (*app, error) {
	log := logging.Component("server")

	backend, err := server.InitializeStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if seedPath != "" {
		if err := seed(ctx, backend, seedPath); err != nil {
			backend.Store.Close()
			return nil, err
		}
	}

	reg := server.NewRegistry()
	svc := server.InitializeService(cfg, backend.Store, reg)

	a := &app{cfg: cfg, backend: backend}
	deps := server.Deps{
		Service:  svc,
		Store:    backend.Store,
		Gatherer: reg,
		Port:     cfg.Server.Port,
	}
	if backend.Badger != nil {
		a.gcTask = monitor.NewTaskMonitor("badger_gc", 4*config.BadgerGCInterval)
		deps.Tasks = append(deps.Tasks, a.gcTask)
		deps.Disk = monitor.NewDiskMonitor(backend.DataDir)
	}
	a.router = server.NewRouter(deps)

	log.Info("moldwatch ready",
		"driver", cfg.Store.Driver,
		"fallback", cfg.Fallback.Enabled,
		"max_raw_span", cfg.Query.MaxRawSpan,
		"row_cap", cfg.Query.RowCap)
	return a, nil
}

func seed(ctx context.Context, backend *server.Backend, path string) error {
	if backend.Loader == nil {
		return errors.New("-seed is only supported for the memory and badger drivers")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	result, err := export.NewImporter(backend.Loader).ImportFromJSON(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to import seed file: %w", err)
	}
	logging.Component("server").Info("seed data imported",
		"rows", result.RowsImported,
		"mappings", result.MappingsImported,
		"tables", len(result.Tables),
		"skipped", len(result.Errors))
	return nil
}

func run(cfg *config.Config, seedPath string) error {
	log := logging.Component("server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, seedPath)
	if err != nil {
		return err
	}
	defer a.backend.Store.Close()

	var wg sync.WaitGroup
	if a.backend.Badger != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			server.RunBadgerGC(ctx, a.backend.Badger, config.BadgerGCInterval, a.gcTask)
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", "http://localhost:"+cfg.Server.Port)
		log.Info("endpoints", "monitoring", "GET /api/monitoring", "health", "GET /api/health", "metrics", "GET /metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// Cancel first so background tasks stop before we wait on them
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown warning", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Warn("some background tasks did not stop in time")
	}

	log.Info("moldwatch server exited cleanly")
	return nil
}
