package server

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nicktill/moldwatch/pkg/config"
	"github.com/nicktill/moldwatch/pkg/logging"
	"github.com/nicktill/moldwatch/pkg/monitoring"
	"github.com/nicktill/moldwatch/pkg/storage"
	"github.com/nicktill/moldwatch/pkg/storage/badger"
	"github.com/nicktill/moldwatch/pkg/storage/memory"
	"github.com/nicktill/moldwatch/pkg/storage/sqlstore"
)

// Backend is the opened data store plus the extras some drivers expose.
type Backend struct {
	Store storage.Store

	// Loader is set for the embedded drivers, which can be seeded.
	Loader storage.Loader

	// Badger and DataDir are set for the badger driver only.
	Badger  *badger.Storage
	DataDir string
}

// InitializeStore opens the store selected by cfg.Driver.
func InitializeStore(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	log := logging.Component("server")

	switch cfg.Driver {
	case "postgres", "mysql":
		store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: cfg.Driver, DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return &Backend{Store: store}, nil

	case "badger":
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		log.Info("initializing badger storage", "dir", cfg.DataDir, "max_memory_mb", cfg.MaxMemoryMB)
		store, err := badger.New(badger.Config{Path: cfg.DataDir, MaxMemoryMB: cfg.MaxMemoryMB})
		if err != nil {
			return nil, err
		}
		return &Backend{Store: store, Loader: store, Badger: store, DataDir: cfg.DataDir}, nil

	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		store := memory.New()
		return &Backend{Store: store, Loader: store}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// NewRegistry returns a Prometheus registry with the Go runtime and
// process collectors installed.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// InitializeService builds the monitoring query service from cfg.
func InitializeService(cfg *config.Config, store storage.Store, reg prometheus.Registerer) *monitoring.Service {
	opts := monitoring.Options{
		DefaultWindow:    cfg.Query.DefaultWindow,
		MaxRawSpan:       cfg.Query.MaxRawSpan,
		RowCap:           cfg.Query.RowCap,
		FetchTimeout:     cfg.Query.FetchTimeout,
		MappingTimeout:   cfg.Query.MappingTimeout,
		FetchConcurrency: cfg.Query.FetchConcurrency,
		MaxShards:        cfg.Query.MaxShards,
		Fallback: monitoring.FallbackOptions{
			Enabled: cfg.Fallback.Enabled,
			Points:  cfg.Fallback.Points,
		},
	}

	if cfg.Fallback.Enabled {
		logging.Component("server").Warn("synthetic fallback enabled: store outages are served as placeholder data flagged synthetic=true")
	}
	return monitoring.NewService(store, opts, monitoring.NewMetrics(reg))
}
