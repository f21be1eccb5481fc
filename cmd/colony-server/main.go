// Package main is the entry point for the colony server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/catalog"
	"github.com/MRamiBalles/colony/server/internal/engine"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/infra/cache"
	"github.com/MRamiBalles/colony/server/internal/infra/names"
	"github.com/MRamiBalles/colony/server/internal/infra/storage"
	"github.com/MRamiBalles/colony/server/internal/network"
	"github.com/MRamiBalles/colony/server/internal/platform/config"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
	"github.com/MRamiBalles/colony/server/internal/platform/metrics"
)

// backend is the persistence chosen by store_driver.
type backend struct {
	store  engine.SaveStore
	events storage.EventRepository // nil for file and none
	db     *sql.DB
}

func (b backend) Close() {
	if b.db != nil {
		b.db.Close()
	}
}

func openBackend(cfg *config.Config, slot string) (backend, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		db, err := storage.InitSQLite(cfg.StoreDSN)
		if err != nil {
			return backend{}, err
		}
		return backend{
			store:  storage.NewSQLiteSaveStore(db, slot),
			events: storage.NewSQLiteEventRepository(db),
			db:     db,
		}, nil
	case "postgres":
		db, err := storage.OpenPostgres(cfg.StoreDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
		if err != nil {
			return backend{}, err
		}
		return backend{
			store:  storage.NewPostgresSaveStore(db, slot),
			events: storage.NewPostgresEventRepository(db),
			db:     db,
		}, nil
	case "file":
		return backend{store: storage.NewFileSaveStore(cfg.StoreDSN)}, nil
	}
	return backend{}, nil
}

func loadConfig(profile, path string) (*config.Config, error) {
	cfg, err := config.Profile(profile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if cfg, err = config.Load(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func main() {
	profile := flag.String("profile", "default", "config profile: default, fast or low")
	configPath := flag.String("config", "", "YAML config file applied over the profile")
	catalogPath := flag.String("catalog", "", "catalog file, defaults to the built-in one")
	slot := flag.String("slot", storage.DefaultSlot, "save slot")
	fresh := flag.Bool("fresh", false, "ignore any existing save")
	flag.Parse()

	cfg, err := loadConfig(*profile, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer appLogger.Sync()
	appLogger.Info("Initializing colony server", zap.String("profile", *profile), zap.String("store", cfg.StoreDriver))

	if err := run(cfg, appLogger, *catalogPath, *slot, *fresh); err != nil {
		appLogger.Error("Server failed", zap.Error(err))
		appLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *logger.Logger, catalogPath, slot string, fresh bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	cat, err := catalog.Default()
	if catalogPath != "" {
		cat, err = catalog.LoadFile(catalogPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	appLogger.Info("Opening store...", zap.String("driver", cfg.StoreDriver))
	be, err := openBackend(cfg, slot)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer be.Close()

	var persister events.EventPersister
	var recap network.RecapSource
	if be.events != nil {
		persister = storage.NewJournalPersister(be.events, slot)
		recap = storage.NewRecap(be.events)
	}

	var viewCache engine.ViewCache
	if cfg.RedisAddr != "" {
		client, err := cache.NewGoRedis(ctx, cfg.RedisAddr, cfg.RedisPoolSize)
		if err != nil {
			appLogger.Warn("Redis unavailable, view cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			viewCache = cache.NewColonyCache(client, cfg.CacheTTL)
		}
	}

	var nameSource engine.NameSource = names.NewStatic()
	if cfg.NamesURL != "" {
		nameSource = names.Fallback{
			Primary:   names.NewHTTPSource(cfg.NamesURL, cfg.NamesRPS),
			Secondary: names.NewStatic(),
			OnError: func(err error) {
				appLogger.Warn("Name service failed, using built-in names", zap.Error(err))
			},
		}
	}

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(appLogger, m, cfg.MaxClients, cfg.ClientSendBuffer*4)

	appLogger.Info("Bootstrapping Engine...")
	eng, err := engine.New(engine.Deps{
		Config:    cfg,
		Catalog:   cat,
		Sink:      hub,
		Store:     be.store,
		Names:     nameSource,
		Cache:     viewCache,
		Persister: persister,
		Logger:    appLogger,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	hub.Follow(eng.Bus())

	if fresh && be.store != nil {
		if err := be.store.Clear(ctx); err != nil {
			appLogger.Warn("Failed to clear previous save", zap.Error(err))
		}
	}
	if !eng.Load(ctx) {
		appLogger.Info("No usable save, founding a new colony", zap.Int("people", cfg.InitialPeople))
		if err := eng.Found(); err != nil {
			return fmt.Errorf("failed to found colony: %w", err)
		}
	}

	go hub.Run(ctx)
	eng.Start(ctx)

	// Automated save routine
	if be.store != nil && cfg.AutosaveEvery > 0 {
		go func() {
			saveTicker := time.NewTicker(cfg.AutosaveEvery)
			defer saveTicker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-saveTicker.C:
					if err := eng.Save(ctx); err != nil {
						appLogger.Error("Autosave failed", zap.Error(err))
					}
				}
			}
		}()
	}

	mux := http.NewServeMux()
	network.NewCommandAPI(ctx, eng, hub, appLogger, network.APIOptions{
		MessagesPerSecond: cfg.MaxMessagesPerSecond,
		SendBuffer:        cfg.ClientSendBuffer,
	}).RegisterRoutes(mux)
	network.NewJournalHandler(eng, recap, slot, appLogger).RegisterRoutes(mux)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP API & WS Server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-eng.Done():
		if err := eng.Err(); err != nil {
			return fmt.Errorf("simulation stopped: %w", err)
		}
	}

	appLogger.Info("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	eng.Stop()
	if be.store != nil {
		if err := eng.Save(shutdownCtx); err != nil {
			appLogger.Error("Final save failed", zap.Error(err))
		}
	}
	cancel()
	return nil
}
