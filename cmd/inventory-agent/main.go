package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/graviton-inventory/internal/api"
	"github.com/miradorstack/graviton-inventory/internal/cache"
	"github.com/miradorstack/graviton-inventory/internal/compat"
	"github.com/miradorstack/graviton-inventory/internal/config"
	"github.com/miradorstack/graviton-inventory/internal/engine"
	"github.com/miradorstack/graviton-inventory/internal/eventbus"
	"github.com/miradorstack/graviton-inventory/internal/metrics"
	"github.com/miradorstack/graviton-inventory/internal/probe"
	"github.com/miradorstack/graviton-inventory/internal/repo"
	"github.com/miradorstack/graviton-inventory/internal/services"
	"github.com/miradorstack/graviton-inventory/internal/summary"
	"github.com/miradorstack/graviton-inventory/internal/utils"
)

func main() {
	var (
		configPath string
		scanID     string
		serve      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&scanID, "scan-id", "", "Scan identifier for a one-shot run (defaults to a timestamp)")
	flag.BoolVar(&serve, "serve", false, "Serve the gRPC Inventory API instead of running once")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheProvider cache.Provider = cache.NewMemoryProvider()
	if cfg.Cache.Enabled {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, using in-process cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	inventoryAPI := repo.NewInventoryAPI(repo.InventoryAPIConfig{
		BaseURL:     cfg.Inventory.BaseURL,
		APIKey:      cfg.Inventory.APIKey,
		Timeout:     cfg.Inventory.Timeout,
		ObjectsPath: cfg.Inventory.ObjectsPath,
		RulesPath:   cfg.Inventory.RulesPath,
		RulesTTL:    cfg.Cache.RulesTTL,
	}, cacheProvider)

	store, closeStore, err := buildStore(ctx, cfg, inventoryAPI)
	if err != nil {
		logger.Error("failed to initialise record store", slog.String("driver", cfg.Store.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	rulePack, err := compat.LoadRulePack(cfg.Rules.Path)
	if err != nil {
		logger.Error("failed to load rule pack", slog.String("path", cfg.Rules.Path), slog.Any("error", err))
		os.Exit(1)
	}
	// Remote rules override the local pack, which overrides the built-in table.
	var ruleSources []compat.RuleSource
	if cfg.Inventory.RemoteRules && cfg.Inventory.BaseURL != "" {
		ruleSources = append(ruleSources, inventoryAPI)
	}
	if len(rulePack) > 0 {
		ruleSources = append(ruleSources, compat.StaticRules(rulePack))
	}

	runner := probe.NewShellRunner(logger, cfg.Detection.ProbeTimeout)
	opts := engine.Options{
		Runner:       runner,
		RuleSources:  ruleSources,
		Store:        store,
		Concurrency:  cfg.Detection.Concurrency,
		ProbeTimeout: cfg.Detection.ProbeTimeout,
		Logger:       logger,
	}
	if cfg.Detection.ShellFS {
		opts.Paths = probe.NewShellFS(runner, cfg.Detection.ProbeTimeout)
	}
	if cfg.Detection.NativeProcesses {
		opts.Processes = probe.NativeProcessLister{}
	}
	if cfg.Detection.HostFacts {
		opts.Host = probe.NativeHostInspector{}
	}
	detector, err := engine.New(opts)
	if err != nil {
		logger.Error("failed to build detection engine", slog.Any("error", err))
		os.Exit(1)
	}

	var publisher summary.Publisher
	if cfg.Events.NATSURL != "" {
		natsPublisher, err := eventbus.NewPublisher(cfg.Events.NATSURL, cfg.Events.Subject, logger)
		if err != nil {
			logger.Warn("summary publishing disabled", slog.Any("error", err))
		} else {
			publisher = natsPublisher
			defer natsPublisher.Close()
		}
	}

	service := services.NewInventoryService(logger, detector, summary.NewReporter(logger, publisher))

	if !serve {
		if err := runOnce(ctx, service, scanID); err != nil {
			logger.Error("detection failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	logger.Info("starting graviton-inventory", slog.String("address", cfg.Server.Address))

	server, err := api.NewServer(cfg.Server, service)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("graviton-inventory stopped")
}

// runOnce executes a single detection and writes the run result to stdout as JSON.
func runOnce(ctx context.Context, service *services.InventoryService, scanID string) error {
	if scanID == "" {
		scanID = "scan-" + time.Now().UTC().Format("20060102T150405Z")
	}
	result, _, err := service.Run(ctx, scanID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func buildStore(ctx context.Context, cfg *config.Config, inventoryAPI *repo.InventoryAPI) (engine.Store, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case config.StoreHTTP:
		return inventoryAPI, noop, nil
	case config.StorePostgres:
		pg, err := repo.OpenPostgres(ctx, repo.PostgresConfig{
			DSN:   cfg.Store.PostgresDSN,
			Table: cfg.Store.Table,
		})
		if err != nil {
			return nil, noop, utils.NewAppError("store.postgres", "connect", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, noop, utils.NewAppError("store.postgres", "ensure schema", err)
		}
		return pg, func() { _ = pg.Close() }, nil
	default:
		return nil, noop, nil
	}
}
