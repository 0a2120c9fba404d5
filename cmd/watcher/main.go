package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/maruthiprithivi/chainwatch/internal/collector"
	"github.com/maruthiprithivi/chainwatch/internal/control"
	"github.com/maruthiprithivi/chainwatch/internal/core/config"
	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	redisclient "github.com/maruthiprithivi/chainwatch/internal/infra/redis"
	"github.com/maruthiprithivi/chainwatch/internal/infra/storage/postgres"
	"github.com/maruthiprithivi/chainwatch/internal/metrics"
	"github.com/maruthiprithivi/chainwatch/internal/rpc/bitcoin"
	"github.com/maruthiprithivi/chainwatch/internal/rpc/solana"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	slog.Info("logger initialized", "level", slogLevel.String())

	db, err := postgres.NewDB(postgres.Config{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := postgres.NewStore(db)

	var redisClient *redisclient.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redisclient.NewClient(redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Warn("failed to connect to redis, Source Router preference will not persist across restarts", "error", err)
		} else {
			defer redisClient.Close()
		}
	}

	collectors := make(map[domain.ChainID]collector.Config)

	var bitcoinRouter *bitcoin.Router
	if *cfg.Bitcoin.Enabled {
		var bitcoinCfg collector.Config
		bitcoinCfg, bitcoinRouter = buildBitcoinCollector(cfg, store, redisClient)
		collectors[domain.ChainBitcoin] = bitcoinCfg
	}
	if *cfg.Solana.Enabled {
		collectors[domain.ChainSolana] = buildSolanaCollector(cfg, store)
	}

	if len(collectors) == 0 {
		slog.Error("no chains enabled in configuration")
		os.Exit(1)
	}

	cycleInterval := time.Duration(cfg.Engine.CycleIntervalSeconds) * time.Second
	for chainID, c := range collectors {
		c.CycleInterval = cycleInterval
		collectors[chainID] = c
	}

	supervisor := control.New(control.SupervisorConfig{
		Collectors:   collectors,
		Sink:         store,
		MaxDuration:  time.Duration(cfg.Engine.MaxDurationMinutes) * time.Minute,
		MaxSizeBytes: int64(cfg.Engine.MaxSizeGB * 1e9),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := control.NewServer(supervisor, ctx, cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting control-plane server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
			slog.Error("control-plane server failed", "error", err)
		}
	}()

	if result, reason := supervisor.Start(ctx); result != control.StartAccepted {
		slog.Error("failed to start collection", "result", result, "reason", reason)
		os.Exit(1)
	}
	slog.Info("collection started", "chains", supervisor.Chains())

	if bitcoinRouter != nil {
		go pollRouterPreference(ctx, bitcoinRouter)
	}

	sig := <-sigChan
	slog.Info("received signal, shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	supervisor.Stop()
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("error shutting down control-plane server", "error", err)
	}

	slog.Info("watcher stopped gracefully")
}

// pollRouterPreference reports the Source Router's current sticky
// preference as a gauge (0=local, 1=public) until ctx is canceled.
func pollRouterPreference(ctx context.Context, router *bitcoin.Router) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		value := 0.0
		if router.Preferred() == bitcoin.PreferPublic {
			value = 1.0
		}
		metrics.BitcoinRouterPreference.Set(value)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildBitcoinCollector(cfg *config.AppConfig, store *postgres.Store, redisClient *redisclient.Client) (collector.Config, *bitcoin.Router) {
	local := bitcoin.NewJSONRPCClient(cfg.Bitcoin.LocalRPC.URL, cfg.Bitcoin.LocalRPC.User, cfg.Bitcoin.LocalRPC.Password)
	public := bitcoin.NewRESTClient(cfg.Bitcoin.PublicRPC.URL)

	initial := bitcoin.PreferPublic
	if cfg.Bitcoin.UseLocalNode {
		initial = bitcoin.PreferLocal
	}

	var prefStore bitcoin.PreferenceStore
	if redisClient != nil {
		prefStore = redisClient
	}
	router := bitcoin.NewRouter(local, public, prefStore, initial)

	return collector.Config{
		ChainID:       domain.ChainBitcoin,
		Client:        router,
		Cursors:       store,
		Sink:          store,
		Mode:          cfg.Bitcoin.Mode,
		StartPosition: domain.Position(max64(cfg.Bitcoin.StartPosition, 0)),
		Parallelism:   cfg.Bitcoin.Parallelism,
		TxLimit:       cfg.Bitcoin.TxLimit,
	}, router
}

func buildSolanaCollector(cfg *config.AppConfig, store *postgres.Store) collector.Config {
	client := solana.NewClient(cfg.Solana.RPC.URL)
	return collector.Config{
		ChainID:     domain.ChainSolana,
		Client:      client,
		Cursors:     store,
		Sink:        store,
		Mode:        domain.ModeTip,
		Parallelism: cfg.Solana.Parallelism,
		TxLimit:     cfg.Solana.TxLimit,
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
