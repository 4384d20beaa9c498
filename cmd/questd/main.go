package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"questchain/config"
	"questchain/core"
	"questchain/crypto"
	"questchain/indexer"
	"questchain/native/common"
	"questchain/native/quest"
	"questchain/observability"
	"questchain/observability/logging"
	telemetry "questchain/observability/otel"
	"questchain/rpc"
	"questchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	listen := flag.String("listen", "", "Override the RPC listen address")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*listen) != "" {
		cfg.ListenAddress = strings.TrimSpace(*listen)
	}

	logger := logging.Setup("questd", cfg.Environment, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("questd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "questd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Enabled,
		Traces:      cfg.Telemetry.Enabled,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	opts, err := nodeOptions(cfg, logger)
	if err != nil {
		return err
	}
	node, err := core.NewNode(db, opts)
	if err != nil {
		return err
	}
	genesis, err := buildGenesis(cfg.Genesis)
	if err != nil {
		return err
	}
	applied, err := node.ApplyGenesis(genesis)
	if err != nil {
		return err
	}
	if applied {
		logger.Info("genesis applied", "tokens", len(genesis.Tokens), "balances", len(genesis.Balances))
	}

	node.Subscribe(observability.Quests())

	var ix *indexer.Indexer
	if cfg.Indexer.Driver != "" {
		sqlDB, err := indexer.Open(cfg.Indexer.Driver, indexerDSN(cfg))
		if err != nil {
			return err
		}
		ix, err = indexer.New(sqlDB, logger.With("component", "indexer"))
		if err != nil {
			return err
		}
		node.Subscribe(ix)
	}

	server := rpc.NewServer(node, rpc.Options{
		Logger:             logger,
		Indexer:            ix,
		RateLimitPerMinute: cfg.RPC.RateLimitPerMinute,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		JWTSecret:          cfg.RPC.JWTKey(),
		JWTIssuer:          cfg.RPC.JWTIssuer,
		SignatureTTL:       time.Duration(cfg.RPC.SignatureTTLSeconds) * time.Second,
		ReadHeaderTimeout:  time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
	})
	logger.Info("questd starting",
		"network", cfg.NetworkName,
		"storage", cfg.Storage.Backend,
		"randomness", cfg.Quest.Randomness,
		"paused", cfg.Quest.Paused)
	return server.Start(ctx, cfg.ListenAddress)
}

func openStore(cfg *config.Config) (storage.Database, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.bolt"), nil)
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// indexerDSN places relative sqlite files under the data directory.
func indexerDSN(cfg *config.Config) string {
	dsn := strings.TrimSpace(cfg.Indexer.DSN)
	if cfg.Indexer.Driver != "sqlite" || filepath.IsAbs(dsn) || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return filepath.Join(cfg.DataDir, dsn)
}

func nodeOptions(cfg *config.Config, logger *slog.Logger) (core.Options, error) {
	opts := core.Options{
		Logger: logger,
		Limits: quest.Limits{
			MaxTitleLength:       cfg.Quest.MaxTitleLength,
			MaxDescriptionLength: cfg.Quest.MaxDescriptionLength,
		},
	}
	pauses := common.NewPauseSet()
	if cfg.Quest.Paused {
		pauses.Set(quest.ModuleName, true)
	}
	opts.Pauses = pauses
	switch cfg.Quest.Randomness {
	case "timestamp":
		opts.Randomness = quest.TimestampRandomness{}
	case "beacon":
		seed := cfg.Quest.BeaconBytes()
		if len(seed) == 0 {
			return core.Options{}, errors.New("beacon randomness requires a BeaconSeed")
		}
		opts.Randomness = quest.BeaconRandomness{Beacon: seed}
	default:
		return core.Options{}, fmt.Errorf("unknown randomness %q", cfg.Quest.Randomness)
	}
	return opts, nil
}

func buildGenesis(cfg config.GenesisConfig) (core.Genesis, error) {
	out := core.Genesis{}
	for _, tok := range cfg.Tokens {
		out.Tokens = append(out.Tokens, core.GenesisToken{Symbol: tok.Symbol, Name: tok.Name, Decimals: tok.Decimals})
	}
	for i, bal := range cfg.Balances {
		addr, err := crypto.ParseAddress(bal.Address)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("genesis balance %d: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(bal.Amount), 10)
		if !ok {
			return core.Genesis{}, fmt.Errorf("genesis balance %d: invalid amount %q", i, bal.Amount)
		}
		out.Balances = append(out.Balances, core.GenesisBalance{Address: addr, Token: bal.Token, Amount: amount})
	}
	return out, nil
}
