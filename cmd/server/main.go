package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	caseserver "github.com/Ashenafi-pixel/gamecrafter-case-server"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/cache"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/config"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/logging"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/metrics"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/purchase"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/server"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store/memstore"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store/pgstore"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env so DATABASE_URL is set: cwd .env, or project root .env/.env.local
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	_ = godotenv.Load("../.env.local")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics.Init()

	st, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []purchase.Option{}
	var limiter server.RateLimiter
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ReplayTTL)
		if err != nil {
			return err
		}
		defer rc.Close()
		opts = append(opts, purchase.WithReplayCache(rc))
		limiter = rc
		logger.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	}

	mgr := purchase.NewManager(st, purchase.Settings{
		Profiles:    cfg.Profiles(),
		Policy:      cfg.Policy(),
		MaxQuantity: cfg.Engine.MaxQuantity,
	}, logger, opts...)

	return server.New(cfg, mgr, limiter, logger).Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.Storage.Driver == "memory" {
		st, err := openMemory(cfg.Storage.DataDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}

	pool, err := caseserver.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	iso, err := pgstore.ParseIsolation(cfg.Database.Isolation)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	st := pgstore.New(pool, iso, cfg.Database.MaxRetries)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}

// openMemory seeds an in-memory store from dataDir: cases.json through the
// case catalog and accounts.json, if present.
func openMemory(dataDir string, logger *zap.Logger) (*memstore.Store, error) {
	st := memstore.New()
	list := cases.NewCatalog(dataDir).List()
	for _, c := range list {
		st.PutCase(c)
	}
	accounts, err := ledger.LoadAccountsFile(filepath.Join(dataDir, "accounts.json"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("no accounts.json in data dir; every purchase will fail with account not found",
			zap.String("data_dir", dataDir))
	case err != nil:
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	for _, a := range accounts {
		st.PutAccount(a)
	}
	logger.Warn("using in-memory storage; state is lost on restart",
		zap.Int("cases", len(list)), zap.Int("accounts", len(accounts)))
	return st, nil
}
