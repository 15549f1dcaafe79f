package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/quickvest/vesting-adapter/internal/api"
	"github.com/quickvest/vesting-adapter/internal/gateway"
	"github.com/quickvest/vesting-adapter/internal/jobs"
	"github.com/quickvest/vesting-adapter/internal/ledger"
	"github.com/quickvest/vesting-adapter/internal/publisher"
	"github.com/quickvest/vesting-adapter/internal/rate"
	"github.com/quickvest/vesting-adapter/internal/relay"
	internalsecrets "github.com/quickvest/vesting-adapter/internal/secrets"
	"github.com/quickvest/vesting-adapter/internal/signer"
	"github.com/quickvest/vesting-adapter/internal/store"
	"github.com/quickvest/vesting-adapter/internal/vesting"
	"github.com/quickvest/vesting-adapter/pkg/config"
	"github.com/quickvest/vesting-adapter/pkg/logger"
	"github.com/quickvest/vesting-adapter/pkg/secrets"
	"github.com/quickvest/vesting-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [vesting-adapter]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Custodian signing secret ---
	signingSecret := cfg.SigningSecretDev
	if cfg.SigningSecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		keyCache := secrets.NewCache[internalsecrets.SigningKey](cfg.CacheTTL)
		stopCleaner := make(chan struct{})
		defer close(stopCleaner)
		go keyCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

		resolver := internalsecrets.NewResolver(logg.Desugar(), awsProvider, keyCache)
		key, err := resolver.Resolve(ctx, cfg.SigningSecretName)
		if err != nil {
			logg.Fatalw("failed to resolve custodian signing secret", "error", err)
		}
		signingSecret = key.Secret
		if key.Account != "" {
			cfg.CustodianAddress = key.Account
		}
	}
	if signingSecret == "" {
		logg.Fatal("no custodian signing secret configured (SIGNING_SECRET_NAME or SETTLE_SIGNING_SECRET)")
	}

	sgn, err := signer.New(cfg.CustodianAddress, []byte(signingSecret))
	if err != nil {
		logg.Fatalw("failed to init signer", "error", err)
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.OutboundSubject, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Rate limiter for settlement node calls ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 10,
		Burst:             20,
		Cooldown:          1 * time.Second,
	})

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Ledger, hydrated from the durable store ---
	ldg := ledger.New(logg.Desugar())
	if snap, err := st.LoadPoolSnapshot(ctx); err != nil {
		logg.Fatalw("failed to load pool snapshot", "error", err)
	} else if snap != nil {
		tokens, err := st.LoadTokens(ctx)
		if err != nil {
			logg.Fatalw("failed to load tokens", "error", err)
		}
		if err := ldg.Restore(snap.TotalFunded, snap.AvailableBalance, tokens); err != nil {
			logg.Fatalw("persisted ledger state is inconsistent", "error", err)
		}
		logg.Infow("ledger restored",
			"total_funded", snap.TotalFunded.String(),
			"tokens", len(tokens))
	}

	// --- Settlement gateway + fee feed ---
	gw := gateway.NewClient(logg.Desugar(), cfg.SettleNodeURL, cfg.PoolAddress, rateMgr)

	var feeHint relay.FeeHint
	var feeFeed *gateway.FeeFeed
	if cfg.SettleFeeFeedURL != "" {
		feeFeed = gateway.NewFeeFeed(logg.Desugar(), cfg.SettleFeeFeedURL, 30*time.Second)
		go feeFeed.Start(ctx)
		feeHint = feeFeed
	} else {
		logg.Warn("SETTLE_FEE_FEED_URL not configured; fee price fetched per submission")
	}

	// --- Relay (single custodian sequence stream) ---
	rly := relay.New(logg.Desugar(), gw, sgn, feeHint, cfg.GasLimit)

	// --- Vesting services ---
	svc := vesting.NewService(cfg, logg.Desugar(), ldg, rly, gw, st, pub)

	// --- Reconciler (funding watcher + drift audit) ---
	reconciler := jobs.NewReconciler(logg.Desugar(), ldg, gw, st, pub, cfg.ReconcileInterval)
	go reconciler.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	handler := api.NewHandler(logg.Desugar(), svc, cfg.CustodianAddress)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[vesting-adapter] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"settle_node", cfg.SettleNodeURL,
		"pool", cfg.PoolAddress,
		"custodian", cfg.CustodianAddress)

	<-ctx.Done()
	logg.Info("shutting down [vesting-adapter]...")

	reconciler.Stop()
	if feeFeed != nil {
		feeFeed.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
