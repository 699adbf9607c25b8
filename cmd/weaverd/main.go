// Command weaverd is the Weaver trading platform daemon: it wires
// together the Event Log, Bar Repository, Run Manager, Domain Router,
// order projection, SSE Broadcaster and HTTP API into one process (spec
// §4's component list), the same way cmd/feedsim used to wire together
// the market engine, order books and session manager.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/weaverhq/weaver/internal/api"
	"github.com/weaverhq/weaver/internal/archive"
	"github.com/weaverhq/weaver/internal/bars"
	"github.com/weaverhq/weaver/internal/config"
	"github.com/weaverhq/weaver/internal/domainrouter"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/exchange"
	"github.com/weaverhq/weaver/internal/exchange/live"
	"github.com/weaverhq/weaver/internal/exchange/mock"
	"github.com/weaverhq/weaver/internal/feed"
	"github.com/weaverhq/weaver/internal/orders"
	"github.com/weaverhq/weaver/internal/persist"
	"github.com/weaverhq/weaver/internal/runmanager"
	"github.com/weaverhq/weaver/internal/sse"
	"github.com/weaverhq/weaver/internal/strategy"

	"github.com/weaverhq/weaver/plugins/strategies/smacrossover"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("weaverd starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	// Optional Redis: backs both the Event Log's cross-process notify and
	// the Domain Router's dedup table when weaverd runs as more than one
	// process.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("parse redis url: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer rdb.Close()
	}

	// Event Log: Mongo+Redis durable backend, or in-memory when no Mongo
	// URI is configured (single-process development/test mode).
	var (
		evLog eventlog.Log
		store *persist.Store
	)
	if cfg.MongoURI != "" {
		var err error
		store, err = persist.NewStore(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer store.Close(context.Background())

		mongoLog, err := eventlog.NewMongoLog(ctx, store.DB(), rdb, cfg.NodeID)
		if err != nil {
			log.Fatalf("event log init failed: %v", err)
		}
		evLog = mongoLog
	} else {
		log.Println("MONGO_URI not set: running with an in-memory Event Log (no restart durability)")
		evLog = eventlog.NewMemLog()
	}

	// Bar Repository: required for backtest runs. weaverd still starts
	// without it (paper/live-only deployments don't need historical
	// bars), but the Run Manager will fail any backtest Start call.
	var barRepo bars.Repository
	if cfg.PostgresDSN != "" {
		repo, err := bars.NewPostgresRepository(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres connection failed: %v", err)
		}
		barRepo = repo
	} else {
		log.Println("POSTGRES_DSN not set: backtest runs will fail, paper/live runs are unaffected")
	}

	// Run/Order repositories: GORM over MySQL, or in-memory when no DSN
	// is configured (restart recovery is then moot).
	var (
		runRepo   runmanager.Repository
		orderRepo orders.Repository
	)
	if cfg.MySQLDSN != "" {
		db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("mysql connection failed: %v", err)
		}

		gormRuns := runmanager.NewGormRepository(db)
		if err := gormRuns.Migrate(); err != nil {
			log.Fatalf("run repository migration failed: %v", err)
		}
		runRepo = gormRuns

		gormOrders := orders.NewGormRepository(db)
		if err := gormOrders.Migrate(); err != nil {
			log.Fatalf("order repository migration failed: %v", err)
		}
		orderRepo = gormOrders
	} else {
		log.Println("MYSQL_DSN not set: running with in-memory run/order repositories (no restart recovery)")
		runRepo = runmanager.NewMemRepository()
		orderRepo = orders.NewMemRepository()
	}

	// Strategy Loader: scans the plugin directory for metadata, then
	// registers the factories the binary actually links.
	strategies, err := strategy.NewLoader(cfg.StrategyPluginDir)
	if err != nil {
		log.Fatalf("strategy loader init failed: %v", err)
	}
	strategies.Register(smacrossover.Metadata.ID, smacrossover.New)

	// Exchange Loader: same pattern as the Strategy Loader. The mock
	// adapter's constructor takes a seed rather than Credentials, so it's
	// registered behind a small closure; live.New already matches
	// exchange.Factory directly.
	exchanges, err := exchange.NewLoader(cfg.ExchangePluginDir)
	if err != nil {
		log.Fatalf("exchange loader init failed: %v", err)
	}
	exchanges.RegisterBuiltin(mock.Metadata, func(exchange.Credentials) exchange.Adapter {
		return mock.New(cfg.ExchangeSeed)
	})
	exchanges.RegisterBuiltin(live.Metadata, live.New)

	creds := exchange.Credentials{
		"base_url":   cfg.LiveBaseURL,
		"api_key":    cfg.LiveAPIKey,
		"api_secret": cfg.LiveAPISecret,
	}
	liveAdapter, err := exchanges.Load(cfg.ExchangeAdapter, creds)
	if err != nil {
		log.Fatalf("exchange adapter %q load failed: %v", cfg.ExchangeAdapter, err)
	}
	log.Printf("shared exchange adapter: %s", cfg.ExchangeAdapter)

	// Run Manager: owns run lifecycle and the live runContext map.
	runs := runmanager.NewManager(runmanager.Config{
		Log:         evLog,
		BarRepo:     barRepo,
		Strategies:  strategies,
		LiveAdapter: liveAdapter,
		Repo:        runRepo,
		NodeID:      cfg.NodeID,
	})
	if err := runs.Recover(ctx); err != nil {
		log.Fatalf("run recovery failed: %v", err)
	}

	// Domain Router: fans Event Log envelopes out to the right strategy
	// runner / exchange adapter translation for each run's mode.
	var dedup domainrouter.Dedup
	if rdb != nil {
		dedup = domainrouter.NewRedisDedup(rdb, 24*time.Hour)
	} else {
		dedup = domainrouter.NewMemDedup()
	}
	router := domainrouter.New(evLog, runs, dedup, cfg.NodeID)
	go func() {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("domain router stopped: %v", err)
		}
	}()

	// Order projection: folds order.* events into queryable order rows.
	projector := orders.NewProjector(evLog, orderRepo)
	go projector.Run(ctx)

	// Terminal order retention pruner.
	go orders.RunRetention(ctx, orderRepo, cfg.OrderRetentionDays)

	// SSE Broadcaster: fans Event Log envelopes out to connected HTTP
	// clients.
	broadcaster := sse.NewBroadcaster(sse.Config{
		Log:               evLog,
		HeartbeatInterval: cfg.SSEHeartbeatInterval,
		ClientBufferSize:  cfg.SSEClientBufferSize,
	})
	go broadcaster.Run(ctx)

	// Optional raw feed: an ITCH-style binary relay of the same order
	// events, for clients that want the lower-overhead framing over
	// JSON SSE.
	feedMgr := feed.NewManager(cfg.SSEClientBufferSize)
	feedRelay := feed.NewRelay(evLog, feedMgr)
	go feedRelay.Run(ctx)

	// Event Log archiver: opt-in, requires both a staging directory and a
	// Mongo-backed Event Log (there's nothing to archive out of MemLog).
	if cfg.ArchiveDir != "" && store != nil {
		archiver := archive.New(store.DB(), cfg.ArchiveDir, cfg.ArchiveMaxGB, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours)
		if cfg.S3Bucket != "" {
			a, err := archiver.WithS3(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				log.Fatalf("s3 archiver init failed: %v", err)
			}
			archiver = a
		}
		go archiver.Run(ctx)
	}

	mux := http.NewServeMux()
	apiServer := api.NewServer(runs, orderRepo, barRepo, evLog, broadcaster)
	apiServer.Register(mux)
	mux.HandleFunc("/feed", feed.Handler(feedMgr))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := runs.Shutdown(shutdownCtx); err != nil {
			log.Printf("run manager shutdown: %v", err)
		}
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("HTTP API listening on http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	log.Println("weaverd stopped")
}
