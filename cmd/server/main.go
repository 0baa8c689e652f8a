package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	letterhandler "courier/internal/letter/handler"
	lettermetrics "courier/internal/letter/metrics"
	letterservice "courier/internal/letter/service"
	letterstore "courier/internal/letter/store/letter"
	"courier/internal/platform/config"
	"courier/internal/platform/httpserver"
	"courier/internal/platform/logger"
	pgplatform "courier/internal/platform/postgres"
	redisplatform "courier/internal/platform/redis"
	routinghandler "courier/internal/routing/handler"
	routingmetrics "courier/internal/routing/metrics"
	"courier/internal/routing/ports"
	routingservice "courier/internal/routing/service"
	deliverystore "courier/internal/routing/store/delivery"
	rulestore "courier/internal/routing/store/rule"
	"courier/internal/token"
	httptransport "courier/internal/transport/http"
	"courier/pkg/platform/audit"
	auditmemory "courier/pkg/platform/audit/store/memory"
	auditpg "courier/pkg/platform/audit/store/postgres"
	auditworker "courier/pkg/platform/audit/worker"
	"courier/pkg/platform/keylock"
	"courier/pkg/platform/tx"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		db          *sql.DB
		letterStore letterservice.Store
		ruleStore   ports.RuleStore
		deliveries  ports.DeliveryStore
		baseLedger  audit.Ledger
	)
	var runner tx.Runner = tx.Passthrough{}
	if cfg.DatabaseURL != "" {
		db, err = pgplatform.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres init failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		letterStore = letterstore.NewPostgres(db)
		ruleStore = rulestore.NewPostgres(db)
		deliveries = deliverystore.NewPostgres(db)
		baseLedger = auditpg.New(db)
		// State write and audit append share one transaction per commit.
		runner = tx.NewSQL(db)
	} else {
		log.Warn("no database configured, using in-memory stores")
		letterStore = letterstore.NewInMemory()
		ruleStore = rulestore.NewInMemory()
		deliveries = deliverystore.NewInMemory()
		baseLedger = auditmemory.NewInMemoryLedger()
	}
	if redisClient != nil {
		ruleStore = rulestore.NewCached(ruleStore, redisClient.Client, log)
	}

	g, gctx := errgroup.WithContext(ctx)

	ledger := baseLedger
	if len(cfg.Kafka.Brokers) > 0 {
		tee := audit.NewTee(baseLedger, 256)
		w, err := auditworker.New(ctx, auditworker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, tee.Stream(), log)
		if err != nil {
			log.Error("audit stream init failed", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return w.Run(gctx) })
		ledger = tee
	}

	locks := keylock.New()
	tokens := token.NewService(cfg.JWTSigningKey, "courier", "courier-api")

	routingSvc, err := routingservice.New(letterStore, ruleStore, deliveries, ledger, locks,
		routingservice.WithLogger(log),
		routingservice.WithMetrics(routingmetrics.New()),
		routingservice.WithTxRunner(runner),
	)
	if err != nil {
		log.Error("routing service init failed", "error", err)
		os.Exit(1)
	}

	letterSvc, err := letterservice.New(letterStore, ledger, locks,
		letterservice.WithLogger(log),
		letterservice.WithMetrics(lettermetrics.New()),
		letterservice.WithDispatcher(routingSvc),
		letterservice.WithTxRunner(runner),
	)
	if err != nil {
		log.Error("letter service init failed", "error", err)
		os.Exit(1)
	}

	checks := map[string]httptransport.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	router := httptransport.NewRouter(log, checks,
		letterhandler.New(letterSvc, log, tokens),
		routinghandler.New(routingSvc, log, tokens),
	)
	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("starting courier", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("courier stopped")
}
