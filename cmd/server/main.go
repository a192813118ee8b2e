package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"ballotbox/internal/audit"
	"ballotbox/internal/election/service"
	"ballotbox/internal/election/store"
	"ballotbox/internal/jwttoken"
	"ballotbox/internal/lockout"
	"ballotbox/internal/mailer"
	"ballotbox/internal/platform/config"
	"ballotbox/internal/platform/httpserver"
	"ballotbox/internal/platform/logger"
	"ballotbox/internal/platform/metrics"
	platformredis "ballotbox/internal/platform/redis"
	"ballotbox/internal/sweeper"
	httptransport "ballotbox/internal/transport/http"
	"ballotbox/internal/voting"
)

// main wires dependencies and owns the process lifecycle. All business logic
// lives in the internal services packages.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Elections persist in Postgres when DATABASE_URL is set; the in-memory
	// store keeps local development free of external services.
	var electionStore store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			log.Error("postgres migrate failed", "error", err)
			os.Exit(1)
		}
		electionStore = pg
		log.Info("using postgres election store")
	} else {
		electionStore = store.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory election store")
	}

	var lockoutStore lockout.Store = lockout.NewInMemoryStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		lockoutStore = lockout.NewRedisStore(redisClient.Client)
		log.Info("using redis lockout store")
	}
	lockouts, err := lockout.New(lockoutStore, 0, 0, log)
	if err != nil {
		log.Error("lockout init failed", "error", err)
		os.Exit(1)
	}

	var auditor audit.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka connect failed", "error", err)
			os.Exit(1)
		}
		auditor = kp
		log.Info("audit events publishing to kafka", "topic", cfg.Kafka.Topic)
	} else {
		auditor = audit.NewRecorder()
	}
	defer auditor.Close()

	sender := mailer.NewSMTPSender(cfg.SMTP, cfg.FrontendBaseURL, log, m)

	elections, err := service.New(electionStore, sender, auditor, m, log)
	if err != nil {
		log.Error("election service init failed", "error", err)
		os.Exit(1)
	}
	votes, err := voting.New(electionStore, sender, auditor, m, log)
	if err != nil {
		log.Error("voting service init failed", "error", err)
		os.Exit(1)
	}

	sw := sweeper.New(electionStore, cfg.SweepInterval, m, log)
	go sw.Run(ctx)

	jwtService := jwttoken.NewService(cfg.JWTSigningKey, "ballotbox", "ballotbox")

	router := httptransport.NewRouter(httptransport.Deps{
		Elections:   elections,
		Voting:      votes,
		Lockout:     lockouts,
		JWT:         jwtService,
		Logger:      log,
		Metrics:     m,
		FrontendURL: cfg.FrontendBaseURL,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("ballotbox listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
