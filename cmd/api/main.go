package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-storefront/internal/api"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/logger"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/ratelimit"
	"github.com/safar/go-storefront/internal/store"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Log, "storefront-api")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to database")

	if err := database.MigrateUp(db); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	if cfg.Auth.AdminEmail != "" {
		found, err := store.PromoteAdmin(ctx, db, cfg.Auth.AdminEmail)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("promote bootstrap admin")
		case !found:
			log.Warn().Str("email", cfg.Auth.AdminEmail).Msg("bootstrap admin has not registered yet")
		}
	}

	tokens, err := auth.NewTokenMaker(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("create token maker")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, rate limiting will fail open")
	}

	adminInbox := cfg.SMTP.AdminInbox
	if adminInbox == "" {
		adminInbox = cfg.Auth.AdminEmail
	}

	server := api.NewServer(api.Options{
		DB:     db,
		Tokens: tokens,
		Pricing: models.PricingRules{
			FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
			FlatShippingFee:       cfg.Pricing.FlatShippingFee,
			TaxRate:               cfg.Pricing.TaxRate,
		},
		AdminInbox: adminInbox,
		Limiter:    ratelimit.NewLimiter(rdb, "storefront:auth", cfg.RateLimit.Attempts, cfg.RateLimit.Window),
		Logger:     log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	defer publisher.Close()
	relay := events.NewRelay(store.NewOutbox(db), publisher, events.RelayConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return relay.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("shutdown completed")
}
