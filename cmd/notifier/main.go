package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/logger"
	"github.com/safar/go-storefront/internal/mailer"
	"github.com/safar/go-storefront/internal/notifier"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Log, "storefront-notifier")

	if cfg.SMTP.Host == "" {
		log.Fatal().Msg("SMTP_HOST is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := notifier.NewKafkaReader(cfg.Kafka, log)
	n := notifier.New(reader, mailer.NewSMTPSender(cfg.SMTP), cfg.SMTP.SendAttempts, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Run(gctx)
	})

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Str("group", cfg.Kafka.GroupID).
		Msg("notifier consuming")

	err = g.Wait()
	if closeErr := n.Close(); closeErr != nil {
		log.Error().Err(closeErr).Msg("close kafka reader")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("notifier stopped with error")
	}
	log.Info().Msg("shutdown completed")
}
