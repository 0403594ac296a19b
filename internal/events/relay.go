package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/go-storefront/internal/models"
)

// Outbox is the storage side of the relay.
type Outbox interface {
	ClaimDue(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, nextAttempt time.Time, lastErr string) error
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

const maxBackoff = 15 * time.Minute

// Backoff is the delay before retry number attempts: 2^attempts seconds,
// capped at 15 minutes.
func Backoff(attempts int) time.Duration {
	if attempts >= 10 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Lease        time.Duration
}

// Relay moves committed outbox rows to the publisher. Rows that keep
// failing are retried with backoff until MaxAttempts and then left parked.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	cfg       RelayConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRelay(outbox Outbox, publisher Publisher, cfg RelayConfig, logger zerolog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.cfg.PollInterval).Msg("outbox relay started")
	for {
		for {
			n, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error().Err(err).Msg("claim outbox events")
				break
			}
			if n < r.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims and publishes one batch and returns the number claimed.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	batch, err := r.outbox.ClaimDue(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts, r.cfg.Lease)
	if err != nil {
		return 0, err
	}

	for _, e := range batch {
		env := FromOutbox(e)
		log := r.logger.With().Str("event_id", e.ID).Str("kind", e.Kind).Logger()

		if err := r.publisher.Publish(ctx, env); err != nil {
			attempts := e.Attempts + 1
			next := r.now().Add(Backoff(attempts))
			if markErr := r.outbox.MarkFailed(ctx, e.ID, next, err.Error()); markErr != nil {
				log.Error().Err(markErr).Msg("record publish failure")
			}
			if attempts >= r.cfg.MaxAttempts {
				log.Error().Err(err).Int("attempts", attempts).Msg("event parked after max attempts")
			} else {
				log.Warn().Err(err).Int("attempts", attempts).Time("next_attempt", next).Msg("publish failed")
			}
			continue
		}

		if err := r.outbox.MarkPublished(ctx, e.ID); err != nil {
			log.Error().Err(err).Msg("mark event published")
		}
	}
	return len(batch), nil
}
