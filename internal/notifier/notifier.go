package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/mailer"
	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the notifier needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(cfg config.KafkaConfig, logger zerolog.Logger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
			KeepAlive: 30 * time.Second,
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error().Msgf("kafka reader: "+msg, args...)
		}),
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 5 * time.Second,
	})
}

// Notifier turns notification events into emails. A failed send is retried
// with backoff before the offset is committed; only messages that cannot be
// decoded or rendered are dropped.
type Notifier struct {
	reader      Reader
	sender      mailer.Sender
	maxAttempts int
	backoff     func(attempts int) time.Duration
	logger      zerolog.Logger
}

// New builds a Notifier. maxAttempts <= 0 retries a failing send until ctx
// is cancelled.
func New(reader Reader, sender mailer.Sender, maxAttempts int, logger zerolog.Logger) *Notifier {
	return &Notifier{
		reader:      reader,
		sender:      sender,
		maxAttempts: maxAttempts,
		backoff:     events.Backoff,
		logger:      logger.With().Str("component", "notifier").Logger(),
	}
}

// Run consumes until ctx is cancelled or the reader fails. A message whose
// send is interrupted by shutdown is left uncommitted and redelivered.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.Info().Msg("notifier started")
	for {
		msg, err := n.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				n.logger.Info().Msg("notifier stopped")
				return nil
			}
			return err
		}

		if err := n.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				n.logger.Info().Int64("offset", msg.Offset).Msg("notifier stopped before delivery")
				return nil
			}
			return err
		}

		if err := n.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Handle renders and sends one message. Undecodable or unknown messages are
// logged and dropped. It returns an error only when ctx ends before the email
// is handed to the sender successfully.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	log := n.logger.With().Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()

	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.Error().Err(err).Msg("drop undecodable message")
		return nil
	}
	log = log.With().Str("event_id", env.ID).Str("kind", env.Kind).Str("recipient", env.Recipient).Logger()

	mail, err := mailer.Render(env)
	if err != nil {
		log.Error().Err(err).Msg("drop unrenderable event")
		return nil
	}

	for attempt := 1; ; attempt++ {
		err := n.sender.Send(ctx, mail)
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("notification sent")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if n.maxAttempts > 0 && attempt >= n.maxAttempts {
			log.Error().Err(err).Int("attempts", attempt).Msg("give up on notification email")
			return nil
		}

		wait := n.backoff(attempt - 1)
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("send notification email")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (n *Notifier) Close() error {
	return n.reader.Close()
}
