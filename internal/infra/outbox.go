package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// OutboxDB is the subset of pgxpool.Pool the poller needs.
type OutboxDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
type OutboxPoller struct {
	db          OutboxDB
	producer    Publisher
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
	metrics     *Metrics
}

// OutboxOption configures an OutboxPoller.
type OutboxOption func(*OutboxPoller)

// WithPollInterval overrides the default 500ms poll interval.
func WithPollInterval(d time.Duration) OutboxOption {
	return func(p *OutboxPoller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithBatchSize overrides the default batch of 100 events.
func WithBatchSize(n int) OutboxOption {
	return func(p *OutboxPoller) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(db OutboxDB, producer Publisher, topicPrefix string, metrics *Metrics, logger *slog.Logger, opts ...OutboxOption) *OutboxPoller {
	p := &OutboxPoller{
		db:          db,
		producer:    producer,
		logger:      logger,
		topicPrefix: topicPrefix,
		interval:    500 * time.Millisecond,
		batchSize:   100,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if _, err := p.PollOnce(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

// Topic returns the Kafka topic for an aggregate/event pair.
func (p *OutboxPoller) Topic(aggregateType, eventType string) string {
	return p.topicPrefix + "." + aggregateType + "." + eventType
}

type outboxEvent struct {
	ID            int64
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       json.RawMessage
	OccurredAt    time.Time
}

// PollOnce publishes one batch and returns how many events were published.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, partition_key, payload, occurred_at
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1`, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outboxEvent, error) {
		var e outboxEvent
		err := row.Scan(&e.ID, &e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType,
			&e.PartitionKey, &e.Payload, &e.OccurredAt)
		return e, err
	})
	if err != nil {
		return 0, fmt.Errorf("scan outbox rows: %w", err)
	}

	published := 0
	for _, e := range events {
		msg, _ := json.Marshal(map[string]any{
			"event_id":       e.EventID,
			"aggregate_type": e.AggregateType,
			"aggregate_id":   e.AggregateID,
			"event_type":     e.EventType,
			"payload":        e.Payload,
			"occurred_at":    e.OccurredAt,
		})

		if err := p.producer.Publish(ctx, p.Topic(e.AggregateType, e.EventType), []byte(e.PartitionKey), msg); err != nil {
			// Stop at the first failure so per-key ordering holds.
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			break
		}

		if _, err := p.db.Exec(ctx, `UPDATE event_outbox SET published_at = now() WHERE id = $1`, e.ID); err != nil {
			p.logger.Error("mark published failed", "event_id", e.EventID, "error", err)
			break
		}
		published++
	}

	if p.metrics != nil && published > 0 {
		p.metrics.OutboxPublished.Add(float64(published))
	}
	if published > 0 {
		p.logger.Debug("outbox poll complete", "published", published)
	}
	return published, nil
}
