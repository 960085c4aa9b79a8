package infra

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxPoller_Options(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewOutboxPoller(nil, NewKafkaProducer("", false, logger), "wallet", nil, logger,
		WithPollInterval(2*time.Second),
		WithBatchSize(7),
		WithBatchSize(0), // ignored
	)

	assert.Equal(t, 2*time.Second, p.interval)
	assert.Equal(t, 7, p.batchSize)
	assert.Equal(t, "wallet.payment.payment.created", p.Topic("payment", "payment.created"))
}

func TestKafkaProducer_DisabledIsNoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewKafkaProducer("localhost:9092", false, logger)

	assert.False(t, p.Enabled())
	require.NoError(t, p.Publish(context.Background(), "wallet.t", []byte("k"), []byte("v")))
	require.NoError(t, p.Close())

	assert.False(t, NewKafkaProducer("", true, logger).Enabled())
}
