package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
)

// MessageWriter is the part of *kafka.Writer the journal uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka journals change notifications to a topic keyed by group.
type Kafka struct {
	writer  MessageWriter
	timeout time.Duration
	queue   chan broadcast.Message
	logger  *slog.Logger
}

// NewKafka builds a journal writing to the configured brokers.
func NewKafka(cfg config.KafkaRelay, logger *slog.Logger) *Kafka {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	return NewKafkaWithWriter(writer, time.Duration(cfg.WriteTimeout)*time.Second, logger)
}

// NewKafkaWithWriter builds a journal over an arbitrary writer.
func NewKafkaWithWriter(writer MessageWriter, timeout time.Duration, logger *slog.Logger) *Kafka {
	if timeout <= 0 {
		timeout = publishTimeout
	}
	return &Kafka{
		writer:  writer,
		timeout: timeout,
		queue:   make(chan broadcast.Message, defaultQueueSize),
		logger:  logging.NewComponentLogger(logger, "relay.kafka"),
	}
}

// Append queues a notification for the journal.
func (k *Kafka) Append(msg broadcast.Message) {
	select {
	case k.queue <- msg:
	default:
		logging.WarnWithContext(k.logger, "journal buffer full; notification dropped", "journal_overflow",
			logging.String("group", string(msg.Group)),
			logging.String(logging.FieldImpact, "audit journal misses this change"),
			logging.String(logging.FieldErrorHint, "check Kafka broker availability"),
		)
	}
}

// Run writes queued notifications until ctx ends.
func (k *Kafka) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-k.queue:
			k.write(ctx, msg)
		}
	}
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func (k *Kafka) write(ctx context.Context, msg broadcast.Message) {
	payload, err := broadcast.Encode(msg)
	if err != nil {
		k.logger.Error("encode notification failed", logging.Error(err))
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	record := kafka.Message{
		Key:   []byte(msg.Group),
		Value: payload,
		Time:  msg.Time,
	}
	if err := k.writer.WriteMessages(writeCtx, record); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(k.logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.Any("seq", msg.Seq),
			logging.String(logging.FieldImpact, "audit journal misses this change"),
			logging.String(logging.FieldErrorHint, "check Kafka broker availability"),
		)
	}
}
