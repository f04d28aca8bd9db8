package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
)

const (
	defaultQueueSize   = 256
	publishTimeout     = 5 * time.Second
	resubscribeBackoff = 2 * time.Second
)

// Deliverer receives notifications that originated on another instance.
type Deliverer interface {
	Deliver(broadcast.Message)
}

// Transport is the pub/sub channel the Redis relay talks through.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe calls handle for every payload until ctx ends or the
	// subscription fails.
	Subscribe(ctx context.Context, channel string, handle func([]byte)) error
	Close() error
}

// Redis mirrors change notifications between instances.
type Redis struct {
	transport Transport
	channel   string
	origin    string
	queue     chan broadcast.Message
	logger    *slog.Logger
}

// NewRedis connects a relay to the configured Redis server.
func NewRedis(cfg config.RedisRelay, logger *slog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisWithTransport(redisTransport{client: client}, cfg.Channel, logger)
}

// NewRedisWithTransport builds a relay over an arbitrary transport.
func NewRedisWithTransport(transport Transport, channel string, logger *slog.Logger) *Redis {
	return &Redis{
		transport: transport,
		channel:   channel,
		origin:    uuid.NewString(),
		queue:     make(chan broadcast.Message, defaultQueueSize),
		logger:    logging.NewComponentLogger(logger, "relay.redis"),
	}
}

// Origin identifies this instance on the shared channel.
func (r *Redis) Origin() string {
	return r.origin
}

// Append queues a locally published notification for the channel.
func (r *Redis) Append(msg broadcast.Message) {
	select {
	case r.queue <- msg:
	default:
		logging.WarnWithContext(r.logger, "relay buffer full; notification dropped", "relay_overflow",
			logging.String("group", string(msg.Group)),
			logging.String(logging.FieldImpact, "viewers on other instances miss this change until they refetch"),
			logging.String(logging.FieldErrorHint, "check Redis connectivity"),
		)
	}
}

// Run publishes queued notifications and delivers remote ones to target
// until ctx ends.
func (r *Redis) Run(ctx context.Context, target Deliverer) {
	go r.receive(ctx, target)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			r.publish(ctx, msg)
		}
	}
}

// Close releases the transport.
func (r *Redis) Close() error {
	return r.transport.Close()
}

func (r *Redis) publish(ctx context.Context, msg broadcast.Message) {
	msg.Seq = 0
	msg.Origin = r.origin
	payload, err := broadcast.Encode(msg)
	if err != nil {
		r.logger.Error("encode notification failed", logging.Error(err))
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.transport.Publish(pubCtx, r.channel, payload); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(r.logger, "relay publish failed", "relay_publish_failed",
			logging.String("channel", r.channel),
			logging.Error(err),
			logging.String(logging.FieldImpact, "viewers on other instances miss this change until they refetch"),
			logging.String(logging.FieldErrorHint, "check Redis connectivity"),
		)
	}
}

func (r *Redis) receive(ctx context.Context, target Deliverer) {
	for {
		err := r.transport.Subscribe(ctx, r.channel, func(payload []byte) {
			r.handle(payload, target)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logging.WarnWithContext(r.logger, "relay subscription failed", "relay_subscribe_failed",
				logging.String("channel", r.channel),
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes made on other instances are not pushed to local viewers"),
				logging.String(logging.FieldErrorHint, "check Redis connectivity; the relay keeps retrying"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeBackoff):
		}
	}
}

func (r *Redis) handle(payload []byte, target Deliverer) {
	msg, err := broadcast.Decode(payload)
	if err != nil {
		logging.WarnWithContext(r.logger, "rejected relayed notification", "relay_invalid_message",
			logging.Error(err),
			logging.String(logging.FieldImpact, "notification ignored"),
			logging.String(logging.FieldErrorHint, "check what else publishes to the relay channel"),
		)
		return
	}
	if msg.Origin == "" || msg.Origin == r.origin {
		return
	}
	msg.Seq = 0
	target.Deliver(msg)
}

type redisTransport struct {
	client *redis.Client
}

func (t redisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

func (t redisTransport) Subscribe(ctx context.Context, channel string, handle func([]byte)) error {
	pubsub := t.client.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("subscription closed")
			}
			handle([]byte(msg.Payload))
		}
	}
}

func (t redisTransport) Close() error {
	return t.client.Close()
}
