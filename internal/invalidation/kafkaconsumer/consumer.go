// Package kafkaconsumer applies layer invalidation events from Kafka to the
// in-memory layer cache.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/layer-ingest/internal/core/observability"
	"github.com/mohammed-shakir/layer-ingest/internal/invalidation"
	mylog "github.com/mohammed-shakir/layer-ingest/internal/logger"
)

// Invalidator drops cached layers for a source URL.
type Invalidator interface {
	Invalidate(rawURL string) bool
}

type Options struct {
	Logger *slog.Logger
	// ZLog receives structured error events; nil discards them.
	ZLog *zerolog.Logger
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	zlog   *zerolog.Logger
	inv    Invalidator
	seq    *seqDedupe
	assign assignment
}

func New(cfg Config, inv Invalidator, opts Options) *Consumer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	cfg = cfg.withDefaults()
	return &Consumer{
		cfg:    cfg,
		logger: opts.Logger,
		zlog:   mylog.FromContext(base, opts.ZLog),
		inv:    inv,
		seq:    newSeqDedupe(cfg.DedupeSize),
	}
}

// consumes invalidation events from kafka until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	if c.inv == nil {
		return errors.New("kafkaconsumer: missing invalidator")
	}
	if err := c.cfg.validate(); err != nil {
		return err
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := c.handler()

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					continue
				}
				c.logger.Error("consumer error", "err", err)
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

func (c *Consumer) handler() *groupHandler {
	return &groupHandler{
		topic:   c.cfg.Topic,
		assign:  &c.assign,
		logger:  c.logger,
		process: c.ProcessOne,
	}
}

// Readiness reports whether the consumer holds a group session, and its
// partitions in ascending order.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	return c.assign.snapshot()
}

// ProcessOne applies a single event. Undecodable, invalid and stale events
// are logged and skipped so one bad message cannot stall its partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("process: %w", err)
	}

	ev, err := invalidation.Decode(msg.Value)
	switch {
	case errors.Is(err, invalidation.ErrUndecodable):
		c.skip(ctx, msg, "decode", err)
		return nil
	case err != nil:
		c.skip(ctx, msg, "invalid", err)
		return nil
	}

	key := ev.URL
	if !c.seq.shouldApply(key, ev.Seq) {
		c.logger.Debug("stale invalidation skipped", "url", key, "seq", ev.Seq)
		return nil
	}

	removed := c.inv.Invalidate(key)
	obs.IncInvalidation("kafka", removed)
	c.logger.Debug("invalidation applied", "url", key, "op", ev.Op, "seq", ev.Seq, "removed", removed)

	mylog.FromContext(ctx, c.zlog).Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Str("url", key).
		Uint64("seq", ev.Seq).
		Bool("removed", removed).
		Msg("layer invalidated")
	return nil
}

func (c *Consumer) skip(ctx context.Context, msg *sarama.ConsumerMessage, kind string, err error) {
	obs.IncInvalidationError(kind)
	mylog.FromContext(ctx, c.zlog).Error().
		Err(err).
		Str("kind", kind).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("kafka message skipped")
}
