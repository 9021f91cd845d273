package pushsvc

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trezcool/wazazi/core"
)

// Handler processes one foreground push message.
type Handler func(ctx context.Context, topic string, key, value []byte) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds foreground push events from a kafka topic to a Handler.
type Consumer struct {
	reader reader
	handle Handler
	log    core.Logger
	conf   core.KafkaConfig
}

var retryDelay = time.Second // mockable

func NewConsumer(conf core.KafkaConfig, h Handler, log core.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        strings.Split(conf.Brokers, ","),
			GroupID:        conf.GroupID,
			Topic:          conf.Topic,
			MinBytes:       10e3,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		}),
		handle: h,
		log:    log,
		conf:   conf,
	}
}

// Run consumes messages until ctx is done. Handler failures are logged and the message committed.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() { _ = c.reader.Close() }()

	c.log.Info("push consumer started", map[string]interface{}{
		"group": c.conf.GroupID, "topic": c.conf.Topic, "brokers": c.conf.Brokers,
	})
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("push consumer shutting down")
				return nil
			}
			c.log.Error("fetching push message", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		if c.handle != nil {
			if err = c.handle(ctx, m.Topic, m.Key, m.Value); err != nil {
				c.log.Warn("handling push message", err, map[string]interface{}{"offset": m.Offset, "partition": m.Partition})
			}
		}
		if err = c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Error("committing push message", err)
		}
	}
}
