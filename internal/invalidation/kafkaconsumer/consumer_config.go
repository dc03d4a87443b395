package kafkaconsumer

import (
	"errors"
	"time"

	"github.com/mohammed-shakir/layer-ingest/internal/core/config"
)

const defaultDedupeSize = 4096

type Config struct {
	Brokers          []string
	Topic            string
	GroupID          string
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	// InitialOffsetOldest replays the topic for a new group. Off by default
	// since the cache starts empty on every boot.
	InitialOffsetOldest bool
	// DedupeSize bounds the number of URLs whose last seq is remembered.
	DedupeSize int
}

func FromConfig(c config.InvalidationCfg) Config {
	return Config{
		Brokers: c.BrokerList(),
		Topic:   c.Topic,
		GroupID: c.GroupID,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 30 * time.Second
	}
	if c.GroupID == "" {
		c.GroupID = "layer-ingest"
	}
	if c.DedupeSize <= 0 {
		c.DedupeSize = defaultDedupeSize
	}
	return c
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 || c.Topic == "" {
		return errors.New("kafkaconsumer: brokers and topic are required")
	}
	return nil
}
