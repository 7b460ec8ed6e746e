package broker

import (
	"errors"
	"fmt"
	"strings"

	"alertgateway/internal/config"

	"github.com/nats-io/nats.go"
)

// StreamName maps queue name to its JetStream stream.
// Params: broker config and queue name.
// Returns: `<stream_prefix>_<QUEUE>` with stream-illegal characters replaced.
func StreamName(cfg config.BrokerConfig, queue string) string {
	return cfg.StreamPrefix + "_" + strings.ToUpper(sanitizeToken(queue))
}

// Subject maps queue name to its publish subject.
func Subject(cfg config.BrokerConfig, queue string) string {
	return cfg.SubjectPrefix + "." + sanitizeToken(queue)
}

// ConsumerName maps queue name to durable consumer name.
func ConsumerName(cfg config.BrokerConfig, queue string) string {
	return cfg.ConsumerPrefix + "_" + sanitizeToken(queue)
}

// EnsureStream declares one queue: creates its work-queue stream when absent.
// Params: JetStream context, broker config, and queue name.
// Returns: stream lookup/create error.
func EnsureStream(js nats.JetStreamContext, cfg config.BrokerConfig, queue string) error {
	name := StreamName(cfg, queue)
	if _, err := js.StreamInfo(name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", name, err)
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{Subject(cfg, queue)},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("create stream %q: %w", name, err)
	}
	return nil
}

func sanitizeToken(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(value))
}
