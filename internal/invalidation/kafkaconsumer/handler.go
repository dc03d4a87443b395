package kafkaconsumer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/IBM/sarama"
)

// assignment tracks the partitions of the current group session. A nil set
// means no session is held.
type assignment struct {
	mu    sync.RWMutex
	parts map[int32]struct{}
}

func (a *assignment) claim(claims map[string][]int32, topic string) {
	parts := map[int32]struct{}{}
	for _, p := range claims[topic] {
		parts[p] = struct{}{}
	}
	a.mu.Lock()
	a.parts = parts
	a.mu.Unlock()
}

func (a *assignment) release() {
	a.mu.Lock()
	a.parts = nil
	a.mu.Unlock()
}

func (a *assignment) snapshot() (held bool, partitions []int32) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.parts == nil {
		return false, nil
	}
	partitions = make([]int32, 0, len(a.parts))
	for p := range a.parts {
		partitions = append(partitions, p)
	}
	slices.Sort(partitions)
	return true, partitions
}

type groupHandler struct {
	topic   string
	assign  *assignment
	logger  *slog.Logger
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(s sarama.ConsumerGroupSession) error {
	h.assign.claim(s.Claims(), h.topic)
	_, parts := h.assign.snapshot()
	h.logger.Info("invalidation partitions assigned", "topic", h.topic, "partitions", parts)
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.assign.release()
	return nil
}

// ConsumeClaim applies events in partition order and marks each offset only
// once its invalidation ran.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	applied := 0
	defer func() {
		h.logger.Debug("invalidation claim released",
			"partition", claim.Partition(), "messages", applied)
	}()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("invalidation at %s/%d@%d: %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
			applied++
		}
	}
}
