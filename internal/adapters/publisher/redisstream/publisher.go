package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"certivax/internal/adapters/publisher"
	"certivax/internal/domain/registry"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream = "certivax:notifications"
	DefaultMaxLen = 100_000
)

// Publisher agrega cada notificación a un stream de Redis acotado (XADD MAXLEN ~).
type Publisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

var _ registry.Publisher = (*Publisher)(nil)

func New(client redis.Cmdable, stream string, maxLen int64) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *Publisher) Publish(ctx context.Context, notes []registry.Notification) error {
	if len(notes) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, n := range notes {
		payload, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode notification %d: %w", n.Seq, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]any{
				"seq":     strconv.FormatUint(n.Seq, 10),
				"kind":    string(n.Kind),
				"key":     publisher.PartitionKey(n),
				"payload": string(payload),
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
