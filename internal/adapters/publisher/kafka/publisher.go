package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"certivax/internal/adapters/publisher"
	"certivax/internal/domain/registry"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultTopic = "certivax.notifications"

// Publisher produce cada notificación como un record JSON. La key es el id del
// animal, así que los eventos de un mismo animal quedan ordenados en su partición.
type Publisher struct {
	client *kgo.Client
	topic  string
}

var _ registry.Publisher = (*Publisher)(nil)

func New(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Publisher{client: cl, topic: topic}, nil
}

// EnsureTopic crea el topic si no existe.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, notes []registry.Notification) error {
	if len(notes) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(notes))
	for _, n := range notes {
		value, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode notification %d: %w", n.Seq, err)
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(publisher.PartitionKey(n)),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "kind", Value: []byte(n.Kind)},
				{Key: "seq", Value: []byte(strconv.FormatUint(n.Seq, 10))},
			},
		})
	}

	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
