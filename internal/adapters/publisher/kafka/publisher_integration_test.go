//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"certivax/internal/adapters/publisher/kafka"
	"certivax/internal/domain/registry"
	"certivax/internal/testutil/containers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestPublisher_ProduceAndConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	broker := containers.NewKafkaBroker(t)
	p, err := kafka.New([]string{broker}, "certivax.test")
	require.NoError(t, err)
	t.Cleanup(p.Close)

	require.NoError(t, p.EnsureTopic(ctx, 1, 1))
	require.NoError(t, p.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	notes := []registry.Notification{
		{Seq: 1, ID: "n-1", Kind: registry.KindAnimalCreated, Caller: "farmer-1", OccurredAt: time.Now().UTC(), AnimalID: "VACA-001"},
		{Seq: 2, ID: "n-2", Kind: registry.KindRoleAssigned, Caller: "owner-1", OccurredAt: time.Now().UTC(), Subject: "vet-9"},
	}
	require.NoError(t, p.Publish(ctx, notes))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics("certivax.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []*kgo.Record
	for len(got) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) { got = append(got, r) })
	}

	assert.Equal(t, "VACA-001", string(got[0].Key))
	assert.Equal(t, "vet-9", string(got[1].Key))

	var decoded registry.Notification
	require.NoError(t, json.Unmarshal(got[0].Value, &decoded))
	assert.Equal(t, registry.KindAnimalCreated, decoded.Kind)

	headers := map[string]string{}
	for _, h := range got[1].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "RoleAssigned", headers["kind"])
	assert.Equal(t, "2", headers["seq"])
}

func TestNew_RequiresBroker(t *testing.T) {
	_, err := kafka.New(nil, "")
	assert.Error(t, err)
}
