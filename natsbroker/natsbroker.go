// Package natsbroker adapts a NATS JetStream client to the broker.Broker
// contract. A topic maps to a JetStream stream; "partition" maps to one
// ordered, durable JetStream consumer scoped to a filter subject within
// that stream, so that many Partition Workers can fan out over a single
// stream the way they would over a partitioned Kafka topic.
package natsbroker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/umithardal/kafka-to-nexus/broker"
	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/natsclient"
)

// Broker implements broker.Broker over a natsclient.Client.
type Broker struct {
	client *natsclient.Client
}

// New wraps an already-connected natsclient.Client as a broker.Broker.
func New(client *natsclient.Client) *Broker {
	return &Broker{client: client}
}

// Partitions returns one PartitionInfo per filter subject configured on the
// JetStream stream backing topic, numbered by their position in the
// stream's subject list.
func (b *Broker) Partitions(ctx context.Context, topic string) ([]broker.PartitionInfo, error) {
	stream, err := b.client.GetStream(ctx, topic)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsbroker.Broker", "Partitions", "get stream")
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsbroker.Broker", "Partitions", "stream info")
	}

	subjects := info.Config.Subjects
	if len(subjects) == 0 {
		subjects = []string{topic}
	}
	partitions := make([]broker.PartitionInfo, len(subjects))
	for i := range subjects {
		partitions[i] = broker.PartitionInfo{Topic: topic, Partition: int32(i)}
	}
	return partitions, nil
}

// OffsetForTime resolves atNanos to a JetStream sequence number by creating
// an ephemeral consumer with OptStartTime and reading back the sequence of
// its first pending message. Falls back to sequence 0 (earliest) on error,
// per spec.md §4.5.
func (b *Broker) OffsetForTime(ctx context.Context, partition broker.PartitionInfo, atNanos int64) (int64, error) {
	stream, err := b.client.GetStream(ctx, partition.Topic)
	if err != nil {
		return 0, nil // fall back to earliest
	}

	startTime := time.Unix(0, atNanos)
	probe, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          fmt.Sprintf("offset-probe-%s-%d", partition.Topic, partition.Partition),
		FilterSubject: subjectFor(partition),
		DeliverPolicy: jetstream.DeliverByStartTimePolicy,
		OptStartTime:  &startTime,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return 0, nil
	}
	defer func() { _ = stream.DeleteConsumer(ctx, probe.CachedInfo().Name) }()

	info, err := probe.Info(ctx)
	if err != nil {
		return 0, nil
	}
	return int64(info.Delivered.Stream), nil
}

// NewConsumer creates a durable ordered pull consumer for one partition,
// starting from startOffset (a JetStream stream sequence number).
func (b *Broker) NewConsumer(ctx context.Context, partition broker.PartitionInfo, startOffset int64, groupID string) (broker.Consumer, error) {
	stream, err := b.client.GetStream(ctx, partition.Topic)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsbroker.Broker", "NewConsumer", "get stream")
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durableName(groupID, partition),
		FilterSubject: subjectFor(partition),
		DeliverPolicy: jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:   uint64(startOffset),
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natsbroker.Broker", "NewConsumer", "create consumer")
	}

	return &consumer{topic: partition.Topic, partition: partition.Partition, cons: cons}, nil
}

func subjectFor(partition broker.PartitionInfo) string {
	return fmt.Sprintf("%s.%d", partition.Topic, partition.Partition)
}

func durableName(groupID string, partition broker.PartitionInfo) string {
	return fmt.Sprintf("%s-p%d", groupID, partition.Partition)
}

// consumer implements broker.Consumer over a jetstream.Consumer.
type consumer struct {
	topic     string
	partition int32
	cons      jetstream.Consumer
}

func (c *consumer) Poll(ctx context.Context, timeout time.Duration) (broker.PollResult, []message.Message, error) {
	batch, err := c.cons.Fetch(1, jetstream.FetchMaxWait(timeout))
	if err != nil {
		return broker.PollError, nil, errors.WrapTransient(err, "natsbroker.consumer", "Poll", "fetch batch")
	}

	var out []message.Message
	for msg := range batch.Messages() {
		meta, err := msg.Metadata()
		var tsMillis int64
		if err == nil {
			tsMillis = meta.Timestamp.UnixMilli()
		}
		var offset int64
		if meta != nil {
			offset = int64(meta.Sequence.Stream)
		}
		out = append(out, message.New(msg.Data(), c.topic, c.partition, offset, tsMillis))
		_ = msg.Ack()
	}
	if err := batch.Error(); err != nil {
		return broker.PollError, out, errors.WrapTransient(err, "natsbroker.consumer", "Poll", "batch error")
	}
	if len(out) == 0 {
		return broker.PollEmpty, nil, nil
	}
	return broker.PollOK, out, nil
}

func (c *consumer) Pending() (int64, error) {
	info, err := c.cons.Info(context.Background())
	if err != nil {
		return 0, errors.WrapTransient(err, "natsbroker.consumer", "Pending", "consumer info")
	}
	return int64(info.NumPending), nil
}

func (c *consumer) Close() error {
	return nil
}
