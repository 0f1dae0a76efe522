package broker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/umithardal/kafka-to-nexus/message"
)

// Fake is an in-memory Broker for tests: partitions and messages are
// injected up front, consumers replay them in order.
type Fake struct {
	mu         sync.Mutex
	partitions map[string][]PartitionInfo
	messages   map[string][]message.Message // keyed by "topic/partition"
	offsets    map[string]int64             // offset-for-time result, keyed by "topic/partition"
}

// NewFake returns an empty Fake broker.
func NewFake() *Fake {
	return &Fake{
		partitions: make(map[string][]PartitionInfo),
		messages:   make(map[string][]message.Message),
		offsets:    make(map[string]int64),
	}
}

func partitionKey(topic string, partition int32) string {
	return topic + "/" + strconv.Itoa(int(partition))
}

// AddPartition registers a partition for topic.
func (f *Fake) AddPartition(topic string, partition int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitions[topic] = append(f.partitions[topic], PartitionInfo{Topic: topic, Partition: partition})
}

// AddMessage appends a message to a partition's replay log, in offset order.
func (f *Fake) AddMessage(topic string, partition int32, m message.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := partitionKey(topic, partition)
	f.messages[key] = append(f.messages[key], m)
}

// SetOffsetForTime pins the result OffsetForTime returns for a partition.
func (f *Fake) SetOffsetForTime(topic string, partition int32, offset int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets[partitionKey(topic, partition)] = offset
}

func (f *Fake) Partitions(_ context.Context, topic string) ([]PartitionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PartitionInfo, len(f.partitions[topic]))
	copy(out, f.partitions[topic])
	return out, nil
}

func (f *Fake) OffsetForTime(_ context.Context, partition PartitionInfo, _ int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offsets[partitionKey(partition.Topic, partition.Partition)], nil
}

func (f *Fake) NewConsumer(_ context.Context, partition PartitionInfo, startOffset int64, _ string) (Consumer, error) {
	f.mu.Lock()
	all := f.messages[partitionKey(partition.Topic, partition.Partition)]
	f.mu.Unlock()

	var remaining []message.Message
	for _, m := range all {
		if m.Offset() >= startOffset {
			remaining = append(remaining, m)
		}
	}
	return &fakeConsumer{remaining: remaining}, nil
}

// fakeConsumer returns all of its remaining messages as one batch on the
// first Poll, then reports PollEndOfPartition forever.
type fakeConsumer struct {
	mu        sync.Mutex
	remaining []message.Message
	closed    bool
}

func (c *fakeConsumer) Poll(_ context.Context, _ time.Duration) (PollResult, []message.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.remaining) == 0 {
		return PollEndOfPartition, nil, nil
	}
	batch := c.remaining
	c.remaining = nil
	return PollOK, batch, nil
}

func (c *fakeConsumer) Pending() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.remaining)), nil
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
