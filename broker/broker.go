// Package broker defines the messaging-broker contract a Topic Coordinator
// and Partition Worker need: partition discovery, offset-for-time lookup,
// and a per-partition polling consumer. natsbroker provides the concrete
// NATS JetStream implementation; tests use the in-memory fake in this
// package.
package broker

import (
	"context"
	"time"

	"github.com/umithardal/kafka-to-nexus/message"
)

// PartitionInfo describes one partition of a topic as reported by metadata.
type PartitionInfo struct {
	Topic     string
	Partition int32
}

// PollResult classifies the outcome of one Consumer.Poll call.
type PollResult int

const (
	// PollOK means Messages is non-empty.
	PollOK PollResult = iota
	// PollEmpty means the poll timed out with no messages available.
	PollEmpty
	// PollEndOfPartition means the consumer has reached the high-water mark.
	PollEndOfPartition
	// PollError means a transient broker error occurred; the caller should
	// increment an error metric and poll again.
	PollError
)

// Consumer polls one partition. Implementations are not required to be
// safe for concurrent use; a Partition Worker owns exactly one Consumer.
type Consumer interface {
	// Poll waits up to timeout for the next batch of messages.
	Poll(ctx context.Context, timeout time.Duration) (PollResult, []message.Message, error)

	// Pending reports the consumer's outstanding message count, the broker
	// side of the Partition Worker's backpressure high-water mark.
	Pending() (int64, error)

	// Close releases the consumer.
	Close() error
}

// Broker is the messaging surface a Topic Coordinator needs.
type Broker interface {
	// Partitions returns the partitions currently known for topic.
	Partitions(ctx context.Context, topic string) ([]PartitionInfo, error)

	// OffsetForTime resolves the offset in a partition at or after
	// atNanos. Implementations fall back to the earliest available offset
	// on error, per spec.md §4.5.
	OffsetForTime(ctx context.Context, partition PartitionInfo, atNanos int64) (int64, error)

	// NewConsumer attaches a Consumer to one partition, starting at
	// startOffset, under consumer group groupID.
	NewConsumer(ctx context.Context, partition PartitionInfo, startOffset int64, groupID string) (Consumer, error)
}
