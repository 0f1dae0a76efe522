package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/broker"
	"github.com/umithardal/kafka-to-nexus/message"
)

func TestFake_PartitionsAndOffsetForTime(t *testing.T) {
	f := broker.NewFake()
	f.AddPartition("topic", 0)
	f.SetOffsetForTime("topic", 0, 5)

	partitions, err := f.Partitions(context.Background(), "topic")
	require.NoError(t, err)
	require.Len(t, partitions, 1)

	offset, err := f.OffsetForTime(context.Background(), partitions[0], 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), offset)
}

func TestFake_ConsumerReplaysFromOffset(t *testing.T) {
	f := broker.NewFake()
	f.AddPartition("topic", 0)
	f.AddMessage("topic", 0, message.New(nil, "topic", 0, 0, 1000))
	f.AddMessage("topic", 0, message.New(nil, "topic", 0, 1, 1001))
	f.AddMessage("topic", 0, message.New(nil, "topic", 0, 2, 1002))

	consumer, err := f.NewConsumer(context.Background(), broker.PartitionInfo{Topic: "topic", Partition: 0}, 1, "group")
	require.NoError(t, err)

	result, msgs, err := consumer.Poll(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, broker.PollOK, result)
	assert.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].Offset())

	result, _, err = consumer.Poll(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, broker.PollEndOfPartition, result)

	require.NoError(t, consumer.Close())
}
