package natsbroker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umithardal/kafka-to-nexus/broker"
)

func TestSubjectFor(t *testing.T) {
	p := broker.PartitionInfo{Topic: "instrument.motion", Partition: 2}
	assert.Equal(t, "instrument.motion.2", subjectFor(p))
}

func TestDurableName(t *testing.T) {
	p := broker.PartitionInfo{Topic: "instrument.motion", Partition: 2}
	assert.Equal(t, "job-1-p2", durableName("job-1", p))
}
