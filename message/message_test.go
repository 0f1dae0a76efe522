package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umithardal/kafka-to-nexus/message"
)

func payloadWithTag(tag string) []byte {
	buf := make([]byte, 16)
	copy(buf[4:8], tag)
	return buf
}

func TestMessage_SchemaTag(t *testing.T) {
	m := message.New(payloadWithTag("f142"), "nicos.motor", 0, 42, 1000)
	tag, ok := m.SchemaTag()
	assert.True(t, ok)
	assert.Equal(t, "f142", tag)
}

func TestMessage_SchemaTag_TooShort(t *testing.T) {
	m := message.New([]byte{1, 2, 3}, "nicos.motor", 0, 42, 1000)
	_, ok := m.SchemaTag()
	assert.False(t, ok)
}

func TestMessage_Accessors(t *testing.T) {
	m := message.New(payloadWithTag("ev42"), "nicos.events", 3, 99, 123456)
	assert.Equal(t, "nicos.events", m.Topic())
	assert.Equal(t, int32(3), m.Partition())
	assert.Equal(t, int64(99), m.Offset())
	assert.Equal(t, int64(123456), m.Timestamp())
}

func TestMessage_Body(t *testing.T) {
	buf := payloadWithTag("f142")
	copy(buf[8:], []byte("payload-bytes"))
	m := message.New(buf, "nicos.motor", 0, 1, 1000)
	assert.Equal(t, buf[8:], m.Body())
}

func TestMessage_Body_TooShort(t *testing.T) {
	m := message.New([]byte{1, 2, 3}, "nicos.motor", 0, 1, 1000)
	assert.Nil(t, m.Body())
}
