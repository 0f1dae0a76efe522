// Package message defines the immutable envelope that flows from a broker
// consumer through the demultiplexer to a writer module.
package message

import (
	"encoding/json"
	"fmt"
)

// SchemaTagLen is the width of the schema-tag field embedded near the start
// of every payload (bytes 4..8, per the flatbuffer identifier convention
// used by ev42/f142/ep00 schemas).
const SchemaTagLen = 4

const schemaTagOffset = 4

// Message is an immutable, owned byte buffer plus the metadata a Partition
// Worker attaches when it polls it off a broker consumer. Once constructed,
// a Message is read-only; it is handed to exactly one Demultiplexer and, if
// accepted, exactly one writer module.
type Message struct {
	data      []byte
	topic     string
	partition int32
	offset    int64
	timestamp int64 // broker-observed timestamp, ms since epoch
}

// New builds a Message from a byte buffer owned by the caller. The buffer is
// not copied; callers must not mutate it after handing it to New.
func New(data []byte, topic string, partition int32, offset int64, timestamp int64) Message {
	return Message{
		data:      data,
		topic:     topic,
		partition: partition,
		offset:    offset,
		timestamp: timestamp,
	}
}

// Data returns the raw payload bytes.
func (m Message) Data() []byte { return m.data }

// Topic returns the topic this message was consumed from.
func (m Message) Topic() string { return m.topic }

// Partition returns the partition this message was consumed from.
func (m Message) Partition() int32 { return m.partition }

// Offset returns the broker offset this message was consumed at.
func (m Message) Offset() int64 { return m.offset }

// Timestamp returns the broker-observed timestamp in milliseconds. A value
// of 0 means "missing" per spec: the Demultiplexer must drop such messages.
func (m Message) Timestamp() int64 { return m.timestamp }

// SchemaTag returns the 4-byte ASCII schema identifier at bytes 4..8 of the
// payload, and false if the payload is too short to carry one.
func (m Message) SchemaTag() (string, bool) {
	if len(m.data) < schemaTagOffset+SchemaTagLen {
		return "", false
	}
	return string(m.data[schemaTagOffset : schemaTagOffset+SchemaTagLen]), true
}

// Body returns the payload bytes following the schema tag, the portion a
// writer module actually decodes. Returns nil if the payload is too short
// to carry a tag.
func (m Message) Body() []byte {
	if len(m.data) < schemaTagOffset+SchemaTagLen {
		return nil
	}
	return m.data[schemaTagOffset+SchemaTagLen:]
}

// SourceName peeks the "source_name" field every reference schema envelope
// carries in its JSON body, without fully decoding the payload. The
// Partition Worker uses this to resolve a message's source hash before
// handing it to the Demultiplexer; a real binary schema decoder would
// perform the equivalent lookup against its own wire format.
func (m Message) SourceName() (string, bool) {
	body := m.Body()
	if body == nil {
		return "", false
	}
	var envelope struct {
		SourceName string `json:"source_name"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.SourceName == "" {
		return "", false
	}
	return envelope.SourceName, true
}

// String implements fmt.Stringer for logging.
func (m Message) String() string {
	tag, ok := m.SchemaTag()
	if !ok {
		tag = "?"
	}
	return fmt.Sprintf("message{topic=%s partition=%d offset=%d ts=%d tag=%s len=%d}",
		m.topic, m.partition, m.offset, m.timestamp, tag, len(m.data))
}
