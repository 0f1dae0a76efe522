// Package ev42 implements the reference writer module for neutron event
// streams: batches of (event_id, time_of_flight) pairs per pulse, indexed
// by event_index/event_time_zero. Unlike f142, ev42 opts out of the
// Demultiplexer's duplicate-timestamp suppression rule, since a pulse
// legitimately repeats a timestamp across multiple event batches.
package ev42

import (
	"encoding/json"

	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/writermodule"
)

// Tag is the 4-byte schema identifier for event streams.
const Tag = "ev42"

func init() {
	writermodule.Register(Tag, New)
}

const defaultIndexEveryBytes = 1 << 20

type config struct {
	SourceName   string `json:"source"`
	IndexEveryKB uint64 `json:"index_every_kb"`
}

// payload mirrors the fields the original ev42 flatbuffer schema exposes:
// one pulse's worth of events plus the pulse's own reference time.
type payload struct {
	SourceName     string   `json:"source_name"`
	PulseTime      uint64   `json:"pulse_time"` // ns, this pulse's time-zero
	TimeOfFlight   []uint32 `json:"time_of_flight"`
	DetectorID     []uint32 `json:"detector_id"`
}

// Module implements writermodule.Module for ev42.
type Module struct {
	cfg               config
	path              string
	indexEveryBytes   uint64
	totalWrittenBytes uint64
	indexAtBytes      uint64
	eventsSoFar       uint32
}

// New constructs a fresh, unconfigured ev42 module instance.
func New() writermodule.Module {
	return &Module{indexEveryBytes: defaultIndexEveryBytes}
}

func (m *Module) ParseConfig(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &m.cfg); err != nil {
		return errors.WrapInvalid(err, "ev42.Module", "ParseConfig", "unmarshal config")
	}
	if m.cfg.IndexEveryKB > 0 {
		m.indexEveryBytes = m.cfg.IndexEveryKB * 1024
	}
	return nil
}

func (m *Module) InitFor(sink *filesink.Sink, path string, attributes json.RawMessage) error {
	m.path = path
	backend := sink.Backend()

	specs := map[string]filestore.DType{
		"event_time_offset": filestore.DTypeUint32,
		"event_id":          filestore.DTypeUint32,
		"event_time_zero":   filestore.DTypeUint64,
		"event_index":       filestore.DTypeUint32,
		"cue_timestamp_zero": filestore.DTypeUint64,
		"cue_index":         filestore.DTypeUint32,
	}
	for name, dtype := range specs {
		if err := backend.CreateDataset(path+"/"+name, filestore.DatasetSpec{Type: dtype, Unlimited: true}); err != nil {
			return errors.WrapFatal(err, "ev42.Module", "InitFor", "create "+name+" dataset")
		}
	}

	if len(attributes) > 0 {
		var attrs map[string]any
		if err := json.Unmarshal(attributes, &attrs); err == nil {
			for name, value := range attrs {
				_ = backend.WriteAttribute(path, name, value)
			}
		}
	}
	return nil
}

func (m *Module) Reopen(sink *filesink.Sink, path string) error {
	m.path = path
	return nil
}

func (m *Module) Write(backend filestore.Backend, msg message.Message) writermodule.WriteResult {
	tag, ok := msg.SchemaTag()
	if !ok || tag != Tag {
		return writermodule.WriteResult{Error: errors.WrapInvalid(errors.ErrInvalidConfig, "ev42.Module", "Write", "schema tag mismatch")}
	}

	var p payload
	if err := json.Unmarshal(msg.Body(), &p); err != nil {
		return writermodule.WriteResult{Error: errors.WrapInvalid(err, "ev42.Module", "Write", "decode payload")}
	}
	if len(p.TimeOfFlight) != len(p.DetectorID) {
		return writermodule.WriteResult{Error: errors.WrapInvalid(errors.ErrInvalidConfig, "ev42.Module", "Write", "time_of_flight/detector_id length mismatch")}
	}

	indexRow, err := backend.AppendRow(m.path+"/event_index", m.eventsSoFar)
	if err != nil {
		return writermodule.WriteResult{Error: errors.WrapTransient(err, "ev42.Module", "Write", "append event_index")}
	}
	if _, err := backend.AppendRow(m.path+"/event_time_zero", p.PulseTime); err != nil {
		return writermodule.WriteResult{Error: errors.WrapTransient(err, "ev42.Module", "Write", "append event_time_zero")}
	}

	var bytesWritten int64
	for i := range p.TimeOfFlight {
		if _, err := backend.AppendRow(m.path+"/event_time_offset", p.TimeOfFlight[i]); err != nil {
			return writermodule.WriteResult{Error: errors.WrapTransient(err, "ev42.Module", "Write", "append event_time_offset")}
		}
		if _, err := backend.AppendRow(m.path+"/event_id", p.DetectorID[i]); err != nil {
			return writermodule.WriteResult{Error: errors.WrapTransient(err, "ev42.Module", "Write", "append event_id")}
		}
		bytesWritten += 8
	}
	m.eventsSoFar += uint32(len(p.TimeOfFlight))

	m.totalWrittenBytes += uint64(bytesWritten)
	if m.totalWrittenBytes > m.indexAtBytes+m.indexEveryBytes {
		_, _ = backend.AppendRow(m.path+"/cue_timestamp_zero", p.PulseTime)
		_, _ = backend.AppendRow(m.path+"/cue_index", m.eventsSoFar)
		m.indexAtBytes = m.totalWrittenBytes
	}

	return writermodule.WriteResult{OK: true, BytesWritten: bytesWritten, RowIndex: indexRow}
}

func (m *Module) Flush(filestore.Backend) error { return nil }

func (m *Module) Close() error { return nil }
