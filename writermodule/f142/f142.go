// Package f142 implements the reference writer module for scalar log
// values: one timestamped numeric sample per message, plus periodic cue
// index entries for fast seeking. It is subject to the Demultiplexer's
// duplicate-timestamp suppression rule.
package f142

import (
	"encoding/json"

	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/writermodule"
)

// Tag is the 4-byte schema identifier for scalar log values.
const Tag = "f142"

func init() {
	writermodule.Register(Tag, New)
}

// config mirrors the placeholder's "writer_module.config" sub-object.
type config struct {
	SourceName      string `json:"source"`
	Type            string `json:"type"`
	IndexEveryKB    uint64 `json:"index_every_kb"`
}

// payload is the value envelope carried after the schema tag; the actual
// wire encoding is a schema decoder's concern and out of scope here, but a
// reference module needs something to decode, so it uses a small JSON
// envelope matching the fields the original flatbuffer schema exposes.
type payload struct {
	SourceName string  `json:"source_name"`
	Timestamp  int64   `json:"timestamp"` // ns
	Value      float64 `json:"value"`
}

const defaultIndexEveryBytes = 1 << 20 // 1 MiB, per original's default

// Module implements writermodule.Module for f142.
type Module struct {
	cfg               config
	path              string
	indexEveryBytes   uint64
	totalWrittenBytes uint64
	indexAtBytes      uint64
}

// New constructs a fresh, unconfigured f142 module instance.
func New() writermodule.Module {
	return &Module{indexEveryBytes: defaultIndexEveryBytes}
}

func (m *Module) ParseConfig(raw json.RawMessage) error {
	if err := json.Unmarshal(raw, &m.cfg); err != nil {
		return errors.WrapInvalid(err, "f142.Module", "ParseConfig", "unmarshal config")
	}
	if m.cfg.Type == "" {
		m.cfg.Type = "double"
	}
	if m.cfg.IndexEveryKB > 0 {
		m.indexEveryBytes = m.cfg.IndexEveryKB * 1024
	}
	return nil
}

func (m *Module) datasetType() filestore.DType {
	switch m.cfg.Type {
	case "int8":
		return filestore.DTypeInt8
	case "int16":
		return filestore.DTypeInt16
	case "int32":
		return filestore.DTypeInt32
	case "int64":
		return filestore.DTypeInt64
	case "uint8":
		return filestore.DTypeUint8
	case "uint16":
		return filestore.DTypeUint16
	case "uint32":
		return filestore.DTypeUint32
	case "uint64":
		return filestore.DTypeUint64
	case "float":
		return filestore.DTypeFloat
	default:
		return filestore.DTypeDouble
	}
}

func (m *Module) InitFor(sink *filesink.Sink, path string, attributes json.RawMessage) error {
	m.path = path
	backend := sink.Backend()

	valueSpec := filestore.DatasetSpec{Type: m.datasetType(), Unlimited: true}
	if err := backend.CreateDataset(path+"/value", valueSpec); err != nil {
		return errors.WrapFatal(err, "f142.Module", "InitFor", "create value dataset")
	}
	if err := backend.CreateDataset(path+"/time", filestore.DatasetSpec{Type: filestore.DTypeUint64, Unlimited: true}); err != nil {
		return errors.WrapFatal(err, "f142.Module", "InitFor", "create time dataset")
	}
	if err := backend.CreateDataset(path+"/cue_timestamp_zero", filestore.DatasetSpec{Type: filestore.DTypeUint64, Unlimited: true}); err != nil {
		return errors.WrapFatal(err, "f142.Module", "InitFor", "create cue_timestamp_zero dataset")
	}
	if err := backend.CreateDataset(path+"/cue_index", filestore.DatasetSpec{Type: filestore.DTypeUint64, Unlimited: true}); err != nil {
		return errors.WrapFatal(err, "f142.Module", "InitFor", "create cue_index dataset")
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
		return writermodule.WriteResult{Error: errors.WrapInvalid(errors.ErrInvalidConfig, "f142.Module", "Write", "schema tag mismatch")}
	}

	var p payload
	if err := json.Unmarshal(msg.Body(), &p); err != nil {
		return writermodule.WriteResult{Error: errors.WrapInvalid(err, "f142.Module", "Write", "decode payload")}
	}

	rowIndex, err := backend.AppendRow(m.path+"/value", p.Value)
	if err != nil {
		return writermodule.WriteResult{Error: errors.WrapTransient(err, "f142.Module", "Write", "append value")}
	}
	if _, err := backend.AppendRow(m.path+"/time", uint64(p.Timestamp)); err != nil {
		return writermodule.WriteResult{Error: errors.WrapTransient(err, "f142.Module", "Write", "append time")}
	}

	bytesWritten := int64(8) // one 64-bit sample's worth, for throughput accounting
	m.totalWrittenBytes += uint64(bytesWritten)
	if m.totalWrittenBytes > m.indexAtBytes+m.indexEveryBytes {
		_, _ = backend.AppendRow(m.path+"/cue_timestamp_zero", uint64(p.Timestamp))
		_, _ = backend.AppendRow(m.path+"/cue_index", uint64(rowIndex))
		m.indexAtBytes = m.totalWrittenBytes
	}

	return writermodule.WriteResult{OK: true, BytesWritten: bytesWritten, RowIndex: rowIndex}
}

func (m *Module) Flush(filestore.Backend) error { return nil }

func (m *Module) Close() error { return nil }
