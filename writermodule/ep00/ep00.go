// Package ep00 implements a minimal reference writer module for EPICS
// connection-status events: one status string plus its timestamp per
// message. It exists mainly to demonstrate a third schema registering
// against the same plugin contract as f142 and ev42.
package ep00

import (
	"encoding/json"

	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/writermodule"
)

// Tag is the 4-byte schema identifier for EPICS connection status events.
const Tag = "ep00"

func init() {
	writermodule.Register(Tag, New)
}

type payload struct {
	SourceName string `json:"source_name"`
	Timestamp  uint64 `json:"timestamp"`
	Status     string `json:"status"`
}

// Module implements writermodule.Module for ep00. It has no configuration
// options, matching the original writer.
type Module struct {
	path string
}

// New constructs a fresh ep00 module instance.
func New() writermodule.Module {
	return &Module{}
}

func (m *Module) ParseConfig(json.RawMessage) error { return nil }

func (m *Module) InitFor(sink *filesink.Sink, path string, attributes json.RawMessage) error {
	m.path = path
	backend := sink.Backend()

	if err := backend.CreateDataset(path+"/connection_status", filestore.DatasetSpec{Type: filestore.DTypeString, Unlimited: true}); err != nil {
		return errors.WrapFatal(err, "ep00.Module", "InitFor", "create connection_status dataset")
	}
	if err := backend.CreateDataset(path+"/connection_status_time", filestore.DatasetSpec{Type: filestore.DTypeUint64, Unlimited: true}); err != nil {
		return errors.WrapFatal(err, "ep00.Module", "InitFor", "create connection_status_time dataset")
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
		return writermodule.WriteResult{Error: errors.WrapInvalid(errors.ErrInvalidConfig, "ep00.Module", "Write", "schema tag mismatch")}
	}

	var p payload
	if err := json.Unmarshal(msg.Body(), &p); err != nil {
		return writermodule.WriteResult{Error: errors.WrapInvalid(err, "ep00.Module", "Write", "decode payload")}
	}

	rowIndex, err := backend.AppendRow(m.path+"/connection_status", p.Status)
	if err != nil {
		return writermodule.WriteResult{Error: errors.WrapTransient(err, "ep00.Module", "Write", "append connection_status")}
	}
	if _, err := backend.AppendRow(m.path+"/connection_status_time", p.Timestamp); err != nil {
		return writermodule.WriteResult{Error: errors.WrapTransient(err, "ep00.Module", "Write", "append connection_status_time")}
	}

	return writermodule.WriteResult{OK: true, BytesWritten: int64(len(p.Status)) + 8, RowIndex: rowIndex}
}

func (m *Module) Flush(filestore.Backend) error { return nil }

func (m *Module) Close() error { return nil }
