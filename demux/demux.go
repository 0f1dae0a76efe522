// Package demux implements the per-topic Demultiplexer: the decision table
// that routes a decoded message to its SourceEntry, or drops/stops it,
// following the five-step order fixed by the file-writing contract.
package demux

import (
	"context"
	"log/slog"
	"sync"

	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/metric"
	"github.com/umithardal/kafka-to-nexus/sourceregistry"
	"github.com/umithardal/kafka-to-nexus/timewindow"
)

// Outcome names what a Demultiplexer decided about one message.
type Outcome int

const (
	// Written means the message was submitted to the File Sink.
	Written Outcome = iota
	// DroppedMissingTimestamp means m.Timestamp() == 0.
	DroppedMissingTimestamp
	// DroppedUnknownSource means the source hash isn't registered on this topic.
	DroppedUnknownSource
	// DroppedPreWindow means the message arrived before start - start_leeway.
	DroppedPreWindow
	// DroppedDuplicate means the timestamp repeats the source's last write.
	DroppedDuplicate
	// Stop means the message arrived after stop + stop_leeway; the source
	// was removed and the caller should retire the partition for it.
	Stop
	// DroppedWriteError means the write itself failed; the error is logged
	// but the message is still considered "handled" by the demultiplexer.
	DroppedWriteError
)

// evSchemaTag is the schema tag that always opts out of de-duplication,
// per spec.md §4.3's hard-coded exception for event-stream modules.
const evSchemaTag = "ev42"

// alwaysWriteTags lists schema tags exempt from the duplicate-timestamp
// suppression rule.
var alwaysWriteTags = map[string]bool{evSchemaTag: true}

// Demultiplexer routes decoded messages for one topic to their SourceEntry
// in the shared SourceRegistry, following the decision order documented on
// Route.
type Demultiplexer struct {
	jobID    string
	topic    string
	registry *sourceregistry.Registry
	window   timewindow.Window
	sink     *filesink.Sink
	metrics  *metric.MetricsRegistry
	logger   *slog.Logger

	mu            sync.Mutex
	warnedMissing map[uint64]bool
}

// New constructs a Demultiplexer for one (job, topic) pair.
func New(jobID, topic string, registry *sourceregistry.Registry, window timewindow.Window, sink *filesink.Sink, metrics *metric.MetricsRegistry, logger *slog.Logger) *Demultiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demultiplexer{
		jobID:         jobID,
		topic:         topic,
		registry:      registry,
		window:        window,
		sink:          sink,
		metrics:       metrics,
		logger:        logger.With("component", "demux", "job_id", jobID, "topic", topic),
		warnedMissing: make(map[uint64]bool),
	}
}

// Route decides what to do with m, in this fixed order:
//
//  1. missing timestamp → drop, log once per source
//  2. unknown source → drop
//  3. before window → drop silently
//  4. after window → remove source, report Stop
//  5. otherwise → duplicate check, then submit write
func (d *Demultiplexer) Route(ctx context.Context, m message.Message, sourceHash uint64) Outcome {
	if m.Timestamp() == 0 {
		d.warnMissingOnce(sourceHash)
		d.recordDropped("missing_timestamp")
		return DroppedMissingTimestamp
	}

	entry, ok := d.registry.Lookup(d.topic, sourceHash)
	if !ok {
		d.recordDropped("unknown_source")
		return DroppedUnknownSource
	}

	tsNanos := timewindow.MillisToNanos(m.Timestamp())
	switch d.window.Test(tsNanos) {
	case timewindow.BeforeWindow:
		d.recordDropped("pre_window")
		return DroppedPreWindow
	case timewindow.AfterWindow:
		d.registry.Remove(d.topic, sourceHash)
		d.logger.Info("source stop-time reached", "source", entry.SourceName)
		return Stop
	}

	if !alwaysWriteTags[entry.SchemaTag] && m.Timestamp() == entry.LastTimestamp() {
		entry.RecordDuplicateSkipped()
		d.recordDropped("duplicate_timestamp")
		return DroppedDuplicate
	}

	return d.write(ctx, entry, m)
}

// write submits m to the writer module via the File Sink's single writer
// goroutine and blocks until the operation completes. Route runs on a
// Partition Worker's own goroutine, never on the writer goroutine itself,
// so this Submit/Await round trip is what actually serialises the write.
func (d *Demultiplexer) write(ctx context.Context, entry *sourceregistry.Entry, m message.Message) Outcome {
	module := entry.Module
	future, err := d.sink.Submit(func(backend filestore.Backend) (filesink.Result, error) {
		wr := module.Write(backend, m)
		if wr.Error != nil {
			return filesink.Result{}, wr.Error
		}
		return filesink.Result{BytesWritten: wr.BytesWritten, RowIndex: wr.RowIndex}, nil
	})
	if err != nil {
		d.logger.Error("failed to enqueue write", "source", entry.SourceName, "error", err)
		if d.metrics != nil {
			d.metrics.RecordSourceWriteError(d.jobID, d.topic, entry.SourceName)
		}
		return DroppedWriteError
	}

	result, err := future.Await(ctx)
	if err != nil {
		d.logger.Error("write failed", "source", entry.SourceName, "error", err)
		if d.metrics != nil {
			d.metrics.RecordSourceWriteError(d.jobID, d.topic, entry.SourceName)
		}
		return DroppedWriteError
	}

	entry.RecordWrite(m.Timestamp(), result.BytesWritten)
	if d.metrics != nil {
		d.metrics.RecordSourceWritten(d.jobID, d.topic, entry.SourceName)
	}
	return Written
}

func (d *Demultiplexer) warnMissingOnce(sourceHash uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.warnedMissing[sourceHash] {
		return
	}
	d.warnedMissing[sourceHash] = true
	d.logger.Warn("dropping message with missing timestamp", "source_hash", sourceHash)
}

func (d *Demultiplexer) recordDropped(reason string) {
	if d.metrics != nil {
		d.metrics.RecordSourceDropped(d.jobID, d.topic, reason)
	}
}
