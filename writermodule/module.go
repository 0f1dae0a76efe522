// Package writermodule defines the writer-module plugin contract and a
// process-wide registry keyed by 4-byte schema tag. Concrete decoders for
// specific schemas (f142, ev42, ep00, ...) live in subpackages and register
// themselves from an init function.
package writermodule

import (
	"encoding/json"
	"sync"

	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
)

// WriteResult carries the outcome of one Write call. The Demultiplexer uses
// BytesWritten for per-source statistics and passes RowIndex back in the
// File Sink's result; cue indexes are built by the modules themselves.
// Error is non-nil on failure and the other fields are then meaningless.
type WriteResult struct {
	OK           bool
	BytesWritten int64
	RowIndex     int64
	Error        error
}

// Module is a writer-module plugin instance, bound to one StreamPlaceholder
// for the lifetime of a job. No goroutine other than the File Sink's
// writer goroutine may ever call Write; modules may keep internal buffers
// under that assumption.
type Module interface {
	// ParseConfig validates and stores the placeholder's raw configuration.
	ParseConfig(config json.RawMessage) error

	// InitFor creates the module's subtree (datasets, attributes) rooted at
	// path via sink, for a freshly-created write job.
	InitFor(sink *filesink.Sink, path string, attributes json.RawMessage) error

	// Reopen re-attaches to an existing subtree at path, for resuming a job
	// against a file the module has already initialized.
	Reopen(sink *filesink.Sink, path string) error

	// Write decodes m's payload and appends to the module's subtree. It
	// must only be called on the File Sink's writer goroutine.
	Write(backend filestore.Backend, m message.Message) WriteResult

	// Flush writes out anything the module still buffers. The Job
	// Controller's stop path flushes the File Sink only; it does not call
	// Flush on modules.
	Flush(backend filestore.Backend) error

	// Close releases any module-held resources. It does not close the sink.
	Close() error
}

// Factory constructs a fresh Module instance, one per StreamPlaceholder.
type Factory func() Module

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a writer module factory under its 4-byte schema tag.
// Register is typically called from a subpackage's init function; a
// duplicate tag registration panics, since it can only indicate a build
// mistake, never a runtime condition.
func Register(tag string, factory Factory) {
	if len(tag) != 4 {
		panic("writermodule: schema tag must be exactly 4 bytes, got " + tag)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[tag]; exists {
		panic("writermodule: duplicate registration for tag " + tag)
	}
	factories[tag] = factory
}

// New instantiates the writer module registered for tag.
func New(tag string) (Module, error) {
	mu.RLock()
	factory, ok := factories[tag]
	mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "writermodule", "New", "unknown schema tag "+tag)
	}
	return factory(), nil
}

// Registered reports whether a factory is registered for tag.
func Registered(tag string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[tag]
	return ok
}

// Tags returns every currently-registered schema tag, in no particular
// order.
func Tags() []string {
	mu.RLock()
	defer mu.RUnlock()
	tags := make([]string, 0, len(factories))
	for tag := range factories {
		tags = append(tags, tag)
	}
	return tags
}
