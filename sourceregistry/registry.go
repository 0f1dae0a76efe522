// Package sourceregistry maps a source hash to its SourceEntry, per topic.
// It is the Demultiplexer's routing table: one lookup answers "is this
// source known", another performs the idempotent remove that retires a
// source once its stop-time passes.
package sourceregistry

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/writermodule"
)

// Hash returns the stable 64-bit hash of a (topic, source-name) pair.
func Hash(topic, sourceName string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(topic)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(sourceName)
	return h.Sum64()
}

// Stats tracks per-source counters used for status reporting and metrics.
type Stats struct {
	MessagesWritten  int64
	BytesWritten     int64
	LastTimestamp    int64
	DuplicatesSkipped int64
}

// Entry is a SourceEntry: an active binding of one (topic, source-name) to a
// writer module instance owning a subtree of the file.
type Entry struct {
	Topic        string
	SourceName   string
	Hash         uint64
	SchemaTag    string
	Module       writermodule.Module
	Path         string
	SkipDedup    bool // event-stream modules (ev42) opt out of de-duplication

	mu    sync.Mutex
	stats Stats
}

// RecordWrite updates counters after a successful write.
func (e *Entry) RecordWrite(timestamp int64, bytesWritten int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.MessagesWritten++
	e.stats.BytesWritten += bytesWritten
	e.stats.LastTimestamp = timestamp
}

// RecordDuplicateSkipped increments the de-duplication counter.
func (e *Entry) RecordDuplicateSkipped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.DuplicatesSkipped++
}

// LastTimestamp returns the timestamp of the most recent accepted write,
// used by the Demultiplexer's de-duplication rule.
func (e *Entry) LastTimestamp() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.LastTimestamp
}

// Snapshot returns a copy of the entry's current statistics.
func (e *Entry) Snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Registry is a per-topic map of source hash to SourceEntry. All methods
// are safe for concurrent use: Partition Workers for many topics share one
// Registry per job.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]map[uint64]*Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sources: make(map[string]map[uint64]*Entry)}
}

// Register adds a SourceEntry for (topic, source-name). Returns an error if
// the pair is already registered; a job's SourceRegistry is populated once
// at job start and never re-registers a live source.
func (r *Registry) Register(entry *Entry) error {
	if entry == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "nil entry")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	topicSources, ok := r.sources[entry.Topic]
	if !ok {
		topicSources = make(map[uint64]*Entry)
		r.sources[entry.Topic] = topicSources
	}
	if _, exists := topicSources[entry.Hash]; exists {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "duplicate source registration")
	}
	topicSources[entry.Hash] = entry
	return nil
}

// Lookup returns the SourceEntry for (topic, hash), if known.
func (r *Registry) Lookup(topic string, hash uint64) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sources[topic][hash]
	return entry, ok
}

// Remove retires a source, idempotently. Returns true the first time it
// removes an entry, false on every subsequent call for the same source.
func (r *Registry) Remove(topic string, hash uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	topicSources, ok := r.sources[topic]
	if !ok {
		return false
	}
	if _, exists := topicSources[hash]; !exists {
		return false
	}
	delete(topicSources, hash)
	return true
}

// TopicEmpty reports whether every source registered on topic has been
// removed, the signal a Partition Worker uses to enter STOPPING.
func (r *Registry) TopicEmpty(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources[topic]) == 0
}

// Topics returns the set of topics with at least one registered source at
// call time.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.sources))
	for topic, sources := range r.sources {
		if len(sources) > 0 {
			topics = append(topics, topic)
		}
	}
	return topics
}

// Snapshot returns a copy of every entry currently registered on topic, for
// status reporting. Copy-on-read avoids holding the registry lock while a
// caller iterates.
func (r *Registry) Snapshot(topic string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sources := r.sources[topic]
	out := make([]*Entry, 0, len(sources))
	for _, entry := range sources {
		out = append(out, entry)
	}
	return out
}
