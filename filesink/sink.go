// Package filesink implements the single-writer serialiser guarding a
// hierarchical file: a template walker that materialises the static tree
// and emits stream placeholders, and a one-worker queue that funnels every
// mutating operation through a single goroutine.
package filesink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/metric"
	"github.com/umithardal/kafka-to-nexus/pkg/worker"
)

// Result carries the outcome of a successful write operation: the number of
// bytes the writer module reports having written and the row index the
// value landed at, used respectively for throughput metrics and cue-index
// generation.
type Result struct {
	BytesWritten int64
	RowIndex     int64
}

// OpFunc is a unit of file mutation, given exclusive access to the backend.
type OpFunc func(filestore.Backend) (Result, error)

type opOutcome struct {
	result Result
	err    error
}

type operation struct {
	run      OpFunc
	resultCh chan opOutcome
}

// Future is the non-blocking handle Submit returns; callers Await it when
// they need the result (e.g. a writer module returning WriteResult to the
// Demultiplexer).
type Future struct {
	ch chan opOutcome
}

// Await blocks until the operation completes or ctx is cancelled.
func (f Future) Await(ctx context.Context) (Result, error) {
	select {
	case out := <-f.ch:
		return out.result, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Sink is a single-threaded owner of a hierarchical file. All mutations are
// serialised through a one-worker queue built on the generic pkg/worker
// pool, specialised to exactly one worker per spec.md §4.1's single
// mutating-owner requirement.
type Sink struct {
	jobID   string
	backend filestore.Backend
	logger  *slog.Logger
	pool    *worker.Pool[operation]
	started bool
}

// New constructs a Sink over backend. queueCapacity bounds the number of
// pending operations before Submit reports the queue full.
func New(jobID string, backend filestore.Backend, queueCapacity int, logger *slog.Logger, metrics *metric.MetricsRegistry) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		jobID:   jobID,
		backend: backend,
		logger:  logger.With("component", "filesink", "job_id", jobID),
	}

	var opts []worker.Option[operation]
	if metrics != nil {
		opts = append(opts, worker.WithMetricsRegistry[operation](metrics, "filesink_"+jobID))
	}
	s.pool = worker.NewPool[operation](1, queueCapacity, s.process, opts...)
	return s
}

func (s *Sink) process(_ context.Context, op operation) error {
	result, err := op.run(s.backend)
	op.resultCh <- opOutcome{result: result, err: err}
	if err != nil {
		return err
	}
	return nil
}

// Start starts the sink's dedicated writer goroutine.
func (s *Sink) Start(ctx context.Context) error {
	if err := s.pool.Start(ctx); err != nil {
		return errors.WrapFatal(err, "Sink", "Start", "start writer queue")
	}
	s.started = true
	return nil
}

// Submit enqueues a write operation, non-blocking. Operations run in
// enqueue order on the sink's single writer goroutine; ordering between
// distinct callers is not otherwise defined.
func (s *Sink) Submit(run OpFunc) (Future, error) {
	op := operation{run: run, resultCh: make(chan opOutcome, 1)}
	if err := s.pool.Submit(op); err != nil {
		return Future{}, errors.WrapTransient(err, "Sink", "Submit", "enqueue operation")
	}
	return Future{ch: op.resultCh}, nil
}

// QueueDepth reports the number of operations currently pending, used by
// Partition Workers for high-water-mark backpressure.
func (s *Sink) QueueDepth() int {
	return s.pool.Stats().QueueDepth
}

// Flush drains operations enqueued so far by submitting a marker op and
// waiting for it: since the queue is FIFO and single-worker, its
// completion implies every earlier operation has completed.
func (s *Sink) Flush(ctx context.Context) error {
	future, err := s.Submit(func(filestore.Backend) (Result, error) {
		return Result{}, nil
	})
	if err != nil {
		return err
	}
	_, err = future.Await(ctx)
	return err
}

// Initialize walks the template depth-first, creating every group, dataset,
// attributes, and link node, and returns a StreamPlaceholder for every
// "stream" node encountered. It runs before the writer goroutine starts, so
// it drives the backend directly rather than through Submit. Errors
// creating individual nodes are logged and skipped so the file is never
// half-torn; only a malformed template document itself is a fatal error.
func (s *Sink) Initialize(templateJSON json.RawMessage) ([]StreamPlaceholder, error) {
	var root templateNode
	if err := json.Unmarshal(templateJSON, &root); err != nil {
		return nil, errors.WrapFatal(err, "Sink", "Initialize", "parse template")
	}

	if err := s.backend.CreateGroup("/"); err != nil {
		return nil, errors.WrapFatal(err, "Sink", "Initialize", "create root group")
	}
	if err := s.backend.WriteAttribute("/", "HDF5_Version", "1.10.6"); err != nil {
		s.logger.Warn("failed writing root attribute", "attribute", "HDF5_Version", "error", err)
	}
	if err := s.backend.WriteAttribute("/", "file_time", time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("failed writing root attribute", "attribute", "file_time", "error", err)
	}

	var placeholders []StreamPlaceholder
	for _, child := range root.Children {
		s.walk(child, "/", &placeholders)
	}
	return placeholders, nil
}

func (s *Sink) walk(raw json.RawMessage, parentPath string, placeholders *[]StreamPlaceholder) {
	var node templateNode
	if err := json.Unmarshal(raw, &node); err != nil {
		s.logger.Error("skipping malformed template node", "error", err)
		return
	}

	nodePath := joinPath(parentPath, node.Name)

	switch node.Type {
	case "group":
		if err := s.backend.CreateGroup(nodePath); err != nil {
			s.logger.Error("skipping group node", "path", nodePath, "error", err)
			return
		}
		s.writeAttributes(nodePath, node.Attributes)
		for _, child := range node.Children {
			s.walk(child, nodePath, placeholders)
		}

	case "dataset":
		spec := filestore.DatasetSpec{Type: filestore.DType(datasetType(node.Dataset))}
		if node.Dataset != nil {
			spec.Unlimited = node.Dataset.unlimited()
		}
		if err := s.backend.CreateDataset(nodePath, spec); err != nil {
			s.logger.Error("skipping dataset node", "path", nodePath, "error", err)
			return
		}
		if len(node.Values) > 0 {
			var value any
			if err := json.Unmarshal(node.Values, &value); err != nil {
				s.logger.Error("skipping dataset initial value", "path", nodePath, "error", err)
			} else if err := s.backend.SetInitialValue(nodePath, value); err != nil {
				s.logger.Error("failed writing dataset initial value", "path", nodePath, "error", err)
			}
		}
		s.writeAttributes(nodePath, node.Attributes)

	case "stream":
		*placeholders = append(*placeholders, StreamPlaceholder{
			Path:         nodePath,
			Topic:        node.Topic,
			SourceName:   node.SourceName,
			WriterModule: node.WriterModule,
			Config:       raw,
		})

	case "link":
		if err := s.backend.CreateLink(nodePath, node.Target); err != nil {
			s.logger.Error("skipping link node", "path", nodePath, "error", err)
		}

	default:
		s.logger.Debug("ignoring unknown template node type", "type", node.Type, "path", nodePath)
	}
}

func datasetType(d *datasetSpec) string {
	if d == nil {
		return string(filestore.DTypeDouble)
	}
	return d.Type
}

func (s *Sink) writeAttributes(nodePath string, attrs []attributeSpec) {
	for _, attr := range attrs {
		if err := s.backend.WriteAttribute(nodePath, attr.Name, attr.Value); err != nil {
			s.logger.Error("failed writing attribute", "path", nodePath, "attribute", attr.Name, "error", err)
		}
	}
}

// Finalize stops the writer queue, resolves deferred links, and closes the
// backend. Failures here are the only ones the Job Controller surfaces as a
// job failure per spec.md §7's propagation policy.
func (s *Sink) Finalize(stopTimeout time.Duration) error {
	if s.started {
		if err := s.pool.Stop(stopTimeout); err != nil {
			return errors.WrapFatal(err, "Sink", "Finalize", "stop writer queue")
		}
	}
	if err := s.backend.Finalize(); err != nil {
		return errors.WrapFatal(err, "Sink", "Finalize", "resolve deferred links")
	}
	if err := s.backend.Close(); err != nil {
		return errors.WrapFatal(err, "Sink", "Finalize", "close backend")
	}
	return nil
}

// Backend exposes the underlying storage backend, for writer modules'
// InitFor/Reopen calls that need to create their own subtree directly
// during job setup, before the writer queue is the sole path to the file.
func (s *Sink) Backend() filestore.Backend {
	return s.backend
}
