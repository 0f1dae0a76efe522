// Package partitionworker implements the per-(topic, partition) poll loop:
// build a consumer, seek to the job's start time, poll and hand messages to
// the Demultiplexer, and retire once every source on the partition has been
// removed or the job's stop-time grace period elapses.
package partitionworker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/umithardal/kafka-to-nexus/broker"
	"github.com/umithardal/kafka-to-nexus/demux"
	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/sourceregistry"
	"github.com/umithardal/kafka-to-nexus/timewindow"
)

// State is a Partition Worker's position in its lifecycle state machine.
type State int32

const (
	Initializing State = iota
	Connecting
	Consuming
	Stopping
	Finished
	Errored
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case Connecting:
		return "CONNECTING"
	case Consuming:
		return "CONSUMING"
	case Stopping:
		return "STOPPING"
	case Finished:
		return "FINISHED"
	case Errored:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const (
	defaultPollTimeout   = 100 * time.Millisecond
	defaultHighWaterMark = 64 * 1024
)

// Config configures one Worker.
type Config struct {
	JobID          string
	Topic          string
	Partition      broker.PartitionInfo
	StartOffset    int64
	Window         timewindow.Window
	AfterStopGrace time.Duration
	PollTimeout    time.Duration
	HighWaterMark  int
}

// QueueDepther reports the File Sink's current queue depth, used for
// backpressure. filesink.Sink satisfies this.
type QueueDepther interface {
	QueueDepth() int
}

// Worker is one (topic, partition) poll loop.
type Worker struct {
	cfg      Config
	broker   broker.Broker
	demux    *demux.Demultiplexer
	registry *sourceregistry.Registry
	sink     QueueDepther
	logger   *slog.Logger
	limiter  *rate.Limiter

	state atomic.Int32
	done  chan struct{}
}

// New constructs a Worker; it does not start polling until Run is called.
func New(cfg Config, b broker.Broker, d *demux.Demultiplexer, registry *sourceregistry.Registry, sink QueueDepther, logger *slog.Logger) *Worker {
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.HighWaterMark == 0 {
		cfg.HighWaterMark = defaultHighWaterMark
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		cfg:      cfg,
		broker:   b,
		demux:    d,
		registry: registry,
		sink:     sink,
		logger: logger.With("component", "partitionworker", "job_id", cfg.JobID,
			"topic", cfg.Topic, "partition", cfg.Partition.Partition),
		limiter: rate.NewLimiter(rate.Every(10*time.Millisecond), 1),
		done:    make(chan struct{}),
	}
	w.state.Store(int32(Initializing))
	return w
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Done is closed once the worker reaches FINISHED or ERROR.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Stop requests the worker retire at its next poll boundary. Cancellation
// is cooperative: there is no thread-cancellation primitive, per spec.md
// §5's ordering/cancellation model.
func (w *Worker) Stop() {
	w.transition(Consuming, Stopping)
	w.transition(Connecting, Stopping)
}

// groupID builds the consumer group id convention:
// filewriter--<host>--<pid>--<topic>--<epoch-ms>.
func groupID(topic string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("filewriter--%s--%d--%s--%d", host, os.Getpid(), topic, time.Now().UnixMilli())
}

// Run drives the worker's state machine to completion. It blocks until the
// worker reaches FINISHED or ERROR, or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)

	w.state.Store(int32(Connecting))
	consumer, err := w.broker.NewConsumer(ctx, w.cfg.Partition, w.cfg.StartOffset, groupID(w.cfg.Topic))
	if err != nil {
		w.fail(err)
		return errors.WrapTransient(err, "partitionworker.Worker", "Run", "attach consumer")
	}
	defer func() { _ = consumer.Close() }()

	w.state.Store(int32(Consuming))
	w.logger.Info("partition worker consuming")

	for {
		if w.State() == Stopping {
			break
		}

		w.applyBackpressure()

		result, msgs, pollErr := consumer.Poll(ctx, w.cfg.PollTimeout)
		switch result {
		case broker.PollOK:
			for _, m := range msgs {
				sourceName, ok := m.SourceName()
				if !ok {
					w.logger.Warn("dropping message with no decodable source name", "offset", m.Offset())
					continue
				}
				hash := sourceregistry.Hash(m.Topic(), sourceName)
				outcome := w.demux.Route(ctx, m, hash)
				if outcome == demux.Stop && w.registry.TopicEmpty(w.cfg.Topic) {
					w.transition(Consuming, Stopping)
				}
			}
		case broker.PollEmpty, broker.PollEndOfPartition:
			if w.registry.TopicEmpty(w.cfg.Topic) || w.stopTimeReached() {
				w.transition(Consuming, Stopping)
			}
		case broker.PollError:
			w.logger.Warn("transient poll error", "error", pollErr)
		}

		select {
		case <-ctx.Done():
			w.transition(Consuming, Stopping)
		default:
		}
	}

	w.state.Store(int32(Stopping))
	_, _, _ = consumer.Poll(ctx, w.cfg.PollTimeout) // final drain

	w.state.Store(int32(Finished))
	w.logger.Info("partition worker finished")
	return nil
}

func (w *Worker) stopTimeReached() bool {
	if !w.cfg.Window.HasStop() {
		return false
	}
	return w.cfg.Window.PastStopGrace(time.Now(), w.cfg.AfterStopGrace)
}

func (w *Worker) applyBackpressure() {
	if w.sink == nil {
		return
	}
	if w.sink.QueueDepth() < w.cfg.HighWaterMark {
		return
	}
	_ = w.limiter.Wait(context.Background())
}

func (w *Worker) transition(from, to State) bool {
	return w.state.CompareAndSwap(int32(from), int32(to))
}

func (w *Worker) fail(err error) {
	w.state.Store(int32(Errored))
	w.logger.Error("partition worker failed", "error", err)
}
