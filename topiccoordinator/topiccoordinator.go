// Package topiccoordinator implements the per-topic two-phase start: fetch
// partition metadata with doubling backoff, resolve start offsets, then
// spawn one Partition Worker per partition and supervise them.
package topiccoordinator

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/umithardal/kafka-to-nexus/broker"
	"github.com/umithardal/kafka-to-nexus/demux"
	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/partitionworker"
	"github.com/umithardal/kafka-to-nexus/pkg/retry"
	"github.com/umithardal/kafka-to-nexus/sourceregistry"
	"github.com/umithardal/kafka-to-nexus/timewindow"
)

const (
	initialMetadataTimeout = 500 * time.Millisecond
	maxMetadataTimeout     = 8 * time.Second
)

// metadataRetryConfig builds the doubling-backoff policy spec.md §4.5
// requires for metadata fetch: 500ms initial timeout, doubling up to an 8s
// cap, retried until the caller's context is cancelled. MaxRetries is set to
// the largest attempt count errors.RetryConfig can express rather than a
// real bound, since the metadata fetch never gives up on its own.
func metadataRetryConfig() errors.RetryConfig {
	return errors.RetryConfig{
		MaxRetries:    math.MaxInt32,
		InitialDelay:  initialMetadataTimeout,
		MaxDelay:      maxMetadataTimeout,
		BackoffFactor: 2,
	}
}

// Config configures a Coordinator.
type Config struct {
	JobID          string
	Topic          string
	Window         timewindow.Window
	AfterStopGrace time.Duration
}

// Coordinator discovers a topic's partitions, spawns a Partition Worker per
// partition, and reports done once every worker has finished.
type Coordinator struct {
	cfg      Config
	broker   broker.Broker
	demux    *demux.Demultiplexer
	registry *sourceregistry.Registry
	sink     partitionworker.QueueDepther
	logger   *slog.Logger

	mu      sync.Mutex
	workers []*partitionworker.Worker
	done    chan struct{}
}

// New constructs a Coordinator for one topic within one job.
func New(cfg Config, b broker.Broker, d *demux.Demultiplexer, registry *sourceregistry.Registry, sink partitionworker.QueueDepther, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		broker:   b,
		demux:    d,
		registry: registry,
		sink:     sink,
		logger:   logger.With("component", "topiccoordinator", "job_id", cfg.JobID, "topic", cfg.Topic),
		done:     make(chan struct{}),
	}
}

// Done is closed once every Partition Worker has finished or the Job
// Controller requested stop.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Start runs the two-phase startup and then supervises the spawned workers
// until they all finish. It returns as soon as workers are spawned; callers
// that want completion wait on Done. A worker error is logged when the
// workers finish and is not returned to the caller.
func (c *Coordinator) Start(ctx context.Context) error {
	partitions, err := c.fetchMetadataWithBackoff(ctx)
	if err != nil {
		return errors.WrapFatal(err, "topiccoordinator.Coordinator", "Start", "fetch partition metadata")
	}

	group, gctx := errgroup.WithContext(ctx)
	c.mu.Lock()
	for _, p := range partitions {
		startOffset, err := c.broker.OffsetForTime(ctx, p, c.cfg.Window.Start-c.cfg.Window.StartLeeway)
		if err != nil {
			c.logger.Warn("offset-for-time failed, falling back to earliest", "partition", p.Partition, "error", err)
			startOffset = 0
		}
		worker := partitionworker.New(partitionworker.Config{
			JobID:          c.cfg.JobID,
			Topic:          c.cfg.Topic,
			Partition:      p,
			StartOffset:    startOffset,
			Window:         c.cfg.Window,
			AfterStopGrace: c.cfg.AfterStopGrace,
		}, c.broker, c.demux, c.registry, c.sink, c.logger)
		c.workers = append(c.workers, worker)

		w := worker
		group.Go(func() error { return w.Run(gctx) })
	}
	c.mu.Unlock()

	go func() {
		if err := group.Wait(); err != nil {
			c.logger.Error("topic coordinator worker failed", "error", err)
		}
		close(c.done)
	}()

	return nil
}

// fetchMetadataWithBackoff retries Partitions with a doubling timeout,
// capped, per spec.md §4.5. The per-attempt fetch deadline comes from
// errors.RetryConfig.BackoffDelay; the inter-attempt sleep, jitter, and
// context-cancellation check are pkg/retry.DoWithResult's.
func (c *Coordinator) fetchMetadataWithBackoff(ctx context.Context) ([]broker.PartitionInfo, error) {
	retryCfg := metadataRetryConfig()
	attempt := 0

	return retry.DoWithResult(ctx, retryCfg.ToRetryConfig(), func() ([]broker.PartitionInfo, error) {
		timeout := retryCfg.BackoffDelay(attempt)
		attempt++

		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		partitions, err := c.broker.Partitions(fetchCtx, c.cfg.Topic)
		if err != nil {
			c.logger.Warn("metadata fetch failed, retrying", "timeout", timeout, "error", err)
		}
		return partitions, err
	})
}

// Stop requests every spawned Partition Worker retire.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.workers {
		w.Stop()
	}
}

// Workers returns the coordinator's spawned Partition Workers, for status
// reporting.
func (c *Coordinator) Workers() []*partitionworker.Worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*partitionworker.Worker, len(c.workers))
	copy(out, c.workers)
	return out
}
