// Package master implements command ingress and dispatch: it accepts
// FileWriter_new/_stop/_exit and file_writer_tasks_clear_all commands over
// the command transport, validates them against the fixed JSON schema, and
// dispatches to per-job Controllers, mirroring the role the original
// Master.cpp plays over its Kafka command topic.
package master

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/umithardal/kafka-to-nexus/broker"
	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/jobcontroller"
	"github.com/umithardal/kafka-to-nexus/metric"
)

// StatusPublisher publishes a status document to the command transport's
// status subject. natsclient.Client.Publish satisfies this.
type StatusPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Config parameterizes a Master independent of any one command.
type Config struct {
	ServiceID       string
	StatusTopic     string
	StatusCadence   time.Duration
	OutputDir       string
	QueueCapacity   int
	AfterStopGrace  time.Duration
	FinalizeTimeout time.Duration
}

type commandEnvelope struct {
	Cmd    string `json:"cmd"`
	JobID  string `json:"job_id"`
	Stop   int64  `json:"stop_time"`
}

// Master owns every active job's Controller and the status-publishing loop.
type Master struct {
	cfg       Config
	broker    broker.Broker
	publisher StatusPublisher
	metrics   *metric.MetricsRegistry
	logger    *slog.Logger

	mu   sync.Mutex
	jobs map[string]*jobcontroller.Controller

	exit chan struct{}
	once sync.Once
}

// New constructs a Master. It does not start polling or publishing until Run
// is called.
func New(cfg Config, b broker.Broker, publisher StatusPublisher, metrics *metric.MetricsRegistry, logger *slog.Logger) *Master {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StatusCadence == 0 {
		cfg.StatusCadence = 2 * time.Second
	}
	return &Master{
		cfg:       cfg,
		broker:    b,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("component", "master", "service_id", cfg.ServiceID),
		jobs:      make(map[string]*jobcontroller.Controller),
		exit:      make(chan struct{}),
	}
}

// HandleCommand validates and dispatches one command document, per spec.md
// §6. Validation failures produce an error and no state change.
func (m *Master) HandleCommand(ctx context.Context, raw json.RawMessage) error {
	if err := ValidateCommand(raw); err != nil {
		return err
	}

	var env commandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.WrapInvalid(err, "master.Master", "HandleCommand", "decode command envelope")
	}

	switch env.Cmd {
	case "FileWriter_new":
		return m.handleNew(ctx, raw)
	case "FileWriter_stop":
		return m.handleStop(env)
	case "FileWriter_exit":
		m.handleExit()
		return nil
	case "file_writer_tasks_clear_all":
		return m.handleClearAll(ctx)
	default:
		return errors.WrapInvalid(errors.ErrInvalidData, "master.Master", "HandleCommand", "unrecognised command "+env.Cmd)
	}
}

func (m *Master) handleNew(ctx context.Context, raw json.RawMessage) error {
	var cmd jobcontroller.NewCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return errors.WrapInvalid(err, "master.Master", "handleNew", "decode FileWriter_new")
	}

	ctrl, err := jobcontroller.New(jobcontroller.Config{
		OutputDir:       m.cfg.OutputDir,
		QueueCapacity:   m.cfg.QueueCapacity,
		AfterStopGrace:  m.cfg.AfterStopGrace,
		FinalizeTimeout: m.cfg.FinalizeTimeout,
	}, cmd, m.broker, m.metrics, m.logger)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.jobs[ctrl.JobID()]; exists {
		m.mu.Unlock()
		return errors.WrapInvalid(errors.ErrInvalidConfig, "master.Master", "handleNew", "duplicate job_id "+ctrl.JobID())
	}
	m.jobs[ctrl.JobID()] = ctrl
	m.mu.Unlock()

	if err := ctrl.Start(ctx, cmd.NexusStructure, cmd.FileAttributes.FileName); err != nil {
		m.mu.Lock()
		delete(m.jobs, ctrl.JobID())
		m.mu.Unlock()
		return err
	}

	m.logger.Info("job started", "job_id", ctrl.JobID())
	return nil
}

// handleStop always stops the job immediately, satisfying the "forced stop"
// case (stop_time=now). A future-dated stop_time is not scheduled: doing so
// would mean pushing an updated Window into every already-spawned Partition
// Worker, which currently take their Window by value at spawn time.
func (m *Master) handleStop(env commandEnvelope) error {
	m.mu.Lock()
	ctrl, ok := m.jobs[env.JobID]
	m.mu.Unlock()
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "master.Master", "handleStop", "unknown job_id "+env.JobID)
	}
	ctrl.Stop()
	m.logger.Info("stop requested", "job_id", env.JobID, "requested_stop_time_ms", env.Stop)
	return nil
}

// handleExit signals Run's supervising loop to shut down. It does not itself
// tear down running jobs; the caller decides whether to drain them first.
func (m *Master) handleExit() {
	m.once.Do(func() { close(m.exit) })
}

func (m *Master) handleClearAll(ctx context.Context) error {
	m.mu.Lock()
	jobs := make([]*jobcontroller.Controller, 0, len(m.jobs))
	for _, ctrl := range m.jobs {
		jobs = append(jobs, ctrl)
	}
	m.jobs = make(map[string]*jobcontroller.Controller)
	m.mu.Unlock()

	var firstErr error
	for _, ctrl := range jobs {
		if err := ctrl.Teardown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("teardown job %s: %w", ctrl.JobID(), err)
		}
	}
	m.logger.Info("cleared all jobs", "count", len(jobs))
	return firstErr
}

// Run polls every job for completion or stop-time-reached, tearing them down
// as needed, and publishes the aggregate status document on the configured
// cadence, until ctx is cancelled or an exit command is handled.
func (m *Master) Run(ctx context.Context) error {
	statusTicker := time.NewTicker(m.cfg.StatusCadence)
	defer statusTicker.Stop()
	pollTicker := time.NewTicker(200 * time.Millisecond)
	defer pollTicker.Stop()

	tracker := newETATracker()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.exit:
			return nil
		case <-pollTicker.C:
			m.reapFinishedJobs(ctx)
		case <-statusTicker.C:
			if m.publisher == nil {
				continue
			}
			doc := m.buildStatus(tracker)
			payload, err := json.Marshal(doc)
			if err != nil {
				m.logger.Error("failed to marshal status document", "error", err)
				continue
			}
			if err := m.publisher.Publish(ctx, m.cfg.StatusTopic, payload); err != nil {
				m.logger.Warn("failed to publish status document", "error", err)
			}
		}
	}
}

func (m *Master) reapFinishedJobs(ctx context.Context) {
	m.mu.Lock()
	var toTeardown []*jobcontroller.Controller
	for jobID, ctrl := range m.jobs {
		if ctrl.Done() || ctrl.StopTimeReached() {
			toTeardown = append(toTeardown, ctrl)
			delete(m.jobs, jobID)
		}
	}
	m.mu.Unlock()

	for _, ctrl := range toTeardown {
		if err := ctrl.Teardown(ctx); err != nil {
			m.logger.Error("job teardown failed", "job_id", ctrl.JobID(), "error", err)
			continue
		}
		m.logger.Info("job finished", "job_id", ctrl.JobID())
	}
}

// jobSnapshot lists a Master's currently tracked jobs, for status reporting
// and tests.
func (m *Master) jobSnapshot() []*jobcontroller.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*jobcontroller.Controller, 0, len(m.jobs))
	for _, ctrl := range m.jobs {
		out = append(out, ctrl)
	}
	return out
}
