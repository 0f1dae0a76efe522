// Package jobcontroller implements one write job's lifecycle: template
// validation, file creation, SourceRegistry population, per-topic
// coordinator spawn, and ordered teardown. It plays the role the teacher's
// engine.Engine plays for flow deployments, keyed on write jobs instead.
package jobcontroller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/umithardal/kafka-to-nexus/broker"
	"github.com/umithardal/kafka-to-nexus/demux"
	"github.com/umithardal/kafka-to-nexus/errors"
	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/metric"
	"github.com/umithardal/kafka-to-nexus/sourceregistry"
	"github.com/umithardal/kafka-to-nexus/timewindow"
	"github.com/umithardal/kafka-to-nexus/topiccoordinator"
	"github.com/umithardal/kafka-to-nexus/writermodule"
)

// State is a Job Controller's position in its lifecycle.
type State int32

const (
	Starting State = iota
	Running
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// NewCommand is the decoded body of a FileWriter_new command.
type NewCommand struct {
	JobID          string          `json:"job_id"`
	FileAttributes FileAttributes  `json:"file_attributes"`
	NexusStructure json.RawMessage `json:"nexus_structure"`
	StartTimeMs    int64           `json:"start_time"`
	StopTimeMs     int64           `json:"stop_time"`
	StartLeewayMs  int64           `json:"start_leeway"`
	StopLeewayMs   int64           `json:"stop_leeway"`
}

// FileAttributes names the output file.
type FileAttributes struct {
	FileName string `json:"file_name"`
}

// Config parameterizes a Controller independent of any one job's command.
type Config struct {
	OutputDir       string
	QueueCapacity   int
	AfterStopGrace  time.Duration
	FinalizeTimeout time.Duration
}

// Controller owns one write job from start through teardown.
type Controller struct {
	cfg     Config
	broker  broker.Broker
	metrics *metric.MetricsRegistry
	logger  *slog.Logger

	jobID  string
	window timewindow.Window

	mu           sync.Mutex
	state        State
	failure      error
	registry     *sourceregistry.Registry
	sink         *filesink.Sink
	coordinators []*topiccoordinator.Coordinator
	startedAt    time.Time
}

// New validates cmd and constructs a Controller for it. The file is not
// created and no coordinators are spawned until Start is called.
func New(cfg Config, cmd NewCommand, b broker.Broker, metrics *metric.MetricsRegistry, logger *slog.Logger) (*Controller, error) {
	if cmd.NexusStructure == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "jobcontroller.Controller", "New", "missing nexus_structure")
	}
	if cmd.FileAttributes.FileName == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "jobcontroller.Controller", "New", "missing file_attributes.file_name")
	}

	jobID := cmd.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 1024
	}
	if cfg.FinalizeTimeout == 0 {
		cfg.FinalizeTimeout = 30 * time.Second
	}

	return &Controller{
		cfg:      cfg,
		broker:   b,
		metrics:  metrics,
		logger:   logger.With("component", "jobcontroller", "job_id", jobID),
		jobID:    jobID,
		window:   timewindow.NewFromMillis(cmd.StartTimeMs, cmd.StartLeewayMs, cmd.StopTimeMs, cmd.StopLeewayMs),
		state:    Starting,
		registry: sourceregistry.New(),
	}, nil
}

// JobID returns the job's identifier.
func (c *Controller) JobID() string { return c.jobID }

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failure returns the error that caused a FAILED state, if any.
func (c *Controller) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Start runs spec.md §4.6's five job-start steps: create the file, walk the
// template into stream placeholders, wire each placeholder's writer module
// into the SourceRegistry, and spawn one Topic Coordinator per topic.
func (c *Controller) Start(ctx context.Context, template json.RawMessage, fileName string) error {
	c.startedAt = time.Now()

	if err := ensureOutputDir(c.cfg.OutputDir); err != nil {
		return c.fail(errors.WrapFatal(err, "jobcontroller.Controller", "Start", "create output directory"))
	}

	path := filepath.Join(c.cfg.OutputDir, fileName)
	backend, err := filestore.CreateBadgerBackend(path)
	if err != nil {
		return c.fail(errors.WrapFatal(err, "jobcontroller.Controller", "Start", "create file"))
	}

	sink := filesink.New(c.jobID, backend, c.cfg.QueueCapacity, c.logger, c.metrics)

	placeholders, err := sink.Initialize(template)
	if err != nil {
		_ = backend.Close()
		return c.fail(errors.WrapFatal(err, "jobcontroller.Controller", "Start", "initialize template"))
	}

	if err := sink.Start(ctx); err != nil {
		_ = backend.Close()
		return c.fail(errors.WrapFatal(err, "jobcontroller.Controller", "Start", "start writer queue"))
	}

	byTopic, err := c.wireSourceRegistry(sink, placeholders)
	if err != nil {
		_ = sink.Finalize(c.cfg.FinalizeTimeout)
		return c.fail(err)
	}

	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()

	for topic, sourceNames := range byTopic {
		d := demux.New(c.jobID, topic, c.registry, c.window, sink, c.metrics, c.logger)
		coord := topiccoordinator.New(topiccoordinator.Config{
			JobID:          c.jobID,
			Topic:          topic,
			Window:         c.window,
			AfterStopGrace: c.cfg.AfterStopGrace,
		}, c.broker, d, c.registry, sink, c.logger)

		if err := coord.Start(ctx); err != nil {
			return c.fail(errors.WrapFatal(err, "jobcontroller.Controller", "Start", "start topic coordinator for "+topic))
		}
		c.mu.Lock()
		c.coordinators = append(c.coordinators, coord)
		c.mu.Unlock()
		c.logger.Info("topic coordinator started", "topic", topic, "sources", len(sourceNames))
	}

	c.mu.Lock()
	c.state = Running
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordJobLifecycle("start", time.Since(c.startedAt))
	}
	return nil
}

// wireSourceRegistry resolves each placeholder's writer module and registers
// a SourceEntry, per spec.md §4.6 step 4. Returns the set of source names
// grouped by topic, for logging and Topic Coordinator spawn.
func (c *Controller) wireSourceRegistry(sink *filesink.Sink, placeholders []filesink.StreamPlaceholder) (map[string][]string, error) {
	byTopic := make(map[string][]string)
	for _, ph := range placeholders {
		module, err := writermodule.New(ph.WriterModule)
		if err != nil {
			return nil, errors.WrapFatal(err, "jobcontroller.Controller", "wireSourceRegistry",
				fmt.Sprintf("unknown writer module %q for %s", ph.WriterModule, ph.Path))
		}
		if err := module.ParseConfig(ph.Config); err != nil {
			return nil, errors.WrapFatal(err, "jobcontroller.Controller", "wireSourceRegistry",
				"parse config for "+ph.Path)
		}
		if err := module.InitFor(sink, ph.Path, ph.Config); err != nil {
			return nil, errors.WrapFatal(err, "jobcontroller.Controller", "wireSourceRegistry",
				"init writer module for "+ph.Path)
		}

		hash := sourceregistry.Hash(ph.Topic, ph.SourceName)
		entry := &sourceregistry.Entry{
			Topic:      ph.Topic,
			SourceName: ph.SourceName,
			Hash:       hash,
			SchemaTag:  ph.WriterModule,
			Module:     module,
			Path:       ph.Path,
		}
		if err := c.registry.Register(entry); err != nil {
			return nil, errors.WrapFatal(err, "jobcontroller.Controller", "wireSourceRegistry",
				"register source for "+ph.Path)
		}
		byTopic[ph.Topic] = append(byTopic[ph.Topic], ph.SourceName)
	}
	return byTopic, nil
}

// Done reports whether every Topic Coordinator has finished. Job Controller
// never blocks on workers per spec.md §5; callers poll this.
func (c *Controller) Done() bool {
	c.mu.Lock()
	coords := append([]*topiccoordinator.Coordinator(nil), c.coordinators...)
	c.mu.Unlock()

	for _, coord := range coords {
		select {
		case <-coord.Done():
		default:
			return false
		}
	}
	return true
}

// Stats is a job's aggregate write statistics across every source currently
// registered, for status reporting.
type Stats struct {
	MessagesWritten int64
	BytesWritten    int64
	LastMessageAt   time.Time
}

// Stats aggregates Stats across every topic and source still registered.
// Sources removed after their stop-time no longer contribute, matching the
// registry's own "live sources only" view.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	registry := c.registry
	c.mu.Unlock()

	var out Stats
	var lastMs int64
	for _, topic := range registry.Topics() {
		for _, entry := range registry.Snapshot(topic) {
			s := entry.Snapshot()
			out.MessagesWritten += s.MessagesWritten
			out.BytesWritten += s.BytesWritten
			if s.LastTimestamp > lastMs {
				lastMs = s.LastTimestamp
			}
		}
	}
	if lastMs > 0 {
		out.LastMessageAt = time.UnixMilli(lastMs)
	}
	return out
}

// StopTimeReached reports whether wall-clock has passed stop+after_stop_grace.
func (c *Controller) StopTimeReached() bool {
	return c.window.PastStopGrace(time.Now(), c.cfg.AfterStopGrace)
}

// Stop requests every Topic Coordinator retire, used for both the
// stop-time-reached and forced-stop paths (spec.md §4.6); the caller is
// responsible for calling Teardown once Done reports true.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.state = Stopping
	coords := append([]*topiccoordinator.Coordinator(nil), c.coordinators...)
	c.mu.Unlock()

	for _, coord := range coords {
		coord.Stop()
	}
}

// Teardown performs spec.md §4.6's ordered shutdown: stop coordinators (a
// no-op if Stop already ran), wait for Partition Workers via each
// coordinator's Done channel, drain the File Sink, finalize the file, and
// release the SourceRegistry. Only file finalize failures are surfaced as a
// job failure, per spec.md §7's propagation policy.
func (c *Controller) Teardown(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	coords := append([]*topiccoordinator.Coordinator(nil), c.coordinators...)
	sink := c.sink
	c.mu.Unlock()

	for _, coord := range coords {
		select {
		case <-coord.Done():
		case <-ctx.Done():
		}
	}

	if sink != nil {
		if err := sink.Flush(ctx); err != nil {
			c.logger.Warn("flush before finalize failed", "error", err)
		}
		if err := sink.Finalize(c.cfg.FinalizeTimeout); err != nil {
			return c.fail(errors.WrapFatal(err, "jobcontroller.Controller", "Teardown", "finalize file"))
		}
	}

	c.mu.Lock()
	c.state = Stopped
	c.registry = sourceregistry.New()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordJobLifecycle("stop", time.Since(c.startedAt))
	}
	return nil
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.state = Failed
	c.failure = err
	c.mu.Unlock()
	c.logger.Error("job failed", "error", err)
	return err
}

// ensureOutputDir creates the configured output directory if absent.
func ensureOutputDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
