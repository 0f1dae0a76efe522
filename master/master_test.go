package master_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/broker"
	"github.com/umithardal/kafka-to-nexus/master"
	_ "github.com/umithardal/kafka-to-nexus/writermodule/f142"
)

const newCommandTemplate = `{
	"cmd": "FileWriter_new",
	"job_id": "job-1",
	"file_attributes": {"file_name": "run1.file"},
	"nexus_structure": {
		"type": "group",
		"name": "",
		"children": [
			{"type": "group", "name": "entry", "children": [
				{"type": "stream", "name": "v", "topic": "topic", "source_name": "sensor-1", "writer_module": "f142"}
			]}
		]
	},
	"stop_time": 1000
}`

type fakePublisher struct {
	mu        sync.Mutex
	published [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, _ string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, data)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func newTestMaster(t *testing.T, publisher master.StatusPublisher) *master.Master {
	t.Helper()
	fake := broker.NewFake()
	fake.AddPartition("topic", 0)
	fake.SetOffsetForTime("topic", 0, 0)

	cfg := master.Config{
		ServiceID:     "kafka-to-nexus-test",
		StatusTopic:   "kafka-to-nexus.status",
		StatusCadence: 20 * time.Millisecond,
		OutputDir:     t.TempDir(),
	}
	return master.New(cfg, fake, publisher, nil, nil)
}

func TestMaster_HandleNewStartsJob(t *testing.T) {
	m := newTestMaster(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, m.HandleCommand(ctx, json.RawMessage(newCommandTemplate)))
}

func TestMaster_HandleNewRejectsInvalidCommand(t *testing.T) {
	m := newTestMaster(t, nil)
	ctx := context.Background()
	err := m.HandleCommand(ctx, json.RawMessage(`{"cmd": "not_a_real_command"}`))
	require.Error(t, err)
}

func TestMaster_HandleStopUnknownJobFails(t *testing.T) {
	m := newTestMaster(t, nil)
	ctx := context.Background()
	err := m.HandleCommand(ctx, json.RawMessage(`{"cmd": "FileWriter_stop", "job_id": "missing"}`))
	require.Error(t, err)
}

func TestMaster_RunPublishesStatusAndExitsOnCommand(t *testing.T) {
	pub := &fakePublisher{}
	m := newTestMaster(t, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.HandleCommand(ctx, json.RawMessage(newCommandTemplate)))

	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, m.HandleCommand(ctx, json.RawMessage(`{"cmd": "FileWriter_exit"}`)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after FileWriter_exit")
	}

	assert.Greater(t, pub.count(), 0)
}

func TestMaster_ClearAllTearsDownJobs(t *testing.T) {
	m := newTestMaster(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, m.HandleCommand(ctx, json.RawMessage(newCommandTemplate)))
	require.NoError(t, m.HandleCommand(ctx, json.RawMessage(`{"cmd": "file_writer_tasks_clear_all"}`)))

	err := m.HandleCommand(ctx, json.RawMessage(`{"cmd": "FileWriter_stop", "job_id": "job-1"}`))
	require.Error(t, err)
}
