package jobcontroller_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/broker"
	"github.com/umithardal/kafka-to-nexus/jobcontroller"
	_ "github.com/umithardal/kafka-to-nexus/writermodule/f142"
)

const testTemplate = `{
	"type": "group",
	"name": "",
	"children": [
		{"type": "group", "name": "entry", "children": [
			{"type": "stream", "name": "v", "topic": "topic", "source_name": "sensor-1", "writer_module": "f142"}
		]}
	]
}`

func TestController_StartWiresRegistryAndTearsDown(t *testing.T) {
	fake := broker.NewFake()
	fake.AddPartition("topic", 0)
	fake.SetOffsetForTime("topic", 0, 0)

	cfg := jobcontroller.Config{
		OutputDir:      t.TempDir(),
		AfterStopGrace: 50 * time.Millisecond,
	}
	cmd := jobcontroller.NewCommand{
		JobID:          "job-1",
		FileAttributes: jobcontroller.FileAttributes{FileName: "run1.file"},
		NexusStructure: json.RawMessage(testTemplate),
		StartTimeMs:    0,
		StopTimeMs:     1000,
	}

	ctrl, err := jobcontroller.New(cfg, cmd, fake, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "job-1", ctrl.JobID())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Start(ctx, cmd.NexusStructure, cmd.FileAttributes.FileName))
	assert.Equal(t, jobcontroller.Running, ctrl.State())

	require.NoError(t, ctrl.Teardown(ctx))
	assert.Equal(t, jobcontroller.Stopped, ctrl.State())
}

func TestController_StartFailsIfFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "run1.file")

	fake := broker.NewFake()
	fake.AddPartition("topic", 0)
	fake.SetOffsetForTime("topic", 0, 0)

	cfg := jobcontroller.Config{OutputDir: dir}
	cmd := jobcontroller.NewCommand{
		JobID:          "job-1",
		FileAttributes: jobcontroller.FileAttributes{FileName: "run1.file"},
		NexusStructure: json.RawMessage(testTemplate),
		StopTimeMs:     1000,
	}

	ctrl, err := jobcontroller.New(cfg, cmd, fake, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Start(ctx, cmd.NexusStructure, cmd.FileAttributes.FileName))
	require.NoError(t, ctrl.Teardown(ctx))

	ctrl2, err := jobcontroller.New(cfg, cmd, fake, nil, nil)
	require.NoError(t, err)
	err = ctrl2.Start(ctx, cmd.NexusStructure, cmd.FileAttributes.FileName)
	require.Error(t, err)
	assert.Equal(t, jobcontroller.Failed, ctrl2.State())
	_ = filePath
}

func TestController_MissingRequiredFieldsRejected(t *testing.T) {
	fake := broker.NewFake()
	_, err := jobcontroller.New(jobcontroller.Config{}, jobcontroller.NewCommand{}, fake, nil, nil)
	require.Error(t, err)
}
