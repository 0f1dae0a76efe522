package writermodule_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/writermodule"
)

type stubModule struct{}

func (stubModule) ParseConfig(json.RawMessage) error { return nil }
func (stubModule) InitFor(*filesink.Sink, string, json.RawMessage) error { return nil }
func (stubModule) Reopen(*filesink.Sink, string) error { return nil }
func (stubModule) Write(filestore.Backend, message.Message) writermodule.WriteResult {
	return writermodule.WriteResult{OK: true}
}
func (stubModule) Flush(filestore.Backend) error { return nil }
func (stubModule) Close() error                  { return nil }

func TestRegisterAndNew(t *testing.T) {
	writermodule.Register("tst1", func() writermodule.Module { return stubModule{} })

	assert.True(t, writermodule.Registered("tst1"))
	m, err := writermodule.New("tst1")
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestNew_UnknownTag(t *testing.T) {
	_, err := writermodule.New("zzzz")
	assert.Error(t, err)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	writermodule.Register("tst2", func() writermodule.Module { return stubModule{} })
	assert.Panics(t, func() {
		writermodule.Register("tst2", func() writermodule.Module { return stubModule{} })
	})
}

func TestRegister_BadTagLengthPanics(t *testing.T) {
	assert.Panics(t, func() {
		writermodule.Register("bad", func() writermodule.Module { return stubModule{} })
	})
}
