package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	opened   bool
	closed   bool
	circles  map[string]uint64
	onCalls  []string
	offCalls []string
	openErr  error
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{circles: make(map[string]uint64)}
}

func (b *recordingBackend) Open() error {
	if b.openErr != nil {
		return b.openErr
	}
	b.opened = true
	return nil
}

func (b *recordingBackend) RegisterCircle(alias string, mac uint64) error {
	b.circles[alias] = mac
	return nil
}

func (b *recordingBackend) SwitchOn(alias string) error {
	b.onCalls = append(b.onCalls, alias)
	return nil
}

func (b *recordingBackend) SwitchOff(alias string) error {
	b.offCalls = append(b.offCalls, alias)
	return nil
}

func (b *recordingBackend) Close() error {
	b.closed = true
	return nil
}

func TestClient_ConnectStub_RegisterAndSwitch(t *testing.T) {
	backend := newRecordingBackend()
	client := Spawn(backend)

	client.ConnectStub()
	client.RegisterCircle("lamp", 0xAABBCCDDEEFF)

	require.NoError(t, client.SwitchOn("lamp"))
	require.NoError(t, client.SwitchOff("lamp"))

	client.Hangup()

	assert.True(t, backend.opened)
	assert.Equal(t, uint64(0xAABBCCDDEEFF), backend.circles["lamp"])
	assert.Equal(t, []string{"lamp"}, backend.onCalls)
	assert.Equal(t, []string{"lamp"}, backend.offCalls)
	assert.True(t, backend.closed)
}

func TestClient_RegisterCircle_BeforeConnect_IsSilentNoop(t *testing.T) {
	backend := newRecordingBackend()
	client := Spawn(backend)

	client.RegisterCircle("lamp", 1)
	require.Error(t, client.SwitchOn("lamp"), "no device connected yet")

	client.Hangup()
	assert.Empty(t, backend.circles)
}

func TestClient_SwitchOn_WithoutConnection_ReturnsError(t *testing.T) {
	backend := newRecordingBackend()
	client := Spawn(backend)

	err := client.SwitchOn("lamp")
	assert.Error(t, err)

	client.Hangup()
}
