package sh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/clock.go/pkg/bus"
	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus/msgs"
)

type plainMsg struct{}

func (m *plainMsg) NewMessage() fx.Message { return &plainMsg{} }

func TestFormatInfo(t *testing.T) {
	info := bus.DeviceInfo{Ref: bus.DeviceRef{Type: "ntpclock", ID: "a1"}}
	assert.Equal(t, "ntpclock/a1", FormatInfo(info))
	info.Meta.Description = "NTP Disciplined Clock"
	info.Meta.Labels = map[string]string{"room": "lab"}
	assert.Equal(t, "ntpclock/a1: NTP Disciplined Clock room=lab", FormatInfo(info))
}

func TestFormatMessage(t *testing.T) {
	out, err := FormatMessage(msgs.NewCommandErrFromMsg("boom"), false)
	require.NoError(t, err)
	assert.Contains(t, out, "CommandErr ")
	assert.Contains(t, out, "boom")

	out, err = FormatMessage(msgs.NewCommandErrFromMsg("boom"), true)
	require.NoError(t, err)
	assert.Equal(t, `{"message":"boom"}`, out)

	_, err = FormatMessage(&plainMsg{}, false)
	assert.Equal(t, msgs.ErrNotSerializable, err)
}
