package atl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFromName(t *testing.T) {
	assert.Equal(t, InvalidControlID, IDFromName(""))
	assert.NotEqual(t, InvalidControlID, IDFromName("footstep"))
	assert.Equal(t, IDFromName("Footstep"), IDFromName("footstep"))
	assert.NotEqual(t, IDFromName("footstep"), IDFromName("footsteps"))
}

func TestTriggerImplIDIsPerIndex(t *testing.T) {
	assert.NotEqual(t, triggerImplID("ambience", 0), triggerImplID("ambience", 1))
	assert.Equal(t, triggerImplID("ambience", 1), triggerImplID("Ambience", 1))
}

func TestSystemEvent_String(t *testing.T) {
	tests := []struct {
		ev   SystemEvent
		want string
	}{
		{SystemEventNone, "none"},
		{SystemEventAll, "all"},
		{SystemEventTriggerFinished, "trigger_finished"},
		{SystemEventFileStarted | SystemEventFileStopped, "file_started|file_stopped"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.String())
	}
}

func TestParseSystemEvent(t *testing.T) {
	ev, ok := ParseSystemEvent("file_play")
	assert.True(t, ok)
	assert.Equal(t, SystemEventFilePlay, ev)

	ev, ok = ParseSystemEvent("all")
	assert.True(t, ok)
	assert.Equal(t, SystemEventAll, ev)

	_, ok = ParseSystemEvent("explosion")
	assert.False(t, ok)
}

func TestStatus_Result(t *testing.T) {
	assert.Equal(t, ResultSuccess, StatusSuccess.Result())
	assert.Equal(t, ResultSuccess, StatusPartialSuccess.Result())
	assert.Equal(t, ResultFailure, StatusFailure.Result())
	assert.Equal(t, ResultFailure, StatusFailureInvalidControlID.Result())
	assert.Equal(t, ResultFailure, StatusPending.Result())
}
