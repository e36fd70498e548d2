package atl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlsDefinition_ValidateAccepts(t *testing.T) {
	def := testControls()
	def.Preloads = []string{"ambience", "STREAMED"}
	assert.NoError(t, def.Validate())
}

func TestControlsDefinition_ValidateCollectsProblems(t *testing.T) {
	def := ControlsDefinition{
		Triggers: []TriggerDefinition{
			{Name: "footstep"},
			{Name: "Footstep"},
			{Name: ""},
		},
		Switches: []SwitchDefinition{
			{Name: "surface", States: []SwitchStateDefinition{{Name: "grass"}, {Name: "grass"}}},
		},
		Preloads: []string{"footstpe", "thunder"},
	}

	err := def.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `trigger "Footstep": defined twice`)
	assert.Contains(t, msg, "trigger: empty name")
	assert.Contains(t, msg, `state "grass" defined twice`)
	assert.Contains(t, msg, `did you mean "footstep"?`)
	assert.Contains(t, msg, `preload "thunder"`)
	assert.ErrorIs(t, err, ErrUnknownControl)
}

func TestSuggest(t *testing.T) {
	got, ok := Suggest("ambiense", []string{"footstep", "ambience"})
	require.True(t, ok)
	assert.Equal(t, "ambience", got)

	_, ok = Suggest("zzz", []string{"footstep", "ambience"})
	assert.False(t, ok)
}

func TestNewControls(t *testing.T) {
	c, err := NewControls(testControls())
	require.NoError(t, err)
	assert.Equal(t, "footstep", c.Name(footstepID))
	assert.Equal(t, "surface", c.Name(surfaceID))
	assert.Empty(t, c.Name(IDFromName("missing")))

	_, err = NewControls(ControlsDefinition{Triggers: []TriggerDefinition{{Name: ""}}})
	assert.Error(t, err)
}
