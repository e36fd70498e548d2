package atl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/impl/sim"
)

func TestSimulatedPlayback(t *testing.T) {
	cfg := testConfig()
	cfg.Controls = ControlsDefinition{
		Triggers: []TriggerDefinition{
			{Name: "gunshot", Impls: []impl.ControlData{{"duration": "30ms"}}},
			{Name: "engine", Impls: []impl.ControlData{{"loop": true, "load_delay": "10ms"}}},
		},
	}
	s, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() { require.NoError(t, s.Close()) }()

	require.Equal(t, StatusSuccess, s.SetImpl(sim.New(sim.Options{Logger: cfg.Logger})))
	assert.Equal(t, sim.Name, s.ImplInfo().Name)

	rec := &recorder{}
	s.AddRequestListener(rec.callback, nil, SystemEventTriggerFinished)

	o, st := s.CreateObject(ObjectData{Name: "tank"}, WithBlocking())
	require.Equal(t, StatusSuccess, st)
	require.Equal(t, StatusSuccess, o.ExecuteTrigger(IDFromName("gunshot"), WithBlocking(), WithCallbackOnAudioThread()))
	require.Equal(t, StatusSuccess, o.ExecuteTrigger(IDFromName("engine"), WithBlocking()))

	require.Eventually(t, func() bool {
		return len(rec.of(SystemEventTriggerFinished)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	snap, ok := s.Snapshot().Object(o.ID())
	require.True(t, ok)
	assert.Equal(t, 1, snap.ActiveEvents, "looping engine keeps playing")

	require.Equal(t, StatusSuccess, o.StopTrigger(IDFromName("engine"), WithBlocking()))
	require.Eventually(t, func() bool {
		snap, ok := s.Snapshot().Object(o.ID())
		return ok && snap.ActiveEvents == 0
	}, 2*time.Second, 5*time.Millisecond)
}
