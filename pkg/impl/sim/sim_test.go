package sim

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/atl/pkg/impl"
)

type reports struct {
	log []string
}

func (r *reports) ReportStartedEvent(ref impl.EventRef) {
	r.log = append(r.log, fmt.Sprintf("started %d", ref))
}

func (r *reports) ReportFinishedEvent(ref impl.EventRef, success bool) {
	r.log = append(r.log, fmt.Sprintf("finished %d %t", ref, success))
}

func (r *reports) ReportVirtualizedEvent(ref impl.EventRef) {
	r.log = append(r.log, fmt.Sprintf("virtualized %d", ref))
}

func (r *reports) ReportPhysicalizedEvent(ref impl.EventRef) {
	r.log = append(r.log, fmt.Sprintf("physicalized %d", ref))
}

func (r *reports) ReportStartedFile(ref impl.FileRef, success bool) {
	r.log = append(r.log, fmt.Sprintf("file started %d %t", ref, success))
}

func (r *reports) ReportStoppedFile(ref impl.FileRef) {
	r.log = append(r.log, fmt.Sprintf("file stopped %d", ref))
}

func newSim(t *testing.T, opts Options) (*Impl, *reports, impl.Object) {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(opts)
	r := &reports{}
	require.NoError(t, s.Init(r))
	o, err := s.ConstructObject("emitter", impl.IdentityTransformation)
	require.NoError(t, err)
	return s, r, o
}

func newTrigger(t *testing.T, s *Impl, data impl.ControlData) impl.Trigger {
	t.Helper()
	tr, err := s.ConstructTrigger(data)
	require.NoError(t, err)
	return tr
}

func newEvent(t *testing.T, s *Impl, ref impl.EventRef) impl.Event {
	t.Helper()
	e, err := s.ConstructEvent(ref)
	require.NoError(t, err)
	return e
}

func TestExecuteTrigger_Statuses(t *testing.T) {
	tests := []struct {
		name string
		data impl.ControlData
		want impl.Status
	}{
		{name: "one-shot", data: impl.ControlData{}, want: impl.StatusSuccessDoNotTrack},
		{name: "timed", data: impl.ControlData{"duration": "1s"}, want: impl.StatusSuccess},
		{name: "looping", data: impl.ControlData{"loop": true}, want: impl.StatusSuccess},
		{name: "virtual", data: impl.ControlData{"duration": 2.5, "virtual": true}, want: impl.StatusSuccessVirtual},
		{name: "delayed", data: impl.ControlData{"duration": 1, "load_delay": "100ms"}, want: impl.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, o := newSim(t, Options{})
			got := o.ExecuteTrigger(newTrigger(t, s, tt.data), newEvent(t, s, 1))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstructTrigger_RejectsBadData(t *testing.T) {
	s := New(Options{})
	_, err := s.ConstructTrigger(impl.ControlData{"duration": "soon"})
	assert.Error(t, err)
	_, err = s.ConstructTrigger(impl.ControlData{"duration": "-1s"})
	assert.Error(t, err)
	_, err = s.ConstructTrigger(impl.ControlData{"loop": "yes"})
	assert.Error(t, err)
}

func TestEventLifecycle(t *testing.T) {
	s, r, o := newSim(t, Options{})
	tr := newTrigger(t, s, impl.ControlData{"duration": "1s", "load_delay": "200ms"})
	require.Equal(t, impl.StatusPending, o.ExecuteTrigger(tr, newEvent(t, s, 7)))

	s.Update(100 * time.Millisecond)
	assert.Empty(t, r.log)

	s.Update(100 * time.Millisecond)
	assert.Equal(t, []string{"started 7"}, r.log)

	s.Update(time.Second)
	assert.Equal(t, []string{"started 7", "finished 7 true"}, r.log)
	assert.Equal(t, 0, s.ActiveEvents())
	assert.Equal(t, 1200*time.Millisecond, s.Now())
}

func TestStopReportsOnNextUpdate(t *testing.T) {
	s, r, o := newSim(t, Options{})
	tr := newTrigger(t, s, impl.ControlData{"loop": true})
	e := newEvent(t, s, 3)
	require.Equal(t, impl.StatusSuccess, o.ExecuteTrigger(tr, e))

	require.NoError(t, e.Stop())
	assert.Empty(t, r.log)
	s.Update(0)
	assert.Equal(t, []string{"finished 3 true"}, r.log)

	// Stopping twice does not report twice.
	require.NoError(t, e.Stop())
	s.Update(0)
	assert.Len(t, r.log, 1)
}

func TestDestructCancelsSchedule(t *testing.T) {
	s, r, o := newSim(t, Options{})
	tr := newTrigger(t, s, impl.ControlData{"duration": "1s"})
	e := newEvent(t, s, 4)
	require.Equal(t, impl.StatusSuccess, o.ExecuteTrigger(tr, e))

	s.DestructEvent(e)
	s.Update(2 * time.Second)
	assert.Empty(t, r.log)
}

func TestLoadWithLoadTime(t *testing.T) {
	s, r, _ := newSim(t, Options{})
	instant := newTrigger(t, s, impl.ControlData{})
	assert.Equal(t, impl.StatusSuccess, instant.Load(newEvent(t, s, 1)))

	slow := newTrigger(t, s, impl.ControlData{"load_time": "50ms"})
	require.Equal(t, impl.StatusPending, slow.Load(newEvent(t, s, 2)))
	s.Update(50 * time.Millisecond)
	assert.Equal(t, []string{"finished 2 true"}, r.log)
}

func TestFiles(t *testing.T) {
	s, r, o := newSim(t, Options{
		Files:         map[string]time.Duration{"music.ogg": 500 * time.Millisecond},
		FileLoadDelay: 10 * time.Millisecond,
	})

	_, err := s.GetFileData("missing.ogg")
	assert.Error(t, err)
	fd, err := s.GetFileData("music.ogg")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, fd.Duration)

	f, err := s.ConstructStandaloneFile(9, "music.ogg", false, nil)
	require.NoError(t, err)
	require.Equal(t, impl.StatusPending, o.PlayFile(f))

	s.Update(10 * time.Millisecond)
	assert.Equal(t, []string{"file started 9 true"}, r.log)
	s.Update(500 * time.Millisecond)
	assert.Equal(t, []string{"file started 9 true", "file stopped 9"}, r.log)
}

func TestStopFileCancelsReports(t *testing.T) {
	s, r, o := newSim(t, Options{})
	f, err := s.ConstructStandaloneFile(1, "any.ogg", false, nil)
	require.NoError(t, err)
	require.Equal(t, impl.StatusPending, o.PlayFile(f))

	assert.Equal(t, impl.StatusSuccess, o.StopFile(f))
	s.Update(5 * time.Second)
	assert.Empty(t, r.log)
}

func TestTimerOrder(t *testing.T) {
	s := New(Options{})
	var order []int
	s.after(20*time.Millisecond, func() { order = append(order, 3) })
	s.after(10*time.Millisecond, func() { order = append(order, 1) })
	s.after(10*time.Millisecond, func() { order = append(order, 2) })
	s.Update(time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}
