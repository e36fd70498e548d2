package resilience

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"
)

func newTestGroup(names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
		Logger:         slog.New(slog.DiscardHandler),
	})
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

func TestFallbackGroup_Execute(t *testing.T) {
	tests := []struct {
		name    string
		failing []string
		want    string
		wantErr error
	}{
		{name: "primary healthy", want: "fmod"},
		{name: "primary fails", failing: []string{"fmod"}, want: "sim"},
		{name: "first two fail", failing: []string{"fmod", "sim"}, want: "null"},
		{name: "all fail", failing: []string{"fmod", "sim", "null"}, wantErr: ErrAllFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newTestGroup("fmod", "sim", "null")

			var tried []string
			got, err := ExecuteWithResult(fg, func(v string) (string, error) {
				tried = append(tried, v)
				if slices.Contains(tt.failing, v) {
					return "", errTest
				}
				return v, nil
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if !strings.Contains(err.Error(), errTest.Error()) {
					t.Errorf("err = %v, want it to carry the last failure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if wantTried := len(tt.failing) + 1; len(tried) != wantTried {
				t.Errorf("tried %v, want %d candidates", tried, wantTried)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenCandidate(t *testing.T) {
	fg := newTestGroup("fmod", "sim")

	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "fmod" {
				return errTest
			}
			return nil
		})
	}
	if st, _ := fg.State("fmod"); st != StateOpen {
		t.Fatalf("fmod breaker = %v, want open", st)
	}

	var tried []string
	if err := fg.Execute(func(v string) error {
		tried = append(tried, v)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(tried, []string{"sim"}) {
		t.Errorf("tried %v, want only sim", tried)
	}
}

func TestFallbackGroup_NamesAndState(t *testing.T) {
	fg := newTestGroup("fmod", "sim")

	if got := fg.Names(); !slices.Equal(got, []string{"fmod", "sim"}) {
		t.Errorf("Names() = %v", got)
	}
	if st, ok := fg.State("sim"); !ok || st != StateClosed {
		t.Errorf("State(sim) = %v, %v; want closed, true", st, ok)
	}
	if _, ok := fg.State("wwise"); ok {
		t.Error("State(wwise) reported an unknown candidate")
	}
}

func TestFallbackGroup_LogsFailover(t *testing.T) {
	var buf bytes.Buffer
	fg := NewFallbackGroup("fmod", "fmod", FallbackConfig{
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	})
	fg.AddFallback("sim", "sim")

	_ = fg.Execute(func(v string) error {
		if v == "fmod" {
			return errTest
		}
		return nil
	})
	if out := buf.String(); !strings.Contains(out, "candidate=fmod") {
		t.Errorf("log output %q does not name the failed candidate", out)
	}
}
