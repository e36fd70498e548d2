package resilience

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/impl/mock"
	"github.com/MrWong99/atl/pkg/impl/null"
)

func candidate(name string, b impl.Impl, err error) BackendCandidate {
	return BackendCandidate{Name: name, Create: func() (impl.Impl, error) { return b, err }}
}

func TestBackendSelector_PrimaryBound(t *testing.T) {
	s := NewBackendSelector(candidate("mock", mock.New(), nil), FallbackConfig{})
	s.AddFallback(candidate("null", null.New(), nil))

	var bound []impl.Impl
	name, err := s.Select(func(_ string, b impl.Impl) error {
		bound = append(bound, b)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "mock" {
		t.Errorf("name = %q, want mock", name)
	}
	if len(bound) != 1 {
		t.Errorf("bind called %d times, want 1", len(bound))
	}
	if got := s.Names(); !slices.Equal(got, []string{"mock", "null"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestBackendSelector_FallsBackOnCreateError(t *testing.T) {
	s := NewBackendSelector(candidate("fmod", nil, errTest), FallbackConfig{})
	s.AddFallback(candidate("null", null.New(), nil))

	name, err := s.Select(func(string, impl.Impl) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "null" {
		t.Errorf("name = %q, want null", name)
	}
}

func TestBackendSelector_FallsBackOnRejectedBind(t *testing.T) {
	primary := mock.New()
	s := NewBackendSelector(candidate("mock", primary, nil), FallbackConfig{})
	s.AddFallback(candidate("null", null.New(), nil))

	name, err := s.Select(func(_ string, b impl.Impl) error {
		if b == impl.Impl(primary) {
			return ErrBackendRejected
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "null" {
		t.Errorf("name = %q, want null", name)
	}
}

func TestBackendSelector_AllFail(t *testing.T) {
	s := NewBackendSelector(candidate("a", nil, errTest), FallbackConfig{})
	s.AddFallback(candidate("b", mock.New(), nil))

	_, err := s.Select(func(string, impl.Impl) error { return ErrBackendRejected })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestBackendSelector_SkipsOpenCircuit(t *testing.T) {
	creates := 0
	s := NewBackendSelector(BackendCandidate{Name: "flaky", Create: func() (impl.Impl, error) {
		creates++
		return nil, errTest
	}}, FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}})
	s.AddFallback(candidate("null", null.New(), nil))

	for range 3 {
		if _, err := s.Select(func(string, impl.Impl) error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if creates != 1 {
		t.Errorf("flaky created %d times, want 1", creates)
	}
	if st, ok := s.group.State("flaky"); !ok || st != StateOpen {
		t.Errorf("flaky state = %v, %v; want open", st, ok)
	}
}
