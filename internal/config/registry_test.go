package config_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/atl/internal/config"
)

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()
	r := config.DefaultRegistry()
	if got := r.Names(); !slices.Equal(got, []string{"null", "sim"}) {
		t.Errorf("Names(): got %v", got)
	}

	for _, name := range []string{"null", "sim"} {
		b, err := r.Create(config.BackendEntry{Name: name}, nil)
		if err != nil {
			t.Fatalf("Create(%q): unexpected error: %v", name, err)
		}
		if got := b.GetInfo().Name; got != name {
			t.Errorf("Create(%q): backend reports %q", name, got)
		}
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	_, err := config.NewRegistry().Create(config.BackendEntry{Name: "fmod"}, nil)
	if !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Fatalf("expected ErrBackendNotRegistered, got %v", err)
	}
}

func TestRegistry_SimOptions(t *testing.T) {
	t.Parallel()
	r := config.DefaultRegistry()

	b, err := r.Create(config.BackendEntry{Name: "sim", Options: map[string]any{
		"files":           map[string]any{"music.ogg": "90s"},
		"file_load_delay": "20ms",
	}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd, err := b.GetFileData("music.ogg")
	if err != nil {
		t.Fatalf("GetFileData: %v", err)
	}
	if fd.Duration != 90*time.Second {
		t.Errorf("duration: got %v, want 90s", fd.Duration)
	}

	_, err = r.Create(config.BackendEntry{Name: "sim", Options: map[string]any{"speed": 2}}, nil)
	if err == nil {
		t.Error("expected error for unknown sim option")
	}
}

func TestDecodeOptions(t *testing.T) {
	t.Parallel()
	var out struct {
		Delay time.Duration `yaml:"delay"`
		Name  string        `yaml:"name"`
	}
	if err := config.DecodeOptions(map[string]any{"delay": "1.5s", "name": "x"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Delay != 1500*time.Millisecond || out.Name != "x" {
		t.Errorf("got %+v", out)
	}
	if err := config.DecodeOptions(nil, &out); err != nil {
		t.Errorf("nil options: %v", err)
	}
}
