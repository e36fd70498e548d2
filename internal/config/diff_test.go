package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/atl/internal/config"
)

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestDiff_Identical(t *testing.T) {
	t.Parallel()
	a := mustLoad(t, fullYAML)
	b := mustLoad(t, fullYAML)
	if d := config.Diff(a, b); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, fullYAML)
	updated := strings.NewReplacer(
		"log_level: debug", "log_level: warn",
		"name: sim", "name: \"null\"",
		"language: german", "language: french",
		"duration: 250ms", "duration: 300ms",
	).Replace(fullYAML)
	d := config.Diff(old, mustLoad(t, updated))

	if !d.LogLevelChanged || d.NewLogLevel != config.LogWarn {
		t.Errorf("log level: got %+v", d)
	}
	if !d.BackendChanged {
		t.Error("backend change not detected")
	}
	if !d.ControlsChanged {
		t.Error("controls change not detected")
	}
	if !d.LanguageChanged || d.NewLanguage != "french" {
		t.Errorf("language: got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("nothing should require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, fullYAML)
	updated := strings.NewReplacer(
		`listen_addr: ":9090"`, `listen_addr: ":9191"`,
		"max_objects: 100", "max_objects: 200",
		"service_name: atl-test", "service_name: other",
	).Replace(fullYAML)
	d := config.Diff(old, mustLoad(t, updated))

	for _, want := range []string{"server.listen_addr", "runtime", "telemetry"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired should contain %q, got %v", want, d.RestartRequired)
		}
	}
	if d.BackendChanged || d.ControlsChanged {
		t.Errorf("unexpected hot changes: %+v", d)
	}
}
