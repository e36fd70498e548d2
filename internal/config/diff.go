package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Hot-reloadable changes are reported individually; everything else that
// changed is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// BackendChanged is true when the backend or its fallbacks changed. The
	// runtime swaps the backend with SetImpl.
	BackendChanged bool

	// ControlsChanged is true when any authored control changed. The runtime
	// applies it with a ReloadControls request.
	ControlsChanged bool

	LanguageChanged bool
	NewLanguage     string

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.BackendChanged && !d.ControlsChanged &&
		!d.LanguageChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !reflect.DeepEqual(old.Backend, new.Backend) {
		d.BackendChanged = true
	}
	if !reflect.DeepEqual(old.Controls, new.Controls) {
		d.ControlsChanged = true
	}
	if old.Runtime.Language != new.Runtime.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Runtime.Language
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Server.FrameRate != new.Server.FrameRate {
		d.RestartRequired = append(d.RestartRequired, "server.frame_rate")
	}
	oldRT, newRT := old.Runtime, new.Runtime
	oldRT.Language, newRT.Language = "", ""
	if !reflect.DeepEqual(oldRT, newRT) {
		d.RestartRequired = append(d.RestartRequired, "runtime")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}
