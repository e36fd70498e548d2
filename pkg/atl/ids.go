package atl

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ControlID identifies an authored control (trigger, parameter, switch,
// switch state, environment) or a standalone file. IDs are derived from
// case-insensitive names with [IDFromName].
type ControlID uint32

// InvalidControlID is never produced by [IDFromName].
const InvalidControlID ControlID = 0

// IDFromName hashes name into a [ControlID]. The empty name maps to
// [InvalidControlID].
func IDFromName(name string) ControlID {
	if name == "" {
		return InvalidControlID
	}
	h := xxhash.Sum64String(strings.ToLower(name))
	id := ControlID(uint32(h) ^ uint32(h>>32))
	if id == InvalidControlID {
		id = 1
	}
	return id
}

// TriggerImplID identifies one impl entry of a trigger. It is stable across
// control reloads and backend swaps as long as the trigger keeps its name and
// the entry keeps its position.
type TriggerImplID uint32

func triggerImplID(triggerName string, index int) TriggerImplID {
	return TriggerImplID(IDFromName(triggerName + "#" + strconv.Itoa(index)))
}

// TriggerInstanceID identifies one in-flight execution of a trigger.
type TriggerInstanceID uint32

// Built-in parameters fed by velocity tracking when they are defined in the
// control set.
var (
	AbsoluteVelocityParameterID = IDFromName("absolute_velocity")
	RelativeVelocityParameterID = IDFromName("relative_velocity")
)

// SystemEvent is a bit set classifying notifications. Request listeners
// register a mask and only receive notifications whose event is in it.
type SystemEvent uint32

const (
	SystemEventImplSet SystemEvent = 1 << iota
	SystemEventTriggerExecuted
	SystemEventTriggerFinished
	SystemEventFilePlay
	SystemEventFileStarted
	SystemEventFileStopped
)

const (
	// SystemEventNone marks notifications no listener receives.
	SystemEventNone SystemEvent = 0

	// SystemEventAll matches every system event.
	SystemEventAll = ^SystemEvent(0)
)

var systemEventNames = []struct {
	ev   SystemEvent
	name string
}{
	{SystemEventImplSet, "impl_set"},
	{SystemEventTriggerExecuted, "trigger_executed"},
	{SystemEventTriggerFinished, "trigger_finished"},
	{SystemEventFilePlay, "file_play"},
	{SystemEventFileStarted, "file_started"},
	{SystemEventFileStopped, "file_stopped"},
}

// String returns the names of the set bits joined by "|".
func (e SystemEvent) String() string {
	switch e {
	case SystemEventNone:
		return "none"
	case SystemEventAll:
		return "all"
	}
	var parts []string
	for _, n := range systemEventNames {
		if e&n.ev != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// ParseSystemEvent converts a single event name, or "all", into a
// [SystemEvent].
func ParseSystemEvent(name string) (SystemEvent, bool) {
	if name == "all" {
		return SystemEventAll, true
	}
	for _, n := range systemEventNames {
		if n.name == name {
			return n.ev, true
		}
	}
	return SystemEventNone, false
}
