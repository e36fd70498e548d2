package remote

import (
	"github.com/MrWong99/atl/pkg/atl"
	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/propagation"
)

// Command types accepted from clients.
const (
	CmdCreateObject     = "create_object"
	CmdReleaseObject    = "release_object"
	CmdExecuteTrigger   = "execute_trigger"
	CmdStopTrigger      = "stop_trigger"
	CmdStopAllTriggers  = "stop_all_triggers"
	CmdLoadTrigger      = "load_trigger"
	CmdUnloadTrigger    = "unload_trigger"
	CmdSetParameter     = "set_parameter"
	CmdSetSwitchState   = "set_switch_state"
	CmdSetEnvironment   = "set_environment"
	CmdSetTransform     = "set_transformation"
	CmdSetOcclusionType = "set_occlusion_type"
	CmdPlayFile         = "play_file"
	CmdStopFile         = "stop_file"
	CmdProcessRay       = "process_ray"
)

// Message types sent to clients.
const (
	MsgResult       = "result"
	MsgError        = "error"
	MsgNotification = "notification"
)

// Command is a client request. Control references are names; the server
// derives their IDs. Object names are local to the session; an empty
// object addresses the global object.
type Command struct {
	// ID is chosen by the client and echoed in the result and in every
	// notification the command causes.
	ID   uint64 `json:"id"`
	Type string `json:"type"`

	Object string `json:"object,omitempty"`

	Trigger     string  `json:"trigger,omitempty"`
	Parameter   string  `json:"parameter,omitempty"`
	Value       float32 `json:"value,omitempty"`
	Switch      string  `json:"switch,omitempty"`
	State       string  `json:"state,omitempty"`
	Environment string  `json:"environment,omitempty"`
	Amount      float32 `json:"amount,omitempty"`

	File      string `json:"file,omitempty"`
	Localized bool   `json:"localized,omitempty"`

	Transformation *impl.Transformation `json:"transformation,omitempty"`
	Occlusion      string               `json:"occlusion,omitempty"`
	Ray            *propagation.RayInfo `json:"ray,omitempty"`

	// Blocking waits for the audio goroutine and reports the final status.
	// Otherwise the result status is "pending".
	Blocking bool `json:"blocking,omitempty"`

	// Notify asks for notifications about the command's outcome.
	Notify bool `json:"notify,omitempty"`
}

// Result acknowledges a command.
type Result struct {
	Type   string `json:"type"`
	ID     uint64 `json:"id"`
	Status string `json:"status"`
	Object string `json:"object,omitempty"`
}

// Error reports a command that could not be turned into a request.
type Error struct {
	Type  string `json:"type"`
	ID    uint64 `json:"id"`
	Error string `json:"error"`
}

// Notification forwards an [atl.Notification] caused by the session.
type Notification struct {
	Type      string        `json:"type"`
	RequestID uint64        `json:"request_id,omitempty"`
	Event     string        `json:"event"`
	Result    string        `json:"result"`
	Status    string        `json:"status"`
	ControlID atl.ControlID `json:"control_id,omitempty"`
	Object    string        `json:"object,omitempty"`

	EventInfo *atl.EventInfo `json:"event_info,omitempty"`
	File      *atl.FileInfo  `json:"file,omitempty"`
}
