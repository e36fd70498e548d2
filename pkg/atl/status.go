package atl

// Status is the outcome of a request.
type Status int

const (
	// StatusNone marks a request that was not processed yet.
	StatusNone Status = iota

	// StatusPending is returned by PushRequest for queued, non-blocking
	// requests.
	StatusPending

	StatusSuccess
	StatusFailure

	// StatusFailureInvalidControlID means a referenced control is not part of
	// the active control set.
	StatusFailureInvalidControlID

	// StatusFailureInvalidRequest means the request was malformed or targets
	// a released or foreign object.
	StatusFailureInvalidRequest

	// StatusPartialSuccess means some, but not all, impl entries of a trigger
	// started.
	StatusPartialSuccess
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusFailureInvalidControlID:
		return "failure_invalid_control_id"
	case StatusFailureInvalidRequest:
		return "failure_invalid_request"
	case StatusPartialSuccess:
		return "partial_success"
	default:
		return "unknown"
	}
}

// Result collapses a [Status] to what request listeners care about.
type Result int

const (
	ResultSuccess Result = iota
	ResultFailure
)

// String returns "success" or "failure".
func (r Result) String() string {
	if r == ResultSuccess {
		return "success"
	}
	return "failure"
}

// Result maps the status to a notification result. Partial success counts as
// success since at least part of the request took effect.
func (s Status) Result() Result {
	if s == StatusSuccess || s == StatusPartialSuccess {
		return ResultSuccess
	}
	return ResultFailure
}
