package classify

import (
	"fmt"
	"log/slog"
)

// Policy is the action category for a peer error code.
type Policy int

const (
	UnclassifiedCritical Policy = iota
	FatalExit
	ConnectionLost
	RateLimited
	Informational
)

func (p Policy) String() string {
	switch p {
	case FatalExit:
		return "fatal_exit"
	case ConnectionLost:
		return "connection_lost"
	case RateLimited:
		return "rate_limited"
	case Informational:
		return "informational"
	}
	return "unclassified_critical"
}

// Level is the log level a policy is reported at.
func (p Policy) Level() slog.Level {
	switch p {
	case ConnectionLost, RateLimited:
		return slog.LevelWarn
	case Informational:
		return slog.LevelInfo
	}
	return slog.LevelError
}

// Peer message codes.
const (
	CodePacingViolation = 162

	CodeConfigError      = 502 // couldn't connect, socket clients not enabled
	CodeNotRunning       = 504 // not connected
	CodeOrderRouterDown  = 509
	CodeOutOfMemory      = 512
	CodeAlreadyInUse     = 517 // gateway supports one API client at a time
	CodeVersionOutdated  = 518
	CodeAPIDisconnection = 519

	CodeConnectionLost             = 1100
	CodeConnectionRestored         = 1101 // data lost
	CodeConnectionRestoredRetained = 1102 // data maintained
	CodeConnectionRejected         = 1103
	CodeSocketReset                = 1300

	CodeMktFarmDisconnected  = 2103
	CodeMktFarmConnected     = 2104
	CodeHistFarmDisconnected = 2105
	CodeHistFarmConnected    = 2106
	CodeHistFarmInactive     = 2107
	CodeMktFarmInactive      = 2108
	CodeHistFarmDisabled     = 2109
	CodeMktFarmDisabled      = 2110
)

var policies = map[int]Policy{
	CodeSocketReset: FatalExit,

	CodeConnectionLost:             ConnectionLost,
	CodeConnectionRestored:         ConnectionLost,
	CodeConnectionRestoredRetained: ConnectionLost,
	CodeConnectionRejected:         ConnectionLost,

	CodePacingViolation: RateLimited,

	CodeMktFarmDisconnected:  Informational,
	CodeMktFarmConnected:     Informational,
	CodeMktFarmInactive:      Informational,
	CodeMktFarmDisabled:      Informational,
	CodeHistFarmDisconnected: Informational,
	CodeHistFarmConnected:    Informational,
	CodeHistFarmInactive:     Informational,
	CodeHistFarmDisabled:     Informational,
}

var serverSystem = map[int]struct{}{
	CodeConfigError:      {},
	CodeNotRunning:       {},
	CodeOrderRouterDown:  {},
	CodeOutOfMemory:      {},
	CodeAlreadyInUse:     {},
	CodeVersionOutdated:  {},
	CodeAPIDisconnection: {},
}

// Classify returns the policy for a peer error code. The message does not
// influence the result; it is accepted so callers can pass the peer tuple as is.
func Classify(code int, message string) Policy {
	if p, ok := policies[code]; ok {
		return p
	}
	return UnclassifiedCritical
}

// Event is a classified peer error. Events are transient and never persisted.
type Event struct {
	RequestID int64 // -1 when the error is not tied to a request
	Code      int
	Message   string
	Policy    Policy
}

// NewEvent classifies a peer error tuple.
func NewEvent(reqID int64, code int, message string) Event {
	return Event{
		RequestID: reqID,
		Code:      code,
		Message:   message,
		Policy:    Classify(code, message),
	}
}

// ServerSystem reports whether the code belongs to the gateway's server and
// system message family (gateway down, out of memory, already in use, ...).
func (e Event) ServerSystem() bool {
	_, ok := serverSystem[e.Code]
	return ok
}

// Error implements error so unclassified events can be propagated as is.
func (e Event) Error() string {
	return fmt.Sprintf("peer error %d (req %d): %s", e.Code, e.RequestID, e.Message)
}

// LogAttrs returns the attributes used when logging the event.
func (e Event) LogAttrs() []any {
	return []any{
		"req_id", e.RequestID,
		"code", e.Code,
		"msg", e.Message,
		"policy", e.Policy.String(),
	}
}
