package capture

import "time"

// State is a phase of the capture state machine:
//
//	idle → preparing → recording → processing → finished
//
// Any non-terminal state may fall into error. Reset returns finished and
// error to idle.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRecording
	StateProcessing
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether s holds the microphone.
func (s State) Active() bool {
	return s == StatePreparing || s == StateRecording || s == StateProcessing
}

// UpdateKind tells which field of an [Update] changed.
type UpdateKind int

const (
	UpdateLevel UpdateKind = iota + 1
	UpdatePartial
	UpdateFinal
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateLevel:
		return "level"
	case UpdatePartial:
		return "partial"
	case UpdateFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Update is one event on the recording side channel.
type Update struct {
	Kind UpdateKind

	// Attempt identifies the recording the update belongs to. Consumers
	// should ignore updates from an attempt other than the current one.
	Attempt uint64

	// Level is the normalized input level in [0,1]. Set for UpdateLevel.
	Level float64

	// Transcript is the cumulative best-guess text. Set for UpdatePartial
	// and UpdateFinal.
	Transcript string

	// Elapsed is the wall-clock time since recording began.
	Elapsed time.Duration
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	State      State
	Attempt    uint64
	Authorized bool

	// Err is the failure that moved the session to StateError.
	Err error

	Level      float64
	Transcript string
	Elapsed    time.Duration
}
