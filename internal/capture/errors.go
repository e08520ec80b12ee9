package capture

import "errors"

// Failures of the capture pipeline. The first three are terminal for an
// attempt: the session moves to [StateError] and must be [Session.Reset]
// before the next [Session.Start].
var (
	ErrPermissionDenied      = errors.New("capture: microphone or speech recognition permission denied")
	ErrCaptureInitFailure    = errors.New("capture: audio capture could not be initialized")
	ErrRecognizerUnavailable = errors.New("capture: speech recognizer unavailable")

	ErrAlreadyActive     = errors.New("capture: a recording is already active")
	ErrNoActiveRecording = errors.New("capture: no active recording")
	ErrNeedsReset        = errors.New("capture: session failed; reset required")

	// ErrCancelled reports a user-initiated cancel. It is not a failure.
	ErrCancelled = errors.New("capture: recording cancelled")
)

// UserMessage renders err as a sentence suitable for the person practising.
// It returns "" for errors that need no message, including nil and
// [ErrCancelled].
func UserMessage(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrCancelled), errors.Is(err, ErrNoActiveRecording):
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone and speech recognition access is needed to record. Grant access and try again."
	case errors.Is(err, ErrCaptureInitFailure):
		return "The microphone could not be started. Check that it is connected and not used by another app."
	case errors.Is(err, ErrRecognizerUnavailable):
		return "Speech recognition is unavailable right now. Check your connection and try again."
	case errors.Is(err, ErrAlreadyActive):
		return "A recording is already in progress."
	case errors.Is(err, ErrNeedsReset):
		return "The last recording failed. Reset the recorder before trying again."
	default:
		return "Something went wrong while recording."
	}
}
