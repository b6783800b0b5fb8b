package controller

// ErrorReason is the final-failure reason surfaced through
// GetLastError (spec §6 "Error enum").
type ErrorReason int

// Error reasons (spec §6).
const (
	ErrorNone ErrorReason = iota
	ErrorTimeout
	ErrorIncompatible
	ErrorAudioIO
	ErrorUnknown
)

func (e ErrorReason) String() string {
	switch e {
	case ErrorTimeout:
		return "timeout"
	case ErrorIncompatible:
		return "incompatible"
	case ErrorAudioIO:
		return "audio_io"
	case ErrorUnknown:
		return "unknown"
	default:
		return "none"
	}
}
