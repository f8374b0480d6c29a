// Package voiceerr defines the closed set of tagged error variants used
// across this repository: Disconnected, Timeout, UtteranceTooLong,
// ExternalUnavailable, UserReset, Unexpected. They are sentinel errors
// wrapped with %w so errors.Is works across the detector/player/
// orchestrator boundary.
package voiceerr

import "errors"

var (
	// ErrDisconnected: the peer hung up or a track ended. Terminal,
	// propagated silently by the orchestrator.
	ErrDisconnected = errors.New("voiceerr: disconnected")

	// ErrTimeout: a bounded wait elapsed. Recoverable or terminal
	// depending on which state it was raised in (see callers).
	ErrTimeout = errors.New("voiceerr: timeout")

	// ErrUtteranceTooLong: the user exceeded the per-turn recording cap.
	ErrUtteranceTooLong = errors.New("voiceerr: utterance too long")

	// ErrExternalUnavailable: an LLM/TTS/STT adapter call failed.
	ErrExternalUnavailable = errors.New("voiceerr: external service unavailable")

	// ErrUserReset: the orchestrator decided to end the session for a
	// reason attributable to the user/session state, not a transport
	// failure (e.g. two consecutive silence timeouts).
	ErrUserReset = errors.New("voiceerr: user reset")

	// ErrUnexpected: any other failure. Logged with detail, surfaced to
	// the peer as "error internal".
	ErrUnexpected = errors.New("voiceerr: unexpected")
)

// Is reports whether err wraps target through the standard errors.Is chain.
// Convenience for call sites that don't want to import "errors" themselves.
func Is(err, target error) bool { return errors.Is(err, target) }
