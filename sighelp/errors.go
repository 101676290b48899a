// Copyright © 2024 The ELPS authors

package sighelp

import "errors"

// Failure kinds surfaced as notices. None of them escape the dispatcher
// or the session entry points; they are exported so that callers and
// tests can classify the notices and logs they observe.
var (
	ErrNoClientAttached      = errors.New("no client is attached")
	ErrCapabilityUnsupported = errors.New("signatureHelp is not supported")
	ErrRequestTimeout        = errors.New("request timeout")
	ErrRequestFailed         = errors.New("request failed")
	ErrEmptyResult           = errors.New("no signature information found")
)

// ErrInvalidTriggerEvent is returned by the entry points when the editor
// glue hands over an event that is not one of the known variants. It is
// a contract violation, not a runtime condition.
var ErrInvalidTriggerEvent = errors.New("invalid trigger event")
