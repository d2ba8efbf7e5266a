package statemachine

import "errors"

var (
	ErrInvalidRule = errors.New("statemachine: rule needs from, to and event")
	// ErrUndefined means no rule leaves the state on the event.
	ErrUndefined = errors.New("statemachine: transition not defined")
	// ErrRejected means rules exist but every guard refused.
	ErrRejected = errors.New("statemachine: transition rejected by guards")
	ErrAction   = errors.New("statemachine: transition action failed")
)
