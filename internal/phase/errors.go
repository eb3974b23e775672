package phase

import "errors"

// ErrProtocolViolation is matched by every ProtocolViolationError.
var ErrProtocolViolation = errors.New("phase loop protocol violation")

// ProtocolViolationError reports a caller that did not alternate between
// LoopIterator.Current and LoopIterator.Advance. It is a programming defect
// and fatal to the actor.
type ProtocolViolationError struct {
	Op     string
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return ErrProtocolViolation.Error() + ": " + e.Op + ": " + e.Reason
}

func (e *ProtocolViolationError) Is(target error) bool {
	return target == ErrProtocolViolation
}
