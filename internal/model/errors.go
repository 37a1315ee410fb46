package model

// ValidationError marks a payload as malformed. Jobs failing with a
// ValidationError are terminal immediately; the processor never retries them.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}
