package oerror

import "fmt"

// KineticError is the error type used for internal faults detected by the
// simulation core.
type KineticError struct {
	Err string
}

// New creates a KineticError from the given format and arguments.
func New(format string, args ...interface{}) *KineticError {
	return &KineticError{Err: fmt.Sprintf(format, args...)}
}

func (e *KineticError) Error() string {
	return e.Err
}
