package replay

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// Error is a replay failure attributed to exactly one taxonomy kind, so
// consumers can render distinct remediation affordances per kind.
type Error struct {
	Kind schemas.FailureKind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// newError creates a taxonomy error.
func newError(kind schemas.FailureKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// wrapError attributes an underlying error to a taxonomy kind.
func wrapError(kind schemas.FailureKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf maps any error to its taxonomy kind. Errors that escaped the typed
// paths are, by definition, unexpected and therefore fatal.
func KindOf(err error) schemas.FailureKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return schemas.FailureFatal
}

// errCancelled unwinds the step loop when the operator cancels; it is never
// recorded as a step failure.
var errCancelled = newError(schemas.FailureManualCancellation, "replay cancelled by operator")
