package bot

import (
	"errors"
	"fmt"
)

// ErrAdmissionDenied means every booking slot is taken.
var ErrAdmissionDenied = errors.New("bot: all booking slots are in use")

// UserError is shown to the user as is.
type UserError struct{ Msg string }

func (e *UserError) Error() string { return e.Msg }

func userError(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}
