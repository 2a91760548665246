package cli

import "fmt"

// Exit codes.
const (
	ExitOK         = 0
	ExitFailed     = 1 // the data did not pass validation
	ExitInvalid    = 2 // the configuration or arguments are invalid
	ExitUnexpected = 3
)

// ExitError carries the process exit code of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }
