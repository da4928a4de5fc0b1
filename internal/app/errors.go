package app

import (
	"errors"
	"fmt"

	"github.com/agis/consultcal/internal/contract"
	"github.com/agis/consultcal/internal/output"
)

const (
	exitGeneric  = 1
	exitUsage    = 2
	exitNotFound = 4
	exitStore    = 6
)

// AppError carries the process exit code for a failed command. Printed
// marks errors whose envelope was already written.
type AppError struct {
	Code    int
	Err     error
	Printed bool
}

func (e AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e AppError) Unwrap() error { return e.Err }

func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return AppError{Code: code, Err: err}
}

func WrapPrinted(code int, err error) error {
	if err == nil {
		return nil
	}
	return AppError{Code: code, Err: err, Printed: true}
}

func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e AppError
	if errors.As(err, &e) {
		return e.Code
	}
	return exitGeneric
}

// failWithHint writes the error envelope through printer and returns an
// already-printed AppError so the root command stays quiet.
func failWithHint(printer output.Printer, code contract.ErrorCode, err error, hint string, exitCode int) error {
	if err == nil {
		err = errors.New("unknown error")
	}
	_ = printer.Error(code, err.Error(), hint)
	return WrapPrinted(exitCode, err)
}

func errorCodeForExit(code int) contract.ErrorCode {
	switch code {
	case exitUsage:
		return contract.ErrInvalidUsage
	case exitNotFound:
		return contract.ErrNotFound
	case exitStore:
		return contract.ErrStoreUnavailable
	default:
		return contract.ErrGeneric
	}
}
