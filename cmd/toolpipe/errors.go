package main

import (
	"errors"

	pipeerrors "toolpipe/internal/errors"
)

const (
	exitFailure     = 1
	exitUsage       = 2
	exitRateLimited = 3
	exitTimeout     = 4
)

// ExitCodeError pins the process exit code for err.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// exitCode maps err to a stable process exit code so scripts can tell a
// bad call from a throttled or slow one.
func exitCode(err error) int {
	var coded *ExitCodeError
	if errors.As(err, &coded) && coded.Code != 0 {
		return coded.Code
	}
	switch pipeerrors.Classify(err) {
	case pipeerrors.KindInvalidInput, pipeerrors.KindUnknown, pipeerrors.KindInvalid:
		return exitUsage
	case pipeerrors.KindRateLimited:
		return exitRateLimited
	case pipeerrors.KindTimeout:
		return exitTimeout
	default:
		return exitFailure
	}
}

func describeError(err error) string {
	return pipeerrors.FormatForLLM(err)
}

// errAlreadyReported marks an error the command already printed.
type errAlreadyReported struct {
	err error
}

func (e errAlreadyReported) Error() string { return e.err.Error() }

func (e errAlreadyReported) Unwrap() error { return e.err }

func alreadyReported(err error) bool {
	var reported errAlreadyReported
	return errors.As(err, &reported)
}
