package main

import (
	"errors"

	terrors "github.com/odvcencio/tern/pkg/errors"
)

type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return 1
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

// exitCodeForError maps an error to a process exit code. Configuration
// problems exit 2 and rejected remote credentials exit 4, so scripts
// can tell a bad invocation from a runtime failure.
func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	switch {
	case terrors.IsCode(err, terrors.ErrCodeConfigLoad),
		terrors.IsCode(err, terrors.ErrCodeConfigParse),
		terrors.IsCode(err, terrors.ErrCodeConfigInvalid):
		return 2
	case terrors.IsCode(err, terrors.ErrCodeRemoteAuth):
		return 4
	}
	return 1
}
