// Package compiler defines the contract shared by asset compilers and the
// error kinds they report.
package compiler

import (
	"context"
	"errors"
	"fmt"
)

// Compiler turns one source asset into one or more binary artifacts.
// Compile writes to exactly the output paths it is given, in order.
type Compiler interface {
	Name() string
	Compile(ctx context.Context, input string, outputs []string) error
}

// Error kinds. Match them with errors.Is.
var (
	ErrInput     = errors.New("input error")
	ErrToolchain = errors.New("toolchain error")
	ErrIO        = errors.New("i/o error")
)

// Error is a compile failure tagged with its kind.
type Error struct {
	Kind error  // ErrInput, ErrToolchain or ErrIO
	Path string // file the failure relates to, if any
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// InputErrorf reports a missing or malformed source asset.
func InputErrorf(path, format string, args ...any) error {
	return &Error{Kind: ErrInput, Path: path, Err: fmt.Errorf(format, args...)}
}

// IOError wraps a failure writing, seeking or deleting on the filesystem.
func IOError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrIO, Path: path, Err: err}
}

// StageError is a failure of one external toolchain stage.
type StageError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ToolchainError reports that an external toolchain stage failed.
func ToolchainError(path string, stage *StageError) error {
	return &Error{Kind: ErrToolchain, Path: path, Err: stage}
}
