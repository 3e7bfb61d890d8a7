// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-reactor.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrLoopExists      = errors.New("another event loop already exists in this goroutine")
	ErrNotInLoopThread = errors.New("operation must run on the loop goroutine")
	ErrLoopClosed      = errors.New("event loop is closed")
	ErrThreadStarted   = errors.New("event loop thread already started")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeSyscall
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// SyscallError wraps an OS failure of op with ErrCodeSyscall.
func SyscallError(op string, err error) *Error {
	e := NewError(ErrCodeSyscall, op)
	e.Err = err
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
