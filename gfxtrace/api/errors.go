// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gfxtrace/gfxtrace/core/data/chunk"
)

// ErrorKind classifies the failures of capture and replay.
type ErrorKind int

const (
	// Internal is an unclassified failure.
	Internal ErrorKind = iota
	// DataCorruption is a malformed chunk stream.
	DataCorruption
	// UnknownResource is a reference to an identifier that is not registered.
	UnknownResource
	// DuplicateBinding is a second live object bound to one identifier.
	DuplicateBinding
	// APIReplayFailed is a call rejected by the device during replay.
	APIReplayFailed
	// DeviceLost means the device stopped responding.
	DeviceLost
	// OutOfMemory means the device ran out of memory.
	OutOfMemory
	// Unreplayable means the trace needs capabilities the device lacks.
	Unreplayable
	// Cancelled means the operation was stopped by its context.
	Cancelled
	// DesignError is a broken internal invariant.
	DesignError
)

var kindNames = [...]string{
	"Internal", "DataCorruption", "UnknownResource", "DuplicateBinding",
	"APIReplayFailed", "DeviceLost", "OutOfMemory", "Unreplayable",
	"Cancelled", "DesignError",
}

var kindCodes = [...]codes.Code{
	codes.Internal, codes.DataLoss, codes.NotFound, codes.AlreadyExists,
	codes.Aborted, codes.Unavailable, codes.ResourceExhausted,
	codes.FailedPrecondition, codes.Canceled, codes.Internal,
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ErrorKind<%d>", int(k))
	}
	return kindNames[k]
}

// Code returns the gRPC status code for the kind.
func (k ErrorKind) Code() codes.Code {
	if k < 0 || int(k) >= len(kindCodes) {
		return codes.Unknown
	}
	return kindCodes[k]
}

// Sticky returns true if errors of this kind end the session: once raised,
// no further device calls are made.
func (k ErrorKind) Sticky() bool { return k == DeviceLost || k == OutOfMemory }

// Error is the typed error returned by capture and replay.
type Error struct {
	Kind ErrorKind
	Msg  string
	// Cause is the underlying error, if any.
	Cause error
	// Diagnostics holds the most recent device messages observed before the
	// failure, oldest first.
	Diagnostics []string
}

// Errorf returns a new Error of kind k wrapping cause.
func Errorf(k ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDiagnostics returns e with the given diagnostic messages attached.
func (e *Error) WithDiagnostics(d []string) *Error {
	e.Diagnostics = append([]string(nil), d...)
	return e
}

func (e *Error) Error() string {
	sb := strings.Builder{}
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Cause != nil {
		fmt.Fprintf(&sb, "\n   Cause: %v", e.Cause)
	}
	if len(e.Diagnostics) > 0 {
		sb.WriteString("\n   Diagnostics:")
		for _, d := range e.Diagnostics {
			sb.WriteString("\n     ")
			sb.WriteString(d)
		}
	}
	return sb.String()
}

// Unwrap returns the cause, for use with errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// GRPCStatus returns the gRPC status of the error.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.Code(), e.Error())
}

// KindOf returns the kind of err. Errors that are not an *Error are
// classified by their cause.
func KindOf(err error) ErrorKind {
	if err == nil {
		return Internal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, chunk.ErrCorrupt):
		return DataCorruption
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Cancelled
	}
	return Internal
}

// Is returns true if err is of kind k.
func Is(err error, k ErrorKind) bool { return err != nil && KindOf(err) == k }

// Classify returns err as an *Error, wrapping it with its kind if needed.
func Classify(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Errorf(KindOf(err), err, format, args...)
}
