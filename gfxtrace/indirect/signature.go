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

// Package indirect turns ExecuteIndirect calls, whose arguments are written
// by the GPU, into steppable events.
//
// At capture the argument buffer of every ExecuteIndirect is staged into a
// CPU-visible ring and read back when the trace is written. At load every
// ExecuteIndirect is expanded into a group of placeholder events for its
// declared maximum iteration count; Finalize then decodes the staged
// arguments, prunes the iterations the GPU did not execute and renumbers the
// rest of the tree.
//
// Views in the argument data are resource identifiers.
package indirect

import (
	"github.com/pkg/errors"

	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
)

// ArgKind is the type of one argument of a command signature.
type ArgKind = cmds.ArgKind

// The argument kinds.
const (
	ArgDraw            = cmds.ArgDraw
	ArgDrawIndexed     = cmds.ArgDrawIndexed
	ArgDispatch        = cmds.ArgDispatch
	ArgVertexBuffer    = cmds.ArgVertexBuffer
	ArgIndexBuffer     = cmds.ArgIndexBuffer
	ArgConstant        = cmds.ArgConstant
	ArgConstantBuffer  = cmds.ArgConstantBuffer
	ArgShaderResource  = cmds.ArgShaderResource
	ArgUnorderedAccess = cmds.ArgUnorderedAccess
)

// Signature is the argument layout of one iteration of an ExecuteIndirect.
type Signature struct {
	ID     api.ResourceID
	Stride uint32
	Args   []cmds.IndirectArg
}

// NewSignature returns the signature created by c.
// The layout must end with exactly one draw or dispatch argument, and must
// fit in the stride.
func NewSignature(c *cmds.CreateCommandSignature) (Signature, error) {
	s := Signature{ID: c.ID, Stride: c.ByteStride, Args: append([]cmds.IndirectArg(nil), c.Args...)}
	if len(s.Args) == 0 {
		return s, errors.Errorf("Command signature %v has no arguments", c.ID)
	}
	if len(s.Args) > cmds.MaxIndirectArgs {
		return s, errors.Errorf("Command signature %v has %d arguments", c.ID, len(s.Args))
	}
	for i, a := range s.Args {
		if a.Kind > ArgUnorderedAccess {
			return s, errors.Errorf("Command signature %v: argument %d has unknown kind %d", c.ID, i, a.Kind)
		}
		if a.Kind.IsAction() != (i == len(s.Args)-1) {
			return s, errors.Errorf("Command signature %v: the draw or dispatch must be the last argument", c.ID)
		}
	}
	if size := s.Size(); size > uint64(s.Stride) {
		return s, errors.Errorf("Command signature %v: arguments take %d bytes, stride is %d", c.ID, size, s.Stride)
	}
	return s, nil
}

// Slots returns the number of events one iteration produces.
func (s Signature) Slots() int { return len(s.Args) }

// Compute returns true if the signature dispatches compute work.
func (s Signature) Compute() bool {
	return len(s.Args) > 0 && s.Args[len(s.Args)-1].Kind == ArgDispatch
}

// Size returns the number of bytes of argument data of one iteration.
func (s Signature) Size() uint64 {
	size := uint64(0)
	for _, a := range s.Args {
		size += ArgSize(a)
	}
	return size
}

// ArgSize returns the number of bytes the argument a takes in the argument
// buffer.
func ArgSize(a cmds.IndirectArg) uint64 {
	switch a.Kind {
	case ArgDraw:
		return 16
	case ArgDrawIndexed:
		return 20
	case ArgDispatch:
		return 12
	case ArgVertexBuffer, ArgIndexBuffer:
		return 16
	case ArgConstant:
		return 4 * uint64(a.Count)
	default:
		return 8
	}
}
