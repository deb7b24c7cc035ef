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

// Package section implements a simple container of named, length-prefixed
// byte sections.
//
// A container starts with a magic header followed by any number of sections.
// Each section is encoded as a varint-prefixed name, a varint payload length
// and the payload bytes. Sections are written whole, so a reader can skip any
// section it does not understand without decoding it.
package section

import (
	"fmt"

	"github.com/gfxtrace/gfxtrace/core/fault"
)

// Kind names a section.
type Kind string

// FrameCapture is the section holding the trace chunk stream.
const FrameCapture = Kind("FrameCapture")

const (
	// ErrIncorrectMagic is the error returned when the file header is not matched.
	ErrIncorrectMagic = fault.Const("Incorrect container magic header")

	maxVarintSize = 10
)

// magic is the header written by this package including the version.
var magic = []byte("GfxTrace\r\n1.0\n\x00")

// ErrMissingSection is the error returned by ReadSection when the container
// has no section of the requested kind.
type ErrMissingSection struct{ Kind Kind }

func (e ErrMissingSection) Error() string {
	return fmt.Sprintf("Container has no section '%v'", e.Kind)
}
