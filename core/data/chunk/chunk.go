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

// Package chunk implements the trace chunk serializer.
//
// A chunk is one serialized call or system marker: a kind tag followed by an
// ordered list of named, typed elements. Chunks are written one at a time
// with a Writer and read back with a forward-only Reader that checks every
// element name, type and count against the encoded data.
//
// Element names are interned per chunk: the first use of a name declares it
// inline and later uses refer to it by index. Every chunk is therefore
// decodable on its own, which lets stream readers skip chunks freely.
package chunk

import (
	"fmt"
	"time"

	"github.com/gfxtrace/gfxtrace/core/fault"
)

// Kind is the type tag of a chunk.
type Kind uint32

// Type is the type tag of an encoded element.
type Type uint8

// The element types.
const (
	TypeBool Type = iota + 1
	TypeUint8
	TypeUint32
	TypeUint64
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBytes
	TypeResource
	TypeArray
	TypeStruct
	TypeStructArray
)

var typeNames = map[Type]string{
	TypeBool:        "bool",
	TypeUint8:       "u8",
	TypeUint32:      "u32",
	TypeUint64:      "u64",
	TypeInt32:       "i32",
	TypeInt64:       "i64",
	TypeFloat32:     "f32",
	TypeFloat64:     "f64",
	TypeString:      "string",
	TypeBytes:       "bytes",
	TypeResource:    "resource",
	TypeArray:       "array",
	TypeStruct:      "struct",
	TypeStructArray: "struct[]",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type<%d>", uint8(t))
}

const (
	typeMask      = 0x3f
	flagElided    = 0x40
	flagImportant = 0x80

	truncatedBit = Kind(1 << 31)

	// MaxArrayLength is the largest array or blob length a reader accepts.
	MaxArrayLength = 1 << 28
)

const (
	metaThread = 1 << iota
	metaTimestamp
	metaDuration
	metaCallstack
)

// Stream versions.
const (
	// Version is the stream version written by this package.
	Version uint64 = 2
	// MinVersion is the oldest stream version this package can read.
	MinVersion uint64 = 1
)

const (
	// ErrCorrupt is the cause of every error raised by malformed chunk data.
	ErrCorrupt = fault.Const("Corrupt chunk data")
	// ErrChunkOpen is returned when a chunk is begun on a serializer that is
	// still writing another chunk.
	ErrChunkOpen = fault.Const("Serializer already has an open chunk")
)

// Meta holds the optional metadata recorded with a chunk.
type Meta struct {
	// Thread is the identifier of the thread that recorded the chunk.
	Thread uint64
	// Timestamp is the time the call was made, relative to capture start.
	Timestamp time.Duration
	// Duration is the time the call took.
	Duration time.Duration
	// Callstack is the list of return addresses of the call, innermost first.
	Callstack []uint64
}

// Chunk is one encoded, immutable chunk.
type Chunk struct {
	// Kind is the chunk type tag.
	Kind Kind
	// Index is the position of the chunk in its stream.
	Index int
	// Meta is the chunk's optional metadata.
	Meta Meta
	// Truncated is true if the chunk failed to serialize fully. The element
	// data of a truncated chunk must not be decoded.
	Truncated bool
	// Version is the version of the stream the chunk was read from.
	Version uint64

	body []byte
}

// Size returns the number of bytes of element data in the chunk.
func (c *Chunk) Size() int { return len(c.body) }

// Reader returns a new forward-only reader of the chunk's elements.
func (c *Chunk) Reader() *Reader { return newReader(c) }

func (c *Chunk) String() string {
	if c.Truncated {
		return fmt.Sprintf("#%d kind:%d (truncated)", c.Index, c.Kind)
	}
	return fmt.Sprintf("#%d kind:%d", c.Index, c.Kind)
}
