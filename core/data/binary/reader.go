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

// Package binary declares the typed primitive readers and writers shared by
// the trace stream encoders.
package binary

import "io"

// Reader provides methods for decoding values.
type Reader interface {
	io.Reader
	// Data reads the data bytes in their entirety.
	Data([]byte)
	// Bool decodes and returns a boolean value from the Reader.
	Bool() bool
	// Uint8 decodes and returns an unsigned, 8 bit integer value from the Reader.
	Uint8() uint8
	// Uint16 decodes and returns an unsigned, 16 bit integer value from the Reader.
	Uint16() uint16
	// Uint32 decodes and returns an unsigned, 32 bit integer value from the Reader.
	Uint32() uint32
	// Uint64 decodes and returns an unsigned, 64 bit integer value from the Reader.
	Uint64() uint64
	// Int32 decodes and returns a signed, 32 bit integer value from the Reader.
	Int32() int32
	// Int64 decodes and returns a signed, 64 bit integer value from the Reader.
	Int64() int64
	// Float32 decodes and returns a 32 bit floating-point value from the Reader.
	Float32() float32
	// Float64 decodes and returns a 64 bit floating-point value from the Reader.
	Float64() float64
	// Count decodes and returns a uint32 element count from the Reader.
	Count() uint32
	// Error returns the error state of the reader.
	Error() error
	// SetError sets the error state of the reader if it is not already set.
	SetError(error)
}

// Skip reads and discards n bytes from r.
func Skip(r Reader, n uint64) {
	var tmp [256]byte
	for n > 0 && r.Error() == nil {
		c := uint64(len(tmp))
		if c > n {
			c = n
		}
		r.Data(tmp[:c])
		n -= c
	}
}
