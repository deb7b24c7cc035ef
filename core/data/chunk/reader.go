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

package chunk

import (
	"math"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// Reader decodes the elements of a single chunk in the order they were
// written. Each read names the element it expects; a mismatch in name, type
// or count is a corruption error.
//
// Errors are sticky: after the first failure every read returns the zero
// value and Error returns the failure.
type Reader struct {
	chunk  *Chunk
	buf    *proto.Buffer
	names  []string
	scopes []uint64
	err    error
	elided bool
}

func newReader(c *Chunk) *Reader {
	r := &Reader{chunk: c, buf: proto.NewBuffer(c.body)}
	if c.Truncated {
		r.err = errors.Wrapf(ErrCorrupt, "Chunk %d is truncated", c.Index)
		return r
	}
	n, err := r.buf.DecodeVarint()
	if err != nil {
		r.fail(err, "reading element count")
		return r
	}
	r.scopes = []uint64{n}
	return r
}

// Kind returns the kind of the chunk being read.
func (r *Reader) Kind() Kind { return r.chunk.Kind }

// Version returns the stream version of the chunk being read.
func (r *Reader) Version() uint64 { return r.chunk.Version }

// AtLeast returns true if the chunk was written by a stream of version v or
// later. Elements added in later versions are read only when AtLeast reports
// true for the version that introduced them.
func (r *Reader) AtLeast(v uint64) bool { return r.chunk.Version >= v }

// Error returns the first error raised while reading.
func (r *Reader) Error() error { return r.err }

// Elided returns true if the last element read had its contents elided by a
// light-mode writer.
func (r *Reader) Elided() bool { return r.elided }

// Fail sets the reader's error if none has been raised yet.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Failf fails the chunk with ErrCorrupt as the cause. Decoders call it for
// values that are well formed but out of range.
func (r *Reader) Failf(format string, args ...interface{}) {
	r.fail(nil, format, args...)
}

func (r *Reader) fail(cause error, format string, args ...interface{}) {
	if r.err != nil {
		return
	}
	err := errors.Wrapf(ErrCorrupt, "Chunk %d (kind %d)", r.chunk.Index, r.chunk.Kind)
	err = errors.Wrapf(err, format, args...)
	if cause != nil {
		err = errors.Wrapf(err, "%v", cause)
	}
	r.err = err
}

// Remaining returns the number of elements left to read in the current scope.
func (r *Reader) Remaining() int {
	if len(r.scopes) == 0 {
		return 0
	}
	return int(r.scopes[len(r.scopes)-1])
}

// header reads the next element header, returning its name, type and flags.
func (r *Reader) header() (string, Type, byte, bool) {
	if r.err != nil || len(r.scopes) == 0 {
		return "", 0, 0, false
	}
	top := len(r.scopes) - 1
	if r.scopes[top] == 0 {
		r.fail(nil, "no elements left in scope")
		return "", 0, 0, false
	}
	r.scopes[top]--

	ref, err := r.buf.DecodeVarint()
	if err != nil {
		r.fail(err, "reading element name")
		return "", 0, 0, false
	}
	var name string
	switch {
	case ref == 0:
		if name, err = r.buf.DecodeStringBytes(); err != nil {
			r.fail(err, "reading element name")
			return "", 0, 0, false
		}
		r.names = append(r.names, name)
	case ref <= uint64(len(r.names)):
		name = r.names[ref-1]
	default:
		r.fail(nil, "name reference %d out of range", ref)
		return "", 0, 0, false
	}
	flags, err := r.buf.DecodeVarint()
	if err != nil || flags > 0xff {
		r.fail(err, "reading type of %q", name)
		return "", 0, 0, false
	}
	return name, Type(flags & typeMask), byte(flags), true
}

// expect reads the next element header and checks it matches name and ty.
// It returns false if the value should not be read.
func (r *Reader) expect(name string, ty Type) bool {
	got, gotTy, flags, ok := r.header()
	if !ok {
		return false
	}
	if got != name {
		r.fail(nil, "expected element %q, got %q", name, got)
		return false
	}
	if gotTy != ty {
		r.fail(nil, "element %q: expected type %v, got %v", name, ty, gotTy)
		return false
	}
	r.elided = flags&flagElided != 0
	return !r.elided
}

func (r *Reader) varint(name string) uint64 {
	v, err := r.buf.DecodeVarint()
	if err != nil {
		r.fail(err, "reading %q", name)
	}
	return v
}

// Bool reads a boolean element.
func (r *Reader) Bool(name string) bool {
	if !r.expect(name, TypeBool) {
		return false
	}
	return r.varint(name) != 0
}

// Uint8 reads an unsigned 8 bit element.
func (r *Reader) Uint8(name string) uint8 {
	if !r.expect(name, TypeUint8) {
		return 0
	}
	v := r.varint(name)
	if v > math.MaxUint8 {
		r.fail(nil, "%q out of range", name)
		return 0
	}
	return uint8(v)
}

// Uint32 reads an unsigned 32 bit element.
func (r *Reader) Uint32(name string) uint32 {
	if !r.expect(name, TypeUint32) {
		return 0
	}
	v := r.varint(name)
	if v > math.MaxUint32 {
		r.fail(nil, "%q out of range", name)
		return 0
	}
	return uint32(v)
}

// Uint64 reads an unsigned 64 bit element.
func (r *Reader) Uint64(name string) uint64 {
	if !r.expect(name, TypeUint64) {
		return 0
	}
	return r.varint(name)
}

// Int32 reads a signed 32 bit element.
func (r *Reader) Int32(name string) int32 {
	if !r.expect(name, TypeInt32) {
		return 0
	}
	v, err := r.buf.DecodeZigzag64()
	if err != nil {
		r.fail(err, "reading %q", name)
		return 0
	}
	if s := int64(v); s < math.MinInt32 || s > math.MaxInt32 {
		r.fail(nil, "%q out of range", name)
		return 0
	}
	return int32(v)
}

// Int64 reads a signed 64 bit element.
func (r *Reader) Int64(name string) int64 {
	if !r.expect(name, TypeInt64) {
		return 0
	}
	v, err := r.buf.DecodeZigzag64()
	if err != nil {
		r.fail(err, "reading %q", name)
	}
	return int64(v)
}

// Float32 reads a 32 bit floating-point element.
func (r *Reader) Float32(name string) float32 {
	if !r.expect(name, TypeFloat32) {
		return 0
	}
	return r.f32(name)
}

func (r *Reader) f32(name string) float32 {
	v, err := r.buf.DecodeFixed32()
	if err != nil {
		r.fail(err, "reading %q", name)
		return 0
	}
	return math.Float32frombits(uint32(v))
}

// Float64 reads a 64 bit floating-point element.
func (r *Reader) Float64(name string) float64 {
	if !r.expect(name, TypeFloat64) {
		return 0
	}
	v, err := r.buf.DecodeFixed64()
	if err != nil {
		r.fail(err, "reading %q", name)
		return 0
	}
	return math.Float64frombits(v)
}

// String reads a string element.
func (r *Reader) String(name string) string {
	if !r.expect(name, TypeString) {
		return ""
	}
	v, err := r.buf.DecodeStringBytes()
	if err != nil {
		r.fail(err, "reading %q", name)
	}
	return v
}

// Bytes reads a blob element. The returned slice is a copy.
// An elided blob reads as nil.
func (r *Reader) Bytes(name string) []byte {
	if !r.expect(name, TypeBytes) {
		return nil
	}
	v, err := r.buf.DecodeRawBytes(true)
	if err != nil {
		r.fail(err, "reading %q", name)
		return nil
	}
	return v
}

// Resource reads a resource identifier element.
func (r *Reader) Resource(name string) uint64 {
	if !r.expect(name, TypeResource) {
		return 0
	}
	return r.varint(name)
}

// array reads an array header, returning the element count.
func (r *Reader) array(name string, elem Type) (int, bool) {
	if !r.expect(name, TypeArray) {
		return 0, false
	}
	n := r.varint(name)
	ty := Type(r.varint(name))
	if r.err != nil {
		return 0, false
	}
	if ty != elem {
		r.fail(nil, "array %q: expected %v elements, got %v", name, elem, ty)
		return 0, false
	}
	// Every encoded element takes at least one byte.
	if n > MaxArrayLength || n > uint64(len(r.buf.Unread())) {
		r.fail(nil, "array %q: count %d overruns chunk", name, n)
		return 0, false
	}
	return int(n), true
}

// Uint32s reads an array of unsigned 32 bit values.
func (r *Reader) Uint32s(name string) []uint32 {
	n, ok := r.array(name, TypeUint32)
	if !ok {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		v := r.varint(name)
		if v > math.MaxUint32 {
			r.fail(nil, "%q[%d] out of range", name, i)
		}
		out[i] = uint32(v)
	}
	if r.err != nil {
		return nil
	}
	return out
}

// Uint64s reads an array of unsigned 64 bit values.
func (r *Reader) Uint64s(name string) []uint64 {
	return r.u64s(name, TypeUint64)
}

// Resources reads an array of resource identifiers.
func (r *Reader) Resources(name string) []uint64 {
	return r.u64s(name, TypeResource)
}

func (r *Reader) u64s(name string, ty Type) []uint64 {
	n, ok := r.array(name, ty)
	if !ok {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = r.varint(name)
	}
	if r.err != nil {
		return nil
	}
	return out
}

// Float32s reads an array of 32 bit floating-point values.
func (r *Reader) Float32s(name string) []float32 {
	n, ok := r.array(name, TypeFloat32)
	if !ok {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = r.f32(name)
	}
	if r.err != nil {
		return nil
	}
	return out
}

// FixedFloat32s reads an array of 32 bit floating-point values into dst.
// The encoded array must hold exactly len(dst) values.
func (r *Reader) FixedFloat32s(name string, dst []float32) {
	n, ok := r.array(name, TypeFloat32)
	if !ok {
		return
	}
	if n != len(dst) {
		r.fail(nil, "array %q: expected %d values, got %d", name, len(dst), n)
		return
	}
	for i := range dst {
		dst[i] = r.f32(name)
	}
}

// Struct reads a nested element group, calling f to read its members.
// f must read every member.
func (r *Reader) Struct(name string, f func(*Reader)) {
	if !r.expect(name, TypeStruct) {
		return
	}
	r.nest(name, f)
}

// StructArray reads an array of nested element groups, calling f once per
// item. It returns the number of items.
func (r *Reader) StructArray(name string, f func(i int, r *Reader)) int {
	if !r.expect(name, TypeStructArray) {
		return 0
	}
	n := r.varint(name)
	if r.err != nil {
		return 0
	}
	if n > MaxArrayLength || n > uint64(len(r.buf.Unread())) {
		r.fail(nil, "array %q: count %d overruns chunk", name, n)
		return 0
	}
	for i := 0; i < int(n) && r.err == nil; i++ {
		r.nest(name, func(r *Reader) { f(i, r) })
	}
	if r.err != nil {
		return 0
	}
	return int(n)
}

func (r *Reader) nest(name string, f func(*Reader)) {
	n := r.varint(name)
	if r.err != nil {
		return
	}
	if n > uint64(len(r.buf.Unread())) {
		r.fail(nil, "struct %q: count %d overruns chunk", name, n)
		return
	}
	r.scopes = append(r.scopes, n)
	f(r)
	left := r.scopes[len(r.scopes)-1]
	r.scopes = r.scopes[:len(r.scopes)-1]
	if left != 0 {
		r.fail(nil, "struct %q: %d members not read", name, left)
	}
}

// Finish checks that every element of the chunk was read and returns the
// first error raised while reading.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if n := r.Remaining(); n != 0 {
		r.fail(nil, "%d elements not read", n)
	} else if n := len(r.buf.Unread()); n != 0 {
		r.fail(nil, "%d trailing bytes", n)
	}
	return r.err
}
