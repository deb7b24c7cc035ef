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

const initalBufferSize = 256

// Serializer writes chunks one at a time.
// A Serializer is not safe for concurrent use; each recording thread owns
// its own instance and reuses it for every chunk it writes.
type Serializer struct {
	// Light elides the contents of blobs and arrays not marked important.
	Light bool

	open    bool
	scopes  []*scope
	spare   []*scope
	names   map[string]uint64
	scratch *proto.Buffer
}

type scope struct {
	buf   *proto.Buffer
	count uint64
}

// NewSerializer returns a new Serializer.
func NewSerializer() *Serializer {
	return &Serializer{
		names:   map[string]uint64{},
		scratch: proto.NewBuffer(make([]byte, 0, initalBufferSize)),
	}
}

// Begin starts a new chunk of the given kind.
// The returned Writer must be ended with End before another chunk is begun.
func (s *Serializer) Begin(kind Kind) *Writer {
	w := &Writer{s: s, kind: kind}
	if s.open {
		w.err = ErrChunkOpen
		return w
	}
	s.open = true
	for n := range s.names {
		delete(s.names, n)
	}
	s.scopes = append(s.scopes[:0], s.newScope())
	return w
}

// Write begins a chunk of the given kind, calls f to write its elements and
// ends the chunk. The chunk is ended even if f panics.
func (s *Serializer) Write(kind Kind, meta Meta, f func(*Writer)) (c *Chunk, err error) {
	w := s.Begin(kind)
	w.Meta(meta)
	defer func() {
		if r := recover(); r != nil {
			w.End()
			panic(r)
		}
	}()
	f(w)
	return w.End()
}

func (s *Serializer) newScope() *scope {
	if n := len(s.spare); n > 0 {
		sc := s.spare[n-1]
		s.spare = s.spare[:n-1]
		sc.buf.Reset()
		sc.count = 0
		return sc
	}
	return &scope{buf: proto.NewBuffer(make([]byte, 0, initalBufferSize))}
}

func (s *Serializer) release(sc *scope) {
	s.spare = append(s.spare, sc)
}

// Writer encodes the elements of one chunk.
// Errors are sticky: once an element fails to encode, all further writes are
// ignored and End reports the failure.
type Writer struct {
	s         *Serializer
	kind      Kind
	meta      Meta
	important bool
	err       error
	ended     bool
}

// Meta sets the metadata of the chunk.
func (w *Writer) Meta(m Meta) *Writer {
	w.meta = m
	return w
}

// Important marks the next element as important. Important elements are
// kept in full even when the serializer is in light mode.
func (w *Writer) Important() *Writer {
	w.important = true
	return w
}

// Fail marks the chunk as failed with the given error.
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Error returns the first error raised while writing the chunk.
func (w *Writer) Error() error { return w.err }

func (w *Writer) top() *scope { return w.s.scopes[len(w.s.scopes)-1] }

// header writes the element header and returns the buffer for its value,
// or nil if the element should not be written. elidable elements are
// written without a value in light mode.
func (w *Writer) header(name string, ty Type, elidable bool) (*proto.Buffer, bool) {
	important := w.important
	w.important = false
	if w.err != nil || w.ended {
		return nil, false
	}
	sc := w.top()
	sc.count++
	if idx, ok := w.s.names[name]; ok {
		sc.buf.EncodeVarint(idx)
	} else {
		w.s.names[name] = uint64(len(w.s.names) + 1)
		sc.buf.EncodeVarint(0)
		sc.buf.EncodeStringBytes(name)
	}
	flags := byte(ty)
	if important {
		flags |= flagImportant
	}
	elided := elidable && w.s.Light && !important
	if elided {
		flags |= flagElided
	}
	sc.buf.EncodeVarint(uint64(flags))
	return sc.buf, !elided
}

// Bool writes a boolean element.
func (w *Writer) Bool(name string, v bool) {
	if b, ok := w.header(name, TypeBool, false); ok {
		if v {
			b.EncodeVarint(1)
		} else {
			b.EncodeVarint(0)
		}
	}
}

// Uint8 writes an unsigned 8 bit element.
func (w *Writer) Uint8(name string, v uint8) {
	if b, ok := w.header(name, TypeUint8, false); ok {
		b.EncodeVarint(uint64(v))
	}
}

// Uint32 writes an unsigned 32 bit element.
func (w *Writer) Uint32(name string, v uint32) {
	if b, ok := w.header(name, TypeUint32, false); ok {
		b.EncodeVarint(uint64(v))
	}
}

// Uint64 writes an unsigned 64 bit element.
func (w *Writer) Uint64(name string, v uint64) {
	if b, ok := w.header(name, TypeUint64, false); ok {
		b.EncodeVarint(v)
	}
}

// Int32 writes a signed 32 bit element.
func (w *Writer) Int32(name string, v int32) {
	if b, ok := w.header(name, TypeInt32, false); ok {
		b.EncodeZigzag64(uint64(int64(v)))
	}
}

// Int64 writes a signed 64 bit element.
func (w *Writer) Int64(name string, v int64) {
	if b, ok := w.header(name, TypeInt64, false); ok {
		b.EncodeZigzag64(uint64(v))
	}
}

// Float32 writes a 32 bit floating-point element.
func (w *Writer) Float32(name string, v float32) {
	if b, ok := w.header(name, TypeFloat32, false); ok {
		b.EncodeFixed32(uint64(math.Float32bits(v)))
	}
}

// Float64 writes a 64 bit floating-point element.
func (w *Writer) Float64(name string, v float64) {
	if b, ok := w.header(name, TypeFloat64, false); ok {
		b.EncodeFixed64(math.Float64bits(v))
	}
}

// String writes a string element.
func (w *Writer) String(name string, v string) {
	if b, ok := w.header(name, TypeString, false); ok {
		b.EncodeStringBytes(v)
	}
}

// Bytes writes a length-prefixed blob element.
func (w *Writer) Bytes(name string, v []byte) {
	if b, ok := w.header(name, TypeBytes, true); ok {
		b.EncodeRawBytes(v)
	}
}

// Resource writes a resource identifier element.
func (w *Writer) Resource(name string, id uint64) {
	if b, ok := w.header(name, TypeResource, false); ok {
		b.EncodeVarint(id)
	}
}

func (w *Writer) array(name string, elem Type, count int) *proto.Buffer {
	b, ok := w.header(name, TypeArray, true)
	if !ok {
		return nil
	}
	b.EncodeVarint(uint64(count))
	b.EncodeVarint(uint64(elem))
	return b
}

// Uint32s writes a length-prefixed array of unsigned 32 bit values.
func (w *Writer) Uint32s(name string, v []uint32) {
	if b := w.array(name, TypeUint32, len(v)); b != nil {
		for _, e := range v {
			b.EncodeVarint(uint64(e))
		}
	}
}

// Uint64s writes a length-prefixed array of unsigned 64 bit values.
func (w *Writer) Uint64s(name string, v []uint64) {
	if b := w.array(name, TypeUint64, len(v)); b != nil {
		for _, e := range v {
			b.EncodeVarint(e)
		}
	}
}

// Float32s writes a length-prefixed array of 32 bit floating-point values.
func (w *Writer) Float32s(name string, v []float32) {
	if b := w.array(name, TypeFloat32, len(v)); b != nil {
		for _, e := range v {
			b.EncodeFixed32(uint64(math.Float32bits(e)))
		}
	}
}

// Resources writes a length-prefixed array of resource identifiers.
func (w *Writer) Resources(name string, v []uint64) {
	if b := w.array(name, TypeResource, len(v)); b != nil {
		for _, e := range v {
			b.EncodeVarint(e)
		}
	}
}

// Struct writes a nested element group. f writes the members.
func (w *Writer) Struct(name string, f func(*Writer)) {
	b, ok := w.header(name, TypeStruct, false)
	if !ok {
		return
	}
	w.nest(b, f)
}

// StructArray writes a length-prefixed array of count nested element groups.
// f is called once per item to write its members.
func (w *Writer) StructArray(name string, count int, f func(i int, w *Writer)) {
	b, ok := w.header(name, TypeStructArray, false)
	if !ok {
		return
	}
	b.EncodeVarint(uint64(count))
	for i := 0; i < count && w.err == nil; i++ {
		w.nest(b, func(w *Writer) { f(i, w) })
	}
}

// nest writes the element count and members of a group into parent.
func (w *Writer) nest(parent *proto.Buffer, f func(*Writer)) {
	sc := w.s.newScope()
	w.s.scopes = append(w.s.scopes, sc)
	f(w)
	w.s.scopes = w.s.scopes[:len(w.s.scopes)-1]
	parent.EncodeVarint(sc.count)
	appendTo(parent, sc.buf.Bytes())
	w.s.release(sc)
}

func appendTo(b *proto.Buffer, data []byte) {
	b.SetBuf(append(b.Bytes(), data...))
}

// End finalizes the chunk and returns it.
// If any element failed to encode, the returned chunk is marked as
// truncated, keeps the bytes encoded so far, and the error is returned
// with ErrCorrupt as its cause.
func (w *Writer) End() (*Chunk, error) {
	if w.ended {
		return nil, errors.Wrap(ErrCorrupt, "Chunk already ended")
	}
	w.ended = true
	if w.err == ErrChunkOpen {
		return nil, w.err
	}
	s := w.s
	defer func() {
		for _, sc := range s.scopes {
			s.release(sc)
		}
		s.scopes = s.scopes[:0]
		s.open = false
	}()

	if len(s.scopes) != 1 {
		w.Fail(errors.New("Unbalanced element scopes"))
	}
	root := s.scopes[0]

	b := s.scratch
	b.Reset()
	b.EncodeVarint(root.count)
	appendTo(b, root.buf.Bytes())

	c := &Chunk{
		Kind:      w.kind,
		Meta:      w.meta,
		Truncated: w.err != nil,
		Version:   Version,
		body:      append([]byte(nil), b.Bytes()...),
	}
	if w.err != nil {
		return c, errors.Wrapf(ErrCorrupt, "Serializing chunk kind %d: %v", w.kind, w.err)
	}
	return c, nil
}
