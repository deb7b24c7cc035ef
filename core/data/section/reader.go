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

package section

import (
	"bytes"
	"io"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// Source is implemented by containers that sections can be read from.
type Source interface {
	// ReadSection returns a reader over the payload of the first section of
	// the given kind.
	ReadSection(kind Kind) (io.Reader, error)
}

type entry struct {
	kind   Kind
	offset int64
	size   int64
}

// Reader is the type for a container reader.
type Reader struct {
	from    io.ReaderAt
	entries []entry
}

// NewReader reads the container index from the supplied random access
// stream of the given size.
func NewReader(from io.ReaderAt, size int64) (*Reader, error) {
	got := make([]byte, len(magic))
	if _, err := from.ReadAt(got, 0); err != nil {
		return nil, errors.Wrap(err, "Reading container magic")
	}
	if !bytes.Equal(got, magic) {
		return nil, ErrIncorrectMagic
	}
	r := &Reader{from: from}
	offset := int64(len(magic))
	for offset < size {
		kind, payload, err := readHeader(from, offset, size)
		if err != nil {
			return nil, err
		}
		length, n, err := readVarint(from, payload, size)
		if err != nil {
			return nil, errors.Wrapf(err, "Reading section '%v' length", kind)
		}
		e := entry{kind: kind, offset: payload + int64(n), size: int64(length)}
		if e.offset+e.size > size {
			return nil, errors.Errorf("Section '%v' overruns the container (%d > %d)", kind, e.offset+e.size, size)
		}
		r.entries = append(r.entries, e)
		offset = e.offset + e.size
	}
	return r, nil
}

// Sections returns the kinds of all the sections in the container, in order.
func (r *Reader) Sections() []Kind {
	out := make([]Kind, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.kind
	}
	return out
}

// ReadSection returns a reader over the payload of the first section of the
// given kind.
func (r *Reader) ReadSection(kind Kind) (io.Reader, error) {
	for _, e := range r.entries {
		if e.kind == kind {
			return io.NewSectionReader(r.from, e.offset, e.size), nil
		}
	}
	return nil, ErrMissingSection{kind}
}

func readHeader(from io.ReaderAt, offset, size int64) (Kind, int64, error) {
	length, n, err := readVarint(from, offset, size)
	if err != nil {
		return "", 0, errors.Wrap(err, "Reading section name length")
	}
	name := make([]byte, length)
	if _, err := from.ReadAt(name, offset+int64(n)); err != nil {
		return "", 0, errors.Wrap(err, "Reading section name")
	}
	return Kind(name), offset + int64(n) + int64(length), nil
}

func readVarint(from io.ReaderAt, offset, size int64) (uint64, int, error) {
	buf := make([]byte, maxVarintSize)
	if rem := size - offset; rem < int64(len(buf)) {
		buf = buf[:rem]
	}
	if _, err := from.ReadAt(buf, offset); err != nil && err != io.EOF {
		return 0, 0, err
	}
	v, n := proto.DecodeVarint(buf)
	if n == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	return v, n, nil
}
