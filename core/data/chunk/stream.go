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
	"context"
	eb "encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"

	"github.com/gfxtrace/gfxtrace/core/data/binary"
	"github.com/gfxtrace/gfxtrace/core/data/endian"
	"github.com/gfxtrace/gfxtrace/core/event/task"
)

const maxChunkSize = 1 << 30

// StreamWriter writes a sequence of chunks to an io.Writer.
//
// The stream starts with the 64 bit stream version. Each chunk follows as a
// 32 bit kind (with the top bit set for truncated chunks), a 32 bit payload
// length and the payload: the chunk metadata followed by its elements.
type StreamWriter struct {
	w     binary.Writer
	meta  *proto.Buffer
	count int
}

// NewStreamWriter writes the stream header for version and returns a writer
// for the chunks that follow.
func NewStreamWriter(w io.Writer, version uint64) (*StreamWriter, error) {
	out := endian.Writer(w, eb.LittleEndian)
	out.Uint64(version)
	if err := out.Error(); err != nil {
		return nil, err
	}
	return &StreamWriter{w: out, meta: proto.NewBuffer(nil)}, nil
}

// Write appends c to the stream.
func (s *StreamWriter) Write(c *Chunk) error {
	if err := s.w.Error(); err != nil {
		return err
	}
	s.meta.Reset()
	encodeMeta(s.meta, c.Meta)
	size := len(s.meta.Bytes()) + len(c.body)
	if size > maxChunkSize {
		return errors.Errorf("Chunk %d too large (%d bytes)", s.count, size)
	}
	kind := c.Kind &^ truncatedBit
	if c.Truncated {
		kind |= truncatedBit
	}
	s.w.Uint32(uint32(kind))
	s.w.Uint32(uint32(size))
	s.w.Data(s.meta.Bytes())
	s.w.Data(c.body)
	s.count++
	return s.w.Error()
}

// Count returns the number of chunks written.
func (s *StreamWriter) Count() int { return s.count }

func encodeMeta(b *proto.Buffer, m Meta) {
	var flags uint64
	if m.Thread != 0 {
		flags |= metaThread
	}
	if m.Timestamp != 0 {
		flags |= metaTimestamp
	}
	if m.Duration != 0 {
		flags |= metaDuration
	}
	if len(m.Callstack) > 0 {
		flags |= metaCallstack
	}
	b.EncodeVarint(flags)
	if flags&metaThread != 0 {
		b.EncodeVarint(m.Thread)
	}
	if flags&metaTimestamp != 0 {
		b.EncodeZigzag64(uint64(m.Timestamp))
	}
	if flags&metaDuration != 0 {
		b.EncodeZigzag64(uint64(m.Duration))
	}
	if flags&metaCallstack != 0 {
		b.EncodeVarint(uint64(len(m.Callstack)))
		for _, a := range m.Callstack {
			b.EncodeVarint(a)
		}
	}
}

func decodeMeta(b *proto.Buffer) (Meta, error) {
	m := Meta{}
	flags, err := b.DecodeVarint()
	if err != nil {
		return m, err
	}
	if flags&metaThread != 0 {
		if m.Thread, err = b.DecodeVarint(); err != nil {
			return m, err
		}
	}
	if flags&metaTimestamp != 0 {
		v, err := b.DecodeZigzag64()
		if err != nil {
			return m, err
		}
		m.Timestamp = time.Duration(v)
	}
	if flags&metaDuration != 0 {
		v, err := b.DecodeZigzag64()
		if err != nil {
			return m, err
		}
		m.Duration = time.Duration(v)
	}
	if flags&metaCallstack != 0 {
		n, err := b.DecodeVarint()
		if err != nil {
			return m, err
		}
		if n > uint64(len(b.Unread())) {
			return m, errors.Errorf("callstack depth %d overruns chunk", n)
		}
		m.Callstack = make([]uint64, n)
		for i := range m.Callstack {
			if m.Callstack[i], err = b.DecodeVarint(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// StreamReader reads a sequence of chunks written by a StreamWriter.
type StreamReader struct {
	r       binary.Reader
	version uint64
	index   int
}

// NewStreamReader reads and checks the stream header of r.
// It fails if the stream version is not supported.
func NewStreamReader(r io.Reader) (*StreamReader, error) {
	in := endian.Reader(r, eb.LittleEndian)
	version := in.Uint64()
	if err := in.Error(); err != nil {
		return nil, errors.Wrap(ErrCorrupt, "Reading stream version")
	}
	if version < MinVersion || version > Version {
		return nil, ErrUnsupportedVersion{Version: version}
	}
	return &StreamReader{r: in, version: version}, nil
}

// ErrUnsupportedVersion is returned when a stream has a version outside the
// supported range.
type ErrUnsupportedVersion struct {
	Version uint64
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("Unsupported stream version %d (supported %d to %d)",
		e.Version, MinVersion, Version)
}

// Version returns the stream version.
func (s *StreamReader) Version() uint64 { return s.version }

// header reads the next chunk header. It returns io.EOF if the stream ended
// cleanly before the header.
func (s *StreamReader) header() (Kind, uint32, error) {
	kind := s.r.Uint32()
	if err := s.r.Error(); err != nil {
		if errors.Cause(err) == io.EOF {
			return 0, 0, io.EOF
		}
		return 0, 0, errors.Wrapf(ErrCorrupt, "Reading header of chunk %d: %v", s.index, err)
	}
	size := s.r.Uint32()
	if err := s.r.Error(); err != nil {
		return 0, 0, errors.Wrapf(ErrCorrupt, "Reading header of chunk %d: %v", s.index, err)
	}
	if size > maxChunkSize {
		err := errors.Wrapf(ErrCorrupt, "Chunk %d size %d too large", s.index, size)
		s.r.SetError(err)
		return 0, 0, err
	}
	return Kind(kind), size, nil
}

// Next reads the next chunk from the stream.
// It returns io.EOF when the stream ends on a chunk boundary.
func (s *StreamReader) Next() (*Chunk, error) {
	kind, size, err := s.header()
	if err != nil {
		return nil, err
	}
	payload := make([]byte, size)
	s.r.Data(payload)
	if err := s.r.Error(); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "Reading chunk %d: %v", s.index, err)
	}
	b := proto.NewBuffer(payload)
	meta, err := decodeMeta(b)
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "Reading metadata of chunk %d: %v", s.index, err)
	}
	c := &Chunk{
		Kind:      kind &^ truncatedBit,
		Index:     s.index,
		Meta:      meta,
		Truncated: kind&truncatedBit != 0,
		Version:   s.version,
		body:      b.Unread(),
	}
	s.index++
	return c, nil
}

// SkipNext skips over the next chunk without decoding it, returning its
// kind.
func (s *StreamReader) SkipNext() (Kind, error) {
	kind, size, err := s.header()
	if err != nil {
		return 0, err
	}
	binary.Skip(s.r, uint64(size))
	if err := s.r.Error(); err != nil {
		return 0, errors.Wrapf(ErrCorrupt, "Skipping chunk %d: %v", s.index, err)
	}
	s.index++
	return kind &^ truncatedBit, nil
}

// ReadAll reads every remaining chunk of the stream.
// It stops early if ctx is cancelled.
func (s *StreamReader) ReadAll(ctx context.Context) ([]*Chunk, error) {
	out := []*Chunk{}
	for {
		if task.Stopped(ctx) {
			return out, task.StopReason(ctx)
		}
		c, err := s.Next()
		switch {
		case err == io.EOF:
			return out, nil
		case err != nil:
			return out, err
		}
		out = append(out, c)
	}
}
