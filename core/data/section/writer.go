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
	"os"
	"sync"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// Sink is implemented by containers that sections can be written to.
type Sink interface {
	// OpenSection returns a writer for a new section of the given kind.
	// The section is committed to the container when the writer is closed.
	OpenSection(kind Kind) (io.WriteCloser, error)
}

// Writer is the type for a container writer.
// They should only be constructed by NewWriter.
type Writer struct {
	mutex   sync.Mutex
	to      io.Writer
	sizebuf *proto.Buffer
	err     error
}

// NewWriter constructs and returns a new Writer that writes to the supplied
// output stream.
// This method will write the container magic to the underlying stream.
func NewWriter(to io.Writer) (*Writer, error) {
	w := &Writer{
		to:      to,
		sizebuf: proto.NewBuffer(make([]byte, 0, maxVarintSize*2)),
	}
	if _, err := to.Write(magic); err != nil {
		return nil, errors.Wrap(err, "Writing container magic")
	}
	return w, nil
}

// OpenSection returns a writer for a new section of the given kind.
func (w *Writer) OpenSection(kind Kind) (io.WriteCloser, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	return &sectionWriter{parent: w, kind: kind}, nil
}

func (w *Writer) commit(kind Kind, payload []byte) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.err != nil {
		return w.err
	}
	w.sizebuf.Reset()
	w.sizebuf.EncodeStringBytes(string(kind))
	w.sizebuf.EncodeVarint(uint64(len(payload)))
	if _, err := w.to.Write(w.sizebuf.Bytes()); err != nil {
		w.err = errors.Wrapf(err, "Writing section '%v' header", kind)
		return w.err
	}
	if _, err := w.to.Write(payload); err != nil {
		w.err = errors.Wrapf(err, "Writing section '%v'", kind)
		return w.err
	}
	return nil
}

type sectionWriter struct {
	parent *Writer
	kind   Kind
	buf    bytes.Buffer
	closed bool
}

func (s *sectionWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	return s.buf.Write(p)
}

func (s *sectionWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.parent.commit(s.kind, s.buf.Bytes())
}
