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

	"github.com/pkg/errors"
)

// Memory is an in-memory container that can be both written and read.
type Memory struct {
	buf bytes.Buffer
	w   *Writer
}

// NewMemory returns a new, empty in-memory container.
func NewMemory() *Memory {
	m := &Memory{}
	m.w, _ = NewWriter(&m.buf)
	return m
}

// OpenSection returns a writer for a new section of the given kind.
func (m *Memory) OpenSection(kind Kind) (io.WriteCloser, error) {
	return m.w.OpenSection(kind)
}

// ReadSection returns a reader over the payload of the first section of the
// given kind.
func (m *Memory) ReadSection(kind Kind) (io.Reader, error) {
	data := m.buf.Bytes()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return r.ReadSection(kind)
}

// Bytes returns the encoded container.
func (m *Memory) Bytes() []byte { return m.buf.Bytes() }

// File is a container backed by a file on disk.
type File struct {
	*Writer
	file *os.File
}

// Create creates a new container file at path.
func Create(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Creating container '%v'", path)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Writer: w, file: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error { return f.file.Close() }

// OpenFile is a read-only container backed by a file on disk.
type OpenFile struct {
	*Reader
	file *os.File
}

// Open opens the container file at path for reading.
func Open(path string) (*OpenFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Opening container '%v'", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "Reading container '%v'", path)
	}
	return &OpenFile{Reader: r, file: f}, nil
}

// Close closes the underlying file.
func (f *OpenFile) Close() error { return f.file.Close() }
