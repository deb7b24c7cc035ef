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

// Package cmds declares the typed calls carried by trace chunks.
//
// Every call is a plain struct that writes itself to a chunk.Writer and reads
// itself back from a chunk.Reader. Calls recorded into a command list carry
// the list as their first element.
package cmds

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
)

// Limits on the sizes a decoded call may carry.
const (
	// MaxRootParams is the most parameter slots a root signature has.
	MaxRootParams = 64
	// MaxVertexBuffers is the number of vertex buffer slots.
	MaxVertexBuffers = 32
	// MaxIndirectArgs is the most arguments a command signature has.
	MaxIndirectArgs = 32
	// MaxIndirectCount is the largest ExecuteIndirect MaxCount.
	MaxIndirectCount = 1 << 14
)

func checkSlot(r *chunk.Reader, slot uint32) {
	if slot >= MaxRootParams {
		r.Failf("root parameter slot %d out of range", slot)
	}
}

// Cmd is a call that can be stored in a chunk.
type Cmd interface {
	// Kind returns the chunk kind of the call.
	Kind() chunk.Kind
	// Encode writes the call's elements to w.
	Encode(w *chunk.Writer)
	// Decode reads the call's elements from r.
	Decode(r *chunk.Reader)
	// Resources calls visit with a pointer to every resource identifier the
	// call refers to, and the access the call makes to it.
	Resources(visit func(id *api.ResourceID, access api.Access))
}

// ListCmd is a call recorded into a command list.
type ListCmd interface {
	Cmd
	// Target returns the command list the call is recorded into.
	Target() api.ResourceID
	// SetTarget sets the command list the call is recorded into.
	SetTarget(api.ResourceID)
}

// Creator is a call that creates a device object.
type Creator interface {
	Cmd
	// Created returns the identifier of the created object.
	Created() api.ResourceID
	// SetCreated sets the identifier of the created object.
	SetCreated(api.ResourceID)
}

// listTarget is embedded by every call recorded into a command list.
type listTarget struct {
	List api.ResourceID
}

// Target returns the command list the call is recorded into.
func (l listTarget) Target() api.ResourceID { return l.List }

// SetTarget sets the command list the call is recorded into.
func (l *listTarget) SetTarget(id api.ResourceID) { l.List = id }

func (l *listTarget) encodeList(w *chunk.Writer) { w.Resource("List", uint64(l.List)) }
func (l *listTarget) decodeList(r *chunk.Reader) { l.List = api.ResourceID(r.Resource("List")) }

// Encode serializes c into a chunk using s.
func Encode(s *chunk.Serializer, c Cmd, meta chunk.Meta) (*chunk.Chunk, error) {
	return s.Write(c.Kind(), meta, c.Encode)
}

// Decode decodes the call stored in c.
func Decode(c *chunk.Chunk) (Cmd, error) {
	info, ok := kinds[c.Kind]
	if !ok {
		return nil, errors.Wrapf(chunk.ErrCorrupt, "Chunk %d has unknown kind %d", c.Index, c.Kind)
	}
	cmd := info.create()
	r := c.Reader()
	cmd.Decode(r)
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Category groups chunk kinds by where they appear in a trace.
type Category int

const (
	// System chunks frame the trace.
	System Category = iota
	// Create chunks create device objects.
	Create
	// List chunks are recorded into command lists.
	List
	// Queue chunks operate on queues.
	Queue
)

func (c Category) String() string {
	switch c {
	case System:
		return "System"
	case Create:
		return "Create"
	case List:
		return "List"
	case Queue:
		return "Queue"
	default:
		return "Unknown"
	}
}

type kindInfo struct {
	name     string
	category Category
	create   func() Cmd
}

var kinds = map[chunk.Kind]kindInfo{}

func register(k chunk.Kind, name string, cat Category, create func() Cmd) {
	if _, dup := kinds[k]; dup {
		panic(errors.Errorf("Chunk kind %d registered twice", k))
	}
	kinds[k] = kindInfo{name: name, category: cat, create: create}
}

// Name returns the name of the chunk kind k.
func Name(k chunk.Kind) string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "Unknown"
}

// CategoryOf returns the category of the chunk kind k.
func CategoryOf(k chunk.Kind) Category {
	return kinds[k].category
}

// Kinds returns every registered chunk kind in ascending order.
func Kinds() []chunk.Kind {
	out := make([]chunk.Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
