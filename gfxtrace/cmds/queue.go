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

package cmds

import (
	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
)

// QueueCmd is a call made on a queue.
type QueueCmd interface {
	Cmd
	// OnQueue returns the queue the call is made on.
	OnQueue() api.ResourceID
	// SetQueue sets the queue the call is made on.
	SetQueue(api.ResourceID)
}

type queueTarget struct {
	Queue api.ResourceID
}

// OnQueue returns the queue the call is made on.
func (q queueTarget) OnQueue() api.ResourceID { return q.Queue }

// SetQueue sets the queue the call is made on.
func (q *queueTarget) SetQueue(id api.ResourceID) { q.Queue = id }

func (q *queueTarget) encodeQueue(w *chunk.Writer) { w.Resource("Queue", uint64(q.Queue)) }
func (q *queueTarget) decodeQueue(r *chunk.Reader) { q.Queue = api.ResourceID(r.Resource("Queue")) }

// ExecuteCommandLists submits closed command lists to a queue.
type ExecuteCommandLists struct {
	queueTarget
	Lists []api.ResourceID
}

func (*ExecuteCommandLists) Kind() chunk.Kind { return KindExecuteCommandLists }

func (c *ExecuteCommandLists) Encode(w *chunk.Writer) {
	c.encodeQueue(w)
	w.Important().Resources("Lists", ids(c.Lists))
}

func (c *ExecuteCommandLists) Decode(r *chunk.Reader) {
	c.decodeQueue(r)
	c.Lists = resourceIDs(r.Resources("Lists"))
}

func (c *ExecuteCommandLists) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.Queue, api.Read)
	for i := range c.Lists {
		visit(&c.Lists[i], api.Read)
	}
}

// Signal sets a fence to a value once the queue's prior work completes.
type Signal struct {
	queueTarget
	Fence api.ResourceID
	Value uint64
}

func (*Signal) Kind() chunk.Kind { return KindSignal }

func (c *Signal) Encode(w *chunk.Writer) {
	c.encodeQueue(w)
	w.Resource("Fence", uint64(c.Fence))
	w.Uint64("Value", c.Value)
}

func (c *Signal) Decode(r *chunk.Reader) {
	c.decodeQueue(r)
	c.Fence = api.ResourceID(r.Resource("Fence"))
	c.Value = r.Uint64("Value")
}

func (c *Signal) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.Queue, api.Read)
	visit(&c.Fence, api.Read)
}

// Wait stalls the queue until a fence reaches a value.
type Wait struct {
	queueTarget
	Fence api.ResourceID
	Value uint64
}

func (*Wait) Kind() chunk.Kind { return KindWait }

func (c *Wait) Encode(w *chunk.Writer) {
	c.encodeQueue(w)
	w.Resource("Fence", uint64(c.Fence))
	w.Uint64("Value", c.Value)
}

func (c *Wait) Decode(r *chunk.Reader) {
	c.decodeQueue(r)
	c.Fence = api.ResourceID(r.Resource("Fence"))
	c.Value = r.Uint64("Value")
}

func (c *Wait) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.Queue, api.Read)
	visit(&c.Fence, api.Read)
}

// Present shows a texture. It ends a frame.
type Present struct {
	queueTarget
	Image api.ResourceID
}

func (*Present) Kind() chunk.Kind { return KindPresent }

func (c *Present) Encode(w *chunk.Writer) {
	c.encodeQueue(w)
	w.Resource("Image", uint64(c.Image))
}

func (c *Present) Decode(r *chunk.Reader) {
	c.decodeQueue(r)
	c.Image = api.ResourceID(r.Resource("Image"))
}

func (c *Present) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.Queue, api.Read)
	visit(&c.Image, api.Read)
}
