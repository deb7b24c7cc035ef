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

// Package record turns the calls recorded into a command list into a baked
// list: the calls in order, the action tree they produce and the render
// state at each event.
//
// The same Builder is used while capturing, as calls are intercepted, and
// while loading a trace, as list chunks are read back.
package record

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gfxtrace/gfxtrace/gfxtrace/action"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/indirect"
	"github.com/gfxtrace/gfxtrace/gfxtrace/state"
)

// Signatures holds the validated command signatures by identifier.
type Signatures map[api.ResourceID]indirect.Signature

// Add validates and stores the signature created by c.
func (s Signatures) Add(c *cmds.CreateCommandSignature) error {
	sig, err := indirect.NewSignature(c)
	if err != nil {
		return err
	}
	s[c.ID] = sig
	return nil
}

// Step is one call of a baked list.
type Step struct {
	// Chunk is the index of the call's chunk in its stream.
	Chunk int
	Cmd   cmds.ListCmd
	// Node is the node of the event the call belongs to. State changes
	// belong to the event that follows them; Node is nil for state changes
	// that no event follows.
	Node *action.Node
	// End is true if the call belongs to the event that closes the marker
	// region Node.
	End bool
	// Group is the expansion of an ExecuteIndirect call.
	Group *indirect.Group
}

// Event returns the event the step belongs to, or zero if it belongs to none.
func (s Step) Event() api.EventID {
	switch {
	case s.Node == nil:
		return 0
	case s.End:
		return s.Node.EndEventID
	default:
		return s.Node.EventID
	}
}

// IsEvent returns true if the step's own call produced its event.
func (s Step) IsEvent() bool { return cmds.IsEvent(s.Cmd) }

// Baked is a closed command list.
type Baked struct {
	ID        api.BakedID
	List      api.ResourceID
	Allocator api.ResourceID
	// Steps are the calls between the list's reset and close.
	Steps []Step
	// Root holds the events of the list, numbered from 1.
	Root        *action.Node
	EventCount  int
	ActionCount int
	Groups      []*indirect.Group
	// State is the render state when the list was closed.
	State *state.RenderState
}

// Finalize expands the list's ExecuteIndirect calls with the staged argument
// data, updating the event and action counts.
func (b *Baked) Finalize(ctx context.Context, staged indirect.Staged, layouts state.Layouts) error {
	if len(b.Groups) == 0 {
		return nil
	}
	events, actions, err := indirect.Finalize(ctx, b.Root, b.Groups, staged, layouts)
	b.EventCount -= events
	b.ActionCount -= actions
	return err
}

// Builder records the calls of one command list at a time.
// It is not safe for concurrent use.
type Builder struct {
	layouts    state.Layouts
	signatures Signatures

	baked      *Baked
	state      *state.RenderState
	tree       *action.Tree
	pending    []int
	nextEvent  api.EventID
	nextAction api.ActionID
}

// NewBuilder returns a Builder that resolves root signatures with layouts and
// command signatures with signatures. Both may be added to while building.
func NewBuilder(layouts state.Layouts, signatures Signatures) *Builder {
	return &Builder{layouts: layouts, signatures: signatures}
}

// Recording returns true between Begin and Close.
func (b *Builder) Recording() bool { return b.baked != nil }

// State returns the shadow render state of the list being recorded.
func (b *Builder) State() *state.RenderState { return b.state }

// Begin starts recording the list reset by c. Any list still being recorded
// is discarded.
func (b *Builder) Begin(c *cmds.ListReset) {
	b.baked = &Baked{
		ID:        c.Baked,
		List:      c.Target(),
		Allocator: c.Allocator,
		Steps:     []Step{},
		Groups:    []*indirect.Group{},
	}
	b.state = state.New()
	b.tree = action.NewTree()
	b.pending = b.pending[:0]
	b.nextEvent, b.nextAction = 1, 1
}

// Add records c, routing it to StateChange, Action or Marker.
func (b *Builder) Add(chunk int, c cmds.ListCmd) error {
	switch c.(type) {
	case *cmds.PushMarker, *cmds.PopMarker, *cmds.SetMarker:
		b.Marker(chunk, c)
		return nil
	}
	if cmds.IsEvent(c) {
		return b.Action(chunk, c)
	}
	b.StateChange(chunk, c)
	return nil
}

func (b *Builder) mustRecord(c cmds.Cmd) {
	if b.baked == nil {
		panic(errors.Errorf("%s recorded into a list that was not reset", cmds.Name(c.Kind())))
	}
}

// StateChange records a call that only changes state. It is folded into the
// next event.
func (b *Builder) StateChange(chunk int, c cmds.ListCmd) {
	b.mustRecord(c)
	b.state.Apply(c, b.layouts)
	b.pending = append(b.pending, len(b.baked.Steps))
	b.baked.Steps = append(b.baked.Steps, Step{Chunk: chunk, Cmd: c})
}

// Action records a draw, dispatch, copy, clear or ExecuteIndirect call.
func (b *Builder) Action(chunk int, c cmds.ListCmd) error {
	b.mustRecord(c)
	if ei, ok := c.(*cmds.ExecuteIndirect); ok {
		return b.executeIndirect(chunk, ei)
	}
	n := &action.Node{
		EventID:  b.nextEvent,
		ActionID: b.nextAction,
		Name:     cmds.Describe(c),
		Flags:    cmds.Flags(c),
		State:    b.state.Clone(),
		Usage:    b.state.Usage(c),
		Args:     c,
	}
	b.tree.Add(n)
	b.event(chunk, c, n, false, nil)
	b.nextAction++
	return nil
}

func (b *Builder) executeIndirect(chunk int, c *cmds.ExecuteIndirect) error {
	sig, ok := b.signatures[c.Signature]
	if !ok {
		return api.Errorf(api.UnknownResource, nil, "ExecuteIndirect uses unknown command signature %v", c.Signature)
	}
	if c.MaxCount > cmds.MaxIndirectCount {
		return api.Errorf(api.DataCorruption, nil, "ExecuteIndirect MaxCount %d exceeds %d", c.MaxCount, cmds.MaxIndirectCount)
	}
	ordinal := uint32(len(b.baked.Groups))
	g, events, actions := indirect.Expand(ordinal, c, sig, b.state, b.nextEvent, b.nextAction)
	b.tree.Add(g.Node)
	b.baked.Groups = append(b.baked.Groups, g)
	b.event(chunk, c, g.Node, false, g)
	b.nextEvent += api.EventID(events - 1)
	b.nextAction += api.ActionID(actions)
	return nil
}

// Marker records a marker call. Markers consume an event but no action.
// A pop with no open region is recorded as a state change.
func (b *Builder) Marker(chunk int, c cmds.ListCmd) {
	b.mustRecord(c)
	switch c := c.(type) {
	case *cmds.PushMarker:
		n := b.tree.Push(b.markerNode(c))
		b.event(chunk, c, n, false, nil)
	case *cmds.SetMarker:
		n := b.tree.Add(b.markerNode(c))
		b.event(chunk, c, n, false, nil)
	case *cmds.PopMarker:
		n := b.tree.Pop(b.nextEvent)
		if n == nil {
			b.StateChange(chunk, c)
			return
		}
		b.event(chunk, c, n, true, nil)
	}
}

func (b *Builder) markerNode(c cmds.ListCmd) *action.Node {
	return &action.Node{
		EventID: b.nextEvent,
		Name:    cmds.Describe(c),
		Flags:   cmds.Flags(c),
		State:   b.state.Clone(),
		Args:    c,
	}
}

// event assigns the pending state changes and the call c to the event node
// n and advances the event counter.
func (b *Builder) event(chunk int, c cmds.ListCmd, n *action.Node, end bool, g *indirect.Group) {
	for _, i := range b.pending {
		s := &b.baked.Steps[i]
		s.Node, s.End = n, end
		n.Events = append(n.Events, action.APIEvent{Chunk: s.Chunk, Name: cmds.Name(s.Cmd.Kind())})
	}
	b.pending = b.pending[:0]
	n.Events = append(n.Events, action.APIEvent{Chunk: chunk, Name: cmds.Name(c.Kind())})
	b.baked.Steps = append(b.baked.Steps, Step{Chunk: chunk, Cmd: c, Node: n, End: end, Group: g})
	b.nextEvent++
}

// Close ends the list and returns it baked. Closing a list that was never
// reset is a programming error and panics.
func (b *Builder) Close(c *cmds.ListClose) *Baked {
	b.mustRecord(c)
	out := b.baked
	out.Root = b.tree.Root
	out.EventCount = int(b.nextEvent) - 1
	out.ActionCount = int(b.nextAction) - 1
	out.State = b.state
	b.baked, b.state, b.tree = nil, nil, nil
	b.pending = b.pending[:0]
	return out
}
