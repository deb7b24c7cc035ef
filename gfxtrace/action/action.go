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

// Package action holds the tree of events produced by replaying a trace.
//
// Every action (draw, dispatch, copy, clear, present) and every marker call
// consumes one event identifier. Actions also consume an action identifier;
// markers do not. Calls that only change state are folded into the event
// that follows them.
package action

import (
	"fmt"

	"github.com/gfxtrace/gfxtrace/core/fault"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/state"
)

// Break can be returned from a Walk callback to stop the walk early without
// an error.
const Break = fault.Const("Break")

// APIEvent is one call made as part of an event.
type APIEvent struct {
	// Chunk is the index of the call's chunk in its stream.
	Chunk int
	Name  string
}

// Node is one event of the tree.
type Node struct {
	EventID api.EventID
	// EndEventID is the event that closes a marker region. It equals EventID
	// for every other node.
	EndEventID api.EventID
	// ActionID is zero for markers.
	ActionID api.ActionID
	Name     string
	Flags    api.ActionFlags
	// State is a snapshot of the render state at the event.
	State *state.RenderState
	Usage []api.ResourceUsage
	// Args is the call that produced the event.
	Args cmds.Cmd
	// Events lists every call folded into the event, the event's own call
	// last.
	Events   []APIEvent
	Children []*Node
}

func (n *Node) String() string {
	if n.ActionID != 0 {
		return fmt.Sprintf("%d [%d] %s", n.EventID, n.ActionID, n.Name)
	}
	return fmt.Sprintf("%d %s", n.EventID, n.Name)
}

// Clone returns a deep copy of the node and its children, with every event
// identifier offset by dEvent and every action identifier by dAction.
// Render states are shared.
func (n *Node) Clone(dEvent, dAction int) *Node {
	out := *n
	out.EventID = offsetEvent(n.EventID, dEvent)
	out.EndEventID = offsetEvent(n.EndEventID, dEvent)
	if n.ActionID != 0 {
		out.ActionID = api.ActionID(int(n.ActionID) + dAction)
	}
	out.Events = append([]APIEvent(nil), n.Events...)
	out.Children = make([]*Node, len(n.Children))
	for i, c := range n.Children {
		out.Children[i] = c.Clone(dEvent, dAction)
	}
	return &out
}

func offsetEvent(e api.EventID, d int) api.EventID {
	if e == 0 {
		return 0
	}
	return api.EventID(int(e) + d)
}

// Tree builds a tree of nodes, tracking the open marker regions.
type Tree struct {
	Root  *Node
	stack []*Node
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	root := &Node{Name: "Frame"}
	return &Tree{Root: root, stack: []*Node{root}}
}

func (t *Tree) scope() *Node { return t.stack[len(t.stack)-1] }

// Add appends n to the innermost open region.
func (t *Tree) Add(n *Node) *Node {
	if n.EndEventID == 0 {
		n.EndEventID = n.EventID
	}
	s := t.scope()
	s.Children = append(s.Children, n)
	return n
}

// Push appends n and opens it as a marker region.
func (t *Tree) Push(n *Node) *Node {
	t.Add(n)
	t.stack = append(t.stack, n)
	return n
}

// Pop closes the innermost marker region at event end. It returns nil if no
// region is open.
func (t *Tree) Pop(end api.EventID) *Node {
	if len(t.stack) == 1 {
		return nil
	}
	n := t.scope()
	n.EndEventID = end
	t.stack = t.stack[:len(t.stack)-1]
	return n
}

// Depth returns the number of open marker regions.
func (t *Tree) Depth() int { return len(t.stack) - 1 }

// Open returns the open marker regions, outermost first.
func (t *Tree) Open() []*Node { return append([]*Node(nil), t.stack[1:]...) }

// CloneInto appends copies of the children of src to the innermost open
// region of t, offsetting their identifiers.
func (t *Tree) CloneInto(src *Node, dEvent, dAction int) {
	for _, c := range src.Children {
		t.Add(c.Clone(dEvent, dAction))
	}
}

// Walk calls f for n and each of its descendants in event order. Returning
// Break from f stops the walk and Walk returns nil.
func Walk(n *Node, f func(n *Node, depth int) error) error {
	err := walk(n, 0, f)
	if err == Break {
		return nil
	}
	return err
}

func walk(n *Node, depth int, f func(*Node, int) error) error {
	if err := f(n, depth); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, depth+1, f); err != nil {
			return err
		}
	}
	return nil
}

// Flatten returns the descendants of n in event order.
func Flatten(n *Node) []*Node {
	out := []*Node{}
	Walk(n, func(c *Node, depth int) error {
		if depth > 0 {
			out = append(out, c)
		}
		return nil
	})
	return out
}

// Find returns the node for the event eid under n. The closing event of a
// marker region resolves to the region's node.
func Find(n *Node, eid api.EventID) *Node {
	var found *Node
	Walk(n, func(c *Node, depth int) error {
		if depth > 0 && (c.EventID == eid || c.EndEventID == eid) {
			found = c
			if c.EventID == eid {
				return Break
			}
		}
		return nil
	})
	return found
}

// Shift adds dEvent to every event identifier greater than after, and dAction
// to the action identifier of every action whose event is greater than after.
func Shift(n *Node, after api.EventID, dEvent, dAction int) {
	Walk(n, func(c *Node, depth int) error {
		if depth == 0 {
			return nil
		}
		if c.EventID > after {
			c.EventID = offsetEvent(c.EventID, dEvent)
			if c.ActionID != 0 {
				c.ActionID = api.ActionID(int(c.ActionID) + dAction)
			}
		}
		if c.EndEventID > after {
			c.EndEventID = offsetEvent(c.EndEventID, dEvent)
		}
		return nil
	})
}

// Remove removes every descendant of n for which f returns true, along with
// its children. It returns the number of nodes removed.
func Remove(n *Node, f func(*Node) bool) int {
	removed := 0
	kept := n.Children[:0]
	for _, c := range n.Children {
		if f(c) {
			removed += 1 + len(Flatten(c))
			continue
		}
		removed += Remove(c, f)
		kept = append(kept, c)
	}
	for i := len(kept); i < len(n.Children); i++ {
		n.Children[i] = nil
	}
	n.Children = kept
	return removed
}

// Counts returns the number of events and actions under n.
func Counts(n *Node) (events, actions int) {
	for _, c := range Flatten(n) {
		events++
		if c.EndEventID != c.EventID {
			events++
		}
		if c.ActionID != 0 {
			actions++
		}
	}
	return events, actions
}

// EventIDs returns every event identifier under n in replay order, including
// the closing events of marker regions.
func EventIDs(n *Node) []api.EventID {
	out := []api.EventID{}
	var visit func(*Node)
	visit = func(c *Node) {
		out = append(out, c.EventID)
		for _, child := range c.Children {
			visit(child)
		}
		if c.EndEventID != c.EventID {
			out = append(out, c.EndEventID)
		}
	}
	for _, c := range n.Children {
		visit(c)
	}
	return out
}

// UsageIndex maps resources to every event that used them.
type UsageIndex map[api.ResourceID][]api.EventUsage

// BuildUsage returns the usage index of every event under n.
func BuildUsage(n *Node) UsageIndex {
	out := UsageIndex{}
	for _, c := range Flatten(n) {
		for _, u := range c.Usage {
			out[u.Resource] = append(out[u.Resource], api.EventUsage{Event: c.EventID, Usage: u.Usage})
		}
	}
	return out
}
