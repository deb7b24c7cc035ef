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

package indirect

import (
	"context"
	"fmt"

	"github.com/gfxtrace/gfxtrace/core/fault"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/action"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/state"
)

// Group is one expanded ExecuteIndirect.
type Group struct {
	// Ordinal is the index of the ExecuteIndirect within its baked list.
	Ordinal   uint32
	Node      *action.Node
	Cmd       *cmds.ExecuteIndirect
	Signature Signature
	// State is the render state before the ExecuteIndirect.
	State *state.RenderState
	// Count is the number of iterations the GPU executed. It is only valid
	// after Finalize.
	Count int
	// Subs are the decoded sub-actions, in event order.
	Subs []SubAction
}

// Expand creates the node of the ExecuteIndirect c, with one placeholder
// child per argument of each of its MaxCount iterations. The group node has
// event first; its children follow. Draws and dispatches take consecutive
// action identifiers from firstAction.
// It returns the group and the number of events and actions it consumed.
func Expand(ordinal uint32, c *cmds.ExecuteIndirect, sig Signature, st *state.RenderState, first api.EventID, firstAction api.ActionID) (*Group, int, int) {
	g := &Group{
		Ordinal:   ordinal,
		Cmd:       c,
		Signature: sig,
		State:     st.Clone(),
		Node: &action.Node{
			EventID:    first,
			EndEventID: first,
			Name:       cmds.Describe(c),
			Flags:      cmds.Flags(c),
			State:      st.Clone(),
			Usage:      st.Usage(c),
			Args:       c,
		},
	}
	events, actions := 1, 0
	for i := 0; i < int(c.MaxCount); i++ {
		for _, a := range sig.Args {
			n := &action.Node{
				EventID: first + api.EventID(events),
				Name:    fmt.Sprintf("%v[%d]", a.Kind, i),
				Flags:   placeholderFlags(a.Kind),
			}
			n.EndEventID = n.EventID
			if n.Flags.IsAction() {
				n.ActionID = firstAction + api.ActionID(actions)
				actions++
			}
			g.Node.Children = append(g.Node.Children, n)
			events++
		}
	}
	return g, events, actions
}

func placeholderFlags(k ArgKind) api.ActionFlags {
	switch k {
	case ArgDraw:
		return api.Draw | api.Indirect
	case ArgDrawIndexed:
		return api.Draw | api.Indexed | api.Indirect
	case ArgDispatch:
		return api.Dispatch | api.Indirect
	default:
		return api.IndirectState | api.Indirect
	}
}

// Last returns the last event of the group.
func (g *Group) Last() api.EventID {
	if n := len(g.Node.Children); n > 0 {
		return g.Node.Children[n-1].EventID
	}
	return g.Node.EventID
}

// Contains returns true if eid is the group node or one of its children.
func (g *Group) Contains(eid api.EventID) bool {
	return eid >= g.Node.EventID && eid <= g.Last()
}

// Staged returns the argument data read back for the ExecuteIndirect with the
// given ordinal.
type Staged func(ordinal uint32) (*cmds.IndirectArguments, bool)

// Finalize decodes the staged arguments of every group in groups, which must
// be in event order under root.
//
// The placeholders of iterations the GPU did not execute are removed and
// every later event and action under root is renumbered in the same step, so
// the numbering stays contiguous. A group whose arguments overrun the staged
// data keeps the sub-actions decoded before the overrun; the overruns are
// returned as a fault.List of DataCorruption errors.
//
// It returns the number of events and actions removed.
func Finalize(ctx context.Context, root *action.Node, groups []*Group, staged Staged, layouts state.Layouts) (int, int, error) {
	errs := fault.List{}
	removedEvents, removedActions := 0, 0
	for _, g := range groups {
		ctx := log.V{"ordinal": g.Ordinal, "event": g.Node.EventID}.Bind(ctx)
		count := 0
		var data []byte
		if sa, ok := staged(g.Ordinal); ok {
			count = int(sa.Count)
			if count > int(g.Cmd.MaxCount) {
				count = int(g.Cmd.MaxCount)
			}
			data = sa.Data
		} else {
			log.W(ctx, "No staged arguments for ExecuteIndirect, dropping its iterations")
		}
		subs, err := Decode(g.Signature, g.Cmd.List, data, count)
		if err != nil {
			log.W(ctx, "Dropping indirect sub-actions: %v", err)
			errs.Collect(err)
		}
		g.Count, g.Subs = count, subs

		end := g.Last()
		events, actions := g.prune(len(subs))
		action.Shift(root, end, -events, -actions)
		removedEvents += events
		removedActions += actions

		g.fill(layouts)
	}
	return removedEvents, removedActions, errs.Err()
}

// prune removes every placeholder past the first kept ones, returning the
// number of events and actions removed.
func (g *Group) prune(kept int) (int, int) {
	removed := g.Node.Children[kept:]
	actions := 0
	for _, n := range removed {
		if n.ActionID != 0 {
			actions++
		}
	}
	g.Node.Children = g.Node.Children[:kept:kept]
	return len(removed), actions
}

func (g *Group) fill(layouts state.Layouts) {
	st := g.State.Clone()
	for i, sub := range g.Subs {
		n := g.Node.Children[i]
		c := sub.Direct()
		n.Args = c
		n.Name = cmds.Describe(c)
		if sub.IsAction() {
			n.Flags = cmds.Flags(c) | api.Indirect
			n.Usage = st.Usage(c)
		} else {
			st.Apply(c, layouts)
		}
		n.State = st.Clone()
	}
	g.Node.Name = fmt.Sprintf("%s = %d", cmds.Describe(g.Cmd), g.Count)
}

// Plan is the part of a group to replay for a cut inside it.
type Plan struct {
	// FullIterations is the number of complete iterations to execute.
	FullIterations int
	// Tail holds the state-setting sub-actions of the next iteration up to
	// the cut.
	Tail []SubAction
}

// Plan returns what to replay of the group to stop at the event cut.
//
// With S slots per iteration, the cut is sub-action c = k*S + j. If j is the
// last slot, the cut is the draw or dispatch of iteration k and k+1 full
// iterations run. Otherwise k full iterations run, followed by the state
// slots 0..j of iteration k.
func (g *Group) Plan(cut api.EventID) Plan {
	c, ok := g.index(cut)
	if !ok {
		return Plan{}
	}
	s := g.Signature.Slots()
	k, j := c/s, c%s
	if j == s-1 {
		return Plan{FullIterations: k + 1}
	}
	return Plan{FullIterations: k, Tail: g.Subs[k*s : k*s+j+1]}
}

// Isolate returns the sub-actions to replay to run only the event cut: every
// state-setting sub-action before it and the sub-action at cut.
func (g *Group) Isolate(cut api.EventID) []SubAction {
	c, ok := g.index(cut)
	if !ok {
		return nil
	}
	out := []SubAction{}
	for _, sub := range g.Subs[:c] {
		if !sub.IsAction() {
			out = append(out, sub)
		}
	}
	return append(out, g.Subs[c])
}

// index returns the index of the sub-action at eid, clamped to the decoded
// sub-actions.
func (g *Group) index(eid api.EventID) (int, bool) {
	if eid <= g.Node.EventID || len(g.Subs) == 0 {
		return 0, false
	}
	c := int(eid - g.Node.EventID - 1)
	if c >= len(g.Subs) {
		c = len(g.Subs) - 1
	}
	return c, true
}
