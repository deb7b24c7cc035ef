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

package indirect_test

import (
	"context"
	"testing"

	"github.com/gfxtrace/gfxtrace/core/assert"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/action"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/indirect"
	"github.com/gfxtrace/gfxtrace/gfxtrace/state"
)

const list = api.ResourceID(50)

func signature(t *testing.T) indirect.Signature {
	sig, err := indirect.NewSignature(&cmds.CreateCommandSignature{
		ID:         5,
		ByteStride: 24,
		Args: []cmds.IndirectArg{
			{Kind: indirect.ArgConstant, Slot: 0, Count: 1},
			{Kind: indirect.ArgDrawIndexed},
		},
	})
	if err != nil {
		t.Fatalf("NewSignature failed: %v", err)
	}
	return sig
}

// arguments encodes n iterations, padded to max iterations.
func arguments(sig indirect.Signature, n, max int) []byte {
	data := []byte{}
	for i := 0; i < n; i++ {
		data = indirect.Encode(data, sig, []cmds.Cmd{
			&cmds.SetRootConstants{Values: []uint32{uint32(100 + i)}},
			&cmds.DrawIndexed{IndexCount: 36, InstanceCount: uint32(i + 1)},
		})
	}
	return append(data, make([]byte, (max-n)*int(sig.Stride))...)
}

// frame builds [draw][ExecuteIndirect max][draw].
func frame(t *testing.T, max uint32) (*action.Tree, *indirect.Group) {
	tree := action.NewTree()
	tree.Add(&action.Node{EventID: 1, ActionID: 1, Flags: api.Draw})
	ei := &cmds.ExecuteIndirect{Signature: 5, MaxCount: max, Args: 60}
	ei.SetTarget(list)
	g, events, actions := indirect.Expand(0, ei, signature(t), state.New(), 2, 2)
	tree.Add(g.Node)
	tree.Add(&action.Node{
		EventID:  2 + api.EventID(events),
		ActionID: 2 + api.ActionID(actions),
		Flags:    api.Draw,
	})
	return tree, g
}

func contiguous(ctx context.Context, root *action.Node) {
	for i, eid := range action.EventIDs(root) {
		assert.For(ctx, "event %d", i).That(eid).Equals(api.EventID(i + 1))
	}
}

func TestExpand(t *testing.T) {
	ctx := log.Testing(t)
	tree, g := frame(t, 10)
	assert.For(ctx, "placeholders").ThatSlice(g.Node.Children).IsLength(20)
	assert.For(ctx, "group action").That(g.Node.ActionID).Equals(api.ActionID(0))
	assert.For(ctx, "state slot").That(g.Node.Children[0].Flags.IsIndirectState()).Equals(true)
	assert.For(ctx, "draw slot").That(g.Node.Children[1].ActionID).Equals(api.ActionID(2))
	last := tree.Root.Children[2]
	assert.For(ctx, "after event").That(last.EventID).Equals(api.EventID(23))
	assert.For(ctx, "after action").That(last.ActionID).Equals(api.ActionID(12))
	contiguous(ctx, tree.Root)
}

func TestFinalizePrunes(t *testing.T) {
	ctx := log.Testing(t)
	tree, g := frame(t, 10)
	sig := g.Signature
	staged := func(ordinal uint32) (*cmds.IndirectArguments, bool) {
		return &cmds.IndirectArguments{Ordinal: ordinal, Count: 3, Data: arguments(sig, 3, 10)}, true
	}
	events, actions, err := indirect.Finalize(ctx, tree.Root, []*indirect.Group{g}, staged, state.Layouts{})
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "removed events").That(events).Equals((10 - 3) * sig.Slots())
	assert.For(ctx, "removed actions").That(actions).Equals(7)
	assert.For(ctx, "kept").ThatSlice(g.Node.Children).IsLength(3 * sig.Slots())

	last := tree.Root.Children[2]
	assert.For(ctx, "after event").That(last.EventID).Equals(api.EventID(23 - 14))
	assert.For(ctx, "after action").That(last.ActionID).Equals(api.ActionID(12 - 7))
	contiguous(ctx, tree.Root)

	draw := g.Node.Children[3]
	assert.For(ctx, "name").That(draw.Name).Equals("DrawIndexed(36, 2)")
	assert.For(ctx, "flags").That(draw.Flags).Equals(api.Draw | api.Indexed | api.Indirect)
	assert.For(ctx, "constants").ThatSlice(draw.State.Graphics.Params[0].Constants).Equals([]uint32{101})
	assert.For(ctx, "target").That(draw.Args.(cmds.ListCmd).Target()).Equals(list)
}

func TestFinalizeIsIdempotentForFullCount(t *testing.T) {
	ctx := log.Testing(t)
	tree, g := frame(t, 4)
	staged := func(uint32) (*cmds.IndirectArguments, bool) {
		return &cmds.IndirectArguments{Count: 9, Data: arguments(g.Signature, 4, 4)}, true
	}
	events, actions, err := indirect.Finalize(ctx, tree.Root, []*indirect.Group{g}, staged, state.Layouts{})
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "events").That(events).Equals(0)
	assert.For(ctx, "actions").That(actions).Equals(0)
	assert.For(ctx, "count").That(g.Count).Equals(4)
	contiguous(ctx, tree.Root)
}

func TestFinalizeOverrun(t *testing.T) {
	ctx := log.Testing(t)
	tree, g := frame(t, 10)
	staged := func(uint32) (*cmds.IndirectArguments, bool) {
		return &cmds.IndirectArguments{Count: 3, Data: arguments(g.Signature, 3, 3)[:36]}, true
	}
	_, _, err := indirect.Finalize(ctx, tree.Root, []*indirect.Group{g}, staged, state.Layouts{})
	assert.For(ctx, "kind").That(api.KindOf(err)).Equals(api.DataCorruption)
	assert.For(ctx, "kept").ThatSlice(g.Node.Children).IsLength(3)
	contiguous(ctx, tree.Root)
}

func TestFinalizeMissing(t *testing.T) {
	ctx := log.Testing(t)
	tree, g := frame(t, 2)
	staged := func(uint32) (*cmds.IndirectArguments, bool) { return nil, false }
	events, _, err := indirect.Finalize(ctx, tree.Root, []*indirect.Group{g}, staged, state.Layouts{})
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "events").That(events).Equals(4)
	assert.For(ctx, "kept").ThatSlice(g.Node.Children).IsEmpty()
	contiguous(ctx, tree.Root)
}

func finalized(t *testing.T, ctx context.Context) *indirect.Group {
	tree, g := frame(t, 3)
	staged := func(uint32) (*cmds.IndirectArguments, bool) {
		return &cmds.IndirectArguments{Count: 3, Data: arguments(g.Signature, 3, 3)}, true
	}
	if _, _, err := indirect.Finalize(ctx, tree.Root, []*indirect.Group{g}, staged, state.Layouts{}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return g
}

func TestPlan(t *testing.T) {
	ctx := log.Testing(t)
	g := finalized(t, ctx)
	s := g.Signature.Slots()
	for _, test := range []struct {
		cut  api.EventID
		full int
		tail int
	}{
		{2, 0, 0},
		{3, 0, 1},
		{4, 1, 0},
		{5, 1, 1},
		{8, 3, 0},
		{20, 3, 0},
	} {
		p := g.Plan(test.cut)
		assert.For(ctx, "cut %d full", test.cut).That(p.FullIterations).Equals(test.full)
		assert.For(ctx, "cut %d tail", test.cut).ThatSlice(p.Tail).IsLength(test.tail)
	}
	// Every sub-action up to and including the cut is replayed exactly once.
	for eid := g.Node.EventID + 1; eid <= g.Last(); eid++ {
		p := g.Plan(eid)
		replayed := p.FullIterations*s + len(p.Tail)
		assert.For(ctx, "cut %d replayed", eid).That(replayed).Equals(int(eid - g.Node.EventID))
		for _, sub := range p.Tail {
			assert.For(ctx, "cut %d tail is state", eid).That(sub.IsAction()).Equals(false)
		}
	}
}

func TestIsolate(t *testing.T) {
	ctx := log.Testing(t)
	g := finalized(t, ctx)
	subs := g.Isolate(g.Node.EventID + 6)
	assert.For(ctx, "subs").ThatSlice(subs).IsLength(4)
	for _, sub := range subs[:3] {
		assert.For(ctx, "state").That(sub.IsAction()).Equals(false)
	}
	assert.For(ctx, "action").That(subs[3].IsAction()).Equals(true)
	assert.For(ctx, "iteration").That(subs[3].Iteration).Equals(2)
	assert.For(ctx, "group node").ThatSlice(g.Isolate(g.Node.EventID)).IsEmpty()
}

func TestSignatureChecks(t *testing.T) {
	ctx := log.Testing(t)
	_, err := indirect.NewSignature(&cmds.CreateCommandSignature{ByteStride: 16, Args: []cmds.IndirectArg{
		{Kind: indirect.ArgDrawIndexed},
	}})
	assert.For(ctx, "stride").ThatError(err).Failed()
	_, err = indirect.NewSignature(&cmds.CreateCommandSignature{ByteStride: 64, Args: []cmds.IndirectArg{
		{Kind: indirect.ArgDraw}, {Kind: indirect.ArgConstant, Count: 1},
	}})
	assert.For(ctx, "order").ThatError(err).Failed()
	sig, err := indirect.NewSignature(&cmds.CreateCommandSignature{ByteStride: 12, Args: []cmds.IndirectArg{
		{Kind: indirect.ArgDispatch},
	}})
	assert.For(ctx, "dispatch").ThatError(err).Succeeded()
	assert.For(ctx, "compute").That(sig.Compute()).Equals(true)
}

func TestRing(t *testing.T) {
	ctx := log.Testing(t)
	r := indirect.NewRing(100)
	ei := &cmds.ExecuteIndirect{MaxCount: 2}
	_, evicted, err := r.Reserve(indirect.Key{Baked: 1}, ei, 20)
	assert.For(ctx, "a").ThatError(err).Succeeded()
	assert.For(ctx, "a evicted").ThatSlice(evicted).IsEmpty()
	b, _, _ := r.Reserve(indirect.Key{Baked: 2}, ei, 20)
	assert.For(ctx, "b offset").That(b.Offset).Equals(uint64(40))

	// Re-executing a baked list replaces its reservation, wrapping to the
	// space it freed.
	a2, evicted, _ := r.Reserve(indirect.Key{Baked: 1}, ei, 20)
	assert.For(ctx, "a2 offset").That(a2.Offset).Equals(uint64(0))
	assert.For(ctx, "a2 evicted").ThatSlice(evicted).IsEmpty()
	assert.For(ctx, "regions").ThatSlice(r.Regions()).IsLength(2)

	c, evicted, _ := r.Reserve(indirect.Key{Baked: 3}, ei, 20)
	assert.For(ctx, "c evicts b").ThatSlice(evicted).Equals([]indirect.Key{{Baked: 2}})
	_, evicted, _ = r.Reserve(indirect.Key{Baked: 4}, ei, 20)
	assert.For(ctx, "d evicts a2").ThatSlice(evicted).Equals([]indirect.Key{{Baked: 1}})
	assert.For(ctx, "live").ThatSlice(r.Regions()).IsLength(2)

	r.Fill(c, []byte{1, 2, 3}, 2)
	args := r.Arguments(c)
	assert.For(ctx, "count").That(args.Count).Equals(uint32(2))
	assert.For(ctx, "data").ThatSlice(args.Data).IsLength(40)
	assert.For(ctx, "first").That(args.Data[0]).Equals(byte(1))
	assert.For(ctx, "padding").That(args.Data[3]).Equals(byte(0))

	_, _, err = r.Reserve(indirect.Key{Baked: 5}, &cmds.ExecuteIndirect{MaxCount: 10}, 20)
	assert.For(ctx, "too large").ThatError(err).Failed()
}
