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

package replay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gfxtrace/gfxtrace/core/assert"
	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/core/data/section"
	"github.com/gfxtrace/gfxtrace/core/event/task"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/action"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/capture"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/config"
	"github.com/gfxtrace/gfxtrace/gfxtrace/device/sim"
	"github.com/gfxtrace/gfxtrace/gfxtrace/indirect"
	"github.com/gfxtrace/gfxtrace/gfxtrace/metrics"
	"github.com/gfxtrace/gfxtrace/gfxtrace/replay"
	"github.com/gfxtrace/gfxtrace/gfxtrace/state"
)

const tid = 1

var allCaps = api.Caps(gputypes.FeatureMultiDrawIndirect | gputypes.FeatureMultiDrawIndirectCount)

// recorder captures a frame on a simulated device.
type recorder struct {
	ctx   context.Context
	dev   *sim.Device
	c     *capture.Context
	queue api.ResourceID
	alloc api.ResourceID
}

func newRecorder(ctx context.Context) *recorder {
	r := &recorder{ctx: ctx, dev: sim.New(allCaps)}
	r.c = capture.New(r.dev, config.Default())
	r.queue = r.create(&cmds.CreateQueue{})
	r.alloc = r.create(&cmds.CreateAllocator{})
	return r
}

func (r *recorder) create(c cmds.Creator) api.ResourceID {
	id, err := r.c.Create(r.ctx, tid, c)
	assert.For(r.ctx, "create %s", cmds.Name(c.Kind())).ThatError(err).Succeeded()
	return id
}

func (r *recorder) fill(id api.ResourceID, data []byte) {
	live, _ := r.c.Registry().LiveOf(id)
	assert.For(r.ctx, "fill").ThatError(r.dev.InitialContents(r.ctx, live, data)).Succeeded()
}

func (r *recorder) begin() {
	assert.For(r.ctx, "begin").ThatError(r.c.BeginFrame(r.ctx)).Succeeded()
}

func (r *recorder) list(l ...cmds.ListCmd) api.ResourceID {
	id := r.create(&cmds.CreateCommandList{Allocator: r.alloc})
	assert.For(r.ctx, "reset").ThatError(r.c.Reset(r.ctx, tid, id, r.alloc)).Succeeded()
	for _, c := range l {
		assert.For(r.ctx, "record %s", cmds.Name(c.Kind())).ThatError(r.c.Record(r.ctx, tid, id, c)).Succeeded()
	}
	_, err := r.c.Close(r.ctx, tid, id)
	assert.For(r.ctx, "close").ThatError(err).Succeeded()
	return id
}

func (r *recorder) submit(lists ...api.ResourceID) {
	assert.For(r.ctx, "submit").ThatError(r.c.ExecuteCommandLists(r.ctx, tid, r.queue, lists)).Succeeded()
}

func (r *recorder) finish() *section.Memory {
	out := section.NewMemory()
	assert.For(r.ctx, "finish").ThatError(r.c.Finish(r.ctx, out)).Succeeded()
	return out
}

func draw(n uint32) *cmds.Draw { return &cmds.Draw{VertexCount: n, InstanceCount: 1} }

// twoLists captures two lists submitted together, then a present:
//
//	list 1: 1 Draw(1), 2 Draw(2), 3 pass { 4 Draw(3), 5 Draw(4) } 6, 7 Draw(5)
//	list 2: 8 Draw(6), 9 Draw(7)
//	10 Present
func twoLists(ctx context.Context) (*section.Memory, api.ResourceID) {
	r := newRecorder(ctx)
	rt := r.create(&cmds.CreateTexture{Width: 1, Height: 1, Format: gputypes.TextureFormatRGBA8Unorm})
	r.begin()
	l1 := r.list(
		&cmds.SetTopology{Topology: gputypes.PrimitiveTopologyPointList},
		draw(1),
		draw(2),
		&cmds.PushMarker{Name: "pass"},
		&cmds.SetViewports{Viewports: []cmds.Viewport{{Width: 1, Height: 1, MaxDepth: 1}}},
		draw(3),
		&cmds.ResourceBarrier{Barriers: []cmds.Barrier{{Resource: rt, Before: 1, After: 2, Split: cmds.BeginOnly}}},
		draw(4),
		&cmds.ResourceBarrier{Barriers: []cmds.Barrier{{Resource: rt, Before: 1, After: 2, Split: cmds.EndOnly}}},
		&cmds.PopMarker{},
		draw(5),
	)
	l2 := r.list(draw(6), draw(7))
	r.submit(l1, l2)
	assert.For(ctx, "present").ThatError(r.c.Present(ctx, tid, r.queue, rt)).Succeeded()
	return r.finish(), rt
}

func load(ctx context.Context, trace *section.Memory, dev *sim.Device, cfg config.Config) *replay.Session {
	s, err := replay.Load(ctx, trace, dev, cfg)
	assert.For(ctx, "load").ThatError(err).Succeeded()
	return s
}

func names(dev *sim.Device) []string {
	out := []string{}
	for _, e := range dev.Executed() {
		out = append(out, cmds.Name(e.Cmd.Kind()))
	}
	return out
}

// draws returns the executed draws, marking those run by an ExecuteIndirect.
func draws(dev *sim.Device) []string {
	out := []string{}
	for _, e := range dev.Executed() {
		if _, ok := e.Cmd.(*cmds.Draw); ok {
			d := cmds.Describe(e.Cmd)
			if e.Indirect {
				d = "*" + d
			}
			out = append(out, d)
		}
	}
	return out
}

func TestLoad(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	s := load(ctx, trace, sim.New(allCaps), config.Default())
	defer s.Close(ctx)

	assert.For(ctx, "events").That(s.EventCount()).Equals(10)
	assert.For(ctx, "actions").That(s.ActionCount()).Equals(8)
	assert.For(ctx, "phase").That(s.Phase()).Equals(replay.Idle)
	assert.For(ctx, "capture id").That(s.CaptureID() != "").Equals(true)
	assert.For(ctx, "event ids").ThatSlice(action.EventIDs(s.ActionTree())).Equals(
		[]api.EventID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	top := []string{}
	for _, n := range s.ActionTree().Children {
		top = append(top, n.Name)
	}
	assert.For(ctx, "top level").ThatSlice(top).Equals([]string{
		"Draw(1, 1)", "Draw(2, 1)", "pass", "Draw(5, 1)", "Draw(6, 1)", "Draw(7, 1)", s.ActionTree().Children[6].Name,
	})
	pass := s.ActionTree().Children[2]
	assert.For(ctx, "pass end").That(pass.EndEventID).Equals(api.EventID(6))
	assert.For(ctx, "pass children").That(len(pass.Children)).Equals(2)
	assert.For(ctx, "list 2 actions").That(s.ActionTree().Children[4].ActionID).Equals(api.ActionID(6))
	present := s.ActionTree().Children[6]
	assert.For(ctx, "present").That(present.Flags).Equals(api.Present)
	assert.For(ctx, "present action").That(present.ActionID).Equals(api.ActionID(8))

	st, err := s.RenderState(5)
	assert.For(ctx, "state").ThatError(err).Succeeded()
	assert.For(ctx, "topology").That(st.Topology).Equals(gputypes.PrimitiveTopologyPointList)
	_, err = s.RenderState(11)
	assert.For(ctx, "no event").ThatError(err).Failed()
}

func TestPartialReplayStopsAtCut(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	assert.For(ctx, "replay").ThatError(s.Replay(ctx, 0, 5, replay.Full)).Succeeded()
	assert.For(ctx, "draws").ThatSlice(draws(dev)).Equals([]string{"Draw(1, 1)", "Draw(2, 1)", "Draw(3, 1)", "Draw(4, 1)"})
	assert.For(ctx, "calls").ThatSlice(names(dev)).Equals([]string{
		"SetTopology", "Draw", "Draw", "PushMarker", "SetViewports", "Draw", "ResourceBarrier", "Draw",
		"PopMarker", "ResourceBarrier",
	})
	last := dev.Executed()[9].Cmd.(*cmds.ResourceBarrier)
	assert.For(ctx, "split closed").That(last.Barriers[0].Split).Equals(cmds.EndOnly)

	live, released := dev.Lists()
	assert.For(ctx, "baked lists").That(live).Equals(2)
	assert.For(ctx, "partial released").That(released).Equals(1)
	assert.For(ctx, "phase").That(s.Phase()).Equals(replay.Idle)
}

func TestFullReplay(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	assert.For(ctx, "replay").ThatError(s.Replay(ctx, 0, 0, replay.Full)).Succeeded()
	assert.For(ctx, "draws").ThatSlice(draws(dev)).Equals([]string{
		"Draw(1, 1)", "Draw(2, 1)", "Draw(3, 1)", "Draw(4, 1)", "Draw(5, 1)", "Draw(6, 1)", "Draw(7, 1)",
	})
	calls := names(dev)
	assert.For(ctx, "present").That(calls[len(calls)-1]).Equals("Present")
	_, released := dev.Lists()
	assert.For(ctx, "baked lists reused").That(released).Equals(0)
}

func TestFullReplayEndingOnListUsesBaked(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	assert.For(ctx, "replay to list 1 end").ThatError(s.Replay(ctx, 0, 7, replay.Full)).Succeeded()
	assert.For(ctx, "draws").ThatSlice(draws(dev)).Equals([]string{
		"Draw(1, 1)", "Draw(2, 1)", "Draw(3, 1)", "Draw(4, 1)", "Draw(5, 1)",
	})
	dev.ClearExecuted()
	assert.For(ctx, "replay to list 2 end").ThatError(s.Replay(ctx, 0, 9, replay.Full)).Succeeded()
	assert.For(ctx, "all draws").ThatSlice(draws(dev)).IsLength(7)
	calls := names(dev)
	assert.For(ctx, "no present").That(calls[len(calls)-1]).Equals("Draw")

	live, released := dev.Lists()
	assert.For(ctx, "baked lists").That(live).Equals(2)
	assert.For(ctx, "nothing recorded again").That(released).Equals(0)
	assert.For(ctx, "topology").That(s.State().Topology).Equals(gputypes.PrimitiveTopology(0))
}

func TestUpToButExcludingLast(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	assert.For(ctx, "replay").ThatError(s.Replay(ctx, 0, 5, replay.UpToButExcludingLast)).Succeeded()
	assert.For(ctx, "draws").ThatSlice(draws(dev)).Equals([]string{"Draw(1, 1)", "Draw(2, 1)", "Draw(3, 1)"})

	dev.ClearExecuted()
	assert.For(ctx, "replay to pop").ThatError(s.Replay(ctx, 0, 6, replay.UpToButExcludingLast)).Succeeded()
	assert.For(ctx, "draws to pop").ThatSlice(draws(dev)).Equals([]string{"Draw(1, 1)", "Draw(2, 1)", "Draw(3, 1)", "Draw(4, 1)"})
	calls := names(dev)
	assert.For(ctx, "no synthetic calls").ThatSlice(calls[len(calls)-3:]).Equals([]string{"Draw", "ResourceBarrier", "PopMarker"})

	dev.ClearExecuted()
	assert.For(ctx, "replay to present").ThatError(s.Replay(ctx, 0, 10, replay.UpToButExcludingLast)).Succeeded()
	calls = names(dev)
	assert.For(ctx, "present excluded").That(calls[len(calls)-1]).Equals("Draw")
}

func TestOnlyLast(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	assert.For(ctx, "replay").ThatError(s.Replay(ctx, 0, 5, replay.OnlyLast)).Succeeded()
	assert.For(ctx, "calls").ThatSlice(names(dev)).Equals([]string{"SetTopology", "SetViewports", "Draw"})
	assert.For(ctx, "draws").ThatSlice(draws(dev)).Equals([]string{"Draw(4, 1)"})

	dev.ClearExecuted()
	assert.For(ctx, "replay list 2").ThatError(s.Replay(ctx, 0, 9, replay.OnlyLast)).Succeeded()
	assert.For(ctx, "list 2 draws").ThatSlice(draws(dev)).Equals([]string{"Draw(7, 1)"})

	dev.ClearExecuted()
	assert.For(ctx, "replay present").ThatError(s.Replay(ctx, 0, 10, replay.OnlyLast)).Succeeded()
	assert.For(ctx, "present only").ThatSlice(names(dev)).Equals([]string{"Present"})
}

// executedState rebuilds the render state of the last list the device ran.
func executedState(dev *sim.Device) *state.RenderState {
	st, list := state.New(), api.NoResource
	for _, e := range dev.Executed() {
		switch {
		case e.List == api.NoResource:
			if _, ok := e.Cmd.(*cmds.Present); ok {
				st, list = state.New(), api.NoResource
			}
			continue
		case e.List != list:
			st, list = state.New(), e.List
		}
		st.Apply(e.Cmd, nil)
	}
	return st
}

func TestOnlyLastMatchesFullState(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	for e := api.EventID(1); int(e) <= s.EventCount(); e++ {
		ctx := log.V{"event": e}.Bind(ctx)
		dev.ClearExecuted()
		assert.For(ctx, "full").ThatError(s.Replay(ctx, 0, e, replay.Full)).Succeeded()
		full, ran := s.State(), executedState(dev)
		assert.For(ctx, "full executed at %d", e).That(ran).DeepEquals(full)

		dev.ClearExecuted()
		assert.For(ctx, "only last").ThatError(s.Replay(ctx, 0, e, replay.OnlyLast)).Succeeded()
		assert.For(ctx, "state at %d", e).That(s.State()).DeepEquals(full)
		assert.For(ctx, "only last executed at %d", e).That(executedState(dev)).DeepEquals(ran)
	}
	dev.ClearExecuted()
	assert.For(ctx, "replay").ThatError(s.Replay(ctx, 0, 5, replay.OnlyLast)).Succeeded()
	assert.For(ctx, "topology").That(executedState(dev).Topology).Equals(gputypes.PrimitiveTopologyPointList)
	assert.For(ctx, "viewports").That(len(executedState(dev).Viewports)).Equals(1)
}

// indirectFrame captures Draw(100), an ExecuteIndirect of up to 10 draws of
// which the GPU ran 3, and Draw(200).
func indirectFrame(ctx context.Context) *section.Memory {
	r := newRecorder(ctx)
	desc := &cmds.CreateCommandSignature{ByteStride: 16, Args: []cmds.IndirectArg{{Kind: cmds.ArgDraw}}}
	sig := r.create(desc)
	layout, err := indirect.NewSignature(desc)
	assert.For(ctx, "signature").ThatError(err).Succeeded()
	data := []byte{}
	for i := uint32(1); i <= 10; i++ {
		data = indirect.Encode(data, layout, []cmds.Cmd{draw(i)})
	}
	args := r.create(&cmds.CreateBuffer{Size: uint64(len(data)), Usage: gputypes.BufferUsageIndirect})
	count := r.create(&cmds.CreateBuffer{Size: 4, Usage: gputypes.BufferUsageIndirect})
	r.fill(args, data)
	r.fill(count, []byte{3, 0, 0, 0})
	r.begin()
	l := r.list(
		draw(100),
		&cmds.ExecuteIndirect{Signature: sig, MaxCount: 10, Args: args, Count: count},
		draw(200),
	)
	r.submit(l)
	return r.finish()
}

func TestIndirectPruning(t *testing.T) {
	ctx := log.Testing(t)
	s := load(ctx, indirectFrame(ctx), sim.New(allCaps), config.Default())
	defer s.Close(ctx)

	assert.For(ctx, "events").That(s.EventCount()).Equals(6)
	assert.For(ctx, "actions").That(s.ActionCount()).Equals(5)
	assert.For(ctx, "event ids").ThatSlice(action.EventIDs(s.ActionTree())).Equals([]api.EventID{1, 2, 3, 4, 5, 6})
	group := s.ActionTree().Children[1]
	assert.For(ctx, "group").That(group.Name).Equals("ExecuteIndirect(<10>) = 3")
	assert.For(ctx, "sub-actions").That(len(group.Children)).Equals(3)
	assert.For(ctx, "last sub").That(group.Children[2].Name).Equals("Draw(3, 1)")
	after := s.ActionTree().Children[2]
	assert.For(ctx, "later event").That(after.EventID).Equals(api.EventID(6))
	assert.For(ctx, "later action").That(after.ActionID).Equals(api.ActionID(5))
}

func TestIndirectPartialReplay(t *testing.T) {
	ctx := log.Testing(t)
	dev := sim.New(allCaps)
	s := load(ctx, indirectFrame(ctx), dev, config.Default())
	defer s.Close(ctx)

	for _, test := range []struct {
		mode   replay.Mode
		end    api.EventID
		expect []string
	}{
		{replay.Full, 0, []string{"Draw(100, 1)", "*Draw(1, 1)", "*Draw(2, 1)", "*Draw(3, 1)", "Draw(200, 1)"}},
		{replay.Full, 4, []string{"Draw(100, 1)", "*Draw(1, 1)", "*Draw(2, 1)"}},
		{replay.UpToButExcludingLast, 4, []string{"Draw(100, 1)", "*Draw(1, 1)"}},
		{replay.UpToButExcludingLast, 3, []string{"Draw(100, 1)"}},
		{replay.OnlyLast, 4, []string{"Draw(2, 1)"}},
		{replay.Full, 2, []string{"Draw(100, 1)"}},
	} {
		ctx := log.V{"mode": test.mode, "end": test.end}.Bind(ctx)
		dev.ClearExecuted()
		assert.For(ctx, "replay").ThatError(s.Replay(ctx, 0, test.end, test.mode)).Succeeded()
		assert.For(ctx, "draws").ThatSlice(draws(dev)).Equals(test.expect)
	}

	dev.ClearExecuted()
	assert.For(ctx, "replay").ThatError(s.Replay(ctx, 0, 4, replay.Full)).Succeeded()
	for _, e := range dev.Executed() {
		if ei, ok := e.Cmd.(*cmds.ExecuteIndirect); ok {
			assert.For(ctx, "iterations").That(ei.MaxCount).Equals(uint32(2))
			assert.For(ctx, "no count buffer").That(ei.Count).Equals(api.NoResource)
		}
	}
}

func TestUnreplayable(t *testing.T) {
	ctx := log.Testing(t)
	trace := indirectFrame(ctx)
	_, err := replay.Load(ctx, trace, sim.New(0), config.Default())
	assert.For(ctx, "missing caps").That(api.KindOf(err)).Equals(api.Unreplayable)

	cfg := config.Default()
	cfg.Downgrades = api.Caps(gputypes.FeatureMultiDrawIndirectCount)
	_, err = replay.Load(ctx, trace, sim.New(allCaps), cfg)
	assert.For(ctx, "downgraded").That(api.KindOf(err)).Equals(api.Unreplayable)
}

func TestUnknownResourceSkipped(t *testing.T) {
	ctx := log.Testing(t)
	metrics.Reset()
	r := newRecorder(ctx)
	src := r.create(&cmds.CreateBuffer{Size: 4})
	r.begin()
	l := r.create(&cmds.CreateCommandList{Allocator: r.alloc})
	assert.For(ctx, "reset").ThatError(r.c.Reset(ctx, tid, l, r.alloc)).Succeeded()
	err := r.c.Record(ctx, tid, l, &cmds.CopyBuffer{Dst: 999, Src: src, Size: 4})
	assert.For(ctx, "unknown at capture").That(api.KindOf(err)).Equals(api.UnknownResource)
	assert.For(ctx, "draw").ThatError(r.c.Record(ctx, tid, l, draw(1))).Succeeded()
	_, err = r.c.Close(ctx, tid, l)
	assert.For(ctx, "close").ThatError(err).Succeeded()
	r.submit(l)

	dev := sim.New(allCaps)
	s := load(ctx, r.finish(), dev, config.Default())
	defer s.Close(ctx)
	assert.For(ctx, "warnings").That(len(s.Warnings())).Equals(1)
	assert.For(ctx, "skipped").That(testutil.ToFloat64(metrics.ChunksSkipped.WithLabelValues("unknown_resource"))).Equals(1.0)

	assert.For(ctx, "replay").ThatError(s.Replay(ctx, 0, 0, replay.Full)).Succeeded()
	assert.For(ctx, "calls").ThatSlice(names(dev)).Equals([]string{"Draw"})
}

func stream(ctx context.Context, l ...cmds.Cmd) *section.Memory {
	out := section.NewMemory()
	w, err := out.OpenSection(section.FrameCapture)
	assert.For(ctx, "section").ThatError(err).Succeeded()
	sw, err := chunk.NewStreamWriter(w, chunk.Version)
	assert.For(ctx, "stream").ThatError(err).Succeeded()
	ser := chunk.NewSerializer()
	for _, c := range l {
		ch, err := cmds.Encode(ser, c, chunk.Meta{})
		assert.For(ctx, "encode").ThatError(err).Succeeded()
		assert.For(ctx, "write").ThatError(sw.Write(ch)).Succeeded()
	}
	assert.For(ctx, "close").ThatError(w.Close()).Succeeded()
	return out
}

func TestLoadFailures(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name   string
		trace  *section.Memory
		expect api.ErrorKind
	}{
		{"unknown initial contents", stream(ctx,
			&cmds.DriverInit{APIVersion: 1},
			&cmds.InitialContents{Resource: 77, Data: []byte{1}},
			&cmds.CaptureBegin{},
			&cmds.CaptureEnd{},
		), api.UnknownResource},
		{"no driver init", stream(ctx, &cmds.CaptureBegin{}, &cmds.CaptureEnd{}), api.DataCorruption},
		{"no capture end", stream(ctx, &cmds.DriverInit{APIVersion: 1}, &cmds.CaptureBegin{}), api.DataCorruption},
		{"no section", section.NewMemory(), api.DataCorruption},
	} {
		_, err := replay.Load(ctx, test.trace, sim.New(0), config.Default())
		assert.For(ctx, "%s", test.name).That(api.KindOf(err)).Equals(test.expect)
	}
}

func TestCancelReleasesPartialList(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	ctx, cancel := task.WithCancel(ctx)
	dev.Reject = func(c cmds.Cmd) error {
		if d, ok := c.(*cmds.Draw); ok && d.VertexCount == 3 {
			cancel()
		}
		return nil
	}
	err := s.Replay(ctx, 0, 5, replay.Full)
	assert.For(ctx, "cancelled").That(api.KindOf(err)).Equals(api.Cancelled)
	live, released := dev.Lists()
	assert.For(ctx, "baked lists").That(live).Equals(2)
	assert.For(ctx, "partial released").That(released).Equals(1)
	assert.For(ctx, "nothing submitted").That(len(dev.Executed())).Equals(0)
}

func TestReplayFailureDiagnostics(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	dev.Reject = func(c cmds.Cmd) error {
		if d, ok := c.(*cmds.Draw); ok && d.VertexCount == 4 {
			return errors.New("bad draw")
		}
		return nil
	}
	err := s.Replay(ctx, 0, 5, replay.Full)
	assert.For(ctx, "rejected").That(api.KindOf(err)).Equals(api.APIReplayFailed)
	var e *api.Error
	assert.For(ctx, "typed").That(errors.As(err, &e)).Equals(true)
	assert.For(ctx, "diagnostics").ThatSlice(e.Diagnostics).Equals([]string{"Draw rejected: bad draw"})
	_, released := dev.Lists()
	assert.For(ctx, "partial released").That(released).Equals(1)

	assert.For(ctx, "not sticky").ThatError(s.Replay(ctx, 0, 2, replay.Full)).Succeeded()
}

func TestDeviceLostIsSticky(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	dev.Lose()
	err := s.Replay(ctx, 0, 0, replay.Full)
	assert.For(ctx, "lost").That(api.KindOf(err)).Equals(api.DeviceLost)
	err = s.Replay(ctx, 0, 2, replay.OnlyLast)
	assert.For(ctx, "still lost").That(api.KindOf(err)).Equals(api.DeviceLost)
}

func copyFrame(ctx context.Context) (*section.Memory, api.ResourceID, api.ResourceID) {
	r := newRecorder(ctx)
	src := r.create(&cmds.CreateBuffer{Size: 4, Usage: gputypes.BufferUsageCopySrc})
	dst := r.create(&cmds.CreateBuffer{Size: 4, Usage: gputypes.BufferUsageCopyDst})
	r.fill(src, []byte{1, 2, 3, 4})
	r.begin()
	r.submit(r.list(&cmds.CopyBuffer{Dst: dst, Src: src, Size: 4}))
	return r.finish(), src, dst
}

func TestOptimisationLevels(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		level    config.Optimisation
		expect   []byte
		released int
		usage    int
	}{
		{config.NoOptimisation, []byte{1, 2, 3, 4}, 2, 1},
		{config.Balanced, []byte{0, 0, 0, 0}, 0, 1},
		{config.Fastest, []byte{0, 0, 0, 0}, 0, 0},
	} {
		ctx := log.V{"level": test.level}.Bind(ctx)
		trace, src, dst := copyFrame(ctx)
		cfg := config.Default()
		cfg.Optimisation = test.level
		dev := sim.New(allCaps)
		s := load(ctx, trace, dev, cfg)

		assert.For(ctx, "first").ThatError(s.Replay(ctx, 0, 0, replay.Full)).Succeeded()
		liveSrc, _ := s.Registry().LiveOf(src)
		liveDst, _ := s.Registry().LiveOf(dst)
		data, _ := dev.Contents(ctx, liveDst)
		assert.For(ctx, "copied").ThatSlice(data).Equals([]byte{1, 2, 3, 4})

		dev.InitialContents(ctx, liveSrc, []byte{0, 0, 0, 0})
		assert.For(ctx, "second").ThatError(s.Replay(ctx, 0, 0, replay.Full)).Succeeded()
		data, _ = dev.Contents(ctx, liveDst)
		assert.For(ctx, "second copy").ThatSlice(data).Equals(test.expect)

		_, released := dev.Lists()
		assert.For(ctx, "lists recorded again").That(released).Equals(test.released)
		assert.For(ctx, "usage").That(len(s.Usage(dst))).Equals(test.usage)
		s.Close(ctx)
	}
}

func TestCloseAndRange(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())

	assert.For(ctx, "past end").That(api.KindOf(s.Replay(ctx, 0, 11, replay.Full))).Equals(api.DesignError)
	assert.For(ctx, "reversed").That(api.KindOf(s.Replay(ctx, 5, 3, replay.Full))).Equals(api.DesignError)

	assert.For(ctx, "close").ThatError(s.Close(ctx)).Succeeded()
	assert.For(ctx, "close twice").ThatError(s.Close(ctx)).Succeeded()
	live, _ := dev.Lists()
	assert.For(ctx, "lists released").That(live).Equals(0)
	assert.For(ctx, "phase").That(s.Phase()).Equals(replay.Closed)
	assert.For(ctx, "closed").That(api.KindOf(s.Replay(ctx, 0, 0, replay.Full))).Equals(api.DesignError)
}

func TestReplayFromStart(t *testing.T) {
	ctx := log.Testing(t)
	trace, _ := twoLists(ctx)
	dev := sim.New(allCaps)
	s := load(ctx, trace, dev, config.Default())
	defer s.Close(ctx)

	assert.For(ctx, "first part").ThatError(s.Replay(ctx, 0, 2, replay.Full)).Succeeded()
	dev.ClearExecuted()
	assert.For(ctx, "rest").ThatError(s.Replay(ctx, 3, 9, replay.Full)).Succeeded()
	assert.For(ctx, "draws").ThatSlice(draws(dev)).Equals([]string{
		"Draw(3, 1)", "Draw(4, 1)", "Draw(5, 1)", "Draw(6, 1)", "Draw(7, 1)",
	})
}
