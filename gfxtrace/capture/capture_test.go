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

package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gfxtrace/gfxtrace/core/assert"
	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/core/data/section"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/capture"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/config"
	"github.com/gfxtrace/gfxtrace/gfxtrace/device/sim"
	"github.com/gfxtrace/gfxtrace/gfxtrace/indirect"
	"github.com/gfxtrace/gfxtrace/gfxtrace/metrics"
)

const tid = 1

type fixture struct {
	dev   *sim.Device
	c     *capture.Context
	queue api.ResourceID
	alloc api.ResourceID
	list  api.ResourceID
}

func newFixture(ctx context.Context, cfg config.Config) *fixture {
	f := &fixture{dev: sim.New(0)}
	f.c = capture.New(f.dev, cfg)
	f.queue = f.create(ctx, &cmds.CreateQueue{})
	f.alloc = f.create(ctx, &cmds.CreateAllocator{})
	f.list = f.create(ctx, &cmds.CreateCommandList{Allocator: f.alloc})
	return f
}

func (f *fixture) create(ctx context.Context, c cmds.Creator) api.ResourceID {
	id, err := f.c.Create(ctx, tid, c)
	assert.For(ctx, "create %s", cmds.Name(c.Kind())).ThatError(err).Succeeded()
	return id
}

// fill sets the device contents of the captured resource id.
func (f *fixture) fill(ctx context.Context, id api.ResourceID, data []byte) {
	live, ok := f.c.Registry().LiveOf(id)
	assert.For(ctx, "live %v", id).That(ok).Equals(true)
	assert.For(ctx, "fill").ThatError(f.dev.InitialContents(ctx, live, data)).Succeeded()
}

func (f *fixture) submit(ctx context.Context, l ...cmds.ListCmd) {
	assert.For(ctx, "reset").ThatError(f.c.Reset(ctx, tid, f.list, f.alloc)).Succeeded()
	for _, c := range l {
		assert.For(ctx, "record %s", cmds.Name(c.Kind())).ThatError(f.c.Record(ctx, tid, f.list, c)).Succeeded()
	}
	_, err := f.c.Close(ctx, tid, f.list)
	assert.For(ctx, "close").ThatError(err).Succeeded()
	err = f.c.ExecuteCommandLists(ctx, tid, f.queue, []api.ResourceID{f.list})
	assert.For(ctx, "execute").ThatError(err).Succeeded()
}

func read(ctx context.Context, m *section.Memory) []cmds.Cmd {
	r, err := m.ReadSection(section.FrameCapture)
	assert.For(ctx, "section").ThatError(err).Succeeded()
	s, err := chunk.NewStreamReader(r)
	assert.For(ctx, "stream").ThatError(err).Succeeded()
	chunks, err := s.ReadAll(ctx)
	assert.For(ctx, "chunks").ThatError(err).Succeeded()
	out := []cmds.Cmd{}
	for _, ch := range chunks {
		c, err := cmds.Decode(ch)
		assert.For(ctx, "decode %v", ch).ThatError(err).Succeeded()
		out = append(out, c)
	}
	return out
}

func names(l []cmds.Cmd) []string {
	out := []string{}
	for _, c := range l {
		out = append(out, cmds.Name(c.Kind()))
	}
	return out
}

func TestFrameCapture(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx, config.Default())
	src := f.create(ctx, &cmds.CreateBuffer{Size: 8, Usage: gputypes.BufferUsageCopySrc})
	dst := f.create(ctx, &cmds.CreateBuffer{Size: 8, Usage: gputypes.BufferUsageCopyDst})
	f.create(ctx, &cmds.CreateBuffer{Size: 8})
	f.fill(ctx, src, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	assert.For(ctx, "begin").ThatError(f.c.BeginFrame(ctx)).Succeeded()
	f.submit(ctx, &cmds.CopyBuffer{Dst: dst, Src: src, Size: 4})
	out := section.NewMemory()
	assert.For(ctx, "finish").ThatError(f.c.Finish(ctx, out)).Succeeded()

	got := read(ctx, out)
	assert.For(ctx, "chunks").ThatSlice(names(got)).Equals([]string{
		"DriverInit",
		"CreateQueue", "CreateAllocator", "CreateCommandList", "CreateBuffer", "CreateBuffer",
		"InitialContents", "InitialContents",
		"CaptureBegin", "ListReset", "CopyBuffer", "ListClose", "ExecuteCommandLists",
		"CaptureEnd",
	})
	di := got[0].(*cmds.DriverInit)
	assert.For(ctx, "version").That(di.APIVersion).Equals(uint32(capture.APIVersion))
	assert.For(ctx, "capture id").That(di.CaptureID).Equals(f.c.ID().String())
	assert.For(ctx, "caps").That(di.Caps).Equals(api.Caps(0))

	contents := got[6].(*cmds.InitialContents)
	assert.For(ctx, "src contents").That(contents.Resource).Equals(src)
	assert.For(ctx, "src data").ThatSlice(contents.Data).Equals([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.For(ctx, "dst contents").That(got[7].(*cmds.InitialContents).Resource).Equals(dst)

	live, _ := f.c.Registry().LiveOf(dst)
	data, err := f.dev.Contents(ctx, live)
	assert.For(ctx, "forwarded").ThatError(err).Succeeded()
	assert.For(ctx, "forwarded").ThatSlice(data).Equals([]byte{1, 2, 3, 4, 0, 0, 0, 0})
}

func TestListsClosedBeforeFrame(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx, config.Default())
	rt := f.create(ctx, &cmds.CreateTexture{Width: 1, Height: 1, Format: gputypes.TextureFormatRGBA8Unorm})
	assert.For(ctx, "reset").ThatError(f.c.Reset(ctx, tid, f.list, f.alloc)).Succeeded()
	assert.For(ctx, "record").ThatError(f.c.Record(ctx, tid, f.list, &cmds.ClearRenderTarget{View: rt})).Succeeded()
	_, err := f.c.Close(ctx, tid, f.list)
	assert.For(ctx, "close").ThatError(err).Succeeded()

	assert.For(ctx, "begin").ThatError(f.c.BeginFrame(ctx)).Succeeded()
	err = f.c.ExecuteCommandLists(ctx, tid, f.queue, []api.ResourceID{f.list, f.list})
	assert.For(ctx, "execute").ThatError(err).Succeeded()
	out := section.NewMemory()
	assert.For(ctx, "finish").ThatError(f.c.Finish(ctx, out)).Succeeded()

	assert.For(ctx, "chunks").ThatSlice(names(read(ctx, out))).Equals([]string{
		"DriverInit",
		"CreateQueue", "CreateAllocator", "CreateCommandList", "CreateTexture",
		"CaptureBegin", "ListReset", "ClearRenderTarget", "ListClose", "ExecuteCommandLists",
		"CaptureEnd",
	})
}

func TestUnforwardedCallNotRecorded(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx, config.Default())
	rt := f.create(ctx, &cmds.CreateTexture{Width: 1, Height: 1, Format: gputypes.TextureFormatRGBA8Unorm})
	assert.For(ctx, "begin").ThatError(f.c.BeginFrame(ctx)).Succeeded()
	assert.For(ctx, "reset").ThatError(f.c.Reset(ctx, tid, f.list, f.alloc)).Succeeded()
	err := f.c.Record(ctx, tid, f.list, &cmds.CopyBuffer{Dst: 999, Src: 998, Size: 4})
	assert.For(ctx, "unknown").That(api.KindOf(err)).Equals(api.UnknownResource)
	assert.For(ctx, "record").ThatError(f.c.Record(ctx, tid, f.list, &cmds.ClearRenderTarget{View: rt})).Succeeded()
	baked, err := f.c.Close(ctx, tid, f.list)
	assert.For(ctx, "close").ThatError(err).Succeeded()
	assert.For(ctx, "events").That(baked.EventCount).Equals(1)
	err = f.c.ExecuteCommandLists(ctx, tid, f.queue, []api.ResourceID{f.list})
	assert.For(ctx, "execute").ThatError(err).Succeeded()
	out := section.NewMemory()
	assert.For(ctx, "finish").ThatError(f.c.Finish(ctx, out)).Succeeded()

	assert.For(ctx, "chunks").ThatSlice(names(read(ctx, out))).Equals([]string{
		"DriverInit",
		"CreateQueue", "CreateAllocator", "CreateCommandList", "CreateTexture",
		"CaptureBegin", "ListReset", "ClearRenderTarget", "ListClose", "ExecuteCommandLists",
		"CaptureEnd",
	})
}

func TestIndirectArgumentsStaged(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx, config.Default())
	desc := &cmds.CreateCommandSignature{ByteStride: 16, Args: []cmds.IndirectArg{{Kind: cmds.ArgDraw}}}
	sigID := f.create(ctx, desc)
	sig, err := indirect.NewSignature(desc)
	assert.For(ctx, "signature").ThatError(err).Succeeded()
	data := []byte{}
	for i := uint32(1); i <= 3; i++ {
		data = indirect.Encode(data, sig, []cmds.Cmd{&cmds.Draw{VertexCount: i, InstanceCount: 1}})
	}
	args := f.create(ctx, &cmds.CreateBuffer{Size: uint64(len(data)), Usage: gputypes.BufferUsageIndirect})
	count := f.create(ctx, &cmds.CreateBuffer{Size: 4, Usage: gputypes.BufferUsageIndirect})
	f.fill(ctx, args, data)
	f.fill(ctx, count, []byte{2, 0, 0, 0})

	assert.For(ctx, "begin").ThatError(f.c.BeginFrame(ctx)).Succeeded()
	assert.For(ctx, "reset").ThatError(f.c.Reset(ctx, tid, f.list, f.alloc)).Succeeded()
	ei := &cmds.ExecuteIndirect{Signature: sigID, MaxCount: 3, Args: args, Count: count}
	assert.For(ctx, "record").ThatError(f.c.Record(ctx, tid, f.list, ei)).Succeeded()
	baked, err := f.c.Close(ctx, tid, f.list)
	assert.For(ctx, "close").ThatError(err).Succeeded()
	assert.For(ctx, "groups").That(len(baked.Groups)).Equals(1)
	err = f.c.ExecuteCommandLists(ctx, tid, f.queue, []api.ResourceID{f.list})
	assert.For(ctx, "execute").ThatError(err).Succeeded()
	out := section.NewMemory()
	assert.For(ctx, "finish").ThatError(f.c.Finish(ctx, out)).Succeeded()

	got := read(ctx, out)
	caps := got[0].(*cmds.DriverInit).Caps
	assert.For(ctx, "mdi").That(caps.Contains(gputypes.FeatureMultiDrawIndirect)).Equals(true)
	assert.For(ctx, "mdi count").That(caps.Contains(gputypes.FeatureMultiDrawIndirectCount)).Equals(true)

	var staged *cmds.IndirectArguments
	for _, c := range got {
		if a, ok := c.(*cmds.IndirectArguments); ok {
			staged = a
		}
	}
	assert.For(ctx, "staged").That(staged != nil).Equals(true)
	assert.For(ctx, "baked").That(staged.Baked).Equals(baked.ID)
	assert.For(ctx, "ordinal").That(staged.Ordinal).Equals(uint32(0))
	assert.For(ctx, "count").That(staged.Count).Equals(uint32(2))
	assert.For(ctx, "data").ThatSlice(staged.Data).Equals(data)
	assert.For(ctx, "last").That(cmds.Name(got[len(got)-1].Kind())).Equals("CaptureEnd")
}

func TestResubmittedIndirectKeepsLast(t *testing.T) {
	ctx := log.Testing(t)
	metrics.Reset()
	f := newFixture(ctx, config.Default())
	desc := &cmds.CreateCommandSignature{ByteStride: 16, Args: []cmds.IndirectArg{{Kind: cmds.ArgDraw}}}
	sigID := f.create(ctx, desc)
	sig, err := indirect.NewSignature(desc)
	assert.For(ctx, "signature").ThatError(err).Succeeded()
	data := indirect.Encode(nil, sig, []cmds.Cmd{
		&cmds.Draw{VertexCount: 1, InstanceCount: 1},
		&cmds.Draw{VertexCount: 2, InstanceCount: 1},
	})
	args := f.create(ctx, &cmds.CreateBuffer{Size: uint64(len(data)), Usage: gputypes.BufferUsageIndirect})
	count := f.create(ctx, &cmds.CreateBuffer{Size: 4, Usage: gputypes.BufferUsageIndirect})
	f.fill(ctx, args, data)
	f.fill(ctx, count, []byte{2, 0, 0, 0})

	assert.For(ctx, "begin").ThatError(f.c.BeginFrame(ctx)).Succeeded()
	assert.For(ctx, "reset").ThatError(f.c.Reset(ctx, tid, f.list, f.alloc)).Succeeded()
	ei := &cmds.ExecuteIndirect{Signature: sigID, MaxCount: 2, Args: args, Count: count}
	assert.For(ctx, "record").ThatError(f.c.Record(ctx, tid, f.list, ei)).Succeeded()
	_, err = f.c.Close(ctx, tid, f.list)
	assert.For(ctx, "close").ThatError(err).Succeeded()
	lists := []api.ResourceID{f.list}
	assert.For(ctx, "first").ThatError(f.c.ExecuteCommandLists(ctx, tid, f.queue, lists)).Succeeded()
	assert.For(ctx, "same").ThatError(f.c.ExecuteCommandLists(ctx, tid, f.queue, lists)).Succeeded()
	replaced := metrics.CaptureWarnings.WithLabelValues("indirect_replaced")
	assert.For(ctx, "same arguments").That(testutil.ToFloat64(replaced)).Equals(0.0)

	f.fill(ctx, count, []byte{1, 0, 0, 0})
	assert.For(ctx, "changed").ThatError(f.c.ExecuteCommandLists(ctx, tid, f.queue, lists)).Succeeded()
	assert.For(ctx, "changed arguments").That(testutil.ToFloat64(replaced)).Equals(1.0)
	out := section.NewMemory()
	assert.For(ctx, "finish").ThatError(f.c.Finish(ctx, out)).Succeeded()

	staged := []*cmds.IndirectArguments{}
	for _, c := range read(ctx, out) {
		if a, ok := c.(*cmds.IndirectArguments); ok {
			staged = append(staged, a)
		}
	}
	assert.For(ctx, "one staged").ThatSlice(staged).IsLength(1)
	assert.For(ctx, "last count").That(staged[0].Count).Equals(uint32(1))
}

func TestSingleWriter(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx, config.Default())
	assert.For(ctx, "reset").ThatError(f.c.Reset(ctx, tid, f.list, f.alloc)).Succeeded()
	err := f.c.Record(ctx, tid+1, f.list, &cmds.Draw{VertexCount: 3, InstanceCount: 1})
	assert.For(ctx, "other thread").That(api.KindOf(err)).Equals(api.DesignError)
	_, err = f.c.Close(ctx, tid+1, f.list)
	assert.For(ctx, "other thread close").That(api.KindOf(err)).Equals(api.DesignError)

	_, err = f.c.Close(ctx, tid, f.list)
	assert.For(ctx, "owner close").ThatError(err).Succeeded()
	err = f.c.Record(ctx, tid, f.list, &cmds.Draw{VertexCount: 3, InstanceCount: 1})
	assert.For(ctx, "closed").That(api.KindOf(err)).Equals(api.DesignError)
}

func TestThreadSerializersAreReused(t *testing.T) {
	ctx := log.Testing(t)
	cfg := config.Default()
	cfg.StorageLight = true
	c := capture.New(sim.New(0), cfg)
	s := c.Thread(3)
	assert.For(ctx, "reused").That(c.Thread(3) == s).Equals(true)
	assert.For(ctx, "per thread").That(c.Thread(4) == s).Equals(false)
	assert.For(ctx, "light").That(s.Light).Equals(true)
}

func TestReleaseDeferredDuringFrame(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx, config.Default())
	buf := f.create(ctx, &cmds.CreateBuffer{Size: 4})
	assert.For(ctx, "begin").ThatError(f.c.BeginFrame(ctx)).Succeeded()
	assert.For(ctx, "begin twice").That(api.KindOf(f.c.BeginFrame(ctx))).Equals(api.DesignError)

	f.c.Release(ctx, buf)
	_, ok := f.c.Registry().LiveOf(buf)
	assert.For(ctx, "kept during frame").That(ok).Equals(true)
	assert.For(ctx, "finish").ThatError(f.c.Finish(ctx, section.NewMemory())).Succeeded()
	_, ok = f.c.Registry().LiveOf(buf)
	assert.For(ctx, "released after frame").That(ok).Equals(false)

	f.c.Release(ctx, f.alloc)
	_, ok = f.c.Registry().LiveOf(f.alloc)
	assert.For(ctx, "released").That(ok).Equals(false)
}

func TestFinishWaitsForOpenLists(t *testing.T) {
	ctx := log.Testing(t)
	cfg := config.Default()
	cfg.FenceTimeout = 20 * time.Millisecond
	f := newFixture(ctx, cfg)
	assert.For(ctx, "finish without frame").That(api.KindOf(f.c.Finish(ctx, section.NewMemory()))).Equals(api.DesignError)

	assert.For(ctx, "begin").ThatError(f.c.BeginFrame(ctx)).Succeeded()
	assert.For(ctx, "reset").ThatError(f.c.Reset(ctx, tid, f.list, f.alloc)).Succeeded()
	err := f.c.Finish(ctx, section.NewMemory())
	assert.For(ctx, "open list").That(api.KindOf(err)).Equals(api.DesignError)

	done := make(chan error)
	go func() { done <- f.c.Finish(ctx, section.NewMemory()) }()
	_, err = f.c.Close(ctx, tid, f.list)
	assert.For(ctx, "close").ThatError(err).Succeeded()
	assert.For(ctx, "finish").ThatError(<-done).Succeeded()
}

func TestUnclosedListCannotBeExecuted(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx, config.Default())
	err := f.c.ExecuteCommandLists(ctx, tid, f.queue, []api.ResourceID{f.list})
	assert.For(ctx, "never closed").That(api.KindOf(err)).Equals(api.APIReplayFailed)
}
