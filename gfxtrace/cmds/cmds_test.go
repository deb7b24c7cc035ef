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

package cmds_test

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gfxtrace/gfxtrace/core/assert"
	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
)

func maxConstants() []uint32 {
	out := make([]uint32, 64)
	for i := range out {
		out[i] = uint32(i * 7)
	}
	return out
}

var examples = []cmds.Cmd{
	&cmds.DriverInit{APIVersion: 12, Caps: api.Caps(gputypes.FeatureTimestampQuery), CaptureID: "c0ffee"},
	&cmds.InitialContents{Resource: 5, Data: []byte{1, 2, 3, 4}},
	&cmds.CaptureBegin{Frame: 300},
	&cmds.CaptureEnd{},
	&cmds.IndirectArguments{Baked: 9, Ordinal: 1, Count: 3, Data: []byte{0, 0, 0, 1}},

	&cmds.CreateBuffer{ID: 10, Size: 1 << 20, Usage: gputypes.BufferUsage(0x28)},
	&cmds.CreateTexture{ID: 11, Width: 640, Height: 480, Depth: 1, Mips: 10, Format: gputypes.TextureFormatRGBA8Unorm},
	&cmds.CreateRootSignature{ID: 12, Params: []cmds.ParamKind{cmds.ParamConstants, cmds.ParamTable}},
	&cmds.CreateRootSignature{ID: 13, Params: []cmds.ParamKind{}},
	&cmds.CreatePipeline{ID: 14, RootSignature: 12, Topology: gputypes.PrimitiveTopologyTriangleList},
	&cmds.CreateCommandSignature{ID: 15, RootSignature: 12, ByteStride: 20, Args: []cmds.IndirectArg{
		{Kind: cmds.ArgConstant, Slot: 0, Count: 1},
		{Kind: cmds.ArgDrawIndexed},
	}},
	&cmds.CreateCommandSignature{ID: 16, Args: []cmds.IndirectArg{}},
	&cmds.CreateQueue{ID: 17},
	&cmds.CreateAllocator{ID: 18},
	&cmds.CreateCommandList{ID: 19, Allocator: 18},
	&cmds.CreateFence{ID: 20, Initial: 4},
	&cmds.CreateDescriptorHeap{ID: 21, Count: 256},

	&cmds.ListReset{Allocator: 18, Baked: 2},
	&cmds.ListClose{},
	&cmds.SetPipeline{Pipeline: 14},
	&cmds.SetRootSignature{Compute: true, RootSignature: 12},
	&cmds.SetRootConstants{Slot: 0, Values: maxConstants()},
	&cmds.SetRootConstants{Slot: 1, Values: []uint32{}},
	&cmds.SetRootView{Slot: 2, View: cmds.ParamUnorderedAccess, Buffer: 10, Offset: 256},
	&cmds.SetRootTable{Slot: 1, Heap: 21, Index: 8},
	&cmds.SetDescriptorHeaps{Heaps: []api.ResourceID{21}},
	&cmds.SetVertexBuffers{Start: 1, Views: []cmds.VertexView{{Buffer: 10, Offset: 64, Size: 1024, Stride: 32}}},
	&cmds.SetVertexBuffers{Views: []cmds.VertexView{}},
	&cmds.SetIndexBuffer{View: cmds.IndexView{Buffer: 10, Size: 72, Format: gputypes.IndexFormatUint16}},
	&cmds.SetTopology{Topology: gputypes.PrimitiveTopologyTriangleList},
	&cmds.SetViewports{Viewports: []cmds.Viewport{{Width: 640, Height: 480, MaxDepth: 1}}},
	&cmds.SetScissors{Rects: []cmds.Rect{{X: -4, Y: 2, Width: 640, Height: 480}}},
	&cmds.SetRenderTargets{Targets: []api.ResourceID{11}, Depth: 22},
	&cmds.ResourceBarrier{Barriers: []cmds.Barrier{
		{Resource: 11, Before: 4, After: 8},
		{Resource: 10, Before: 1, After: 2, Split: cmds.BeginOnly},
	}},
	&cmds.Draw{VertexCount: 3, InstanceCount: 1},
	&cmds.DrawIndexed{IndexCount: 36, InstanceCount: 2, FirstIndex: 6, BaseVertex: -3},
	&cmds.Dispatch{X: 8, Y: 8, Z: 1},
	&cmds.CopyBuffer{Dst: 10, DstOffset: 16, Src: 23, Size: 64},
	&cmds.ClearRenderTarget{View: 11, Color: [4]float32{0.25, 0.5, 0.75, 1}},
	&cmds.ClearDepthStencil{View: 22, Depth: 1, Stencil: 0x80},
	&cmds.ExecuteIndirect{Signature: 15, MaxCount: 10, Args: 10, ArgOffset: 128, Count: 23, CountOffset: 4},
	&cmds.PushMarker{Name: "Shadows"},
	&cmds.PopMarker{},
	&cmds.SetMarker{Name: "Here"},

	&cmds.ExecuteCommandLists{Lists: []api.ResourceID{19, 24}},
	&cmds.Signal{Fence: 20, Value: 5},
	&cmds.Wait{Fence: 20, Value: 5},
	&cmds.Present{Image: 11},
}

func TestRoundTrip(t *testing.T) {
	ctx := log.Testing(t)
	s := chunk.NewSerializer()
	seen := map[chunk.Kind]bool{}
	for _, cmd := range examples {
		name := cmds.Name(cmd.Kind())
		switch cmd := cmd.(type) {
		case cmds.ListCmd:
			cmd.SetTarget(19)
		case cmds.QueueCmd:
			cmd.SetQueue(17)
		}
		c, err := cmds.Encode(s, cmd, chunk.Meta{Thread: 1})
		if !assert.For(ctx, "Encode %v", name).ThatError(err).Succeeded() {
			continue
		}
		got, err := cmds.Decode(c)
		if !assert.For(ctx, "Decode %v", name).ThatError(err).Succeeded() {
			continue
		}
		assert.For(ctx, "RoundTrip %v", name).That(got).DeepEquals(cmd)
		seen[cmd.Kind()] = true
	}
	for _, k := range cmds.Kinds() {
		assert.For(ctx, "Covered %v", cmds.Name(k)).That(seen[k]).Equals(true)
	}
}

func TestLightKeepsImportant(t *testing.T) {
	ctx := log.Testing(t)
	s := chunk.NewSerializer()
	s.Light = true
	in := &cmds.IndirectArguments{Baked: 1, Count: 2, Data: []byte{9, 9}}
	c, err := cmds.Encode(s, in, chunk.Meta{})
	assert.For(ctx, "Encode").ThatError(err).Succeeded()
	got, err := cmds.Decode(c)
	assert.For(ctx, "Decode").ThatError(err).Succeeded()
	assert.For(ctx, "Data").That(got).DeepEquals(in)
}

func TestUnknownKind(t *testing.T) {
	ctx := log.Testing(t)
	c, err := chunk.NewSerializer().Write(0x7777, chunk.Meta{}, func(*chunk.Writer) {})
	assert.For(ctx, "Write").ThatError(err).Succeeded()
	_, err = cmds.Decode(c)
	assert.For(ctx, "Decode").ThatError(err).HasCause(chunk.ErrCorrupt)
}

func TestWrongLayout(t *testing.T) {
	ctx := log.Testing(t)
	c, err := chunk.NewSerializer().Write(cmds.KindDraw, chunk.Meta{}, func(w *chunk.Writer) {
		w.Resource("List", 1)
		w.Uint32("VertexCount", 3)
	})
	assert.For(ctx, "Write").ThatError(err).Succeeded()
	_, err = cmds.Decode(c)
	assert.For(ctx, "Decode").ThatError(err).HasCause(chunk.ErrCorrupt)
}

func TestOutOfRangeSizes(t *testing.T) {
	ctx := log.Testing(t)
	s := chunk.NewSerializer()
	for _, cmd := range []cmds.Cmd{
		&cmds.ExecuteIndirect{Signature: 15, MaxCount: 1<<32 - 1},
		&cmds.ExecuteIndirect{Signature: 15, MaxCount: cmds.MaxIndirectCount + 1},
		&cmds.SetRootConstants{Slot: 1 << 30, Values: []uint32{1}},
		&cmds.SetRootView{Slot: cmds.MaxRootParams},
		&cmds.SetRootTable{Slot: 1 << 30},
		&cmds.SetVertexBuffers{Start: 1 << 30, Views: []cmds.VertexView{{Buffer: 10}}},
		&cmds.SetVertexBuffers{Start: cmds.MaxVertexBuffers - 1, Views: make([]cmds.VertexView, 2)},
		&cmds.CreateRootSignature{ID: 12, Params: make([]cmds.ParamKind, cmds.MaxRootParams+1)},
		&cmds.CreateCommandSignature{ID: 15, Args: []cmds.IndirectArg{{Kind: cmds.ArgConstant, Slot: 1 << 30, Count: 1}}},
	} {
		name := cmds.Name(cmd.Kind())
		c, err := cmds.Encode(s, cmd, chunk.Meta{})
		if !assert.For(ctx, "Encode %v", name).ThatError(err).Succeeded() {
			continue
		}
		_, err = cmds.Decode(c)
		assert.For(ctx, "Decode %v", name).ThatError(err).HasCause(chunk.ErrCorrupt)
		assert.For(ctx, "Decode %v", name).That(api.KindOf(err)).Equals(api.DataCorruption)
	}
	c, err := cmds.Encode(s, &cmds.ExecuteIndirect{Signature: 15, MaxCount: cmds.MaxIndirectCount}, chunk.Meta{})
	assert.For(ctx, "Encode limit").ThatError(err).Succeeded()
	_, err = cmds.Decode(c)
	assert.For(ctx, "Decode limit").ThatError(err).Succeeded()
}

func TestFlags(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		cmd   cmds.Cmd
		flags api.ActionFlags
		event bool
	}{
		{&cmds.Draw{}, api.Draw, true},
		{&cmds.DrawIndexed{}, api.Draw | api.Indexed, true},
		{&cmds.Dispatch{}, api.Dispatch, true},
		{&cmds.CopyBuffer{}, api.Copy, true},
		{&cmds.ClearDepthStencil{}, api.Clear, true},
		{&cmds.ExecuteIndirect{}, api.MultiAction | api.Indirect, true},
		{&cmds.PushMarker{}, api.PushMarker, true},
		{&cmds.PopMarker{}, 0, true},
		{&cmds.Present{}, api.Present, true},
		{&cmds.SetPipeline{}, 0, false},
		{&cmds.ResourceBarrier{}, 0, false},
	} {
		name := cmds.Name(test.cmd.Kind())
		assert.For(ctx, "%v flags", name).That(cmds.Flags(test.cmd)).Equals(test.flags)
		assert.For(ctx, "%v event", name).That(cmds.IsEvent(test.cmd)).Equals(test.event)
	}
	assert.For(ctx, "Describe").ThatString(cmds.Describe(&cmds.DrawIndexed{IndexCount: 36, InstanceCount: 1})).Equals("DrawIndexed(36, 1)")
	assert.For(ctx, "Describe marker").ThatString(cmds.Describe(&cmds.PushMarker{Name: "Shadows"})).Equals("Shadows")
}

func TestResourcesAccess(t *testing.T) {
	ctx := log.Testing(t)
	got := map[api.ResourceID]api.Access{}
	c := &cmds.CopyBuffer{Dst: 2, Src: 3}
	c.SetTarget(1)
	c.Resources(func(id *api.ResourceID, a api.Access) { got[*id] = a })
	assert.For(ctx, "list").That(got[1]).Equals(api.Read)
	assert.For(ctx, "dst").That(got[2]).Equals(api.PartialWrite)
	assert.For(ctx, "src").That(got[3]).Equals(api.Read)
}

func TestCategoryInterfaces(t *testing.T) {
	ctx := log.Testing(t)
	for _, cmd := range examples {
		name := cmds.Name(cmd.Kind())
		_, isList := cmd.(cmds.ListCmd)
		_, isQueue := cmd.(cmds.QueueCmd)
		cat := cmds.CategoryOf(cmd.Kind())
		assert.For(ctx, "%v is a list call", name).That(isList).Equals(cat == cmds.List)
		assert.For(ctx, "%v is a queue call", name).That(isQueue).Equals(cat == cmds.Queue)
	}
	cmd := cmds.Cmd(&cmds.ClearRenderTarget{View: 4})
	if l, ok := cmd.(cmds.ListCmd); assert.For(ctx, "ClearRenderTarget").That(ok).Equals(true) {
		l.SetTarget(9)
		assert.For(ctx, "list").That(l.Target()).Equals(api.ResourceID(9))
		assert.For(ctx, "view").That(cmd.(*cmds.ClearRenderTarget).View).Equals(api.ResourceID(4))
	}
}
