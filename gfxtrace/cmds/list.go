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
	"github.com/gogpu/gputypes"

	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
)

// ListReset begins recording into a command list. Each reset starts a new
// baked instance of the list.
type ListReset struct {
	listTarget
	Allocator api.ResourceID
	Baked     api.BakedID
}

func (*ListReset) Kind() chunk.Kind { return KindListReset }

func (c *ListReset) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Resource("Allocator", uint64(c.Allocator))
	w.Uint64("Baked", uint64(c.Baked))
}

func (c *ListReset) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Allocator = api.ResourceID(r.Resource("Allocator"))
	c.Baked = api.BakedID(r.Uint64("Baked"))
}

func (c *ListReset) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.Allocator, api.Read)
}

// ListClose ends recording into a command list.
type ListClose struct {
	listTarget
}

func (*ListClose) Kind() chunk.Kind         { return KindListClose }
func (c *ListClose) Encode(w *chunk.Writer) { c.encodeList(w) }
func (c *ListClose) Decode(r *chunk.Reader) { c.decodeList(r) }
func (c *ListClose) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// SetPipeline binds a pipeline.
type SetPipeline struct {
	listTarget
	Pipeline api.ResourceID
}

func (*SetPipeline) Kind() chunk.Kind { return KindSetPipeline }

func (c *SetPipeline) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Resource("Pipeline", uint64(c.Pipeline))
}

func (c *SetPipeline) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Pipeline = api.ResourceID(r.Resource("Pipeline"))
}

func (c *SetPipeline) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.Pipeline, api.Read)
}

// SetRootSignature binds the graphics or compute binding layout.
type SetRootSignature struct {
	listTarget
	Compute       bool
	RootSignature api.ResourceID
}

func (*SetRootSignature) Kind() chunk.Kind { return KindSetRootSignature }

func (c *SetRootSignature) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Bool("Compute", c.Compute)
	w.Resource("RootSignature", uint64(c.RootSignature))
}

func (c *SetRootSignature) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Compute = r.Bool("Compute")
	c.RootSignature = api.ResourceID(r.Resource("RootSignature"))
}

func (c *SetRootSignature) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.RootSignature, api.Read)
}

// SetRootConstants sets 32 bit constants in a root parameter slot.
type SetRootConstants struct {
	listTarget
	Compute bool
	Slot    uint32
	Values  []uint32
}

func (*SetRootConstants) Kind() chunk.Kind { return KindSetRootConstants }

func (c *SetRootConstants) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Bool("Compute", c.Compute)
	w.Uint32("Slot", c.Slot)
	w.Important().Uint32s("Values", c.Values)
}

func (c *SetRootConstants) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Compute = r.Bool("Compute")
	c.Slot = r.Uint32("Slot")
	checkSlot(r, c.Slot)
	c.Values = r.Uint32s("Values")
}

func (c *SetRootConstants) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// SetRootView binds a buffer view directly to a root parameter slot.
type SetRootView struct {
	listTarget
	Compute bool
	Slot    uint32
	View    ParamKind
	Buffer  api.ResourceID
	Offset  uint64
}

func (*SetRootView) Kind() chunk.Kind { return KindSetRootView }

func (c *SetRootView) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Bool("Compute", c.Compute)
	w.Uint32("Slot", c.Slot)
	w.Uint32("View", uint32(c.View))
	w.Resource("Buffer", uint64(c.Buffer))
	w.Uint64("Offset", c.Offset)
}

func (c *SetRootView) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Compute = r.Bool("Compute")
	c.Slot = r.Uint32("Slot")
	checkSlot(r, c.Slot)
	c.View = ParamKind(r.Uint32("View"))
	c.Buffer = api.ResourceID(r.Resource("Buffer"))
	c.Offset = r.Uint64("Offset")
}

func (c *SetRootView) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.Buffer, c.View.Usage().Access())
}

// SetRootTable binds a descriptor table to a root parameter slot.
type SetRootTable struct {
	listTarget
	Compute bool
	Slot    uint32
	Heap    api.ResourceID
	Index   uint32
}

func (*SetRootTable) Kind() chunk.Kind { return KindSetRootTable }

func (c *SetRootTable) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Bool("Compute", c.Compute)
	w.Uint32("Slot", c.Slot)
	w.Resource("Heap", uint64(c.Heap))
	w.Uint32("Index", c.Index)
}

func (c *SetRootTable) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Compute = r.Bool("Compute")
	c.Slot = r.Uint32("Slot")
	checkSlot(r, c.Slot)
	c.Heap = api.ResourceID(r.Resource("Heap"))
	c.Index = r.Uint32("Index")
}

func (c *SetRootTable) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.Heap, api.Read)
}

// SetDescriptorHeaps binds the descriptor heaps tables are read from.
type SetDescriptorHeaps struct {
	listTarget
	Heaps []api.ResourceID
}

func (*SetDescriptorHeaps) Kind() chunk.Kind { return KindSetDescriptorHeaps }

func (c *SetDescriptorHeaps) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Resources("Heaps", ids(c.Heaps))
}

func (c *SetDescriptorHeaps) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Heaps = resourceIDs(r.Resources("Heaps"))
}

func (c *SetDescriptorHeaps) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	for i := range c.Heaps {
		visit(&c.Heaps[i], api.Read)
	}
}

// VertexView is a vertex buffer binding.
type VertexView struct {
	Buffer api.ResourceID
	Offset uint64
	Size   uint32
	Stride uint32
}

// SetVertexBuffers binds vertex buffers to consecutive slots.
type SetVertexBuffers struct {
	listTarget
	Start uint32
	Views []VertexView
}

func (*SetVertexBuffers) Kind() chunk.Kind { return KindSetVertexBuffers }

func (c *SetVertexBuffers) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Uint32("Start", c.Start)
	w.StructArray("Views", len(c.Views), func(i int, w *chunk.Writer) {
		v := c.Views[i]
		w.Resource("Buffer", uint64(v.Buffer))
		w.Uint64("Offset", v.Offset)
		w.Uint32("Size", v.Size)
		w.Uint32("Stride", v.Stride)
	})
}

func (c *SetVertexBuffers) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Start = r.Uint32("Start")
	c.Views = []VertexView{}
	r.StructArray("Views", func(i int, r *chunk.Reader) {
		c.Views = append(c.Views, VertexView{
			Buffer: api.ResourceID(r.Resource("Buffer")),
			Offset: r.Uint64("Offset"),
			Size:   r.Uint32("Size"),
			Stride: r.Uint32("Stride"),
		})
	})
	if uint64(c.Start)+uint64(len(c.Views)) > MaxVertexBuffers {
		r.Failf("vertex buffer slots %d+%d out of range", c.Start, len(c.Views))
	}
}

func (c *SetVertexBuffers) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	for i := range c.Views {
		visit(&c.Views[i].Buffer, api.Read)
	}
}

// IndexView is an index buffer binding.
type IndexView struct {
	Buffer api.ResourceID
	Offset uint64
	Size   uint32
	Format gputypes.IndexFormat
}

// SetIndexBuffer binds the index buffer.
type SetIndexBuffer struct {
	listTarget
	View IndexView
}

func (*SetIndexBuffer) Kind() chunk.Kind { return KindSetIndexBuffer }

func (c *SetIndexBuffer) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Struct("View", func(w *chunk.Writer) {
		w.Resource("Buffer", uint64(c.View.Buffer))
		w.Uint64("Offset", c.View.Offset)
		w.Uint32("Size", c.View.Size)
		w.Uint32("Format", uint32(c.View.Format))
	})
}

func (c *SetIndexBuffer) Decode(r *chunk.Reader) {
	c.decodeList(r)
	r.Struct("View", func(r *chunk.Reader) {
		c.View.Buffer = api.ResourceID(r.Resource("Buffer"))
		c.View.Offset = r.Uint64("Offset")
		c.View.Size = r.Uint32("Size")
		c.View.Format = gputypes.IndexFormat(r.Uint32("Format"))
	})
}

func (c *SetIndexBuffer) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.View.Buffer, api.Read)
}

// SetTopology sets the primitive topology.
type SetTopology struct {
	listTarget
	Topology gputypes.PrimitiveTopology
}

func (*SetTopology) Kind() chunk.Kind { return KindSetTopology }

func (c *SetTopology) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Uint32("Topology", uint32(c.Topology))
}

func (c *SetTopology) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Topology = gputypes.PrimitiveTopology(r.Uint32("Topology"))
}

func (c *SetTopology) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// Viewport is a viewport rectangle and depth range.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// SetViewports sets the viewports.
type SetViewports struct {
	listTarget
	Viewports []Viewport
}

func (*SetViewports) Kind() chunk.Kind { return KindSetViewports }

func (c *SetViewports) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.StructArray("Viewports", len(c.Viewports), func(i int, w *chunk.Writer) {
		v := c.Viewports[i]
		w.Float32s("Rect", []float32{v.X, v.Y, v.Width, v.Height})
		w.Float32("MinDepth", v.MinDepth)
		w.Float32("MaxDepth", v.MaxDepth)
	})
}

func (c *SetViewports) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Viewports = []Viewport{}
	r.StructArray("Viewports", func(i int, r *chunk.Reader) {
		rect := [4]float32{}
		r.FixedFloat32s("Rect", rect[:])
		c.Viewports = append(c.Viewports, Viewport{
			X: rect[0], Y: rect[1], Width: rect[2], Height: rect[3],
			MinDepth: r.Float32("MinDepth"),
			MaxDepth: r.Float32("MaxDepth"),
		})
	})
}

func (c *SetViewports) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// Rect is a scissor rectangle.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// SetScissors sets the scissor rectangles.
type SetScissors struct {
	listTarget
	Rects []Rect
}

func (*SetScissors) Kind() chunk.Kind { return KindSetScissors }

func (c *SetScissors) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.StructArray("Rects", len(c.Rects), func(i int, w *chunk.Writer) {
		r := c.Rects[i]
		w.Int32("X", r.X)
		w.Int32("Y", r.Y)
		w.Uint32("Width", r.Width)
		w.Uint32("Height", r.Height)
	})
}

func (c *SetScissors) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Rects = []Rect{}
	r.StructArray("Rects", func(i int, r *chunk.Reader) {
		c.Rects = append(c.Rects, Rect{
			X:      r.Int32("X"),
			Y:      r.Int32("Y"),
			Width:  r.Uint32("Width"),
			Height: r.Uint32("Height"),
		})
	})
}

func (c *SetScissors) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// SetRenderTargets binds the color and depth targets.
type SetRenderTargets struct {
	listTarget
	Targets []api.ResourceID
	Depth   api.ResourceID
}

func (*SetRenderTargets) Kind() chunk.Kind { return KindSetRenderTargets }

func (c *SetRenderTargets) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Resources("Targets", ids(c.Targets))
	w.Resource("Depth", uint64(c.Depth))
}

func (c *SetRenderTargets) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Targets = resourceIDs(r.Resources("Targets"))
	c.Depth = api.ResourceID(r.Resource("Depth"))
}

func (c *SetRenderTargets) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	for i := range c.Targets {
		visit(&c.Targets[i], api.PartialWrite)
	}
	visit(&c.Depth, api.PartialWrite)
}

// Split says which half of a split barrier a barrier is.
type Split uint8

const (
	// SplitNone is an ordinary barrier.
	SplitNone Split = iota
	// BeginOnly starts a split barrier.
	BeginOnly
	// EndOnly completes a split barrier.
	EndOnly
)

// Barrier is a resource state transition.
type Barrier struct {
	Resource api.ResourceID
	Before   uint32
	After    uint32
	Split    Split
}

// ResourceBarrier transitions resources between states.
type ResourceBarrier struct {
	listTarget
	Barriers []Barrier
}

func (*ResourceBarrier) Kind() chunk.Kind { return KindResourceBarrier }

func (c *ResourceBarrier) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.StructArray("Barriers", len(c.Barriers), func(i int, w *chunk.Writer) {
		b := c.Barriers[i]
		w.Resource("Resource", uint64(b.Resource))
		w.Uint32("Before", b.Before)
		w.Uint32("After", b.After)
		w.Uint8("Split", uint8(b.Split))
	})
}

func (c *ResourceBarrier) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Barriers = []Barrier{}
	r.StructArray("Barriers", func(i int, r *chunk.Reader) {
		c.Barriers = append(c.Barriers, Barrier{
			Resource: api.ResourceID(r.Resource("Resource")),
			Before:   r.Uint32("Before"),
			After:    r.Uint32("After"),
			Split:    Split(r.Uint8("Split")),
		})
	})
}

func (c *ResourceBarrier) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	for i := range c.Barriers {
		visit(&c.Barriers[i].Resource, api.Read)
	}
}

// Draw draws non-indexed primitives.
type Draw struct {
	listTarget
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

func (*Draw) Kind() chunk.Kind { return KindDraw }

func (c *Draw) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Uint32("VertexCount", c.VertexCount)
	w.Uint32("InstanceCount", c.InstanceCount)
	w.Uint32("FirstVertex", c.FirstVertex)
	w.Uint32("FirstInstance", c.FirstInstance)
}

func (c *Draw) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.VertexCount = r.Uint32("VertexCount")
	c.InstanceCount = r.Uint32("InstanceCount")
	c.FirstVertex = r.Uint32("FirstVertex")
	c.FirstInstance = r.Uint32("FirstInstance")
}

func (c *Draw) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// DrawIndexed draws indexed primitives.
type DrawIndexed struct {
	listTarget
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

func (*DrawIndexed) Kind() chunk.Kind { return KindDrawIndexed }

func (c *DrawIndexed) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Uint32("IndexCount", c.IndexCount)
	w.Uint32("InstanceCount", c.InstanceCount)
	w.Uint32("FirstIndex", c.FirstIndex)
	w.Int32("BaseVertex", c.BaseVertex)
	w.Uint32("FirstInstance", c.FirstInstance)
}

func (c *DrawIndexed) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.IndexCount = r.Uint32("IndexCount")
	c.InstanceCount = r.Uint32("InstanceCount")
	c.FirstIndex = r.Uint32("FirstIndex")
	c.BaseVertex = r.Int32("BaseVertex")
	c.FirstInstance = r.Uint32("FirstInstance")
}

func (c *DrawIndexed) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// Dispatch runs a compute grid.
type Dispatch struct {
	listTarget
	X, Y, Z uint32
}

func (*Dispatch) Kind() chunk.Kind { return KindDispatch }

func (c *Dispatch) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Uint32("X", c.X)
	w.Uint32("Y", c.Y)
	w.Uint32("Z", c.Z)
}

func (c *Dispatch) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.X = r.Uint32("X")
	c.Y = r.Uint32("Y")
	c.Z = r.Uint32("Z")
}

func (c *Dispatch) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// CopyBuffer copies a byte range between buffers.
type CopyBuffer struct {
	listTarget
	Dst       api.ResourceID
	DstOffset uint64
	Src       api.ResourceID
	SrcOffset uint64
	Size      uint64
}

func (*CopyBuffer) Kind() chunk.Kind { return KindCopyBuffer }

func (c *CopyBuffer) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Resource("Dst", uint64(c.Dst))
	w.Uint64("DstOffset", c.DstOffset)
	w.Resource("Src", uint64(c.Src))
	w.Uint64("SrcOffset", c.SrcOffset)
	w.Uint64("Size", c.Size)
}

func (c *CopyBuffer) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Dst = api.ResourceID(r.Resource("Dst"))
	c.DstOffset = r.Uint64("DstOffset")
	c.Src = api.ResourceID(r.Resource("Src"))
	c.SrcOffset = r.Uint64("SrcOffset")
	c.Size = r.Uint64("Size")
}

func (c *CopyBuffer) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.Dst, api.PartialWrite)
	visit(&c.Src, api.Read)
}

// ClearRenderTarget fills a color target.
type ClearRenderTarget struct {
	listTarget
	View  api.ResourceID
	Color [4]float32
}

func (*ClearRenderTarget) Kind() chunk.Kind { return KindClearRenderTarget }

func (c *ClearRenderTarget) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Resource("View", uint64(c.View))
	w.Float32s("Color", c.Color[:])
}

func (c *ClearRenderTarget) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.View = api.ResourceID(r.Resource("View"))
	r.FixedFloat32s("Color", c.Color[:])
}

func (c *ClearRenderTarget) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.View, api.Write)
}

// ClearDepthStencil fills a depth target.
type ClearDepthStencil struct {
	listTarget
	View    api.ResourceID
	Depth   float32
	Stencil uint8
}

func (*ClearDepthStencil) Kind() chunk.Kind { return KindClearDepthStencil }

func (c *ClearDepthStencil) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Resource("View", uint64(c.View))
	w.Float32("Depth", c.Depth)
	w.Uint8("Stencil", c.Stencil)
}

func (c *ClearDepthStencil) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.View = api.ResourceID(r.Resource("View"))
	c.Depth = r.Float32("Depth")
	c.Stencil = r.Uint8("Stencil")
}

func (c *ClearDepthStencil) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.View, api.Write)
}

// ExecuteIndirect runs up to MaxCount iterations of the command signature,
// with the arguments read from a buffer on the device.
type ExecuteIndirect struct {
	listTarget
	Signature api.ResourceID
	MaxCount  uint32
	Args      api.ResourceID
	ArgOffset uint64
	// Count is the optional buffer holding the iteration count.
	Count       api.ResourceID
	CountOffset uint64
}

func (*ExecuteIndirect) Kind() chunk.Kind { return KindExecuteIndirect }

func (c *ExecuteIndirect) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.Resource("Signature", uint64(c.Signature))
	w.Uint32("MaxCount", c.MaxCount)
	w.Resource("Args", uint64(c.Args))
	w.Uint64("ArgOffset", c.ArgOffset)
	w.Resource("Count", uint64(c.Count))
	w.Uint64("CountOffset", c.CountOffset)
}

func (c *ExecuteIndirect) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Signature = api.ResourceID(r.Resource("Signature"))
	c.MaxCount = r.Uint32("MaxCount")
	if c.MaxCount > MaxIndirectCount {
		r.Failf("ExecuteIndirect MaxCount %d exceeds %d", c.MaxCount, MaxIndirectCount)
	}
	c.Args = api.ResourceID(r.Resource("Args"))
	c.ArgOffset = r.Uint64("ArgOffset")
	c.Count = api.ResourceID(r.Resource("Count"))
	c.CountOffset = r.Uint64("CountOffset")
}

func (c *ExecuteIndirect) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
	visit(&c.Signature, api.Read)
	visit(&c.Args, api.Read)
	visit(&c.Count, api.Read)
}

// PushMarker opens a named marker region.
type PushMarker struct {
	listTarget
	Name string
}

func (*PushMarker) Kind() chunk.Kind { return KindPushMarker }

func (c *PushMarker) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.String("Name", c.Name)
}

func (c *PushMarker) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Name = r.String("Name")
}

func (c *PushMarker) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// PopMarker closes the innermost marker region.
type PopMarker struct {
	listTarget
}

func (*PopMarker) Kind() chunk.Kind         { return KindPopMarker }
func (c *PopMarker) Encode(w *chunk.Writer) { c.encodeList(w) }
func (c *PopMarker) Decode(r *chunk.Reader) { c.decodeList(r) }
func (c *PopMarker) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

// SetMarker inserts a single named marker.
type SetMarker struct {
	listTarget
	Name string
}

func (*SetMarker) Kind() chunk.Kind { return KindSetMarker }

func (c *SetMarker) Encode(w *chunk.Writer) {
	c.encodeList(w)
	w.String("Name", c.Name)
}

func (c *SetMarker) Decode(r *chunk.Reader) {
	c.decodeList(r)
	c.Name = r.String("Name")
}

func (c *SetMarker) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.List, api.Read)
}

func ids(l []api.ResourceID) []uint64 {
	out := make([]uint64, len(l))
	for i, id := range l {
		out[i] = uint64(id)
	}
	return out
}

func resourceIDs(l []uint64) []api.ResourceID {
	out := make([]api.ResourceID, len(l))
	for i, id := range l {
		out[i] = api.ResourceID(id)
	}
	return out
}
