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

// ParamKind is the type of a root signature parameter slot.
type ParamKind uint32

const (
	ParamConstants ParamKind = iota
	ParamConstantBuffer
	ParamShaderResource
	ParamUnorderedAccess
	ParamTable
)

func (k ParamKind) String() string {
	switch k {
	case ParamConstants:
		return "Constants"
	case ParamConstantBuffer:
		return "ConstantBuffer"
	case ParamShaderResource:
		return "ShaderResource"
	case ParamUnorderedAccess:
		return "UnorderedAccess"
	case ParamTable:
		return "Table"
	default:
		return "Unknown"
	}
}

// Usage returns how a view bound to a slot of this kind is used.
func (k ParamKind) Usage() api.UsageKind {
	switch k {
	case ParamShaderResource, ParamTable:
		return api.UsageShaderResource
	case ParamUnorderedAccess:
		return api.UsageUnorderedAccess
	default:
		return api.UsageConstants
	}
}

// ArgKind is the type of one argument of a command signature.
type ArgKind uint32

const (
	ArgDraw ArgKind = iota
	ArgDrawIndexed
	ArgDispatch
	ArgVertexBuffer
	ArgIndexBuffer
	ArgConstant
	ArgConstantBuffer
	ArgShaderResource
	ArgUnorderedAccess
)

var argNames = [...]string{
	"Draw", "DrawIndexed", "Dispatch", "VertexBuffer", "IndexBuffer",
	"Constant", "ConstantBuffer", "ShaderResource", "UnorderedAccess",
}

func (k ArgKind) String() string {
	if int(k) < len(argNames) {
		return argNames[k]
	}
	return "Unknown"
}

// IsAction returns true if the argument performs work rather than setting
// state.
func (k ArgKind) IsAction() bool { return k <= ArgDispatch }

// IndirectArg is one argument of a command signature.
type IndirectArg struct {
	Kind ArgKind
	// Slot is the vertex buffer slot or root parameter index the argument
	// binds, for state-setting arguments.
	Slot uint32
	// Count is the number of 32 bit values of an ArgConstant argument.
	Count uint32
}

// CreateBuffer creates a buffer.
type CreateBuffer struct {
	ID    api.ResourceID
	Size  uint64
	Usage gputypes.BufferUsage
}

func (*CreateBuffer) Kind() chunk.Kind               { return KindCreateBuffer }
func (c *CreateBuffer) Created() api.ResourceID      { return c.ID }
func (c *CreateBuffer) SetCreated(id api.ResourceID) { c.ID = id }

func (c *CreateBuffer) Encode(w *chunk.Writer) {
	w.Resource("ID", uint64(c.ID))
	w.Uint64("Size", c.Size)
	w.Uint64("Usage", uint64(c.Usage))
}

func (c *CreateBuffer) Decode(r *chunk.Reader) {
	c.ID = api.ResourceID(r.Resource("ID"))
	c.Size = r.Uint64("Size")
	c.Usage = gputypes.BufferUsage(r.Uint64("Usage"))
}

func (c *CreateBuffer) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
}

// CreateTexture creates a texture.
type CreateTexture struct {
	ID     api.ResourceID
	Width  uint32
	Height uint32
	Depth  uint32
	Mips   uint32
	Format gputypes.TextureFormat
}

func (*CreateTexture) Kind() chunk.Kind               { return KindCreateTexture }
func (c *CreateTexture) Created() api.ResourceID      { return c.ID }
func (c *CreateTexture) SetCreated(id api.ResourceID) { c.ID = id }

func (c *CreateTexture) Encode(w *chunk.Writer) {
	w.Resource("ID", uint64(c.ID))
	w.Uint32("Width", c.Width)
	w.Uint32("Height", c.Height)
	w.Uint32("Depth", c.Depth)
	w.Uint32("Mips", c.Mips)
	w.Uint32("Format", uint32(c.Format))
}

func (c *CreateTexture) Decode(r *chunk.Reader) {
	c.ID = api.ResourceID(r.Resource("ID"))
	c.Width = r.Uint32("Width")
	c.Height = r.Uint32("Height")
	c.Depth = r.Uint32("Depth")
	c.Mips = r.Uint32("Mips")
	c.Format = gputypes.TextureFormat(r.Uint32("Format"))
}

func (c *CreateTexture) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
}

// CreateRootSignature creates a binding layout with one slot per parameter.
type CreateRootSignature struct {
	ID     api.ResourceID
	Params []ParamKind
}

func (*CreateRootSignature) Kind() chunk.Kind               { return KindCreateRootSignature }
func (c *CreateRootSignature) Created() api.ResourceID      { return c.ID }
func (c *CreateRootSignature) SetCreated(id api.ResourceID) { c.ID = id }

func (c *CreateRootSignature) Encode(w *chunk.Writer) {
	w.Resource("ID", uint64(c.ID))
	params := make([]uint32, len(c.Params))
	for i, p := range c.Params {
		params[i] = uint32(p)
	}
	w.Important().Uint32s("Params", params)
}

func (c *CreateRootSignature) Decode(r *chunk.Reader) {
	c.ID = api.ResourceID(r.Resource("ID"))
	params := r.Uint32s("Params")
	if len(params) > MaxRootParams {
		r.Failf("root signature has %d parameters", len(params))
		return
	}
	c.Params = make([]ParamKind, len(params))
	for i, p := range params {
		c.Params[i] = ParamKind(p)
	}
}

func (c *CreateRootSignature) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
}

// CreatePipeline creates a graphics or compute pipeline.
type CreatePipeline struct {
	ID            api.ResourceID
	RootSignature api.ResourceID
	Compute       bool
	Topology      gputypes.PrimitiveTopology
}

func (*CreatePipeline) Kind() chunk.Kind               { return KindCreatePipeline }
func (c *CreatePipeline) Created() api.ResourceID      { return c.ID }
func (c *CreatePipeline) SetCreated(id api.ResourceID) { c.ID = id }

func (c *CreatePipeline) Encode(w *chunk.Writer) {
	w.Resource("ID", uint64(c.ID))
	w.Resource("RootSignature", uint64(c.RootSignature))
	w.Bool("Compute", c.Compute)
	w.Uint32("Topology", uint32(c.Topology))
}

func (c *CreatePipeline) Decode(r *chunk.Reader) {
	c.ID = api.ResourceID(r.Resource("ID"))
	c.RootSignature = api.ResourceID(r.Resource("RootSignature"))
	c.Compute = r.Bool("Compute")
	c.Topology = gputypes.PrimitiveTopology(r.Uint32("Topology"))
}

func (c *CreatePipeline) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
	visit(&c.RootSignature, api.Read)
}

// CreateCommandSignature creates the argument layout of an ExecuteIndirect.
type CreateCommandSignature struct {
	ID            api.ResourceID
	RootSignature api.ResourceID
	ByteStride    uint32
	Args          []IndirectArg
}

func (*CreateCommandSignature) Kind() chunk.Kind               { return KindCreateCommandSignature }
func (c *CreateCommandSignature) Created() api.ResourceID      { return c.ID }
func (c *CreateCommandSignature) SetCreated(id api.ResourceID) { c.ID = id }

func (c *CreateCommandSignature) Encode(w *chunk.Writer) {
	w.Resource("ID", uint64(c.ID))
	w.Resource("RootSignature", uint64(c.RootSignature))
	w.Uint32("ByteStride", c.ByteStride)
	w.StructArray("Args", len(c.Args), func(i int, w *chunk.Writer) {
		w.Uint32("Kind", uint32(c.Args[i].Kind))
		w.Uint32("Slot", c.Args[i].Slot)
		w.Uint32("Count", c.Args[i].Count)
	})
}

func (c *CreateCommandSignature) Decode(r *chunk.Reader) {
	c.ID = api.ResourceID(r.Resource("ID"))
	c.RootSignature = api.ResourceID(r.Resource("RootSignature"))
	c.ByteStride = r.Uint32("ByteStride")
	c.Args = []IndirectArg{}
	r.StructArray("Args", func(i int, r *chunk.Reader) {
		c.Args = append(c.Args, IndirectArg{
			Kind:  ArgKind(r.Uint32("Kind")),
			Slot:  r.Uint32("Slot"),
			Count: r.Uint32("Count"),
		})
	})
	if len(c.Args) > MaxIndirectArgs {
		r.Failf("command signature has %d arguments", len(c.Args))
	}
	for _, a := range c.Args {
		checkSlot(r, a.Slot)
	}
}

func (c *CreateCommandSignature) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
	visit(&c.RootSignature, api.Read)
}

// CreateQueue creates a command queue.
type CreateQueue struct {
	ID api.ResourceID
}

func (*CreateQueue) Kind() chunk.Kind               { return KindCreateQueue }
func (c *CreateQueue) Created() api.ResourceID      { return c.ID }
func (c *CreateQueue) SetCreated(id api.ResourceID) { c.ID = id }
func (c *CreateQueue) Encode(w *chunk.Writer)       { w.Resource("ID", uint64(c.ID)) }
func (c *CreateQueue) Decode(r *chunk.Reader)       { c.ID = api.ResourceID(r.Resource("ID")) }
func (c *CreateQueue) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
}

// CreateAllocator creates a command allocator, the storage behind command
// lists.
type CreateAllocator struct {
	ID api.ResourceID
}

func (*CreateAllocator) Kind() chunk.Kind               { return KindCreateAllocator }
func (c *CreateAllocator) Created() api.ResourceID      { return c.ID }
func (c *CreateAllocator) SetCreated(id api.ResourceID) { c.ID = id }
func (c *CreateAllocator) Encode(w *chunk.Writer)       { w.Resource("ID", uint64(c.ID)) }
func (c *CreateAllocator) Decode(r *chunk.Reader)       { c.ID = api.ResourceID(r.Resource("ID")) }
func (c *CreateAllocator) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
}

// CreateCommandList creates a command list backed by an allocator.
type CreateCommandList struct {
	ID        api.ResourceID
	Allocator api.ResourceID
}

func (*CreateCommandList) Kind() chunk.Kind               { return KindCreateCommandList }
func (c *CreateCommandList) Created() api.ResourceID      { return c.ID }
func (c *CreateCommandList) SetCreated(id api.ResourceID) { c.ID = id }

func (c *CreateCommandList) Encode(w *chunk.Writer) {
	w.Resource("ID", uint64(c.ID))
	w.Resource("Allocator", uint64(c.Allocator))
}

func (c *CreateCommandList) Decode(r *chunk.Reader) {
	c.ID = api.ResourceID(r.Resource("ID"))
	c.Allocator = api.ResourceID(r.Resource("Allocator"))
}

func (c *CreateCommandList) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
	visit(&c.Allocator, api.Read)
}

// CreateFence creates a fence with an initial value.
type CreateFence struct {
	ID      api.ResourceID
	Initial uint64
}

func (*CreateFence) Kind() chunk.Kind               { return KindCreateFence }
func (c *CreateFence) Created() api.ResourceID      { return c.ID }
func (c *CreateFence) SetCreated(id api.ResourceID) { c.ID = id }

func (c *CreateFence) Encode(w *chunk.Writer) {
	w.Resource("ID", uint64(c.ID))
	w.Uint64("Initial", c.Initial)
}

func (c *CreateFence) Decode(r *chunk.Reader) {
	c.ID = api.ResourceID(r.Resource("ID"))
	c.Initial = r.Uint64("Initial")
}

func (c *CreateFence) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
}

// CreateDescriptorHeap creates a descriptor heap.
type CreateDescriptorHeap struct {
	ID    api.ResourceID
	Count uint32
}

func (*CreateDescriptorHeap) Kind() chunk.Kind               { return KindCreateDescriptorHeap }
func (c *CreateDescriptorHeap) Created() api.ResourceID      { return c.ID }
func (c *CreateDescriptorHeap) SetCreated(id api.ResourceID) { c.ID = id }

func (c *CreateDescriptorHeap) Encode(w *chunk.Writer) {
	w.Resource("ID", uint64(c.ID))
	w.Uint32("Count", c.Count)
}

func (c *CreateDescriptorHeap) Decode(r *chunk.Reader) {
	c.ID = api.ResourceID(r.Resource("ID"))
	c.Count = r.Uint32("Count")
}

func (c *CreateDescriptorHeap) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.ID, api.NoAccess)
}
