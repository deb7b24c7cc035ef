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

// Package state reconstructs the pipeline and binding state of a command
// list as its calls are replayed.
package state

import (
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
)

// Layouts holds the parameter kinds of every known root signature.
type Layouts map[api.ResourceID][]cmds.ParamKind

// Add records the layout created by c.
func (l Layouts) Add(c *cmds.CreateRootSignature) {
	l[c.ID] = slices.Clone(c.Params)
}

// RootParam is the value bound to one root parameter slot.
type RootParam struct {
	// Set is false until the slot is written after the last layout change.
	Set       bool
	Kind      cmds.ParamKind
	Constants []uint32
	Buffer    api.ResourceID
	Offset    uint64
	Heap      api.ResourceID
	Index     uint32
}

// Binding is the root signature and parameter slots of one pipeline kind.
type Binding struct {
	RootSignature api.ResourceID
	Params        []RootParam
}

// SetRootSignature binds the root signature id with n parameter slots.
// Binding a different signature clears every parameter slot, binding the
// current one leaves them untouched.
func (b *Binding) SetRootSignature(id api.ResourceID, n int) {
	if b.RootSignature == id {
		return
	}
	b.RootSignature = id
	b.Params = make([]RootParam, n)
}

// param returns the parameter at slot, or nil if slot is out of range.
func (b *Binding) param(slot uint32) *RootParam {
	if slot >= cmds.MaxRootParams {
		return nil
	}
	for int(slot) >= len(b.Params) {
		b.Params = append(b.Params, RootParam{})
	}
	return &b.Params[slot]
}

func (b Binding) clone() Binding {
	out := Binding{RootSignature: b.RootSignature}
	if b.Params != nil {
		out.Params = make([]RootParam, len(b.Params))
		for i, p := range b.Params {
			p.Constants = slices.Clone(p.Constants)
			out.Params[i] = p
		}
	}
	return out
}

// RenderState is the state of a command list at one point of its recording.
type RenderState struct {
	Pipeline      api.ResourceID
	Topology      gputypes.PrimitiveTopology
	Graphics      Binding
	Compute       Binding
	VBuffers      []cmds.VertexView
	IBuffer       cmds.IndexView
	Viewports     []cmds.Viewport
	Scissors      []cmds.Rect
	RenderTargets []api.ResourceID
	DepthTarget   api.ResourceID
	Heaps         []api.ResourceID
}

// New returns an empty RenderState.
func New() *RenderState { return &RenderState{} }

// Clone returns a deep copy of the state.
func (s *RenderState) Clone() *RenderState {
	if s == nil {
		return nil
	}
	out := *s
	out.Graphics = s.Graphics.clone()
	out.Compute = s.Compute.clone()
	out.VBuffers = slices.Clone(s.VBuffers)
	out.Viewports = slices.Clone(s.Viewports)
	out.Scissors = slices.Clone(s.Scissors)
	out.RenderTargets = slices.Clone(s.RenderTargets)
	out.Heaps = slices.Clone(s.Heaps)
	return &out
}

func (s *RenderState) binding(compute bool) *Binding {
	if compute {
		return &s.Compute
	}
	return &s.Graphics
}

// Apply updates the state with the effect of c. Calls that do not change
// state are ignored. It returns true if c is a state-setting call.
func (s *RenderState) Apply(c cmds.Cmd, layouts Layouts) bool {
	switch c := c.(type) {
	case *cmds.ListReset:
		*s = RenderState{}
	case *cmds.SetPipeline:
		s.Pipeline = c.Pipeline
	case *cmds.SetRootSignature:
		s.binding(c.Compute).SetRootSignature(c.RootSignature, len(layouts[c.RootSignature]))
	case *cmds.SetRootConstants:
		if p := s.binding(c.Compute).param(c.Slot); p != nil {
			*p = RootParam{Set: true, Kind: cmds.ParamConstants, Constants: slices.Clone(c.Values)}
		}
	case *cmds.SetRootView:
		if p := s.binding(c.Compute).param(c.Slot); p != nil {
			*p = RootParam{Set: true, Kind: c.View, Buffer: c.Buffer, Offset: c.Offset}
		}
	case *cmds.SetRootTable:
		if p := s.binding(c.Compute).param(c.Slot); p != nil {
			*p = RootParam{Set: true, Kind: cmds.ParamTable, Heap: c.Heap, Index: c.Index}
		}
	case *cmds.SetDescriptorHeaps:
		s.Heaps = slices.Clone(c.Heaps)
	case *cmds.SetVertexBuffers:
		if uint64(c.Start)+uint64(len(c.Views)) > cmds.MaxVertexBuffers {
			break
		}
		for int(c.Start)+len(c.Views) > len(s.VBuffers) {
			s.VBuffers = append(s.VBuffers, cmds.VertexView{})
		}
		copy(s.VBuffers[c.Start:], c.Views)
	case *cmds.SetIndexBuffer:
		s.IBuffer = c.View
	case *cmds.SetTopology:
		s.Topology = c.Topology
	case *cmds.SetViewports:
		s.Viewports = slices.Clone(c.Viewports)
	case *cmds.SetScissors:
		s.Scissors = slices.Clone(c.Rects)
	case *cmds.SetRenderTargets:
		s.RenderTargets = slices.Clone(c.Targets)
		s.DepthTarget = c.Depth
	default:
		return false
	}
	return true
}

// Usage returns the resources the action c touches given the state.
func (s *RenderState) Usage(c cmds.Cmd) []api.ResourceUsage {
	u := usage{}
	switch c := c.(type) {
	case *cmds.Draw:
		s.drawUsage(&u, false)
	case *cmds.DrawIndexed:
		s.drawUsage(&u, true)
	case *cmds.Dispatch:
		s.paramUsage(&u, &s.Compute)
	case *cmds.CopyBuffer:
		u.add(c.Src, api.UsageCopySource)
		u.add(c.Dst, api.UsageCopyDest)
	case *cmds.ClearRenderTarget:
		u.add(c.View, api.UsageClear)
	case *cmds.ClearDepthStencil:
		u.add(c.View, api.UsageClear)
	case *cmds.ExecuteIndirect:
		u.add(c.Args, api.UsageIndirectArgs)
		u.add(c.Count, api.UsageIndirectArgs)
	case *cmds.ResourceBarrier:
		for _, b := range c.Barriers {
			u.add(b.Resource, api.UsageBarrier)
		}
	case *cmds.Present:
		u.add(c.Image, api.UsagePresent)
	}
	return u.list
}

func (s *RenderState) drawUsage(u *usage, indexed bool) {
	for _, v := range s.VBuffers {
		u.add(v.Buffer, api.UsageVertexBuffer)
	}
	if indexed {
		u.add(s.IBuffer.Buffer, api.UsageIndexBuffer)
	}
	s.paramUsage(u, &s.Graphics)
	for _, t := range s.RenderTargets {
		u.add(t, api.UsageColorTarget)
	}
	u.add(s.DepthTarget, api.UsageDepthTarget)
}

func (s *RenderState) paramUsage(u *usage, b *Binding) {
	for _, p := range b.Params {
		if !p.Set {
			continue
		}
		switch p.Kind {
		case cmds.ParamConstants:
		case cmds.ParamTable:
			u.add(p.Heap, p.Kind.Usage())
		default:
			u.add(p.Buffer, p.Kind.Usage())
		}
	}
}

type usage struct {
	list []api.ResourceUsage
}

func (u *usage) add(id api.ResourceID, kind api.UsageKind) {
	if !id.IsValid() {
		return
	}
	for _, e := range u.list {
		if e.Resource == id && e.Usage == kind {
			return
		}
	}
	u.list = append(u.list, api.ResourceUsage{Resource: id, Usage: kind})
}
