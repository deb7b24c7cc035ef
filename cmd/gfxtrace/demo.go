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

package main

import (
	"context"

	"github.com/gogpu/gputypes"

	"github.com/gfxtrace/gfxtrace/core/data/section"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/capture"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/device/sim"
	"github.com/gfxtrace/gfxtrace/gfxtrace/indirect"
)

const demoThread = 1

// demo records the calls of a small frame, stopping at the first error.
type demo struct {
	ctx context.Context
	c   *capture.Context
	dev *sim.Device
	err error
}

func (d *demo) create(c cmds.Creator) api.ResourceID {
	if d.err != nil {
		return api.NoResource
	}
	id, err := d.c.Create(d.ctx, demoThread, c)
	d.err = err
	return id
}

func (d *demo) fill(id api.ResourceID, data []byte) {
	if d.err != nil {
		return
	}
	live, _ := d.c.Registry().LiveOf(id)
	d.err = d.dev.InitialContents(d.ctx, live, data)
}

func (d *demo) list(alloc api.ResourceID, calls ...cmds.ListCmd) api.ResourceID {
	id := d.create(&cmds.CreateCommandList{Allocator: alloc})
	if d.err != nil {
		return id
	}
	if d.err = d.c.Reset(d.ctx, demoThread, id, alloc); d.err != nil {
		return id
	}
	for _, c := range calls {
		if d.err = d.c.Record(d.ctx, demoThread, id, c); d.err != nil {
			return id
		}
	}
	_, d.err = d.c.Close(d.ctx, demoThread, id)
	return id
}

// writeDemo captures a frame with markers, a copy and an ExecuteIndirect on
// the simulated device and writes it to path.
func writeDemo(ctx context.Context, path string) error {
	dev := sim.New(simCaps)
	c := capture.New(dev, cfg)
	d := &demo{ctx: ctx, c: c, dev: dev}

	queue := d.create(&cmds.CreateQueue{})
	alloc := d.create(&cmds.CreateAllocator{})
	rt := d.create(&cmds.CreateTexture{Width: 4, Height: 4, Depth: 1, Mips: 1, Format: gputypes.TextureFormatRGBA8Unorm})
	src := d.create(&cmds.CreateBuffer{Size: 16, Usage: gputypes.BufferUsageCopySrc})
	dst := d.create(&cmds.CreateBuffer{Size: 16, Usage: gputypes.BufferUsageCopyDst})
	desc := &cmds.CreateCommandSignature{ByteStride: 16, Args: []cmds.IndirectArg{{Kind: cmds.ArgDraw}}}
	sig := d.create(desc)
	layout, err := indirect.NewSignature(desc)
	if err != nil {
		return err
	}
	args := []byte{}
	for i := uint32(1); i <= 4; i++ {
		args = indirect.Encode(args, layout, []cmds.Cmd{&cmds.Draw{VertexCount: 3 * i, InstanceCount: 1}})
	}
	argBuf := d.create(&cmds.CreateBuffer{Size: uint64(len(args)), Usage: gputypes.BufferUsageIndirect})
	count := d.create(&cmds.CreateBuffer{Size: 4, Usage: gputypes.BufferUsageIndirect})
	d.fill(src, []byte("gfxtrace demo!!!"))
	d.fill(argBuf, args)
	d.fill(count, []byte{2, 0, 0, 0})
	if d.err != nil {
		return d.err
	}

	if err := c.BeginFrame(ctx); err != nil {
		return err
	}
	scene := d.list(alloc,
		&cmds.SetRenderTargets{Targets: []api.ResourceID{rt}},
		&cmds.ClearRenderTarget{View: rt, Color: [4]float32{0, 0, 0, 1}},
		&cmds.PushMarker{Name: "Scene"},
		&cmds.SetTopology{Topology: gputypes.PrimitiveTopologyTriangleList},
		&cmds.SetViewports{Viewports: []cmds.Viewport{{Width: 4, Height: 4, MaxDepth: 1}}},
		&cmds.Draw{VertexCount: 3, InstanceCount: 1},
		&cmds.ExecuteIndirect{Signature: sig, MaxCount: 4, Args: argBuf, Count: count},
		&cmds.PopMarker{},
	)
	post := d.list(alloc,
		&cmds.SetMarker{Name: "Readback"},
		&cmds.CopyBuffer{Dst: dst, Src: src, Size: 16},
	)
	if d.err != nil {
		return d.err
	}
	if err := c.ExecuteCommandLists(ctx, demoThread, queue, []api.ResourceID{scene, post}); err != nil {
		return err
	}
	if err := c.Present(ctx, demoThread, queue, rt); err != nil {
		return err
	}

	out, err := section.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := c.Finish(ctx, out); err != nil {
		return log.Err(ctx, err, "Unable to write trace")
	}
	log.I(ctx, "Wrote capture %v", c.ID())
	return nil
}
