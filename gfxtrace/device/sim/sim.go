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

// Package sim is a software device. It keeps buffer and texture contents in
// memory, executes copies, clears and indirect argument decoding, and logs
// every call it executes so tests can check what was replayed.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/device"
	"github.com/gfxtrace/gfxtrace/gfxtrace/indirect"
)

// firstID is the first identifier the device hands out, so that live
// identifiers are easy to tell apart from captured ones.
const firstID = api.ResourceID(0x10000)

// Executed is one call the device executed.
type Executed struct {
	Queue api.ResourceID
	List  api.ResourceID
	Cmd   cmds.Cmd
	// Indirect is true for calls generated by an ExecuteIndirect.
	Indirect bool
}

type list struct {
	allocator api.ResourceID
	open      bool
	cmds      []cmds.ListCmd
}

type hung struct{}

func (hung) Signaled() <-chan struct{} { return nil }

// Device is a simulated device. It is safe for concurrent use.
type Device struct {
	// Reject is called for every call recorded into a list. A non-nil
	// error rejects the call.
	Reject func(cmds.Cmd) error
	// MemoryLimit is the total size of buffers and textures the device can
	// hold. Zero means no limit.
	MemoryLimit uint64
	// Hang makes every fence never signal.
	Hang bool

	mu         sync.Mutex
	caps       api.Caps
	next       api.ResourceID
	objects    map[api.ResourceID]cmds.Creator
	memory     map[api.ResourceID][]byte
	used       uint64
	lists      map[api.ResourceID]*list
	signatures map[api.ResourceID]indirect.Signature
	fences     map[api.ResourceID]uint64
	messages   []string
	executed   []Executed
	released   int
	lost       bool
}

// New returns a device with the given capabilities.
func New(caps api.Caps) *Device {
	return &Device{
		caps:       caps,
		next:       firstID,
		objects:    map[api.ResourceID]cmds.Creator{},
		memory:     map[api.ResourceID][]byte{},
		lists:      map[api.ResourceID]*list{},
		signatures: map[api.ResourceID]indirect.Signature{},
		fences:     map[api.ResourceID]uint64{},
	}
}

var _ device.Device = (*Device)(nil)

// Caps returns the capabilities of the device.
func (d *Device) Caps() api.Caps { return d.caps }

// Lose makes every further call fail with DeviceLost.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

func (d *Device) check() error {
	if d.lost {
		return api.Errorf(api.DeviceLost, nil, "Device removed")
	}
	return nil
}

func (d *Device) allocate() api.ResourceID {
	id := d.next
	d.next++
	return id
}

func (d *Device) message(format string, args ...interface{}) {
	d.messages = append(d.messages, fmt.Sprintf(format, args...))
}

// Create creates the object described by c.
func (d *Device) Create(ctx context.Context, c cmds.Creator) (api.ResourceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return api.NoResource, err
	}
	size := uint64(0)
	var sig *indirect.Signature
	switch c := c.(type) {
	case *cmds.CreateBuffer:
		size = c.Size
	case *cmds.CreateTexture:
		size = textureSize(c)
	case *cmds.CreateCommandSignature:
		s, err := indirect.NewSignature(c)
		if err != nil {
			d.message("CreateCommandSignature: %v", err)
			return api.NoResource, api.Errorf(api.APIReplayFailed, err, "Invalid command signature")
		}
		sig = &s
	}
	if d.MemoryLimit != 0 && d.used+size > d.MemoryLimit {
		d.message("%s: out of memory allocating %d bytes", cmds.Name(c.Kind()), size)
		return api.NoResource, api.Errorf(api.OutOfMemory, nil, "Allocating %d bytes", size)
	}
	id := d.allocate()
	if sig != nil {
		d.signatures[id] = *sig
	}
	d.objects[id] = c
	if size > 0 {
		d.memory[id] = make([]byte, size)
		d.used += size
	}
	if f, ok := c.(*cmds.CreateFence); ok {
		d.fences[id] = f.Initial
	}
	log.D(ctx, "Created %s %v", cmds.Name(c.Kind()), id)
	return id, nil
}

func textureSize(c *cmds.CreateTexture) uint64 {
	texel := uint64(4)
	if c.Format == gputypes.TextureFormatRGBA32Float {
		texel = 16
	}
	depth := uint64(c.Depth)
	if depth == 0 {
		depth = 1
	}
	return uint64(c.Width) * uint64(c.Height) * depth * texel
}

// InitialContents overwrites the contents of a buffer or texture.
func (d *Device) InitialContents(ctx context.Context, id api.ResourceID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	mem, ok := d.memory[id]
	if !ok {
		return api.Errorf(api.UnknownResource, nil, "%v has no contents", id)
	}
	copy(mem, data)
	return nil
}

// Contents returns a copy of the contents of a buffer or texture.
func (d *Device) Contents(ctx context.Context, id api.ResourceID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	mem, ok := d.memory[id]
	if !ok {
		return nil, api.Errorf(api.UnknownResource, nil, "%v has no contents", id)
	}
	return append([]byte{}, mem...), nil
}

// OpenList returns a new open command list.
func (d *Device) OpenList(ctx context.Context, allocator api.ResourceID) (api.ResourceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return api.NoResource, err
	}
	if _, ok := d.objects[allocator]; !ok {
		return api.NoResource, api.Errorf(api.UnknownResource, nil, "Allocator %v", allocator)
	}
	id := d.allocate()
	d.lists[id] = &list{allocator: allocator, open: true}
	return id, nil
}

// Record appends c to an open list.
func (d *Device) Record(ctx context.Context, id api.ResourceID, c cmds.ListCmd) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	l, ok := d.lists[id]
	if !ok {
		return api.Errorf(api.UnknownResource, nil, "List %v", id)
	}
	if !l.open {
		d.message("%s recorded into closed list %v", cmds.Name(c.Kind()), id)
		return api.Errorf(api.APIReplayFailed, nil, "List %v is closed", id)
	}
	if d.Reject != nil {
		if err := d.Reject(c); err != nil {
			d.message("%s rejected: %v", cmds.Name(c.Kind()), err)
			return api.Errorf(api.APIReplayFailed, err, "%s", cmds.Describe(c))
		}
	}
	l.cmds = append(l.cmds, c)
	return nil
}

// CloseList closes an open list.
func (d *Device) CloseList(ctx context.Context, id api.ResourceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	l, ok := d.lists[id]
	if !ok {
		return api.Errorf(api.UnknownResource, nil, "List %v", id)
	}
	if !l.open {
		d.message("List %v closed twice", id)
		return api.Errorf(api.APIReplayFailed, nil, "List %v is already closed", id)
	}
	l.open = false
	return nil
}

// ReleaseList destroys a list.
func (d *Device) ReleaseList(ctx context.Context, id api.ResourceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.lists[id]; !ok {
		return api.Errorf(api.UnknownResource, nil, "List %v", id)
	}
	delete(d.lists, id)
	d.released++
	return nil
}

// Submit executes closed lists on queue, in order.
func (d *Device) Submit(ctx context.Context, queue api.ResourceID, ids []api.ResourceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	for _, id := range ids {
		l, ok := d.lists[id]
		if !ok {
			return api.Errorf(api.UnknownResource, nil, "List %v", id)
		}
		if l.open {
			d.message("List %v submitted while open", id)
			return api.Errorf(api.APIReplayFailed, nil, "List %v is open", id)
		}
		for _, c := range l.cmds {
			d.execute(ctx, queue, id, c)
		}
	}
	return nil
}

func (d *Device) execute(ctx context.Context, queue, id api.ResourceID, c cmds.ListCmd) {
	d.executed = append(d.executed, Executed{Queue: queue, List: id, Cmd: c})
	switch c := c.(type) {
	case *cmds.CopyBuffer:
		dst, src := d.memory[c.Dst], d.memory[c.Src]
		if c.DstOffset+c.Size > uint64(len(dst)) || c.SrcOffset+c.Size > uint64(len(src)) {
			d.message("CopyBuffer out of bounds")
			return
		}
		copy(dst[c.DstOffset:c.DstOffset+c.Size], src[c.SrcOffset:c.SrcOffset+c.Size])
	case *cmds.ClearRenderTarget:
		fill(d.memory[c.View], rgba8(c.Color))
	case *cmds.ClearDepthStencil:
		fill(d.memory[c.View], []byte{byte(c.Depth * 255), c.Stencil, 0, 0})
	case *cmds.ExecuteIndirect:
		d.executeIndirect(ctx, queue, id, c)
	}
}

func (d *Device) executeIndirect(ctx context.Context, queue, id api.ResourceID, c *cmds.ExecuteIndirect) {
	sig, ok := d.signatures[c.Signature]
	if !ok {
		d.message("ExecuteIndirect: unknown signature %v", c.Signature)
		return
	}
	count := int(c.MaxCount)
	if c.Count.IsValid() {
		mem := d.memory[c.Count]
		if c.CountOffset+4 > uint64(len(mem)) {
			d.message("ExecuteIndirect: count offset out of bounds")
			return
		}
		o := c.CountOffset
		if n := int(uint32(mem[o]) | uint32(mem[o+1])<<8 | uint32(mem[o+2])<<16 | uint32(mem[o+3])<<24); n < count {
			count = n
		}
	}
	args := d.memory[c.Args]
	if c.ArgOffset > uint64(len(args)) {
		d.message("ExecuteIndirect: argument offset out of bounds")
		return
	}
	subs, err := indirect.Decode(sig, id, args[c.ArgOffset:], count)
	if err != nil {
		d.message("ExecuteIndirect: %v", err)
	}
	for _, s := range subs {
		d.executed = append(d.executed, Executed{Queue: queue, List: id, Cmd: s.Direct(), Indirect: true})
	}
}

func rgba8(c [4]float32) []byte {
	out := make([]byte, 4)
	for i, v := range c {
		switch {
		case v <= 0:
			out[i] = 0
		case v >= 1:
			out[i] = 255
		default:
			out[i] = byte(v*255 + 0.5)
		}
	}
	return out
}

func fill(mem, pattern []byte) {
	for i := range mem {
		mem[i] = pattern[i%len(pattern)]
	}
}

// Execute performs a signal, wait or present.
func (d *Device) Execute(ctx context.Context, c cmds.QueueCmd) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	switch c := c.(type) {
	case *cmds.Signal:
		if _, ok := d.fences[c.Fence]; !ok {
			return api.Errorf(api.UnknownResource, nil, "Fence %v", c.Fence)
		}
		d.fences[c.Fence] = c.Value
	case *cmds.Wait:
		v, ok := d.fences[c.Fence]
		if !ok {
			return api.Errorf(api.UnknownResource, nil, "Fence %v", c.Fence)
		}
		if v < c.Value {
			d.message("Wait for %v to reach %d, it is at %d", c.Fence, c.Value, v)
		}
	case *cmds.Present:
		if _, ok := d.memory[c.Image]; !ok {
			d.message("Present of %v, which has no contents", c.Image)
			return api.Errorf(api.APIReplayFailed, nil, "Presenting %v", c.Image)
		}
	default:
		return api.Errorf(api.Internal, nil, "Unexpected queue call %s", cmds.Name(c.Kind()))
	}
	d.executed = append(d.executed, Executed{Queue: c.OnQueue(), Cmd: c})
	return nil
}

// Fence returns a fence after all the work submitted to queue. Work executes
// as it is submitted, so the fence has already signaled unless the device
// hangs.
func (d *Device) Fence(ctx context.Context, queue api.ResourceID) (device.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.Hang {
		return hung{}, nil
	}
	return device.Signaled, nil
}

// Messages returns and clears the device messages.
func (d *Device) Messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.messages
	d.messages = nil
	return out
}

// Executed returns every call the device executed, in order.
func (d *Device) Executed() []Executed {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Executed{}, d.executed...)
}

// ClearExecuted forgets the executed calls.
func (d *Device) ClearExecuted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executed = nil
}

// Lists returns the number of lists that are open or closed but not
// released, and the number released.
func (d *Device) Lists() (live, released int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lists), d.released
}

// Object returns the call that created the live object id.
func (d *Device) Object(id api.ResourceID) (cmds.Creator, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.objects[id]
	return c, ok
}
