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

// Package capture records the calls an application makes to a device into a
// trace.
//
// Calls are serialized into chunks as they are made and forwarded to the
// device. Command lists are recorded into recording units, one per list,
// and baked when closed. Between BeginFrame and Finish, every resource the
// submitted work touches is marked as frame referenced; Finish writes only
// the objects the frame needs, along with their contents at the start of
// the frame.
package capture

import (
	"bytes"
	"context"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"k8s.io/utils/clock"

	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/core/data/section"
	"github.com/gfxtrace/gfxtrace/core/event/task"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/config"
	"github.com/gfxtrace/gfxtrace/gfxtrace/device"
	"github.com/gfxtrace/gfxtrace/gfxtrace/indirect"
	"github.com/gfxtrace/gfxtrace/gfxtrace/metrics"
	"github.com/gfxtrace/gfxtrace/gfxtrace/record"
	"github.com/gfxtrace/gfxtrace/gfxtrace/resources"
	"github.com/gfxtrace/gfxtrace/gfxtrace/state"
)

// APIVersion is the version of the call set written into traces.
const APIVersion = 1

// DefaultRingSize is the default size of the indirect argument staging ring.
const DefaultRingSize = 16 << 20

const quiescePoll = 5 * time.Millisecond

// Backend is the device captured calls are forwarded to.
type Backend interface {
	device.Device
	// Contents returns the current contents of a buffer or texture.
	Contents(ctx context.Context, id api.ResourceID) ([]byte, error)
}

// Option configures a Context.
type Option func(*Context)

// WithClock sets the clock used for timestamps and timeouts.
func WithClock(clk clock.Clock) Option {
	return func(c *Context) { c.clock = clk }
}

// WithRingSize sets the size of the indirect argument staging ring.
func WithRingSize(size uint64) Option {
	return func(c *Context) { c.ring = indirect.NewRing(size) }
}

type thread struct {
	ser  *chunk.Serializer
	copy *chunk.Serializer
}

type creation struct {
	id    api.ResourceID
	kind  chunk.Kind
	chunk *chunk.Chunk
}

// unit is the recording state of one command list. Only the thread that
// reset the list may record into it.
type unit struct {
	list    api.ResourceID
	owner   uint64
	live    api.ResourceID
	builder *record.Builder
	chunks  []*chunk.Chunk
	refs    map[api.ResourceID]api.Access
	closed  *baked
}

func (u *unit) mark(c cmds.Cmd) {
	c.Resources(func(id *api.ResourceID, a api.Access) {
		if id.IsValid() {
			u.refs[*id] = u.refs[*id].Compose(a)
		}
	})
}

type baked struct {
	*record.Baked
	chunks  []*chunk.Chunk
	refs    map[api.ResourceID]api.Access
	live    api.ResourceID
	written bool
}

type frame struct {
	number uint64
	chunks []*chunk.Chunk
}

// Context captures the calls made to one device.
type Context struct {
	backend   Backend
	cfg       config.Config
	clock     clock.Clock
	reg       *resources.Registry
	ring      *indirect.Ring
	id        uuid.UUID
	start     time.Time
	nextBaked uint64
	sys       *chunk.Serializer

	mu        sync.Mutex
	threads   map[uint64]*thread
	creations []creation
	released  []api.ResourceID
	units     map[api.ResourceID]*unit
	layouts   state.Layouts
	sigs      record.Signatures
	queues    []api.ResourceID
	used      api.Caps
	open      int
	frames    uint64
	frame     *frame
}

// New returns a capture context forwarding to backend.
func New(backend Backend, cfg config.Config, opts ...Option) *Context {
	c := &Context{
		backend: backend,
		cfg:     cfg,
		clock:   clock.RealClock{},
		reg:     resources.New(),
		id:      uuid.New(),
		sys:     chunk.NewSerializer(),
		threads: map[uint64]*thread{},
		units:   map[api.ResourceID]*unit{},
		layouts: state.Layouts{},
		sigs:    record.Signatures{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.ring == nil {
		c.ring = indirect.NewRing(DefaultRingSize)
	}
	c.start = c.clock.Now()
	c.sys.Light = cfg.StorageLight
	return c
}

// ID returns the unique identifier of the capture.
func (c *Context) ID() uuid.UUID { return c.id }

// Registry returns the identity registry of the capture.
func (c *Context) Registry() *resources.Registry { return c.reg }

// Thread returns the serializer of the recording thread tid. Serializers are
// created on first use and reused for every chunk the thread records.
func (c *Context) Thread(tid uint64) *chunk.Serializer {
	return c.thread(tid).ser
}

func (c *Context) thread(tid uint64) *thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[tid]
	if !ok {
		t = &thread{ser: chunk.NewSerializer(), copy: chunk.NewSerializer()}
		t.ser.Light = c.cfg.StorageLight
		c.threads[tid] = t
	}
	return t
}

// encode serializes cmd for the trace.
func (c *Context) encode(t *thread, tid uint64, cmd cmds.Cmd) (*chunk.Chunk, error) {
	meta := chunk.Meta{Thread: tid, Timestamp: c.clock.Since(c.start)}
	out, err := cmds.Encode(t.ser, cmd, meta)
	if err != nil {
		return nil, api.Classify(err, "Serializing %s", cmds.Name(cmd.Kind()))
	}
	metrics.ChunksRecorded.WithLabelValues(cmds.Name(cmd.Kind())).Inc()
	return out, nil
}

// duplicate returns a deep copy of cmd.
func (c *Context) duplicate(t *thread, cmd cmds.Cmd) (cmds.Cmd, error) {
	full, err := cmds.Encode(t.copy, cmd, chunk.Meta{})
	if err != nil {
		return nil, api.Classify(err, "Copying %s", cmds.Name(cmd.Kind()))
	}
	return cmds.Decode(full)
}

// forward returns a copy of cmd with every identifier resolved to the
// backend's objects.
func (c *Context) forward(t *thread, cmd cmds.Cmd) (cmds.Cmd, error) {
	out, err := c.duplicate(t, cmd)
	if err != nil {
		return nil, err
	}
	if err := c.reg.Remap(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create creates the object described by cmd, assigning it a new identifier.
func (c *Context) Create(ctx context.Context, tid uint64, cmd cmds.Creator) (api.ResourceID, error) {
	t := c.thread(tid)
	id := c.reg.Allocate()
	cmd.SetCreated(id)
	ch, err := c.encode(t, tid, cmd)
	if err != nil {
		return api.NoResource, err
	}
	fwd, err := c.forward(t, cmd)
	if err != nil {
		return api.NoResource, err
	}
	live, err := c.backend.Create(ctx, fwd.(cmds.Creator))
	if err != nil {
		return api.NoResource, err
	}
	if err := c.reg.RegisterLive(id, live); err != nil {
		return api.NoResource, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.creations = append(c.creations, creation{id: id, kind: cmd.Kind(), chunk: ch})
	switch cmd := cmd.(type) {
	case *cmds.CreateRootSignature:
		c.layouts.Add(cmd)
	case *cmds.CreateCommandSignature:
		if err := c.sigs.Add(cmd); err != nil {
			return api.NoResource, err
		}
		c.reg.AddParent(id, cmd.RootSignature)
	case *cmds.CreatePipeline:
		c.reg.AddParent(id, cmd.RootSignature)
	case *cmds.CreateCommandList:
		c.reg.AddParent(id, cmd.Allocator)
	case *cmds.CreateQueue:
		c.queues = append(c.queues, id)
	}
	log.D(ctx, "Created %s %v", cmds.Name(cmd.Kind()), id)
	return id, nil
}

// Release forgets the object id. During a frame the object is kept until
// the frame is written.
func (c *Context) Release(ctx context.Context, id api.ResourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame != nil {
		c.released = append(c.released, id)
		return
	}
	c.release(id)
}

func (c *Context) release(id api.ResourceID) {
	for i, cr := range c.creations {
		if cr.id == id {
			c.creations = append(c.creations[:i], c.creations[i+1:]...)
			break
		}
	}
	delete(c.units, id)
	c.reg.Release(id)
}

// Reset starts recording the list, backed by allocator, on the thread tid.
// A list reset while still recording discards what it recorded.
func (c *Context) Reset(ctx context.Context, tid uint64, list, allocator api.ResourceID) error {
	t := c.thread(tid)
	cmd := &cmds.ListReset{Allocator: allocator, Baked: api.BakedID(atomic.AddUint64(&c.nextBaked, 1))}
	cmd.SetTarget(list)
	ch, err := c.encode(t, tid, cmd)
	if err != nil {
		return err
	}
	fwd, err := c.forward(t, cmd)
	if err != nil {
		return err
	}
	live, err := c.backend.OpenList(ctx, fwd.(*cmds.ListReset).Allocator)
	if err != nil {
		return err
	}

	c.mu.Lock()
	u, ok := c.units[list]
	if !ok {
		u = &unit{list: list}
		c.units[list] = u
	}
	discarded := api.NoResource
	if u.builder != nil && u.builder.Recording() {
		discarded = u.live
	} else {
		c.open++
	}
	u.owner, u.live = tid, live
	u.builder = record.NewBuilder(maps.Clone(c.layouts), maps.Clone(c.sigs))
	c.mu.Unlock()

	u.builder.Begin(cmd)
	u.chunks = []*chunk.Chunk{ch}
	u.refs = map[api.ResourceID]api.Access{}
	u.mark(cmd)
	if discarded.IsValid() {
		log.W(ctx, "List %v reset while recording", list)
		return c.backend.ReleaseList(ctx, discarded)
	}
	return nil
}

// recording returns the unit of list if it is recording on thread tid.
func (c *Context) recording(tid uint64, list api.ResourceID) (*unit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.units[list]
	switch {
	case !ok || u.builder == nil || !u.builder.Recording():
		return nil, api.Errorf(api.DesignError, nil, "List %v is not recording", list)
	case u.owner != tid:
		return nil, api.Errorf(api.DesignError, nil, "List %v is recorded by thread %d, not %d", list, u.owner, tid)
	}
	return u, nil
}

// Record records cmd into list.
func (c *Context) Record(ctx context.Context, tid uint64, list api.ResourceID, cmd cmds.ListCmd) error {
	u, err := c.recording(tid, list)
	if err != nil {
		return err
	}
	t := c.thread(tid)
	cmd.SetTarget(list)
	fwd, err := c.forward(t, cmd)
	if err != nil {
		return err
	}
	lc := fwd.(cmds.ListCmd)
	lc.SetTarget(u.live)
	if err := c.backend.Record(ctx, u.live, lc); err != nil {
		return err
	}

	ch, err := c.encode(t, tid, cmd)
	if err != nil {
		return err
	}
	own, err := c.duplicate(t, cmd)
	if err != nil {
		return err
	}
	if err := u.builder.Add(len(u.chunks), own.(cmds.ListCmd)); err != nil {
		log.W(ctx, "Recording %s: %v", cmds.Name(cmd.Kind()), err)
	}
	u.chunks = append(u.chunks, ch)
	u.mark(cmd)
	if ei, ok := cmd.(*cmds.ExecuteIndirect); ok {
		c.mu.Lock()
		c.used.Insert(gputypes.FeatureMultiDrawIndirect)
		if ei.Count.IsValid() {
			c.used.Insert(gputypes.FeatureMultiDrawIndirectCount)
		}
		c.mu.Unlock()
	}
	return nil
}

// Close ends the recording of list and bakes it.
func (c *Context) Close(ctx context.Context, tid uint64, list api.ResourceID) (*record.Baked, error) {
	u, err := c.recording(tid, list)
	if err != nil {
		return nil, err
	}
	cmd := &cmds.ListClose{}
	cmd.SetTarget(list)
	ch, err := c.encode(c.thread(tid), tid, cmd)
	if err != nil {
		return nil, err
	}
	if err := c.backend.CloseList(ctx, u.live); err != nil {
		return nil, err
	}
	b := &baked{
		Baked:  u.builder.Close(cmd),
		chunks: append(u.chunks, ch),
		refs:   u.refs,
		live:   u.live,
	}

	c.mu.Lock()
	old := u.closed
	u.closed = b
	u.chunks, u.refs = nil, nil
	c.open--
	if c.frame != nil {
		c.write(b)
	}
	c.mu.Unlock()

	if old != nil {
		if err := c.backend.ReleaseList(ctx, old.live); err != nil {
			log.W(ctx, "Releasing %v: %v", old.live, err)
		}
	}
	return b.Baked, nil
}

// write appends the chunks of b to the frame, once. Must be called with
// c.mu held.
func (c *Context) write(b *baked) {
	if b.written {
		return
	}
	b.written = true
	c.frame.chunks = append(c.frame.chunks, b.chunks...)
	for id := range b.refs {
		c.reg.MarkFrameReferenced(id, api.NoAccess)
	}
}

// ExecuteCommandLists submits the last baked version of each list to queue.
func (c *Context) ExecuteCommandLists(ctx context.Context, tid uint64, queue api.ResourceID, lists []api.ResourceID) error {
	t := c.thread(tid)
	cmd := &cmds.ExecuteCommandLists{Lists: append([]api.ResourceID{}, lists...)}
	cmd.SetQueue(queue)

	c.mu.Lock()
	submitted := make([]*baked, len(lists))
	for i, l := range lists {
		u, ok := c.units[l]
		if !ok || u.closed == nil {
			c.mu.Unlock()
			return api.Errorf(api.APIReplayFailed, nil, "List %v was never closed", l)
		}
		submitted[i] = u.closed
	}
	ch, err := c.encode(t, tid, cmd)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	capturing := c.frame != nil
	if capturing {
		for _, b := range submitted {
			c.write(b)
			for id, a := range b.refs {
				c.reg.MarkFrameReferenced(id, a)
			}
		}
		cmd.Resources(func(id *api.ResourceID, a api.Access) {
			c.reg.MarkFrameReferenced(*id, a)
		})
		c.frame.chunks = append(c.frame.chunks, ch)
	}
	c.mu.Unlock()

	liveQueue, err := c.reg.Resolve(queue)
	if err != nil {
		return err
	}
	live := make([]api.ResourceID, len(submitted))
	for i, b := range submitted {
		live[i] = b.live
	}
	if err := c.backend.Submit(ctx, liveQueue, live); err != nil {
		return err
	}
	if capturing {
		return c.stage(ctx, liveQueue, submitted)
	}
	return nil
}

// stage copies the arguments of every ExecuteIndirect of the submitted lists
// into the staging ring once the submission has completed.
func (c *Context) stage(ctx context.Context, queue api.ResourceID, submitted []*baked) error {
	groups := 0
	for _, b := range submitted {
		groups += len(b.Groups)
	}
	if groups == 0 {
		return nil
	}
	f, err := c.backend.Fence(ctx, queue)
	if err != nil {
		return err
	}
	if err := device.WaitFence(ctx, c.clock, f, c.cfg.FenceTimeout); err != nil {
		return err
	}
	for _, b := range submitted {
		for _, g := range b.Groups {
			ctx := log.V{"baked": b.ID, "ordinal": g.Ordinal}.Bind(ctx)
			key := indirect.Key{Baked: b.ID, Ordinal: g.Ordinal}
			prev, resubmitted := c.ring.Staged(key)
			reg, evicted, err := c.ring.Reserve(key, g.Cmd, g.Signature.Stride)
			if err != nil {
				log.W(ctx, "Not staging indirect arguments: %v", err)
				continue
			}
			for _, k := range evicted {
				log.W(ctx, "Staged arguments of %v ordinal %d overwritten", k.Baked, k.Ordinal)
			}
			data, count, err := c.readArguments(ctx, g.Cmd, g.Signature.Stride)
			if err != nil {
				return err
			}
			c.ring.Fill(reg, data, count)
			if resubmitted {
				if now := c.ring.Arguments(reg); now.Count != prev.Count || !bytes.Equal(now.Data, prev.Data) {
					metrics.CaptureWarnings.WithLabelValues("indirect_replaced").Inc()
					log.W(ctx, "List submitted again with different indirect arguments, keeping the last")
				}
			}
		}
	}
	return nil
}

func (c *Context) readArguments(ctx context.Context, ei *cmds.ExecuteIndirect, stride uint32) ([]byte, uint32, error) {
	args, err := c.contents(ctx, ei.Args)
	if err != nil {
		return nil, 0, err
	}
	size := uint64(ei.MaxCount) * uint64(stride)
	data := []byte{}
	if ei.ArgOffset < uint64(len(args)) {
		end := ei.ArgOffset + size
		if end > uint64(len(args)) {
			end = uint64(len(args))
		}
		data = args[ei.ArgOffset:end]
	}
	count := ei.MaxCount
	if ei.Count.IsValid() {
		buf, err := c.contents(ctx, ei.Count)
		if err != nil {
			return nil, 0, err
		}
		o := ei.CountOffset
		if o+4 > uint64(len(buf)) {
			log.W(ctx, "Count offset %d is outside the count buffer", o)
			return data, 0, nil
		}
		if n := uint32(buf[o]) | uint32(buf[o+1])<<8 | uint32(buf[o+2])<<16 | uint32(buf[o+3])<<24; n < count {
			count = n
		}
	}
	return data, count, nil
}

func (c *Context) contents(ctx context.Context, id api.ResourceID) ([]byte, error) {
	live, err := c.reg.Resolve(id)
	if err != nil {
		return nil, err
	}
	return c.backend.Contents(ctx, live)
}

// Signal records and forwards a fence signal.
func (c *Context) Signal(ctx context.Context, tid uint64, queue, fence api.ResourceID, value uint64) error {
	cmd := &cmds.Signal{Fence: fence, Value: value}
	cmd.SetQueue(queue)
	return c.queueCall(ctx, tid, cmd)
}

// Wait records and forwards a fence wait.
func (c *Context) Wait(ctx context.Context, tid uint64, queue, fence api.ResourceID, value uint64) error {
	cmd := &cmds.Wait{Fence: fence, Value: value}
	cmd.SetQueue(queue)
	return c.queueCall(ctx, tid, cmd)
}

// Present records and forwards a present of image.
func (c *Context) Present(ctx context.Context, tid uint64, queue, image api.ResourceID) error {
	cmd := &cmds.Present{Image: image}
	cmd.SetQueue(queue)
	return c.queueCall(ctx, tid, cmd)
}

func (c *Context) queueCall(ctx context.Context, tid uint64, cmd cmds.QueueCmd) error {
	t := c.thread(tid)
	ch, err := c.encode(t, tid, cmd)
	if err != nil {
		return err
	}
	fwd, err := c.forward(t, cmd)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.frame != nil {
		c.frame.chunks = append(c.frame.chunks, ch)
		cmd.Resources(func(id *api.ResourceID, a api.Access) {
			c.reg.MarkFrameReferenced(*id, a)
		})
	}
	c.mu.Unlock()
	return c.backend.Execute(ctx, fwd.(cmds.QueueCmd))
}

// idle waits for all the work submitted to every queue to complete.
func (c *Context) idle(ctx context.Context) error {
	c.mu.Lock()
	queues := append([]api.ResourceID{}, c.queues...)
	c.mu.Unlock()
	for _, q := range queues {
		live, ok := c.reg.LiveOf(q)
		if !ok {
			continue
		}
		f, err := c.backend.Fence(ctx, live)
		if err != nil {
			return err
		}
		if err := device.WaitFence(ctx, c.clock, f, c.cfg.FenceTimeout); err != nil {
			return err
		}
	}
	return nil
}

// BeginFrame starts capturing a frame. It waits for the device to be idle
// and snapshots the contents of every buffer and texture.
func (c *Context) BeginFrame(ctx context.Context) error {
	c.mu.Lock()
	if c.frame != nil {
		c.mu.Unlock()
		return api.Errorf(api.DesignError, nil, "Frame %d is already being captured", c.frames)
	}
	c.frames++
	number := c.frames
	snapshot := []api.ResourceID{}
	for _, cr := range c.creations {
		if cr.kind == cmds.KindCreateBuffer || cr.kind == cmds.KindCreateTexture {
			snapshot = append(snapshot, cr.id)
		}
	}
	c.mu.Unlock()

	ctx = log.V{"frame": number}.Bind(ctx)
	if err := c.idle(ctx); err != nil {
		return err
	}
	c.reg.ClearFrameReferences()
	c.ring.Reset()
	for _, id := range snapshot {
		data, err := c.contents(ctx, id)
		if err != nil {
			return err
		}
		c.reg.SetInitialContents(id, data)
	}
	begin, err := cmds.Encode(c.sys, &cmds.CaptureBegin{Frame: number}, chunk.Meta{Timestamp: c.clock.Since(c.start)})
	if err != nil {
		return api.Classify(err, "Serializing CaptureBegin")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = &frame{number: number, chunks: []*chunk.Chunk{begin}}
	for _, u := range c.units {
		if u.closed != nil {
			u.closed.written = false
		}
	}
	log.I(ctx, "Capturing frame")
	return nil
}

// quiesce waits for every recording unit to be closed.
func (c *Context) quiesce(ctx context.Context) error {
	deadline := c.clock.Now().Add(c.cfg.FenceTimeout)
	for {
		c.mu.Lock()
		open := c.open
		c.mu.Unlock()
		if open == 0 {
			return nil
		}
		if !c.clock.Now().Before(deadline) {
			return api.Errorf(api.DesignError, nil, "%d command lists are still recording", open)
		}
		select {
		case <-task.ShouldStop(ctx):
			return api.Errorf(api.Cancelled, task.StopReason(ctx), "Waiting for command lists to close")
		case <-c.clock.After(quiescePoll):
		}
	}
}

// Finish ends the frame and writes the trace to the FrameCapture section of
// sink.
func (c *Context) Finish(ctx context.Context, sink section.Sink) (err error) {
	ctx, span := otel.Tracer("gfxtrace").Start(ctx, "capture.Finish")
	defer span.End()
	timer := prometheus.NewTimer(metrics.CaptureDuration)
	defer timer.ObserveDuration()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	c.mu.Lock()
	f := c.frame
	c.mu.Unlock()
	if f == nil {
		return api.Errorf(api.DesignError, nil, "No frame is being captured")
	}
	ctx = log.V{"frame": f.number}.Bind(ctx)
	if err := c.quiesce(ctx); err != nil {
		return err
	}
	if err := c.idle(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.frame = nil
	creations := append([]creation{}, c.creations...)
	used := c.used
	released := c.released
	c.released = nil
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, id := range released {
			c.release(id)
		}
	}()

	out := []*chunk.Chunk{}
	add := func(cmd cmds.Cmd) error {
		ch, err := cmds.Encode(c.sys, cmd, chunk.Meta{Timestamp: c.clock.Since(c.start)})
		if err != nil {
			return api.Classify(err, "Serializing %s", cmds.Name(cmd.Kind()))
		}
		out = append(out, ch)
		return nil
	}

	if err := add(&cmds.DriverInit{APIVersion: APIVersion, Caps: used, CaptureID: c.id.String()}); err != nil {
		return err
	}
	refs := c.reg.FrameReferenced()
	needed := c.needed(refs)
	for _, cr := range creations {
		if needed[cr.id] {
			out = append(out, cr.chunk)
		}
	}
	ids := make([]api.ResourceID, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !refs[id].NeedsInitialContents() {
			continue
		}
		if data, ok := c.reg.InitialContents(id); ok {
			if err := add(&cmds.InitialContents{Resource: id, Data: data}); err != nil {
				return err
			}
		}
	}
	out = append(out, f.chunks...)
	for _, r := range c.ring.Regions() {
		if r.Filled {
			if err := add(c.ring.Arguments(r)); err != nil {
				return err
			}
		}
	}
	if err := add(&cmds.CaptureEnd{}); err != nil {
		return err
	}

	w, err := sink.OpenSection(section.FrameCapture)
	if err != nil {
		return err
	}
	sw, err := chunk.NewStreamWriter(w, chunk.Version)
	if err != nil {
		w.Close()
		return err
	}
	for _, ch := range out {
		if task.Stopped(ctx) {
			w.Close()
			return api.Errorf(api.Cancelled, task.StopReason(ctx), "Writing trace")
		}
		if err := sw.Write(ch); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("chunks", len(out)), attribute.Int("resources", len(refs)))
	log.I(ctx, "Wrote %d chunks referencing %d resources", len(out), len(refs))
	return nil
}

// needed returns the referenced resources and every resource they were
// derived from.
func (c *Context) needed(refs map[api.ResourceID]api.Access) map[api.ResourceID]bool {
	out := map[api.ResourceID]bool{}
	var visit func(api.ResourceID)
	visit = func(id api.ResourceID) {
		if !id.IsValid() || out[id] {
			return
		}
		out[id] = true
		for _, p := range c.reg.Parents(id) {
			visit(p)
		}
	}
	for id := range refs {
		visit(id)
	}
	return out
}
