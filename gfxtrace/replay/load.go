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

// Package replay loads traces and replays them, in whole or in part, on a
// device.
//
// Loading creates every object of the trace, applies the initial contents of
// its resources and bakes every submitted command list into a device list.
// The lists are numbered into one action tree in submission order. A replay
// submits the baked lists up to a cut event; the list that contains the cut
// is recorded again into a temporary list that stops at the cut.
package replay

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"k8s.io/utils/clock"

	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/core/data/section"
	"github.com/gfxtrace/gfxtrace/core/event/task"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/action"
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

// Phase is the state of a Session.
type Phase int

const (
	Idle Phase = iota
	Loading
	FullReplay
	PartialReplay
	Closed
)

var phaseNames = [...]string{"Idle", "Loading", "FullReplay", "PartialReplay", "Closed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase<%d>", int(p))
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock bounding fence waits.
func WithClock(clk clock.Clock) Option {
	return func(s *Session) { s.clock = clk }
}

// baked is a command list of the trace, with the device list it is baked
// into.
type baked struct {
	*record.Baked
	// res identifies the baked device list. Submissions of the list resolve
	// to it through a registry replacement.
	res  api.ResourceID
	live api.ResourceID
}

// instance is one submission of a baked list.
type instance struct {
	*baked
	queue api.ResourceID
	// offset is added to the list's events to number them in the frame.
	offset       int
	actionOffset int
}

func (i *instance) first() api.EventID { return api.EventID(i.offset + 1) }
func (i *instance) last() api.EventID  { return api.EventID(i.offset + i.EventCount) }

// global returns the frame event of the list event e, or zero.
func (i *instance) global(e api.EventID) api.EventID {
	if e == 0 {
		return 0
	}
	return e + api.EventID(i.offset)
}

// op is one queue call of the frame.
type op struct {
	chunk int
	// submit holds the lists of an ExecuteCommandLists.
	submit []*instance
	// call is a Signal, Wait or Present.
	call cmds.QueueCmd
	// event is the event of a Present.
	event api.EventID
}

// Session is a loaded trace bound to a device.
//
// Replays are serialized: a Session may be shared between goroutines but
// runs one call at a time.
type Session struct {
	dev   device.Device
	cfg   config.Config
	clock clock.Clock
	reg   *resources.Registry
	ser   *chunk.Serializer

	captureID string
	caps      api.Caps
	layouts   state.Layouts
	sigs      record.Signatures
	queues    []api.ResourceID
	allocs    map[api.ResourceID]api.ResourceID
	initial   []*cmds.InitialContents
	lists     []*baked
	ops       []op
	root      *action.Node
	events    int
	actions   int
	usage     action.UsageIndex

	mu          sync.Mutex
	phase       Phase
	fatal       error
	dirty       bool
	current     *state.RenderState
	warnings    []string
	diagnostics []string
	close       task.Task
}

// Load reads the trace in src and prepares it for replay on dev.
func Load(ctx context.Context, src section.Source, dev device.Device, cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Check(); err != nil {
		return nil, api.Errorf(api.DesignError, err, "Invalid configuration")
	}
	s := &Session{
		dev:     dev,
		cfg:     cfg,
		clock:   clock.RealClock{},
		reg:     resources.New(),
		ser:     chunk.NewSerializer(),
		layouts: state.Layouts{},
		sigs:    record.Signatures{},
		allocs:  map[api.ResourceID]api.ResourceID{},
		current: state.New(),
		phase:   Loading,
	}
	for _, o := range opts {
		o(s)
	}
	s.close = task.Once(s.release)

	ctx, span := otel.Tracer("gfxtrace").Start(ctx, "replay.Load")
	defer span.End()
	if err := s.load(ctx, src); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ReplayFailures.WithLabelValues(api.KindOf(err).String()).Inc()
		s.close(ctx)
		return nil, err
	}
	span.SetAttributes(attribute.Int("events", s.events), attribute.Int("actions", s.actions))
	s.phase = Idle
	log.I(ctx, "Loaded %d events, %d actions", s.events, s.actions)
	return s, nil
}

func (s *Session) load(ctx context.Context, src section.Source) error {
	r, err := src.ReadSection(section.FrameCapture)
	if err != nil {
		return api.Errorf(api.DataCorruption, err, "Reading trace")
	}
	stream, err := chunk.NewStreamReader(r)
	if err != nil {
		return api.Errorf(api.DataCorruption, err, "Reading trace")
	}
	l := &loader{
		Session:  s,
		builders: map[api.ResourceID]*record.Builder{},
		closed:   map[api.ResourceID]*record.Baked{},
		bakes:    map[api.BakedID]*baked{},
		staged:   map[indirect.Key]*cmds.IndirectArguments{},
	}
	for first := true; ; first = false {
		if task.Stopped(ctx) {
			return api.Errorf(api.Cancelled, task.StopReason(ctx), "Loading trace")
		}
		ch, err := stream.Next()
		switch {
		case err == nil:
		case err == io.EOF:
			return api.Errorf(api.DataCorruption, nil, "Trace ends without CaptureEnd")
		default:
			return api.Classify(err, "Reading trace")
		}
		ctx := log.V{"chunk": ch.Index}.Bind(ctx)
		if ch.Truncated {
			s.warn(ctx, "truncated", "Skipping truncated chunk %v", ch)
			continue
		}
		cmd, err := cmds.Decode(ch)
		if err != nil {
			return api.Classify(err, "Decoding chunk %v", ch)
		}
		metrics.ChunksDecoded.WithLabelValues(cmds.Name(ch.Kind)).Inc()
		if first {
			if err := s.driverInit(cmd); err != nil {
				return err
			}
			continue
		}
		done, err := l.chunk(ctx, ch.Index, cmd)
		switch {
		case err != nil:
			return err
		case done:
			return l.finish(ctx)
		}
	}
}

// driverInit checks the device has the capabilities the trace needs.
func (s *Session) driverInit(cmd cmds.Cmd) error {
	di, ok := cmd.(*cmds.DriverInit)
	if !ok {
		return api.Errorf(api.DataCorruption, nil, "Trace starts with %s, not DriverInit", cmds.Name(cmd.Kind()))
	}
	available := s.dev.Caps() &^ s.cfg.Downgrades
	if missing := api.Unsupported(di.Caps, available); !missing.IsEmpty() {
		return api.Errorf(api.Unreplayable, nil, "Device lacks %v", api.CapNames(missing))
	}
	s.captureID, s.caps = di.CaptureID, di.Caps
	return nil
}

// loader holds the state of a Load.
type loader struct {
	*Session
	builders map[api.ResourceID]*record.Builder
	closed   map[api.ResourceID]*record.Baked
	bakes    map[api.BakedID]*baked
	staged   map[indirect.Key]*cmds.IndirectArguments
}

// chunk processes one chunk of the trace. It returns true at the end of the
// trace.
func (l *loader) chunk(ctx context.Context, index int, cmd cmds.Cmd) (bool, error) {
	switch cmd := cmd.(type) {
	case cmds.Creator:
		return false, l.create(ctx, cmd)
	case *cmds.InitialContents:
		if err := l.apply(ctx, cmd); err != nil {
			return false, err
		}
		l.initial = append(l.initial, cmd)
	case *cmds.CaptureBegin:
		log.D(ctx, "Frame %d", cmd.Frame)
	case *cmds.CaptureEnd:
		return true, nil
	case *cmds.IndirectArguments:
		l.staged[indirect.Key{Baked: cmd.Baked, Ordinal: cmd.Ordinal}] = cmd
	case *cmds.ListReset:
		b := record.NewBuilder(l.layouts, l.sigs)
		b.Begin(cmd)
		l.builders[cmd.Target()] = b
	case *cmds.ListClose:
		b, ok := l.builders[cmd.Target()]
		if !ok || !b.Recording() {
			l.warn(ctx, "unknown_resource", "Close of list %v that was not reset", cmd.Target())
			return false, nil
		}
		out := b.Close(cmd)
		l.closed[cmd.Target()] = out
	case cmds.ListCmd:
		b, ok := l.builders[cmd.Target()]
		if !ok || !b.Recording() {
			l.warn(ctx, "unknown_resource", "%s recorded into list %v that was not reset", cmds.Name(cmd.Kind()), cmd.Target())
			return false, nil
		}
		if err := b.Add(index, cmd); err != nil {
			l.warn(ctx, "unknown_resource", "%s: %v", cmds.Name(cmd.Kind()), err)
		}
	case *cmds.ExecuteCommandLists:
		o := op{chunk: index}
		for _, id := range cmd.Lists {
			b, ok := l.closed[id]
			if !ok {
				l.warn(ctx, "unknown_resource", "Submission of list %v that was never closed", id)
				continue
			}
			bk, ok := l.bakes[b.ID]
			if !ok {
				bk = &baked{Baked: b}
				l.bakes[b.ID] = bk
				l.lists = append(l.lists, bk)
			}
			o.submit = append(o.submit, &instance{baked: bk, queue: cmd.OnQueue()})
		}
		l.ops = append(l.ops, o)
	case cmds.QueueCmd:
		l.ops = append(l.ops, op{chunk: index, call: cmd})
	default:
		l.warn(ctx, "unexpected", "Unexpected %s", cmds.Name(cmd.Kind()))
	}
	return false, nil
}

// create creates the object of a creation chunk. Every object of the trace
// is part of its initial state, so failures are fatal.
func (l *loader) create(ctx context.Context, cmd cmds.Creator) error {
	id := cmd.Created()
	fwd, err := l.clone(cmd)
	if err != nil {
		return err
	}
	if err := l.reg.Remap(fwd); err != nil {
		return api.Errorf(api.KindOf(err), err, "Creating %v", id)
	}
	live, err := l.dev.Create(ctx, fwd.(cmds.Creator))
	if err != nil {
		return api.Classify(err, "Creating %v", id)
	}
	if err := l.reg.RegisterLive(id, live); err != nil {
		return err
	}
	switch cmd := cmd.(type) {
	case *cmds.CreateRootSignature:
		l.layouts.Add(cmd)
	case *cmds.CreateCommandSignature:
		if err := l.sigs.Add(cmd); err != nil {
			return api.Errorf(api.DataCorruption, err, "Command signature %v", id)
		}
	case *cmds.CreateQueue:
		l.queues = append(l.queues, id)
	case *cmds.CreateCommandList:
		l.allocs[id] = cmd.Allocator
	}
	return nil
}

// apply writes initial contents to the device. Unknown resources are fatal.
func (s *Session) apply(ctx context.Context, c *cmds.InitialContents) error {
	live, err := s.reg.Resolve(c.Resource)
	if err != nil {
		return api.Errorf(api.KindOf(err), err, "Applying initial contents")
	}
	return s.check(ctx, s.dev.InitialContents(ctx, live, c.Data))
}

// finish finalizes indirect arguments, bakes the submitted lists and numbers
// the frame.
func (l *loader) finish(ctx context.Context) error {
	for _, b := range l.lists {
		staged := func(ordinal uint32) (*cmds.IndirectArguments, bool) {
			a, ok := l.staged[indirect.Key{Baked: b.ID, Ordinal: ordinal}]
			return a, ok
		}
		if err := b.Finalize(ctx, staged, l.layouts); err != nil {
			l.warn(ctx, "indirect_overrun", "List %v: %v", b.List, err)
		}
		if err := l.bake(ctx, b); err != nil {
			return err
		}
	}

	tree := action.NewTree()
	for i := range l.ops {
		o := &l.ops[i]
		for _, in := range o.submit {
			in.offset, in.actionOffset = l.events, l.actions
			tree.CloneInto(in.Root, in.offset, in.actionOffset)
			l.events += in.EventCount
			l.actions += in.ActionCount
			for _, st := range in.Steps {
				st.Cmd.Resources(func(id *api.ResourceID, a api.Access) { l.reg.MarkFrameReferenced(*id, a) })
			}
		}
		if p, ok := o.call.(*cmds.Present); ok {
			l.events++
			l.actions++
			o.event = api.EventID(l.events)
			tree.Add(&action.Node{
				EventID:  o.event,
				ActionID: api.ActionID(l.actions),
				Name:     cmds.Describe(p),
				Flags:    cmds.Flags(p),
				State:    state.New(),
				Usage:    []api.ResourceUsage{{Resource: p.Image, Usage: api.UsagePresent}},
				Args:     p,
				Events:   []action.APIEvent{{Chunk: o.chunk, Name: cmds.Name(p.Kind())}},
			})
		}
		if o.call != nil {
			o.call.Resources(func(id *api.ResourceID, a api.Access) { l.reg.MarkFrameReferenced(*id, a) })
		}
	}
	l.root = tree.Root
	if l.cfg.Optimisation != config.Fastest {
		l.usage = action.BuildUsage(l.root)
	}
	return nil
}

// bake records every call of b into a device list.
func (l *loader) bake(ctx context.Context, b *baked) error {
	ctx = log.V{"list": b.List, "baked": b.ID}.Bind(ctx)
	live, err := l.open(ctx, b.List)
	if err != nil {
		return err
	}
	for _, st := range b.Steps {
		if err := l.record(ctx, live, st.Cmd); err != nil {
			l.dev.ReleaseList(ctx, live)
			return err
		}
	}
	if err := l.dev.CloseList(ctx, live); err != nil {
		l.dev.ReleaseList(ctx, live)
		return api.Classify(err, "Closing baked list")
	}
	b.live = live
	b.res = l.reg.AllocateLocal()
	if err := l.reg.RegisterLive(b.res, live); err != nil {
		return err
	}
	return nil
}

// open opens a device list on the allocator of list.
func (s *Session) open(ctx context.Context, list api.ResourceID) (api.ResourceID, error) {
	alloc, err := s.reg.Resolve(s.allocs[list])
	if err != nil {
		return api.NoResource, api.Errorf(api.UnknownResource, err, "Allocator of list %v", list)
	}
	live, err := s.dev.OpenList(ctx, alloc)
	if err != nil {
		return api.NoResource, api.Classify(err, "Opening list")
	}
	return live, nil
}

// record records a copy of c into the device list live. Calls that refer to
// unknown resources are skipped with a warning.
func (s *Session) record(ctx context.Context, live api.ResourceID, c cmds.ListCmd) error {
	fwd, err := s.clone(c)
	if err != nil {
		return err
	}
	if err := s.reg.Remap(fwd); err != nil {
		if api.Is(err, api.UnknownResource) {
			s.warn(ctx, "unknown_resource", "Skipping %s: %v", cmds.Name(c.Kind()), err)
			return nil
		}
		return err
	}
	lc := fwd.(cmds.ListCmd)
	lc.SetTarget(live)
	return s.check(ctx, s.dev.Record(ctx, live, lc))
}

// clone returns a deep copy of c.
func (s *Session) clone(c cmds.Cmd) (cmds.Cmd, error) {
	ch, err := cmds.Encode(s.ser, c, chunk.Meta{})
	if err != nil {
		return nil, api.Classify(err, "Copying %s", cmds.Name(c.Kind()))
	}
	return cmds.Decode(ch)
}

// warn logs a recoverable problem and keeps it for Warnings.
func (s *Session) warn(ctx context.Context, reason, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.W(ctx, "%s", msg)
	metrics.ChunksSkipped.WithLabelValues(reason).Inc()
	s.warnings = append(s.warnings, msg)
}

// check classifies the result of a device call. Successful calls clear the
// diagnostics; failures carry the device messages received since the last
// success. DeviceLost and OutOfMemory are remembered and returned by every
// later call.
func (s *Session) check(ctx context.Context, err error) error {
	msgs := s.dev.Messages()
	if err == nil {
		s.diagnostics = s.diagnostics[:0]
		return nil
	}
	s.diagnostics = append(s.diagnostics, msgs...)
	if n := s.cfg.MaxDiagnostics; len(s.diagnostics) > n {
		s.diagnostics = s.diagnostics[len(s.diagnostics)-n:]
	}
	e := api.Classify(err, "Device call failed")
	if e.Kind == api.APIReplayFailed {
		e = e.WithDiagnostics(append([]string{}, s.diagnostics...))
	}
	if e.Kind.Sticky() {
		s.fatal = e
	}
	return e
}

// EventCount returns the number of events in the frame.
func (s *Session) EventCount() int { return s.events }

// ActionCount returns the number of actions in the frame.
func (s *Session) ActionCount() int { return s.actions }

// ActionTree returns the root of the frame's action tree.
func (s *Session) ActionTree() *action.Node { return s.root }

// CaptureID returns the identifier of the capture the trace was written by.
func (s *Session) CaptureID() string { return s.captureID }

// Registry returns the identity registry of the session.
func (s *Session) Registry() *resources.Registry { return s.reg }

// Phase returns the current phase of the session.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Warnings returns the recoverable problems met while loading and replaying.
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.warnings...)
}

// RenderState returns the render state recorded at the event eid.
func (s *Session) RenderState(eid api.EventID) (*state.RenderState, error) {
	n := action.Find(s.root, eid)
	if n == nil {
		return nil, api.Errorf(api.DesignError, nil, "No event %d", eid)
	}
	if n.State == nil {
		return state.New(), nil
	}
	return n.State.Clone(), nil
}

// Usage returns every event that used the resource id. It is empty with
// the Fastest optimisation level.
func (s *Session) Usage(id api.ResourceID) []api.EventUsage {
	return append([]api.EventUsage{}, s.usage[id]...)
}

// State returns the render state reached by the last replay.
func (s *Session) State() *state.RenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Close releases the baked lists of the session.
func (s *Session) Close(ctx context.Context) error { return s.close(ctx) }

func (s *Session) release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = Closed
	for _, b := range s.lists {
		if !b.live.IsValid() {
			continue
		}
		if err := s.dev.ReleaseList(ctx, b.live); err != nil {
			log.W(ctx, "Releasing baked list %v: %v", b.live, err)
		}
		s.reg.Release(b.res)
	}
	return nil
}
