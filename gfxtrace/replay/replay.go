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

package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gfxtrace/gfxtrace/core/event/task"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/config"
	"github.com/gfxtrace/gfxtrace/gfxtrace/device"
	"github.com/gfxtrace/gfxtrace/gfxtrace/indirect"
	"github.com/gfxtrace/gfxtrace/gfxtrace/metrics"
	"github.com/gfxtrace/gfxtrace/gfxtrace/record"
	"github.com/gfxtrace/gfxtrace/gfxtrace/state"
)

// Mode selects which events up to the end event a replay runs.
type Mode int

const (
	// Full replays every event up to and including the end event.
	Full Mode = iota
	// UpToButExcludingLast replays every event before the end event, and the
	// state changes folded into it.
	UpToButExcludingLast
	// OnlyLast replays the action at the end event alone, after the state
	// changes that precede it in its command list.
	OnlyLast
)

var modeNames = [...]string{"full", "up-to", "only-last"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode<%d>", int(m))
}

// Set parses a mode name, for use as a flag value.
func (m *Mode) Set(name string) error {
	for i, n := range modeNames {
		if n == name {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("Unknown replay mode '%v'", name)
}

// Replay replays the frame from event start to event end, which is the last
// event of the frame if zero. A start of zero restores the initial resource
// contents first; a later start assumes the events before it have already
// been replayed.
func (s *Session) Replay(ctx context.Context, start, end api.EventID, mode Mode) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.phase == Closed:
		return api.Errorf(api.DesignError, nil, "Replay of a closed session")
	case s.fatal != nil:
		return s.fatal
	}
	if end == 0 {
		end = api.EventID(s.events)
	}
	if int(end) > s.events || start > end {
		return api.Errorf(api.DesignError, nil, "Invalid event range [%d, %d] of %d events", start, end, s.events)
	}

	ctx, span := otel.Tracer("gfxtrace").Start(ctx, "replay.Replay", trace.WithAttributes(
		attribute.Int("start", int(start)),
		attribute.Int("end", int(end)),
		attribute.String("mode", mode.String()),
	))
	defer span.End()
	timer := prometheus.NewTimer(metrics.ReplayLatency.WithLabelValues(mode.String()))
	defer timer.ObserveDuration()

	s.phase = FullReplay
	if mode != Full || int(end) < s.events {
		s.phase = PartialReplay
	}
	defer func() {
		s.phase = Idle
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.ReplayFailures.WithLabelValues(api.KindOf(err).String()).Inc()
		}
	}()

	ctx = log.V{"start": start, "end": end, "mode": mode}.Bind(ctx)
	r := &run{Session: s, start: start, end: end, mode: mode, state: state.New()}
	err = r.run(ctx)
	s.current = r.state
	s.dirty = true
	return err
}

// run is the state of one replay.
type run struct {
	*Session
	start, end api.EventID
	mode       Mode
	parent     *instance
	state      *state.RenderState
}

func (r *run) stopped(ctx context.Context) error {
	if task.Stopped(ctx) {
		return api.Errorf(api.Cancelled, task.StopReason(ctx), "Replay stopped")
	}
	return nil
}

func (r *run) run(ctx context.Context) error {
	if err := r.idle(ctx); err != nil {
		return err
	}
	if r.start == 0 {
		if err := r.reapply(ctx); err != nil {
			return err
		}
	}
	for i := range r.ops {
		if err := r.stopped(ctx); err != nil {
			return err
		}
		o := &r.ops[i]
		var done bool
		var err error
		if o.call != nil {
			done, err = r.call(ctx, o)
		} else {
			done, err = r.submit(ctx, o)
		}
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	return r.idle(ctx)
}

// idle waits for every queue to finish its work.
func (r *run) idle(ctx context.Context) error {
	for _, q := range r.queues {
		live, ok := r.reg.LiveOf(q)
		if !ok {
			continue
		}
		f, err := r.dev.Fence(ctx, live)
		if err := r.check(ctx, err); err != nil {
			return err
		}
		if err := device.WaitFence(ctx, r.clock, f, r.cfg.FenceTimeout); err != nil {
			if api.KindOf(err).Sticky() {
				r.fatal = err
			}
			return err
		}
	}
	return nil
}

// reapply restores the initial resource contents changed by an earlier
// replay, as the optimisation level allows.
func (r *run) reapply(ctx context.Context) error {
	opt := r.cfg.Optimisation
	if !r.dirty && opt != config.NoOptimisation {
		return nil
	}
	refs := r.reg.FrameReferenced()
	for _, c := range r.initial {
		if opt >= config.Balanced && !refs[c.Resource].Writes() {
			continue
		}
		if err := r.stopped(ctx); err != nil {
			return err
		}
		if err := r.apply(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// call replays a Signal, Wait or Present. It returns true once the replay
// reached its end.
func (r *run) call(ctx context.Context, o *op) (bool, error) {
	if o.event == 0 {
		if r.mode == OnlyLast {
			return false, nil
		}
		return false, r.execute(ctx, o)
	}
	switch {
	case o.event > r.end:
		return true, nil
	case o.event < r.end:
		if r.mode == OnlyLast || o.event < r.start {
			return false, nil
		}
		return false, r.execute(ctx, o)
	}
	r.state = state.New()
	if r.mode == UpToButExcludingLast {
		return true, nil
	}
	return true, r.execute(ctx, o)
}

func (r *run) execute(ctx context.Context, o *op) error {
	ctx = log.V{"chunk": o.chunk}.Bind(ctx)
	fwd, err := r.clone(o.call)
	if err != nil {
		return err
	}
	if err := r.reg.Remap(fwd); err != nil {
		if api.Is(err, api.UnknownResource) {
			r.warn(ctx, "unknown_resource", "Skipping %s: %v", cmds.Name(o.call.Kind()), err)
			return nil
		}
		return err
	}
	return r.check(ctx, r.dev.Execute(ctx, fwd.(cmds.QueueCmd)))
}

// inside returns true if every event of in is replayed.
func (r *run) inside(in *instance) bool {
	if in.first() < r.start {
		return false
	}
	return in.last() < r.end || (in.last() == r.end && r.mode == Full)
}

// submit replays the lists of an ExecuteCommandLists. Lists wholly inside
// the replayed range are submitted baked, including a list ending on the end
// event of a full replay. A list cut by the end event is recorded again up
// to it. It returns true once the replay reached its end.
func (r *run) submit(ctx context.Context, o *op) (bool, error) {
	batch := []*instance{}
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := r.submitBaked(ctx, batch)
		batch = batch[:0]
		return err
	}
	baked := r.cfg.Optimisation != config.NoOptimisation
	for _, in := range o.submit {
		owns := in.first() <= r.end && r.end <= in.last()
		switch {
		case in.offset >= int(r.end) && !owns:
			return true, flush()
		case r.mode == OnlyLast && !owns:
			continue
		case in.last() < r.start:
			continue
		case baked && r.inside(in):
			batch = append(batch, in)
			r.track(in)
			if owns {
				return true, flush()
			}
			continue
		}
		if err := flush(); err != nil {
			return false, err
		}
		if owns {
			if r.parent != nil {
				return false, api.Errorf(api.DesignError, nil, "Lists %v and %v both hold event %d", r.parent.List, in.List, r.end)
			}
			r.parent = in
		}
		if err := r.rerecord(ctx, in); err != nil {
			return false, err
		}
		r.track(in)
		if owns {
			return true, nil
		}
	}
	return false, flush()
}

// submitBaked submits the baked device lists of batch. Each list resolves to
// its baked list through a registry replacement.
func (r *run) submitBaked(ctx context.Context, batch []*instance) error {
	queue, err := r.reg.Resolve(batch[0].queue)
	if err != nil {
		r.warn(ctx, "unknown_resource", "Skipping submission: %v", err)
		return nil
	}
	lists := make([]api.ResourceID, 0, len(batch))
	for _, in := range batch {
		r.reg.Replace(in.List, in.res)
		live, err := r.reg.Resolve(in.List)
		if err != nil {
			return err
		}
		lists = append(lists, live)
	}
	return r.check(ctx, r.dev.Submit(ctx, queue, lists))
}

// track sets the replay state to the state of in at the end event.
func (r *run) track(in *instance) {
	st := state.New()
	for _, step := range in.Steps {
		e := in.global(step.Event())
		if e == 0 || e > r.end {
			continue
		}
		if g := step.Group; g != nil {
			for i, sub := range g.Subs {
				if !sub.IsAction() && in.global(g.Node.Children[i].EventID) <= r.end {
					st.Apply(sub.Direct(), r.layouts)
				}
			}
		}
		st.Apply(step.Cmd, r.layouts)
	}
	r.state = st
}

// rerecord records the steps of in that the replay includes into a new list,
// closes the barriers and markers left open at the cut, and submits it. The
// list is released on every path.
func (r *run) rerecord(ctx context.Context, in *instance) (err error) {
	ctx = log.V{"list": in.List, "baked": in.ID}.Bind(ctx)
	live, err := r.open(ctx, in.List)
	if err != nil {
		return r.check(ctx, err)
	}
	defer func() {
		if rerr := r.dev.ReleaseList(ctx, live); rerr != nil {
			log.W(ctx, "Releasing partial list %v: %v", live, rerr)
		}
	}()

	all := in.last() < r.end || (in.last() == r.end && r.mode == Full)
	p := &partial{run: r, in: in, live: live, all: all, splits: map[api.ResourceID]cmds.Barrier{}}
	for _, st := range in.Steps {
		if err := r.stopped(ctx); err != nil {
			return err
		}
		if err := p.step(ctx, st); err != nil {
			return err
		}
	}
	p.close(ctx)
	if err := r.check(ctx, r.dev.CloseList(ctx, live)); err != nil {
		return err
	}
	queue, err := r.reg.Resolve(in.queue)
	if err != nil {
		r.warn(ctx, "unknown_resource", "Skipping submission: %v", err)
		return nil
	}
	if err := r.check(ctx, r.dev.Submit(ctx, queue, []api.ResourceID{live})); err != nil {
		return err
	}
	return r.idle(ctx)
}

// partial is a list being recorded again.
type partial struct {
	*run
	in   *instance
	live api.ResourceID
	// all is true if every event of the list is replayed.
	all    bool
	depth  int
	splits map[api.ResourceID]cmds.Barrier
}

func isMarker(c cmds.Cmd) bool {
	switch c.(type) {
	case *cmds.PushMarker, *cmds.PopMarker, *cmds.SetMarker:
		return true
	}
	return false
}

func (p *partial) includes(st record.Step) bool {
	e := p.in.global(st.Event())
	_, barrier := st.Cmd.(*cmds.ResourceBarrier)
	switch {
	case e == 0:
		return p.all
	case isMarker(st.Cmd):
		return p.mode != OnlyLast && e <= p.end
	case st.IsEvent():
		switch p.mode {
		case Full:
			return p.start <= e && e <= p.end
		case UpToButExcludingLast:
			return p.start <= e && e < p.end
		default:
			return e == p.end
		}
	case barrier && p.mode == OnlyLast:
		return false
	default:
		return e <= p.end
	}
}

func (p *partial) step(ctx context.Context, st record.Step) error {
	ctx = log.V{"chunk": st.Chunk}.Bind(ctx)
	if st.Group != nil {
		return p.group(ctx, st.Group)
	}
	if !p.includes(st) {
		return nil
	}
	if err := p.record(ctx, p.live, st.Cmd); err != nil {
		return err
	}
	switch c := st.Cmd.(type) {
	case *cmds.PushMarker:
		p.depth++
	case *cmds.PopMarker:
		if p.depth > 0 {
			p.depth--
		}
	case *cmds.ResourceBarrier:
		for _, b := range c.Barriers {
			switch b.Split {
			case cmds.BeginOnly:
				p.splits[b.Resource] = b
			case cmds.EndOnly:
				delete(p.splits, b.Resource)
			}
		}
	}
	return nil
}

// group replays the part of an ExecuteIndirect the replay includes.
func (p *partial) group(ctx context.Context, g *indirect.Group) error {
	node, last := p.in.global(g.Node.EventID), p.in.global(g.Last())
	cut := p.end - api.EventID(p.in.offset)
	var subs []indirect.SubAction
	switch {
	case node > p.end:
		return nil
	case p.mode == OnlyLast && last < p.end, last < p.start:
		subs = stateOnly(g.Subs)
	case p.mode == OnlyLast:
		subs = g.Isolate(cut)
	case last < p.end || (last == p.end && p.mode == Full):
		return p.record(ctx, p.live, g.Cmd)
	default:
		plan := g.Plan(cut)
		if p.mode == UpToButExcludingLast {
			plan = excludeLast(g, plan)
		}
		if plan.FullIterations > 0 {
			c, err := p.clone(g.Cmd)
			if err != nil {
				return err
			}
			ei := c.(*cmds.ExecuteIndirect)
			ei.MaxCount = uint32(plan.FullIterations)
			ei.Count, ei.CountOffset = api.NoResource, 0
			if err := p.record(ctx, p.live, ei); err != nil {
				return err
			}
		}
		subs = plan.Tail
	}
	for _, sub := range subs {
		if err := p.record(ctx, p.live, sub.Direct()); err != nil {
			return err
		}
	}
	return nil
}

func stateOnly(subs []indirect.SubAction) []indirect.SubAction {
	out := []indirect.SubAction{}
	for _, s := range subs {
		if !s.IsAction() {
			out = append(out, s)
		}
	}
	return out
}

// excludeLast removes the draw or dispatch at the cut from plan, keeping the
// state arguments of its iteration.
func excludeLast(g *indirect.Group, plan indirect.Plan) indirect.Plan {
	if len(plan.Tail) > 0 || plan.FullIterations == 0 {
		return plan
	}
	s := g.Signature.Slots()
	k := plan.FullIterations - 1
	return indirect.Plan{FullIterations: k, Tail: g.Subs[k*s : k*s+s-1]}
}

// close ends the marker regions and split barriers left open at the cut.
// The device may reject these calls; that is not an error.
func (p *partial) close(ctx context.Context) {
	synthetic := []cmds.ListCmd{}
	for ; p.depth > 0; p.depth-- {
		synthetic = append(synthetic, &cmds.PopMarker{})
	}
	if len(p.splits) > 0 {
		ids := make([]api.ResourceID, 0, len(p.splits))
		for id := range p.splits {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		rb := &cmds.ResourceBarrier{}
		for _, id := range ids {
			b := p.splits[id]
			b.Split = cmds.EndOnly
			rb.Barriers = append(rb.Barriers, b)
		}
		synthetic = append(synthetic, rb)
	}
	for _, c := range synthetic {
		c.SetTarget(p.in.List)
		if err := p.record(ctx, p.live, c); err != nil {
			log.W(ctx, "Closing %s at the cut: %v", cmds.Name(c.Kind()), err)
		}
	}
}
