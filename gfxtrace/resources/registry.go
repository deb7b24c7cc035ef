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

// Package resources implements the identity registry shared by capture and
// replay.
//
// Every device object gets a ResourceID when it is created. At replay the
// objects are recreated and the registry binds each capture-time id (the
// original) to the id of the recreated object (the live id).
package resources

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
)

// maxReplacementDepth bounds the chain of replacements Resolve follows.
const maxReplacementDepth = 64

// LocalBase is the first identifier handed out by AllocateLocal. Identifiers
// recorded in a trace are below it.
const LocalBase = api.ResourceID(1 << 62)

// Registry maps resource identifiers to live objects. It is safe for
// concurrent use. Its lock is never held while calling out of the package.
type Registry struct {
	next  uint64
	local uint64

	mu           sync.Mutex
	live         map[api.ResourceID]api.ResourceID
	original     map[api.ResourceID]api.ResourceID
	replacements map[api.ResourceID]api.ResourceID
	referenced   map[api.ResourceID]api.Access
	parents      map[api.ResourceID][]api.ResourceID
	children     map[api.ResourceID][]api.ResourceID
	contents     map[api.ResourceID][]byte
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.live = map[api.ResourceID]api.ResourceID{}
	r.original = map[api.ResourceID]api.ResourceID{}
	r.replacements = map[api.ResourceID]api.ResourceID{}
	r.referenced = map[api.ResourceID]api.Access{}
	r.parents = map[api.ResourceID][]api.ResourceID{}
	r.children = map[api.ResourceID][]api.ResourceID{}
	r.contents = map[api.ResourceID][]byte{}
}

// Allocate returns a new identifier. Identifiers are never reused.
func (r *Registry) Allocate() api.ResourceID {
	return api.ResourceID(atomic.AddUint64(&r.next, 1))
}

// AllocateLocal returns a new identifier for an object that only exists
// while replaying, such as a prepared command list. It never equals an
// identifier returned by Allocate or read from a trace.
func (r *Registry) AllocateLocal() api.ResourceID {
	return LocalBase + api.ResourceID(atomic.AddUint64(&r.local, 1))
}

// IsLocal returns true if id was returned by AllocateLocal.
func IsLocal(id api.ResourceID) bool { return id >= LocalBase }

// RegisterLive binds the live object live to the identifier original had at
// capture.
func (r *Registry) RegisterLive(original, live api.ResourceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.live[original]; ok {
		return api.Errorf(api.DuplicateBinding, nil, "%v is already bound to %v", original, old)
	}
	r.live[original] = live
	r.original[live] = original
	return nil
}

// Resolve returns the live object bound to id, after following any
// replacement of id.
func (r *Registry) Resolve(id api.ResourceID) (api.ResourceID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, err := r.follow(id)
	if err != nil {
		return api.NoResource, err
	}
	live, ok := r.live[target]
	if !ok {
		return api.NoResource, api.Errorf(api.UnknownResource, nil, "%v is not bound", target)
	}
	return live, nil
}

func (r *Registry) follow(id api.ResourceID) (api.ResourceID, error) {
	for i := 0; i < maxReplacementDepth; i++ {
		next, ok := r.replacements[id]
		if !ok {
			return id, nil
		}
		id = next
	}
	return api.NoResource, api.Errorf(api.Internal, nil, "Replacement chain of %v does not end", id)
}

// Remap replaces every identifier c refers to with the live object it
// resolves to. The identifier a creation call creates is left as is.
// Remap fails at the first identifier that does not resolve, leaving c
// partially remapped.
func (r *Registry) Remap(c cmds.Cmd) error {
	created := api.NoResource
	if cr, ok := c.(cmds.Creator); ok {
		created = cr.Created()
	}
	var err error
	c.Resources(func(id *api.ResourceID, _ api.Access) {
		if err != nil || !id.IsValid() || *id == created {
			return
		}
		live, e := r.Resolve(*id)
		if e != nil {
			err = e
			return
		}
		*id = live
	})
	return err
}

// OriginalOf returns the capture-time identifier of the live object.
func (r *Registry) OriginalOf(live api.ResourceID) (api.ResourceID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.original[live]
	return id, ok
}

// LiveOf returns the live object bound to original, ignoring replacements.
func (r *Registry) LiveOf(original api.ResourceID) (api.ResourceID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.live[original]
	return id, ok
}

// Replace makes id resolve to whatever with resolves to.
func (r *Registry) Replace(id, with api.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replacements[id] = with
}

// RemoveReplacement undoes Replace.
func (r *Registry) RemoveReplacement(id api.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.replacements, id)
}

// MarkFrameReferenced records that the frame accessed id.
func (r *Registry) MarkFrameReferenced(id api.ResourceID, access api.Access) {
	if !id.IsValid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referenced[id] = r.referenced[id].Compose(access)
}

// FrameReferenced returns how the frame accessed every referenced resource.
func (r *Registry) FrameReferenced() map[api.ResourceID]api.Access {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[api.ResourceID]api.Access, len(r.referenced))
	for id, a := range r.referenced {
		out[id] = a
	}
	return out
}

// ClearFrameReferences forgets every frame reference.
func (r *Registry) ClearFrameReferences() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referenced = map[api.ResourceID]api.Access{}
}

// AddParent records that child was derived from parent. The link is only
// informational.
func (r *Registry) AddParent(child, parent api.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parents[child] = appendUnique(r.parents[child], parent)
	r.children[parent] = appendUnique(r.children[parent], child)
}

// Parents returns the resources id was derived from.
func (r *Registry) Parents(id api.ResourceID) []api.ResourceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sorted(r.parents[id])
}

// Children returns the resources derived from id.
func (r *Registry) Children(id api.ResourceID) []api.ResourceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sorted(r.children[id])
}

// SetInitialContents stores the contents of id at the start of the frame.
func (r *Registry) SetInitialContents(id api.ResourceID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents[id] = data
}

// InitialContents returns the stored contents of id.
func (r *Registry) InitialContents(id api.ResourceID) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.contents[id]
	return data, ok
}

// Release purges every record of id.
func (r *Registry) Release(id api.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if live, ok := r.live[id]; ok {
		delete(r.original, live)
		delete(r.live, id)
	}
	delete(r.replacements, id)
	delete(r.referenced, id)
	delete(r.contents, id)
	for _, p := range r.parents[id] {
		r.children[p] = remove(r.children[p], id)
	}
	for _, c := range r.children[id] {
		r.parents[c] = remove(r.parents[c], id)
	}
	delete(r.parents, id)
	delete(r.children, id)
}

// Reset forgets every binding, replacement and record. Identifiers already
// allocated stay allocated.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func appendUnique(l []api.ResourceID, id api.ResourceID) []api.ResourceID {
	for _, e := range l {
		if e == id {
			return l
		}
	}
	return append(l, id)
}

func remove(l []api.ResourceID, id api.ResourceID) []api.ResourceID {
	out := l[:0]
	for _, e := range l {
		if e != id {
			out = append(out, e)
		}
	}
	return out
}

func sorted(l []api.ResourceID) []api.ResourceID {
	out := append([]api.ResourceID{}, l...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
