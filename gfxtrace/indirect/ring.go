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

package indirect

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
)

// Key identifies one ExecuteIndirect of one baked command list.
type Key struct {
	Baked   api.BakedID
	Ordinal uint32
}

// Region is the part of a Ring reserved for the arguments of one
// ExecuteIndirect.
type Region struct {
	Key
	Offset uint64
	Size   uint64
	// Cmd is the ExecuteIndirect whose arguments are staged.
	Cmd *cmds.ExecuteIndirect
	// Count is the number of iterations executed, once read back.
	Count uint32
	// Filled is true once the arguments have been read back.
	Filled bool
}

// Ring is a fixed size staging area the indirect arguments are copied into
// for read back. Reservations wrap around; a reservation that is overwritten
// is evicted.
type Ring struct {
	mu      sync.Mutex
	mem     []byte
	head    uint64
	regions map[Key]*Region
	order   []*Region
}

// NewRing returns a ring of size bytes.
func NewRing(size uint64) *Ring {
	return &Ring{mem: make([]byte, size), regions: map[Key]*Region{}}
}

// Reserve reserves space for the arguments of c, MaxCount iterations of
// stride bytes. A reservation already held for key is replaced, so the last
// execution of a baked list wins: submissions of one baked list share its
// action tree, which shows the arguments of the last. It returns the keys of any reservations
// the new one evicted.
func (r *Ring) Reserve(key Key, c *cmds.ExecuteIndirect, stride uint32) (*Region, []Key, error) {
	size := uint64(c.MaxCount) * uint64(stride)
	r.mu.Lock()
	defer r.mu.Unlock()
	if size > uint64(len(r.mem)) {
		return nil, nil, errors.Errorf("Indirect arguments of %d bytes do not fit the %d byte staging ring", size, len(r.mem))
	}
	r.drop(key)
	if r.head+size > uint64(len(r.mem)) {
		r.head = 0
	}
	evicted := []Key{}
	for _, o := range append([]*Region(nil), r.order...) {
		if o.Offset < r.head+size && r.head < o.Offset+o.Size {
			r.drop(o.Key)
			evicted = append(evicted, o.Key)
		}
	}
	reg := &Region{Key: key, Offset: r.head, Size: size, Cmd: c}
	r.head += size
	r.regions[key] = reg
	r.order = append(r.order, reg)
	return reg, evicted, nil
}

func (r *Ring) drop(key Key) {
	reg, ok := r.regions[key]
	if !ok {
		return
	}
	delete(r.regions, key)
	for i, o := range r.order {
		if o == reg {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Fill copies the read back arguments into the region and records the
// executed iteration count.
func (r *Ring) Fill(reg *Region, data []byte, count uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := copy(r.mem[reg.Offset:reg.Offset+reg.Size], data)
	for i := reg.Offset + uint64(n); i < reg.Offset+reg.Size; i++ {
		r.mem[i] = 0
	}
	reg.Count = count
	reg.Filled = true
}

// Regions returns every live reservation, ordered by key.
func (r *Ring) Regions() []*Region {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Region, 0, len(r.regions))
	for _, reg := range r.regions {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Baked != b.Baked {
			return a.Baked < b.Baked
		}
		return a.Ordinal < b.Ordinal
	})
	return out
}

// Staged returns the arguments held for key, if they were read back.
func (r *Ring) Staged(key Key) (*cmds.IndirectArguments, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regions[key]
	if !ok || !reg.Filled {
		return nil, false
	}
	return r.arguments(reg), true
}

// Arguments returns the IndirectArguments chunk for a filled region.
func (r *Ring) Arguments(reg *Region) *cmds.IndirectArguments {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.arguments(reg)
}

func (r *Ring) arguments(reg *Region) *cmds.IndirectArguments {
	return &cmds.IndirectArguments{
		Baked:   reg.Baked,
		Ordinal: reg.Ordinal,
		Count:   reg.Count,
		Data:    append([]byte(nil), r.mem[reg.Offset:reg.Offset+reg.Size]...),
	}
}

// Reset drops every reservation.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.regions = map[Key]*Region{}
	r.order = nil
}
