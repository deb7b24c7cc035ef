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

package api

// UsageKind describes how an action touches a resource.
type UsageKind uint8

const (
	UsageVertexBuffer UsageKind = iota + 1
	UsageIndexBuffer
	UsageConstants
	UsageShaderResource
	UsageUnorderedAccess
	UsageColorTarget
	UsageDepthTarget
	UsageIndirectArgs
	UsageCopySource
	UsageCopyDest
	UsageClear
	UsagePresent
	UsageBarrier
)

var usageNames = map[UsageKind]string{
	UsageVertexBuffer:    "VertexBuffer",
	UsageIndexBuffer:     "IndexBuffer",
	UsageConstants:       "Constants",
	UsageShaderResource:  "ShaderResource",
	UsageUnorderedAccess: "UnorderedAccess",
	UsageColorTarget:     "ColorTarget",
	UsageDepthTarget:     "DepthTarget",
	UsageIndirectArgs:    "IndirectArgs",
	UsageCopySource:      "CopySource",
	UsageCopyDest:        "CopyDest",
	UsageClear:           "Clear",
	UsagePresent:         "Present",
	UsageBarrier:         "Barrier",
}

func (u UsageKind) String() string {
	if n, ok := usageNames[u]; ok {
		return n
	}
	return "Unknown"
}

// Access returns the kind of access a usage implies.
func (u UsageKind) Access() Access {
	switch u {
	case UsageUnorderedAccess:
		return ReadBeforeWrite
	case UsageColorTarget, UsageDepthTarget, UsageCopyDest:
		return PartialWrite
	case UsageClear:
		return Write
	default:
		return Read
	}
}

// ResourceUsage is a resource touched by an action.
type ResourceUsage struct {
	Resource ResourceID
	Usage    UsageKind
}

// EventUsage is one use of a resource by an event.
type EventUsage struct {
	Event EventID
	Usage UsageKind
}

// Access is the way a resource was referenced during a captured frame.
// It decides whether the resource's contents at the start of the frame must
// be stored in the trace.
type Access uint8

const (
	// NoAccess means the resource was not referenced.
	NoAccess Access = iota
	// Read means the resource was only read.
	Read
	// PartialWrite means part of the resource was written before any read.
	PartialWrite
	// Write means the whole resource was overwritten before any read.
	Write
	// ReadBeforeWrite means the resource was read and then written.
	ReadBeforeWrite
)

var accessNames = [...]string{"None", "Read", "PartialWrite", "Write", "ReadBeforeWrite"}

func (a Access) String() string {
	if int(a) < len(accessNames) {
		return accessNames[a]
	}
	return "Unknown"
}

// Compose returns the access of a resource first referenced with a and then
// with next.
func (a Access) Compose(next Access) Access {
	switch {
	case a == NoAccess:
		return next
	case next == NoAccess:
		return a
	case a == Write, a == ReadBeforeWrite:
		// The first complete write or read-then-write decides.
		return a
	case a == Read:
		if next == Read {
			return Read
		}
		return ReadBeforeWrite
	default: // PartialWrite
		if next == ReadBeforeWrite {
			return ReadBeforeWrite
		}
		return PartialWrite
	}
}

// NeedsInitialContents returns true if the resource's contents at the start
// of the frame are observable.
func (a Access) NeedsInitialContents() bool {
	return a != NoAccess && a != Write
}

// Writes returns true if the resource is modified during the frame.
func (a Access) Writes() bool {
	return a == PartialWrite || a == Write || a == ReadBeforeWrite
}
