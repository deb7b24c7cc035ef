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

// Package api holds the identifiers, flags and error types shared by the
// capture and replay sides of gfxtrace.
package api

import "fmt"

// ResourceID is the stable identifier of a trackable device object.
// Identifiers are issued once and never reused. Capture-time and replay-time
// identifiers are distinct namespaces, connected by the resource registry.
type ResourceID uint64

// NoResource is the null resource identifier.
const NoResource = ResourceID(0)

// IsValid returns true if the id is not NoResource.
func (id ResourceID) IsValid() bool { return id != NoResource }

func (id ResourceID) String() string {
	if id == NoResource {
		return "ResourceID<null>"
	}
	return fmt.Sprintf("ResourceID<%d>", uint64(id))
}

// EventID is the position of an event in the replay order. Event 0 is the
// start of the frame; the first recorded event is 1.
type EventID uint32

// ActionID is the position of an action (draw, dispatch, copy, clear,
// present) in the replay order. Markers do not have action identifiers.
type ActionID uint32

// BakedID identifies one baked instance of a command list.
// The same command list is baked once per reset.
type BakedID uint64
