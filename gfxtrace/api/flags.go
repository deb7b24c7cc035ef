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

import "strings"

// ActionFlags is a bitfield describing characteristics of an action node.
type ActionFlags uint32

const (
	Draw ActionFlags = 1 << iota
	Dispatch
	Copy
	Clear
	PushMarker
	SetMarker
	Present
	Indirect
	Indexed
	MultiAction
	IndirectState
)

var flagNames = []string{
	"Draw", "Dispatch", "Copy", "Clear", "PushMarker", "SetMarker", "Present",
	"Indirect", "Indexed", "MultiAction", "IndirectState",
}

// IsDraw returns true if the node is a draw call.
func (f ActionFlags) IsDraw() bool { return (f & Draw) != 0 }

// IsDispatch returns true if the node is a compute dispatch.
func (f ActionFlags) IsDispatch() bool { return (f & Dispatch) != 0 }

// IsMarker returns true if the node is a marker region or a single marker.
func (f ActionFlags) IsMarker() bool { return (f & (PushMarker | SetMarker)) != 0 }

// IsAction returns true if the node consumes an action identifier.
// Multi-action groups do not; their children do.
func (f ActionFlags) IsAction() bool {
	return (f&(Draw|Dispatch|Copy|Clear|Present)) != 0 && (f&(IndirectState|MultiAction)) == 0
}

// IsIndirectState returns true if the node is a state-setting step of an
// indirect execution.
func (f ActionFlags) IsIndirectState() bool { return (f & IndirectState) != 0 }

func (f ActionFlags) String() string {
	if f == 0 {
		return "None"
	}
	parts := []string{}
	for i, n := range flagNames {
		if f&(1<<uint(i)) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}
