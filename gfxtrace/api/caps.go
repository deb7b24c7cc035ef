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

import "github.com/gogpu/gputypes"

// Caps is the set of optional device capabilities a trace depends on.
type Caps = gputypes.Features

// Unsupported returns the capabilities in required that are not in available.
func Unsupported(required, available Caps) Caps {
	return required &^ available
}

// CapNames returns the names of the capabilities in c.
func CapNames(c Caps) []string {
	out := []string{}
	for bit := uint(0); bit < 64; bit++ {
		f := gputypes.Feature(1) << bit
		if c.Contains(f) {
			out = append(out, f.String())
		}
	}
	return out
}
