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

package cmds

import (
	"fmt"

	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
)

// Flags returns the action flags of the event c produces. Calls that only
// change state return zero.
func Flags(c Cmd) api.ActionFlags {
	switch c.(type) {
	case *Draw:
		return api.Draw
	case *DrawIndexed:
		return api.Draw | api.Indexed
	case *Dispatch:
		return api.Dispatch
	case *CopyBuffer:
		return api.Copy
	case *ClearRenderTarget, *ClearDepthStencil:
		return api.Clear
	case *ExecuteIndirect:
		return api.MultiAction | api.Indirect
	case *PushMarker:
		return api.PushMarker
	case *SetMarker:
		return api.SetMarker
	case *Present:
		return api.Present
	default:
		return 0
	}
}

// IsEvent returns true if c consumes an event identifier. Actions and marker
// calls do; state changes are folded into the event that follows them.
func IsEvent(c Cmd) bool {
	if _, ok := c.(*PopMarker); ok {
		return true
	}
	return Flags(c) != 0
}

// Describe returns the display name of the event c produces.
func Describe(c Cmd) string {
	switch c := c.(type) {
	case *Draw:
		return fmt.Sprintf("Draw(%d, %d)", c.VertexCount, c.InstanceCount)
	case *DrawIndexed:
		return fmt.Sprintf("DrawIndexed(%d, %d)", c.IndexCount, c.InstanceCount)
	case *Dispatch:
		return fmt.Sprintf("Dispatch(%d, %d, %d)", c.X, c.Y, c.Z)
	case *CopyBuffer:
		return fmt.Sprintf("CopyBuffer(%v, %v, %d)", c.Dst, c.Src, c.Size)
	case *ClearRenderTarget:
		return fmt.Sprintf("ClearRenderTarget(%v, %v)", c.View, c.Color)
	case *ClearDepthStencil:
		return fmt.Sprintf("ClearDepthStencil(%v, %g, %d)", c.View, c.Depth, c.Stencil)
	case *ExecuteIndirect:
		return fmt.Sprintf("ExecuteIndirect(<%d>)", c.MaxCount)
	case *PushMarker:
		return c.Name
	case *SetMarker:
		return c.Name
	case *PopMarker:
		return "PopMarker()"
	case *Present:
		return fmt.Sprintf("Present(%v)", c.Image)
	default:
		return Name(c.Kind()) + "()"
	}
}
