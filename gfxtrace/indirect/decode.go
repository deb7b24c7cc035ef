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
	"bytes"
	eb "encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gfxtrace/gfxtrace/core/data/endian"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
)

// SubAction is one argument of one iteration of an ExecuteIndirect.
type SubAction struct {
	Iteration int
	Slot      int
	Arg       cmds.IndirectArg
	cmd       cmds.ListCmd
}

// IsAction returns true if the sub-action is a draw or dispatch.
func (s SubAction) IsAction() bool { return s.Arg.Kind.IsAction() }

// Direct returns the direct call equivalent to the sub-action.
func (s SubAction) Direct() cmds.ListCmd { return s.cmd }

func (s SubAction) String() string {
	return fmt.Sprintf("[%d.%d] %s", s.Iteration, s.Slot, cmds.Describe(s.cmd))
}

// Decode decodes count iterations of sig from data. The decoded calls are
// recorded into list.
//
// Decoding stops at the first argument that does not fit in data; the
// sub-actions decoded so far are returned with a DataCorruption error.
func Decode(sig Signature, list api.ResourceID, data []byte, count int) ([]SubAction, error) {
	out := make([]SubAction, 0, count*sig.Slots())
	for i := 0; i < count; i++ {
		off := uint64(i) * uint64(sig.Stride)
		for j, a := range sig.Args {
			size := ArgSize(a)
			if end := off + size; end > uint64(len(data)) {
				return out, api.Errorf(api.DataCorruption, nil,
					"Argument %d of iteration %d ends at byte %d of %d", j, i, end, len(data))
			}
			cmd := decodeArg(a, sig.Compute(), data[off:off+size])
			cmd.SetTarget(list)
			out = append(out, SubAction{Iteration: i, Slot: j, Arg: a, cmd: cmd})
			off += size
		}
	}
	return out, nil
}

func decodeArg(a cmds.IndirectArg, compute bool, data []byte) cmds.ListCmd {
	r := endian.Reader(bytes.NewReader(data), eb.LittleEndian)
	switch a.Kind {
	case ArgDraw:
		return &cmds.Draw{
			VertexCount:   r.Uint32(),
			InstanceCount: r.Uint32(),
			FirstVertex:   r.Uint32(),
			FirstInstance: r.Uint32(),
		}
	case ArgDrawIndexed:
		return &cmds.DrawIndexed{
			IndexCount:    r.Uint32(),
			InstanceCount: r.Uint32(),
			FirstIndex:    r.Uint32(),
			BaseVertex:    r.Int32(),
			FirstInstance: r.Uint32(),
		}
	case ArgDispatch:
		return &cmds.Dispatch{X: r.Uint32(), Y: r.Uint32(), Z: r.Uint32()}
	case ArgVertexBuffer:
		v := cmds.VertexView{Buffer: api.ResourceID(r.Uint64()), Size: r.Uint32(), Stride: r.Uint32()}
		return &cmds.SetVertexBuffers{Start: a.Slot, Views: []cmds.VertexView{v}}
	case ArgIndexBuffer:
		v := cmds.IndexView{Buffer: api.ResourceID(r.Uint64()), Size: r.Uint32()}
		v.Format = gputypes.IndexFormat(r.Uint32())
		return &cmds.SetIndexBuffer{View: v}
	case ArgConstant:
		values := make([]uint32, a.Count)
		for i := range values {
			values[i] = r.Uint32()
		}
		return &cmds.SetRootConstants{Compute: compute, Slot: a.Slot, Values: values}
	default:
		view := cmds.ParamConstantBuffer
		switch a.Kind {
		case ArgShaderResource:
			view = cmds.ParamShaderResource
		case ArgUnorderedAccess:
			view = cmds.ParamUnorderedAccess
		}
		return &cmds.SetRootView{Compute: compute, Slot: a.Slot, View: view, Buffer: api.ResourceID(r.Uint64())}
	}
}

// Encode appends the argument data of one iteration to buf. values holds the
// direct calls of each argument of sig, in order.
func Encode(buf []byte, sig Signature, values []cmds.Cmd) []byte {
	b := &bytes.Buffer{}
	w := endian.Writer(b, eb.LittleEndian)
	for i, a := range sig.Args {
		switch c := values[i].(type) {
		case *cmds.Draw:
			w.Uint32(c.VertexCount)
			w.Uint32(c.InstanceCount)
			w.Uint32(c.FirstVertex)
			w.Uint32(c.FirstInstance)
		case *cmds.DrawIndexed:
			w.Uint32(c.IndexCount)
			w.Uint32(c.InstanceCount)
			w.Uint32(c.FirstIndex)
			w.Int32(c.BaseVertex)
			w.Uint32(c.FirstInstance)
		case *cmds.Dispatch:
			w.Uint32(c.X)
			w.Uint32(c.Y)
			w.Uint32(c.Z)
		case *cmds.SetVertexBuffers:
			w.Uint64(uint64(c.Views[0].Buffer))
			w.Uint32(c.Views[0].Size)
			w.Uint32(c.Views[0].Stride)
		case *cmds.SetIndexBuffer:
			w.Uint64(uint64(c.View.Buffer))
			w.Uint32(c.View.Size)
			w.Uint32(uint32(c.View.Format))
		case *cmds.SetRootConstants:
			for j := 0; j < int(a.Count); j++ {
				v := uint32(0)
				if j < len(c.Values) {
					v = c.Values[j]
				}
				w.Uint32(v)
			}
		case *cmds.SetRootView:
			w.Uint64(uint64(c.Buffer))
		}
	}
	if n := int(sig.Stride) - b.Len(); n > 0 {
		w.Data(make([]byte, n))
	}
	return append(buf, b.Bytes()...)
}
