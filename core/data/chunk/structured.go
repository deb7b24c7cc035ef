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

package chunk

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Element is one decoded element of a chunk.
type Element struct {
	Name      string
	Type      Type
	Important bool
	Elided    bool
	// Value holds the value of scalar, string, blob and array elements.
	Value interface{}
	// Members holds the members of a struct element.
	Members []*Element
	// Items holds the members of each item of a struct array element.
	Items [][]*Element
}

// Find returns the member with the given name, or nil.
func (e *Element) Find(name string) *Element { return find(e.Members, name) }

// Structured is the generic decoded form of a chunk, used for inspection.
type Structured struct {
	Kind     Kind
	Index    int
	Meta     Meta
	Elements []*Element
}

// Find returns the top-level element with the given name, or nil.
func (s *Structured) Find(name string) *Element { return find(s.Elements, name) }

func find(l []*Element, name string) *Element {
	for _, e := range l {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Decode decodes every element of c without knowledge of its kind.
func Decode(c *Chunk) (*Structured, error) {
	r := c.Reader()
	out := &Structured{Kind: c.Kind, Index: c.Index, Meta: c.Meta}
	out.Elements = r.elements()
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return out, nil
}

// elements decodes the remaining elements of the current scope.
func (r *Reader) elements() []*Element {
	out := []*Element{}
	for r.err == nil && r.Remaining() > 0 {
		out = append(out, r.element())
	}
	return out
}

func (r *Reader) element() *Element {
	name, ty, flags, ok := r.header()
	if !ok {
		return &Element{}
	}
	e := &Element{
		Name:      name,
		Type:      ty,
		Important: flags&flagImportant != 0,
		Elided:    flags&flagElided != 0,
	}
	if e.Elided {
		return e
	}
	switch ty {
	case TypeBool:
		e.Value = r.varint(name) != 0
	case TypeUint8:
		e.Value = uint8(r.varint(name))
	case TypeUint32:
		e.Value = uint32(r.varint(name))
	case TypeUint64, TypeResource:
		e.Value = r.varint(name)
	case TypeInt32:
		v, err := r.buf.DecodeZigzag64()
		r.check(err, name)
		e.Value = int32(v)
	case TypeInt64:
		v, err := r.buf.DecodeZigzag64()
		r.check(err, name)
		e.Value = int64(v)
	case TypeFloat32:
		e.Value = r.f32(name)
	case TypeFloat64:
		v, err := r.buf.DecodeFixed64()
		r.check(err, name)
		e.Value = math.Float64frombits(v)
	case TypeString:
		v, err := r.buf.DecodeStringBytes()
		r.check(err, name)
		e.Value = v
	case TypeBytes:
		v, err := r.buf.DecodeRawBytes(true)
		r.check(err, name)
		e.Value = v
	case TypeArray:
		e.Value = r.anyArray(name)
	case TypeStruct:
		r.nest(name, func(r *Reader) { e.Members = r.elements() })
	case TypeStructArray:
		n := r.varint(name)
		if n > MaxArrayLength || n > uint64(len(r.buf.Unread())) {
			r.fail(nil, "array %q: count %d overruns chunk", name, n)
			break
		}
		for i := uint64(0); i < n && r.err == nil; i++ {
			r.nest(name, func(r *Reader) { e.Items = append(e.Items, r.elements()) })
		}
	default:
		r.fail(nil, "element %q has unknown type %v", name, ty)
	}
	return e
}

func (r *Reader) check(err error, name string) {
	if err != nil {
		r.fail(err, "reading %q", name)
	}
}

func (r *Reader) anyArray(name string) interface{} {
	n := r.varint(name)
	ty := Type(r.varint(name))
	if r.err != nil {
		return nil
	}
	if n > MaxArrayLength || n > uint64(len(r.buf.Unread())) {
		r.fail(nil, "array %q: count %d overruns chunk", name, n)
		return nil
	}
	switch ty {
	case TypeUint32:
		out := make([]uint32, n)
		for i := range out {
			out[i] = uint32(r.varint(name))
		}
		return out
	case TypeUint64, TypeResource:
		out := make([]uint64, n)
		for i := range out {
			out[i] = r.varint(name)
		}
		return out
	case TypeFloat32:
		out := make([]float32, n)
		for i := range out {
			out[i] = r.f32(name)
		}
		return out
	default:
		r.fail(nil, "array %q has unsupported element type %v", name, ty)
		return nil
	}
}

// Print writes a human readable form of s to w.
func (s *Structured) Print(w io.Writer) {
	fmt.Fprintf(w, "#%d kind:%d", s.Index, s.Kind)
	if s.Meta.Thread != 0 {
		fmt.Fprintf(w, " thread:%d", s.Meta.Thread)
	}
	fmt.Fprintln(w)
	printElements(w, s.Elements, 1)
}

func printElements(w io.Writer, l []*Element, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range l {
		switch {
		case e.Elided:
			fmt.Fprintf(w, "%s%s %v: <elided>\n", indent, e.Name, e.Type)
		case e.Type == TypeStruct:
			fmt.Fprintf(w, "%s%s {\n", indent, e.Name)
			printElements(w, e.Members, depth+1)
			fmt.Fprintf(w, "%s}\n", indent)
		case e.Type == TypeStructArray:
			fmt.Fprintf(w, "%s%s [%d]\n", indent, e.Name, len(e.Items))
			for i, item := range e.Items {
				fmt.Fprintf(w, "%s  [%d] {\n", indent, i)
				printElements(w, item, depth+2)
				fmt.Fprintf(w, "%s  }\n", indent)
			}
		case e.Type == TypeBytes:
			fmt.Fprintf(w, "%s%s: <%d bytes>\n", indent, e.Name, len(e.Value.([]byte)))
		default:
			fmt.Fprintf(w, "%s%s: %v\n", indent, e.Name, e.Value)
		}
	}
}
