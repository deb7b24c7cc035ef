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
	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
)

// DriverInit is the first chunk of every trace. It records the device
// capabilities the trace depends on.
type DriverInit struct {
	APIVersion uint32
	Caps       api.Caps
	// CaptureID is the unique identifier of the capture. Stream version 2.
	CaptureID string
}

func (*DriverInit) Kind() chunk.Kind { return KindDriverInit }

func (c *DriverInit) Encode(w *chunk.Writer) {
	w.Uint32("APIVersion", c.APIVersion)
	w.Uint64("Caps", uint64(c.Caps))
	w.String("CaptureID", c.CaptureID)
}

func (c *DriverInit) Decode(r *chunk.Reader) {
	c.APIVersion = r.Uint32("APIVersion")
	c.Caps = api.Caps(r.Uint64("Caps"))
	if r.AtLeast(2) {
		c.CaptureID = r.String("CaptureID")
	}
}

func (*DriverInit) Resources(func(*api.ResourceID, api.Access)) {}

// InitialContents holds the contents of a resource at the start of the
// captured frame.
type InitialContents struct {
	Resource api.ResourceID
	Data     []byte
}

func (*InitialContents) Kind() chunk.Kind { return KindInitialContents }

func (c *InitialContents) Encode(w *chunk.Writer) {
	w.Resource("Resource", uint64(c.Resource))
	w.Important().Bytes("Data", c.Data)
}

func (c *InitialContents) Decode(r *chunk.Reader) {
	c.Resource = api.ResourceID(r.Resource("Resource"))
	c.Data = r.Bytes("Data")
}

func (c *InitialContents) Resources(visit func(*api.ResourceID, api.Access)) {
	visit(&c.Resource, api.Write)
}

// CaptureBegin marks the start of the captured frame.
type CaptureBegin struct {
	Frame uint64
}

func (*CaptureBegin) Kind() chunk.Kind                              { return KindCaptureBegin }
func (c *CaptureBegin) Encode(w *chunk.Writer)                      { w.Uint64("Frame", c.Frame) }
func (c *CaptureBegin) Decode(r *chunk.Reader)                      { c.Frame = r.Uint64("Frame") }
func (*CaptureBegin) Resources(func(*api.ResourceID, api.Access)) {}

// CaptureEnd marks the end of the trace.
type CaptureEnd struct{}

func (*CaptureEnd) Kind() chunk.Kind                              { return KindCaptureEnd }
func (*CaptureEnd) Encode(*chunk.Writer)                          {}
func (*CaptureEnd) Decode(*chunk.Reader)                          {}
func (*CaptureEnd) Resources(func(*api.ResourceID, api.Access)) {}

// IndirectArguments holds the argument data read back from the device for one
// recorded ExecuteIndirect.
type IndirectArguments struct {
	// Baked is the baked command list the ExecuteIndirect was recorded into.
	Baked api.BakedID
	// Ordinal is the index of the ExecuteIndirect within the baked list.
	Ordinal uint32
	// Count is the number of iterations the device executed.
	Count uint32
	// Data is the argument buffer contents, MaxCount times the signature stride.
	Data []byte
}

func (*IndirectArguments) Kind() chunk.Kind { return KindIndirectArguments }

func (c *IndirectArguments) Encode(w *chunk.Writer) {
	w.Uint64("Baked", uint64(c.Baked))
	w.Uint32("Ordinal", c.Ordinal)
	w.Uint32("Count", c.Count)
	w.Important().Bytes("Data", c.Data)
}

func (c *IndirectArguments) Decode(r *chunk.Reader) {
	c.Baked = api.BakedID(r.Uint64("Baked"))
	c.Ordinal = r.Uint32("Ordinal")
	c.Count = r.Uint32("Count")
	c.Data = r.Bytes("Data")
}

func (*IndirectArguments) Resources(func(*api.ResourceID, api.Access)) {}
