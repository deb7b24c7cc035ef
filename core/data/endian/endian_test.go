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

package endian_test

import (
	"bytes"
	eb "encoding/binary"
	"io"
	"testing"

	"github.com/pkg/errors"

	"github.com/gfxtrace/gfxtrace/core/assert"
	"github.com/gfxtrace/gfxtrace/core/data/binary"
	"github.com/gfxtrace/gfxtrace/core/data/endian"
	"github.com/gfxtrace/gfxtrace/core/log"
)

func TestReadWrite(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := endian.Writer(buf, eb.LittleEndian)
	w.Uint32(0x11223344)
	w.Uint64(0x0102030405060708)
	w.Bool(true)
	w.Int32(-5)
	w.Float32(1.5)
	w.Float64(-2.25)
	assert.For(ctx, "write err").ThatError(w.Error()).Succeeded()
	assert.For(ctx, "first bytes").ThatSlice(buf.Bytes()[:4]).Equals([]byte{0x44, 0x33, 0x22, 0x11})

	r := endian.Reader(bytes.NewReader(buf.Bytes()), eb.LittleEndian)
	assert.For(ctx, "u32").That(r.Uint32()).Equals(uint32(0x11223344))
	assert.For(ctx, "u64").That(r.Uint64()).Equals(uint64(0x0102030405060708))
	assert.For(ctx, "bool").That(r.Bool()).Equals(true)
	assert.For(ctx, "i32").That(r.Int32()).Equals(int32(-5))
	assert.For(ctx, "f32").That(r.Float32()).Equals(float32(1.5))
	assert.For(ctx, "f64").That(r.Float64()).Equals(float64(-2.25))
	assert.For(ctx, "read err").ThatError(r.Error()).Succeeded()
}

func TestShortRead(t *testing.T) {
	ctx := log.Testing(t)
	r := endian.Reader(bytes.NewReader([]byte{1, 2}), eb.LittleEndian)
	assert.For(ctx, "value").That(r.Uint32()).Equals(uint32(0))
	assert.For(ctx, "err").ThatError(errors.Cause(r.Error())).Equals(io.ErrUnexpectedEOF)
	assert.For(ctx, "sticky").That(r.Uint8()).Equals(uint8(0))
}

func TestSkip(t *testing.T) {
	ctx := log.Testing(t)
	data := make([]byte, 1000)
	data[999] = 7
	r := endian.Reader(bytes.NewReader(data), eb.LittleEndian)
	binary.Skip(r, 999)
	assert.For(ctx, "last").That(r.Uint8()).Equals(uint8(7))
}
