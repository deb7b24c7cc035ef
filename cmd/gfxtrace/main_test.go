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

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/gfxtrace/gfxtrace/core/assert"
	"github.com/gfxtrace/gfxtrace/core/data/section"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
	"github.com/gfxtrace/gfxtrace/gfxtrace/device/sim"
	"github.com/gfxtrace/gfxtrace/gfxtrace/replay"
)

func TestDemo(t *testing.T) {
	ctx := log.Testing(t)
	cfg.StoragePath = filepath.Join(t.TempDir(), "demo.gfxtrace")
	assert.For(ctx, "demo").ThatError(writeDemo(ctx, cfg.StoragePath)).Succeeded()

	in, err := section.Open(cfg.StoragePath)
	assert.For(ctx, "open").ThatError(err).Succeeded()
	defer in.Close()
	buf := &bytes.Buffer{}
	s, err := readSummary(ctx, in, true, buf)
	assert.For(ctx, "summary").ThatError(err).Succeeded()
	assert.For(ctx, "driver init").That(s[cmds.KindDriverInit]).Equals(1)
	assert.For(ctx, "lists").That(s[cmds.KindCreateCommandList]).Equals(2)
	assert.For(ctx, "draws").That(s[cmds.KindDraw]).Equals(1)
	assert.For(ctx, "staged arguments").That(s[cmds.KindIndirectArguments]).Equals(1)
	assert.For(ctx, "end").That(s[cmds.KindCaptureEnd]).Equals(1)
	assert.For(ctx, "printed").That(buf.Len() > 0).Equals(true)

	err = withSession(ctx, func(ctx context.Context, s *replay.Session, dev *sim.Device) error {
		assert.For(ctx, "events").That(s.EventCount()).Equals(10)
		assert.For(ctx, "actions").That(s.ActionCount()).Equals(6)
		if err := s.Replay(ctx, 0, 0, replay.Full); err != nil {
			return err
		}
		draws, indirect := 0, 0
		for _, e := range dev.Executed() {
			if _, ok := e.Cmd.(*cmds.Draw); ok {
				draws++
				if e.Indirect {
					indirect++
				}
			}
		}
		assert.For(ctx, "draws").That(draws).Equals(3)
		assert.For(ctx, "indirect draws").That(indirect).Equals(2)
		return nil
	})
	assert.For(ctx, "replay").ThatError(err).Succeeded()
}

func TestSummaryList(t *testing.T) {
	ctx := log.Testing(t)
	s := Summary{}
	s.Add(cmds.KindDraw)
	s.Add(cmds.KindCopyBuffer)
	s.Add(cmds.KindDraw)
	assert.For(ctx, "list").ThatSlice(s.List()).Equals(SummaryList{
		{Name: "CopyBuffer", Count: 1},
		{Name: "Draw", Count: 2},
	})
}
