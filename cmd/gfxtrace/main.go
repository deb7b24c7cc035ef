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

// The gfxtrace command captures a demonstration frame, inspects traces and
// replays them on the simulated device.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gfxtrace/gfxtrace/core/app"
	"github.com/gfxtrace/gfxtrace/core/data/section"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/action"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/config"
	"github.com/gfxtrace/gfxtrace/gfxtrace/device/sim"
	"github.com/gfxtrace/gfxtrace/gfxtrace/replay"
)

var (
	cfg     = config.Default()
	start   uint64
	end     uint64
	mode    replay.Mode
	verbose bool
)

// simCaps are the capabilities of the simulated replay device.
var simCaps = api.Caps(gputypes.FeatureMultiDrawIndirect | gputypes.FeatureMultiDrawIndirectCount)

func main() {
	app.ShortHelp = "gfxtrace captures, inspects and replays frame traces."
	app.ShortUsage = "demo | summary | tree | replay"
	cfg.RegisterFlags(flag.CommandLine)
	flag.Uint64Var(&start, "start", 0, "First event to replay")
	flag.Uint64Var(&end, "event", 0, "Event to replay to, 0 for the whole frame")
	flag.Var(&mode, "mode", "Replay mode (full, up-to, only-last)")
	flag.BoolVar(&verbose, "v", false, "Print every chunk in full")
	app.Run(run)
}

func run(ctx context.Context) error {
	args := flag.Args()
	if len(args) != 1 {
		app.UsageError(ctx, "Expected 1 verb, got %d", len(args))
		return nil
	}
	if cfg.StoragePath == "" {
		app.UsageError(ctx, "No trace file given")
		return nil
	}
	ctx = log.V{"trace": cfg.StoragePath}.Bind(ctx)
	switch args[0] {
	case "demo":
		return writeDemo(ctx, cfg.StoragePath)
	case "summary":
		return summarise(ctx, cfg.StoragePath, verbose)
	case "tree":
		return withSession(ctx, printTree)
	case "replay":
		return withSession(ctx, replayTo)
	default:
		app.UsageError(ctx, "Unknown verb '%v'", args[0])
		return nil
	}
}

// withSession loads the trace onto a new simulated device and calls f.
func withSession(ctx context.Context, f func(context.Context, *replay.Session, *sim.Device) error) error {
	in, err := section.Open(cfg.StoragePath)
	if err != nil {
		return log.Err(ctx, err, "Unable to open trace")
	}
	defer in.Close()
	dev := sim.New(simCaps)
	s, err := replay.Load(ctx, in, dev, cfg)
	if err != nil {
		return log.Err(ctx, err, "Unable to load trace")
	}
	defer s.Close(ctx)
	for _, w := range s.Warnings() {
		log.W(ctx, "%s", w)
	}
	return f(ctx, s, dev)
}

func printTree(ctx context.Context, s *replay.Session, dev *sim.Device) error {
	fmt.Fprintf(os.Stdout, "Capture %s: %d events, %d actions\n", s.CaptureID(), s.EventCount(), s.ActionCount())
	return action.Walk(s.ActionTree(), func(n *action.Node, depth int) error {
		if depth == 0 {
			return nil
		}
		fmt.Fprintf(os.Stdout, "%*s%v\n", 2*(depth-1), "", n)
		return nil
	})
}

func replayTo(ctx context.Context, s *replay.Session, dev *sim.Device) error {
	if err := s.Replay(ctx, api.EventID(start), api.EventID(end), mode); err != nil {
		return log.Err(ctx, err, "Replay failed")
	}
	calls := Summary{}
	for _, e := range dev.Executed() {
		calls.Add(e.Cmd.Kind())
	}
	fmt.Fprintf(os.Stdout, "Executed:\n%v", calls)
	st := s.State()
	fmt.Fprintf(os.Stdout, "Pipeline: %v\nTopology: %v\nRender targets: %v\n", st.Pipeline, st.Topology, st.RenderTargets)
	return nil
}
