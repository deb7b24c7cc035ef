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

package app

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gfxtrace/gfxtrace/core/log"
)

// LogFlags holds the logging command line options.
type LogFlags struct {
	Level log.Severity
	Style styleFlag
}

type styleFlag struct{ log.Style }

func (s *styleFlag) Set(name string) error {
	style, ok := log.FindStyle(name)
	if !ok {
		return fmt.Errorf("Unknown log style '%v'", name)
	}
	s.Style = style
	return nil
}

func logDefaults() LogFlags {
	return LogFlags{Level: log.Info, Style: styleFlag{log.Normal}}
}

// Register adds the logging flags to set.
func (f *LogFlags) Register(set *flag.FlagSet) {
	set.Var(&f.Level, "log-level", "The severity to enable logs at")
	set.Var(&f.Style, "log-style", "The style of log output (raw, brief, normal, detailed)")
}

func prepareContext(flags *LogFlags) context.Context {
	ctx := context.Background()
	ctx = log.PutTag(ctx, Name)
	ctx = log.PutFilter(ctx, log.SeverityFilter(flags.Level))
	ctx = log.PutHandler(ctx, flags.Style.Handler(log.Stream(os.Stderr)))
	return ctx
}
