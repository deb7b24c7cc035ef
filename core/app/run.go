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

// Package app provides the common entry point of the gfxtrace binaries.
package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gfxtrace/gfxtrace/core/event/task"
	"github.com/gfxtrace/gfxtrace/core/log"
)

// ExitCode is the type for named return values from the application main entry point.
type ExitCode int

const (
	// SuccessExit is the exit code for succesful exit.
	SuccessExit ExitCode = iota
	// FatalExit is the exit code if the main task failed.
	FatalExit
	// UsageExit is the exit code if the usage function was invoked.
	UsageExit
)

var (
	// Name is the full name of the application.
	Name = filepath.Base(os.Args[0])
	// ShortHelp should be set to add a help message to the usage text.
	ShortHelp = ""
	// ShortUsage is usage text for the additional non-flag arguments.
	ShortUsage = ""
	// ExitFuncForTesting can be set to change the behaviour on exit.
	// It defaults to os.Exit.
	ExitFuncForTesting = os.Exit
)

// Run parses the command line, builds the root context and runs main.
// The context is cancelled on SIGINT or SIGTERM. If main fails the error is
// logged and the process exits with FatalExit.
func Run(main task.Task) {
	flags := logDefaults()
	flags.Register(flag.CommandLine)
	flag.CommandLine.Usage = Usage
	flag.Parse()

	ctx, cancel := task.WithCancel(prepareContext(&flags))
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signals:
			log.W(ctx, "Stopping on signal %v", sig)
			cancel()
		case <-task.ShouldStop(ctx):
		}
	}()

	if err := main(ctx); err != nil {
		log.From(ctx).Logf(log.Fatal, false, "Main failed\nError: %v", err)
		cancel()
		ExitFuncForTesting(int(FatalExit))
	}
}

// Usage prints the usage text of the application.
func Usage() {
	out := flag.CommandLine.Output()
	if ShortHelp != "" {
		fmt.Fprintln(out, ShortHelp)
	}
	fmt.Fprintf(out, "Usage: %s [flags] %s\n", Name, ShortUsage)
	flag.PrintDefaults()
}

// UsageError prints msg followed by the usage text and exits.
func UsageError(ctx context.Context, msg string, args ...interface{}) {
	fmt.Fprintf(flag.CommandLine.Output(), msg+"\n", args...)
	Usage()
	ExitFuncForTesting(int(UsageExit))
}
