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

// Package config holds the options passed through to capture and replay.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
)

// Optimisation controls how much work a replay may skip.
type Optimisation int

const (
	// NoOptimisation re-applies every initial resource content before each
	// full replay.
	NoOptimisation Optimisation = iota
	// Conservative re-applies every initial content but keeps prebaked lists.
	Conservative
	// Balanced re-applies the initial contents of resources written during
	// the frame only.
	Balanced
	// Fastest is Balanced, and also skips building the reverse resource usage
	// index.
	Fastest
)

var optimisationNames = [...]string{"none", "conservative", "balanced", "fastest"}

func (o Optimisation) String() string {
	if o < 0 || int(o) >= len(optimisationNames) {
		return fmt.Sprintf("Optimisation<%d>", int(o))
	}
	return optimisationNames[o]
}

// Set implements flag.Value.
func (o *Optimisation) Set(name string) error {
	for i, n := range optimisationNames {
		if strings.EqualFold(n, name) {
			*o = Optimisation(i)
			return nil
		}
	}
	return fmt.Errorf("Unknown optimisation level '%v'", name)
}

// Config is the set of options recognised by capture and replay.
type Config struct {
	// StoragePath is the path of the trace file.
	StoragePath string
	// Validate enables the device's validation messages during replay.
	Validate bool
	// Optimisation is the replay optimisation level.
	Optimisation Optimisation
	// FenceTimeout bounds every wait on a device fence.
	FenceTimeout time.Duration
	// MaxDiagnostics is the number of recent device messages kept for error
	// reports.
	MaxDiagnostics int
	// StorageLight elides non-important blobs and arrays from the trace.
	StorageLight bool
	// Downgrades are capabilities the replay must treat as unavailable.
	Downgrades api.Caps
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Optimisation:   Balanced,
		FenceTimeout:   10 * time.Second,
		MaxDiagnostics: 16,
	}
}

// RegisterFlags adds the configuration options to set.
func (c *Config) RegisterFlags(set *flag.FlagSet) {
	set.StringVar(&c.StoragePath, "trace", c.StoragePath, "Path of the trace file")
	set.BoolVar(&c.Validate, "validate", c.Validate, "Enable device validation messages during replay")
	set.Var(&c.Optimisation, "optimisation", "Replay optimisation level (none, conservative, balanced, fastest)")
	set.DurationVar(&c.FenceTimeout, "fence-timeout", c.FenceTimeout, "Maximum time to wait for the device")
	set.IntVar(&c.MaxDiagnostics, "max-diagnostics", c.MaxDiagnostics, "Number of device messages kept for error reports")
	set.BoolVar(&c.StorageLight, "light", c.StorageLight, "Write storage-light traces")
	set.Uint64Var((*uint64)(&c.Downgrades), "downgrade", uint64(c.Downgrades), "Bitmask of capabilities to treat as unavailable")
}

// Check returns an error if the configuration is not usable.
func (c Config) Check() error {
	if c.FenceTimeout <= 0 {
		return fmt.Errorf("Fence timeout must be positive, got %v", c.FenceTimeout)
	}
	if c.MaxDiagnostics < 0 {
		return fmt.Errorf("Diagnostic count must not be negative, got %d", c.MaxDiagnostics)
	}
	return nil
}
