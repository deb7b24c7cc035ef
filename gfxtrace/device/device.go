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

// Package device defines the boundary between the trace engine and the
// graphics device. Every call the engine replays goes through a Device.
package device

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/gfxtrace/gfxtrace/core/event/task"
	"github.com/gfxtrace/gfxtrace/gfxtrace/api"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
)

// Fence is a point in a queue's work. It signals once every call submitted
// before it has completed.
type Fence interface {
	Signaled() <-chan struct{}
}

// Device replays calls on a real or simulated graphics device.
//
// Identifiers passed to a Device are live identifiers: the ones it returned
// from Create or OpenList. Calls passed to Record and Execute have already
// been remapped to live identifiers.
type Device interface {
	// Caps returns the capabilities of the device.
	Caps() api.Caps
	// Create creates the object described by c and returns its identifier.
	Create(ctx context.Context, c cmds.Creator) (api.ResourceID, error)
	// InitialContents overwrites the contents of a buffer or texture.
	InitialContents(ctx context.Context, id api.ResourceID, data []byte) error
	// OpenList returns a new open command list backed by allocator.
	OpenList(ctx context.Context, allocator api.ResourceID) (api.ResourceID, error)
	// Record appends c to the open list.
	Record(ctx context.Context, list api.ResourceID, c cmds.ListCmd) error
	// CloseList closes the list, after which it can be submitted.
	CloseList(ctx context.Context, list api.ResourceID) error
	// ReleaseList destroys a list returned by OpenList.
	ReleaseList(ctx context.Context, list api.ResourceID) error
	// Submit executes closed lists on queue.
	Submit(ctx context.Context, queue api.ResourceID, lists []api.ResourceID) error
	// Execute performs a queue call other than a submission.
	Execute(ctx context.Context, c cmds.QueueCmd) error
	// Fence returns a fence after all the work submitted to queue.
	Fence(ctx context.Context, queue api.ResourceID) (Fence, error)
	// Messages returns and clears the diagnostic messages the device raised
	// since the last call to Messages.
	Messages() []string
}

// WaitFence blocks until f signals. If it does not signal within timeout the
// device is considered lost.
func WaitFence(ctx context.Context, clk clock.Clock, f Fence, timeout time.Duration) error {
	select {
	case <-f.Signaled():
		return nil
	case <-clk.After(timeout):
		return api.Errorf(api.DeviceLost, nil, "Fence not signaled after %v", timeout)
	case <-task.ShouldStop(ctx):
		return api.Errorf(api.Cancelled, task.StopReason(ctx), "Waiting for fence")
	}
}

// Signaled is a fence that has already signaled.
var Signaled Fence = signaled{}

type signaled struct{}

var closed = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (signaled) Signaled() <-chan struct{} { return closed }
