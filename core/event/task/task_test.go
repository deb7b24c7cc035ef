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

package task_test

import (
	"context"
	"testing"

	"github.com/gfxtrace/gfxtrace/core/assert"
	"github.com/gfxtrace/gfxtrace/core/event/task"
	"github.com/gfxtrace/gfxtrace/core/log"
)

func TestContextCancel(t *testing.T) {
	ctx := log.Testing(t)
	before := context.Background()
	after, cancel := task.WithCancel(before)
	assert.For(ctx, "Stopped before cancel").That(task.Stopped(after)).Equals(false)
	assert.For(ctx, "StopReason before cancel").ThatError(task.StopReason(after)).Succeeded()
	cancel()
	assert.For(ctx, "Stopped after cancel").That(task.Stopped(after)).Equals(true)
	assert.For(ctx, "StopReason after cancel").ThatError(task.StopReason(after)).Equals(context.Canceled)
}

func TestOnce(t *testing.T) {
	ctx := log.Testing(t)
	count := 0
	counter := func(context.Context) error { count++; return nil }
	once := task.Once(counter)
	once(ctx)
	once(ctx)
	assert.For(ctx, "Count after once").That(count).Equals(1)
}
