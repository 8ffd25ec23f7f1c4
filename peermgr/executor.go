// Copyright 2026 Bitrub Coin Developers
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package peermgr

import (
	"sync"
	"time"

	bclock "github.com/benbjohnson/clock"
)

const executorQueueSize = 256

// executor serializes all peer manager state mutations onto a single
// goroutine. Tasks run in FIFO order; deferred tasks are posted back onto
// the queue when their timer fires
type executor struct {
	clock    bclock.Clock
	queue    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newExecutor(clk bclock.Clock) *executor {
	e := &executor{
		clock: clk,
		queue: make(chan func(), executorQueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *executor) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case f := <-e.queue:
			f()
		}
	}
}

// post enqueues a task. It reports whether the task was accepted; a stopped
// executor drops tasks
func (e *executor) post(f func()) bool {
	select {
	case <-e.quit:
		return false
	case e.queue <- f:
		return true
	}
}

// runAfter schedules a task to be posted onto the queue after the delay
func (e *executor) runAfter(delay time.Duration, f func()) *execTimer {
	t := e.clock.AfterFunc(delay, func() {
		e.post(f)
	})
	return &execTimer{t: t}
}

func (e *executor) stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
	})
	<-e.done
}

type execTimer struct {
	t *bclock.Timer
}

func (t *execTimer) stop() {
	t.t.Stop()
}
