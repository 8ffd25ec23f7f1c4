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

package clock

import (
	"io"
	"log/slog"
	"sync"
	"time"

	bclock "github.com/benbjohnson/clock"
)

const (
	TickInterval = 1 * time.Second

	// IdleTolerance is the default missed-tick magnitude above which
	// consumers should treat the gap as a host suspend rather than
	// scheduler jitter
	IdleTolerance = 5 * time.Second
)

// Listener receives tick notifications from a Clock. OnMissedTick reports
// the portion of the observed gap in excess of the tick interval
type Listener interface {
	OnTick()
	OnMissedTick(missed time.Duration)
}

type Clock struct {
	mutex     sync.Mutex
	config    ClockConfig
	listeners []Listener
	lastTick  time.Time
	stopCh    chan struct{}
	started   bool
}

type ClockConfig struct {
	Logger *slog.Logger
	// Clock is the underlying time source. Defaults to the wall clock
	Clock bclock.Clock
}

func NewClock(cfg ClockConfig) *Clock {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "clock")
	if cfg.Clock == nil {
		cfg.Clock = bclock.New()
	}
	return &Clock{
		config: cfg,
		stopCh: make(chan struct{}),
	}
}

func (c *Clock) Start() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.lastTick = c.config.Clock.Now()
	go c.run()
}

func (c *Clock) Stop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.started {
		return
	}
	c.started = false
	close(c.stopCh)
}

func (c *Clock) AddListener(l Listener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Clock) RemoveListener(l Listener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for idx, tmpListener := range c.listeners {
		if tmpListener == l {
			c.listeners = append(c.listeners[:idx], c.listeners[idx+1:]...)
			return
		}
	}
}

func (c *Clock) run() {
	ticker := c.config.Clock.Ticker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Clock) tick() {
	c.mutex.Lock()
	now := c.config.Clock.Now()
	elapsed := now.Sub(c.lastTick)
	c.lastTick = now
	// Snapshot so listeners can add/remove during delivery
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mutex.Unlock()
	for _, l := range listeners {
		l.OnTick()
	}
	// A tick observed at more than twice the interval means we were not
	// being scheduled, e.g. the host was suspended
	if elapsed > 2*TickInterval {
		missed := elapsed - TickInterval
		c.config.Logger.Warn(
			"missed ticks detected",
			"missed", missed.String(),
		)
		for _, l := range listeners {
			l.OnMissedTick(missed)
		}
	}
}
