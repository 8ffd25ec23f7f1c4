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
)

// Listener receives the peer manager's lifecycle notifications. Delivery is
// in registration order
type Listener interface {
	OnAllConnectionsLost()
	OnNewConnectionAfterAllConnectionsLost()
	OnAwakeFromStandby()
}

// listenerList is a copy-on-write registry. Iteration always happens on a
// snapshot, so listeners may add or remove themselves during delivery; such
// changes take effect on subsequent events
type listenerList struct {
	mutex     sync.Mutex
	listeners []Listener
}

func (l *listenerList) add(listener Listener) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	next := make([]Listener, len(l.listeners), len(l.listeners)+1)
	copy(next, l.listeners)
	l.listeners = append(next, listener)
}

func (l *listenerList) remove(listener Listener) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for idx, tmpListener := range l.listeners {
		if tmpListener == listener {
			next := make([]Listener, 0, len(l.listeners)-1)
			next = append(next, l.listeners[:idx]...)
			next = append(next, l.listeners[idx+1:]...)
			l.listeners = next
			return
		}
	}
}

func (l *listenerList) snapshot() []Listener {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.listeners
}
