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

package connmanager

import (
	"github.com/bitrubcoin-dev/bitsquare/event"
)

const (
	ConnectionOpenedEventType event.EventType = "connmanager.connection-opened"
	ConnectionClosedEventType event.EventType = "connmanager.connection-closed"
)

// ConnectionOpenedEvent is published when a connection is registered with
// the connection manager
type ConnectionOpenedEvent struct {
	Conn Connection
}

// ConnectionClosedEvent is published when a registered connection closes,
// whether locally requested or remote
type ConnectionClosedEvent struct {
	Conn   Connection
	Reason CloseConnectionReason
	Error  error
}
