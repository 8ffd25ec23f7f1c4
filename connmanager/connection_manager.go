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
	"io"
	"log/slog"
	"sync"

	"github.com/bitrubcoin-dev/bitsquare/event"
)

type ConnectionManager struct {
	config           ConnectionManagerConfig
	connections      map[string]Connection
	connectionsMutex sync.Mutex
}

type ConnectionManagerConfig struct {
	Logger   *slog.Logger
	EventBus *event.EventBus
	// LocalAddress is this node's own advertised address. It may be zero
	// when the node does not yet know how it is reachable
	LocalAddress NodeAddress
	Listeners    []ListenerConfig
	// ReceiveFunc is handed to every connection for payload delivery to
	// the messaging layers
	ReceiveFunc ReceiveFunc
}

func NewConnectionManager(cfg ConnectionManagerConfig) *ConnectionManager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "connmanager")
	return &ConnectionManager{
		config:      cfg,
		connections: make(map[string]Connection),
	}
}

func (c *ConnectionManager) Start() error {
	if err := c.startListeners(); err != nil {
		return err
	}
	return nil
}

// Shutdown closes every registered connection
func (c *ConnectionManager) Shutdown() {
	for _, conn := range c.AllConnections() {
		conn.Shutdown(CloseReasonAppShutdown, nil)
	}
}

func (c *ConnectionManager) AddConnection(conn Connection) {
	c.connectionsMutex.Lock()
	c.connections[conn.Id()] = conn
	c.connectionsMutex.Unlock()
	// Generate event
	if c.config.EventBus != nil {
		c.config.EventBus.Publish(
			ConnectionOpenedEventType,
			event.NewEvent(
				ConnectionOpenedEventType,
				ConnectionOpenedEvent{
					Conn: conn,
				},
			),
		)
	}
}

func (c *ConnectionManager) RemoveConnection(connId string) {
	c.connectionsMutex.Lock()
	delete(c.connections, connId)
	c.connectionsMutex.Unlock()
}

func (c *ConnectionManager) GetConnectionById(connId string) Connection {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	return c.connections[connId]
}

// AllConnections returns every live connection, confirmed or not
func (c *ConnectionManager) AllConnections() []Connection {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	ret := make([]Connection, 0, len(c.connections))
	for _, conn := range c.connections {
		ret = append(ret, conn)
	}
	return ret
}

// ConfirmedConnections returns the connections whose peer address is known
func (c *ConnectionManager) ConfirmedConnections() []Connection {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	var ret []Connection
	for _, conn := range c.connections {
		if _, ok := conn.PeerAddress(); ok {
			ret = append(ret, conn)
		}
	}
	return ret
}

// ConfirmedAddresses returns the peer addresses of all confirmed connections
func (c *ConnectionManager) ConfirmedAddresses() []NodeAddress {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	var ret []NodeAddress
	for _, conn := range c.connections {
		if addr, ok := conn.PeerAddress(); ok {
			ret = append(ret, addr)
		}
	}
	return ret
}

func (c *ConnectionManager) LocalAddress() NodeAddress {
	return c.config.LocalAddress
}

// connectionClosed is handed to each connection as its closed callback
func (c *ConnectionManager) connectionClosed(
	conn *NetConnection,
	reason CloseConnectionReason,
	err error,
) {
	if err != nil {
		c.config.Logger.Error(
			"unexpected connection failure: "+err.Error(),
			"connection_id", conn.Id(),
		)
	} else {
		c.config.Logger.Info(
			"connection closed",
			"reason", string(reason),
			"connection_id", conn.Id(),
		)
	}
	// Remove connection
	c.RemoveConnection(conn.Id())
	// Generate event
	if c.config.EventBus != nil {
		c.config.EventBus.Publish(
			ConnectionClosedEventType,
			event.NewEvent(
				ConnectionClosedEventType,
				ConnectionClosedEvent{
					Conn:   conn,
					Reason: reason,
					Error:  err,
				},
			),
		)
	}
}
