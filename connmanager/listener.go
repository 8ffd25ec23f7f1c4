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
	"context"
	"fmt"
	"net"
)

type ListenerConfig struct {
	Listener      net.Listener
	ListenNetwork string
	ListenAddress string
	ReuseAddress  bool
}

func (c *ConnectionManager) startListeners() error {
	for _, l := range c.config.Listeners {
		if err := c.startListener(l); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConnectionManager) startListener(l ListenerConfig) error {
	// Create listener if none is provided
	if l.Listener == nil {
		listenConfig := net.ListenConfig{}
		if l.ReuseAddress {
			listenConfig.Control = socketControl
		}
		listener, err := listenConfig.Listen(
			context.Background(),
			l.ListenNetwork,
			l.ListenAddress,
		)
		if err != nil {
			return fmt.Errorf("failed to open listening socket: %s", err)
		}
		l.Listener = listener
	}
	go func() {
		for {
			// Accept connection
			conn, err := l.Listener.Accept()
			if err != nil {
				c.config.Logger.Error(
					fmt.Sprintf("listener: accept failed: %s", err),
				)
				return
			}
			c.config.Logger.Info(
				fmt.Sprintf(
					"listener: accepted connection from %s",
					conn.RemoteAddr(),
				),
			)
			// The remote's advertised address is not known until it
			// announces itself, so the connection starts unconfirmed
			netConn := newNetConnection(
				conn,
				DirectionInbound,
				c.config.Logger,
				c.connectionClosed,
				c.config.ReceiveFunc,
			)
			// Add to connection manager
			c.AddConnection(netConn)
		}
	}()
	return nil
}
