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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	dialTimeout = 10 * time.Second
)

// CreateOutboundConn dials the given peer and registers the resulting
// connection. The peer address is confirmed from the start, since we chose
// who to dial
func (c *ConnectionManager) CreateOutboundConn(
	address NodeAddress,
) (Connection, error) {
	t := otel.Tracer("")
	if t != nil {
		_, span := t.Start(context.TODO(), "create outbound connection")
		defer span.End()
		span.SetAttributes(
			attribute.String("peer.address", address.String()),
		)
	}
	dialer := net.Dialer{
		Timeout: dialTimeout,
	}
	c.config.Logger.Debug(
		fmt.Sprintf(
			"establishing TCP connection to: %s",
			address,
		),
		"role", "client",
	)
	tmpConn, err := dialer.Dial("tcp", address.String())
	if err != nil {
		return nil, err
	}
	netConn := newNetConnection(
		tmpConn,
		DirectionOutbound,
		c.config.Logger,
		c.connectionClosed,
		c.config.ReceiveFunc,
	)
	netConn.SetPeerAddress(address)
	c.config.Logger.Info(
		fmt.Sprintf("connected to %s", address),
		"role", "client",
		"connection_id", netConn.Id(),
	)
	// Add to connection manager
	c.AddConnection(netConn)
	return netConn, nil
}
