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

package bitsquare

import (
	"fmt"
	"time"

	"github.com/bitrubcoin-dev/bitsquare/connmanager"
	"github.com/bitrubcoin-dev/bitsquare/event"
)

const (
	initialReconnectDelay  = 1 * time.Second
	maxReconnectDelay      = 128 * time.Second
	reconnectBackoffFactor = 2
)

type outboundPeer struct {
	Address        connmanager.NodeAddress
	ReconnectCount int
	ReconnectDelay time.Duration
}

func (n *Node) startSeedConnections() {
	n.config.logger.Debug(
		"starting connections",
		"component", "network",
		"role", "client",
	)
	// Reconnect to seed nodes that drop
	n.eventBus.SubscribeFunc(
		connmanager.ConnectionClosedEventType,
		n.handleOutboundClosed,
	)
	for _, seedAddr := range n.config.seedNodes {
		tmpPeer := outboundPeer{Address: seedAddr}
		go n.createOutboundConnection(tmpPeer)
	}
}

func (n *Node) handleOutboundClosed(evt event.Event) {
	e, ok := evt.Data.(connmanager.ConnectionClosedEvent)
	if !ok {
		return
	}
	if e.Reason == connmanager.CloseReasonAppShutdown {
		return
	}
	address, ok := e.Conn.PeerAddress()
	if !ok || e.Conn.Direction() != connmanager.DirectionOutbound {
		return
	}
	if !n.peerMgr.IsSeedNode(address) {
		return
	}
	// A seed connection the peer manager released on purpose stays down
	if e.Reason == connmanager.CloseReasonTooManySeedNodesConnected ||
		e.Reason == connmanager.CloseReasonTooManyConnectionsOpen {
		return
	}
	go n.reconnectOutboundConnection(outboundPeer{Address: address})
}

func (n *Node) createOutboundConnection(peer outboundPeer) {
	if _, err := n.connManager.CreateOutboundConn(peer.Address); err != nil {
		n.config.logger.Error(
			fmt.Sprintf(
				"outbound: failed to establish connection to %s: %s",
				peer.Address,
				err,
			),
			"component", "network",
		)
		n.reconnectOutboundConnection(peer)
	}
}

func (n *Node) reconnectOutboundConnection(peer outboundPeer) {
	for {
		if peer.ReconnectDelay == 0 {
			peer.ReconnectDelay = initialReconnectDelay
		} else if peer.ReconnectDelay < maxReconnectDelay {
			peer.ReconnectDelay = peer.ReconnectDelay * reconnectBackoffFactor
		}
		peer.ReconnectCount += 1
		n.config.logger.Info(
			fmt.Sprintf(
				"outbound: delaying %s (retry %d) before reconnecting to %s",
				peer.ReconnectDelay,
				peer.ReconnectCount,
				peer.Address,
			),
			"component", "network",
		)
		time.Sleep(peer.ReconnectDelay)
		if _, err := n.connManager.CreateOutboundConn(peer.Address); err != nil {
			n.config.logger.Error(
				fmt.Sprintf(
					"outbound: failed to establish connection to %s: %s",
					peer.Address,
					err,
				),
				"component", "network",
			)
			continue
		}
		return
	}
}
