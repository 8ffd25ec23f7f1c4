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
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Direction uint8

const (
	DirectionInbound  Direction = 1
	DirectionOutbound Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	}
	return "unknown"
}

type PeerType uint16

const (
	PeerTypePeer                PeerType = 0
	PeerTypeSeedNode            PeerType = 1
	PeerTypeDirectMsgPeer       PeerType = 2
	PeerTypeInitialDataExchange PeerType = 3
)

func (p PeerType) String() string {
	switch p {
	case PeerTypePeer:
		return "PEER"
	case PeerTypeSeedNode:
		return "SEED_NODE"
	case PeerTypeDirectMsgPeer:
		return "DIRECT_MSG_PEER"
	case PeerTypeInitialDataExchange:
		return "INITIAL_DATA_EXCHANGE"
	}
	return "UNKNOWN"
}

type CloseConnectionReason string

const (
	CloseReasonTooManyConnectionsOpen    CloseConnectionReason = "TOO_MANY_CONNECTIONS_OPEN"
	CloseReasonTooManySeedNodesConnected CloseConnectionReason = "TOO_MANY_SEED_NODES_CONNECTED"
	CloseReasonUnknownPeerAddress        CloseConnectionReason = "UNKNOWN_PEER_ADDRESS"
	CloseReasonRuleViolation             CloseConnectionReason = "RULE_VIOLATION"
	CloseReasonSocketClosed              CloseConnectionReason = "SOCKET_CLOSED"
	CloseReasonAppShutdown               CloseConnectionReason = "APP_SHUT_DOWN"
)

type RuleViolation string

const (
	RuleViolationTooManyReportedPeersSent RuleViolation = "TOO_MANY_REPORTED_PEERS_SENT"
)

// A second rule violation on the same connection forces a shutdown
const maxRuleViolationsBeforeShutdown = 2

// ReceiveFunc is called with each chunk of raw payload read from a connection
type ReceiveFunc func(Connection, []byte)

// Connection is the handle the policy layers borrow from the transport
type Connection interface {
	Id() string
	Direction() Direction
	PeerAddress() (NodeAddress, bool)
	SetPeerAddress(NodeAddress)
	PeerType() PeerType
	SetPeerType(PeerType)
	LastActivity() time.Time
	IsStopped() bool
	RuleViolation() (RuleViolation, bool)
	ReportRuleViolation(RuleViolation)
	Shutdown(reason CloseConnectionReason, onDone func())
}

// NetConnection is a Connection over a TCP socket
type NetConnection struct {
	mutex          sync.Mutex
	id             string
	logger         *slog.Logger
	conn           net.Conn
	direction      Direction
	peerAddr       NodeAddress
	hasPeerAddr    bool
	peerType       PeerType
	lastActivity   time.Time
	ruleViolation  RuleViolation
	violationCount int
	stopped        bool
	closedFunc     func(*NetConnection, CloseConnectionReason, error)
	receiveFunc    ReceiveFunc
}

func newNetConnection(
	conn net.Conn,
	direction Direction,
	logger *slog.Logger,
	closedFunc func(*NetConnection, CloseConnectionReason, error),
	receiveFunc ReceiveFunc,
) *NetConnection {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c := &NetConnection{
		id:           uuid.NewString(),
		logger:       logger,
		conn:         conn,
		direction:    direction,
		peerType:     PeerTypePeer,
		lastActivity: time.Now(),
		closedFunc:   closedFunc,
		receiveFunc:  receiveFunc,
	}
	go c.readLoop()
	return c
}

func (c *NetConnection) Id() string {
	return c.id
}

func (c *NetConnection) Direction() Direction {
	return c.direction
}

func (c *NetConnection) PeerAddress() (NodeAddress, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.peerAddr, c.hasPeerAddr
}

// SetPeerAddress records the peer's advertised address once it becomes
// known. The first value sticks
func (c *NetConnection) SetPeerAddress(addr NodeAddress) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.hasPeerAddr || addr.IsZero() {
		return
	}
	c.peerAddr = addr
	c.hasPeerAddr = true
}

func (c *NetConnection) PeerType() PeerType {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.peerType
}

func (c *NetConnection) SetPeerType(peerType PeerType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.peerType = peerType
}

func (c *NetConnection) LastActivity() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastActivity
}

func (c *NetConnection) IsStopped() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stopped
}

func (c *NetConnection) RuleViolation() (RuleViolation, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.ruleViolation, c.violationCount > 0
}

// ReportRuleViolation latches the violation against the connection. A repeat
// offender gets shut down
func (c *NetConnection) ReportRuleViolation(violation RuleViolation) {
	c.mutex.Lock()
	c.ruleViolation = violation
	c.violationCount++
	violationCount := c.violationCount
	c.mutex.Unlock()
	c.logger.Warn(
		"rule violation reported",
		"violation", string(violation),
		"count", violationCount,
		"connection_id", c.id,
	)
	if violationCount >= maxRuleViolationsBeforeShutdown {
		c.Shutdown(CloseReasonRuleViolation, nil)
	}
}

// Send writes payload to the socket and updates the activity timestamp
func (c *NetConnection) Send(data []byte) error {
	if c.IsStopped() {
		return fmt.Errorf("connection %s is stopped", c.id)
	}
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	c.touch()
	return nil
}

// Shutdown closes the connection with the given reason. The completion
// callback, if any, runs after the close has been processed
func (c *NetConnection) Shutdown(
	reason CloseConnectionReason,
	onDone func(),
) {
	c.mutex.Lock()
	if c.stopped {
		c.mutex.Unlock()
		if onDone != nil {
			onDone()
		}
		return
	}
	c.stopped = true
	c.mutex.Unlock()
	c.logger.Info(
		"shutting down connection",
		"reason", string(reason),
		"connection_id", c.id,
	)
	_ = c.conn.Close()
	if c.closedFunc != nil {
		c.closedFunc(c, reason, nil)
	}
	if onDone != nil {
		onDone()
	}
}

func (c *NetConnection) touch() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.lastActivity = time.Now()
}

func (c *NetConnection) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.touch()
			if c.receiveFunc != nil {
				data := make([]byte, n)
				copy(data, buf[:n])
				c.receiveFunc(c, data)
			}
		}
		if err != nil {
			c.mutex.Lock()
			alreadyStopped := c.stopped
			c.stopped = true
			c.mutex.Unlock()
			if alreadyStopped {
				return
			}
			_ = c.conn.Close()
			if c.closedFunc != nil {
				if err == io.EOF {
					c.closedFunc(c, CloseReasonSocketClosed, nil)
				} else {
					c.closedFunc(c, CloseReasonSocketClosed, err)
				}
			}
			return
		}
	}
}
