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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bitrubcoin-dev/bitsquare/connmanager"

	"github.com/stretchr/testify/require"
)

type fakeNetwork struct {
	mutex sync.Mutex
	conns []connmanager.Connection
	local connmanager.NodeAddress
}

func (n *fakeNetwork) add(conn connmanager.Connection) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.conns = append(n.conns, conn)
}

func (n *fakeNetwork) remove(conn connmanager.Connection) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	for idx, tmpConn := range n.conns {
		if tmpConn == conn {
			n.conns = append(n.conns[:idx], n.conns[idx+1:]...)
			return
		}
	}
}

func (n *fakeNetwork) AllConnections() []connmanager.Connection {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	ret := make([]connmanager.Connection, len(n.conns))
	copy(ret, n.conns)
	return ret
}

func (n *fakeNetwork) ConfirmedConnections() []connmanager.Connection {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	var ret []connmanager.Connection
	for _, conn := range n.conns {
		if _, ok := conn.PeerAddress(); ok {
			ret = append(ret, conn)
		}
	}
	return ret
}

func (n *fakeNetwork) ConfirmedAddresses() []connmanager.NodeAddress {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	var ret []connmanager.NodeAddress
	for _, conn := range n.conns {
		if addr, ok := conn.PeerAddress(); ok {
			ret = append(ret, addr)
		}
	}
	return ret
}

func (n *fakeNetwork) LocalAddress() connmanager.NodeAddress {
	return n.local
}

type fakeConn struct {
	mutex          sync.Mutex
	id             string
	direction      connmanager.Direction
	peerType       connmanager.PeerType
	addr           connmanager.NodeAddress
	hasAddr        bool
	lastActivity   time.Time
	stopped        bool
	violation      connmanager.RuleViolation
	violationCount int
	shutdownReason connmanager.CloseConnectionReason
	network        *fakeNetwork
}

func newFakeConn(
	network *fakeNetwork,
	id string,
	direction connmanager.Direction,
	peerType connmanager.PeerType,
	lastActivity time.Time,
) *fakeConn {
	c := &fakeConn{
		id:           id,
		direction:    direction,
		peerType:     peerType,
		lastActivity: lastActivity,
		network:      network,
	}
	if network != nil {
		network.add(c)
	}
	return c
}

func (c *fakeConn) withAddress(addr connmanager.NodeAddress) *fakeConn {
	c.SetPeerAddress(addr)
	return c
}

func (c *fakeConn) Id() string {
	return c.id
}

func (c *fakeConn) Direction() connmanager.Direction {
	return c.direction
}

func (c *fakeConn) PeerAddress() (connmanager.NodeAddress, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.addr, c.hasAddr
}

func (c *fakeConn) SetPeerAddress(addr connmanager.NodeAddress) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.hasAddr {
		return
	}
	c.addr = addr
	c.hasAddr = true
}

func (c *fakeConn) PeerType() connmanager.PeerType {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.peerType
}

func (c *fakeConn) SetPeerType(peerType connmanager.PeerType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.peerType = peerType
}

func (c *fakeConn) LastActivity() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastActivity
}

func (c *fakeConn) IsStopped() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stopped
}

func (c *fakeConn) RuleViolation() (connmanager.RuleViolation, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.violation, c.violationCount > 0
}

func (c *fakeConn) ReportRuleViolation(violation connmanager.RuleViolation) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.violation = violation
	c.violationCount++
}

func (c *fakeConn) Shutdown(
	reason connmanager.CloseConnectionReason,
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
	c.shutdownReason = reason
	c.mutex.Unlock()
	if c.network != nil {
		c.network.remove(c)
	}
	if onDone != nil {
		onDone()
	}
}

func (c *fakeConn) reason() connmanager.CloseConnectionReason {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.shutdownReason
}

type fakeStore struct {
	mutex     sync.Mutex
	saveCalls int
	lastSaved []*Peer
	loaded    []*Peer
}

func (s *fakeStore) LoadPeers() ([]*Peer, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.loaded, nil
}

func (s *fakeStore) QueueSavePeers(peers []*Peer) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.saveCalls++
	s.lastSaved = peers
}

func (s *fakeStore) calls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saveCalls
}

type recordingLifecycleListener struct {
	mutex        sync.Mutex
	allLost      int
	newAfterLost int
	awake        int
}

func (r *recordingLifecycleListener) OnAllConnectionsLost() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.allLost++
}

func (r *recordingLifecycleListener) OnNewConnectionAfterAllConnectionsLost() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.newAfterLost++
}

func (r *recordingLifecycleListener) OnAwakeFromStandby() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.awake++
}

func (r *recordingLifecycleListener) counts() (int, int, int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.allLost, r.newAfterLost, r.awake
}

func testAddr(i int) connmanager.NodeAddress {
	return connmanager.NewNodeAddress(fmt.Sprintf("peer%d", i), uint16(1000+i))
}

// flushExecutor waits for every task already queued on the executor to run
func flushExecutor(t *testing.T, p *PeerManager) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, p.exec.post(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for executor flush")
	}
}

// settle flushes repeatedly so that task chains (such as eviction passes
// re-posted from shutdown completions) run to quiescence
func settle(t *testing.T, p *PeerManager) {
	t.Helper()
	for i := 0; i < 10; i++ {
		flushExecutor(t, p)
	}
}
