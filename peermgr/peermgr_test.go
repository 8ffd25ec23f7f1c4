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
	"testing"
	"time"

	"github.com/bitrubcoin-dev/bitsquare/connmanager"

	bclock "github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func testPeerManager(
	t *testing.T,
	maxConnections int,
	seeds []connmanager.NodeAddress,
) (*PeerManager, *fakeNetwork, *bclock.Mock) {
	t.Helper()
	mock := bclock.NewMock()
	mock.Set(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	network := &fakeNetwork{
		local: connmanager.NewNodeAddress("localhost", 9999),
	}
	pm := NewPeerManager(
		PeerManagerConfig{
			Network:        network,
			Clock:          mock,
			SeedNodes:      seeds,
			MaxConnections: maxConnections,
		},
	)
	require.NoError(t, pm.Start())
	t.Cleanup(pm.Shutdown)
	return pm, network, mock
}

func activityAt(mock *bclock.Mock, offset int) time.Time {
	return mock.Now().Add(time.Duration(offset) * time.Second)
}

// Over the max-connections limit with inbound PEER candidates available,
// the oldest inbound PEER is the victim
func TestEvictionTierOneInboundPeer(t *testing.T) {
	pm, network, mock := testPeerManager(t, 10, nil)
	var conns []*fakeConn
	// 6 inbound PEER with the oldest activity
	for i := 0; i < 6; i++ {
		conn := newFakeConn(
			network,
			fmt.Sprintf("inbound%d", i),
			connmanager.DirectionInbound,
			connmanager.PeerTypePeer,
			activityAt(mock, 100+i),
		).withAddress(testAddr(i))
		conns = append(conns, conn)
	}
	// 4 outbound PEER
	for i := 0; i < 4; i++ {
		conn := newFakeConn(
			network,
			fmt.Sprintf("outbound%d", i),
			connmanager.DirectionOutbound,
			connmanager.PeerTypePeer,
			activityAt(mock, 106+i),
		).withAddress(testAddr(6 + i))
		conns = append(conns, conn)
	}
	// 1 seed node
	seedConn := newFakeConn(
		network,
		"seed0",
		connmanager.DirectionOutbound,
		connmanager.PeerTypeSeedNode,
		activityAt(mock, 110),
	).withAddress(testAddr(10))
	conns = append(conns, seedConn)

	pm.OnConnection(conns[len(conns)-1])
	flushExecutor(t, pm)
	mock.Add(checkMaxConnectionsDelay)
	settle(t, pm)

	require.True(t, conns[0].IsStopped())
	require.Equal(t, connmanager.CloseReasonTooManyConnectionsOpen, conns[0].reason())
	require.Len(t, network.AllConnections(), 10)
	for _, conn := range conns[1:] {
		require.False(t, conn.IsStopped(), "connection %s unexpectedly stopped", conn.Id())
	}
}

// With every connection privileged, only the absolute limit applies and a
// single pass brings the count back to it
func TestEvictionTierFourDirectMsgFallback(t *testing.T) {
	pm, network, mock := testPeerManager(t, 10, nil)
	var conns []*fakeConn
	for i := 0; i < 29; i++ {
		conn := newFakeConn(
			network,
			fmt.Sprintf("direct%d", i),
			connmanager.DirectionInbound,
			connmanager.PeerTypeDirectMsgPeer,
			activityAt(mock, 1+i),
		).withAddress(testAddr(i))
		conns = append(conns, conn)
	}
	pm.OnConnection(conns[0])
	flushExecutor(t, pm)
	mock.Add(checkMaxConnectionsDelay)
	settle(t, pm)

	require.True(t, conns[0].IsStopped())
	require.Equal(t, connmanager.CloseReasonTooManyConnectionsOpen, conns[0].reason())
	// 28 == absolute limit, so the re-check is a no-op
	require.Len(t, network.AllConnections(), 28)
	for _, conn := range conns[1:] {
		require.False(t, conn.IsStopped())
	}
}

// A well-connected node releases all but one of its seed connections,
// oldest activity first
func TestSuperfluousSeedNodesReleased(t *testing.T) {
	seeds := []connmanager.NodeAddress{testAddr(100), testAddr(101), testAddr(102)}
	pm, network, mock := testPeerManager(t, 2, seeds)
	var seedConns []*fakeConn
	for i, seedAddr := range seeds {
		conn := newFakeConn(
			network,
			fmt.Sprintf("seed%d", i),
			connmanager.DirectionOutbound,
			connmanager.PeerTypeSeedNode,
			activityAt(mock, i),
		).withAddress(seedAddr)
		seedConns = append(seedConns, conn)
	}
	peerConn := newFakeConn(
		network,
		"peer0",
		connmanager.DirectionOutbound,
		connmanager.PeerTypePeer,
		activityAt(mock, 100),
	).withAddress(testAddr(0))

	pm.OnConnection(peerConn)
	flushExecutor(t, pm)
	mock.Add(checkMaxConnectionsDelay)
	settle(t, pm)

	require.True(t, seedConns[0].IsStopped())
	require.Equal(t, connmanager.CloseReasonTooManySeedNodesConnected, seedConns[0].reason())
	require.True(t, seedConns[1].IsStopped())
	// The last seed connection is always kept
	require.False(t, seedConns[2].IsStopped())
	require.False(t, peerConn.IsStopped())
}

// A connection whose peer address is still unknown after the grace period
// is reaped; one that announced its address in time is kept
func TestAnonymousPeerReaper(t *testing.T) {
	pm, network, mock := testPeerManager(t, 10, nil)
	anonymous := newFakeConn(
		network,
		"anonymous",
		connmanager.DirectionInbound,
		connmanager.PeerTypePeer,
		mock.Now(),
	)
	lateConfirm := newFakeConn(
		network,
		"late-confirm",
		connmanager.DirectionInbound,
		connmanager.PeerTypePeer,
		mock.Now(),
	)
	pm.OnConnection(anonymous)
	flushExecutor(t, pm)
	mock.Add(checkMaxConnectionsDelay)
	settle(t, pm)
	require.False(t, anonymous.IsStopped())
	// The peer announces its address before the deadline
	lateConfirm.SetPeerAddress(testAddr(1))
	mock.Add(removeAnonymousPeerDelay)
	settle(t, pm)
	require.True(t, anonymous.IsStopped())
	require.Equal(t, connmanager.CloseReasonUnknownPeerAddress, anonymous.reason())
	require.False(t, lateConfirm.IsStopped())
}

// A new connection classifies as a seed node when its address matches the
// seed set
func TestSeedNodeClassification(t *testing.T) {
	seedAddr := testAddr(100)
	pm, network, _ := testPeerManager(t, 10, []connmanager.NodeAddress{seedAddr})
	conn := newFakeConn(
		network,
		"seed0",
		connmanager.DirectionInbound,
		connmanager.PeerTypePeer,
		time.Time{},
	).withAddress(seedAddr)
	pm.OnConnection(conn)
	flushExecutor(t, pm)
	require.Equal(t, connmanager.PeerTypeSeedNode, conn.PeerType())
}

// Housekeeping is coalesced: only the first connect arms the timer, and a
// node in the stopped state skips the sweep entirely
func TestHousekeepingStoppedGate(t *testing.T) {
	pm, network, mock := testPeerManager(t, 1, nil)
	var conns []*fakeConn
	for i := 0; i < 25; i++ {
		conn := newFakeConn(
			network,
			fmt.Sprintf("conn%d", i),
			connmanager.DirectionInbound,
			connmanager.PeerTypePeer,
			activityAt(mock, i),
		).withAddress(testAddr(i))
		conns = append(conns, conn)
	}
	pm.OnConnection(conns[0])
	pm.OnConnection(conns[1])
	flushExecutor(t, pm)
	// Latch the stopped state before the timer fires
	pm.exec.post(func() { pm.stopped = true })
	flushExecutor(t, pm)
	mock.Add(checkMaxConnectionsDelay)
	settle(t, pm)
	for _, conn := range conns {
		require.False(t, conn.IsStopped())
	}
}

// Losing the last connection fires the lost edge exactly once and the next
// connect fires the recovery edge exactly once
func TestAllConnectionsLostEdges(t *testing.T) {
	pm, network, _ := testPeerManager(t, 10, nil)
	listener := &recordingLifecycleListener{}
	pm.AddListener(listener)
	var conns []*fakeConn
	for i := 0; i < 3; i++ {
		conn := newFakeConn(
			network,
			fmt.Sprintf("conn%d", i),
			connmanager.DirectionOutbound,
			connmanager.PeerTypePeer,
			time.Time{},
		).withAddress(testAddr(i))
		conns = append(conns, conn)
		pm.OnConnection(conn)
	}
	flushExecutor(t, pm)
	for _, conn := range conns {
		network.remove(conn)
		pm.OnDisconnect(conn)
	}
	flushExecutor(t, pm)
	allLost, newAfterLost, _ := listener.counts()
	require.Equal(t, 1, allLost)
	require.Equal(t, 0, newAfterLost)
	// A new connection after the lost edge fires the recovery notification
	recovered := newFakeConn(
		network,
		"recovered",
		connmanager.DirectionOutbound,
		connmanager.PeerTypePeer,
		time.Time{},
	).withAddress(testAddr(10))
	pm.OnConnection(recovered)
	flushExecutor(t, pm)
	allLost, newAfterLost, _ = listener.counts()
	require.Equal(t, 1, allLost)
	require.Equal(t, 1, newAfterLost)
}

// A disconnect that leaves other connections open does not fire the lost
// edge
func TestDisconnectWithRemainingConnections(t *testing.T) {
	pm, network, _ := testPeerManager(t, 10, nil)
	listener := &recordingLifecycleListener{}
	pm.AddListener(listener)
	conn1 := newFakeConn(network, "conn1", connmanager.DirectionOutbound, connmanager.PeerTypePeer, time.Time{}).withAddress(testAddr(1))
	conn2 := newFakeConn(network, "conn2", connmanager.DirectionOutbound, connmanager.PeerTypePeer, time.Time{}).withAddress(testAddr(2))
	pm.OnConnection(conn1)
	pm.OnConnection(conn2)
	flushExecutor(t, pm)
	network.remove(conn1)
	pm.OnDisconnect(conn1)
	flushExecutor(t, pm)
	allLost, _, _ := listener.counts()
	require.Equal(t, 0, allLost)
}

// A missed-tick gap beyond the idle tolerance clears the stopped state and
// notifies listeners; the next connect arms a fresh housekeeping timer
func TestAwakeFromStandby(t *testing.T) {
	pm, network, _ := testPeerManager(t, 10, nil)
	listener := &recordingLifecycleListener{}
	pm.AddListener(listener)
	pm.exec.post(func() { pm.stopped = true })
	flushExecutor(t, pm)
	// Below the tolerance nothing happens
	pm.OnMissedTick(4 * time.Second)
	flushExecutor(t, pm)
	_, _, awake := listener.counts()
	require.Equal(t, 0, awake)
	pm.OnMissedTick(600 * time.Second)
	flushExecutor(t, pm)
	_, _, awake = listener.counts()
	require.Equal(t, 1, awake)
	conn := newFakeConn(network, "conn1", connmanager.DirectionOutbound, connmanager.PeerTypePeer, time.Time{}).withAddress(testAddr(1))
	pm.OnConnection(conn)
	flushExecutor(t, pm)
	timerArmed := make(chan bool, 1)
	pm.exec.post(func() { timerArmed <- pm.checkMaxConnectionsTimer != nil })
	require.True(t, <-timerArmed)
}

// A disconnect feeds the fault accounting for the peer's catalog records
func TestDisconnectRegistersFault(t *testing.T) {
	pm, network, mock := testPeerManager(t, 10, nil)
	addr := testAddr(1)
	pm.AddToReportedPeers([]*Peer{NewPeer(addr, mock.Now())}, nil)
	flushExecutor(t, pm)
	require.Equal(t, 1, pm.Catalog().ReportedCount())
	conn := newFakeConn(network, "conn1", connmanager.DirectionOutbound, connmanager.PeerTypePeer, time.Time{}).withAddress(addr)
	conn.ReportRuleViolation(connmanager.RuleViolationTooManyReportedPeersSent)
	network.remove(conn)
	pm.OnDisconnect(conn)
	flushExecutor(t, pm)
	// The rule violation evicts the persisted record immediately
	_, ok := pm.Catalog().PersistedPeer(addr)
	require.False(t, ok)
	require.Equal(t, 0, pm.Catalog().ReportedCount())
}

// Privileged direct-message connections survive the public shutdown helpers
func TestDirectMsgPeerPrivileged(t *testing.T) {
	pm, network, mock := testPeerManager(t, 10, nil)
	addr := testAddr(1)
	direct := newFakeConn(network, "direct", connmanager.DirectionOutbound, connmanager.PeerTypeDirectMsgPeer, mock.Now()).withAddress(addr)
	ordinary := newFakeConn(network, "ordinary", connmanager.DirectionOutbound, connmanager.PeerTypePeer, mock.Now()).withAddress(addr)
	pm.ShutDownConnection(direct, connmanager.CloseReasonTooManyConnectionsOpen)
	require.False(t, direct.IsStopped())
	pm.ShutDownConnectionToPeer(addr, connmanager.CloseReasonTooManyConnectionsOpen)
	require.False(t, direct.IsStopped())
	require.True(t, ordinary.IsStopped())
}

// Changing max connections recomputes the whole ladder
func TestSetMaxConnectionsRecomputesLimits(t *testing.T) {
	pm, _, _ := testPeerManager(t, 10, nil)
	require.Equal(t, 28, pm.EffectiveMaxConnections())
	pm.SetMaxConnections(12)
	flushExecutor(t, pm)
	require.Equal(t, 30, pm.EffectiveMaxConnections())
}

// Peers shared with gossip partners exclude seeds and the requester
func TestConnectedNonSeedNodeReportedPeers(t *testing.T) {
	seedAddr := testAddr(100)
	pm, network, mock := testPeerManager(t, 10, []connmanager.NodeAddress{seedAddr})
	newFakeConn(network, "seed", connmanager.DirectionOutbound, connmanager.PeerTypeSeedNode, mock.Now()).withAddress(seedAddr)
	newFakeConn(network, "peer1", connmanager.DirectionOutbound, connmanager.PeerTypePeer, mock.Now()).withAddress(testAddr(1))
	newFakeConn(network, "peer2", connmanager.DirectionOutbound, connmanager.PeerTypePeer, mock.Now()).withAddress(testAddr(2))
	peers := pm.ConnectedNonSeedNodeReportedPeers(testAddr(2))
	require.Len(t, peers, 1)
	require.Equal(t, testAddr(1), peers[0].NodeAddress)
}
