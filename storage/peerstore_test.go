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

package storage

import (
	"testing"
	"time"

	"github.com/bitrubcoin-dev/bitsquare/connmanager"
	"github.com/bitrubcoin-dev/bitsquare/peermgr"

	bclock "github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func testPeerStore(t *testing.T) (*PeerStore, *bclock.Mock) {
	t.Helper()
	store, err := NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	mock := bclock.NewMock()
	mock.Set(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	ps := NewPeerStore(
		PeerStoreConfig{
			Store: store,
			Clock: mock,
		},
	)
	return ps, mock
}

func testPeers(mock *bclock.Mock, count int) []*peermgr.Peer {
	peers := make([]*peermgr.Peer, count)
	for i := 0; i < count; i++ {
		peers[i] = peermgr.NewPeer(
			connmanager.NewNodeAddress("peer", uint16(1000+i)),
			mock.Now(),
		)
	}
	return peers
}

func TestPeerStoreLoadEmpty(t *testing.T) {
	ps, _ := testPeerStore(t)
	peers, err := ps.LoadPeers()
	require.NoError(t, err)
	require.Empty(t, peers)
}

func TestPeerStoreDebouncedSave(t *testing.T) {
	ps, mock := testPeerStore(t)
	ps.QueueSavePeers(testPeers(mock, 3))
	// Nothing hits the store until the debounce expires
	peers, err := ps.LoadPeers()
	require.NoError(t, err)
	require.Empty(t, peers)
	mock.Add(DefaultSaveDebounce)
	peers, err = ps.LoadPeers()
	require.NoError(t, err)
	require.Len(t, peers, 3)
}

func TestPeerStoreCoalescesWrites(t *testing.T) {
	ps, mock := testPeerStore(t)
	ps.QueueSavePeers(testPeers(mock, 3))
	mock.Add(DefaultSaveDebounce / 2)
	// A later queue within the window replaces the payload
	ps.QueueSavePeers(testPeers(mock, 5))
	mock.Add(DefaultSaveDebounce / 2)
	peers, err := ps.LoadPeers()
	require.NoError(t, err)
	require.Len(t, peers, 5)
}

func TestPeerStoreFlush(t *testing.T) {
	ps, mock := testPeerStore(t)
	ps.QueueSavePeers(testPeers(mock, 2))
	ps.Flush()
	peers, err := ps.LoadPeers()
	require.NoError(t, err)
	require.Len(t, peers, 2)
}

func TestPeerStoreRoundTripAcrossReopen(t *testing.T) {
	dataDir := t.TempDir()
	store, err := NewPersistent(dataDir, nil)
	require.NoError(t, err)
	mock := bclock.NewMock()
	mock.Set(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	ps := NewPeerStore(
		PeerStoreConfig{
			Store: store,
			Clock: mock,
		},
	)
	saved := testPeers(mock, 4)
	saved[0].FailedAttempts = 2
	ps.QueueSavePeers(saved)
	mock.Add(DefaultSaveDebounce)
	require.NoError(t, store.Close())

	// Reopen from the same directory
	store2, err := NewPersistent(dataDir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store2.Close() })
	ps2 := NewPeerStore(
		PeerStoreConfig{
			Store: store2,
			Clock: mock,
		},
	)
	loaded, err := ps2.LoadPeers()
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	byPort := make(map[uint16]*peermgr.Peer)
	for _, peer := range loaded {
		byPort[peer.NodeAddress.Port] = peer
	}
	require.Equal(t, 2, byPort[1000].FailedAttempts)
	require.True(t, byPort[1001].FirstSeen.Equal(saved[1].FirstSeen))
}
