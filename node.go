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
	"context"
	"fmt"

	"github.com/bitrubcoin-dev/bitsquare/clock"
	"github.com/bitrubcoin-dev/bitsquare/connmanager"
	"github.com/bitrubcoin-dev/bitsquare/event"
	"github.com/bitrubcoin-dev/bitsquare/peermgr"
	"github.com/bitrubcoin-dev/bitsquare/storage"
)

type Node struct {
	config        Config
	eventBus      *event.EventBus
	connManager   *connmanager.ConnectionManager
	peerMgr       *peermgr.PeerManager
	store         *storage.Store
	peerStore     *storage.PeerStore
	tickSource    *clock.Clock
	shutdownFuncs []func(context.Context) error
}

func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
	}
	// Source seed nodes from the topology config if one was provided
	if cfg.topologyConfig != nil {
		n.config.seedNodes = append(
			n.config.seedNodes,
			cfg.topologyConfig.SeedNodeAddresses()...,
		)
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %s", err)
	}
	return n, nil
}

// PeerManager exposes the node's peer manager
func (n *Node) PeerManager() *peermgr.PeerManager {
	return n.peerMgr
}

// ConnectionManager exposes the node's connection manager
func (n *Node) ConnectionManager() *connmanager.ConnectionManager {
	return n.connManager
}

func (n *Node) Run() error {
	// Setup tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	n.eventBus = event.NewEventBus(n.config.promRegistry)
	// Open the data store
	var err error
	if n.config.dataDir != "" {
		n.store, err = storage.NewPersistent(n.config.dataDir, n.config.logger)
	} else {
		n.store, err = storage.NewInMemory(n.config.logger)
	}
	if err != nil {
		return fmt.Errorf("failed to open data store: %w", err)
	}
	n.peerStore = storage.NewPeerStore(
		storage.PeerStoreConfig{
			Logger: n.config.logger,
			Store:  n.store,
		},
	)
	// Start the tick source
	n.tickSource = clock.NewClock(
		clock.ClockConfig{
			Logger: n.config.logger,
		},
	)
	n.tickSource.Start()
	// Configure connection manager
	n.connManager = connmanager.NewConnectionManager(
		connmanager.ConnectionManagerConfig{
			Logger:       n.config.logger,
			EventBus:     n.eventBus,
			LocalAddress: n.config.localAddress,
			Listeners:    n.config.listeners,
		},
	)
	// Configure peer manager
	n.peerMgr = peermgr.NewPeerManager(
		peermgr.PeerManagerConfig{
			Logger:         n.config.logger,
			EventBus:       n.eventBus,
			Network:        n.connManager,
			Store:          n.peerStore,
			TickSource:     n.tickSource,
			SeedNodes:      n.config.seedNodes,
			MaxConnections: n.config.maxConnections,
			PromRegistry:   n.config.promRegistry,
		},
	)
	if err := n.peerMgr.Start(); err != nil {
		return err
	}
	// Start listeners
	if err := n.connManager.Start(); err != nil {
		return err
	}
	// Start outbound connections to the seed nodes
	n.startSeedConnections()

	// Wait forever
	select {}
}

// Stop shuts the node down in dependency order and flushes any pending
// persisted state
func (n *Node) Stop() error {
	n.peerMgr.Shutdown()
	n.connManager.Shutdown()
	n.tickSource.Stop()
	n.peerStore.Flush()
	if err := n.store.Close(); err != nil {
		return err
	}
	for _, shutdownFunc := range n.shutdownFuncs {
		if err := shutdownFunc(context.Background()); err != nil {
			return err
		}
	}
	return nil
}
