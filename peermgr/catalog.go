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
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/bitrubcoin-dev/bitsquare/connmanager"

	bclock "github.com/benbjohnson/clock"
)

const (
	MaxReportedPeers  = 1000
	MaxPersistedPeers = 500

	// MaxPeerAge is the retention window for catalog records
	MaxPeerAge = 14 * 24 * time.Hour

	// DefaultFaultThreshold is the failed-attempt count at which a
	// persisted peer is evicted
	DefaultFaultThreshold = 5

	// Reported batches include the sender's own connections, so the bound
	// allows some headroom above the steady-state cap
	reportedBatchHeadroom = 10
)

// PeerStore persists the durable peer set. Implementations debounce writes;
// the catalog never blocks on I/O
type PeerStore interface {
	LoadPeers() ([]*Peer, error)
	QueueSavePeers(peers []*Peer)
}

// Catalog owns the reported and persisted peer sets. All mutations of
// either set go through it
type Catalog struct {
	mutex          sync.Mutex
	logger         *slog.Logger
	clock          bclock.Clock
	rng            *rand.Rand
	store          PeerStore
	isSelf         func(connmanager.NodeAddress) bool
	faultThreshold int
	absoluteLimit  int
	reported       map[connmanager.NodeAddress]*Peer
	persisted      map[connmanager.NodeAddress]*Peer
}

type CatalogConfig struct {
	Logger *slog.Logger
	// Clock is the time source for aging checks
	Clock bclock.Clock
	// Rand drives random purging. Seeded from the clock when nil; tests
	// inject a deterministic source
	Rand *rand.Rand
	// Store may be nil for a purely in-memory catalog
	Store PeerStore
	// IsSelf filters out the local node's own address
	IsSelf         func(connmanager.NodeAddress) bool
	FaultThreshold int
	AbsoluteLimit  int
}

func NewCatalog(cfg CatalogConfig) *Catalog {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = bclock.New()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(cfg.Clock.Now().UnixNano()))
	}
	if cfg.FaultThreshold <= 0 {
		cfg.FaultThreshold = DefaultFaultThreshold
	}
	c := &Catalog{
		logger:         cfg.Logger,
		clock:          cfg.Clock,
		rng:            cfg.Rand,
		store:          cfg.Store,
		isSelf:         cfg.IsSelf,
		faultThreshold: cfg.FaultThreshold,
		absoluteLimit:  cfg.AbsoluteLimit,
		reported:       make(map[connmanager.NodeAddress]*Peer),
		persisted:      make(map[connmanager.NodeAddress]*Peer),
	}
	c.loadPersisted()
	return c
}

func (c *Catalog) loadPersisted() {
	if c.store == nil {
		return
	}
	peers, err := c.store.LoadPeers()
	if err != nil {
		c.logger.Warn(
			fmt.Sprintf("failed to load persisted peers: %s", err),
		)
		return
	}
	if len(peers) == 0 {
		return
	}
	c.logger.Info(
		fmt.Sprintf("we have persisted peers, size = %d", len(peers)),
	)
	for _, peer := range peers {
		if peer == nil || peer.NodeAddress.IsZero() {
			continue
		}
		if c.isSelf != nil && c.isSelf(peer.NodeAddress) {
			continue
		}
		tmpPeer := *peer
		c.persisted[tmpPeer.NodeAddress] = &tmpPeer
	}
}

// SetAbsoluteLimit updates the connection cap used to size the reported
// purge threshold and the gossip batch bound
func (c *Catalog) SetAbsoluteLimit(limit int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.absoluteLimit = limit
}

// AddReported unions a gossiped batch into both sets, purging each back to
// its cap and scheduling a persist. An oversized batch is treated as a rule
// violation against the origin connection and makes no mutation
func (c *Catalog) AddReported(
	batch []*Peer,
	origin connmanager.Connection,
) {
	c.mutex.Lock()
	batchLimit := MaxReportedPeers + c.absoluteLimit + reportedBatchHeadroom
	if len(batch) > batchLimit {
		c.mutex.Unlock()
		// A node trying to send us too many peers is either broken or
		// hostile
		c.logger.Warn(
			fmt.Sprintf(
				"reported peers batch of %d exceeds limit of %d, rejecting",
				len(batch),
				batchLimit,
			),
		)
		if origin != nil {
			origin.ReportRuleViolation(
				connmanager.RuleViolationTooManyReportedPeersSent,
			)
		}
		return
	}
	now := c.clock.Now()
	persistedChanged := false
	for _, peer := range batch {
		if peer == nil || peer.NodeAddress.IsZero() {
			continue
		}
		if c.isSelf != nil && c.isSelf(peer.NodeAddress) {
			continue
		}
		tmpPeer := *peer
		if tmpPeer.FirstSeen.IsZero() {
			tmpPeer.FirstSeen = now
		}
		// Existing records win so that first-seen timestamps stick
		if _, ok := c.reported[tmpPeer.NodeAddress]; !ok {
			reportedPeer := tmpPeer
			c.reported[reportedPeer.NodeAddress] = &reportedPeer
		}
		if _, ok := c.persisted[tmpPeer.NodeAddress]; !ok {
			persistedPeer := tmpPeer
			c.persisted[persistedPeer.NodeAddress] = &persistedPeer
			persistedChanged = true
		}
	}
	c.purgeReportedIfExceedsLocked()
	if c.purgePersistedIfExceedsLocked() {
		persistedChanged = true
	}
	if persistedChanged {
		c.queueSaveLocked()
	}
	count := len(c.reported)
	c.mutex.Unlock()
	c.logger.Debug(
		fmt.Sprintf("number of collected reported peers: %d", count),
	)
}

// RemoveReported removes the record for the address and reports whether it
// existed
func (c *Catalog) RemoveReported(address connmanager.NodeAddress) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.removeReportedLocked(address)
}

func (c *Catalog) removeReportedLocked(
	address connmanager.NodeAddress,
) bool {
	if _, ok := c.reported[address]; !ok {
		return false
	}
	delete(c.reported, address)
	return true
}

// RemovePersisted removes the record for the address, schedules a persist
// and reports whether it existed
func (c *Catalog) RemovePersisted(address connmanager.NodeAddress) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.removePersistedLocked(address)
}

func (c *Catalog) removePersistedLocked(
	address connmanager.NodeAddress,
) bool {
	if _, ok := c.persisted[address]; !ok {
		return false
	}
	delete(c.persisted, address)
	c.queueSaveLocked()
	return true
}

// PurgeOldReported removes reported records older than the retention window
func (c *Catalog) PurgeOldReported() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := c.clock.Now()
	for address, peer := range c.reported {
		if peer.Age(now) > MaxPeerAge {
			delete(c.reported, address)
		}
	}
}

// PurgeOldPersisted removes persisted records older than the retention
// window
func (c *Catalog) PurgeOldPersisted() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.purgeOldPersistedLocked()
}

func (c *Catalog) purgeOldPersistedLocked() {
	now := c.clock.Now()
	changed := false
	for address, peer := range c.persisted {
		if peer.Age(now) > MaxPeerAge {
			delete(c.persisted, address)
			changed = true
		}
	}
	if changed {
		c.queueSaveLocked()
	}
}

// RegisterFault records a failed connection for the address. The reported
// record is dropped; the persisted record is evicted once its failure count
// reaches the fault threshold or when the connection carried a rule
// violation
func (c *Catalog) RegisterFault(
	address connmanager.NodeAddress,
	hadRuleViolation bool,
) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.removeReportedLocked(address)
	doRemovePersisted := hadRuleViolation
	if peer, ok := c.persisted[address]; ok {
		peer.IncreaseFailedAttempts()
		if peer.FailedAttempts >= c.faultThreshold {
			doRemovePersisted = true
		}
	}
	if doRemovePersisted {
		c.removePersistedLocked(address)
	} else {
		c.purgeOldPersistedLocked()
	}
}

func (c *Catalog) purgeReportedIfExceedsLocked() {
	limit := MaxReportedPeers - c.absoluteLimit
	size := len(c.reported)
	if size <= limit {
		return
	}
	c.logger.Debug(
		fmt.Sprintf(
			"we have %d reported peers which exceeds our limit of %d, removing random peers",
			size,
			limit,
		),
	)
	// Random rather than oldest-first, so an adversary cannot steer the
	// purge by manipulating activity timestamps
	addresses := make([]connmanager.NodeAddress, 0, size)
	for address := range c.reported {
		addresses = append(addresses, address)
	}
	for len(c.reported) > limit {
		idx := c.rng.Intn(len(addresses))
		delete(c.reported, addresses[idx])
		addresses[idx] = addresses[len(addresses)-1]
		addresses = addresses[:len(addresses)-1]
	}
}

func (c *Catalog) purgePersistedIfExceedsLocked() bool {
	limit := MaxPersistedPeers
	size := len(c.persisted)
	if size <= limit {
		return false
	}
	c.logger.Debug(
		fmt.Sprintf(
			"we have %d persisted peers which exceeds our limit of %d, removing random peers",
			size,
			limit,
		),
	)
	addresses := make([]connmanager.NodeAddress, 0, size)
	for address := range c.persisted {
		addresses = append(addresses, address)
	}
	for len(c.persisted) > limit {
		idx := c.rng.Intn(len(addresses))
		delete(c.persisted, addresses[idx])
		addresses[idx] = addresses[len(addresses)-1]
		addresses = addresses[:len(addresses)-1]
	}
	return true
}

func (c *Catalog) queueSaveLocked() {
	if c.store == nil {
		return
	}
	c.store.QueueSavePeers(c.persistedSnapshotLocked())
}

// ReportedPeers returns a snapshot of the reported set
func (c *Catalog) ReportedPeers() []*Peer {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ret := make([]*Peer, 0, len(c.reported))
	for _, peer := range c.reported {
		tmpPeer := *peer
		ret = append(ret, &tmpPeer)
	}
	return ret
}

// PersistedPeers returns a snapshot of the persisted set
func (c *Catalog) PersistedPeers() []*Peer {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.persistedSnapshotLocked()
}

func (c *Catalog) persistedSnapshotLocked() []*Peer {
	ret := make([]*Peer, 0, len(c.persisted))
	for _, peer := range c.persisted {
		tmpPeer := *peer
		ret = append(ret, &tmpPeer)
	}
	return ret
}

func (c *Catalog) ReportedCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.reported)
}

func (c *Catalog) PersistedCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.persisted)
}

// PersistedPeer looks up the persisted record for an address
func (c *Catalog) PersistedPeer(
	address connmanager.NodeAddress,
) (Peer, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if peer, ok := c.persisted[address]; ok {
		return *peer, true
	}
	return Peer{}, false
}

// ReportedPeer looks up the reported record for an address
func (c *Catalog) ReportedPeer(
	address connmanager.NodeAddress,
) (Peer, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if peer, ok := c.reported[address]; ok {
		return *peer, true
	}
	return Peer{}, false
}
