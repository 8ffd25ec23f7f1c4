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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bitrubcoin-dev/bitsquare/peermgr"

	bclock "github.com/benbjohnson/clock"
	badger "github.com/dgraph-io/badger/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// PersistedPeersKey is the blob key holding the persisted peer set
	PersistedPeersKey = "PersistedPeers"

	// DefaultSaveDebounce coalesces bursts of catalog mutations into a
	// single write
	DefaultSaveDebounce = 2 * time.Second

	saveTimestampRowId = 1
)

// SaveTimestamp is the metadata row tracking the last completed write of
// the peers blob
type SaveTimestamp struct {
	ID        uint `gorm:"primarykey"`
	Key       string
	Timestamp int64
}

func (SaveTimestamp) TableName() string {
	return "save_timestamp"
}

// PeerStore persists the peer manager's durable peer set as a single keyed
// blob. Writes are debounced and happen on a background timer; callers
// never block on I/O
type PeerStore struct {
	mutex    sync.Mutex
	store    *Store
	logger   *slog.Logger
	clock    bclock.Clock
	debounce time.Duration
	timer    *bclock.Timer
	pending  []*peermgr.Peer
}

type PeerStoreConfig struct {
	Logger *slog.Logger
	Store  *Store
	// Clock drives the debounce timer. Defaults to the wall clock
	Clock bclock.Clock
	// Debounce defaults to DefaultSaveDebounce
	Debounce time.Duration
}

func NewPeerStore(cfg PeerStoreConfig) *PeerStore {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "storage")
	if cfg.Clock == nil {
		cfg.Clock = bclock.New()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultSaveDebounce
	}
	return &PeerStore{
		store:    cfg.Store,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		debounce: cfg.Debounce,
	}
}

// LoadPeers reads the persisted peer set. A missing blob yields an empty
// set
func (p *PeerStore) LoadPeers() ([]*peermgr.Peer, error) {
	var blobValue []byte
	err := p.store.Blob().View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(PersistedPeersKey))
		if err != nil {
			return err
		}
		blobValue, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			// A recorded save with no blob behind it means we lost data
			var tmpTimestamp SaveTimestamp
			result := p.store.Metadata().First(&tmpTimestamp)
			if result.Error != nil {
				if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
					return nil, result.Error
				}
				return nil, nil
			}
			if tmpTimestamp.Key == PersistedPeersKey {
				p.logger.Warn(
					fmt.Sprintf(
						"peers blob missing despite save recorded at %d",
						tmpTimestamp.Timestamp,
					),
				)
			}
			return nil, nil
		}
		return nil, err
	}
	var peers []*peermgr.Peer
	if err := json.Unmarshal(blobValue, &peers); err != nil {
		return nil, fmt.Errorf("failed to decode peers blob: %w", err)
	}
	return peers, nil
}

// QueueSavePeers records the peer set for writing. The first call arms the
// debounce timer; later calls within the window just replace the payload
func (p *PeerStore) QueueSavePeers(peers []*peermgr.Peer) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.pending = peers
	if p.timer == nil {
		p.timer = p.clock.AfterFunc(p.debounce, p.flushPending)
	}
}

// Flush writes any pending peer set immediately. Used at shutdown so a
// queued save is not lost
func (p *PeerStore) Flush() {
	p.mutex.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mutex.Unlock()
	p.flushPending()
}

func (p *PeerStore) flushPending() {
	p.mutex.Lock()
	p.timer = nil
	peers := p.pending
	p.pending = nil
	p.mutex.Unlock()
	if peers == nil {
		return
	}
	if err := p.save(peers); err != nil {
		// The next queued save retries; nothing else to do here
		p.logger.Warn(
			fmt.Sprintf("failed to save persisted peers: %s", err),
		)
	}
}

func (p *PeerStore) save(peers []*peermgr.Peer) error {
	blobValue, err := json.Marshal(peers)
	if err != nil {
		return err
	}
	err = p.store.Blob().Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(PersistedPeersKey), blobValue)
	})
	if err != nil {
		return err
	}
	// Record the save in metadata
	tmpTimestamp := SaveTimestamp{
		ID:        saveTimestampRowId,
		Key:       PersistedPeersKey,
		Timestamp: p.clock.Now().UnixMilli(),
	}
	result := p.store.Metadata().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"key", "timestamp"}),
	}).Create(&tmpTimestamp)
	if result.Error != nil {
		return result.Error
	}
	p.logger.Debug(
		fmt.Sprintf("saved %d persisted peers", len(peers)),
	)
	return nil
}

var _ peermgr.PeerStore = (*PeerStore)(nil)
