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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store pairs a blob DB for opaque values with a metadata DB for
// bookkeeping rows
type Store struct {
	logger        *slog.Logger
	metadata      *gorm.DB
	blob          *badger.DB
	blobGcEnabled bool
	blobGcTimer   *time.Ticker
}

// Metadata returns the underlying metadata DB instance
func (s *Store) Metadata() *gorm.DB {
	return s.metadata
}

// Blob returns the underlying blob DB instance
func (s *Store) Blob() *badger.DB {
	return s.blob
}

func (s *Store) init() error {
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := s.metadata.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	// Create metadata tables
	if err := s.metadata.AutoMigrate(&SaveTimestamp{}); err != nil {
		return err
	}
	// Run GC periodically for Badger DB
	if s.blobGcEnabled {
		s.blobGcTimer = time.NewTicker(5 * time.Minute)
		go s.blobGc()
	}
	return nil
}

func (s *Store) blobGc() {
	for range s.blobGcTimer.C {
	again:
		err := s.blob.RunValueLogGC(0.5)
		if err != nil {
			// Log any actual errors
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn(
					fmt.Sprintf("blob DB: GC failure: %s", err),
					"component", "storage",
				)
			}
		} else {
			// Run it again if it just ran successfully
			goto again
		}
	}
}

// Close releases both underlying databases
func (s *Store) Close() error {
	if s.blobGcTimer != nil {
		s.blobGcTimer.Stop()
	}
	var ret error
	if err := s.blob.Close(); err != nil {
		ret = err
	}
	if sqlDb, err := s.metadata.DB(); err == nil {
		if err := sqlDb.Close(); err != nil {
			ret = err
		}
	}
	return ret
}

// NewInMemory creates a store that keeps all data in memory. Data will not
// be persisted
func NewInMemory(logger *slog.Logger) (*Store, error) {
	// Open sqlite DB
	metadataDb, err := gorm.Open(
		sqlite.Open("file::memory:?cache=shared"),
		&gorm.Config{
			Logger: gormlogger.Discard,
		},
	)
	if err != nil {
		return nil, err
	}
	// Open Badger DB
	badgerOpts := badger.DefaultOptions("").
		WithLogger(NewBadgerLogger(logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING).
		WithInMemory(true)
	blobDb, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	s := &Store{
		logger:   logger,
		metadata: metadataDb,
		blob:     blobDb,
		// We disable badger GC when using an in-memory DB, since it will only throw errors
		blobGcEnabled: false,
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPersistent creates a store backed by the provided data directory,
// providing persistence across restarts
func NewPersistent(
	dataDir string,
	logger *slog.Logger,
) (*Store, error) {
	// Make sure that we can read data dir, and create if it doesn't exist
	if _, err := os.Stat(dataDir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read data dir: %w", err)
		}
		// Create data directory
		if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	// Open sqlite DB
	metadataDbPath := filepath.Join(
		dataDir,
		"metadata.sqlite",
	)
	metadataDb, err := gorm.Open(
		sqlite.Open(metadataDbPath),
		&gorm.Config{
			Logger: gormlogger.Discard,
		},
	)
	if err != nil {
		return nil, err
	}
	// Open Badger DB
	blobDir := filepath.Join(
		dataDir,
		"blob",
	)
	badgerOpts := badger.DefaultOptions(blobDir).
		WithLogger(NewBadgerLogger(logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	blobDb, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	s := &Store{
		logger:        logger,
		metadata:      metadataDb,
		blob:          blobDb,
		blobGcEnabled: true,
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}
