// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package store is the external glue: it owns the on-disk layout, mounts
// the KV backend, and exposes the full public operation surface (lifecycle,
// read-side queries, and the single queue_transactions mutation entry
// point) over the strip engine, buffered transaction, sequencer pipeline,
// and generic object map underneath.
package store

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cubefs/objectstore/common/kvstore"
	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/pipeline"
	"github.com/cubefs/objectstore/util/limiter"
)

const (
	fsidFileName    = "fsid"
	versionFileName = "store_version"
	currentDirName  = "current"

	storeVersion = uint32(1)
)

// Config configures Mount. KVOption is passed straight through to the KV
// backend; Workers sizes the pipeline's worker pool; Limiter bounds the
// byte rate of stripe reads and writes the store issues against the
// backend.
type Config struct {
	KVOption kvstore.Option      `json:"kv_option"`
	Workers  int                 `json:"workers"`
	Limiter  limiter.LimitConfig `json:"limiter"`
}

// DefaultConfig returns a Config with a modest fixed worker count and no
// rate limiting, suitable for tests and small deployments.
func DefaultConfig() *Config {
	return &Config{Workers: 8}
}

// Store is one mounted object store instance: the KV backend, the generic
// object map and pipeline built on top of it, the rate limiter guarding
// bulk stripe I/O, and the fsid lock held for the lifetime of the mount.
type Store struct {
	basedir string
	fsid    string

	kv       kvstore.Store
	gom      *objectmap.Map
	pipeline *pipeline.Pipeline
	limiter  limiter.Limiter

	lockFile *os.File
}

// Mkfs initializes a fresh on-disk layout at basedir: an fsid file holding
// a new random uuid, a store_version file, and an empty current/ directory
// for the KV backend. It fails if basedir already holds an fsid file.
func Mkfs(basedir string) error {
	if _, err := os.Stat(filepath.Join(basedir, fsidFileName)); err == nil {
		return apierrors.Info(apierrors.ErrAlreadyExists, "mkfs: fsid already present")
	}
	if err := os.MkdirAll(filepath.Join(basedir, currentDirName), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(basedir, fsidFileName), []byte(uuid.NewString()), 0o644); err != nil {
		return err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, storeVersion)
	return os.WriteFile(filepath.Join(basedir, versionFileName), buf, 0o644)
}

// newFromKV builds a Store directly on top of an already-open KV backend,
// skipping the fsid lock and on-disk layout Mount otherwise manages. Tests
// use this to exercise the query/mutate surface against an in-memory KV
// double without a real mount.
func newFromKV(kv kvstore.Store, workers int, limCfg limiter.LimitConfig) *Store {
	if workers <= 0 {
		workers = 1
	}
	gom := objectmap.New(kv)
	lim := limiter.NewLimiter(limCfg)
	return &Store{
		kv:       kv,
		gom:      gom,
		pipeline: pipeline.New(gom, workers, lim),
		limiter:  lim,
	}
}

// Mount opens basedir, exclusively locking its fsid file for the lifetime
// of the returned Store, opens the KV backend under current/, creates any
// generic-object-map column family missing from a fresh Mkfs, and starts
// the sequencer pipeline.
func Mount(ctx context.Context, basedir string, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	fsid, lockFile, err := lockFsid(filepath.Join(basedir, fsidFileName))
	if err != nil {
		return nil, err
	}

	opt := cfg.KVOption
	opt.CreateIfMissing = true
	opt.ColumnFamily = objectmap.AllColumns
	kv, err := kvstore.NewKVStore(ctx, filepath.Join(basedir, currentDirName), kvstore.RocksdbLsmKVType, &opt)
	if err != nil {
		lockFile.Close()
		return nil, err
	}
	for _, cf := range objectmap.AllColumns {
		if !kv.CheckColumns(cf) {
			if err := kv.CreateColumn(cf); err != nil {
				kv.Close()
				lockFile.Close()
				return nil, err
			}
		}
	}

	gom := objectmap.New(kv)
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	lim := limiter.NewLimiter(cfg.Limiter)
	return &Store{
		basedir:  basedir,
		fsid:     fsid,
		kv:       kv,
		gom:      gom,
		pipeline: pipeline.New(gom, workers, lim),
		limiter:  lim,
		lockFile: lockFile,
	}, nil
}

// Umount stops the pipeline, closes the KV backend, and releases the fsid
// lock. The Store must not be used afterward.
func (s *Store) Umount() error {
	s.pipeline.Close()
	s.kv.Close()
	err := s.lockFile.Close()
	return err
}

// FSID returns the uuid text this store was mounted with.
func (s *Store) FSID() string { return s.fsid }

// NewSequencer returns a fresh OpSequencer for a caller that wants to pin
// several related queue_transactions calls to one FIFO, guaranteeing they
// apply and commit in submission order.
func (s *Store) NewSequencer() *pipeline.OpSequencer {
	return pipeline.NewOpSequencer()
}

// Statfs reports the KV backend's on-disk usage and in-memory cache
// footprint alongside the rate limiter's current status. It carries no
// capacity/free-space fields of the kind a classic statfs(2) call exposes.
type Statfs struct {
	KV      kvstore.Stats
	Limiter limiter.Status
}

func (s *Store) Statfs(ctx context.Context) (Statfs, error) {
	kvStats, err := s.kv.Stats(ctx)
	if err != nil {
		return Statfs{}, err
	}
	return Statfs{KV: kvStats, Limiter: s.limiter.Status()}, nil
}
