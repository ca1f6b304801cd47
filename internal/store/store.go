// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package store persists the only two things §6 "Persisted state"
// requires: the device→dedicated-port mapping and per-device rotation
// configuration, keyed by stable device_id so bindings survive a
// restart.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/pkg/device"
)

const keyPrefix = "gw:device:"

// Persisted is the subset of a device record that survives a restart.
type Persisted struct {
	RotationConfig device.RotationConfig `json:"rotation_config"`
	Dedicated      *device.Dedicated     `json:"dedicated,omitempty"`
}

// Store is the persistence contract the registry depends on.
type Store interface {
	Load(deviceID string) (*Persisted, error)
	Save(rec *device.Record) error
	Delete(deviceID string) error
}

// New picks a Redis-backed store when cfg.Redis.Addr is set, otherwise
// an in-memory store that degrades gracefully to "nothing survives a
// restart" rather than failing startup (§6, §9 "neither is implicit
// global state" — the store is constructed once and passed in).
func New(cfg *common.Config, lc *logging.Client) Store {
	if cfg.Redis.Addr == "" {
		lc.Info("no redis address configured, using in-memory store (dedicated ports and rotation config will not survive a restart)")
		return NewMemoryStore()
	}
	return NewRedisStore(cfg, lc)
}

// MemoryStore is the degrade-to-memory fallback.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Persisted
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Persisted)}
}

func (m *MemoryStore) Load(deviceID string) (*Persisted, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data[deviceID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) Save(rec *device.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[rec.DeviceID] = &Persisted{RotationConfig: rec.RotationConfig, Dedicated: rec.Dedicated}
	return nil
}

func (m *MemoryStore) Delete(deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, deviceID)
	return nil
}

// RedisStore persists via go-redis, grounded in the dependency pulled
// in for this gateway's persistence layer (the teacher repo itself has
// no cache-backed persistence of this kind).
type RedisStore struct {
	rdb *redis.Client
	lc  *logging.Client
}

func NewRedisStore(cfg *common.Config, lc *logging.Client) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &RedisStore{rdb: rdb, lc: lc.With("component", "redis-store")}
}

func (s *RedisStore) Load(deviceID string) (*Persisted, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.rdb.Get(ctx, keyPrefix+deviceID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		s.lc.Warn(fmt.Sprintf("redis load failed for %s, treating as unset: %v", deviceID, err))
		return nil, nil
	}

	var p Persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStore) Save(rec *device.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := Persisted{RotationConfig: rec.RotationConfig, Dedicated: rec.Dedicated}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, keyPrefix+rec.DeviceID, raw, 0).Err(); err != nil {
		s.lc.Warn(fmt.Sprintf("redis save failed for %s: %v", rec.DeviceID, err))
		return err
	}
	return nil
}

func (s *RedisStore) Delete(deviceID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.rdb.Del(ctx, keyPrefix+deviceID).Err()
}
