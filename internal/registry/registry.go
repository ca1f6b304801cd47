// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the device table (§3 "in-memory tables") and
// its single-writer discipline, modeled on the teacher's internal/cache
// package but keyed by device_id rather than EdgeX device name.
package registry

import (
	"sync"
	"time"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/store"
	"github.com/mobilegw/gateway/pkg/device"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

// Registry is the single owner of the device table (§9 "Cyclic
// references": the registry holds everything the engine and dispatcher
// need to look up; neither of them holds a pointer graph into it).
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*device.Record
	byPort  map[int]string
	drivers map[string]driverapi.Driver

	cfg   *common.Config
	lc    *logging.Client
	store store.Store
}

func New(cfg *common.Config, lc *logging.Client, st store.Store) *Registry {
	return &Registry{
		byID:    make(map[string]*device.Record),
		byPort:  make(map[int]string),
		drivers: make(map[string]driverapi.Driver),
		cfg:     cfg,
		lc:      lc,
		store:   st,
	}
}

// Get returns a snapshot copy of one record (§5 "readers MAY snapshot
// immutable views").
func (r *Registry) Get(id string) (*device.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Driver returns the driver instance bound to a device, if any.
func (r *Registry) Driver(id string) (driverapi.Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[id]
	return d, ok
}

// All returns a snapshot of every record, ordered by insertion into the
// map is not guaranteed; callers that need stable order (round_robin)
// sort by device_id themselves.
func (r *Registry) All() []*device.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*device.Record, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec.Clone())
	}
	return out
}

// ReadyQueue returns the subset eligible for shared-pool selection
// (§3 "ready_queue"): online and not busy. max_rpm admission control is
// layered on top by the dispatcher, which needs request-rate state this
// package does not keep.
func (r *Registry) ReadyQueue() []*device.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*device.Record, 0, len(r.byID))
	for _, rec := range r.byID {
		if rec.Eligible() {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Insert adds a newly discovered device with status offline until its
// first successful probe (§3 "Lifecycle: Created").
func (r *Registry) Insert(rec *device.Record, drv driverapi.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[rec.DeviceID]; exists {
		return
	}
	rec.Status = common.StatusOffline
	r.byID[rec.DeviceID] = rec
	r.drivers[rec.DeviceID] = drv
	r.lc.With("device_id", rec.DeviceID).With("kind", string(rec.Kind)).Info("discovered device")

	if persisted, err := r.store.Load(rec.DeviceID); err == nil && persisted != nil {
		rec.RotationConfig = persisted.RotationConfig
		rec.Dedicated = persisted.Dedicated
		if rec.Dedicated != nil {
			r.byPort[rec.Dedicated.ListenPort] = rec.DeviceID
		}
	}
}

// MarkSeen clears a device's absence streak after a discovery scan
// observes it again.
func (r *Registry) MarkSeen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byID[id]; ok {
		rec.AbsenceStreak = 0
	}
}

// MarkAbsent increments the absence counter for every record not in the
// supplied seen set, removing any that exceed DiscoveryGraceScans (§4.C).
func (r *Registry) MarkAbsent(seen map[string]bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, rec := range r.byID {
		if seen[id] {
			continue
		}
		rec.AbsenceStreak++
		if rec.AbsenceStreak > r.cfg.Registry.DiscoveryGraceScans {
			delete(r.byID, id)
			delete(r.drivers, id)
			if rec.Dedicated != nil {
				delete(r.byPort, rec.Dedicated.ListenPort)
			}
			removed = append(removed, id)
		}
	}
	return removed
}

// SetStatus sets a device's status directly, used by the rotation
// engine to flip busy/online/offline.
func (r *Registry) SetStatus(id string, status common.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byID[id]; ok {
		rec.Status = status
	}
}

// RecordProbe applies a health-probe outcome: one failure alone does not
// flip status, two consecutive failures do (§4.C, §8).
func (r *Registry) RecordProbe(id string, res driverapi.ProbeResult, probeErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return
	}
	if probeErr != nil || !res.Up {
		rec.ProbeFailStreak++
		if rec.ProbeFailStreak >= 2 {
			rec.Status = common.StatusOffline
		}
		return
	}
	rec.ProbeFailStreak = 0
	if res.LocalIP != "" {
		rec.LocalIP = res.LocalIP
	}
	if rec.Status == common.StatusOffline {
		rec.Status = common.StatusOnline
	}
}

// UpdateExternalIP records a freshly observed exit IP; observed_at is
// non-decreasing (§3 invariant) because it is always set to now.
func (r *Registry) UpdateExternalIP(id, ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byID[id]; ok && ip != "" {
		rec.ExternalIP = ip
		rec.ExternalIPObservedAt = time.Now()
	}
}

// RecordRotationOutcome updates post-rotation bookkeeping and restores
// status (§4.D "ok"/"failed").
func (r *Registry) RecordRotationOutcome(id string, ok bool, newStatus common.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, exists := r.byID[id]
	if !exists {
		return
	}
	rec.LastRotationAt = time.Now()
	rec.LastRotationOK = ok
	rec.Status = newStatus
}

// SetRotationConfig updates the per-device schedule and persists it
// (§6 "Persisted state").
func (r *Registry) SetRotationConfig(id string, cfg device.RotationConfig) error {
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return common.NewAppError(common.KindNotFound, "unknown device "+id, nil)
	}
	rec.RotationConfig = cfg
	snapshot := rec.Clone()
	r.mu.Unlock()

	return r.store.Save(snapshot)
}

// CreateDedicated binds a listen_port to a device, failing if the port
// is already in use by another device or this device already has one
// (§3 invariant, §4.G).
func (r *Registry) CreateDedicated(id string, port int, username, passwordHash string) error {
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return common.NewAppError(common.KindNotFound, "unknown device "+id, nil)
	}
	if owner, taken := r.byPort[port]; taken && owner != id {
		r.mu.Unlock()
		return common.NewAppError(common.KindPortInUse, "listen port already in use", nil)
	}
	if rec.Dedicated != nil {
		r.mu.Unlock()
		return common.NewAppError(common.KindPortInUse, "device already has a dedicated port", nil)
	}
	rec.Dedicated = &device.Dedicated{ListenPort: port, Username: username, PasswordHash: passwordHash}
	r.byPort[port] = id
	snapshot := rec.Clone()
	r.mu.Unlock()

	return r.store.Save(snapshot)
}

// RemoveDedicated releases a device's dedicated port before another
// device may claim it (§3 invariant).
func (r *Registry) RemoveDedicated(id string) error {
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return common.NewAppError(common.KindNotFound, "unknown device "+id, nil)
	}
	if rec.Dedicated != nil {
		delete(r.byPort, rec.Dedicated.ListenPort)
	}
	rec.Dedicated = nil
	snapshot := rec.Clone()
	r.mu.Unlock()

	return r.store.Save(snapshot)
}

// DeviceForPort resolves a dedicated listen_port to its bound device_id.
func (r *Registry) DeviceForPort(port int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPort[port]
	return id, ok
}

// AddCounters applies a best-effort, racy counter update (§5 "Counter
// updates are best-effort").
func (r *Registry) AddCounters(id string, ok bool, bytesIn, bytesOut int64, latencyMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, exists := r.byID[id]
	if !exists {
		return
	}
	c := &rec.Counters
	c.RequestsTotal++
	if ok {
		c.RequestsOK++
	} else {
		c.RequestsFail++
	}
	c.BytesIn += bytesIn
	c.BytesOut += bytesOut
	if c.RequestsTotal == 1 {
		c.AvgLatencyMs = latencyMs
	} else {
		c.AvgLatencyMs += (latencyMs - c.AvgLatencyMs) / float64(c.RequestsTotal)
	}
}
