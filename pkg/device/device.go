// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package device defines the exported Device record shape, mirroring the
// way the teacher repo exposes its domain model (pkg/models) separately
// from the internal packages that mutate it.
package device

import (
	"time"

	"github.com/mobilegw/gateway/internal/common"
)

// RotationConfig is the per-device rotation schedule and method ordering
// (§3 "rotation_config").
type RotationConfig struct {
	IntervalSeconds  int      `json:"interval_seconds"`
	Auto             bool     `json:"auto"`
	MethodPreference []string `json:"method_preference"`
}

// Counters are monotonic in-memory-only request/byte/latency tallies
// (§3 "counters"). Best-effort: races under concurrent updates are
// acceptable per §5.
type Counters struct {
	RequestsTotal int64   `json:"requests_total"`
	RequestsOK    int64   `json:"requests_ok"`
	RequestsFail  int64   `json:"requests_fail"`
	BytesIn       int64   `json:"bytes_in"`
	BytesOut      int64   `json:"bytes_out"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// Dedicated describes a device's optional dedicated listen port and
// credentials (§3 "dedicated").
type Dedicated struct {
	ListenPort   int    `json:"listen_port"`
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// Record is the full device record of §3. Mutations go through the
// registry's single-writer discipline; callers outside internal/registry
// only ever see copies returned by its read operations.
type Record struct {
	DeviceID string            `json:"device_id"`
	Kind     common.DeviceKind `json:"kind"`

	Interface    string `json:"interface"`
	LocalIP      string `json:"local_ip"`
	ControlAddr  string `json:"control_addr"`

	Status common.Status `json:"status"`

	ExternalIP           string    `json:"external_ip"`
	ExternalIPObservedAt time.Time `json:"external_ip_observed_at"`

	LastRotationAt time.Time `json:"last_rotation_at"`
	LastRotationOK bool      `json:"last_rotation_ok"`

	RotationConfig RotationConfig `json:"rotation_config"`
	Counters       Counters       `json:"counters"`
	Dedicated      *Dedicated     `json:"dedicated,omitempty"`

	// absenceStreak counts consecutive discovery scans that did not
	// observe this device (§4.C); not part of the public contract but
	// exported so the registry's snapshot copies carry it along.
	AbsenceStreak int `json:"-"`
	// probeFailStreak counts consecutive health-probe failures (§4.C
	// "two consecutive failures").
	ProbeFailStreak int `json:"-"`
}

// Clone returns a deep-enough copy safe to hand to a reader outside the
// registry's lock (§5 "readers MAY snapshot immutable views").
func (r *Record) Clone() *Record {
	cp := *r
	cp.RotationConfig.MethodPreference = append([]string(nil), r.RotationConfig.MethodPreference...)
	if r.Dedicated != nil {
		d := *r.Dedicated
		cp.Dedicated = &d
	}
	return &cp
}

// Eligible reports whether the device may be selected for the shared pool
// (§3 invariant: offline/disabled devices must not be selected).
func (r *Record) Eligible() bool {
	return r.Status == common.StatusOnline
}
