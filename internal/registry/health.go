// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"time"
)

// HealthCheck probes one device and refreshes its external IP if stale
// (§4.C "Health loop"). HealthScan calls it for every device; it uses the
// registry's attached driver, so callers need not import driver packages.
func (r *Registry) HealthCheck(ctx context.Context, id string) {
	drv, ok := r.Driver(id)
	if !ok {
		return
	}
	rec, ok := r.Get(id)
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	res, err := drv.Probe(probeCtx)
	cancel()
	r.RecordProbe(id, res, err)
	if err != nil || !res.Up {
		return
	}

	stale := time.Since(rec.ExternalIPObservedAt) > r.cfg.Registry.IPRefresh
	if !stale && rec.ExternalIP != "" {
		return
	}

	ipCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	ip, err := drv.QueryExternalIP(ipCtx, rec.Interface)
	cancel()
	if err != nil {
		r.lc.With("device_id", id).Warn("external IP query failed: " + err.Error())
		return
	}
	r.UpdateExternalIP(id, ip)
}

// HealthScan runs HealthCheck across every known device (§4.C, run on
// every health_interval tick).
func (r *Registry) HealthScan(ctx context.Context) {
	for _, rec := range r.All() {
		r.HealthCheck(ctx, rec.DeviceID)
	}
}
