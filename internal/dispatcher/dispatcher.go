// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package dispatcher selects a device for a shared-pool request (load
// balancing, admission control) or resolves a dedicated port to its
// fixed device (§4.E).
package dispatcher

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
	"github.com/mobilegw/gateway/pkg/device"
)

// Dispatcher selects devices for both shared-pool and dedicated-port
// traffic. It owns the per-minute admission-control window; the
// registry has no notion of request rate.
type Dispatcher struct {
	reg *registry.Registry
	cfg *common.Config
	lc  *logging.Client

	limiter *rateLimiter

	rrMu  sync.Mutex
	rrIdx int
}

func New(reg *registry.Registry, cfg *common.Config, lc *logging.Client) *Dispatcher {
	return &Dispatcher{
		reg:     reg,
		cfg:     cfg,
		lc:      lc.With("component", "dispatcher"),
		limiter: newRateLimiter(cfg.Proxy.MaxRPM),
	}
}

// SelectShared picks one eligible device for a shared-pool request
// (§4.E "Shared pool"). clientIP is used only by sticky_client.
func (d *Dispatcher) SelectShared(ctx context.Context, strategy common.SelectionStrategy, clientIP string) (*device.Record, error) {
	candidates := d.admissible()
	if len(candidates) == 0 {
		return nil, common.NewAppError(common.KindNoDeviceAvailable, "no eligible device in shared pool", nil)
	}

	var chosen *device.Record
	switch strategy {
	case common.StrategyRoundRobin:
		chosen = d.roundRobin(candidates)
	case common.StrategyRandom:
		chosen = candidates[rand.Intn(len(candidates))]
	case common.StrategyStickyClient:
		if rec := d.sticky(candidates, clientIP); rec != nil {
			chosen = rec
		} else {
			chosen = d.leastLoaded(candidates)
		}
	case common.StrategyLeastLoaded:
		fallthrough
	default:
		chosen = d.leastLoaded(candidates)
	}

	d.limiter.consume(chosen.DeviceID)
	return chosen, nil
}

// admissible filters ReadyQueue by the per-minute request cap (§4.E
// "Admission control").
func (d *Dispatcher) admissible() []*device.Record {
	ready := d.reg.ReadyQueue()
	out := make([]*device.Record, 0, len(ready))
	for _, rec := range ready {
		if d.limiter.peek(rec.DeviceID) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (d *Dispatcher) roundRobin(candidates []*device.Record) *device.Record {
	d.rrMu.Lock()
	defer d.rrMu.Unlock()
	rec := candidates[d.rrIdx%len(candidates)]
	d.rrIdx++
	return rec
}

func (d *Dispatcher) leastLoaded(candidates []*device.Record) *device.Record {
	best := candidates[0]
	for _, rec := range candidates[1:] {
		if load(rec) < load(best) {
			best = rec
		}
	}
	return best
}

// load ranks a device by in-flight-ish volume: total requests, with
// error rate as a tiebreaker (§4.E "lowest in-flight count, ties broken
// by lowest recent error rate"). The registry does not track true
// concurrent in-flight counts, so requests_total stands in as the load
// signal and the tiebreak uses the observed failure ratio.
func load(rec *device.Record) float64 {
	total := float64(rec.Counters.RequestsTotal)
	if total == 0 {
		return 0
	}
	errRate := float64(rec.Counters.RequestsFail) / total
	return total + errRate
}

func (d *Dispatcher) sticky(candidates []*device.Record, clientIP string) *device.Record {
	if clientIP == "" {
		return nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientIP))
	idx := int(h.Sum32()) % len(candidates)
	if idx < 0 {
		idx += len(candidates)
	}
	return candidates[idx]
}

// SelectDedicated resolves a dedicated listen_port to its bound device,
// waiting up to busy_wait for it to leave busy/offline (§4.E "Dedicated
// port").
func (d *Dispatcher) SelectDedicated(ctx context.Context, port int, busyWait time.Duration) (*device.Record, error) {
	deviceID, ok := d.reg.DeviceForPort(port)
	if !ok {
		return nil, common.NewAppError(common.KindNotFound, "no device bound to dedicated port", nil)
	}

	deadline := time.Now().Add(busyWait)
	for {
		rec, ok := d.reg.Get(deviceID)
		if !ok {
			return nil, common.NewAppError(common.KindNotFound, "dedicated device no longer registered", nil)
		}
		if rec.Status == common.StatusOnline {
			return rec, nil
		}
		if time.Now().After(deadline) {
			kind := common.KindDeviceOffline
			if rec.Status == common.StatusBusy {
				kind = common.KindDeviceBusy
			}
			return nil, common.NewAppError(kind, "dedicated device did not become available", nil)
		}

		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
