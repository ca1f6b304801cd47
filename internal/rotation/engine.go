// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package rotation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/driver"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
	"github.com/mobilegw/gateway/pkg/device"
)

// Engine runs rotations in the caller's goroutine, serialized per device
// by a mutex that rejects a second concurrent attempt. It holds only device IDs
// and looks records up in the registry rather than caching a pointer
// graph into it (§9 "Cyclic references": model as a single owner — the
// registry — that the engine never duplicates state from).
type Engine struct {
	reg *registry.Registry
	cfg *common.Config
	lc  *logging.Client

	// sem bounds concurrent rotations process-wide, protecting the
	// shared USB/ADB subsystems (§4.D "Concurrency", §5 "Shared-resource
	// policy").
	sem chan struct{}

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(reg *registry.Registry, cfg *common.Config, lc *logging.Client) *Engine {
	return &Engine{
		reg:   reg,
		cfg:   cfg,
		lc:    lc.With("component", "rotation-engine"),
		sem:   make(chan struct{}, cfg.Rotation.MaxParallelRotations),
		locks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) deviceLock(id string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// ForceRotate drives one device through preparing → attempt → verifying
// (§4.D, §4.G "force_rotate"). methodOverride empty means use the
// device's configured method_preference.
func (e *Engine) ForceRotate(ctx context.Context, deviceID, methodOverride string) (Outcome, error) {
	rec, ok := e.reg.Get(deviceID)
	if !ok {
		return Outcome{}, common.NewAppError(common.KindNotFound, "unknown device "+deviceID, nil)
	}
	if rec.Status == common.StatusBusy {
		return Outcome{}, common.NewAppError(common.KindRotationBusy, "rotation already in progress for "+deviceID, nil)
	}

	lock := e.deviceLock(deviceID)
	if !lock.TryLock() {
		return Outcome{}, common.NewAppError(common.KindRotationBusy, "rotation already in progress for "+deviceID, nil)
	}
	defer lock.Unlock()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	drv, ok := e.reg.Driver(deviceID)
	if !ok {
		return Outcome{}, common.NewAppError(common.KindNotFound, "no driver attached to "+deviceID, nil)
	}

	if methodOverride != "" && !driver.SupportsMethod(drv, common.Method(methodOverride)) {
		return Outcome{}, common.NewAppError(common.KindDriverUnsupported, "driver does not support method "+methodOverride, nil)
	}

	return e.run(ctx, deviceID, rec, drv, methodOverride)
}

// run is the preparing/attempt/verifying body, separated from
// ForceRotate so the per-device lock and semaphore scope is obvious at
// the call site.
func (e *Engine) run(ctx context.Context, deviceID string, rec *device.Record, drv driver.Driver, methodOverride string) (Outcome, error) {
	e.reg.SetStatus(deviceID, common.StatusBusy)
	ipBefore := rec.ExternalIP

	var methods []common.Method
	if methodOverride != "" {
		methods = []common.Method{common.Method(methodOverride)}
	} else {
		methods = driver.FilterPreference(drv, rec.RotationConfig.MethodPreference)
	}
	if len(methods) == 0 {
		e.finish(deviceID, false)
		return Outcome{DeviceID: deviceID, Result: ResultFailed, IPBefore: ipBefore}, nil
	}

	outcome := Outcome{DeviceID: deviceID, IPBefore: ipBefore}

	for _, method := range methods {
		outcome.MethodsTried = append(outcome.MethodsTried, string(method))
		budget := e.methodBudget(method)

		attemptCtx, cancel := context.WithTimeout(ctx, budget.Upper)
		err := drv.Rotate(attemptCtx, string(method))
		cancel()

		if ctx.Err() == context.Canceled {
			e.lc.With("device_id", deviceID).Info("force-rotate aborted by caller")
			e.finish(deviceID, false)
			outcome.Result = ResultAborted
			return outcome, nil
		}

		if err != nil {
			e.lc.With("device_id", deviceID).With("method", string(method)).Warn("rotation attempt failed: " + err.Error())
			continue
		}

		ip, softFailed := e.verify(ctx, drv, rec.Interface, ipBefore)
		if !softFailed {
			outcome.Result = ResultOK
			outcome.IPAfter = ip
			e.reg.UpdateExternalIP(deviceID, ip)
			e.finish(deviceID, true)
			return outcome, nil
		}

		if e.cfg.Rotation.OnSameIP == common.OnSameIPAccept {
			outcome.Result = ResultSoftFailed
			outcome.IPAfter = ip
			e.finish(deviceID, false)
			return outcome, nil
		}
		// on_same_ip == advance: fall through to the next method.
	}

	outcome.Result = ResultFailed
	e.finish(deviceID, false)
	return outcome, nil
}

// verify polls query_external_ip up to verify_attempts times with a
// fixed backoff, declaring the rotation OK as soon as a non-empty,
// different IP is observed (§4.D "verifying").
func (e *Engine) verify(ctx context.Context, drv driver.Driver, iface, ipBefore string) (ip string, softFailed bool) {
	select {
	case <-time.After(e.cfg.Rotation.PostDelay):
	case <-ctx.Done():
		return "", true
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.Rotation.VerifyBackoff), uint64(e.cfg.Rotation.VerifyAttempts-1))
	b = backoff.WithContext(b, ctx)

	var observed string
	op := func() error {
		queryCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		defer cancel()
		got, err := drv.QueryExternalIP(queryCtx, iface)
		if err != nil {
			return err
		}
		observed = got
		if got == "" || got == ipBefore {
			return errors.New("external IP unchanged")
		}
		return nil
	}

	if err := backoff.Retry(op, b); err != nil {
		return observed, true
	}
	return observed, false
}

func (e *Engine) methodBudget(method common.Method) common.MethodBudget {
	if b, ok := e.cfg.Methods[string(method)]; ok {
		return b
	}
	return common.MethodBudget{Typical: 20 * time.Second, Upper: 45 * time.Second}
}

// finish restores status to online/offline based on the device's last
// known reachability (§4.D "failed: status returns to online if the
// device is still reachable, else offline").
func (e *Engine) finish(deviceID string, ok bool) {
	newStatus := common.StatusOnline
	if rec, exists := e.reg.Get(deviceID); exists && rec.ProbeFailStreak >= 2 {
		newStatus = common.StatusOffline
	}
	e.reg.RecordRotationOutcome(deviceID, ok, newStatus)
}
