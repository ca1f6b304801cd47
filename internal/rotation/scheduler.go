// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
)

// autoRotationTick is how often the scheduler checks whether any
// device's auto-rotation interval has elapsed. The spec names no
// separate config knob for this cadence; it is fixed at the default
// discovery interval and does not follow Registry.DiscoveryInterval.
const autoRotationTick = 10 * time.Second

// Scheduler drives the three background periodic tasks of §4.C/§4.D:
// discovery, health, and automatic rotation. It reuses the teacher's
// cron-based scheduling idiom (internal/scheduler), generalized from
// named calendar ScheduleEvents to three process-wide fixed-interval
// "@every" jobs, each of which walks every device.
type Scheduler struct {
	cr  *cron.Cron
	reg *registry.Registry
	eng *Engine
	dsc *registry.Discoverer
	cfg *common.Config
	lc  *logging.Client
}

func NewScheduler(reg *registry.Registry, eng *Engine, dsc *registry.Discoverer, cfg *common.Config, lc *logging.Client) *Scheduler {
	return &Scheduler{
		cr:  cron.New(),
		reg: reg,
		eng: eng,
		dsc: dsc,
		cfg: cfg,
		lc:  lc.With("component", "scheduler"),
	}
}

// Start registers the periodic jobs and begins running them. Discovery
// and health run immediately once before the first tick so the registry
// is populated without waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.dsc.Scan(ctx)
	s.reg.HealthScan(ctx)

	if _, err := s.cr.AddFunc(everySpec(s.cfg.Registry.DiscoveryInterval), func() {
		s.dsc.Scan(ctx)
	}); err != nil {
		return err
	}

	if _, err := s.cr.AddFunc(everySpec(s.cfg.Registry.HealthInterval), func() {
		s.reg.HealthScan(ctx)
	}); err != nil {
		return err
	}

	if _, err := s.cr.AddFunc(everySpec(autoRotationTick), func() {
		s.autoRotationScan(ctx)
	}); err != nil {
		return err
	}

	s.cr.Start()
	return nil
}

func (s *Scheduler) Stop() {
	stopCtx := s.cr.Stop()
	<-stopCtx.Done()
	s.lc.Info("scheduler stopped")
}

// autoRotationScan implements §4.D "Automatic rotation scheduler": for
// every device with rotation_config.auto set, submit a rotation request
// once now - last_rotation_at ≥ interval_seconds and the device is
// online.
func (s *Scheduler) autoRotationScan(ctx context.Context) {
	for _, rec := range s.reg.All() {
		if !rec.RotationConfig.Auto || rec.RotationConfig.IntervalSeconds <= 0 {
			continue
		}
		if rec.Status != common.StatusOnline {
			continue
		}
		due := time.Since(rec.LastRotationAt) >= time.Duration(rec.RotationConfig.IntervalSeconds)*time.Second
		if !due {
			continue
		}

		deviceID := rec.DeviceID
		go func() {
			outcome, err := s.eng.ForceRotate(ctx, deviceID, "")
			if err != nil {
				s.lc.With("device_id", deviceID).Warn("auto-rotation submit failed: " + err.Error())
				return
			}
			s.lc.With("device_id", deviceID).With("result", string(outcome.Result)).Info("auto-rotation completed")
		}()
	}
}

func everySpec(d time.Duration) string {
	if d <= 0 {
		d = time.Second
	}
	return fmt.Sprintf("@every %s", d.String())
}
