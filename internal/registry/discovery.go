// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/driver/android"
	"github.com/mobilegw/gateway/internal/driver/hilink"
	"github.com/mobilegw/gateway/internal/driver/serial"
	"github.com/mobilegw/gateway/pkg/device"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

// found is one physical device observed by a single discovery scan.
type found struct {
	id    string
	kind  common.DeviceKind
	iface string
	ctrl  string
	drv   driverapi.Driver
}

// Discoverer enumerates the three device kinds named in §3/§4.C. It is
// a small struct rather than free functions so its command runner can
// be swapped out in tests.
type Discoverer struct {
	reg *Registry

	// hilinkGateways lists candidate HiLink gateway IPs to probe, since
	// HiLink modems do not show up in any enumerable bus the way adb or
	// tty devices do; operators configure known gateway addresses.
	hilinkGateways []string
	// serialGlob matches candidate AT-command TTYs.
	serialGlob string

	runAdbDevices func(ctx context.Context) (string, error)
}

func NewDiscoverer(reg *Registry, hilinkGateways []string, serialGlob string) *Discoverer {
	if serialGlob == "" {
		serialGlob = "/dev/ttyUSB*"
	}
	d := &Discoverer{reg: reg, hilinkGateways: hilinkGateways, serialGlob: serialGlob}
	d.runAdbDevices = d.execAdbDevices
	return d
}

// Scan performs one discovery pass (§4.C "discovery loop"): enumerate,
// insert newly-seen devices, and age out ones no longer observed.
func (d *Discoverer) Scan(ctx context.Context) {
	seen := make(map[string]bool)

	for _, f := range d.enumerateAndroid(ctx) {
		seen[f.id] = true
		d.observe(f)
	}
	for _, f := range d.enumerateHiLink(ctx) {
		seen[f.id] = true
		d.observe(f)
	}
	for _, f := range d.enumerateSerial(ctx) {
		seen[f.id] = true
		d.observe(f)
	}

	for _, removedID := range d.reg.MarkAbsent(seen) {
		d.reg.lc.With("device_id", removedID).Info("device absent beyond grace window, removed")
	}
}

func (d *Discoverer) observe(f found) {
	if _, exists := d.reg.Get(f.id); exists {
		d.reg.MarkSeen(f.id)
		return
	}
	rec := &device.Record{
		DeviceID:    f.id,
		Kind:        f.kind,
		Interface:   f.iface,
		ControlAddr: f.ctrl,
		RotationConfig: device.RotationConfig{
			IntervalSeconds: d.reg.cfg.Rotation.DefaultIntervalSeconds,
		},
	}
	d.reg.Insert(rec, f.drv)
}

// enumerateAndroid runs `adb devices -l` and constructs one android_usb
// candidate per attached serial (§3 device_id "android_<serial>", §6
// "subprocess invocation of adb -s <serial> shell <cmd>").
func (d *Discoverer) enumerateAndroid(ctx context.Context) []found {
	out, err := d.runAdbDevices(ctx)
	if err != nil {
		d.reg.lc.Warn("adb devices enumeration failed: " + err.Error())
		return nil
	}

	var results []found
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != "device" {
			continue
		}
		serialNo := fields[0]
		id := "android_" + serialNo

		iface, err := resolveInterfaceByUSBSerial(serialNo)
		if err != nil {
			d.reg.lc.With("device_id", id).Warn("skipping android_usb device, no bound interface: " + err.Error())
			continue
		}

		drv := android.New(serialNo, d.reg.lc)
		results = append(results, found{
			id:    id,
			kind:  common.KindAndroidUSB,
			iface: iface,
			ctrl:  serialNo,
			drv:   drv,
		})
	}
	return results
}

func (d *Discoverer) execAdbDevices(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "adb", "devices", "-l").CombinedOutput()
	return string(out), err
}

// enumerateHiLink probes each configured gateway address and, if it
// answers a SesTokInfo request, treats it as present (§3 device_id
// "usb_<vendor>:<product>_<busdev>"; here the gateway IP stands in for
// the bus path since HiLink exposes no USB descriptor directly).
func (d *Discoverer) enumerateHiLink(ctx context.Context) []found {
	var results []found
	for _, gw := range d.hilinkGateways {
		id := "usb_hilink_" + strings.ReplaceAll(gw, ".", "-")

		iface, err := resolveInterfaceByGateway(gw)
		if err != nil {
			d.reg.lc.With("device_id", id).Warn("skipping huawei_hilink device, no bound interface: " + err.Error())
			continue
		}

		drv := hilink.New(gw, iface, d.reg.lc)
		if _, err := drv.Probe(ctx); err != nil {
			continue
		}
		results = append(results, found{
			id:    id,
			kind:  common.KindHuaweiHiLink,
			iface: iface,
			ctrl:  gw,
			drv:   drv,
		})
	}
	return results
}

// enumerateSerial globs for AT-command TTYs (§3 device_id
// "usb_<vendor>:<product>_<busdev>"; tty path stands in for the bus
// path when no stable vendor/product pair is available).
func (d *Discoverer) enumerateSerial(ctx context.Context) []found {
	matches, err := filepath.Glob(d.serialGlob)
	if err != nil {
		return nil
	}
	var results []found
	for _, tty := range matches {
		if _, err := os.Stat(tty); err != nil {
			continue
		}
		id := "usb_serial_" + filepath.Base(tty)

		iface, err := resolveInterfaceByTTY(tty)
		if err != nil {
			d.reg.lc.With("device_id", id).Warn("skipping usb_serial device, no bound interface: " + err.Error())
			continue
		}

		drv := serial.New(tty, d.reg.lc)
		results = append(results, found{
			id:    id,
			kind:  common.KindUSBSerial,
			iface: iface,
			ctrl:  tty,
			drv:   drv,
		})
	}
	return results
}
