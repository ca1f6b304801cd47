// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package android implements the android_usb driver: rotation by toggling
// the phone's mobile radio over adb shell (§4.B, §6 "Android Debug
// Bridge").
package android

import (
	"bytes"
	"context"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/driver/echoip"
	"github.com/mobilegw/gateway/internal/driver/usbctl"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

// Driver talks to one Android device in USB-tethering mode via adb.
type Driver struct {
	serial string
	lc     *logging.Client

	// FlipAirplaneOnDataToggle is §9 Open Question (a): whether
	// data_toggle should also cycle airplane mode as a belt-and-braces
	// step. Driver-tunable, default false — see DESIGN.md.
	FlipAirplaneOnDataToggle bool

	// SysfsPath is the device's directory under /sys/bus/usb/devices,
	// e.g. "/sys/bus/usb/devices/1-1.2", used by usb_reauthorize. Left
	// empty, usb_reauthorize is not advertised (same pattern as the
	// hilink driver).
	SysfsPath string

	httpClient *http.Client
}

// New constructs an android_usb driver bound to an adb serial.
func New(serial string, lc *logging.Client) *Driver {
	return &Driver{
		serial:     serial,
		lc:         lc.With("device_kind", "android_usb").With("serial", serial),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *Driver) Kind() string { return string(common.KindAndroidUSB) }

func (d *Driver) SupportedMethods() []string {
	methods := []string{
		string(common.MethodAirplaneToggle),
		string(common.MethodDataToggle),
	}
	if d.SysfsPath != "" {
		methods = append(methods, string(common.MethodUSBReauthorize))
	}
	return methods
}

func (d *Driver) Probe(ctx context.Context) (driverapi.ProbeResult, error) {
	out, err := d.shell(ctx, "echo ping")
	if err != nil {
		return driverapi.ProbeResult{}, common.NewAppError(common.KindUnreachable, "adb probe failed", err)
	}
	up := strings.Contains(out, "ping")

	localIP, _ := d.shell(ctx, "ip -4 -o addr show rmnet0")
	return driverapi.ProbeResult{
		Up:                   up,
		ControlAddrReachable: up,
		LocalIP:              extractInetAddr(localIP),
	}, nil
}

func (d *Driver) QueryExternalIP(ctx context.Context, iface string) (string, error) {
	return echoip.Query(ctx, d.httpClient, iface, "")
}

func (d *Driver) Rotate(ctx context.Context, method string) error {
	switch common.Method(method) {
	case common.MethodDataToggle:
		return d.dataToggle(ctx)
	case common.MethodAirplaneToggle:
		return d.airplaneToggle(ctx)
	case common.MethodUSBReauthorize:
		if d.SysfsPath == "" {
			return common.NewAppError(common.KindDriverUnsupported, "no sysfs path configured for usb_reauthorize", nil)
		}
		return usbctl.Reauthorize(ctx, d.SysfsPath)
	default:
		return common.NewAppError(common.KindDriverUnsupported, "unsupported method "+method, nil)
	}
}

func (d *Driver) dataToggle(ctx context.Context) error {
	d.lc.Debug("data_toggle: disabling mobile data")
	if _, err := d.shell(ctx, "svc data disable"); err != nil {
		return common.NewAppError(common.KindDriverError, "svc data disable failed", err)
	}

	if d.FlipAirplaneOnDataToggle {
		if _, err := d.shell(ctx, "settings put global airplane_mode_on 1"); err != nil {
			d.lc.Warn("airplane flip during data_toggle failed, continuing")
		}
	}

	time.Sleep(2 * time.Second)

	if d.FlipAirplaneOnDataToggle {
		if _, err := d.shell(ctx, "settings put global airplane_mode_on 0"); err != nil {
			d.lc.Warn("airplane un-flip during data_toggle failed, continuing")
		}
	}

	d.lc.Debug("data_toggle: re-enabling mobile data")
	if _, err := d.shell(ctx, "svc data enable"); err != nil {
		return common.NewAppError(common.KindDriverError, "svc data enable failed", err)
	}
	return nil
}

func (d *Driver) airplaneToggle(ctx context.Context) error {
	d.lc.Debug("airplane_toggle: entering airplane mode")
	if _, err := d.shell(ctx, "settings put global airplane_mode_on 1"); err != nil {
		return common.NewAppError(common.KindDriverError, "enable airplane mode failed", err)
	}
	if _, err := d.shell(ctx, "am broadcast -a android.intent.action.AIRPLANE_MODE --ez state true"); err != nil {
		d.lc.Warn("airplane broadcast (enable) failed, continuing")
	}

	select {
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	d.lc.Debug("airplane_toggle: leaving airplane mode")
	if _, err := d.shell(ctx, "settings put global airplane_mode_on 0"); err != nil {
		return common.NewAppError(common.KindDriverError, "disable airplane mode failed", err)
	}
	if _, err := d.shell(ctx, "am broadcast -a android.intent.action.AIRPLANE_MODE --ez state false"); err != nil {
		d.lc.Warn("airplane broadcast (disable) failed, continuing")
	}
	return nil
}

// shell runs `adb -s <serial> shell <cmd>`, the exact subprocess
// invocation §6 documents.
func (d *Driver) shell(ctx context.Context, cmd string) (string, error) {
	c := exec.CommandContext(ctx, "adb", "-s", d.serial, "shell", cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return "", common.NewAppError(common.KindDriverError, "adb shell "+cmd+": "+stderr.String(), err)
	}
	return stdout.String(), nil
}

func extractInetAddr(ipAddrOutput string) string {
	fields := strings.Fields(ipAddrOutput)
	for i, f := range fields {
		if f == "inet" && i+1 < len(fields) {
			addr := fields[i+1]
			if slash := strings.IndexByte(addr, '/'); slash >= 0 {
				addr = addr[:slash]
			}
			return addr
		}
	}
	return ""
}
