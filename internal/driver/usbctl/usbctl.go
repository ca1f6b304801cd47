// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package usbctl implements the host-side USB operations shared by the
// HiLink and Android drivers: usb_modeswitch invocation and sysfs
// "authorized" toggling (§4.B usb_reauthorize, §6 "USB modeswitch" /
// "sysfs authorize").
package usbctl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mobilegw/gateway/internal/common"
)

// Reauthorize writes "0" then "1" to the device's sysfs authorized file,
// forcing the kernel to re-enumerate the USB device (§6 "sysfs
// authorize"). sysfsPath is the device directory under
// /sys/bus/usb/devices/<path>, e.g. "/sys/bus/usb/devices/1-1.2".
func Reauthorize(ctx context.Context, sysfsPath string) error {
	authFile := filepath.Join(sysfsPath, "authorized")

	if err := writeAuthorized(authFile, "0"); err != nil {
		return common.NewAppError(common.KindDriverError, "deauthorize "+authFile, err)
	}

	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := writeAuthorized(authFile, "1"); err != nil {
		return common.NewAppError(common.KindDriverError, "reauthorize "+authFile, err)
	}
	return nil
}

func writeAuthorized(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(value)
	return err
}

// ModeSwitch invokes usb_modeswitch to flip a device out of mass-storage
// mode into its networking mode, using the vendor/product ID pair and
// message hex string the device's configuration specifies (§6 "USB
// modeswitch").
func ModeSwitch(ctx context.Context, vendorID, productID, targetVendorID, targetProductID, messageContent string) error {
	args := []string{
		"-v", vendorID,
		"-p", productID,
	}
	if targetVendorID != "" {
		args = append(args, "-V", targetVendorID)
	}
	if targetProductID != "" {
		args = append(args, "-P", targetProductID)
	}
	if messageContent != "" {
		args = append(args, "-M", messageContent)
	}

	cmd := exec.CommandContext(ctx, "usb_modeswitch", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return common.NewAppError(common.KindDriverError, fmt.Sprintf("usb_modeswitch failed: %s", string(out)), err)
	}
	return nil
}

// WaitForInterface polls until an interface named iface appears (e.g.
// after a modeswitch or reauthorize forces device re-enumeration),
// returning an error if it does not appear before ctx is done (§9 Open
// Question b: "fail the attempt if the interface does not re-appear").
func WaitForInterface(ctx context.Context, iface string, pollEvery time.Duration) error {
	sysPath := filepath.Join("/sys/class/net", iface)
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(sysPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return common.NewAppError(common.KindTimedOut, "interface "+iface+" did not re-appear", ctx.Err())
		case <-ticker.C:
		}
	}
}
