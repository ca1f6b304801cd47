// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// usbDevicesRoot/ttyClassRoot are package vars, not constants, so tests can
// point them at a fabricated sysfs tree under t.TempDir() instead of the
// real /sys.
var (
	usbDevicesRoot = "/sys/bus/usb/devices"
	ttyClassRoot   = "/sys/class/tty"
)

// resolveInterfaceByUSBSerial finds the network interface (e.g. "usb0",
// "rndis0", or a udev-assigned "enx<mac>") exposed by the USB device whose
// reported iSerial matches serialNo, by walking sysfs the way udev itself
// does: /sys/bus/usb/devices/<dev>/serial names the device, and any
// composite-function subdirectory of <dev> that carries a net/ directory
// is the data interface for that device (§4.A requires binding to the
// actual interface, not guessing one).
func resolveInterfaceByUSBSerial(serialNo string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(usbDevicesRoot, "*", "serial"))
	if err != nil {
		return "", err
	}
	for _, serialFile := range matches {
		data, err := os.ReadFile(serialFile)
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) != serialNo {
			continue
		}
		if iface, ok := firstNetInterfaceUnder(filepath.Dir(serialFile)); ok {
			return iface, nil
		}
	}
	return "", fmt.Errorf("no network interface found for USB serial %s", serialNo)
}

// resolveInterfaceByTTY finds the network interface exposed by the same
// USB device as the AT-command tty at ttyPath. The tty device link points
// at one composite-function subdirectory of the physical USB device
// (".../1-1.2/1-1.2:1.0/tty/ttyUSB2"); its sibling function directories
// are searched for the one carrying a net/ directory.
func resolveInterfaceByTTY(ttyPath string) (string, error) {
	base := filepath.Base(ttyPath)
	devLink := filepath.Join(ttyClassRoot, base, "device")
	resolved, err := filepath.EvalSymlinks(devLink)
	if err != nil {
		return "", fmt.Errorf("resolving tty device link for %s: %w", ttyPath, err)
	}

	// resolved is the tty's own composite-function directory
	// (".../1-1.2/1-1.2:1.0"); its parent is the physical USB device
	// directory shared by the AT-command and networking functions.
	usbDevice := filepath.Dir(resolved)
	if iface, ok := firstNetInterfaceUnder(usbDevice); ok {
		return iface, nil
	}
	return "", fmt.Errorf("no network interface found for tty %s", ttyPath)
}

// resolveInterfaceByGateway finds the local interface whose assigned IPv4
// network contains gatewayAddr (the HiLink modem's on-device gateway,
// typically 192.168.8.1), since HiLink modems expose no USB descriptor
// that names an interface directly.
func resolveInterfaceByGateway(gatewayAddr string) (string, error) {
	gwIP := net.ParseIP(gatewayAddr)
	if gwIP == nil {
		return "", fmt.Errorf("invalid gateway address %q", gatewayAddr)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			if ipNet.Contains(gwIP) {
				return iface.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no local interface routes to gateway %s", gatewayAddr)
}

// firstNetInterfaceUnder returns the name of the first network interface
// found under any immediate subdirectory of usbDeviceDir that carries a
// net/ directory (the sysfs shape of a composite USB device's networking
// function).
func firstNetInterfaceUnder(usbDeviceDir string) (string, bool) {
	netDirs, err := filepath.Glob(filepath.Join(usbDeviceDir, "*", "net", "*"))
	if err != nil || len(netDirs) == 0 {
		// The device itself (not a sub-function) may carry net/ directly,
		// as with RNDIS gadgets that expose a single USB function.
		netDirs, err = filepath.Glob(filepath.Join(usbDeviceDir, "net", "*"))
		if err != nil || len(netDirs) == 0 {
			return "", false
		}
	}
	return filepath.Base(netDirs[0]), true
}
