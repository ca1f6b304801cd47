// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateAndroid_SkipsDeviceWithNoResolvableInterface(t *testing.T) {
	withFakeUSBDevicesRoot(t)
	r := newTestRegistry()
	d := NewDiscoverer(r, nil, "")
	d.runAdbDevices = func(ctx context.Context) (string, error) {
		return "List of devices attached\nABC123\tdevice product:foo\n", nil
	}

	found := d.enumerateAndroid(context.Background())
	assert.Empty(t, found, "device without a resolvable network interface must not be registered")
}

func TestEnumerateAndroid_PopulatesInterfaceWhenResolvable(t *testing.T) {
	root := withFakeUSBDevicesRoot(t)
	deviceDir := filepath.Join(root, "1-1.2")
	require.NoError(t, os.MkdirAll(deviceDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(deviceDir, "serial"), []byte("ABC123\n"), 0644))
	writeNetInterface(t, deviceDir, "1-1.2:1.0", "usb0")

	r := newTestRegistry()
	d := NewDiscoverer(r, nil, "")
	d.runAdbDevices = func(ctx context.Context) (string, error) {
		return "List of devices attached\nABC123\tdevice product:foo\n", nil
	}

	results := d.enumerateAndroid(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "usb0", results[0].iface)

	d.observe(results[0])
	rec, ok := r.Get("android_ABC123")
	require.True(t, ok)
	assert.Equal(t, "usb0", rec.Interface, "binder must receive a real interface, not an empty string")
}

func TestEnumerateSerial_SkipsTTYWithNoResolvableInterface(t *testing.T) {
	withFakeTTYClassRoot(t)
	dir := t.TempDir()
	ttyPath := filepath.Join(dir, "ttyUSB0")
	require.NoError(t, os.WriteFile(ttyPath, nil, 0644))

	r := newTestRegistry()
	d := NewDiscoverer(r, nil, filepath.Join(dir, "ttyUSB*"))

	results := d.enumerateSerial(context.Background())
	assert.Empty(t, results, "tty without a resolvable network interface must not be registered")
}
