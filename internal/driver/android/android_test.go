// SPDX-License-Identifier: Apache-2.0

package android

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/logging"
)

func TestDriver_KindAndMethods(t *testing.T) {
	d := New("ABC123", logging.NewClient("test", "info", ""))
	assert.Equal(t, string(common.KindAndroidUSB), d.Kind())
	assert.Contains(t, d.SupportedMethods(), string(common.MethodDataToggle))
	assert.Contains(t, d.SupportedMethods(), string(common.MethodAirplaneToggle))
}

func TestExtractInetAddr(t *testing.T) {
	out := "5: rmnet0    inet 10.123.45.6/29 scope global rmnet0\\       valid_lft forever preferred_lft forever"
	assert.Equal(t, "10.123.45.6", extractInetAddr(out))
	assert.Equal(t, "", extractInetAddr(""))
}

func TestDriver_RotateUnsupportedMethod(t *testing.T) {
	d := New("ABC123", logging.NewClient("test", "info", ""))
	err := d.Rotate(nil, "nonexistent_method") //nolint:staticcheck
	assert.Error(t, err)
}

func TestDriver_USBReauthorize_RequiresSysfsPath(t *testing.T) {
	d := New("ABC123", logging.NewClient("test", "info", ""))
	assert.NotContains(t, d.SupportedMethods(), string(common.MethodUSBReauthorize))

	err := d.Rotate(nil, string(common.MethodUSBReauthorize)) //nolint:staticcheck
	assert.Error(t, err)

	d.SysfsPath = "/sys/bus/usb/devices/1-1.2"
	assert.Contains(t, d.SupportedMethods(), string(common.MethodUSBReauthorize))
}
