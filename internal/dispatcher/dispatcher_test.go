// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
	"github.com/mobilegw/gateway/internal/store"
	"github.com/mobilegw/gateway/pkg/device"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

type stubDriver struct{}

func (stubDriver) Kind() string               { return "android_usb" }
func (stubDriver) SupportedMethods() []string { return nil }
func (stubDriver) Probe(ctx context.Context) (driverapi.ProbeResult, error) {
	return driverapi.ProbeResult{Up: true}, nil
}
func (stubDriver) QueryExternalIP(ctx context.Context, iface string) (string, error) {
	return "", nil
}
func (stubDriver) Rotate(ctx context.Context, method string) error { return nil }

func newTestSetup(t *testing.T) (*registry.Registry, *common.Config) {
	cfg := common.Defaults()
	lc := logging.NewClient("test", "error", "")
	reg := registry.New(cfg, lc, store.NewMemoryStore())
	return reg, cfg
}

func TestSelectShared_NoDeviceAvailable(t *testing.T) {
	reg, cfg := newTestSetup(t)
	d := New(reg, cfg, logging.NewClient("test", "error", ""))

	_, err := d.SelectShared(context.Background(), common.StrategyLeastLoaded, "")
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.KindNoDeviceAvailable, ae.Kind())
}

func TestSelectShared_LeastLoadedPicksLowestTotal(t *testing.T) {
	reg, cfg := newTestSetup(t)
	d := New(reg, cfg, logging.NewClient("test", "error", ""))

	reg.Insert(&device.Record{DeviceID: "d1"}, stubDriver{})
	reg.Insert(&device.Record{DeviceID: "d2"}, stubDriver{})
	reg.SetStatus("d1", common.StatusOnline)
	reg.SetStatus("d2", common.StatusOnline)
	reg.AddCounters("d1", true, 0, 0, 1)
	reg.AddCounters("d1", true, 0, 0, 1)
	reg.AddCounters("d2", true, 0, 0, 1)

	rec, err := d.SelectShared(context.Background(), common.StrategyLeastLoaded, "")
	require.NoError(t, err)
	assert.Equal(t, "d2", rec.DeviceID)
}

func TestSelectShared_StickyClientIsDeterministic(t *testing.T) {
	reg, cfg := newTestSetup(t)
	d := New(reg, cfg, logging.NewClient("test", "error", ""))

	reg.Insert(&device.Record{DeviceID: "d1"}, stubDriver{})
	reg.Insert(&device.Record{DeviceID: "d2"}, stubDriver{})
	reg.SetStatus("d1", common.StatusOnline)
	reg.SetStatus("d2", common.StatusOnline)

	first, err := d.SelectShared(context.Background(), common.StrategyStickyClient, "203.0.113.9")
	require.NoError(t, err)
	second, err := d.SelectShared(context.Background(), common.StrategyStickyClient, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, first.DeviceID, second.DeviceID)
}

func TestSelectDedicated_WaitsThenTimesOutBusy(t *testing.T) {
	reg, cfg := newTestSetup(t)
	d := New(reg, cfg, logging.NewClient("test", "error", ""))

	reg.Insert(&device.Record{DeviceID: "d1"}, stubDriver{})
	require.NoError(t, reg.CreateDedicated("d1", 6001, "", ""))
	reg.SetStatus("d1", common.StatusBusy)

	_, err := d.SelectDedicated(context.Background(), 6001, 50*time.Millisecond)
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.KindDeviceBusy, ae.Kind())
}

func TestSelectDedicated_SucceedsOnceOnline(t *testing.T) {
	reg, cfg := newTestSetup(t)
	d := New(reg, cfg, logging.NewClient("test", "error", ""))

	reg.Insert(&device.Record{DeviceID: "d1"}, stubDriver{})
	require.NoError(t, reg.CreateDedicated("d1", 6001, "", ""))
	reg.SetStatus("d1", common.StatusOnline)

	rec, err := d.SelectDedicated(context.Background(), 6001, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "d1", rec.DeviceID)
}

func TestRateLimiter_CapsAtMaxPerMinute(t *testing.T) {
	rl := newRateLimiter(2)
	assert.True(t, rl.peek("d1"))
	rl.consume("d1")
	assert.True(t, rl.peek("d1"))
	rl.consume("d1")
	assert.False(t, rl.peek("d1"))
}
