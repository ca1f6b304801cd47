// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/store"
	"github.com/mobilegw/gateway/pkg/device"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

type fakeDriver struct {
	kind      string
	probeUp   bool
	probeErr  error
	externalIP string
}

func (f *fakeDriver) Kind() string               { return f.kind }
func (f *fakeDriver) SupportedMethods() []string { return []string{"data_toggle"} }
func (f *fakeDriver) Probe(ctx context.Context) (driverapi.ProbeResult, error) {
	return driverapi.ProbeResult{Up: f.probeUp}, f.probeErr
}
func (f *fakeDriver) QueryExternalIP(ctx context.Context, iface string) (string, error) {
	return f.externalIP, nil
}
func (f *fakeDriver) Rotate(ctx context.Context, method string) error { return nil }

func newTestRegistry() *Registry {
	cfg := common.Defaults()
	lc := logging.NewClient("test", "error", "")
	return New(cfg, lc, store.NewMemoryStore())
}

func TestInsertAndGet(t *testing.T) {
	r := newTestRegistry()
	r.Insert(&device.Record{DeviceID: "android_ABC", Kind: common.KindAndroidUSB}, &fakeDriver{kind: "android_usb"})

	rec, ok := r.Get("android_ABC")
	require.True(t, ok)
	assert.Equal(t, common.StatusOffline, rec.Status)
}

func TestReadyQueue_ExcludesOfflineAndBusy(t *testing.T) {
	r := newTestRegistry()
	r.Insert(&device.Record{DeviceID: "d1"}, &fakeDriver{kind: "android_usb"})
	r.SetStatus("d1", common.StatusOnline)
	r.Insert(&device.Record{DeviceID: "d2"}, &fakeDriver{kind: "android_usb"})
	r.SetStatus("d2", common.StatusBusy)

	ready := r.ReadyQueue()
	require.Len(t, ready, 1)
	assert.Equal(t, "d1", ready[0].DeviceID)
}

func TestMarkAbsent_RemovesAfterGraceWindow(t *testing.T) {
	r := newTestRegistry()
	r.Insert(&device.Record{DeviceID: "d1"}, &fakeDriver{kind: "android_usb"})

	for i := 0; i < r.cfg.Registry.DiscoveryGraceScans; i++ {
		removed := r.MarkAbsent(map[string]bool{})
		assert.Empty(t, removed)
	}
	removed := r.MarkAbsent(map[string]bool{})
	assert.Equal(t, []string{"d1"}, removed)

	_, ok := r.Get("d1")
	assert.False(t, ok)
}

func TestCreateDedicated_RejectsPortCollision(t *testing.T) {
	r := newTestRegistry()
	r.Insert(&device.Record{DeviceID: "d1"}, &fakeDriver{kind: "android_usb"})
	r.Insert(&device.Record{DeviceID: "d2"}, &fakeDriver{kind: "android_usb"})

	require.NoError(t, r.CreateDedicated("d1", 6001, "", ""))
	err := r.CreateDedicated("d2", 6001, "", "")
	require.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.KindPortInUse, ae.Kind())
}

func TestRemoveDedicated_ReleasesPort(t *testing.T) {
	r := newTestRegistry()
	r.Insert(&device.Record{DeviceID: "d1"}, &fakeDriver{kind: "android_usb"})
	require.NoError(t, r.CreateDedicated("d1", 6001, "", ""))
	require.NoError(t, r.RemoveDedicated("d1"))

	r.Insert(&device.Record{DeviceID: "d2"}, &fakeDriver{kind: "android_usb"})
	require.NoError(t, r.CreateDedicated("d2", 6001, "", ""))
}

func TestRecordProbe_TwoFailuresFlipOffline(t *testing.T) {
	r := newTestRegistry()
	r.Insert(&device.Record{DeviceID: "d1"}, &fakeDriver{kind: "android_usb"})
	r.SetStatus("d1", common.StatusOnline)

	r.RecordProbe("d1", driverapi.ProbeResult{Up: false}, nil)
	rec, _ := r.Get("d1")
	assert.Equal(t, common.StatusOnline, rec.Status)

	r.RecordProbe("d1", driverapi.ProbeResult{Up: false}, nil)
	rec, _ = r.Get("d1")
	assert.Equal(t, common.StatusOffline, rec.Status)
}

func TestHealthCheck_RefreshesStaleExternalIP(t *testing.T) {
	r := newTestRegistry()
	r.Insert(&device.Record{DeviceID: "d1"}, &fakeDriver{kind: "android_usb", probeUp: true, externalIP: "9.9.9.9"})
	r.SetStatus("d1", common.StatusOnline)

	r.HealthCheck(context.Background(), "d1")
	rec, _ := r.Get("d1")
	assert.Equal(t, "9.9.9.9", rec.ExternalIP)
	assert.WithinDuration(t, time.Now(), rec.ExternalIPObservedAt, 2*time.Second)
}
