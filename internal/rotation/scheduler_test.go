// SPDX-License-Identifier: Apache-2.0

package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/pkg/device"
)

func TestAutoRotationScan_SkipsDevicesNotDue(t *testing.T) {
	drv := &scriptedDriver{methods: []string{"data_toggle"}, ips: []string{"9.9.9.9"}}
	rec := &device.Record{
		DeviceID:       "d1",
		ExternalIP:     "1.1.1.1",
		LastRotationAt: time.Now(),
		RotationConfig: device.RotationConfig{Auto: true, IntervalSeconds: 3600, MethodPreference: []string{"data_toggle"}},
	}
	reg, eng := setup(t, drv, rec)
	sched := NewScheduler(reg, eng, nil, testConfig(), logging.NewClient("test", "error", ""))

	sched.autoRotationScan(context.Background())
	time.Sleep(50 * time.Millisecond)

	updated, _ := reg.Get("d1")
	assert.Equal(t, "1.1.1.1", updated.ExternalIP)
}

func TestAutoRotationScan_TriggersDueDevice(t *testing.T) {
	drv := &scriptedDriver{methods: []string{"data_toggle"}, ips: []string{"9.9.9.9"}}
	rec := &device.Record{
		DeviceID:       "d1",
		ExternalIP:     "1.1.1.1",
		LastRotationAt: time.Now().Add(-time.Hour),
		RotationConfig: device.RotationConfig{Auto: true, IntervalSeconds: 1, MethodPreference: []string{"data_toggle"}},
	}
	reg, eng := setup(t, drv, rec)
	sched := NewScheduler(reg, eng, nil, testConfig(), logging.NewClient("test", "error", ""))

	sched.autoRotationScan(context.Background())
	require.Eventually(t, func() bool {
		updated, _ := reg.Get("d1")
		return updated.ExternalIP == "9.9.9.9"
	}, time.Second, 10*time.Millisecond)
}

func TestEverySpec(t *testing.T) {
	assert.Equal(t, "@every 10s", everySpec(10*time.Second))
	assert.Equal(t, "@every 1s", everySpec(0))
}

