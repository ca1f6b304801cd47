// SPDX-License-Identifier: Apache-2.0

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilegw/gateway/pkg/device"
)

func TestMemoryStore_SaveLoadDelete(t *testing.T) {
	s := NewMemoryStore()

	rec := &device.Record{
		DeviceID:       "android_ABC123",
		RotationConfig: device.RotationConfig{IntervalSeconds: 300, Auto: true, MethodPreference: []string{"data_toggle"}},
		Dedicated:      &device.Dedicated{ListenPort: 6001, Username: "u", PasswordHash: "h"},
	}
	require.NoError(t, s.Save(rec))

	p, err := s.Load("android_ABC123")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 300, p.RotationConfig.IntervalSeconds)
	assert.Equal(t, 6001, p.Dedicated.ListenPort)

	require.NoError(t, s.Delete("android_ABC123"))
	p, err = s.Load("android_ABC123")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemoryStore_LoadUnknownReturnsNilNoError(t *testing.T) {
	s := NewMemoryStore()
	p, err := s.Load("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, p)
}
