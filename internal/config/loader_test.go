// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	contents := `
[Service]
Name = "test-gateway"
Version = "9.9.9"

[Proxy]
Port = 9090
APIPort = 9091
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configuration.toml"), []byte(contents), 0644))

	cfg, err := loadConfigFromFile(dir)
	require.NoError(t, err)
	assert.Equal(t, "test-gateway", cfg.Service.Name)
	assert.Equal(t, "9.9.9", cfg.Service.Version)
	assert.Equal(t, 9090, cfg.Proxy.Port)
	assert.Equal(t, 9091, cfg.Proxy.APIPort)
}

func TestLoadConfigFromFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfigFromFile(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "mobile-ip-gateway", cfg.Service.Name)
}
