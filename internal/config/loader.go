// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/pelletier/go-toml"

	"github.com/mobilegw/gateway/internal/common"
)

// Load loads the local TOML configuration file, overlaying it onto
// common.Defaults(). confDir defaults to common.ConfigDirectory when
// empty. A missing file is not an error: the gateway runs on defaults.
func Load(confDir string) (*common.Config, error) {
	return loadConfigFromFile(confDir)
}

func loadConfigFromFile(confDir string) (config *common.Config, err error) {
	if len(confDir) == 0 {
		confDir = common.ConfigDirectory
	}

	filePath := path.Join(confDir, common.ConfigFileName)
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("could not create absolute path to load configuration: %s; %v", filePath, err)
	}

	config = common.Defaults()

	contents, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		fmt.Fprintf(os.Stdout, "No configuration file at %s, using defaults\n", absPath)
		return config, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not load configuration file (%s): %v", filePath, err)
	}

	// As the toml package can panic on malformed input, recover and
	// report a useful error instead of crashing the process.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("could not load configuration file; invalid TOML (%s): %v", filePath, r)
		}
	}()

	if err = toml.Unmarshal(contents, config); err != nil {
		return nil, fmt.Errorf("unable to parse configuration file (%s): %v", filePath, err)
	}

	fmt.Fprintf(os.Stdout, "Loaded configuration from: %s\n", absPath)
	return config, nil
}
