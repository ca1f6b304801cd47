// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018-2019 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package common

const (
	APIv1Prefix = "/api/v1"

	ConfigDirectory = "./res"
	ConfigFileName  = "configuration.toml"

	// Default listen ports.
	DefaultProxyPort = 8080
	DefaultAPIPort   = 8000

	// Default periods and budgets, §4.C/§4.D/§4.E/§4.F of the spec.
	DefaultDiscoveryInterval    = 10 // seconds
	DefaultDiscoveryGraceScans  = 3
	DefaultHealthInterval       = 30      // seconds
	DefaultIPRefresh            = 5 * 60  // seconds
	DefaultRotationInterval     = 0       // seconds; 0 disables auto-rotation
	DefaultMaxParallelRotations = 4
	DefaultPostRotationDelay    = 5 // seconds
	DefaultVerifyAttempts       = 5
	DefaultVerifyBackoff        = 3 // seconds
	DefaultMaxRPM               = 100
	DefaultBusyWait             = 10  // seconds
	DefaultConnectTimeout       = 10  // seconds
	DefaultTunnelIdleTimeout    = 120 // seconds
	DefaultCopyBufferBytes      = 32 * 1024
	DefaultMaxDevices           = 64

	CorrelationHeader = "X-Correlation-ID"
	DeviceHintHeader  = "X-Proxy-Device-ID"
)

// Method is the name of a rotation technique (§4.B).
type Method string

const (
	MethodAirplaneToggle   Method = "airplane_toggle"
	MethodDataToggle       Method = "data_toggle"
	MethodHilinkDialup     Method = "hilink_dialup"
	MethodHilinkReboot     Method = "hilink_reboot"
	MethodHilinkModeswitch Method = "hilink_modeswitch"
	MethodUSBReauthorize   Method = "usb_reauthorize"
	MethodATCfunCycle      Method = "at_cfun_cycle"
)

// DeviceKind identifies the physical device type (§3).
type DeviceKind string

const (
	KindAndroidUSB   DeviceKind = "android_usb"
	KindHuaweiHiLink DeviceKind = "huawei_hilink"
	KindUSBSerial    DeviceKind = "usb_serial"
)

// Status is the device's current availability state (§3).
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusBusy     Status = "busy"
	StatusDisabled Status = "disabled"
)

// SelectionStrategy names a shared-pool selection policy (§4.E).
type SelectionStrategy string

const (
	StrategyRoundRobin   SelectionStrategy = "round_robin"
	StrategyLeastLoaded  SelectionStrategy = "least_loaded"
	StrategyRandom       SelectionStrategy = "random"
	StrategyStickyClient SelectionStrategy = "sticky_client"
)

// OnSameIPPolicy controls what the rotation engine does when verification
// observes the same external IP after a method attempt (§4.D).
type OnSameIPPolicy string

const (
	OnSameIPAdvance OnSameIPPolicy = "advance"
	OnSameIPAccept  OnSameIPPolicy = "accept"
)
