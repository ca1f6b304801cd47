// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package common

import "time"

// MethodBudget is the typical/upper-bound duration pair the rotation
// engine uses to size per-method timeouts (§4.B).
type MethodBudget struct {
	Typical time.Duration `toml:"Typical"`
	Upper   time.Duration `toml:"Upper"`
}

// Config is the process-wide immutable configuration loaded once at
// startup and passed explicitly to every constructor (§9 "Global state").
type Config struct {
	Service  ServiceInfo
	Logging  LoggingInfo
	Redis    RedisInfo
	Proxy    ProxyInfo
	Registry RegistryInfo
	Rotation RotationInfo
	Methods  map[string]MethodBudget
}

type ServiceInfo struct {
	Name    string
	Version string
}

type LoggingInfo struct {
	Level string
	File  string
}

// RedisInfo configures the optional persistence backend (§6 "Persisted
// state"). Addr empty disables persistence.
type RedisInfo struct {
	Addr     string
	Password string
	DB       int
}

type ProxyInfo struct {
	Port              int
	APIPort           int
	ConnectTimeout    time.Duration
	TunnelIdleTimeout time.Duration
	CopyBufferBytes   int
	MaxRPM            int
	BusyWait          time.Duration
	Strategy          SelectionStrategy
}

type RegistryInfo struct {
	DiscoveryInterval   time.Duration
	DiscoveryGraceScans int
	HealthInterval      time.Duration
	IPRefresh           time.Duration
	MaxDevices          int
}

type RotationInfo struct {
	DefaultIntervalSeconds int
	MaxParallelRotations   int
	PostDelay              time.Duration
	VerifyAttempts         int
	VerifyBackoff          time.Duration
	OnSameIP               OnSameIPPolicy
}

// Defaults returns a Config populated with the default values §6 names.
func Defaults() *Config {
	return &Config{
		Service: ServiceInfo{Name: "mobile-ip-gateway", Version: "0.1.0"},
		Logging: LoggingInfo{Level: "info"},
		Proxy: ProxyInfo{
			Port:              DefaultProxyPort,
			APIPort:           DefaultAPIPort,
			ConnectTimeout:    DefaultConnectTimeout * time.Second,
			TunnelIdleTimeout: DefaultTunnelIdleTimeout * time.Second,
			CopyBufferBytes:   DefaultCopyBufferBytes,
			MaxRPM:            DefaultMaxRPM,
			BusyWait:          DefaultBusyWait * time.Second,
			Strategy:          StrategyLeastLoaded,
		},
		Registry: RegistryInfo{
			DiscoveryInterval:   DefaultDiscoveryInterval * time.Second,
			DiscoveryGraceScans: DefaultDiscoveryGraceScans,
			HealthInterval:      DefaultHealthInterval * time.Second,
			IPRefresh:           DefaultIPRefresh * time.Second,
			MaxDevices:          DefaultMaxDevices,
		},
		Rotation: RotationInfo{
			DefaultIntervalSeconds: DefaultRotationInterval,
			MaxParallelRotations:   DefaultMaxParallelRotations,
			PostDelay:              DefaultPostRotationDelay * time.Second,
			VerifyAttempts:         DefaultVerifyAttempts,
			VerifyBackoff:          DefaultVerifyBackoff * time.Second,
			OnSameIP:               OnSameIPAdvance,
		},
		Methods: map[string]MethodBudget{
			string(MethodDataToggle):       {Typical: 15 * time.Second, Upper: 30 * time.Second},
			string(MethodAirplaneToggle):   {Typical: 25 * time.Second, Upper: 60 * time.Second},
			string(MethodHilinkDialup):     {Typical: 15 * time.Second, Upper: 45 * time.Second},
			string(MethodHilinkReboot):     {Typical: 45 * time.Second, Upper: 120 * time.Second},
			string(MethodHilinkModeswitch): {Typical: 50 * time.Second, Upper: 120 * time.Second},
			string(MethodUSBReauthorize):   {Typical: 15 * time.Second, Upper: 40 * time.Second},
			string(MethodATCfunCycle):      {Typical: 20 * time.Second, Upper: 45 * time.Second},
		},
	}
}
