// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package hilink implements the huawei_hilink driver: Huawei's on-device
// HTTP/XML management API exposed by cellular modems running in router
// mode (§4.B, §6 "HiLink HTTP API").
package hilink

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/driver/echoip"
	"github.com/mobilegw/gateway/internal/driver/usbctl"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

// Driver talks HTTP/XML to a HiLink modem's on-device gateway, typically
// 192.168.8.1.
type Driver struct {
	gatewayAddr string
	iface       string
	lc          *logging.Client
	httpClient  *http.Client

	// ModeSwitch identifies the device for the hilink_modeswitch method.
	VendorID, ProductID, TargetVendorID, TargetProductID, ModeSwitchMessage string
	SysfsPath                                                              string
}

func New(gatewayAddr, iface string, lc *logging.Client) *Driver {
	return &Driver{
		gatewayAddr: gatewayAddr,
		iface:       iface,
		lc:          lc.With("device_kind", "huawei_hilink").With("gateway", gatewayAddr),
		httpClient:  &http.Client{Timeout: 8 * time.Second},
	}
}

func (d *Driver) Kind() string { return string(common.KindHuaweiHiLink) }

func (d *Driver) SupportedMethods() []string {
	methods := []string{
		string(common.MethodHilinkDialup),
		string(common.MethodHilinkReboot),
	}
	if d.SysfsPath != "" {
		methods = append(methods, string(common.MethodUSBReauthorize))
	}
	if d.SysfsPath != "" || d.VendorID != "" {
		methods = append(methods, string(common.MethodHilinkModeswitch))
	}
	return methods
}

func (d *Driver) Probe(ctx context.Context) (driverapi.ProbeResult, error) {
	tok, err := d.fetchSessionToken(ctx)
	if err != nil {
		return driverapi.ProbeResult{}, common.NewAppError(common.KindUnreachable, "hilink probe failed", err)
	}
	return driverapi.ProbeResult{
		Up:                   true,
		ControlAddrReachable: tok != "",
	}, nil
}

func (d *Driver) QueryExternalIP(ctx context.Context, iface string) (string, error) {
	return echoip.Query(ctx, d.httpClient, iface, "")
}

func (d *Driver) Rotate(ctx context.Context, method string) error {
	switch common.Method(method) {
	case common.MethodHilinkDialup:
		return d.dialupCycle(ctx)
	case common.MethodHilinkReboot:
		return d.reboot(ctx)
	case common.MethodHilinkModeswitch:
		return d.modeswitchCycle(ctx)
	case common.MethodUSBReauthorize:
		if d.SysfsPath == "" {
			return common.NewAppError(common.KindDriverUnsupported, "no sysfs path configured for usb_reauthorize", nil)
		}
		return usbctl.Reauthorize(ctx, d.SysfsPath)
	default:
		return common.NewAppError(common.KindDriverUnsupported, "unsupported method "+method, nil)
	}
}

// sesTokInfo mirrors the HiLink SesTokInfo XML response body.
type sesTokInfo struct {
	XMLName xml.Name `xml:"response"`
	SesInfo string   `xml:"SesInfo"`
	TokInfo string   `xml:"TokInfo"`
}

func (d *Driver) fetchSessionToken(ctx context.Context) (string, error) {
	url := fmt.Sprintf("http://%s/api/webserver/SesTokInfo", d.gatewayAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var info sesTokInfo
	if err := xml.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return info.TokInfo, nil
}

func (d *Driver) postXML(ctx context.Context, token, path, body string) error {
	url := fmt.Sprintf("http://%s%s", d.gatewayAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("__RequestVerificationToken", token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return common.NewAppError(common.KindDriverError, "hilink POST "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return common.NewAppError(common.KindDriverError, fmt.Sprintf("hilink POST %s returned %d", path, resp.StatusCode), nil)
	}
	return nil
}

func (d *Driver) dialupCycle(ctx context.Context) error {
	tok, err := d.fetchSessionToken(ctx)
	if err != nil {
		return common.NewAppError(common.KindDriverError, "fetch session token", err)
	}

	const disconnect = `<?xml version="1.0" encoding="UTF-8"?><request><dataswitch>0</dataswitch></request>`
	const connect = `<?xml version="1.0" encoding="UTF-8"?><request><dataswitch>1</dataswitch></request>`

	if err := d.postXML(ctx, tok, "/api/dialup/dial", disconnect); err != nil {
		return err
	}

	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	// Re-fetch token: HiLink invalidates the prior token after a
	// dataswitch request completes.
	tok, err = d.fetchSessionToken(ctx)
	if err != nil {
		return common.NewAppError(common.KindDriverError, "re-fetch session token", err)
	}
	return d.postXML(ctx, tok, "/api/dialup/dial", connect)
}

func (d *Driver) reboot(ctx context.Context) error {
	tok, err := d.fetchSessionToken(ctx)
	if err != nil {
		return common.NewAppError(common.KindDriverError, "fetch session token", err)
	}
	const body = `<?xml version="1.0" encoding="UTF-8"?><request><Control>1</Control></request>`
	if err := d.postXML(ctx, tok, "/api/device/control", body); err != nil {
		return err
	}
	return usbctl.WaitForInterface(ctx, d.iface, time.Second)
}

// modeswitchCycle performs §9 Open Question (b): switches the device out
// of mass-storage mode via usb_modeswitch, then waits for the network
// interface to re-appear, failing the attempt if it does not.
func (d *Driver) modeswitchCycle(ctx context.Context) error {
	if err := usbctl.ModeSwitch(ctx, d.VendorID, d.ProductID, d.TargetVendorID, d.TargetProductID, d.ModeSwitchMessage); err != nil {
		return err
	}
	return usbctl.WaitForInterface(ctx, d.iface, 2*time.Second)
}
