// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package serial implements the usb_serial driver: line-oriented AT
// commands sent over a serial control port at 115200 8N1 (§4.B, §6 "AT
// commands"), using the teacher's own goburrow/serial dependency.
package serial

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	goserial "github.com/goburrow/serial"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/driver/echoip"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

// Driver sends AT commands over a serial TTY to a USB cellular modem.
type Driver struct {
	ttyPath    string
	lc         *logging.Client
	httpClient *http.Client

	// openPort is indirected for testability.
	openPort func() (port, error)
}

// port is the subset of goburrow/serial.Port this driver needs.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func New(ttyPath string, lc *logging.Client) *Driver {
	d := &Driver{
		ttyPath:    ttyPath,
		lc:         lc.With("device_kind", "usb_serial").With("tty", ttyPath),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	d.openPort = d.openRealPort
	return d
}

func (d *Driver) openRealPort() (port, error) {
	return goserial.Open(&goserial.Config{
		Address:  d.ttyPath,
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  3 * time.Second,
	})
}

func (d *Driver) Kind() string { return string(common.KindUSBSerial) }

func (d *Driver) SupportedMethods() []string {
	return []string{string(common.MethodATCfunCycle)}
}

func (d *Driver) Probe(ctx context.Context) (driverapi.ProbeResult, error) {
	ok, err := d.sendExpectOK(ctx, "AT")
	if err != nil || !ok {
		return driverapi.ProbeResult{}, common.NewAppError(common.KindUnreachable, "serial probe failed", err)
	}
	return driverapi.ProbeResult{Up: true, ControlAddrReachable: true}, nil
}

func (d *Driver) QueryExternalIP(ctx context.Context, iface string) (string, error) {
	return echoip.Query(ctx, d.httpClient, iface, "")
}

func (d *Driver) Rotate(ctx context.Context, method string) error {
	if common.Method(method) != common.MethodATCfunCycle {
		return common.NewAppError(common.KindDriverUnsupported, "unsupported method "+method, nil)
	}
	return d.atCfunCycle(ctx)
}

// atCfunCycle sends AT+CFUN=0 (radio off) then AT+CFUN=1 (radio on),
// each expecting "OK" (§4.B, §6).
func (d *Driver) atCfunCycle(ctx context.Context) error {
	ok, err := d.sendExpectOK(ctx, "AT+CFUN=0")
	if err != nil {
		return common.NewAppError(common.KindDriverError, "AT+CFUN=0 failed", err)
	}
	if !ok {
		return common.NewAppError(common.KindDriverError, "AT+CFUN=0 not acknowledged with OK", nil)
	}

	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	ok, err = d.sendExpectOK(ctx, "AT+CFUN=1")
	if err != nil {
		return common.NewAppError(common.KindDriverError, "AT+CFUN=1 failed", err)
	}
	if !ok {
		return common.NewAppError(common.KindDriverError, "AT+CFUN=1 not acknowledged with OK", nil)
	}
	return nil
}

func (d *Driver) sendExpectOK(ctx context.Context, cmd string) (bool, error) {
	p, err := d.openPort()
	if err != nil {
		return false, err
	}
	defer p.Close()

	if _, err := p.Write([]byte(cmd + "\r")); err != nil {
		return false, err
	}

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		scanner := bufio.NewScanner(p)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "OK" {
				done <- result{ok: true}
				return
			}
			if line == "ERROR" {
				done <- result{ok: false}
				return
			}
		}
		done <- result{ok: false, err: scanner.Err()}
	}()

	select {
	case r := <-done:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
