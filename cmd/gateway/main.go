// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Command gateway boots the mobile-IP proxy gateway: it loads
// configuration, wires the registry, rotation engine, dispatcher,
// dataplane listeners, and control API, then blocks until a termination
// signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/config"
	"github.com/mobilegw/gateway/internal/control"
	"github.com/mobilegw/gateway/internal/dataplane"
	"github.com/mobilegw/gateway/internal/dispatcher"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
	"github.com/mobilegw/gateway/internal/rotation"
	"github.com/mobilegw/gateway/internal/store"
)

var confDir string
var hilinkGateways []string
var serialGlob string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "gateway",
	Short:         "Mobile-IP proxy gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGateway,
}

func init() {
	rootCmd.Flags().StringVarP(&confDir, "conf-dir", "c", common.ConfigDirectory, "Configuration directory")
	rootCmd.Flags().StringSliceVar(&hilinkGateways, "hilink-gateway", nil, "HiLink device gateway addresses to probe during discovery")
	rootCmd.Flags().StringVar(&serialGlob, "serial-glob", "", "Glob pattern for AT-command serial TTYs")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(common.Defaults().Service.Version)
	},
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(confDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	lc := logging.NewClient(cfg.Service.Name, cfg.Logging.Level, cfg.Logging.File)
	lc.Info("starting " + cfg.Service.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New(cfg, lc)
	reg := registry.New(cfg, lc, st)
	dsc := registry.NewDiscoverer(reg, hilinkGateways, serialGlob)
	eng := rotation.New(reg, cfg, lc)
	sched := rotation.NewScheduler(reg, eng, dsc, cfg, lc)
	disp := dispatcher.New(reg, cfg, lc)
	dp := dataplane.New(reg, disp, cfg, lc)
	api := control.New(ctx, reg, eng, dsc, dp, lc)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	go func() {
		if err := dp.ServeShared(ctx); err != nil {
			lc.Error("shared dataplane listener stopped: " + err.Error())
		}
	}()

	// The scheduler's initial discovery pass (run synchronously inside
	// Start) has already populated any devices with a persisted
	// dedicated port, so their listeners can come up now.
	for _, rec := range reg.All() {
		if rec.Dedicated == nil {
			continue
		}
		if err := dp.StartDedicated(ctx, rec.Dedicated.ListenPort); err != nil {
			lc.With("port", rec.Dedicated.ListenPort).Error("restoring dedicated dataplane listener failed: " + err.Error())
		}
	}

	apiSrv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Proxy.APIPort), Handler: api.Router()}
	go func() {
		lc.With("port", cfg.Proxy.APIPort).Info("control API listening")
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lc.Error("control API stopped: " + err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	lc.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Proxy.TunnelIdleTimeout)
	defer shutdownCancel()
	return apiSrv.Shutdown(shutdownCtx)
}
