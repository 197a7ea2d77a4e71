// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/decred/dcrd/wire"
	"github.com/primecoin/xpmd/addrmgr"
	"github.com/primecoin/xpmd/internal/version"
)

// resolveFunc resolves a host name to its IP addresses.
type resolveFunc func(ctx context.Context, host string) ([]net.IP, error)

// lookupIP resolves host with the default resolver.
func lookupIP(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}

// addPeers resolves the passed host:port addresses and adds them to the
// address manager with each address acting as its own source.  Addresses
// that fail to resolve are logged and skipped.  It returns the number of
// addresses the address manager did not already know.
func addPeers(ctx context.Context, amgr *addrmgr.AddrManager, peers []string, resolve resolveFunc) int {
	var added int
	for _, peer := range peers {
		host, portStr, err := net.SplitHostPort(peer)
		if err != nil {
			xpmdLog.Warnf("Invalid peer address %q: %v", peer, err)
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			xpmdLog.Warnf("Invalid port in peer address %q: %v", peer, err)
			continue
		}

		ips := []net.IP{net.ParseIP(host)}
		if ips[0] == nil {
			ips, err = resolve(ctx, host)
			if err != nil {
				xpmdLog.Warnf("Unable to resolve %s: %v", host, err)
				continue
			}
		}
		for _, ip := range ips {
			na := addrmgr.NewNetAddressIPPort(ip, uint16(port),
				wire.SFNodeNetwork)
			if amgr.AddAddress(na, na, 0) {
				added++
			}
		}
	}
	return added
}

// xpmdMain is the real main function for xpmd.  It is necessary to work around
// the fact that deferred functions do not run when os.Exit() is called.
func xpmdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	cfg, _, err := loadConfig(appName, os.Args[1:])
	if err != nil {
		if isHelpErr(err) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Use %s -h to show usage\n", appName)
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered from an OS signal such as SIGINT (Ctrl+C).
	ctx := shutdownListener()
	defer xpmdLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	xpmdLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	xpmdLog.Infof("Home dir: %s", cfg.HomeDir)
	xpmdLog.Infof("Active network: %s", activeNetParams.Name)
	if cfg.NoFileLogging {
		xpmdLog.Info("File logging disabled")
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		xpmdLog.Errorf("Unable to create data directory: %v", err)
		return err
	}

	amgr := addrmgr.New(&addrmgr.Config{
		Store:        addrmgr.NewStore(cfg.DataDir, activeNetParams.Net),
		DumpInterval: cfg.DumpInterval,
	})
	amgr.Start()
	defer amgr.Stop()

	if n := addPeers(ctx, amgr, cfg.AddPeers, lookupIP); n > 0 {
		xpmdLog.Infof("Added %d new peer addresses from the command line", n)
	}
	stats := amgr.Stats()
	xpmdLog.Infof("Address table holds %d new and %d tried addresses",
		stats.NumNew, stats.NumTried)

	<-ctx.Done()
	return nil
}

func main() {
	if err := xpmdMain(); err != nil {
		os.Exit(1)
	}
}
