// Copyright (c) 2020-2025 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
	flags "github.com/jessevdk/go-flags"
	"github.com/primecoin/xpmd/addrmgr"
)

const (
	mainNet = wire.CurrencyNet(0xe7e5e7e4)
	testNet = wire.CurrencyNet(0xfdfbfefb)
)

var defaultDataDir = filepath.Join(dcrutil.AppDataDir("xpmd", false), "data")

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

func usage(parser *flags.Parser) {
	parser.WriteHelp(os.Stderr)
	os.Exit(2)
}

type config struct {
	DataDir string `short:"b" long:"datadir" description:"xpmd data directory (without the network name)"`
	TestNet bool   `long:"testnet" description:"read the test network peers file"`
}

// run executes the command in args against the loaded address manager and
// writes the result to w.
func run(w io.Writer, amgr *addrmgr.AddrManager, args []string) error {
	switch args[0] {
	case "stats":
		s := amgr.Stats()
		fmt.Fprintf(w, "%-15s%d\n", "new:", s.NumNew)
		fmt.Fprintf(w, "%-15s%d\n", "tried:", s.NumTried)
		fmt.Fprintf(w, "%-15s%d\n", "new buckets:", s.NewBucketsUsed)
		fmt.Fprintf(w, "%-15s%d\n", "tried buckets:", s.TriedBucketsUsed)
		fmt.Fprintf(w, "%-15s%d\n", "new refs:", s.NewRefs)

	case "list":
		for _, info := range amgr.Addresses() {
			table := "new"
			if info.Tried {
				table = "tried"
			}
			var lastSuccess string
			if !info.LastSuccess.IsZero() {
				lastSuccess = info.LastSuccess.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\trefs=%d\tattempts=%d\tsource=%s\t"+
				"seen=%s\tsuccess=%s\n", info.Addr, table, info.Refs,
				info.Attempts, info.Source, info.Addr.Timestamp.UTC().
					Format(time.RFC3339), lastSuccess)
		}

	case "select":
		bias := 50
		if len(args) > 1 {
			var err error
			bias, err = strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid bias %q: %w", args[1], err)
			}
		}
		na := amgr.Select(bias)
		if na == nil {
			return errors.New("address table is empty")
		}
		fmt.Fprintln(w, na)

	case "getaddr":
		for _, na := range amgr.AddressCache() {
			fmt.Fprintln(w, na)
		}

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func main() {
	cfg := config{
		DataDir: defaultDataDir,
	}
	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS] stats|list|select [bias]|getaddr"
	args, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) {
			if e.Type != flags.ErrHelp {
				os.Exit(1)
			}
			os.Exit(0)
		}
		os.Exit(1)
	}
	if len(args) == 0 {
		usage(parser)
	}

	net, netName := mainNet, "mainnet"
	if cfg.TestNet {
		net, netName = testNet, "testnet"
	}
	store := addrmgr.NewStore(filepath.Join(cfg.DataDir, netName), net)
	amgr := addrmgr.New(&addrmgr.Config{Store: store})
	if err := amgr.Load(); err != nil {
		fatalf("unable to load %s: %v\n", store.Path(), err)
	}

	if err := run(os.Stdout, amgr, args); err != nil {
		fatalf("%v\n", err)
	}
}
