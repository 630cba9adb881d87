// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// dropwtxcache resets a wallet's transaction ledger so the wallet
// resynchronizes it from the chain on next start.  Keys, addresses and other
// wallet data are untouched.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/cartoon-face/conceal-core/walletstore"
	"github.com/cartoon-face/conceal-core/wtxmgr"
	"github.com/jessevdk/go-flags"
)

const defaultNet = "mainnet"

var defaultDataDir = btcutil.AppDataDir("conceal", false)

// Flags.
var opts = struct {
	Force   bool   `short:"f" description:"Force removal without prompt"`
	DbPath  string `long:"db" description:"Path to wallet ledger store"`
	Backend string `long:"backend" description:"Store backend (bbolt or sqlite)"`
}{
	Force:   false,
	DbPath:  filepath.Join(defaultDataDir, defaultNet, "wallet.db"),
	Backend: walletstore.BackendBolt,
}

func init() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}
}

func yes(s string) bool {
	switch s {
	case "y", "Y", "yes", "Yes":
		return true
	default:
		return false
	}
}

func no(s string) bool {
	switch s {
	case "n", "N", "no", "No":
		return true
	default:
		return false
	}
}

func main() {
	os.Exit(mainInt())
}

func mainInt() int {
	fmt.Println("Store path:", opts.DbPath)
	_, err := os.Stat(opts.DbPath)
	if os.IsNotExist(err) {
		fmt.Println("Store file does not exist")
		return 1
	}

	for !opts.Force {
		fmt.Print("Drop all wallet transaction history? [y/N] ")

		scanner := bufio.NewScanner(bufio.NewReader(os.Stdin))
		if !scanner.Scan() {
			// Exit on EOF.
			return 0
		}
		err := scanner.Err()
		if err != nil {
			fmt.Println()
			fmt.Println(err)
			return 1
		}
		resp := scanner.Text()
		if yes(resp) {
			break
		}
		if no(resp) || resp == "" {
			return 0
		}

		fmt.Println("Enter yes or no.")
	}

	cache := wtxmgr.NewCache(0, nil)
	store, err := walletstore.Open(opts.Backend, opts.DbPath, cache)
	if err != nil {
		fmt.Println("Failed to open store:", err)
		return 1
	}
	defer store.Close()

	fmt.Println("Dropping wallet transaction history")
	if err := store.ResetLedger(); err != nil {
		fmt.Println("Failed to reset ledger:", err)
		return 1
	}

	return 0
}
