// Package config validates and assembles the typed configuration the
// supervisor needs from raw CLI flag values.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/klaytn-labs/mempool-tracker/btcrpc"
	"github.com/klaytn-labs/mempool-tracker/tracker"
)

// Raw mirrors the CLI flag surface verbatim, one field per flag, so
// cmd/memtrackerd's action can populate it directly from cli.Context
// without any intermediate translation.
type Raw struct {
	BitcoindHost         string
	BitcoindRPCPort      uint
	BitcoindZMQPort      uint
	BitcoindUser         string
	BitcoindPassword     string
	BitcoindCookieFile   string
	DataDir              string
	NumWorkers           uint
	MempoolStateInterval uint
	PruneInterval        uint
	DisablePruneCheck    bool
	MiningInterval       uint
	EnableMiningInfo     bool
	MiningInfoURL        string
}

// Build validates r and turns it into a tracker.Config, resolving
// exactly one auth method and the two optional-ticker disable/enable
// switches into zero-or-nonzero Duration fields.
func Build(r Raw) (tracker.Config, error) {
	auth, err := resolveAuth(r)
	if err != nil {
		return tracker.Config{}, err
	}

	if r.EnableMiningInfo && r.MiningInfoURL == "" {
		return tracker.Config{}, fmt.Errorf("--enable-mining-info requires --mining-info-url")
	}

	cfg := tracker.Config{
		RPCHost:              r.BitcoindHost,
		RPCPort:              uint16(r.BitcoindRPCPort),
		ZMQPort:              uint16(r.BitcoindZMQPort),
		Auth:                 auth,
		DBPath:               filepath.Join(r.DataDir, "mempool-tracker.db"),
		NumWorkers:           int(r.NumWorkers),
		MempoolStateInterval: time.Duration(r.MempoolStateInterval) * time.Second,
	}

	if !r.DisablePruneCheck {
		cfg.PruneInterval = time.Duration(r.PruneInterval) * time.Second
	}
	if r.EnableMiningInfo {
		cfg.MiningInfoInterval = time.Duration(r.MiningInterval) * time.Second
		cfg.MiningInfoURL = r.MiningInfoURL
	}

	if cfg.NumWorkers <= 0 {
		return tracker.Config{}, fmt.Errorf("--num-workers must be at least 1")
	}
	return cfg, nil
}

// resolveAuth enforces that exactly one of (cookie file) or
// (user and password) was given, per spec.md §6 / the original CLI's
// same requirement in original_source/src/main.rs.
func resolveAuth(r Raw) (btcrpc.Auth, error) {
	hasCookie := r.BitcoindCookieFile != ""
	hasUserPass := r.BitcoindUser != "" && r.BitcoindPassword != ""

	switch {
	case hasCookie && hasUserPass:
		return btcrpc.Auth{}, fmt.Errorf("specify either --bitcoind-cookie-file or --bitcoind-user/--bitcoind-password, not both")
	case hasCookie:
		return btcrpc.Auth{CookieFile: r.BitcoindCookieFile}, nil
	case hasUserPass:
		return btcrpc.Auth{User: r.BitcoindUser, Password: r.BitcoindPassword}, nil
	default:
		return btcrpc.Auth{}, fmt.Errorf("no auth method provided: specify --bitcoind-cookie-file or --bitcoind-user/--bitcoind-password")
	}
}
