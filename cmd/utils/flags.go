// Package utils defines the memtrackerd CLI surface: one cli.Flag
// package-level variable per flag, following the teacher's
// cmd/utils/flags.go convention, and a small NewApp helper.
package utils

import (
	"os"
	"path/filepath"

	"gopkg.in/urfave/cli.v1"
)

// NewApp builds the base cli.App, mirroring the teacher's
// cmd/utils/flags.go::NewApp but without klaytn's node/params version
// plumbing, which has no equivalent here.
func NewApp(usage string) *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Author = ""
	app.Email = ""
	app.Usage = usage
	return app
}

var (
	BitcoindHostFlag = cli.StringFlag{
		Name:  "bitcoind-host",
		Usage: "bitcoind RPC and ZMQ host",
		Value: "127.0.0.1",
	}
	BitcoindRPCPortFlag = cli.UintFlag{
		Name:  "bitcoind-rpc-port",
		Usage: "bitcoind JSON-RPC port",
		Value: 8332,
	}
	BitcoindZMQPortFlag = cli.UintFlag{
		Name:  "bitcoind-zmq-port",
		Usage: "bitcoind zmqpubrawtx port",
		Value: 28332,
	}
	BitcoindUserFlag = cli.StringFlag{
		Name:  "bitcoind-user",
		Usage: "bitcoind RPC username (mutually exclusive with --bitcoind-cookie-file)",
	}
	BitcoindPasswordFlag = cli.StringFlag{
		Name:  "bitcoind-password",
		Usage: "bitcoind RPC password (mutually exclusive with --bitcoind-cookie-file)",
	}
	BitcoindCookieFileFlag = cli.StringFlag{
		Name:  "bitcoind-cookie-file",
		Usage: "path to bitcoind's .cookie file (mutually exclusive with --bitcoind-user/--bitcoind-password)",
	}
	DataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "directory holding the tracker's SQLite database file",
		Value: ".",
	}
	NumWorkersFlag = cli.UintFlag{
		Name:  "num-workers",
		Usage: "number of classifier worker goroutines",
		Value: 2,
	}
	MempoolStateCheckIntervalFlag = cli.UintFlag{
		Name:  "mempool-state-check-interval",
		Usage: "seconds between pool-wide mempool state snapshots",
		Value: 25,
	}
	PruneCheckIntervalFlag = cli.UintFlag{
		Name:  "prune-check-interval",
		Usage: "seconds between sweeps for rows no longer present upstream",
		Value: 120,
	}
	DisablePruneCheckFlag = cli.BoolFlag{
		Name:  "disable-prune-check",
		Usage: "disable the periodic prune-check sweep",
	}
	TrackMiningIntervalFlag = cli.UintFlag{
		Name:  "track-mining-interval",
		Usage: "seconds between external mining-info feed fetches",
		Value: 60 * 60,
	}
	EnableMiningInfoFlag = cli.BoolFlag{
		Name:  "enable-mining-info",
		Usage: "enable the external mining-info feed fetcher",
	}
	MiningInfoURLFlag = cli.StringFlag{
		Name:  "mining-info-url",
		Usage: "URL of the external hash-rate-distribution feed (required with --enable-mining-info)",
	}
)

// Flags is the full flag set for the app's single command.
var Flags = []cli.Flag{
	BitcoindHostFlag,
	BitcoindRPCPortFlag,
	BitcoindZMQPortFlag,
	BitcoindUserFlag,
	BitcoindPasswordFlag,
	BitcoindCookieFileFlag,
	DataDirFlag,
	NumWorkersFlag,
	MempoolStateCheckIntervalFlag,
	PruneCheckIntervalFlag,
	DisablePruneCheckFlag,
	TrackMiningIntervalFlag,
	EnableMiningInfoFlag,
	MiningInfoURLFlag,
}
