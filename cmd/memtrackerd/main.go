// Command memtrackerd runs the Bitcoin mempool tracker: it connects
// to a bitcoind node's RPC and ZMQ interfaces, classifies every
// transaction it observes, and persists the result to a local SQLite
// database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/klaytn-labs/mempool-tracker/cmd/utils"
	"github.com/klaytn-labs/mempool-tracker/config"
	tracklog "github.com/klaytn-labs/mempool-tracker/log"
	"github.com/klaytn-labs/mempool-tracker/tracker"
)

var logger = tracklog.NewModuleLogger(tracklog.ModuleCMD)

func main() {
	app := utils.NewApp("Bitcoin mempool tracker")
	app.Flags = utils.Flags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Error("exiting with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	logger.Info("===== welcome to mempool tracker =====")

	raw := config.Raw{
		BitcoindHost:         ctx.String(utils.BitcoindHostFlag.Name),
		BitcoindRPCPort:      ctx.Uint(utils.BitcoindRPCPortFlag.Name),
		BitcoindZMQPort:      ctx.Uint(utils.BitcoindZMQPortFlag.Name),
		BitcoindUser:         ctx.String(utils.BitcoindUserFlag.Name),
		BitcoindPassword:     ctx.String(utils.BitcoindPasswordFlag.Name),
		BitcoindCookieFile:   ctx.String(utils.BitcoindCookieFileFlag.Name),
		DataDir:              ctx.String(utils.DataDirFlag.Name),
		NumWorkers:           ctx.Uint(utils.NumWorkersFlag.Name),
		MempoolStateInterval: ctx.Uint(utils.MempoolStateCheckIntervalFlag.Name),
		PruneInterval:        ctx.Uint(utils.PruneCheckIntervalFlag.Name),
		DisablePruneCheck:    ctx.Bool(utils.DisablePruneCheckFlag.Name),
		MiningInterval:       ctx.Uint(utils.TrackMiningIntervalFlag.Name),
		EnableMiningInfo:     ctx.Bool(utils.EnableMiningInfoFlag.Name),
		MiningInfoURL:        ctx.String(utils.MiningInfoURLFlag.Name),
	}

	cfg, err := config.Build(raw)
	if err != nil {
		utils.Fatalf("invalid configuration: %v", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return tracker.Run(sigCtx, cfg)
}
