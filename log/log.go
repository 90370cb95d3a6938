// Package log provides module-scoped structured logging for the
// mempool tracker, wrapping go-ethereum/log the way klaytn's own log
// package wraps it internally: one named logger per module, key-value
// pairs on every call site.
package log

import (
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
)

// Module names, one per component, mirroring log.NewModuleLogger(log.ChainDataFetcher)
// in the teacher.
const (
	ModuleStore       = "STORE"
	ModuleMigrator    = "MIGRATOR"
	ModuleFeeResolver = "FEERESOLVER"
	ModuleWorker      = "WORKER"
	ModuleSources     = "SOURCES"
	ModuleSupervisor  = "SUPERVISOR"
	ModuleCMD         = "CMD"
)

// Logger is re-exported so call sites don't need to import go-ethereum/log directly.
type Logger = ethlog.Logger

func init() {
	lvl := ethlog.LvlInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := ethlog.LvlFromString(v); err == nil {
			lvl = parsed
		}
	}
	handler := ethlog.LvlFilterHandler(lvl, ethlog.StreamHandler(colorable.NewColorableStderr(), ethlog.TerminalFormat(true)))
	ethlog.Root().SetHandler(handler)
}

// NewModuleLogger returns a logger tagged with the given module name,
// matching the call shape used throughout the teacher's
// datasync/chaindatafetcher package.
func NewModuleLogger(module string) Logger {
	return ethlog.New("module", module)
}
