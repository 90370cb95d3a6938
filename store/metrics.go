package store

import "github.com/rcrowley/go-metrics"

// Gauges mirror the shape of chaindata_fetcher.go's package-level
// metrics.Gauge variables (checkpointGauge, handledBlockNumberGauge,
// ...): one gauge per quantity worth watching on a running tracker.
var (
	liveTxCountGauge     = metrics.NewRegisteredGauge("store/liveTxCount", nil)
	mempoolSizeGauge     = metrics.NewRegisteredGauge("store/mempoolSizeBytes", nil)
	mempoolTxCountGauge  = metrics.NewRegisteredGauge("store/mempoolTxCount", nil)
	prunedTxCounter      = metrics.NewRegisteredCounter("store/prunedTxTotal", nil)
	rbfEventCounter      = metrics.NewRegisteredCounter("store/rbfEventTotal", nil)
	staleTxRemovedGauge  = metrics.NewRegisteredGauge("store/staleTxRemovedAtStartup", nil)
)
