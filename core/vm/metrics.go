package vm

import "github.com/VictoriaMetrics/metrics"

// Operational counters for the analysis and creation paths. They register
// into the default metrics set; callers that expose metrics scrape them via
// metrics.WritePrometheus.
var (
	analysisLegacyCounter = metrics.NewCounter(`evm_code_analysis_total{kind="legacy"}`)
	analysisEOFCounter    = metrics.NewCounter(`evm_code_analysis_total{kind="eof"}`)

	eofValidationFailures = metrics.NewCounter(`evm_eof_validation_failures_total`)

	createSuccessCounter   = metrics.NewCounter(`evm_creations_total{outcome="success"}`)
	createLightFailCounter = metrics.NewCounter(`evm_creations_total{outcome="light_failure"}`)
	createHardFailCounter  = metrics.NewCounter(`evm_creations_total{outcome="hard_failure"}`)
	createRevertCounter    = metrics.NewCounter(`evm_creations_total{outcome="revert"}`)
)
