package reorg

import "time"

// TableResult records the outcome of one Driver.Run call, independent of
// whether it succeeded — the output package renders these regardless of
// outcome so a multi-table run's report is complete even when some tables
// failed.
type TableResult struct {
	Table    string
	OID      uint32
	Phase    Phase
	Err      error
	Duration time.Duration
}

// Failed reports whether the run did not reach Dropped.
func (r TableResult) Failed() bool {
	return r.Err != nil || r.Phase != Dropped
}
