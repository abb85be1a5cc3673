package output

import (
	"fmt"
	"io"

	"github.com/nethalo/pgreorg/internal/dispatch"
)

// PlainRenderer produces unformatted text output safe for piping.
type PlainRenderer struct {
	w io.Writer
}

func (r *PlainRenderer) RenderReport(report dispatch.Report) {
	fmt.Fprintf(r.w, "=== pgreorg — Run Summary ===\n\n")

	for _, db := range report.Databases {
		if db.Skipped {
			fmt.Fprintf(r.w, "[%s] SKIPPED: %s\n", db.Database, db.SkipReason)
			continue
		}
		if len(db.Results) == 0 {
			fmt.Fprintf(r.w, "[%s] no eligible tables\n", db.Database)
			continue
		}
		fmt.Fprintf(r.w, "[%s]\n", db.Database)
		for _, res := range db.Results {
			status := "ok"
			if res.Failed() {
				status = "FAILED"
				if res.Err != nil {
					status = fmt.Sprintf("FAILED: %s", res.Err)
				}
			}
			fmt.Fprintf(r.w, "  %-32s %-7s phase=%s duration=%s\n", res.Table, status, res.Phase, res.Duration.Round(10_000_000))
		}
	}
}

func (r *PlainRenderer) RenderConnection(info ConnectionInfo) {
	fmt.Fprintf(r.w, "=== pgreorg — Connection Info ===\n\n")
	fmt.Fprintf(r.w, "Connected to:         %s\n", info.Address)
	fmt.Fprintf(r.w, "Server version:       %s\n", info.ServerVersion)
	fmt.Fprintf(r.w, "Extension installed:  %v\n", info.ExtensionInstalled)
	fmt.Fprintf(r.w, "Connectable databases: %d\n", len(info.ConnectableDatabases))
	for _, name := range info.ConnectableDatabases {
		fmt.Fprintf(r.w, "  - %s\n", name)
	}
}
