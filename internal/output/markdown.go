package output

import (
	"fmt"
	"io"

	"github.com/nethalo/pgreorg/internal/dispatch"
)

// MarkdownRenderer produces markdown output for documentation/tickets.
type MarkdownRenderer struct {
	w io.Writer
}

func (r *MarkdownRenderer) RenderReport(report dispatch.Report) {
	fmt.Fprintf(r.w, "# pgreorg — Run Summary\n\n")

	for _, db := range report.Databases {
		fmt.Fprintf(r.w, "## %s\n\n", db.Database)

		if db.Skipped {
			fmt.Fprintf(r.w, "_Skipped: %s_\n\n", db.SkipReason)
			continue
		}
		if len(db.Results) == 0 {
			fmt.Fprintf(r.w, "_No eligible tables._\n\n")
			continue
		}

		fmt.Fprintf(r.w, "| Table | Status | Phase | Duration |\n|---|---|---|---|\n")
		for _, res := range db.Results {
			status := "✅ ok"
			if res.Failed() {
				status = "❌ " + errString(res.Err)
			}
			fmt.Fprintf(r.w, "| `%s` | %s | %s | %s |\n", res.Table, status, res.Phase, res.Duration.Round(10_000_000))
		}
		fmt.Fprintln(r.w)
	}
}

func errString(err error) string {
	if err == nil {
		return "aborted"
	}
	return err.Error()
}

func (r *MarkdownRenderer) RenderConnection(info ConnectionInfo) {
	fmt.Fprintf(r.w, "# pgreorg — Connection Info\n\n")
	fmt.Fprintf(r.w, "| Property | Value |\n|---|---|\n")
	fmt.Fprintf(r.w, "| Address | `%s` |\n", info.Address)
	fmt.Fprintf(r.w, "| Server version | %s |\n", info.ServerVersion)
	fmt.Fprintf(r.w, "| Extension installed | %v |\n", info.ExtensionInstalled)
	fmt.Fprintf(r.w, "| Connectable databases | %d |\n", len(info.ConnectableDatabases))
}
