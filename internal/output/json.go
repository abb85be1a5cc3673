package output

import (
	"encoding/json"
	"io"

	"github.com/nethalo/pgreorg/internal/dispatch"
)

// JSONRenderer produces machine-readable JSON output.
type JSONRenderer struct {
	w io.Writer
}

type jsonReport struct {
	Databases []jsonDatabaseReport `json:"databases"`
}

type jsonDatabaseReport struct {
	Database   string            `json:"database"`
	Skipped    bool              `json:"skipped,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
	Tables     []jsonTableResult `json:"tables,omitempty"`
}

type jsonTableResult struct {
	Table      string `json:"table"`
	OID        uint32 `json:"oid"`
	Phase      string `json:"phase"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func (r *JSONRenderer) RenderReport(report dispatch.Report) {
	out := jsonReport{}
	for _, db := range report.Databases {
		jdb := jsonDatabaseReport{
			Database:   db.Database,
			Skipped:    db.Skipped,
			SkipReason: db.SkipReason,
		}
		for _, res := range db.Results {
			errMsg := ""
			if res.Err != nil {
				errMsg = res.Err.Error()
			}
			jdb.Tables = append(jdb.Tables, jsonTableResult{
				Table:      res.Table,
				OID:        res.OID,
				Phase:      res.Phase.String(),
				Error:      errMsg,
				DurationMS: res.Duration.Milliseconds(),
			})
		}
		out.Databases = append(out.Databases, jdb)
	}

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func (r *JSONRenderer) RenderConnection(info ConnectionInfo) {
	out := map[string]any{
		"address":               info.Address,
		"server_version":        info.ServerVersion,
		"extension_installed":   info.ExtensionInstalled,
		"connectable_databases": info.ConnectableDatabases,
	}

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
