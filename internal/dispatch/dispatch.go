// Package dispatch drives the reorg driver across every connectable
// database when invoked in "all databases" mode. Unlike a single-session
// MySQL-style tool, Postgres requires a fresh connection per database, so
// the dispatcher owns the per-database connect/run/close cycle.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/cleanup"
	"github.com/nethalo/pgreorg/internal/reorg"
	"github.com/nethalo/pgreorg/internal/session"
)

// DatabaseReport summarizes one database's pass: either skipped (the
// extension is not installed there) or a set of per-table results.
type DatabaseReport struct {
	Database   string
	Skipped    bool
	SkipReason string
	Results    []reorg.TableResult
}

// Report is the top-level summary rendered at the end of a run.
type Report struct {
	Databases []DatabaseReport
}

// Options configures an all-databases run. Opts is forwarded to each
// per-database reorg.Driver; Selector.Relation must be empty — a
// target-table selector is disallowed in "all databases" mode.
type Options struct {
	Connect  func(ctx context.Context, database string) (session.Session, int, error)
	Opts     reorg.Options
	Selector catalog.Selector
	Log      zerolog.Logger

	// OnHandler, if set, is called with the cleanup.Handler guarding each
	// table as it starts, so a caller can hold onto the one currently in
	// flight (e.g. to invoke Fatal from a signal handler) without reaching
	// into the per-table loop itself.
	OnHandler func(*cleanup.Handler)
}

// Run uses the already-open adminSess to enumerate connectable
// databases, then invokes the per-database driver against each in turn.
func Run(ctx context.Context, adminSess session.Session, opts Options) (Report, error) {
	if opts.Selector.Relation != "" {
		return Report{}, errors.New("--table cannot be combined with --all")
	}

	names, err := catalog.ListDatabases(ctx, adminSess)
	if err != nil {
		return Report{}, fmt.Errorf("listing databases: %w", err)
	}

	var report Report
	for _, name := range names {
		opts.Log.Info().Str("database", name).Msg("reorg: starting database")

		dbReport, err := RunOne(ctx, name, opts)
		report.Databases = append(report.Databases, dbReport)
		if err != nil {
			return report, fmt.Errorf("database %s: %w", name, err)
		}
	}
	return report, nil
}

// RunOne connects to database (via opts.Connect), lists its eligible
// targets, and runs the driver against each in turn. Exported so
// cmd/reorg.go can drive a single database directly without going
// through the "all databases" enumeration in Run.
func RunOne(ctx context.Context, database string, opts Options) (DatabaseReport, error) {
	sess, serverVersionNum, err := opts.Connect(ctx, database)
	if err != nil {
		return DatabaseReport{Database: database}, fmt.Errorf("connecting: %w", err)
	}
	defer sess.Close()

	targets, err := catalog.ListTargets(ctx, sess, opts.Selector)
	if err != nil {
		if errors.Is(err, catalog.ErrExtensionAbsent) {
			opts.Log.Info().Str("database", database).Msg("reorg: extension not installed, skipping")
			return DatabaseReport{Database: database, Skipped: true, SkipReason: err.Error()}, nil
		}
		return DatabaseReport{Database: database}, fmt.Errorf("listing targets: %w", err)
	}

	report := DatabaseReport{Database: database}
	for _, target := range targets {
		driver := reorg.New(sess, serverVersionNum, opts.Log, opts.Opts)
		handler := cleanup.NewHandler(sess, opts.Log, driver.Current)
		if opts.OnHandler != nil {
			opts.OnHandler(handler)
		}

		start := time.Now()
		runErr := driver.Run(ctx, target)
		result := reorg.TableResult{
			Table:    target.Name,
			OID:      target.OID,
			Phase:    driver.Phase(),
			Err:      runErr,
			Duration: time.Since(start),
		}
		report.Results = append(report.Results, result)

		if runErr != nil {
			opts.Log.Error().Err(runErr).Str("table", target.Name).Msg("reorg: table failed, running cleanup")
			if cerr := handler.Graceful(ctx); cerr != nil {
				opts.Log.Error().Err(cerr).Str("table", target.Name).Msg("reorg: cleanup also failed")
			}
			// A single table's failure aborts the rest of this database's
			// run rather than limping on to the next target, matching
			// reorg_one_table's behavior of propagating any error besides
			// a missing extension or an unavailable lock all the way up.
			return report, fmt.Errorf("table %s: %w", target.Name, runErr)
		}
	}
	return report, nil
}
