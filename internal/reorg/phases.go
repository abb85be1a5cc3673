package reorg

import (
	"context"
	"fmt"
	"time"

	"github.com/nethalo/pgreorg/internal/applylog"
	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/session"
)

// setup is phase 1: verify no conflicting trigger, create the PK type,
// log table, and capture trigger, disable autovacuum on the log, commit.
func (d *Driver) setup(ctx context.Context, target catalog.Target) error {
	if err := d.sess.Exec(ctx, "BEGIN ISOLATION LEVEL READ COMMITTED"); err != nil {
		return err
	}

	conflicted, err := d.conflictedTriggers(ctx, target.OID)
	if err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return err
	}
	if len(conflicted) > 0 {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("trigger %s on %s would sort after %s: conflicting trigger", conflicted[0], target.Name, catalog.TriggerName)
	}

	if err := d.sess.Exec(ctx, target.Bundle.CreatePKType); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("creating pk type: %w", err)
	}
	if err := d.sess.Exec(ctx, target.Bundle.CreateLog); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("creating log table: %w", err)
	}
	if err := d.sess.Exec(ctx, target.Bundle.CreateTrigger); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("creating capture trigger: %w", err)
	}
	if err := d.sess.Exec(ctx, fmt.Sprintf("SELECT reorg.disable_autovacuum(%s)", quoteLiteral(catalog.LogTableName(target.OID)))); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("disabling autovacuum on log table: %w", err)
	}

	return d.sess.Exec(ctx, "COMMIT")
}

// conflictedTriggers calls reorg.conflicted_triggers($1), which returns
// the names of any user trigger on targetOID that would execute after
// the reorg capture trigger — such a trigger could still mutate rows the
// capture trigger has already logged, breaking invariant 2.
func (d *Driver) conflictedTriggers(ctx context.Context, targetOID uint32) ([]string, error) {
	rows, err := d.sess.Query(ctx, "SELECT reorg.conflicted_triggers($1)", targetOID)
	if err != nil {
		return nil, fmt.Errorf("checking conflicting triggers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning conflicting trigger name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// copy is phase 2: capture the snapshot token before any write, truncate
// the log, materialize the shadow table ordered per d.opts.Mode, disable
// autovacuum on the shadow, commit.
func (d *Driver) copy(ctx context.Context, target catalog.Target) error {
	if err := d.sess.Exec(ctx, "BEGIN ISOLATION LEVEL SERIALIZABLE"); err != nil {
		return err
	}

	if err := d.sess.Exec(ctx, "SELECT set_config('work_mem', current_setting('maintenance_work_mem'), true)"); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("raising work_mem: %w", err)
	}
	if d.opts.Mode == ModeNoOrder {
		if err := d.sess.Exec(ctx, "SET LOCAL synchronize_seqscans = off"); err != nil {
			_ = d.sess.Exec(ctx, "ROLLBACK")
			return fmt.Errorf("disabling synchronized seqscans: %w", err)
		}
	}

	tok, err := d.waiter.Capture(ctx, d.sess)
	if err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("capturing snapshot: %w", err)
	}
	d.tok = tok

	if err := d.sess.Exec(ctx, target.Bundle.DeleteLog); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("truncating change log: %w", err)
	}

	shadowDDL, err := buildShadowDDL(target.Bundle, d.opts)
	if err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return err
	}
	if err := d.sess.Exec(ctx, shadowDDL); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("materializing shadow table: %w", err)
	}

	if err := d.sess.Exec(ctx, fmt.Sprintf("SELECT reorg.disable_autovacuum(%s)", quoteLiteral(catalog.ShadowTableName(target.OID)))); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("disabling autovacuum on shadow table: %w", err)
	}

	return d.sess.Exec(ctx, "COMMIT")
}

// buildShadowDDL appends the mode-appropriate ORDER BY suffix to the
// server-supplied CreateTableBase fragment — the one place the driver
// edits an otherwise-opaque script, per SPEC_FULL.md section 9.
func buildShadowDDL(bundle catalog.ScriptBundle, opts Options) (string, error) {
	switch opts.Mode {
	case ModeNoOrder:
		return bundle.CreateTableBase, nil
	case ModeCustom:
		if opts.OrderBy == "" {
			return "", fmt.Errorf("custom order mode requires --order-by")
		}
		return fmt.Sprintf("%s ORDER BY %s", bundle.CreateTableBase, opts.OrderBy), nil
	default: // ModeCluster
		if bundle.ClusterKeyExpr == "" {
			return "", fmt.Errorf("table has no cluster key: rerun with --no-order or --order-by")
		}
		return fmt.Sprintf("%s ORDER BY %s", bundle.CreateTableBase, bundle.ClusterKeyExpr), nil
	}
}

// buildIndexes is phase 3: rebuild each of the target's indexes against
// the shadow table, serially by design.
func (d *Driver) buildIndexes(ctx context.Context, target catalog.Target) error {
	indexes, err := catalog.ListIndexes(ctx, d.sess, target.OID)
	if err != nil {
		return fmt.Errorf("listing indexes: %w", err)
	}

	for _, idx := range indexes {
		d.log.Debug().Uint32("index_oid", idx.OID).Msg("building index")
		if err := d.sess.Exec(ctx, idx.CreateIndex); err != nil {
			return fmt.Errorf("building index %d: %w", idx.OID, err)
		}
	}
	return nil
}

// catchUp is phase 4: repeatedly drain the change log in bounded
// batches; once a round applies nothing, poll snapshot liveness and exit
// only once the log was empty on the same round that no pre-snapshot
// transaction remains.
func (d *Driver) catchUp(ctx context.Context, target catalog.Target) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := applylog.Apply(ctx, d.sess, target.Bundle, APPLY_BATCH)
		if err != nil {
			return fmt.Errorf("applying change log: %w", err)
		}
		if n > 0 {
			continue
		}

		alive, err := d.waiter.AnyAlive(ctx, d.sess, d.tok)
		if err != nil {
			return fmt.Errorf("checking snapshot liveness: %w", err)
		}
		if !alive {
			return nil
		}

		if err := sleepCancelable(ctx, CatchupPoll); err != nil {
			return err
		}
	}
}

// swap is phase 5: retry a non-blocking exclusive lock acquisition until
// granted, final-drain the log under the lock, then invoke the
// server-side atomic storage exchange.
func (d *Driver) swap(ctx context.Context, target catalog.Target) error {
	deadline, hasDeadline := d.swapDeadline(ctx)

	for {
		if hasDeadline && time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for exclusive lock on %s", target.Name)
		}

		if err := d.sess.Exec(ctx, "BEGIN ISOLATION LEVEL READ COMMITTED"); err != nil {
			return err
		}

		serr, err := d.sess.ExecLenient(ctx, target.Bundle.LockTable)
		if err != nil {
			_ = d.sess.Exec(ctx, "ROLLBACK")
			return fmt.Errorf("acquiring exclusive lock: %w", err)
		}
		if serr == nil {
			break // lock granted, transaction stays open
		}
		if serr.Class() != session.ClassLockUnavailable {
			_ = d.sess.Exec(ctx, "ROLLBACK")
			return fmt.Errorf("acquiring exclusive lock: %w", serr)
		}

		if err := d.sess.Exec(ctx, "ROLLBACK"); err != nil {
			return err
		}
		if err := sleepCancelable(ctx, SwapRetryInterval); err != nil {
			return err
		}
	}

	if _, err := applylog.Apply(ctx, d.sess, target.Bundle, applylog.DrainAll); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("final drain: %w", err)
	}

	if err := d.sess.Exec(ctx, fmt.Sprintf("SELECT reorg.reorg_swap(%d)", target.OID)); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("swapping storage: %w", err)
	}

	return d.sess.Exec(ctx, "COMMIT")
}

func (d *Driver) swapDeadline(ctx context.Context) (time.Time, bool) {
	if d.opts.LockWaitTimeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(d.opts.LockWaitTimeout), true
}

// drop is phase 6: invoke the server-side cleanup of all transient
// objects, then clear the current-table registration.
func (d *Driver) drop(ctx context.Context, target catalog.Target) error {
	if err := d.sess.Exec(ctx, "BEGIN"); err != nil {
		return err
	}
	if err := d.sess.Exec(ctx, fmt.Sprintf("SELECT reorg.reorg_drop(%d)", target.OID)); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("dropping transient objects: %w", err)
	}
	return d.sess.Exec(ctx, "COMMIT")
}

// analyze is phase 7: best-effort ANALYZE of the target. The caller
// treats any error here as non-fatal.
func (d *Driver) analyze(ctx context.Context, target catalog.Target) error {
	if err := d.sess.Exec(ctx, "BEGIN"); err != nil {
		return err
	}
	verbose := ""
	if d.opts.AnalyzeVerbose {
		verbose = "VERBOSE "
	}
	if err := d.sess.Exec(ctx, fmt.Sprintf("ANALYZE %s%s", verbose, target.Name)); err != nil {
		_ = d.sess.Exec(ctx, "ROLLBACK")
		return err
	}
	return d.sess.Exec(ctx, "COMMIT")
}

// quoteLiteral produces a single-quoted SQL string literal, doubling any
// embedded quotes — used for the regclass-as-text arguments passed to
// reorg.disable_autovacuum.
func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
