// Package applylog drains a target's per-table change log into the
// shadow table in bounded batches, via the server-side reorg.reorg_apply
// helper. It is safe to call concurrently with writers to the target:
// they append to the log, and the capture trigger serializes appends
// through the log table's own MVCC.
package applylog

import (
	"context"
	"fmt"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/session"
)

// DrainAll, passed as limit, means "drain everything available in this
// call" — used for the final flush under the phase-5 swap lock.
const DrainAll = 0

// Apply invokes reorg.reorg_apply with the five prebuilt DML fragments
// from bundle and returns the number of rows the server reports as
// applied. The helper's contract: atomically peek up to limit log rows
// ordered by log position, replay each as the recorded operation against
// the shadow table, and pop them.
func Apply(ctx context.Context, sess session.Session, bundle catalog.ScriptBundle, limit int) (int64, error) {
	row := sess.QueryRow(ctx,
		`SELECT reorg.reorg_apply($1, $2, $3, $4, $5, $6)`,
		bundle.SQLPeek, bundle.SQLInsert, bundle.SQLDelete, bundle.SQLUpdate, bundle.SQLPop, limit,
	)

	var applied int64
	if err := row.Scan(&applied); err != nil {
		return 0, fmt.Errorf("applying change log: %w", err)
	}
	return applied, nil
}
