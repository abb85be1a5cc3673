// Package snapshot captures the set of transaction identifiers concurrent
// with a chosen moment and later tests whether any of them are still
// alive — the liveness check that gates phase 4's catch-up loop.
package snapshot

import (
	"context"
	"fmt"

	"github.com/nethalo/pgreorg/internal/session"
)

// Token is an opaque server-produced identifier for the set of
// transactions observed at capture time. Its only operation is "ask the
// server whether any member is still alive" via Waiter.AnyAlive.
type Token struct {
	raw string
}

// virtualXIDVersion is the server_version_num below which pg_locks has no
// virtualtransaction column usable for this purpose (pre-8.3, matching
// pg_reorg.c's 80300 cutoff); below it, full transaction identifiers are
// used instead.
const virtualXIDVersion = 80300

// Waiter captures and polls snapshot tokens. It is version-agnostic to
// its caller: the driver constructs one Waiter per session and never
// branches on server version itself.
type Waiter struct {
	useVirtualXID bool
}

// NewWaiter selects the pg_locks query shape for the given
// server_version_num, mirroring pg_reorg.c's SQL_XID_SNAPSHOT /
// SQL_XID_ALIVE version branch.
func NewWaiter(serverVersionNum int) *Waiter {
	return &Waiter{useVirtualXID: serverVersionNum >= virtualXIDVersion}
}

// Capture records the set of concurrent transactions visible right now.
// The caller is expected to already be inside the serializable
// transaction that will go on to materialize the shadow table — this
// must run before any write in that transaction so the epoch boundary in
// SPEC_FULL.md section 5 holds.
func (w *Waiter) Capture(ctx context.Context, sess session.Session) (Token, error) {
	query := w.snapshotQuery()
	row := sess.QueryRow(ctx, query)

	var raw string
	if err := row.Scan(&raw); err != nil {
		return Token{}, fmt.Errorf("capturing snapshot: %w", err)
	}
	return Token{raw: raw}, nil
}

// AnyAlive reports whether at least one transaction recorded in tok still
// holds its lock.
func (w *Waiter) AnyAlive(ctx context.Context, sess session.Session, tok Token) (bool, error) {
	query := w.aliveQuery()
	rows, err := sess.Query(ctx, query, tok.raw)
	if err != nil {
		return false, fmt.Errorf("checking snapshot liveness: %w", err)
	}
	defer rows.Close()

	alive := rows.Next()
	return alive, rows.Err()
}

func (w *Waiter) snapshotQuery() string {
	if w.useVirtualXID {
		return `SELECT reorg.array_accum(virtualtransaction) FROM pg_locks
			WHERE locktype = 'virtualxid' AND pid <> pg_backend_pid()`
	}
	return `SELECT reorg.array_accum(transactionid) FROM pg_locks
		WHERE locktype = 'transactionid' AND pid <> pg_backend_pid()`
}

func (w *Waiter) aliveQuery() string {
	if w.useVirtualXID {
		return `SELECT 1 FROM pg_locks WHERE locktype = 'virtualxid'
			AND pid <> pg_backend_pid() AND virtualtransaction = ANY($1) LIMIT 1`
	}
	return `SELECT 1 FROM pg_locks WHERE locktype = 'transactionid'
		AND pid <> pg_backend_pid() AND transactionid = ANY($1) LIMIT 1`
}
