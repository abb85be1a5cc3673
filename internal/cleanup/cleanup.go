// Package cleanup guarantees that transient reorganization objects are
// dropped no matter where the driver fails. It observes the driver's
// "current table" registration rather than duplicating any phase logic.
package cleanup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/session"
)

// Handler closes over the session and the driver's Current accessor.
// Graceful must only be invoked after a driver call has returned, never
// concurrently with an in-flight phase. Fatal, which does no database
// I/O, is also invoked from the signal goroutine while a phase may still
// be running.
type Handler struct {
	sess    session.Session
	log     zerolog.Logger
	current func() *catalog.Target
}

// NewHandler builds a Handler bound to sess; current is typically
// (*reorg.Driver).Current.
func NewHandler(sess session.Session, log zerolog.Logger, current func() *catalog.Target) *Handler {
	return &Handler{sess: sess, log: log, current: current}
}

// Graceful rolls back any open transaction, reconnects if the session is
// known dead, and drops the registered table's transient objects. It is
// a no-op when no table is currently registered.
func (h *Handler) Graceful(ctx context.Context) error {
	target := h.current()
	if target == nil {
		return nil
	}

	h.log.Warn().Str("table", target.Name).Msg("cleaning up after incomplete reorg")

	_ = h.sess.Exec(ctx, "ROLLBACK")

	if err := h.sess.Exec(ctx, "BEGIN"); err != nil {
		if rerr := h.sess.Reconnect(ctx); rerr != nil {
			return fmt.Errorf("cleanup: session unreachable and reconnect failed: %w", rerr)
		}
		if err := h.sess.Exec(ctx, "BEGIN"); err != nil {
			return fmt.Errorf("cleanup: starting transaction after reconnect: %w", err)
		}
	}

	if err := h.sess.Exec(ctx, fmt.Sprintf("SELECT reorg.reorg_drop(%d)", target.OID)); err != nil {
		_ = h.sess.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("cleanup: dropping transient objects for %s: %w", target.Name, err)
	}

	return h.sess.Exec(ctx, "COMMIT")
}

// Fatal handles a signal or unrecoverable error. It never performs
// database I/O — the session may be in an indeterminate state — and
// instead prints a manual-intervention notice naming the transient
// objects an operator must inspect.
func (h *Handler) Fatal() {
	target := h.current()
	if target == nil {
		return
	}

	h.log.Error().
		Str("table", target.Name).
		Str("log_table", catalog.LogTableName(target.OID)).
		Str("shadow_table", catalog.ShadowTableName(target.OID)).
		Str("pk_type", catalog.PKTypeName(target.OID)).
		Msg("interrupted mid-reorg: manual cleanup required, run `reorg.reorg_drop(oid)` by hand")
}
