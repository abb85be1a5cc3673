// Package reorg implements the seven-phase per-table state machine:
// setup, copy, index build, catch-up, swap, drop, analyze. It owns the
// "current table" registration the cleanup handler consults on every
// failure path.
package reorg

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/session"
	"github.com/nethalo/pgreorg/internal/snapshot"
)

// APPLY_BATCH is the bounded batch size for each catch-up drain, named
// after pg_reorg.c's APPLY_COUNT.
const APPLY_BATCH = 1000

// CatchupPoll is the constant backoff between catch-up rounds once the
// log is empty and we're waiting on pre-snapshot transactions to finish.
// No exponential scheme is needed: the wait is gated by external
// transaction completion, not by contention.
const CatchupPoll = time.Second

// SwapRetryInterval is the constant backoff between non-blocking lock
// attempts in phase 5.
const SwapRetryInterval = time.Second

// Mode selects the ORDER BY applied when materializing the shadow table.
type Mode int

const (
	// ModeCluster orders by the table's declared cluster key (default).
	ModeCluster Mode = iota
	// ModeNoOrder performs no ORDER BY — physical compaction only.
	ModeNoOrder
	// ModeCustom orders by a caller-supplied column list.
	ModeCustom
)

// Phase names the orchestrator state for one target, in the order they
// advance; Aborted is reachable from any phase after setup.
type Phase int

const (
	Idle Phase = iota
	SetupDone
	CopyDone
	IndexesDone
	CaughtUp
	Swapped
	Dropped
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case SetupDone:
		return "setup_done"
	case CopyDone:
		return "copy_done"
	case IndexesDone:
		return "indexes_done"
	case CaughtUp:
		return "caught_up"
	case Swapped:
		return "swapped"
	case Dropped:
		return "dropped"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Options configures one reorganization run.
type Options struct {
	Mode          Mode
	OrderBy       string // used when Mode == ModeCustom
	SkipAnalyze   bool
	AnalyzeVerbose bool
	LockWaitTimeout time.Duration // 0 = unbounded, matching upstream (Open Question #2)
}

// Driver executes the phase protocol for one target table over one
// session. A Driver is single-use: construct a new one per target.
//
// The spec leaves open whether the client should hold a relation-level
// share lock across phases 1-4 to prevent concurrent ALTER TABLE on the
// target; pg_reorg.c does not, and neither do we — see DESIGN.md's Open
// Question #1. The assumption is that such DDL is prevented externally.
type Driver struct {
	sess    session.Session
	log     zerolog.Logger
	opts    Options
	waiter  *snapshot.Waiter
	current *catalog.Target
	phase   Phase
	tok     snapshot.Token
}

// New constructs a Driver bound to sess. serverVersionNum selects the
// snapshot waiter's pg_locks query shape.
func New(sess session.Session, serverVersionNum int, log zerolog.Logger, opts Options) *Driver {
	return &Driver{
		sess:   sess,
		log:    log,
		opts:   opts,
		waiter: snapshot.NewWaiter(serverVersionNum),
		phase:  Idle,
	}
}

// Phase returns the driver's current state.
func (d *Driver) Phase() Phase { return d.phase }

// Current returns the target currently registered for cleanup, or nil if
// none is registered (state ∈ {Idle, Dropped}).
func (d *Driver) Current() *catalog.Target { return d.current }

// Run executes all seven phases for target, in order, stopping at the
// first error. On any failure after phase 1 commits, target remains
// registered via Current so the caller's cleanup handler can drop the
// transient objects; on success (or on failure before phase 1 commits),
// Current returns nil.
func (d *Driver) Run(ctx context.Context, target catalog.Target) error {
	d.log.Info().Str("table", target.Name).Uint32("oid", target.OID).Msg("reorg starting")
	d.log.Debug().Interface("target", target).Msg("target descriptor")

	start := time.Now()
	logPhase := func() {
		d.log.Info().Str("table", target.Name).Uint32("oid", target.OID).
			Str("phase", d.phase.String()).Dur("elapsed", time.Since(start)).Msg("phase complete")
	}

	if err := d.setup(ctx, target); err != nil {
		d.phase = Aborted
		return fmt.Errorf("phase 1 (setup) for %s: %w", target.Name, err)
	}
	d.current = &target
	d.phase = SetupDone
	logPhase()

	if err := d.copy(ctx, target); err != nil {
		d.phase = Aborted
		return fmt.Errorf("phase 2 (copy) for %s: %w", target.Name, err)
	}
	d.phase = CopyDone
	logPhase()

	if err := d.buildIndexes(ctx, target); err != nil {
		d.phase = Aborted
		return fmt.Errorf("phase 3 (index build) for %s: %w", target.Name, err)
	}
	d.phase = IndexesDone
	logPhase()

	if err := d.catchUp(ctx, target); err != nil {
		d.phase = Aborted
		return fmt.Errorf("phase 4 (catch-up) for %s: %w", target.Name, err)
	}
	d.phase = CaughtUp
	logPhase()

	if err := d.swap(ctx, target); err != nil {
		d.phase = Aborted
		return fmt.Errorf("phase 5 (swap) for %s: %w", target.Name, err)
	}
	d.phase = Swapped
	logPhase()

	if err := d.drop(ctx, target); err != nil {
		d.phase = Aborted
		return fmt.Errorf("phase 6 (drop) for %s: %w", target.Name, err)
	}
	d.phase = Dropped
	d.current = nil
	d.tok = snapshot.Token{}
	logPhase()

	if !d.opts.SkipAnalyze {
		// Best-effort: failure here is non-fatal. Registration is already
		// cleared, the physical reorganization has already succeeded.
		if err := d.analyze(ctx, target); err != nil {
			d.log.Warn().Err(err).Str("table", target.Name).Msg("analyze failed, continuing")
		}
	}

	d.log.Info().Str("table", target.Name).Msg("reorg complete")
	return nil
}

func sleepCancelable(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
