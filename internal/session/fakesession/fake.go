// Package fakesession provides a scripted session.Session for tests that
// exercise the reorg driver's phase sequencing without a live Postgres
// server.
package fakesession

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nethalo/pgreorg/internal/session"
)

// Call records one Exec/ExecLenient/Query/QueryRow invocation.
type Call struct {
	SQL  string
	Args []any
}

// Response scripts what the Fake returns for a matching call.
type Response struct {
	// Match, if set, is matched against a prefix of the call's SQL
	// (case-insensitive, whitespace-trimmed). Unset means "respond to
	// any otherwise-unmatched call", used for a single catch-all default.
	Match string

	Err        error               // connection-level failure
	ServerErr  *session.ServerError // server-side failure (Exec returns it as its error)
	Rows       [][]any             // rows returned by Query/QueryRow
	RowsErr    error
}

// Fake is an in-memory session.Session driven by a script of Responses.
type Fake struct {
	mu        sync.Mutex
	Calls     []Call
	responses []Response
	closed    bool
}

// New creates a Fake with the given scripted responses, tried in order
// against each call's SQL prefix; the first Response with an empty Match
// acts as the default for calls no other Response matches.
func New(responses ...Response) *Fake {
	return &Fake{responses: responses}
}

func (f *Fake) record(sql string, args []any) Response {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{SQL: sql, Args: args})
	f.mu.Unlock()

	trimmed := strings.TrimSpace(sql)
	for _, r := range f.responses {
		if r.Match == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(trimmed), strings.ToUpper(r.Match)) {
			return r
		}
	}
	for _, r := range f.responses {
		if r.Match == "" {
			return r
		}
	}
	return Response{}
}

func (f *Fake) Exec(_ context.Context, sql string, args ...any) error {
	resp := f.record(sql, args)
	if resp.Err != nil {
		return resp.Err
	}
	if resp.ServerErr != nil {
		return resp.ServerErr
	}
	return nil
}

func (f *Fake) ExecLenient(_ context.Context, sql string, args ...any) (*session.ServerError, error) {
	resp := f.record(sql, args)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.ServerErr, nil
}

func (f *Fake) Query(_ context.Context, sql string, args ...any) (session.Rows, error) {
	resp := f.record(sql, args)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &fakeRows{rows: resp.Rows, err: resp.RowsErr, idx: -1}, nil
}

func (f *Fake) QueryRow(_ context.Context, sql string, args ...any) session.Row {
	resp := f.record(sql, args)
	if len(resp.Rows) == 0 {
		return &fakeRow{err: fmt.Errorf("no rows")}
	}
	return &fakeRow{values: resp.Rows[0]}
}

func (f *Fake) Reconnect(context.Context) error {
	f.closed = false
	return nil
}

func (f *Fake) Close() {
	f.closed = true
}

// Closed reports whether Close has been called without a subsequent
// Reconnect — used by cleanup handler tests.
func (f *Fake) Closed() bool {
	return f.closed
}

type fakeRows struct {
	rows [][]any
	err  error
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return fmt.Errorf("scan called out of range")
	}
	return scanInto(r.rows[r.idx], dest)
}

func (r *fakeRows) Close() {}

func (r *fakeRows) Err() error { return r.err }

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("column count mismatch: have %d, want %d", len(values), len(dest))
	}
	for i, v := range values {
		if err := assign(dest[i], v); err != nil {
			return err
		}
	}
	return nil
}

// assign performs the handful of scan-target assignments the orchestrator
// actually needs (string, *string, int64, *int64, bool, uint32, *uint32,
// *int64-nullable via pointer-to-pointer). It is intentionally narrow: a
// fake for the specific result shapes catalog/snapshot/applylog consume,
// not a general database/sql replacement.
func assign(dest, v any) error {
	switch d := dest.(type) {
	case *string:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("cannot assign %T to *string", v)
		}
		*d = s
	case *int64:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("cannot assign %T to *int64", v)
		}
		*d = n
	case *int:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("cannot assign %T to *int", v)
		}
		*d = int(n)
	case *uint32:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("cannot assign %T to *uint32", v)
		}
		*d = uint32(n)
	case *bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("cannot assign %T to *bool", v)
		}
		*d = b
	case **string:
		if v == nil {
			*d = nil
			return nil
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("cannot assign %T to **string", v)
		}
		*d = &s
	default:
		return fmt.Errorf("unsupported scan target %T", dest)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}
