package snapshot

import (
	"context"
	"strings"
	"testing"

	"github.com/nethalo/pgreorg/internal/session/fakesession"
)

func TestNewWaiter_VersionBranch(t *testing.T) {
	cases := []struct {
		version int
		want    bool
	}{
		{80200, false},
		{80300, true},
		{160003, true},
	}
	for _, tc := range cases {
		w := NewWaiter(tc.version)
		if w.useVirtualXID != tc.want {
			t.Errorf("NewWaiter(%d).useVirtualXID = %v, want %v", tc.version, w.useVirtualXID, tc.want)
		}
	}
}

func TestCapture_UsesVirtualXIDQuery(t *testing.T) {
	fake := fakesession.New(
		fakesession.Response{Match: "SELECT reorg.array_accum(virtualtransaction)", Rows: [][]any{{"snap-token"}}},
	)
	w := NewWaiter(160003)

	tok, err := w.Capture(context.Background(), fake)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if tok.raw != "snap-token" {
		t.Errorf("tok.raw = %q, want %q", tok.raw, "snap-token")
	}
}

func TestCapture_PreVirtualXIDUsesTransactionIDQuery(t *testing.T) {
	fake := fakesession.New(
		fakesession.Response{Match: "SELECT reorg.array_accum(transactionid)", Rows: [][]any{{"legacy-token"}}},
	)
	w := NewWaiter(80200)

	if _, err := w.Capture(context.Background(), fake); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if len(fake.Calls) != 1 || !strings.Contains(fake.Calls[0].SQL, "transactionid") {
		t.Errorf("expected a transactionid-based query, got calls: %+v", fake.Calls)
	}
}

func TestAnyAlive_ReportsTrueWhenLockFound(t *testing.T) {
	fake := fakesession.New(
		fakesession.Response{Match: "SELECT reorg.array_accum", Rows: [][]any{{"snap-token"}}},
		fakesession.Response{Match: "SELECT 1 FROM pg_locks", Rows: [][]any{{int64(1)}}},
	)
	w := NewWaiter(160003)

	tok, err := w.Capture(context.Background(), fake)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	alive, err := w.AnyAlive(context.Background(), fake, tok)
	if err != nil {
		t.Fatalf("AnyAlive() error = %v", err)
	}
	if !alive {
		t.Error("expected AnyAlive() to report true when a matching lock row is returned")
	}
}

func TestAnyAlive_ReportsFalseWhenNoLocksFound(t *testing.T) {
	fake := fakesession.New(
		fakesession.Response{Match: "SELECT 1 FROM pg_locks", Rows: nil},
	)
	w := NewWaiter(160003)

	alive, err := w.AnyAlive(context.Background(), fake, Token{raw: "snap-token"})
	if err != nil {
		t.Fatalf("AnyAlive() error = %v", err)
	}
	if alive {
		t.Error("expected AnyAlive() to report false with an empty result set")
	}
}
