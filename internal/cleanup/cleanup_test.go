package cleanup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/session/fakesession"
)

func sampleTarget() *catalog.Target {
	return &catalog.Target{Name: "public.orders", OID: 16420}
}

func TestHandler_Graceful_NoOpWhenNoCurrentTable(t *testing.T) {
	fake := fakesession.New()
	h := NewHandler(fake, zerolog.Nop(), func() *catalog.Target { return nil })

	if err := h.Graceful(context.Background()); err != nil {
		t.Fatalf("Graceful() error = %v", err)
	}
	if len(fake.Calls) != 0 {
		t.Errorf("expected no database calls, got %d: %+v", len(fake.Calls), fake.Calls)
	}
}

func TestHandler_Graceful_DropsTransientObjects(t *testing.T) {
	fake := fakesession.New()
	h := NewHandler(fake, zerolog.Nop(), func() *catalog.Target { return sampleTarget() })

	if err := h.Graceful(context.Background()); err != nil {
		t.Fatalf("Graceful() error = %v", err)
	}

	found := false
	for _, call := range fake.Calls {
		if strings.Contains(call.SQL, "reorg.reorg_drop(16420)") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a reorg_drop call for oid 16420, calls: %+v", fake.Calls)
	}
}

func TestHandler_Graceful_ReconnectsWhenSessionDead(t *testing.T) {
	fake := fakesession.New(
		fakesession.Response{Match: "BEGIN", Err: errDisconnected},
	)
	h := NewHandler(fake, zerolog.Nop(), func() *catalog.Target { return sampleTarget() })

	err := h.Graceful(context.Background())
	if err == nil {
		t.Fatal("expected an error since every BEGIN after reconnect is also scripted to fail")
	}
	if !strings.Contains(err.Error(), "after reconnect") {
		t.Errorf("expected the error to mention the reconnect path, got: %v", err)
	}
}

func TestHandler_Fatal_NoOpWhenNoCurrentTable(t *testing.T) {
	fake := fakesession.New()
	h := NewHandler(fake, zerolog.Nop(), func() *catalog.Target { return nil })

	h.Fatal() // must not panic and must not touch the session

	if len(fake.Calls) != 0 {
		t.Errorf("Fatal() must never perform database I/O, got calls: %+v", fake.Calls)
	}
}

func TestHandler_Fatal_DoesNoDatabaseIO(t *testing.T) {
	fake := fakesession.New()
	h := NewHandler(fake, zerolog.Nop(), func() *catalog.Target { return sampleTarget() })

	h.Fatal()

	if len(fake.Calls) != 0 {
		t.Errorf("Fatal() must never perform database I/O, got calls: %+v", fake.Calls)
	}
}

var errDisconnected = errors.New("connection reset")
