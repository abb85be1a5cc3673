package applylog

import (
	"context"
	"testing"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/session/fakesession"
)

func sampleBundle() catalog.ScriptBundle {
	return catalog.ScriptBundle{
		SQLPeek:   "SELECT * FROM reorg.log_16420 ORDER BY id LIMIT $1",
		SQLInsert: "INSERT INTO reorg.table_16420 ...",
		SQLDelete: "DELETE FROM reorg.table_16420 ...",
		SQLUpdate: "UPDATE reorg.table_16420 ...",
		SQLPop:    "DELETE FROM reorg.log_16420 WHERE id = ANY($1)",
	}
}

func TestApply_ReturnsRowsApplied(t *testing.T) {
	fake := fakesession.New(
		fakesession.Response{Match: "SELECT reorg.reorg_apply", Rows: [][]any{{int64(42)}}},
	)

	applied, err := Apply(context.Background(), fake, sampleBundle(), 1000)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if applied != 42 {
		t.Errorf("applied = %d, want 42", applied)
	}
}

func TestApply_PassesDrainAllAsLimit(t *testing.T) {
	fake := fakesession.New(
		fakesession.Response{Match: "SELECT reorg.reorg_apply", Rows: [][]any{{int64(0)}}},
	)

	if _, err := Apply(context.Background(), fake, sampleBundle(), DrainAll); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(fake.Calls) != 1 {
		t.Fatalf("expected exactly one call, got %d", len(fake.Calls))
	}
	args := fake.Calls[0].Args
	if len(args) != 6 || args[5] != DrainAll {
		t.Errorf("expected the final arg to be DrainAll (%d), got args: %v", DrainAll, args)
	}
}
