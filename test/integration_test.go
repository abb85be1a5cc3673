//go:build integration

package test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/reorg"
	"github.com/nethalo/pgreorg/internal/session"
)

/*
Integration tests for pgreorg against a real PostgreSQL instance.

To run these tests:
1. Start a Postgres instance with the reorg extension's metadata schema
   installed (the extension's server-side contract is listed in
   SPEC_FULL.md section 6; its DDL is not part of this repository).
2. With PGREORG_TEST_DSN unset, the tests connect as
   pgreorg:test@127.0.0.1:5432/pgreorg_test with sslmode=disable. Set
   PGREORG_TEST_DSN to any non-empty value to read the connection from
   PGREORG_TEST_HOST/USER/PASSWORD/DB instead; the DSN value itself is
   not parsed.
3. go test -tags=integration ./test

These tests are skipped outright when the server is unreachable.
*/

func testConfig(t *testing.T) session.Config {
	t.Helper()

	dsn := os.Getenv("PGREORG_TEST_DSN")
	if dsn == "" {
		return session.Config{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "pgreorg",
			Password: "test",
			Database: "pgreorg_test",
			SSLMode:  "disable",
		}
	}

	// A full DSN is accepted by session.Connect only as Config fields, so
	// tests that need a non-default DSN should export the discrete
	// PGREORG_TEST_HOST/PORT/USER/PASSWORD/DB vars instead.
	cfg := session.Config{
		Host:     envOr("PGREORG_TEST_HOST", "127.0.0.1"),
		Port:     5432,
		User:     envOr("PGREORG_TEST_USER", "pgreorg"),
		Password: envOr("PGREORG_TEST_PASSWORD", "test"),
		Database: envOr("PGREORG_TEST_DB", "pgreorg_test"),
		SSLMode:  "disable",
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func waitForPostgres(ctx context.Context, cfg session.Config, maxAttempts int) (*session.PgSession, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		sess, err := session.Connect(ctx, cfg)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("postgres not ready after %d attempts: %w", maxAttempts, lastErr)
}

func TestIntegration_ConnectAndVersion(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	sess, err := waitForPostgres(ctx, cfg, 10)
	if err != nil {
		t.Skip("postgres not available:", err)
	}
	defer sess.Close()

	verNum, err := sess.ServerVersionNum(ctx)
	if err != nil {
		t.Fatalf("version detection failed: %v", err)
	}
	if verNum < 120000 {
		t.Errorf("expected PostgreSQL 12 or later, got server_version_num=%d", verNum)
	}
}

func TestIntegration_ListDatabases(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	sess, err := waitForPostgres(ctx, cfg, 10)
	if err != nil {
		t.Skip("postgres not available:", err)
	}
	defer sess.Close()

	names, err := catalog.ListDatabases(ctx, sess)
	if err != nil {
		t.Fatalf("listing databases failed: %v", err)
	}
	if len(names) == 0 {
		t.Error("expected at least one connectable database")
	}
}

// TestIntegration_ReorgTable exercises a full reorganization of a test
// table. It expects the database named by PGREORG_TEST_DB to already have
// the reorg extension's metadata schema installed and at least one table
// declaring a cluster key, e.g. via:
//
//	CREATE TABLE orders (id bigint PRIMARY KEY, created_at timestamptz);
//	CREATE INDEX orders_created_at_idx ON orders (created_at);
//	SELECT reorg.register('orders', 'orders_created_at_idx');
func TestIntegration_ReorgTable(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	sess, err := waitForPostgres(ctx, cfg, 10)
	if err != nil {
		t.Skip("postgres not available:", err)
	}
	defer sess.Close()

	verNum, err := sess.ServerVersionNum(ctx)
	if err != nil {
		t.Fatalf("version detection failed: %v", err)
	}

	targets, err := catalog.ListTargets(ctx, sess, catalog.Selector{})
	if err != nil {
		t.Skip("reorg extension not installed in test database:", err)
	}
	if len(targets) == 0 {
		t.Skip("no cluster-key tables registered for reorganization")
	}

	log := zerolog.Nop()
	driver := reorg.New(sess, verNum, log, reorg.Options{})

	target := targets[0]
	if err := driver.Run(ctx, target); err != nil {
		t.Fatalf("reorg of %s failed in phase %s: %v", target.Name, driver.Phase(), err)
	}
	if driver.Phase() != reorg.Dropped {
		t.Errorf("expected final phase %s, got %s", reorg.Dropped, driver.Phase())
	}
}

// Benchmark integration tests

func BenchmarkIntegration_ListTargets(b *testing.B) {
	ctx := context.Background()
	cfg := session.Config{
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "pgreorg",
		Password: "test",
		Database: "pgreorg_test",
		SSLMode:  "disable",
	}

	sess, err := waitForPostgres(ctx, cfg, 5)
	if err != nil {
		b.Skip("postgres not available:", err)
	}
	defer sess.Close()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := catalog.ListTargets(ctx, sess, catalog.Selector{}); err != nil {
			b.Fatal(err)
		}
	}
}
