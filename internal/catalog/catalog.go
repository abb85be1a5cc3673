// Package catalog queries the server extension's metadata view to obtain,
// per target table, the OIDs and the pre-built DDL/DML script set the
// reorg driver treats as opaque. None of the SQL fragments here are
// parsed or edited by this package beyond the ORDER BY suffix the driver
// appends in phase 2 — see reorg.buildShadowDDL.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/nethalo/pgreorg/internal/session"
)

// ErrExtensionAbsent is returned by ListTargets when the reorg extension's
// metadata schema does not exist in the current database.
var ErrExtensionAbsent = errors.New("reorg extension not installed in this database")

// ErrNoPrimaryKey is returned when a selected table has no primary key —
// online reorg of such a table is rejected outright.
var ErrNoPrimaryKey = errors.New("table has no primary key")

// ScriptBundle is the opaque set of DDL/DML fragments the server extension
// pre-builds for one target table. The driver never constructs or parses
// these strings; it only executes them (and, for CreateTableBase, appends
// a single ORDER BY clause).
type ScriptBundle struct {
	CreatePKType    string
	CreateLog       string
	CreateTrigger   string
	CreateTableBase string
	ClusterKeyExpr  string
	DeleteLog       string
	LockTable       string
	SQLPeek         string
	SQLInsert       string
	SQLDelete       string
	SQLUpdate       string
	SQLPop          string
}

// Target describes one table queued for reorganization.
type Target struct {
	Name          string
	OID           uint32
	ToastOID      uint32
	ToastIndexOID uint32
	PKOID         uint32
	ClusterKeyOID uint32 // 0 when the table declares no cluster key
	Bundle        ScriptBundle
}

// Index describes one index to be rebuilt against the shadow table.
type Index struct {
	OID         uint32
	CreateIndex string
}

// Selector narrows ListTargets to a single relation or to a custom order,
// matching the CLI's -t/--table and -o/--order-by flags.
type Selector struct {
	Relation string // specific relation identifier, e.g. "public.orders"
	OrderBy  string // non-empty enables "custom order" target selection
}

// ListDatabases returns connectable database names in ascending order.
func ListDatabases(ctx context.Context, sess session.Session) ([]string, error) {
	rows, err := sess.Query(ctx, `
		SELECT datname FROM pg_database
		WHERE datallowconn AND NOT datistemplate
		ORDER BY datname
	`)
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning database name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListTargets queries reorg.tables for the descriptors matching selector.
// When selector.Relation is set, it filters to that single relation. When
// unset: a non-empty selector.OrderBy includes every table with a primary
// key; otherwise it restricts to tables that also declare a cluster key.
func ListTargets(ctx context.Context, sess session.Session, sel Selector) ([]Target, error) {
	query, args := buildTargetsQuery(sel)

	rows, err := sess.Query(ctx, query, args...)
	if err != nil {
		if serr, ok := session.AsServerError(err); ok && serr.Class() == session.ClassInvalidSchema {
			return nil, ErrExtensionAbsent
		}
		return nil, fmt.Errorf("querying reorg.tables: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(
			&t.Name, &t.OID, &t.ToastOID, &t.ToastIndexOID, &t.PKOID, &t.ClusterKeyOID,
			&t.Bundle.CreatePKType, &t.Bundle.CreateLog, &t.Bundle.CreateTrigger,
			&t.Bundle.CreateTableBase, &t.Bundle.ClusterKeyExpr, &t.Bundle.DeleteLog,
			&t.Bundle.LockTable, &t.Bundle.SQLPeek, &t.Bundle.SQLInsert,
			&t.Bundle.SQLDelete, &t.Bundle.SQLUpdate, &t.Bundle.SQLPop,
		); err != nil {
			return nil, fmt.Errorf("scanning reorg.tables row: %w", err)
		}
		if t.PKOID == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, t.Name)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func buildTargetsQuery(sel Selector) (string, []any) {
	const columns = `
		name, oid, toast_oid, toast_index_oid, pk_oid, cluster_key_oid,
		create_pktype, create_log, create_trigger, create_table_base,
		cluster_key_expr, delete_log, lock_table,
		sql_peek, sql_insert, sql_delete, sql_update, sql_pop`

	if sel.Relation != "" {
		return fmt.Sprintf(`SELECT %s FROM reorg.tables WHERE oid = $1::regclass::oid`, columns),
			[]any{sel.Relation}
	}
	if sel.OrderBy != "" {
		return fmt.Sprintf(`SELECT %s FROM reorg.tables ORDER BY name`, columns), nil
	}
	return fmt.Sprintf(`SELECT %s FROM reorg.tables WHERE cluster_key_oid <> 0 ORDER BY name`, columns), nil
}

// ListIndexes returns the index descriptors for targetOID, queried fresh
// so phase 3 always rebuilds against the target's current index set.
func ListIndexes(ctx context.Context, sess session.Session, targetOID uint32) ([]Index, error) {
	rows, err := sess.Query(ctx, `
		SELECT indexrelid, reorg.reorg_indexdef(indexrelid, indrelid)
		FROM pg_index WHERE indrelid = $1
	`, targetOID)
	if err != nil {
		return nil, fmt.Errorf("listing indexes for oid %d: %w", targetOID, err)
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.OID, &idx.CreateIndex); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}
