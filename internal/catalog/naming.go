package catalog

import "fmt"

// TriggerName is the single, fixed row-capture trigger name. Phase 1
// rejects any user trigger that would sort after it — see
// reorg.conflictedTriggers.
const TriggerName = "z_reorg_trigger"

// LogTableName returns the deterministic change-log table name for a
// target OID, matching pg_reorg's reorg.log_<oid> convention so an
// operator who knows pg_repack/pg_reorg recognizes the objects on sight.
func LogTableName(oid uint32) string {
	return fmt.Sprintf("reorg.log_%d", oid)
}

// ShadowTableName returns the deterministic shadow-table name for a
// target OID.
func ShadowTableName(oid uint32) string {
	return fmt.Sprintf("reorg.table_%d", oid)
}

// PKTypeName returns the deterministic composite PK type name for a
// target OID.
func PKTypeName(oid uint32) string {
	return fmt.Sprintf("reorg_pk_%d", oid)
}
