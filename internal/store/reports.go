package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/querygate/querygate/internal/model"
	"github.com/querygate/querygate/internal/policy"
)

// Reports serves the read-only endpoints consumed by the router:
// profile lookup, audit-log listing, user listing, and schema
// introspection. Role filtering mirrors the policy engine's restricted
// tables and must stay in sync with it, which is why the rules config
// is injected rather than duplicated.
type Reports struct {
	db *sql.DB

	mu    sync.RWMutex
	rules *policy.Config
}

// NewReports returns a reporting facade over the store handle.
func NewReports(db *sql.DB, rules *policy.Config) *Reports {
	if rules == nil {
		rules = policy.Default()
	}
	return &Reports{db: db, rules: rules}
}

// SwapRules replaces the rules config. Called on hot reload together
// with the policy engine swap.
func (r *Reports) SwapRules(rules *policy.Config) {
	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()
}

func (r *Reports) config() *policy.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules
}

// Profile returns the caller's own profile row.
func (r *Reports) Profile(ctx context.Context, actor model.Caller) (map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT * FROM get_my_profile($1, $2)", actor.ID, string(actor.Role))
	if err != nil {
		return nil, model.Execf(err, "profile lookup failed")
	}
	defer rows.Close()
	all, err := ScanRows(rows)
	if err != nil {
		return nil, model.Execf(err, "profile lookup failed")
	}
	if len(all) == 0 {
		return map[string]any{}, nil
	}
	return all[0], nil
}

// AuditLogs lists the audit trail. Admin only; the same restriction the
// policy engine applies to direct selects on the audit_log table.
func (r *Reports) AuditLogs(ctx context.Context, actor model.Caller) ([]map[string]any, error) {
	if actor.Role != model.RoleAdmin {
		return nil, model.Denied("access denied: audit logs are restricted to administrators")
	}
	rows, err := r.db.QueryContext(ctx, "SELECT * FROM get_audit_logs($1)", string(actor.Role))
	if err != nil {
		return nil, model.Execf(err, "audit log listing failed")
	}
	defer rows.Close()
	out, err := ScanRows(rows)
	if err != nil {
		return nil, model.Execf(err, "audit log listing failed")
	}
	return out, nil
}

// Users lists system users. Admin only.
func (r *Reports) Users(ctx context.Context, actor model.Caller) ([]map[string]any, error) {
	if actor.Role != model.RoleAdmin {
		return nil, model.Denied("access denied: user listing is restricted to administrators")
	}
	rows, err := r.db.QueryContext(ctx, "SELECT * FROM get_all_users($1)", string(actor.Role))
	if err != nil {
		return nil, model.Execf(err, "user listing failed")
	}
	defer rows.Close()
	out, err := ScanRows(rows)
	if err != nil {
		return nil, model.Execf(err, "user listing failed")
	}
	return out, nil
}

// Schema describes the tables, columns, and procedures visible to the
// caller's role.
type Schema struct {
	Tables     []map[string]any `json:"tables"`
	Columns    []map[string]any `json:"columns"`
	Procedures []map[string]any `json:"procedures"`
}

// SchemaFor introspects information_schema filtered by role: non-admin
// callers never see the restricted tables nor procedures outside their
// role's allowlist.
func (r *Reports) SchemaFor(ctx context.Context, actor model.Caller) (*Schema, error) {
	tablesQ := "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	columnsQ := "SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'public' ORDER BY table_name, ordinal_position"
	var tableArgs, columnArgs []any

	if actor.Role != model.RoleAdmin {
		hidden := r.config().HiddenTables()
		placeholders := make([]string, len(hidden))
		for i, t := range hidden {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			tableArgs = append(tableArgs, t)
			columnArgs = append(columnArgs, t)
		}
		notIn := " AND table_name NOT IN (" + strings.Join(placeholders, ", ") + ")"
		tablesQ = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'" + notIn + " ORDER BY table_name"
		columnsQ = "SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'public'" + notIn + " ORDER BY table_name, ordinal_position"
	}

	tables, err := r.queryMaps(ctx, tablesQ, tableArgs...)
	if err != nil {
		return nil, model.Execf(err, "schema introspection failed")
	}
	columns, err := r.queryMaps(ctx, columnsQ, columnArgs...)
	if err != nil {
		return nil, model.Execf(err, "schema introspection failed")
	}
	procedures, err := r.procedures(ctx, actor)
	if err != nil {
		return nil, model.Execf(err, "schema introspection failed")
	}
	return &Schema{Tables: tables, Columns: columns, Procedures: procedures}, nil
}

const proceduresBaseQ = `SELECT r.routine_name,
	COALESCE(string_agg(COALESCE(p.parameter_name, '') || ' ' || COALESCE(p.data_type, ''), ', ' ORDER BY p.ordinal_position), 'no parameters') AS parameters
FROM information_schema.routines r
LEFT JOIN information_schema.parameters p
	ON r.specific_name = p.specific_name AND p.parameter_mode = 'IN'
WHERE r.routine_schema = 'public' AND r.routine_type = 'FUNCTION'`

func (r *Reports) procedures(ctx context.Context, actor model.Caller) ([]map[string]any, error) {
	q := proceduresBaseQ
	var args []any
	if actor.Role != model.RoleAdmin {
		allowed := r.config().AllowedProcedures(actor.Role)
		if len(allowed) == 0 {
			// Unknown role: show nothing rather than everything.
			return []map[string]any{}, nil
		}
		placeholders := make([]string, len(allowed))
		for i, name := range allowed {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, name)
		}
		q += " AND r.routine_name IN (" + strings.Join(placeholders, ", ") + ")"
	}
	q += " GROUP BY r.routine_name ORDER BY r.routine_name"
	return r.queryMaps(ctx, q, args...)
}

func (r *Reports) queryMaps(ctx context.Context, q string, args ...any) ([]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}
