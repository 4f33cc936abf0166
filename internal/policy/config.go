package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/querygate/querygate/internal/model"
)

// Config holds the resource rules the engine evaluates. Restricted
// tables and sensitive columns are matched against the generated
// statement text, not the original prose.
type Config struct {
	// RestrictedTables are admin-only in FROM/JOIN clause position.
	RestrictedTables []string `yaml:"restricted_tables"`
	// ProtectedTables are admin-only as the direct FROM target but may
	// appear in JOIN position: the canonical list statements join
	// system_users for name resolution, and the credential column is
	// covered by SensitiveColumns.
	ProtectedTables []string `yaml:"protected_tables"`
	// SensitiveColumns are qualified column references denied to
	// non-admin callers regardless of other table references.
	SensitiveColumns []string `yaml:"sensitive_columns"`
	// ProceduresByRole lists the procedure names each non-admin role
	// may see through schema introspection. Admin sees everything.
	ProceduresByRole map[model.Role][]string `yaml:"procedures_by_role"`
}

// Default returns the built-in rules for the university schema.
func Default() *Config {
	return &Config{
		RestrictedTables: []string{"audit_log"},
		ProtectedTables:  []string{"system_users"},
		SensitiveColumns: []string{"system_users.password_hash"},
		ProceduresByRole: map[model.Role][]string{
			model.RoleFaculty: {
				"enroll_student", "update_grade", "get_student_courses",
				"get_faculty_courses", "get_course_enrollments", "get_my_profile",
			},
			model.RoleStudent: {"get_student_courses", "get_my_profile"},
		},
	}
}

// Load reads rules from a YAML file. Empty path or missing file falls
// back to defaults; invalid YAML is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read policy rules: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse policy rules: %w", err)
	}
	return cfg, nil
}

// HiddenTables returns the tables non-admin schema introspection must
// not list: the restricted and protected sets together.
func (c *Config) HiddenTables() []string {
	out := make([]string, 0, len(c.RestrictedTables)+len(c.ProtectedTables))
	out = append(out, c.RestrictedTables...)
	out = append(out, c.ProtectedTables...)
	return out
}

// AllowedProcedures returns the introspection procedure list for a
// role, or nil for admin (meaning unfiltered).
func (c *Config) AllowedProcedures(role model.Role) []string {
	if role == model.RoleAdmin {
		return nil
	}
	return c.ProceduresByRole[role]
}
