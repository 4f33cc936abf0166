// Package redact masks sensitive columns in result rows. The columns
// to mask come from the policy decision, expressed as qualified
// "table.column" references.
package redact

import "strings"

const mask = "***"

// Columns reduces qualified "table.column" references to the bare
// column names matched against row keys.
func Columns(qualified []string) []string {
	out := make([]string, 0, len(qualified))
	for _, q := range qualified {
		if i := strings.LastIndex(q, "."); i >= 0 {
			q = q[i+1:]
		}
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}

// Rows returns a copy of rows with the named columns masked. The input
// is never mutated; rows without any named column are shared as-is.
func Rows(rows []map[string]any, qualified []string) []map[string]any {
	columns := Columns(qualified)
	if len(columns) == 0 || len(rows) == 0 {
		return rows
	}
	names := make(map[string]bool, len(columns))
	for _, c := range columns {
		names[strings.ToLower(c)] = true
	}

	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		hit := false
		for k := range row {
			if names[strings.ToLower(k)] {
				hit = true
				break
			}
		}
		if !hit {
			out[i] = row
			continue
		}
		masked := make(map[string]any, len(row))
		for k, v := range row {
			if names[strings.ToLower(k)] && v != nil {
				masked[k] = mask
			} else {
				masked[k] = v
			}
		}
		out[i] = masked
	}
	return out
}
