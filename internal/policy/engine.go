package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/querygate/querygate/internal/model"
)

// Engine authorizes parsed intents against role- and resource-based
// rules. Authorize is a pure function of the intent and caller so the
// preview and confirm phases can both run it and get identical results
// for unchanged inputs.
//
// Rule order (first match wins, must not be changed):
//  1. select touching a restricted table in FROM/JOIN position, or a
//     protected table as the direct FROM target — admin only
//  2. select touching a sensitive qualified column — admin only
//  3. delete — admin only
//  4. insert — denied to students
//  5. allow
//
// Protected tables stay joinable so the canonical list statements can
// resolve names through system_users; the credential column is caught
// by rule 2 and row output by redaction.
//
// Rules are evaluated over the generated statement text, not the
// original prose: the attacker-controlled surface is the generated SQL.
type Engine struct {
	cfg        *Config
	tableRefs  map[string]*regexp.Regexp
	directRefs map[string]*regexp.Regexp
}

// NewEngine compiles the table-reference patterns for the given rules.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = Default()
	}
	refs := make(map[string]*regexp.Regexp, len(cfg.RestrictedTables))
	for _, t := range cfg.RestrictedTables {
		refs[t] = regexp.MustCompile(`(?i)\b(?:from|join)\s+` + regexp.QuoteMeta(t) + `\b`)
	}
	direct := make(map[string]*regexp.Regexp, len(cfg.ProtectedTables))
	for _, t := range cfg.ProtectedTables {
		direct[t] = regexp.MustCompile(`(?i)\bfrom\s+` + regexp.QuoteMeta(t) + `\b`)
	}
	return &Engine{cfg: cfg, tableRefs: refs, directRefs: direct}
}

// Config returns the rules the engine was built from.
func (e *Engine) Config() *Config { return e.cfg }

// Authorize decides whether the caller may run the intent. The reason
// on a denial is human-readable and safe to surface verbatim.
func (e *Engine) Authorize(in *model.Intent, actor model.Caller) model.Decision {
	admin := actor.Role == model.RoleAdmin

	if in.Operation == model.OpSelect && !admin {
		for _, table := range e.cfg.RestrictedTables {
			if e.tableRefs[table].MatchString(in.Statement) {
				return model.Decision{
					Reason: fmt.Sprintf("access denied: the %s table is restricted to administrators", table),
				}
			}
		}
		for _, table := range e.cfg.ProtectedTables {
			if e.directRefs[table].MatchString(in.Statement) {
				return model.Decision{
					Reason: fmt.Sprintf("access denied: the %s table is restricted to administrators", table),
				}
			}
		}
		// Qualified sensitive columns are denied regardless of which
		// tables the statement otherwise references.
		squeezed := strings.ToLower(stripSpace(in.Statement))
		for _, col := range e.cfg.SensitiveColumns {
			if strings.Contains(squeezed, strings.ToLower(stripSpace(col))) {
				return model.Decision{
					Reason: "access denied: sensitive fields cannot be queried",
				}
			}
		}
	}

	if in.Operation == model.OpDelete && !admin {
		return model.Decision{
			Reason: "access denied: only administrators can delete records",
		}
	}

	if in.Operation == model.OpInsert && actor.Role == model.RoleStudent {
		return model.Decision{
			Reason: "access denied: students cannot add records",
		}
	}

	d := model.Decision{Allowed: true, Reason: "authorized"}
	if !admin {
		d.Redactions = append(d.Redactions, e.cfg.SensitiveColumns...)
	}
	return d
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
