// Package execute runs authorized, confirmed intents against the store
// exactly once and returns a normalized outcome.
package execute

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/querygate/querygate/internal/audit"
	"github.com/querygate/querygate/internal/model"
	"github.com/querygate/querygate/internal/store"
)

// validProcedure constrains procedure names to plain identifiers; the
// name is the only intent field spliced into SQL text.
var validProcedure = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Engine executes intents that have already passed authorization and
// confirmation. It never re-checks policy: calling it with an
// unauthorized intent is a programming error in the coordinator.
type Engine struct {
	db  *sql.DB
	rec audit.Recorder
	log zerolog.Logger
}

// New returns an execution engine over the given store handle.
func New(db *sql.DB, rec audit.Recorder, log zerolog.Logger) *Engine {
	return &Engine{
		db:  db,
		rec: rec,
		log: log.With().Str("component", "execute").Logger(),
	}
}

// Execute runs the intent and records the outcome. Selects run the
// generated statement verbatim (the statement is the vetted unit).
// Mutations run either a named procedure, invoked positionally exactly
// once, or a generated statement with bind parameters — user-supplied
// values are never interpolated into SQL text.
func (e *Engine) Execute(ctx context.Context, in *model.Intent, actor model.Caller) (*model.Outcome, error) {
	switch in.Operation {
	case model.OpSelect:
		return e.executeSelect(ctx, in, actor)
	case model.OpInsert, model.OpUpdate, model.OpDelete:
		if in.Procedure != "" {
			return e.executeProcedure(ctx, in, actor)
		}
		return e.executeStatement(ctx, in, actor)
	default:
		return nil, model.Validationf("unsupported operation %q", string(in.Operation))
	}
}

func (e *Engine) executeSelect(ctx context.Context, in *model.Intent, actor model.Caller) (*model.Outcome, error) {
	rows, err := e.db.QueryContext(ctx, in.Statement)
	if err != nil {
		return nil, model.Execf(err, "query failed")
	}
	defer rows.Close()

	result, err := store.ScanRows(rows)
	if err != nil {
		return nil, model.Execf(err, "query failed")
	}

	e.recordAudit(ctx, "SELECT", "query", actor, audit.StatusSuccess)
	return &model.Outcome{
		Success:   true,
		Message:   "query executed successfully",
		Rows:      result,
		Statement: in.Statement,
	}, nil
}

// executeProcedure invokes the named procedure positionally with the
// intent's parameters, in order. Exactly one invocation per intent; the
// procedure's first output row determines success and message.
func (e *Engine) executeProcedure(ctx context.Context, in *model.Intent, actor model.Caller) (*model.Outcome, error) {
	if !validProcedure.MatchString(in.Procedure) {
		return nil, model.Validationf("invalid procedure name %q", in.Procedure)
	}
	placeholders := make([]string, len(in.Params))
	for i := range in.Params {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("SELECT * FROM %s(%s)", in.Procedure, strings.Join(placeholders, ", "))
	echo := fmt.Sprintf("CALL %s(%s)", in.Procedure, strings.Join(placeholders, ", "))

	rows, err := e.db.QueryContext(ctx, stmt, in.Params...)
	if err != nil {
		e.recordAudit(ctx, strings.ToUpper(string(in.Operation)), in.Procedure, actor, audit.StatusFailure)
		return nil, model.Execf(err, "procedure %s failed", in.Procedure)
	}
	defer rows.Close()

	result, err := store.ScanRows(rows)
	if err != nil {
		e.recordAudit(ctx, strings.ToUpper(string(in.Operation)), in.Procedure, actor, audit.StatusFailure)
		return nil, model.Execf(err, "procedure %s failed", in.Procedure)
	}

	outcome := &model.Outcome{
		Success:   true,
		Message:   "operation completed",
		Rows:      result,
		Statement: echo,
	}
	if len(result) > 0 {
		if ok, has := result[0]["success"].(bool); has {
			outcome.Success = ok
		}
		if msg, has := result[0]["message"].(string); has && msg != "" {
			outcome.Message = msg
		}
	}

	status := audit.StatusSuccess
	if !outcome.Success {
		status = audit.StatusFailure
	}
	e.recordAudit(ctx, strings.ToUpper(string(in.Operation)), in.Procedure, actor, status)
	return outcome, nil
}

// executeStatement runs a generated mutation with bind parameters.
func (e *Engine) executeStatement(ctx context.Context, in *model.Intent, actor model.Caller) (*model.Outcome, error) {
	op := strings.ToUpper(string(in.Operation))
	_, err := e.db.ExecContext(ctx, in.Statement, in.Params...)
	if err != nil {
		e.recordAudit(ctx, op, "query", actor, audit.StatusFailure)
		return nil, model.Execf(err, "operation failed")
	}
	e.recordAudit(ctx, op, "query", actor, audit.StatusSuccess)
	return &model.Outcome{
		Success:   true,
		Message:   "operation completed successfully",
		Statement: in.Statement,
	}, nil
}

// recordAudit writes exactly one trail entry for the attempt. A failed
// audit write never rolls back or fails the data outcome; it is logged
// server-side and the caller still gets their result.
func (e *Engine) recordAudit(ctx context.Context, op, resource string, actor model.Caller, status audit.Status) {
	entry := audit.Entry{
		Operation: op,
		Resource:  resource,
		Actor:     actor.Username,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if err := e.rec.Record(ctx, entry); err != nil {
		e.log.Error().Err(err).
			Str("operation", op).
			Str("actor", actor.Username).
			Msg("audit write failed; data outcome unaffected")
	}
}
