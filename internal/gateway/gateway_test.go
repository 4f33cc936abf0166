package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"

	"github.com/querygate/querygate/internal/audit"
	"github.com/querygate/querygate/internal/execute"
	"github.com/querygate/querygate/internal/model"
	"github.com/querygate/querygate/internal/parser"
	"github.com/querygate/querygate/internal/policy"
)

var (
	admin   = model.Caller{ID: 1, Username: "admin", Role: model.RoleAdmin}
	student = model.Caller{ID: 2, Username: "student1", Role: model.RoleStudent}
)

// parserFunc adapts a function to the parser interface.
type parserFunc func(ctx context.Context, text string, actor model.Caller) (*model.Intent, error)

func (f parserFunc) Parse(ctx context.Context, text string, actor model.Caller) (*model.Intent, error) {
	return f(ctx, text, actor)
}

// fixedParser returns a copy of the given intent for any text.
func fixedParser(in model.Intent) parserFunc {
	return func(context.Context, string, model.Caller) (*model.Intent, error) {
		c := in
		c.Params = append([]any(nil), in.Params...)
		return &c, nil
	}
}

func newGateway(t *testing.T, p parserFunc) (*Gateway, sqlmock.Sqlmock, *audit.Memory) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rec := audit.NewMemory()
	ex := execute.New(db, rec, zerolog.Nop())
	return New(p, policy.NewEngine(nil), ex, zerolog.Nop()), mock, rec
}

func TestPreviewNeverMutates(t *testing.T) {
	p := fixedParser(model.Intent{
		Operation:   model.OpDelete,
		Table:       "students",
		Statement:   "DELETE FROM students WHERE student_id = $1",
		Params:      []any{4},
		Explanation: "Delete student 4",
	})
	g, mock, rec := newGateway(t, p)

	resp, err := g.Submit(context.Background(), "delete student 4", false, admin)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !resp.NeedsConfirmation {
		t.Error("preview must set needs_confirmation")
	}
	if resp.Success {
		t.Error("preview must not claim success")
	}
	if resp.Statement == "" {
		t.Error("preview must carry a statement preview")
	}
	// No statements were expected on the mock: any store touch fails here.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("preview touched the store: %v", err)
	}
	if n := len(rec.Entries()); n != 0 {
		t.Errorf("preview produced %d audit entries", n)
	}
}

func TestProcedurePreviewRendersCall(t *testing.T) {
	p := fixedParser(model.Intent{
		Operation: model.OpInsert,
		Table:     "enrollments",
		Procedure: "enroll_student",
		Params:    []any{1, 2, "Fall 2024", "faculty1"},
	})
	g, _, _ := newGateway(t, p)

	resp, err := g.Submit(context.Background(), "enroll student 1 in course 2", false, admin)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if resp.Statement != "CALL enroll_student($1, $2, $3, $4)" {
		t.Errorf("statement preview = %q", resp.Statement)
	}
}

func TestConfirmExecutesProcedureExactlyOnce(t *testing.T) {
	p := fixedParser(model.Intent{
		Operation: model.OpInsert,
		Table:     "enrollments",
		Procedure: "enroll_student",
		Params:    []any{1, 2, "Fall 2024", "faculty1"},
	})
	g, mock, rec := newGateway(t, p)
	mock.ExpectQuery("SELECT * FROM enroll_student($1, $2, $3, $4)").
		WithArgs(1, 2, "Fall 2024", "faculty1").
		WillReturnRows(sqlmock.NewRows([]string{"success", "message"}).AddRow(true, "enrolled"))

	resp, err := g.Submit(context.Background(), "enroll student 1 in course 2", true, admin)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !resp.Success || resp.NeedsConfirmation {
		t.Errorf("confirm response = %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("procedure not invoked exactly as expected: %v", err)
	}
	entries := rec.Entries()
	if len(entries) != 1 || entries[0].Status != audit.StatusSuccess {
		t.Errorf("want one SUCCESS audit entry, got %+v", entries)
	}
}

func TestConfirmReauthorizes(t *testing.T) {
	p := fixedParser(model.Intent{
		Operation: model.OpDelete,
		Table:     "students",
		Statement: "DELETE FROM students WHERE student_id = $1",
		Params:    []any{4},
	})
	g, mock, rec := newGateway(t, p)

	// Preview as admin succeeds.
	actor := admin
	if _, err := g.Submit(context.Background(), "delete student 4", false, actor); err != nil {
		t.Fatalf("preview: %v", err)
	}

	// Role changed between the two round trips: confirm must be denied
	// even though the preview was allowed.
	actor.Role = model.RoleStudent
	_, err := g.Submit(context.Background(), "delete student 4", true, actor)
	var re *model.RequestError
	if !errors.As(err, &re) || re.Kind != model.KindDenied {
		t.Fatalf("want denial after role change, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("denied confirm touched the store: %v", err)
	}
	if n := len(rec.Entries()); n != 0 {
		t.Errorf("policy-stage denial must not be audited as an execution attempt, got %d entries", n)
	}
}

func TestPolicyDenialBeforeExecution(t *testing.T) {
	p := fixedParser(model.Intent{
		Operation: model.OpDelete,
		Table:     "students",
		Statement: "DELETE FROM students WHERE student_id = $1",
		Params:    []any{4},
	})
	g, mock, rec := newGateway(t, p)

	_, err := g.Submit(context.Background(), "delete student 4", true, student)
	var re *model.RequestError
	if !errors.As(err, &re) || re.Kind != model.KindDenied {
		t.Fatalf("want denial, got %v", err)
	}
	if re.Message == "" {
		t.Error("denial must carry a human-readable reason")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("denied intent reached the store: %v", err)
	}
	if n := len(rec.Entries()); n != 0 {
		t.Errorf("denied intent produced %d audit entries", n)
	}
}

func TestParseFailureYieldsNoPreview(t *testing.T) {
	p := parserFunc(func(context.Context, string, model.Caller) (*model.Intent, error) {
		return nil, model.Parsef("could not understand the request")
	})
	g, _, _ := newGateway(t, p)

	resp, err := g.Submit(context.Background(), "gibberish", false, admin)
	if err == nil {
		t.Fatal("parse failure must fail the request")
	}
	if resp != nil {
		t.Error("parse failure must not produce a preview payload")
	}
}

func TestInvalidIntentRejectedBeforeAuthorization(t *testing.T) {
	p := fixedParser(model.Intent{Operation: model.OpUpdate, Table: "students"})
	g, mock, _ := newGateway(t, p)

	_, err := g.Submit(context.Background(), "update something", true, admin)
	var re *model.RequestError
	if !errors.As(err, &re) || re.Kind != model.KindValidation {
		t.Fatalf("want validation error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("invalid intent reached the store: %v", err)
	}
}

func TestSwapPolicyAffectsNewRequests(t *testing.T) {
	p := fixedParser(model.Intent{
		Operation: model.OpSelect,
		Table:     "grades_archive",
		Statement: "SELECT * FROM grades_archive",
	})
	g, _, _ := newGateway(t, p)

	if _, err := g.Submit(context.Background(), "show archive", false, student); err != nil {
		t.Fatalf("archive select should pass default rules: %v", err)
	}

	g.SwapPolicy(policy.NewEngine(&policy.Config{
		RestrictedTables: []string{"grades_archive"},
	}))
	_, err := g.Submit(context.Background(), "show archive", false, student)
	var re *model.RequestError
	if !errors.As(err, &re) || re.Kind != model.KindDenied {
		t.Fatalf("want denial under swapped rules, got %v", err)
	}
}

func TestSensitiveColumnsMaskedForNonAdmin(t *testing.T) {
	p := fixedParser(model.Intent{
		Operation: model.OpSelect,
		Table:     "students",
		Statement: "SELECT * FROM students",
	})
	g, mock, _ := newGateway(t, p)

	mock.ExpectQuery("SELECT * FROM students").
		WillReturnRows(sqlmock.NewRows([]string{"name", "password_hash"}).
			AddRow("Ada", "$argon2id$abc"))

	resp, err := g.Submit(context.Background(), "show students", true, student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := resp.Rows[0]["password_hash"]; got != "***" {
		t.Errorf("password_hash = %v, want masked", got)
	}
	if resp.Rows[0]["name"] != "Ada" {
		t.Errorf("name = %v, want untouched", resp.Rows[0]["name"])
	}
	if len(resp.Redactions) == 0 {
		t.Error("response should report the redacted columns")
	}
}

func TestAdminRowsNeverMasked(t *testing.T) {
	p := fixedParser(model.Intent{
		Operation: model.OpSelect,
		Table:     "students",
		Statement: "SELECT * FROM students",
	})
	g, mock, _ := newGateway(t, p)

	mock.ExpectQuery("SELECT * FROM students").
		WillReturnRows(sqlmock.NewRows([]string{"name", "password_hash"}).
			AddRow("Ada", "$argon2id$abc"))

	resp, err := g.Submit(context.Background(), "show students", true, admin)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := resp.Rows[0]["password_hash"]; got != "$argon2id$abc" {
		t.Errorf("password_hash = %v, want raw value for admin", got)
	}
	if resp.Redactions != nil {
		t.Errorf("redactions = %v, want none for admin", resp.Redactions)
	}
}

func TestStudentListingEndToEnd(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rec := audit.NewMemory()
	ex := execute.New(db, rec, zerolog.Nop())
	g := New(parser.NewPattern(), policy.NewEngine(nil), ex, zerolog.Nop())

	// The real parser's canonical listing joins system_users for name
	// resolution; the default rules must let a student run it.
	preview, err := g.Submit(context.Background(), "show all students", false, student)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !preview.NeedsConfirmation || preview.Statement == "" {
		t.Fatalf("preview = %+v", preview)
	}

	mock.ExpectQuery(preview.Statement).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "full_name", "cgpa"}).
			AddRow(1, "Ada Lovelace", 9.1))

	final, err := g.Submit(context.Background(), "show all students", true, student)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !final.Success || len(final.Rows) != 1 {
		t.Fatalf("final = %+v", final)
	}
	if final.Rows[0]["full_name"] != "Ada Lovelace" {
		t.Errorf("row = %v", final.Rows[0])
	}
	entries := rec.Entries()
	if len(entries) != 1 || entries[0].Status != audit.StatusSuccess {
		t.Errorf("audit entries = %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
