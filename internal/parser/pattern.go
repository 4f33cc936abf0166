package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/querygate/querygate/internal/model"
)

// PatternParser is the deterministic fallback variant: keyword families
// classify the operation, labeled-field scanning extracts parameters.
// It understands a narrow phrasebook and reports ParseFailure for
// anything outside it; that is acceptable, not a bug.
type PatternParser struct{}

// NewPattern returns the pattern-matching parser.
func NewPattern() *PatternParser { return &PatternParser{} }

// keywordFamilies is checked in precedence order; the first family with
// a match classifies the operation. No match defaults to select.
var keywordFamilies = []struct {
	op model.Operation
	re *regexp.Regexp
}{
	{model.OpSelect, regexp.MustCompile(`(?i)\b(show|get|list|display|find|select)\b`)},
	{model.OpInsert, regexp.MustCompile(`(?i)\b(add|insert|create|new)\b`)},
	{model.OpUpdate, regexp.MustCompile(`(?i)\b(update|change|modify|edit)\b`)},
	{model.OpDelete, regexp.MustCompile(`(?i)\b(delete|remove)\b`)},
}

// labeledValue matches a labeled field and its value. Stripped before
// operation detection so a keyword inside a value (an email such as
// new@uni.edu) cannot classify the request.
var labeledValue = regexp.MustCompile(`(?i)\b(name|email|id)\s*:\s*\S+`)

var (
	nameField  = regexp.MustCompile(`(?i)name[:\s]+([a-zA-Z\s]+?)(?:email|$)`)
	emailField = regexp.MustCompile(`(?i)email[:\s]+(\S+)`)
	idField    = regexp.MustCompile(`(?i)\bid[:\s]+(\d+)`)
	trailingID = regexp.MustCompile(`(\d+)\s*$`)
	tableNoun  = regexp.MustCompile(`(?i)\b(students?|faculty|courses?|enrollments?|users?)\b`)
)

// Parse classifies the operation and extracts parameters. Pure text to
// structure; the store is never consulted.
func (p *PatternParser) Parse(_ context.Context, text string, actor model.Caller) (*model.Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.Parsef("empty request")
	}
	if err := checkNumericGrade(text); err != nil {
		return nil, err
	}

	switch detectOperation(text) {
	case model.OpInsert:
		return parseInsert(text, actor)
	case model.OpUpdate:
		return parseUpdate(text, actor)
	case model.OpDelete:
		return parseDelete(text)
	default:
		return parseSelect(text), nil
	}
}

func detectOperation(text string) model.Operation {
	stripped := labeledValue.ReplaceAllString(text, "")
	for _, f := range keywordFamilies {
		if f.re.MatchString(stripped) {
			return f.op
		}
	}
	return model.OpSelect
}

// canonicalTable maps a recognized noun to its table name.
func canonicalTable(text string) string {
	m := tableNoun.FindString(text)
	switch strings.ToLower(m) {
	case "student", "students":
		return "students"
	case "faculty":
		return "faculty"
	case "course", "courses":
		return "courses"
	case "enrollment", "enrollments":
		return "enrollments"
	case "user", "users":
		return "system_users"
	default:
		return ""
	}
}

// listStatements are the canonical read statements per table. Joins
// resolve user-facing names; restricted tables still go through the
// policy engine afterwards.
var listStatements = map[string]struct {
	stmt        string
	explanation string
}{
	"students": {
		"SELECT s.student_id, su.full_name, s.roll_number, s.department, s.year, s.cgpa FROM students s JOIN system_users su ON s.user_id = su.user_id WHERE su.is_active = TRUE",
		"List all active students with their profile details",
	},
	"faculty": {
		"SELECT f.faculty_id, su.full_name, f.employee_id, f.department, f.designation FROM faculty f JOIN system_users su ON f.user_id = su.user_id WHERE su.is_active = TRUE",
		"List all active faculty members",
	},
	"courses": {
		"SELECT course_id, course_code, course_name, credits, department FROM courses",
		"List all courses",
	},
	"enrollments": {
		"SELECT e.enrollment_id, e.student_id, e.course_id, e.grade, e.semester FROM enrollments e",
		"List all enrollments",
	},
	"system_users": {
		"SELECT user_id, username, email, full_name, role, is_active FROM system_users",
		"List all system users",
	},
}

func parseSelect(text string) *model.Intent {
	table := canonicalTable(text)
	if table == "" {
		table = "students"
	}
	ls := listStatements[table]
	return &model.Intent{
		Operation:   model.OpSelect,
		Table:       table,
		Statement:   ls.stmt,
		Explanation: ls.explanation,
	}
}

func parseInsert(text string, actor model.Caller) (*model.Intent, error) {
	name := matchField(nameField, text)
	email := matchField(emailField, text)
	if name == "" || email == "" {
		return nil, model.Parsef("insert requests need labeled name: and email: fields")
	}
	return &model.Intent{
		Operation:   model.OpInsert,
		Table:       "system_users",
		Procedure:   "safe_insert_user",
		Params:      []any{name, email, actor.Username},
		Explanation: fmt.Sprintf("Add user %s <%s>", name, email),
	}, nil
}

func parseUpdate(text string, actor model.Caller) (*model.Intent, error) {
	idMatch := idField.FindStringSubmatch(text)
	name := matchField(nameField, text)
	email := matchField(emailField, text)
	if idMatch == nil || (name == "" && email == "") {
		return nil, model.Parsef("update requests need an id: field plus name: or email:")
	}
	id, err := strconv.Atoi(idMatch[1])
	if err != nil {
		return nil, model.Parsef("invalid id %q", idMatch[1])
	}
	var nameParam, emailParam any
	if name != "" {
		nameParam = name
	}
	if email != "" {
		emailParam = email
	}
	return &model.Intent{
		Operation:   model.OpUpdate,
		Table:       "system_users",
		Procedure:   "safe_update_user",
		Params:      []any{id, nameParam, emailParam, actor.Username},
		Explanation: fmt.Sprintf("Update user %d", id),
	}, nil
}

// deleteStatements maps tables to their parameterized delete form.
var deleteStatements = map[string]string{
	"students":     "DELETE FROM students WHERE student_id = $1",
	"faculty":      "DELETE FROM faculty WHERE faculty_id = $1",
	"courses":      "DELETE FROM courses WHERE course_id = $1",
	"enrollments":  "DELETE FROM enrollments WHERE enrollment_id = $1",
	"system_users": "DELETE FROM system_users WHERE user_id = $1",
}

func parseDelete(text string) (*model.Intent, error) {
	table := canonicalTable(text)
	if table == "" {
		return nil, model.Parsef("delete requests must name a table")
	}
	m := idField.FindStringSubmatch(text)
	if m == nil {
		m = trailingID.FindStringSubmatch(text)
	}
	if m == nil {
		return nil, model.Parsef("delete requests need a record id")
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, model.Parsef("invalid id %q", m[1])
	}
	return &model.Intent{
		Operation:   model.OpDelete,
		Table:       table,
		Statement:   deleteStatements[table],
		Params:      []any{id},
		Explanation: fmt.Sprintf("Delete one record from %s by id %d", table, id),
	}, nil
}

func matchField(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
