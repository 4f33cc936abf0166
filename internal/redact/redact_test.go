package redact

import (
	"reflect"
	"testing"
)

func TestColumnsStripQualifiers(t *testing.T) {
	got := Columns([]string{"system_users.password_hash", "salary", "a.b.c"})
	want := []string{"password_hash", "salary", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Columns = %v, want %v", got, want)
	}
}

func TestRowsMasksNamedColumns(t *testing.T) {
	rows := []map[string]any{
		{"username": "smith", "password_hash": "$argon2id$abc", "user_id": 7},
		{"username": "jones", "password_hash": nil, "user_id": 8},
	}
	got := Rows(rows, []string{"system_users.password_hash"})

	if got[0]["password_hash"] != "***" {
		t.Errorf("password_hash = %v, want masked", got[0]["password_hash"])
	}
	if got[0]["username"] != "smith" || got[0]["user_id"] != 7 {
		t.Errorf("unrelated columns changed: %v", got[0])
	}
	if got[1]["password_hash"] != nil {
		t.Errorf("nil values should stay nil, got %v", got[1]["password_hash"])
	}

	// Input untouched.
	if rows[0]["password_hash"] != "$argon2id$abc" {
		t.Error("input rows were mutated")
	}
}

func TestRowsCaseInsensitive(t *testing.T) {
	rows := []map[string]any{{"Password_Hash": "secret"}}
	got := Rows(rows, []string{"system_users.password_hash"})
	if got[0]["Password_Hash"] != "***" {
		t.Errorf("mask should match case-insensitively, got %v", got[0])
	}
}

func TestRowsNoColumnsPassThrough(t *testing.T) {
	rows := []map[string]any{{"name": "Ada"}}
	if got := Rows(rows, nil); !reflect.DeepEqual(got, rows) {
		t.Errorf("Rows = %v, want unchanged", got)
	}
}
