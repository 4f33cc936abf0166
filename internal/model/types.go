package model

// Role is the access level asserted by the authentication boundary.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
)

// ParseRole returns the Role for a string, or false for unknown values.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleFaculty, RoleStudent:
		return Role(s), true
	}
	return "", false
}

// Caller is the authenticated actor on whose behalf an intent is
// authorized and executed. Immutable for the duration of one request,
// never persisted by this core.
type Caller struct {
	ID       int    `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Email    string `json:"email"`
}

// Operation is the database operation class of an intent.
type Operation string

const (
	OpSelect Operation = "select"
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Mutating reports whether the operation changes store state.
func (o Operation) Mutating() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Valid reports whether the operation is one of the four supported classes.
func (o Operation) Valid() bool {
	return o == OpSelect || o.Mutating()
}

// Intent is the parsed, not-yet-trusted representation of a request.
// Selects always carry a full statement; mutations carry either a
// generated statement executed with bind parameters or a named
// procedure invoked positionally with Params.
type Intent struct {
	Operation   Operation `json:"operation"`
	Table       string    `json:"table"`
	Statement   string    `json:"query,omitempty"`
	Procedure   string    `json:"procedure,omitempty"`
	Params      []any     `json:"params"`
	Explanation string    `json:"explanation"`
}

// Decision is the outcome of authorizing an intent for a caller.
// Produced fresh for every attempt, never cached across the
// preview/confirm boundary.
type Decision struct {
	Allowed    bool
	Reason     string
	Redactions []string
}

// Outcome is the normalized result of executing an authorized,
// confirmed intent. Rows is empty for mutations without a returning
// clause.
type Outcome struct {
	Success   bool
	Message   string
	Rows      []map[string]any
	Statement string
}
