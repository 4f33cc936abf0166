package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/querygate/querygate/internal/model"
)

// ModelConfig holds parameters for the model-assisted parser. The
// endpoint speaks the OpenAI-compatible chat-completions wire format.
type ModelConfig struct {
	APIURL    string        `yaml:"api_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ModelParser sends the request text plus the caller's username and
// role to a text-completion service constrained to emit the intent
// schema. Any malformed, truncated, or schema-violating response is a
// ParseFailure, never a partially-trusted intent.
type ModelParser struct {
	cfg    ModelConfig
	client *http.Client
}

// NewModel returns a model-assisted parser with bounded output size and
// near-deterministic sampling.
func NewModel(cfg ModelConfig) *ModelParser {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ModelParser{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

const systemPrompt = `You are a SQL generator for a PostgreSQL university database.

TABLES:
1. system_users (user_id, username, email, full_name, role, is_active, created_at)
2. students (student_id, user_id, roll_number, department, year, cgpa)
3. faculty (faculty_id, user_id, employee_id, department, designation)
4. courses (course_id, course_code, course_name, credits, faculty_id, department)
5. enrollments (enrollment_id, student_id, course_id, grade, semester)

STORED PROCEDURES:
add_student(p_username, p_password_hash, p_email, p_full_name, p_roll_number, p_department, p_year, p_cgpa)
add_faculty(p_username, p_password_hash, p_email, p_full_name, p_employee_id, p_department, p_designation)
add_course(p_course_code, p_course_name, p_credits, p_faculty_id, p_department, p_username)
enroll_student(p_student_id, p_course_id, p_semester, p_username)
update_grade(p_enrollment_id, p_grade, p_username)
get_student_courses(p_student_id)
get_faculty_courses(p_faculty_id)
get_course_enrollments(p_course_id)

RULES:
1. For SELECT: emit the full SQL query with proper JOINs in "query".
2. For INSERT/UPDATE with a matching procedure: set "procedure" and "params", leave "query" empty.
3. For UPDATE without a procedure: emit a full UPDATE statement in "query" with $1-style placeholders and the values in "params".
4. Primary keys are user_id, student_id, faculty_id, course_id, enrollment_id — never bare "id".
5. When querying students or faculty, JOIN with system_users on user_id.
6. Grades are LETTER GRADES (A+, A, B+, ...); CGPA is the numeric scale. A numeric grade value is an error: explain it instead of generating SQL.
7. Profile updates map to UPDATE system_users SET ... WHERE username = the caller's username.

Return ONLY valid JSON, no markdown fences, no commentary:
{"operation":"select|insert|update|delete","table":"<table>","query":"<sql or empty>","procedure":"<name or empty>","params":[...],"explanation":"<one sentence>"}`

// chatRequest and chatResponse mirror the chat-completions wire format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Parse sends the text to the completion service and validates the
// structured response. Transport and service failures come back as
// retryable parse failures; schema violations as plain ones.
func (p *ModelParser) Parse(ctx context.Context, text string, actor model.Caller) (*model.Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.Parsef("empty request")
	}

	user := fmt.Sprintf("User: %s (Role: %s)\nRequest: %s", actor.Username, actor.Role, text)
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, model.Parsef("encode completion request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, model.Parsef("build completion request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, model.Upstreamf(err, "completion service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		re := model.Upstreamf(nil, "completion service returned HTTP %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			re.Retryable = false
		}
		return nil, re
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil || len(cr.Choices) == 0 {
		return nil, model.Parsef("empty completion response")
	}
	if cr.Choices[0].FinishReason == "length" {
		return nil, model.Parsef("completion response truncated")
	}

	return decodeIntent(cleanJSON(cr.Choices[0].Message.Content))
}

// decodeIntent unmarshals and schema-checks the model's JSON output.
func decodeIntent(raw string) (*model.Intent, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var in model.Intent
	if err := dec.Decode(&in); err != nil {
		return nil, model.Parsef("cannot parse completion output: %s", truncate(raw, 200))
	}
	if !in.Operation.Valid() {
		return nil, model.Parsef("completion output has unsupported operation %q", string(in.Operation))
	}
	in.Params = normalizeParams(in.Params)
	if in.Procedure == "update_grade" && len(in.Params) >= 2 {
		if _, isNumber := in.Params[1].(int64); isNumber {
			return nil, model.Parsef("grades are letter grades (A+, A, B+, ...), not numeric values; use cgpa for the numeric scale")
		}
		if _, isFloat := in.Params[1].(float64); isFloat {
			return nil, model.Parsef("grades are letter grades (A+, A, B+, ...), not numeric values; use cgpa for the numeric scale")
		}
	}
	if err := in.Validate(); err != nil {
		return nil, model.Parsef("completion output violates the intent schema: %v", err)
	}
	return &in, nil
}

// normalizeParams converts json.Number values to int64 where integral,
// float64 otherwise, so procedure parameters bind with their natural
// database types.
func normalizeParams(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		n, ok := p.(json.Number)
		if !ok {
			out[i] = p
			continue
		}
		if v, err := n.Int64(); err == nil {
			out[i] = v
			continue
		}
		if v, err := n.Float64(); err == nil {
			out[i] = v
			continue
		}
		out[i] = n.String()
	}
	return out
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
