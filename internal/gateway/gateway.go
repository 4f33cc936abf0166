// Package gateway threads the query pipeline together: parse,
// authorize, preview or execute, audit. It holds no per-request state
// across calls — the confirm phase is a full re-derivation, not a
// lookup of something remembered from the preview.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/querygate/querygate/internal/execute"
	"github.com/querygate/querygate/internal/model"
	"github.com/querygate/querygate/internal/parser"
	"github.com/querygate/querygate/internal/policy"
	"github.com/querygate/querygate/internal/redact"
)

// Gateway is the two-phase query pipeline. The policy engine pointer is
// swappable under lock for hot reload; everything else is immutable
// after construction.
type Gateway struct {
	mu     sync.RWMutex
	police *policy.Engine

	parser parser.Parser
	exec   *execute.Engine
	log    zerolog.Logger
}

// New builds the pipeline.
func New(p parser.Parser, pol *policy.Engine, ex *execute.Engine, log zerolog.Logger) *Gateway {
	return &Gateway{
		police: pol,
		parser: p,
		exec:   ex,
		log:    log.With().Str("component", "gateway").Logger(),
	}
}

// SwapPolicy replaces the policy engine. Requests in flight keep the
// engine they started with; new requests see the new rules.
func (g *Gateway) SwapPolicy(pol *policy.Engine) {
	g.mu.Lock()
	g.police = pol
	g.mu.Unlock()
}

func (g *Gateway) policyEngine() *policy.Engine {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.police
}

// Response is the stable shape returned to the router for both phases.
type Response struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message"`
	Rows              []map[string]any `json:"data"`
	Explanation       string           `json:"explanation"`
	Statement         string           `json:"sql_query"`
	NeedsConfirmation bool             `json:"needs_confirmation"`
	Redactions        []string         `json:"redactions,omitempty"`
}

// Submit handles one round trip. With confirm=false it parses,
// authorizes, and returns a preview without touching the store. With
// confirm=true it re-parses and re-authorizes the same text — a stale
// preview-time decision is never trusted — and then executes.
func (g *Gateway) Submit(ctx context.Context, text string, confirm bool, actor model.Caller) (*Response, error) {
	in, err := g.parser.Parse(ctx, text, actor)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	decision := g.policyEngine().Authorize(in, actor)
	if !decision.Allowed {
		g.log.Warn().
			Str("actor", actor.Username).
			Str("role", string(actor.Role)).
			Str("operation", string(in.Operation)).
			Str("reason", decision.Reason).
			Msg("intent denied")
		return nil, model.Denied(decision.Reason)
	}

	if !confirm {
		return &Response{
			Message:           "please confirm the operation",
			Rows:              []map[string]any{},
			Explanation:       in.Explanation,
			Statement:         previewStatement(in),
			NeedsConfirmation: true,
		}, nil
	}

	outcome, err := g.exec.Execute(ctx, in, actor)
	if err != nil {
		return nil, err
	}
	return &Response{
		Success:     outcome.Success,
		Message:     outcome.Message,
		Rows:        redact.Rows(outcome.Rows, decision.Redactions),
		Explanation: in.Explanation,
		Statement:   outcome.Statement,
		Redactions:  decision.Redactions,
	}, nil
}

// previewStatement renders the human-reviewable statement for the
// preview phase. Pure reflection on the intent's own fields; the store
// is never consulted.
func previewStatement(in *model.Intent) string {
	if in.Procedure != "" {
		placeholders := make([]string, len(in.Params))
		for i := range in.Params {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		return fmt.Sprintf("CALL %s(%s)", in.Procedure, strings.Join(placeholders, ", "))
	}
	return in.Statement
}
