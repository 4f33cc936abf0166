package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/querygate/querygate/internal/auth"
	"github.com/querygate/querygate/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        model.Caller `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("username and password are required"))
		return
	}
	if !s.logins.Allow(req.Username) {
		s.log.Warn().Str("username", req.Username).Msg("login rate limit exceeded")
		writeJSON(w, http.StatusTooManyRequests, errorBody("too many login attempts, try again later"))
		return
	}

	caller, err := s.verifier.Verify(r.Context(), auth.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid username or password"))
			return
		}
		s.log.Error().Err(err).Str("username", req.Username).Msg("credential lookup failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("login failed"))
		return
	}

	s.logins.Reset(req.Username)

	token, err := s.issuer.Issue(caller)
	if err != nil {
		s.log.Error().Err(err).Msg("token issue failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("login failed"))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        caller,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, callerFrom(r.Context()))
}

type queryRequest struct {
	Query   string `json:"query"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query text is required"))
		return
	}

	resp, err := s.gw.Submit(r.Context(), req.Query, req.Confirm, callerFrom(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.reports.Profile(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.reports.AuditLogs(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.reports.Users(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.reports.SchemaFor(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps a request error to its HTTP status with a stable
// body shape. Wrapped internals are logged, never surfaced.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	re := model.AsRequestError(err)
	if re.Kind == model.KindExecution {
		s.log.Error().Err(err).Msg("request failed")
	}
	body := errorBody(re.Message)
	body["kind"] = string(re.Kind)
	writeJSON(w, re.HTTPStatus(), body)
}

func errorBody(msg string) map[string]any {
	return map[string]any{"detail": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
