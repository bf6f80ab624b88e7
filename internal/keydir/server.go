package keydir

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"convokey/internal/domain"
	"convokey/internal/logger"
)

// Backend is a Directory whose group membership can be administered.
type Backend interface {
	domain.Directory
	SetGroupMembers(ctx context.Context, groupID domain.GroupID, members []domain.UserID) error
}

// ServerConfig tunes NewServer.
type ServerConfig struct {
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Server exposes a Backend over JSON/HTTP.
//
// Every route except POST /session needs a bearer token. Writes to a public
// key must come from its owner; group routes require the caller to be a
// member, and a caller can only ever read its own wrapped-key row.
type Server struct {
	backend Backend
	tokens  *Tokens
	limiter *limiter
	log     *zap.Logger
	mux     *http.ServeMux
}

// NewServer builds the handler tree.
func NewServer(backend Backend, tokens *Tokens, cfg ServerConfig, log *zap.Logger) *Server {
	s := &Server{
		backend: backend,
		tokens:  tokens,
		log:     logger.OrNop(log).Named("keydir"),
		mux:     http.NewServeMux(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = newLimiter(rate.Limit(cfg.RateLimit), burst, 10*time.Minute)
	}

	s.mux.HandleFunc("POST /session", s.handleSession)

	s.mux.HandleFunc("GET /keys/{user}", s.authed(s.handleGetKey))
	s.mux.HandleFunc("POST /keys", s.authed(s.handleInsertKey))
	s.mux.HandleFunc("PUT /keys/{user}", s.authed(s.handleUpdateKey))

	s.mux.HandleFunc("GET /groups/{group}/members", s.authed(s.member(s.handleListMembers)))
	s.mux.HandleFunc("PUT /groups/{group}/members", s.authed(s.handleSetMembers))
	s.mux.HandleFunc("GET /groups/{group}/keys/me", s.authed(s.member(s.handleOwnRow)))
	s.mux.HandleFunc("POST /groups/{group}/keys", s.authed(s.member(s.handleUpsertRows)))
	s.mux.HandleFunc("POST /groups/{group}/keys/new", s.authed(s.member(s.handleInsertRows)))
	s.mux.HandleFunc("GET /groups/{group}/keys/exists", s.authed(s.member(s.handleExists)))
	s.mux.HandleFunc("GET /groups/{group}/keys/missing", s.authed(s.member(s.handleMissing)))
	s.mux.HandleFunc("POST /groups/{group}/claim", s.authed(s.member(s.handleClaim)))
	s.mux.HandleFunc("DELETE /groups/{group}/claim", s.authed(s.member(s.handleRelease)))
	return s
}

// ServeHTTP applies rate limiting and the access log, then routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	if s.limiter != nil && !s.limiter.allow(clientIP(r)) {
		writeError(rec, http.StatusTooManyRequests, "rate_limited", "too many requests")
	} else {
		s.mux.ServeHTTP(rec, r)
	}

	s.log.Info("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote", clientIP(r)),
		zap.Int("status", rec.status),
		zap.Int("bytes", rec.bytes),
		zap.Duration("duration", time.Since(start)),
	)
}

type callerKey struct{}

func callerFrom(ctx context.Context) domain.UserID {
	id, _ := ctx.Value(callerKey{}).(domain.UserID)
	return id
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "bearer token required")
			return
		}
		caller, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	}
}

// member rejects callers that are not in the path's group.
func (s *Server) member(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := domain.GroupID(r.PathValue("group"))
		members, err := s.backend.ListGroupMembers(r.Context(), group)
		if err != nil {
			s.internal(w, "list members", err)
			return
		}
		if !slices.Contains(members, callerFrom(r.Context())) {
			writeError(w, http.StatusForbidden, "forbidden", "not a member of this group")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var in sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.UserID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}
	token, exp, err := s.tokens.Issue(in.UserID)
	if err != nil {
		s.internal(w, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, ExpiresAt: exp})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := s.backend.FetchPublicKey(r.Context(), domain.UserID(r.PathValue("user")))
	if err != nil {
		s.internal(w, "fetch public key", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no published key")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleInsertKey(w http.ResponseWriter, r *http.Request) {
	var rec domain.PublishedPublicKey
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if rec.UserID != callerFrom(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden", "can only publish your own key")
		return
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := s.backend.InsertPublicKey(r.Context(), rec); err != nil {
		s.writeBackendError(w, "insert public key", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	var rec domain.PublishedPublicKey
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	user := domain.UserID(r.PathValue("user"))
	if user != callerFrom(r.Context()) || rec.UserID != user {
		writeError(w, http.StatusForbidden, "forbidden", "can only update your own key")
		return
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := s.backend.UpdatePublicKey(r.Context(), rec); err != nil {
		s.writeBackendError(w, "update public key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.backend.ListGroupMembers(r.Context(), domain.GroupID(r.PathValue("group")))
	if err != nil {
		s.internal(w, "list members", err)
		return
	}
	writeJSON(w, http.StatusOK, membersResponse{Members: members})
}

func (s *Server) handleSetMembers(w http.ResponseWriter, r *http.Request) {
	var in membersResponse
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	group := domain.GroupID(r.PathValue("group"))
	caller := callerFrom(r.Context())
	current, err := s.backend.ListGroupMembers(r.Context(), group)
	if err != nil {
		s.internal(w, "list members", err)
		return
	}
	// An existing group is only changed by its members; anyone may create one.
	if len(current) > 0 && !slices.Contains(current, caller) {
		writeError(w, http.StatusForbidden, "forbidden", "caller is not a member of the group")
		return
	}
	if !slices.Contains(in.Members, caller) {
		writeError(w, http.StatusForbidden, "forbidden", "caller must be part of the group")
		return
	}
	if err := s.backend.SetGroupMembers(r.Context(), group, in.Members); err != nil {
		s.internal(w, "set members", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOwnRow(w http.ResponseWriter, r *http.Request) {
	row, ok, err := s.backend.LoadGroupKeyRow(
		r.Context(),
		domain.GroupID(r.PathValue("group")),
		callerFrom(r.Context()),
	)
	if err != nil {
		s.internal(w, "load group key row", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no group key row for caller")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleUpsertRows(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.decodeRows(w, r)
	if !ok {
		return
	}
	if err := s.backend.UpsertGroupKeyRows(r.Context(), rows); err != nil {
		s.writeBackendError(w, "upsert group key rows", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInsertRows(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.decodeRows(w, r)
	if !ok {
		return
	}
	if err := s.backend.InsertGroupKeyRows(r.Context(), rows); err != nil {
		s.writeBackendError(w, "insert group key rows", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// decodeRows reads wrapped rows and checks that each targets a member of
// the path's group. It writes the error response itself.
func (s *Server) decodeRows(w http.ResponseWriter, r *http.Request) ([]domain.GroupKeyRow, bool) {
	group := domain.GroupID(r.PathValue("group"))
	var rows []domain.GroupKeyRow
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return nil, false
	}
	members, err := s.backend.ListGroupMembers(r.Context(), group)
	if err != nil {
		s.internal(w, "list members", err)
		return nil, false
	}
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].GroupID != group || !slices.Contains(members, rows[i].TargetUserID) || rows[i].EncryptedKey == "" {
			writeError(w, http.StatusUnprocessableEntity, "schema_constraint", "row does not belong to a group member")
			return nil, false
		}
		rows[i].UpdatedAt = now
	}
	return rows, true
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	exists, err := s.backend.GroupKeyExists(r.Context(), domain.GroupID(r.PathValue("group")))
	if err != nil {
		s.internal(w, "group key exists", err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: exists})
}

func (s *Server) handleMissing(w http.ResponseWriter, r *http.Request) {
	missing, err := s.backend.MembersMissingGroupKey(r.Context(), domain.GroupID(r.PathValue("group")))
	if err != nil {
		s.internal(w, "members missing group key", err)
		return
	}
	writeJSON(w, http.StatusOK, membersResponse{Members: missing})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	won, err := s.backend.ClaimGroupKeyOrigination(
		r.Context(),
		domain.GroupID(r.PathValue("group")),
		callerFrom(r.Context()),
	)
	if err != nil {
		s.internal(w, "claim origination", err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Won: won})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	err := s.backend.ReleaseGroupKeyOrigination(
		r.Context(),
		domain.GroupID(r.PathValue("group")),
		callerFrom(r.Context()),
	)
	if err != nil {
		s.internal(w, "release origination", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeBackendError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrSchemaConstraint):
		writeError(w, http.StatusUnprocessableEntity, "schema_constraint", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		s.internal(w, op, err)
	}
}

func (s *Server) internal(w http.ResponseWriter, op string, err error) {
	s.log.Error("backend failure", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}
