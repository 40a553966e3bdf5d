package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/pathchain/internal/credential"
	"github.com/roach88/pathchain/internal/fault"
	"github.com/roach88/pathchain/internal/lineage"
	"github.com/roach88/pathchain/internal/record"
)

type registerRequest struct {
	Secret   string `json:"secret"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type secretResponse struct {
	Address record.Address `json:"address"`
	OwnerID int64          `json:"owner_id"`
}

type lineageResponse struct {
	Entities []lineage.EntityInfo `json:"entities"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.coord.Register(r.Context(), req.Secret, req.Username, req.Password)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.coord.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCheckSecret(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.CheckSecret(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleIssueSecret requires a bearer token issued to the same entity.
func (s *Server) handleIssueSecret(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	claims, err := s.authenticate(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if claims.EntityID != id {
		writeJSON(w, http.StatusForbidden, errorBody{
			Code:    string(fault.InvalidCredentials),
			Message: "token does not belong to this entity",
		})
		return
	}

	row, err := s.coord.IssueSecret(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, secretResponse{Address: row.Address, OwnerID: row.OwnerID})
}

func (s *Server) handleAncestor(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	info, err := s.resolver.ResolveAncestor(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	chain, err := s.resolver.Lineage(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lineageResponse{Entities: chain})
}

func entityID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fault.Newf(fault.InvalidRequest, "entity id must be a positive integer, got %q", raw)
	}
	return id, nil
}

func (s *Server) authenticate(r *http.Request) (credential.Claims, error) {
	if s.tokens == nil {
		return credential.Claims{}, fault.New(fault.CredentialsUnavailable, "token verification is not configured")
	}
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return credential.Claims{}, fault.New(fault.InvalidCredentials, "bearer token required")
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return credential.Claims{}, fault.Wrap(fault.InvalidCredentials, "invalid token", err)
	}
	return claims, nil
}
