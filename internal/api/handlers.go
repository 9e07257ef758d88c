package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loanflow-server/loanflow-server/internal/cases"
	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
	"github.com/loanflow-server/loanflow-server/internal/validation"
	"github.com/loanflow-server/loanflow-server/pkg/crypto"
)

// ========== Response Helpers ==========

// respondJSON sends a JSON response
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode response")
		}
	}
}

// respondError sends an error response with a machine-readable code
func (s *RESTServer) respondError(w http.ResponseWriter, status int, code string) {
	s.respondJSON(w, status, map[string]string{"error": code})
}

// respondValidation sends a field-level validation failure
func (s *RESTServer) respondValidation(w http.ResponseWriter, details map[string]string) {
	s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "validation_error",
		"details": details,
	})
}

// respondEngineError translates loan-case engine errors into the API
// error taxonomy
func (s *RESTServer) respondEngineError(w http.ResponseWriter, err error) {
	var fieldErrs cases.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		s.respondValidation(w, fieldErrs)
	case errors.Is(err, cases.ErrInvalidCustomer):
		s.respondError(w, http.StatusBadRequest, "invalid_customer")
	case errors.Is(err, cases.ErrInvalidLoanType):
		s.respondError(w, http.StatusBadRequest, "invalid_loanType")
	case errors.Is(err, cases.ErrInvalidStage):
		s.respondError(w, http.StatusBadRequest, "invalid_stage")
	case errors.Is(err, cases.ErrAgentNotInTenant):
		s.respondError(w, http.StatusBadRequest, "agent_not_in_tenant")
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not_found")
	default:
		log.Error().Err(err).Msg("Loan case operation failed")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

// validateRequest runs struct validation and responds on failure
func (s *RESTServer) validateRequest(w http.ResponseWriter, req interface{}) bool {
	if err := s.validator.Validate(req); err != nil {
		var fieldErrs validation.FieldError
		if errors.As(err, &fieldErrs) {
			s.respondValidation(w, fieldErrs)
		} else {
			s.respondError(w, http.StatusBadRequest, "validation_error")
		}
		return false
	}
	return true
}

// recordEvent writes an audit log entry; failures are logged, never
// surfaced to the caller.
func (s *RESTServer) recordEvent(r *http.Request, event *models.EventLog) {
	if err := s.store.CreateEventLog(r.Context(), event); err != nil {
		log.Warn().Err(err).Str("type", string(event.Type)).Msg("Failed to write event log")
	}
}

// tokenTenantID extracts the id of the default tenant, if any
func tokenTenantID(t *models.Tenant) *uuid.UUID {
	if t == nil {
		return nil
	}
	id := t.ID
	return &id
}

// ========== Health ==========

func (s *RESTServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ========== Auth Handlers ==========

func (s *RESTServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		FullName string `json:"fullName" validate:"required,min=2"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if !s.validateRequest(w, &req) {
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hash,
		IsActive:     true,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_email")
			return
		}
		log.Error().Err(err).Msg("Failed to create user")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusCreated, user)
}

func (s *RESTServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if !s.validateRequest(w, &req) {
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !user.IsActive || !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		log.Warn().Err(err).Msg("Failed to record login time")
	}

	tenants, err := s.store.ListTenantsForUser(r.Context(), user.ID, user.Email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tenants")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	// The first tenant becomes the token default; the X-Tenant-ID
	// header switches tenants per request.
	var defaultTenant *models.Tenant
	if len(tenants) > 0 {
		defaultTenant = tenants[0]
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user, tokenTenantID(defaultTenant))
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate tokens")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user":         user,
		"tenants":      tenants,
	})
}

func (s *RESTServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if !s.validateRequest(w, &req) {
		return
	}

	userID, err := s.auth.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		s.respondError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	tenants, err := s.store.ListTenantsForUser(r.Context(), user.ID, user.Email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tenants")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	var defaultTenant *models.Tenant
	if len(tenants) > 0 {
		defaultTenant = tenants[0]
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user, tokenTenantID(defaultTenant))
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate tokens")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}
