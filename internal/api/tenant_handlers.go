package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
)

// ========== Tenant Handlers ==========

func (s *RESTServer) handleListTenants(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	tenants, err := s.store.ListTenantsForUser(r.Context(), claims.UserID, claims.Email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tenants")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants})
}

func (s *RESTServer) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	var req struct {
		Name string `json:"name" validate:"required,min=2,max=120"`
		Type string `json:"type" validate:"required,oneof=sole_trader company"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if !s.validateRequest(w, &req) {
		return
	}

	tx, err := s.store.BeginTx(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to begin transaction")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	defer tx.Rollback()

	tenant := &models.Tenant{
		Name:      strings.TrimSpace(req.Name),
		Type:      models.TenantType(req.Type),
		Status:    models.TenantStatusActive,
		CreatedBy: claims.UserID,
	}
	if err := tx.CreateTenant(r.Context(), tenant); err != nil {
		log.Error().Err(err).Msg("Failed to create tenant")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	// The creator becomes OWNER immediately, no invitation round-trip.
	ownerID := claims.UserID
	owner := &models.Membership{
		TenantID: tenant.ID,
		UserID:   &ownerID,
		Email:    claims.Email,
		Role:     models.RoleOwner,
		Status:   models.MembershipActive,
	}
	if err := tx.CreateMembership(r.Context(), owner); err != nil {
		log.Error().Err(err).Msg("Failed to create owner membership")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("Failed to commit tenant creation")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusCreated, tenant)
}

// memberOfTenant resolves the caller's active membership in the tenant
// named by the {id} path parameter.
func (s *RESTServer) memberOfTenant(w http.ResponseWriter, r *http.Request) (*models.Membership, uuid.UUID, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "invalid_token")
		return nil, uuid.Nil, false
	}

	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return nil, uuid.Nil, false
	}

	member, err := s.store.FindActiveMembership(r.Context(), tenantID, claims.UserID, claims.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusForbidden, "not_member")
			return nil, uuid.Nil, false
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return nil, uuid.Nil, false
	}

	return member, tenantID, true
}

func (s *RESTServer) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := s.memberOfTenant(w, r)
	if !ok {
		return
	}

	tenant, err := s.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

func (s *RESTServer) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	member, tenantID, ok := s.memberOfTenant(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req struct {
		Name  *string          `json:"name"`
		Theme models.Variables `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	tenant, err := s.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if len(name) < 2 {
			s.respondValidation(w, map[string]string{"name": "minimum length is 2"})
			return
		}
		tenant.Name = name
	}
	if req.Theme != nil {
		tenant.Theme = req.Theme
	}

	if err := s.store.UpdateTenant(r.Context(), tenant); err != nil {
		log.Error().Err(err).Msg("Failed to update tenant")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

// ========== Membership Handlers ==========

func (s *RESTServer) handleListMembers(w http.ResponseWriter, r *http.Request) {
	member, tenantID, ok := s.memberOfTenant(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	members, err := s.store.ListMemberships(r.Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list memberships")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (s *RESTServer) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	member, tenantID, ok := s.memberOfTenant(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req struct {
		Email string `json:"email" validate:"required,email"`
		Role  string `json:"role" validate:"required,oneof=OWNER ADMIN USER"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if !s.validateRequest(w, &req) {
		return
	}

	invite := &models.Membership{
		TenantID: tenantID,
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Role:     models.Role(req.Role),
		Status:   models.MembershipInvited,
	}

	// An invited user may already have an account; bind immediately so
	// the invitation shows up in their tenant list after acceptance.
	if user, err := s.store.GetUserByEmail(r.Context(), invite.Email); err == nil {
		id := user.ID
		invite.UserID = &id
	}

	if err := s.store.CreateMembership(r.Context(), invite); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_member")
			return
		}
		log.Error().Err(err).Msg("Failed to create membership")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.recordEvent(r, &models.EventLog{
		TenantID:    &tenantID,
		ActorID:     member.UserID,
		Type:        models.EventTypeMemberChange,
		Level:       models.EventLevelInfo,
		Description: "member invited",
		Details:     models.Variables{"email": invite.Email, "role": string(invite.Role)},
	})

	s.respondJSON(w, http.StatusCreated, invite)
}

func (s *RESTServer) handleRevokeMember(w http.ResponseWriter, r *http.Request) {
	member, tenantID, ok := s.memberOfTenant(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	memberID, err := uuid.Parse(chi.URLParam(r, "memberId"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	target, err := s.store.GetMembership(r.Context(), memberID)
	if err != nil || target.TenantID != tenantID {
		s.respondError(w, http.StatusNotFound, "not_found")
		return
	}

	// The last OWNER cannot revoke itself out of the tenant.
	if target.Role == models.RoleOwner {
		all, err := s.store.ListMemberships(r.Context(), tenantID)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		owners := 0
		for _, m := range all {
			if m.Role == models.RoleOwner && m.Status == models.MembershipActive {
				owners++
			}
		}
		if owners <= 1 {
			s.respondError(w, http.StatusBadRequest, "last_owner")
			return
		}
	}

	target.Status = models.MembershipRevoked
	if err := s.store.UpdateMembership(r.Context(), target); err != nil {
		log.Error().Err(err).Msg("Failed to revoke membership")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.recordEvent(r, &models.EventLog{
		TenantID:    &tenantID,
		ActorID:     member.UserID,
		Type:        models.EventTypeMemberChange,
		Level:       models.EventLevelInfo,
		Description: "member revoked",
		Details:     models.Variables{"email": target.Email},
	})

	s.respondJSON(w, http.StatusOK, target)
}

func (s *RESTServer) handleAcceptInvitations(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	invites, err := s.store.FindInvitedMembershipsByEmail(r.Context(), claims.Email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to find invitations")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	accepted := make([]*models.Membership, 0, len(invites))
	for _, invite := range invites {
		userID := claims.UserID
		invite.UserID = &userID
		invite.Status = models.MembershipActive
		if err := s.store.UpdateMembership(r.Context(), invite); err != nil {
			log.Error().Err(err).Msg("Failed to accept invitation")
			continue
		}
		accepted = append(accepted, invite)
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"accepted": accepted})
}
