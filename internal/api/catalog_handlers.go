package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
)

// indexedField builds a field key like "documents[2].status"
func indexedField(array string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", array, i, field)
}

// catalogName validates and normalizes a catalog entry name
func catalogName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	return name, len(name) >= 2
}

// ========== Loan Type Handlers ==========

func (s *RESTServer) handleListLoanTypes(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	loanTypes, err := s.store.ListLoanTypes(r.Context(), member.TenantID, r.URL.Query().Get("search"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list loan types")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"loanTypes": loanTypes})
}

func (s *RESTServer) handleCreateLoanType(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req struct {
		Code     string `json:"code"`
		Name     string `json:"name"`
		IsActive *bool  `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	name, ok := catalogName(req.Name)
	if !ok {
		s.respondValidation(w, map[string]string{"name": "minimum length is 2"})
		return
	}
	code := strings.TrimSpace(req.Code)
	if len(code) < 2 {
		s.respondValidation(w, map[string]string{"code": "minimum length is 2"})
		return
	}

	// Case-insensitive pre-check; the unique index backs it up under
	// concurrency.
	if _, err := s.store.FindLoanTypeByName(r.Context(), member.TenantID, name); err == nil {
		s.respondError(w, http.StatusConflict, "duplicate_name")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	lt := &models.LoanType{
		TenantModel: models.TenantModel{TenantID: member.TenantID},
		Code:        code,
		Name:        name,
		IsActive:    true,
	}
	if req.IsActive != nil {
		lt.IsActive = *req.IsActive
	}

	if err := s.store.CreateLoanType(r.Context(), lt); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		}
		log.Error().Err(err).Msg("Failed to create loan type")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusCreated, lt)
}

func (s *RESTServer) handleGetLoanType(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	lt, err := s.store.GetLoanType(r.Context(), member.TenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, lt)
}

func (s *RESTServer) handleUpdateLoanType(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	lt, err := s.store.GetLoanType(r.Context(), member.TenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	var req struct {
		Code     *string `json:"code"`
		Name     *string `json:"name"`
		IsActive *bool   `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if req.Name != nil {
		name, ok := catalogName(*req.Name)
		if !ok {
			s.respondValidation(w, map[string]string{"name": "minimum length is 2"})
			return
		}
		// Uniqueness re-check excludes the entry itself so renaming to
		// a different casing of its own name still works.
		if existing, err := s.store.FindLoanTypeByName(r.Context(), member.TenantID, name); err == nil && existing.ID != lt.ID {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		lt.Name = name
	}
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if len(code) < 2 {
			s.respondValidation(w, map[string]string{"code": "minimum length is 2"})
			return
		}
		lt.Code = code
	}
	if req.IsActive != nil {
		lt.IsActive = *req.IsActive
	}

	if err := s.store.UpdateLoanType(r.Context(), lt); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		}
		log.Error().Err(err).Msg("Failed to update loan type")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, lt)
}

func (s *RESTServer) handleDeleteLoanType(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	// Cascades to the loan type's checklist mappings; case snapshots
	// are already materialized and stay intact.
	if err := s.store.DeleteLoanType(r.Context(), member.TenantID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		log.Error().Err(err).Msg("Failed to delete loan type")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ========== Document Checklist Handlers ==========

func (s *RESTServer) handleListChecklistItems(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	items, err := s.store.ListChecklistItems(r.Context(), member.TenantID, r.URL.Query().Get("search"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list checklist items")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": items})
}

func (s *RESTServer) handleCreateChecklistItem(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req struct {
		Name     string `json:"name"`
		IsActive *bool  `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	name, ok := catalogName(req.Name)
	if !ok {
		s.respondValidation(w, map[string]string{"name": "minimum length is 2"})
		return
	}

	if _, err := s.store.FindChecklistItemByName(r.Context(), member.TenantID, name); err == nil {
		s.respondError(w, http.StatusConflict, "duplicate_name")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	item := &models.DocumentChecklistItem{
		TenantModel: models.TenantModel{TenantID: member.TenantID},
		Name:        name,
		IsActive:    true,
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}

	if err := s.store.CreateChecklistItem(r.Context(), item); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		}
		log.Error().Err(err).Msg("Failed to create checklist item")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusCreated, item)
}

func (s *RESTServer) handleGetChecklistItem(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	item, err := s.store.GetChecklistItem(r.Context(), member.TenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, item)
}

func (s *RESTServer) handleUpdateChecklistItem(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	item, err := s.store.GetChecklistItem(r.Context(), member.TenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	var req struct {
		Name     *string `json:"name"`
		IsActive *bool   `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if req.Name != nil {
		name, ok := catalogName(*req.Name)
		if !ok {
			s.respondValidation(w, map[string]string{"name": "minimum length is 2"})
			return
		}
		if existing, err := s.store.FindChecklistItemByName(r.Context(), member.TenantID, name); err == nil && existing.ID != item.ID {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		// Renames do not rewrite case snapshots; existing cases keep
		// the name they were created with.
		item.Name = name
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}

	if err := s.store.UpdateChecklistItem(r.Context(), item); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		}
		log.Error().Err(err).Msg("Failed to update checklist item")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, item)
}

func (s *RESTServer) handleDeleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := s.store.DeleteChecklistItem(r.Context(), member.TenantID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		log.Error().Err(err).Msg("Failed to delete checklist item")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ========== Pipeline Stage Handlers ==========

func (s *RESTServer) handleListStages(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	stages, err := s.store.ListStages(r.Context(), member.TenantID, r.URL.Query().Get("search"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list stages")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"stages": stages})
}

func (s *RESTServer) handleCreateStage(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Order       int    `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	name, ok := catalogName(req.Name)
	if !ok {
		s.respondValidation(w, map[string]string{"name": "minimum length is 2"})
		return
	}

	if _, err := s.store.FindStageByName(r.Context(), member.TenantID, name); err == nil {
		s.respondError(w, http.StatusConflict, "duplicate_name")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	stage := &models.PipelineStage{
		TenantModel: models.TenantModel{TenantID: member.TenantID},
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		SortOrder:   req.Order,
	}

	if err := s.store.CreateStage(r.Context(), stage); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		}
		log.Error().Err(err).Msg("Failed to create stage")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusCreated, stage)
}

func (s *RESTServer) handleGetStage(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	stage, err := s.store.GetStage(r.Context(), member.TenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, stage)
}

func (s *RESTServer) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	stage, err := s.store.GetStage(r.Context(), member.TenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Order       *int    `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if req.Name != nil {
		name, ok := catalogName(*req.Name)
		if !ok {
			s.respondValidation(w, map[string]string{"name": "minimum length is 2"})
			return
		}
		if existing, err := s.store.FindStageByName(r.Context(), member.TenantID, name); err == nil && existing.ID != stage.ID {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		stage.Name = name
	}
	if req.Description != nil {
		stage.Description = strings.TrimSpace(*req.Description)
	}
	if req.Order != nil {
		stage.SortOrder = *req.Order
	}

	if err := s.store.UpdateStage(r.Context(), stage); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_name")
			return
		}
		log.Error().Err(err).Msg("Failed to update stage")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, stage)
}

func (s *RESTServer) handleDeleteStage(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	// Cases keep their stageId; the dashboard reports them under an
	// "Unassigned" bucket until they are moved.
	if err := s.store.DeleteStage(r.Context(), member.TenantID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		log.Error().Err(err).Msg("Failed to delete stage")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ========== Checklist Mapping Handlers ==========

func (s *RESTServer) handleGetLoanTypeDocuments(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	loanTypeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if _, err := s.store.GetLoanType(r.Context(), member.TenantID, loanTypeID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	mappings, err := s.store.ListLoanTypeDocuments(r.Context(), member.TenantID, loanTypeID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list checklist mappings")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": mappings})
}

func (s *RESTServer) handleReplaceLoanTypeDocuments(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	loanTypeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if _, err := s.store.GetLoanType(r.Context(), member.TenantID, loanTypeID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	var req struct {
		Documents []struct {
			DocumentID uuid.UUID `json:"documentId"`
			Status     string    `json:"status"`
		} `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	// The whole set validates before anything is written; a single bad
	// entry keeps the previous mapping intact.
	seen := make(map[uuid.UUID]bool, len(req.Documents))
	mappings := make([]*models.LoanTypeDocument, 0, len(req.Documents))
	for i, d := range req.Documents {
		if d.DocumentID == uuid.Nil {
			s.respondValidation(w, map[string]string{indexedField("documents", i, "documentId"): "field is required"})
			return
		}
		if seen[d.DocumentID] {
			s.respondValidation(w, map[string]string{indexedField("documents", i, "documentId"): "duplicate document in mapping"})
			return
		}
		seen[d.DocumentID] = true

		status := models.MappingStatus(d.Status)
		if !status.Valid() {
			s.respondValidation(w, map[string]string{indexedField("documents", i, "status"): "must be one of REQUIRED, OPTIONAL, INACTIVE"})
			return
		}

		if _, err := s.store.GetChecklistItem(r.Context(), member.TenantID, d.DocumentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.respondValidation(w, map[string]string{indexedField("documents", i, "documentId"): "document does not exist"})
				return
			}
			s.respondError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		mappings = append(mappings, &models.LoanTypeDocument{
			TenantModel: models.TenantModel{TenantID: member.TenantID},
			LoanTypeID:  loanTypeID,
			DocumentID:  d.DocumentID,
			Status:      status,
		})
	}

	if err := s.store.ReplaceLoanTypeDocuments(r.Context(), member.TenantID, loanTypeID, mappings); err != nil {
		log.Error().Err(err).Msg("Failed to replace checklist mappings")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	result, err := s.store.ListLoanTypeDocuments(r.Context(), member.TenantID, loanTypeID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": result})
}
