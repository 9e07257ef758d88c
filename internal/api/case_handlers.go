package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loanflow-server/loanflow-server/internal/cases"
	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
)

// ========== Loan Case Handlers ==========

func (s *RESTServer) handleListCases(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	filters := storage.CaseFilters{TenantID: member.TenantID}
	if !member.Role.CanManageTenant() {
		userID := claims.UserID
		filters.ViewerID = &userID
	}

	q := r.URL.Query()
	if v := q.Get("stageId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		filters.StageID = &id
	}
	if v := q.Get("customerId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		filters.CustomerID = &id
	}
	if v := q.Get("assignedAgentId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		filters.AssignedAgentID = &id
	}

	result, err := s.store.ListCases(r.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list cases")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"cases": result})
}

func (s *RESTServer) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	var req struct {
		CustomerID      uuid.UUID  `json:"customerId"`
		LoanTypeID      uuid.UUID  `json:"loanTypeId"`
		StageID         uuid.UUID  `json:"stageId"`
		BankName        string     `json:"bankName"`
		RequestedAmount float64    `json:"requestedAmount"`
		EligibleAmount  *float64   `json:"eligibleAmount"`
		InterestRate    *float64   `json:"interestRate"`
		TenureMonths    *int       `json:"tenureMonths"`
		EMI             *float64   `json:"emi"`
		AssignedAgentID *uuid.UUID `json:"assignedAgentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	fieldErrs := map[string]string{}
	if req.CustomerID == uuid.Nil {
		fieldErrs["customerId"] = "field is required"
	}
	if req.LoanTypeID == uuid.Nil {
		fieldErrs["loanTypeId"] = "field is required"
	}
	if req.StageID == uuid.Nil {
		fieldErrs["stageId"] = "field is required"
	}
	if len(fieldErrs) > 0 {
		s.respondValidation(w, fieldErrs)
		return
	}

	c, err := s.engine.Create(r.Context(), member.TenantID, claims.UserID, cases.CreateInput{
		CustomerID:      req.CustomerID,
		LoanTypeID:      req.LoanTypeID,
		StageID:         req.StageID,
		BankName:        req.BankName,
		RequestedAmount: req.RequestedAmount,
		EligibleAmount:  req.EligibleAmount,
		InterestRate:    req.InterestRate,
		TenureMonths:    req.TenureMonths,
		EMI:             req.EMI,
		AssignedAgentID: req.AssignedAgentID,
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	s.events.CaseCreated(c, claims.UserID)

	actorID := claims.UserID
	tenantID := member.TenantID
	caseID := c.ID
	s.recordEvent(r, &models.EventLog{
		TenantID:    &tenantID,
		CaseID:      &caseID,
		ActorID:     &actorID,
		Type:        models.EventTypeCaseCreated,
		Level:       models.EventLevelInfo,
		Description: "loan case created",
	})

	s.respondJSON(w, http.StatusCreated, c)
}

// fetchCase loads the case from the path and enforces case-level access
func (s *RESTServer) fetchCase(w http.ResponseWriter, r *http.Request, member *models.Membership, userID uuid.UUID) (*models.LoanCase, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return nil, false
	}

	c, err := s.store.GetCase(r.Context(), member.TenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return nil, false
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return nil, false
	}

	if !cases.CanAccess(member.Role, userID, c) {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}

	return c, true
}

// caseDetail resolves display names for the detail view. A deleted
// stage or agent leaves its name empty rather than failing the fetch.
func (s *RESTServer) caseDetail(r *http.Request, c *models.LoanCase) *models.CaseDetail {
	detail := &models.CaseDetail{LoanCase: *c}

	if customer, err := s.store.GetCustomer(r.Context(), c.TenantID, c.CustomerID); err == nil {
		detail.CustomerName = customer.FullName
	}
	if lt, err := s.store.GetLoanType(r.Context(), c.TenantID, c.LoanTypeID); err == nil {
		detail.LoanTypeName = lt.Name
	}
	if stage, err := s.store.GetStage(r.Context(), c.TenantID, c.StageID); err == nil {
		detail.StageName = stage.Name
	}
	if c.AssignedAgentID != nil {
		if agent, err := s.store.GetUser(r.Context(), *c.AssignedAgentID); err == nil {
			detail.AgentName = agent.FullName
		}
	}

	return detail
}

func (s *RESTServer) handleGetCase(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	c, ok := s.fetchCase(w, r, member, claims.UserID)
	if !ok {
		return
	}

	s.respondJSON(w, http.StatusOK, s.caseDetail(r, c))
}

func (s *RESTServer) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	c, ok := s.fetchCase(w, r, member, claims.UserID)
	if !ok {
		return
	}

	// Decoded into a raw map first: a sparse patch must distinguish
	// "key absent" from "key present with null", which a plain struct
	// decode cannot.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	patch, ok := s.decodeCasePatch(w, raw)
	if !ok {
		return
	}

	updated, err := s.engine.Update(r.Context(), c, patch)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	s.events.CaseUpdated(updated, claims.UserID)

	actorID := claims.UserID
	tenantID := member.TenantID
	caseID := updated.ID
	s.recordEvent(r, &models.EventLog{
		TenantID:    &tenantID,
		CaseID:      &caseID,
		ActorID:     &actorID,
		Type:        models.EventTypeCaseUpdated,
		Level:       models.EventLevelInfo,
		Description: "loan case updated",
	})

	s.respondJSON(w, http.StatusOK, updated)
}

// decodeCasePatch maps the raw body onto an UpdatePatch
func (s *RESTServer) decodeCasePatch(w http.ResponseWriter, raw map[string]json.RawMessage) (cases.UpdatePatch, bool) {
	patch := cases.UpdatePatch{}
	bad := func(field string) (cases.UpdatePatch, bool) {
		s.respondValidation(w, map[string]string{field: "invalid value"})
		return cases.UpdatePatch{}, false
	}

	if v, present := raw["customerId"]; present {
		if err := json.Unmarshal(v, &patch.CustomerID); err != nil || patch.CustomerID == nil {
			return bad("customerId")
		}
	}
	if v, present := raw["loanTypeId"]; present {
		if err := json.Unmarshal(v, &patch.LoanTypeID); err != nil || patch.LoanTypeID == nil {
			return bad("loanTypeId")
		}
	}
	if v, present := raw["stageId"]; present {
		if err := json.Unmarshal(v, &patch.StageID); err != nil || patch.StageID == nil {
			return bad("stageId")
		}
	}
	if v, present := raw["bankName"]; present {
		if err := json.Unmarshal(v, &patch.BankName); err != nil {
			return bad("bankName")
		}
	}
	if v, present := raw["requestedAmount"]; present {
		if err := json.Unmarshal(v, &patch.RequestedAmount); err != nil || patch.RequestedAmount == nil {
			return bad("requestedAmount")
		}
	}
	if v, present := raw["eligibleAmount"]; present {
		if err := json.Unmarshal(v, &patch.EligibleAmount); err != nil {
			return bad("eligibleAmount")
		}
	}
	if v, present := raw["interestRate"]; present {
		if err := json.Unmarshal(v, &patch.InterestRate); err != nil {
			return bad("interestRate")
		}
	}
	if v, present := raw["tenureMonths"]; present {
		if err := json.Unmarshal(v, &patch.TenureMonths); err != nil {
			return bad("tenureMonths")
		}
	}
	if v, present := raw["emi"]; present {
		if err := json.Unmarshal(v, &patch.EMI); err != nil {
			return bad("emi")
		}
	}
	if v, present := raw["assignedAgentId"]; present {
		// null clears the assignment
		patch.AgentSet = true
		if err := json.Unmarshal(v, &patch.AgentID); err != nil {
			return bad("assignedAgentId")
		}
	}
	if v, present := raw["documents"]; present {
		patch.DocumentsSet = true
		var docs []struct {
			DocumentID uuid.UUID             `json:"documentId"`
			Status     models.DocumentStatus `json:"status"`
		}
		if err := json.Unmarshal(v, &docs); err != nil || docs == nil {
			return bad("documents")
		}
		for _, d := range docs {
			patch.Documents = append(patch.Documents, cases.DocumentPatch{
				DocumentID: d.DocumentID,
				Status:     d.Status,
			})
		}
	}

	return patch, true
}

func (s *RESTServer) handleMoveCaseStage(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	c, ok := s.fetchCase(w, r, member, claims.UserID)
	if !ok {
		return
	}

	// Both key spellings are accepted on the wire.
	var req struct {
		NewStageID *uuid.UUID `json:"newStageId"`
		StageID    *uuid.UUID `json:"stageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	stageID := req.NewStageID
	if stageID == nil {
		stageID = req.StageID
	}
	if stageID == nil {
		s.respondValidation(w, map[string]string{"newStageId": "field is required"})
		return
	}

	updatedAt, changed, err := s.engine.MoveStage(r.Context(), c, *stageID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	if changed {
		s.events.StageChanged(c, *stageID, claims.UserID)

		actorID := claims.UserID
		tenantID := member.TenantID
		caseID := c.ID
		s.recordEvent(r, &models.EventLog{
			TenantID:    &tenantID,
			CaseID:      &caseID,
			ActorID:     &actorID,
			Type:        models.EventTypeStageChanged,
			Level:       models.EventLevelInfo,
			Description: "loan case stage changed",
			Details:     models.Variables{"stageId": stageID.String()},
		})
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"caseId":    c.ID,
		"stageId":   *stageID,
		"changed":   changed,
		"updatedAt": updatedAt,
	})
}
