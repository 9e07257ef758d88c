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

// maskAadhaar keeps only the last 4 digits; everything else is never
// stored.
func maskAadhaar(aadhaar string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, aadhaar)
	if len(digits) < 4 {
		return ""
	}
	return "XXXX-XXXX-" + digits[len(digits)-4:]
}

// validateCIBIL checks the credit score range when present
func validateCIBIL(score *int) string {
	if score != nil && (*score < 300 || *score > 900) {
		return "must be between 300 and 900"
	}
	return ""
}

// ========== Customer Handlers ==========

func (s *RESTServer) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	filters := storage.CustomerFilters{
		TenantID: member.TenantID,
		Search:   r.URL.Query().Get("search"),
	}
	if !member.Role.CanManageTenant() {
		userID := claims.UserID
		filters.CreatedBy = &userID
	}

	customers, err := s.store.ListCustomers(r.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list customers")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"customers": customers})
}

func (s *RESTServer) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	var req struct {
		FullName       string   `json:"fullName" validate:"required,min=2,max=120"`
		Mobile         string   `json:"mobile" validate:"required,mobile"`
		Email          string   `json:"email" validate:"email"`
		PAN            string   `json:"pan" validate:"max=10"`
		Aadhaar        string   `json:"aadhaar"`
		EmploymentType string   `json:"employmentType" validate:"oneof=SALARIED SELF_EMPLOYED"`
		MonthlyIncome  *float64 `json:"monthlyIncome"`
		CIBILScore     *int     `json:"cibilScore"`
		Source         string   `json:"source" validate:"oneof=WALK_IN REFERRAL ONLINE CAMPAIGN OTHER"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if !s.validateRequest(w, &req) {
		return
	}
	if msg := validateCIBIL(req.CIBILScore); msg != "" {
		s.respondValidation(w, map[string]string{"cibilScore": msg})
		return
	}

	if req.EmploymentType == "" {
		req.EmploymentType = string(models.EmploymentSalaried)
	}
	if req.Source == "" {
		req.Source = string(models.SourceOther)
	}

	customer := &models.Customer{
		TenantModel:    models.TenantModel{TenantID: member.TenantID},
		FullName:       strings.TrimSpace(req.FullName),
		Mobile:         req.Mobile,
		Email:          strings.TrimSpace(req.Email),
		PAN:            strings.ToUpper(strings.TrimSpace(req.PAN)),
		AadhaarMasked:  maskAadhaar(req.Aadhaar),
		EmploymentType: models.EmploymentType(req.EmploymentType),
		MonthlyIncome:  req.MonthlyIncome,
		CIBILScore:     req.CIBILScore,
		Source:         models.CustomerSource(req.Source),
		CreatedBy:      claims.UserID,
	}

	if err := s.store.CreateCustomer(r.Context(), customer); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_mobile")
			return
		}
		log.Error().Err(err).Msg("Failed to create customer")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusCreated, customer)
}

// fetchCustomer loads the customer from the path and enforces USER
// own-records scoping.
func (s *RESTServer) fetchCustomer(w http.ResponseWriter, r *http.Request, member *models.Membership, userID uuid.UUID) (*models.Customer, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return nil, false
	}

	customer, err := s.store.GetCustomer(r.Context(), member.TenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not_found")
			return nil, false
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return nil, false
	}

	if !member.Role.CanManageTenant() && customer.CreatedBy != userID {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}

	return customer, true
}

func (s *RESTServer) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	customer, ok := s.fetchCustomer(w, r, member, claims.UserID)
	if !ok {
		return
	}

	s.respondJSON(w, http.StatusOK, customer)
}

func (s *RESTServer) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	customer, ok := s.fetchCustomer(w, r, member, claims.UserID)
	if !ok {
		return
	}

	var req struct {
		FullName       *string  `json:"fullName"`
		Mobile         *string  `json:"mobile"`
		Email          *string  `json:"email"`
		PAN            *string  `json:"pan"`
		Aadhaar        *string  `json:"aadhaar"`
		EmploymentType *string  `json:"employmentType"`
		MonthlyIncome  *float64 `json:"monthlyIncome"`
		CIBILScore     *int     `json:"cibilScore"`
		Source         *string  `json:"source"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	fieldErrs := map[string]string{}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if len(name) < 2 {
			fieldErrs["fullName"] = "minimum length is 2"
		} else {
			customer.FullName = name
		}
	}
	if req.Mobile != nil {
		if !mobileDigits(*req.Mobile) {
			fieldErrs["mobile"] = "must be a 10 digit mobile number"
		} else {
			customer.Mobile = *req.Mobile
		}
	}
	if req.EmploymentType != nil {
		et := models.EmploymentType(*req.EmploymentType)
		if et != models.EmploymentSalaried && et != models.EmploymentSelfEmployed {
			fieldErrs["employmentType"] = "must be one of SALARIED, SELF_EMPLOYED"
		} else {
			customer.EmploymentType = et
		}
	}
	if req.Source != nil {
		src := models.CustomerSource(*req.Source)
		switch src {
		case models.SourceWalkIn, models.SourceReferral, models.SourceOnline, models.SourceCampaign, models.SourceOther:
			customer.Source = src
		default:
			fieldErrs["source"] = "invalid source"
		}
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		at := strings.Index(email, "@")
		if email != "" && (at <= 0 || at == len(email)-1) {
			fieldErrs["email"] = "invalid email format"
		} else {
			customer.Email = email
		}
	}
	if msg := validateCIBIL(req.CIBILScore); msg != "" {
		fieldErrs["cibilScore"] = msg
	}
	if len(fieldErrs) > 0 {
		s.respondValidation(w, fieldErrs)
		return
	}

	if req.PAN != nil {
		customer.PAN = strings.ToUpper(strings.TrimSpace(*req.PAN))
	}
	if req.Aadhaar != nil {
		customer.AadhaarMasked = maskAadhaar(*req.Aadhaar)
	}
	if req.MonthlyIncome != nil {
		customer.MonthlyIncome = req.MonthlyIncome
	}
	if req.CIBILScore != nil {
		customer.CIBILScore = req.CIBILScore
	}

	if err := s.store.UpdateCustomer(r.Context(), customer); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "duplicate_mobile")
			return
		}
		log.Error().Err(err).Msg("Failed to update customer")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, customer)
}

func (s *RESTServer) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	customer, ok := s.fetchCustomer(w, r, member, claims.UserID)
	if !ok {
		return
	}

	if err := s.store.DeleteCustomer(r.Context(), member.TenantID, customer.ID); err != nil {
		log.Error().Err(err).Msg("Failed to delete customer")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// mobileDigits reports whether the value is exactly 10 digits
func mobileDigits(v string) bool {
	if len(v) != 10 {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
