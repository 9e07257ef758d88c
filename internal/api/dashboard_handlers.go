package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
)

// trendWeeks is the dashboard trend window
const trendWeeks = 12

// ========== Dashboard Handlers ==========

func (s *RESTServer) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	member, claims, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	// USER sees aggregates over its own slice of the data only.
	var createdBy, viewerID *uuid.UUID
	if !member.Role.CanManageTenant() {
		userID := claims.UserID
		createdBy = &userID
		viewerID = &userID
	}

	ctx := r.Context()
	tenantID := member.TenantID
	since := time.Now().AddDate(0, 0, -7*trendWeeks)

	customerTotal, err := s.store.CountCustomers(ctx, tenantID, createdBy)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count customers")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	caseTotal, err := s.store.CountCases(ctx, tenantID, viewerID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count cases")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	customerTrend, err := s.store.CustomerTrend(ctx, tenantID, createdBy, since)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute customer trend")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	caseTrend, err := s.store.CaseTrend(ctx, tenantID, viewerID, since)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute case trend")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	stages, err := s.store.StageBreakdown(ctx, tenantID, viewerID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute stage breakdown")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	for i := range stages {
		if stages[i].StageID == nil {
			stages[i].StageName = "Unassigned"
		}
	}

	summary := map[string]interface{}{
		"customers": map[string]interface{}{
			"total": customerTotal,
			"trend": customerTrend,
		},
		"cases": map[string]interface{}{
			"total": caseTotal,
			"trend": caseTrend,
		},
		"stages": stages,
	}

	// The leaderboard exposes other agents' numbers, so USER does not
	// get one.
	if member.Role.CanManageTenant() {
		leaders, err := s.store.AgentLeaderboard(ctx, tenantID, 6)
		if err != nil {
			log.Error().Err(err).Msg("Failed to compute agent leaderboard")
			s.respondError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		type leaderRow struct {
			AgentID  uuid.UUID `json:"agentId"`
			FullName string    `json:"fullName,omitempty"`
			Count    int64     `json:"count"`
		}
		rows := make([]leaderRow, 0, len(leaders))
		for _, l := range leaders {
			row := leaderRow{AgentID: l.AgentID, Count: l.Count}
			if user, err := s.store.GetUser(ctx, l.AgentID); err == nil {
				row.FullName = user.FullName
			}
			rows = append(rows, row)
		}
		summary["topAgents"] = rows
	}

	s.respondJSON(w, http.StatusOK, summary)
}

// ========== Event Log Handlers ==========

func (s *RESTServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	member, _, ok := s.requireMember(w, r)
	if !ok {
		return
	}
	if !member.Role.CanManageTenant() {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	tenantID := member.TenantID
	filters := storage.EventLogFilters{TenantID: &tenantID}

	q := r.URL.Query()
	if v := q.Get("caseId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		filters.CaseID = &id
	}
	if v := q.Get("type"); v != "" {
		t := models.EventType(v)
		filters.Type = &t
	}
	if v := q.Get("level"); v != "" {
		l := models.EventLevel(v)
		filters.Level = &l
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= storage.MaxListResults {
			limit = n
		}
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	events, total, err := s.store.ListEventLogs(r.Context(), filters, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list event logs")
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
