package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

func TestTruncateWeekStartsMonday(t *testing.T) {
	// 2026-08-26 is a Wednesday; its week starts Monday the 24th.
	wed := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), truncateWeek(wed))

	// A Monday truncates to itself at midnight.
	mon := time.Date(2026, 8, 24, 1, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), truncateWeek(mon))

	// Sunday belongs to the week that started the previous Monday.
	sun := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), truncateWeek(sun))
}

func TestTrendFromBucketsAndSorts(t *testing.T) {
	week1 := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	week2 := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)

	times := []time.Time{
		week2.Add(26 * time.Hour),
		week1.Add(2 * time.Hour),
		week1.Add(50 * time.Hour),
		week1.Add(-time.Hour), // before since, dropped
	}

	buckets := trendFrom(times, week1)
	require.Len(t, buckets, 2)
	require.Equal(t, week1, buckets[0].WeekStart)
	require.Equal(t, int64(2), buckets[0].Count)
	require.Equal(t, week2, buckets[1].WeekStart)
	require.Equal(t, int64(1), buckets[1].Count)
}

func TestMemoryStoreNameUniquenessPerTenant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	tenantA := uuid.New()
	tenantB := uuid.New()

	lt := &models.LoanType{TenantModel: models.TenantModel{TenantID: tenantA}, Code: "HL", Name: "Home Loan"}
	require.NoError(t, s.CreateLoanType(ctx, lt))

	// Different casing, same tenant: duplicate
	dup := &models.LoanType{TenantModel: models.TenantModel{TenantID: tenantA}, Code: "HL2", Name: "HOME LOAN"}
	require.ErrorIs(t, s.CreateLoanType(ctx, dup), ErrDuplicateKey)

	// Same name in another tenant is independent
	other := &models.LoanType{TenantModel: models.TenantModel{TenantID: tenantB}, Code: "HL", Name: "Home Loan"}
	require.NoError(t, s.CreateLoanType(ctx, other))
}

func TestMemoryStoreUpdateCaseStageTouchesOnlyStage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	tenantID := uuid.New()
	c := &models.LoanCase{
		TenantModel:     models.TenantModel{TenantID: tenantID},
		CustomerID:      uuid.New(),
		LoanTypeID:      uuid.New(),
		StageID:         uuid.New(),
		RequestedAmount: 100000,
		BankName:        "HDFC",
		CreatedBy:       uuid.New(),
	}
	require.NoError(t, s.CreateCase(ctx, c))

	newStage := uuid.New()
	updatedAt, err := s.UpdateCaseStage(ctx, tenantID, c.ID, newStage)
	require.NoError(t, err)
	require.False(t, updatedAt.IsZero())

	got, err := s.GetCase(ctx, tenantID, c.ID)
	require.NoError(t, err)
	require.Equal(t, newStage, got.StageID)
	require.Equal(t, "HDFC", got.BankName)
	require.Equal(t, updatedAt, got.UpdatedAt)
}

func TestMemoryStoreListCasesViewerScope(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	tenantID := uuid.New()
	viewer := uuid.New()
	other := uuid.New()

	mk := func(createdBy uuid.UUID, agent *uuid.UUID) {
		c := &models.LoanCase{
			TenantModel:     models.TenantModel{TenantID: tenantID},
			CustomerID:      uuid.New(),
			LoanTypeID:      uuid.New(),
			StageID:         uuid.New(),
			RequestedAmount: 1,
			AssignedAgentID: agent,
			CreatedBy:       createdBy,
		}
		require.NoError(t, s.CreateCase(ctx, c))
	}

	mk(viewer, nil)          // created by viewer
	mk(other, &viewer)       // assigned to viewer
	mk(other, &other)        // unrelated
	mk(other, nil)           // unrelated

	result, err := s.ListCases(ctx, CaseFilters{TenantID: tenantID, ViewerID: &viewer})
	require.NoError(t, err)
	require.Len(t, result, 2)
}
