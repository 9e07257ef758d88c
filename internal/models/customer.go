package models

import (
	"github.com/google/uuid"
)

// EmploymentType represents customer employment types
type EmploymentType string

const (
	EmploymentSalaried     EmploymentType = "SALARIED"
	EmploymentSelfEmployed EmploymentType = "SELF_EMPLOYED"
)

// CustomerSource represents where a lead came from
type CustomerSource string

const (
	SourceWalkIn   CustomerSource = "WALK_IN"
	SourceReferral CustomerSource = "REFERRAL"
	SourceOnline   CustomerSource = "ONLINE"
	SourceCampaign CustomerSource = "CAMPAIGN"
	SourceOther    CustomerSource = "OTHER"
)

// Customer represents a tenant-scoped lead/person record.
// Mobile is unique per tenant, not globally.
type Customer struct {
	TenantModel

	FullName string `json:"fullName" db:"full_name"`
	Mobile   string `json:"mobile" db:"mobile"`
	Email    string `json:"email,omitempty" db:"email"`
	PAN      string `json:"pan,omitempty" db:"pan"`

	// AadhaarMasked keeps only the last 4 digits of the number.
	AadhaarMasked string `json:"aadhaarMasked,omitempty" db:"aadhaar_masked"`

	EmploymentType EmploymentType `json:"employmentType" db:"employment_type"`
	MonthlyIncome  *float64       `json:"monthlyIncome,omitempty" db:"monthly_income"`
	CIBILScore     *int           `json:"cibilScore,omitempty" db:"cibil_score"`

	Source CustomerSource `json:"source" db:"source"`

	CreatedBy uuid.UUID `json:"createdBy" db:"created_by"`
}
