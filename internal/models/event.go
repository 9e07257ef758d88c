package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog represents an audit log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	TenantID *uuid.UUID `json:"tenantId,omitempty" db:"tenant_id"`
	CaseID   *uuid.UUID `json:"caseId,omitempty" db:"case_id"`
	ActorID  *uuid.UUID `json:"actorId,omitempty" db:"actor_id"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	EventTypeCaseCreated  EventType = "CASE_CREATED"
	EventTypeCaseUpdated  EventType = "CASE_UPDATED"
	EventTypeStageChanged EventType = "STAGE_CHANGED"
	EventTypeMemberChange EventType = "MEMBER_CHANGE"
	EventTypeAPICall      EventType = "API_CALL"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
