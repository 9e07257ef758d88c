package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/loanflow-server/loanflow-server/internal/models"
)

// CaseEvent is the payload published for loan case lifecycle events
type CaseEvent struct {
	TenantID  uuid.UUID  `json:"tenantId"`
	CaseID    uuid.UUID  `json:"caseId"`
	ActorID   uuid.UUID  `json:"actorId"`
	StageID   *uuid.UUID `json:"stageId,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Publisher publishes case lifecycle events to NATS. A nil Publisher
// is valid and drops everything, so the server runs standalone when
// NATS is not configured.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher creates a new event publisher
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// publish marshals and fires one event, logging failures instead of
// surfacing them; event delivery never fails a request.
func (p *Publisher) publish(subject string, event CaseEvent) {
	if p == nil || p.nc == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to marshal event")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}

// CaseCreated publishes a case creation event
func (p *Publisher) CaseCreated(c *models.LoanCase, actorID uuid.UUID) {
	subject := fmt.Sprintf("tenant.%s.case.created", c.TenantID)
	p.publish(subject, CaseEvent{
		TenantID:  c.TenantID,
		CaseID:    c.ID,
		ActorID:   actorID,
		StageID:   &c.StageID,
		Timestamp: time.Now(),
	})
}

// CaseUpdated publishes a case update event
func (p *Publisher) CaseUpdated(c *models.LoanCase, actorID uuid.UUID) {
	subject := fmt.Sprintf("tenant.%s.case.updated", c.TenantID)
	p.publish(subject, CaseEvent{
		TenantID:  c.TenantID,
		CaseID:    c.ID,
		ActorID:   actorID,
		Timestamp: time.Now(),
	})
}

// StageChanged publishes a stage transition event
func (p *Publisher) StageChanged(c *models.LoanCase, stageID, actorID uuid.UUID) {
	subject := fmt.Sprintf("tenant.%s.case.stage", c.TenantID)
	p.publish(subject, CaseEvent{
		TenantID:  c.TenantID,
		CaseID:    c.ID,
		ActorID:   actorID,
		StageID:   &stageID,
		Timestamp: time.Now(),
	})
}
