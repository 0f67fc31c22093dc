package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	IncidentStatusOpen          = "open"
	IncidentStatusInvestigating = "investigating"
	IncidentStatusResolved      = "resolved"
	IncidentStatusClosed        = "closed"
)

// Incident belongs to a project. Its lifecycle is managed outside the role chain.
type Incident struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProjectID   uint           `gorm:"index;not null" json:"project_id"`
	Project     *Project       `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Title       string         `gorm:"size:300;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Severity    string         `gorm:"size:20" json:"severity"`
	Status      string         `gorm:"size:20;default:open;index" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Incident) TableName() string { return "incidents" }

// ClosedIncidentStatuses are excluded from conversation fan-out. Every other status counts as open.
var ClosedIncidentStatuses = []string{IncidentStatusResolved, IncidentStatusClosed}

const (
	ConversationTypeIncident = "incident"
	ConversationTypeProject  = "project"
	ConversationTypeDirect   = "direct"
)

// Conversation is a communication channel tracked on behalf of the messaging provider.
type Conversation struct {
	ID           uint                      `gorm:"primaryKey" json:"id"`
	Type         string                    `gorm:"size:20;index;not null" json:"type"` // incident, project, direct
	Name         string                    `gorm:"size:200" json:"name"`
	ExternalID   string                    `gorm:"size:200" json:"external_id"`
	IncidentID   *uint                     `gorm:"index" json:"incident_id"`
	ProjectID    *uint                     `gorm:"index" json:"project_id"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

type ConversationParticipant struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"uniqueIndex:idx_conversation_user;not null" json:"conversation_id"`
	UserID         uint      `gorm:"uniqueIndex:idx_conversation_user;index;not null" json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }
