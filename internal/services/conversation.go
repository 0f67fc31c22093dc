package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationService keeps conversation membership in sync with role assignments.
type ConversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

func (s *ConversationService) WithTx(tx *gorm.DB) *ConversationService {
	return &ConversationService{db: tx}
}

// IncidentConversation returns the conversation attached to an incident.
func (s *ConversationService) IncidentConversation(ctx context.Context, incidentID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("incident_id = ? AND type = ?", incidentID, models.ConversationTypeIncident).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newNotFoundError("conversation", incidentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation for incident %d: %w", incidentID, err)
	}
	return &conv, nil
}

// AddParticipants adds users to a conversation. Users already present are
// skipped. Returns the number of new participants.
func (s *ConversationService) AddParticipants(ctx context.Context, conversationID uint, userIDs []uint) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	rows := make([]models.ConversationParticipant, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, models.ConversationParticipant{ConversationID: conversationID, UserID: uid})
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	if result.Error != nil {
		return 0, fmt.Errorf("add participants to conversation %d: %w", conversationID, result.Error)
	}
	return result.RowsAffected, nil
}

// FanOutToOpenIncidents adds the users to the conversation of every open
// incident of the project. A missing conversation fails the whole call.
func (s *ConversationService) FanOutToOpenIncidents(ctx context.Context, dir *Directory, projectID uint, userIDs []uint) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	incidents, err := dir.OpenIncidents(ctx, projectID)
	if err != nil {
		return 0, err
	}
	var added int64
	for _, inc := range incidents {
		conv, err := s.IncidentConversation(ctx, inc.ID)
		if err != nil {
			return added, err
		}
		n, err := s.AddParticipants(ctx, conv.ID, userIDs)
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}

type directConversationRow struct {
	ConversationID uint
	UserID         uint
}

// DirectConversations maps each of others to the id of its direct
// conversation with userID. Users without one are absent from the map.
func (s *ConversationService) DirectConversations(ctx context.Context, userID uint, others []uint) (map[uint]uint, error) {
	result := make(map[uint]uint, len(others))
	if len(others) == 0 {
		return result, nil
	}
	var rows []directConversationRow
	err := s.db.WithContext(ctx).
		Table("conversations").
		Select("conversations.id AS conversation_id, peer.user_id AS user_id").
		Joins("JOIN conversation_participants self ON self.conversation_id = conversations.id AND self.user_id = ?", userID).
		Joins("JOIN conversation_participants peer ON peer.conversation_id = conversations.id").
		Where("conversations.type = ? AND peer.user_id IN ?", models.ConversationTypeDirect, others).
		Order("conversations.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load direct conversations for user %d: %w", userID, err)
	}
	for _, row := range rows {
		if _, ok := result[row.UserID]; !ok {
			result[row.UserID] = row.ConversationID
		}
	}
	return result, nil
}
