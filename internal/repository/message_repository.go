package repository

import (
	"fmt"

	"gorm.io/gorm"

	"orgrag/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListByChatID returns the chat's messages oldest first.
func (r *MessageRepository) ListByChatID(chatID uint, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	var messages []model.Message
	if err := r.db.
		Joins("JOIN chat_messages ON chat_messages.message_id = messages.id").
		Where("chat_messages.chat_id = ?", chatID).
		Order("messages.created_at ASC, messages.id ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}
