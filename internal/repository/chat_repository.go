package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"orgrag/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(chat *model.Chat) error {
	if err := r.db.Create(chat).Error; err != nil {
		return fmt.Errorf("create chat failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) ListByUser(userID, orgID uint, limit int) ([]model.Chat, error) {
	var chats []model.Chat
	query := r.db.Where("user_id = ? AND organization_id = ?", userID, orgID).Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	return chats, nil
}

func (r *ChatRepository) UpdateTitle(chatID uint, title string) error {
	if err := r.db.Model(&model.Chat{ID: chatID}).Update("title", title).Error; err != nil {
		return fmt.Errorf("update chat title failed: %w", err)
	}
	return nil
}

// GetByIDAndUser returns nil, nil when the chat does not exist or belongs to
// someone else.
func (r *ChatRepository) GetByIDAndUser(chatID, userID, orgID uint) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.Where("id = ? AND user_id = ? AND organization_id = ?", chatID, userID, orgID).First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}

// AppendMessages links already-created messages to the chat and bumps its
// updated_at.
func (r *ChatRepository) AppendMessages(chatID uint, messages ...*model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		chat := &model.Chat{ID: chatID}
		if err := tx.Model(chat).Association("Messages").Append(messages); err != nil {
			return fmt.Errorf("append chat messages failed: %w", err)
		}
		if err := tx.Model(chat).Update("updated_at", time.Now()).Error; err != nil {
			return fmt.Errorf("touch chat failed: %w", err)
		}
		return nil
	})
}

// DeleteByIDAndUser removes the chat, its message links and the messages.
func (r *ChatRepository) DeleteByIDAndUser(chatID, userID, orgID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		err := tx.Where("id = ? AND user_id = ? AND organization_id = ?", chatID, userID, orgID).First(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get chat failed: %w", err)
		}

		var messageIDs []uint
		if err := tx.Table("chat_messages").Where("chat_id = ?", chat.ID).Pluck("message_id", &messageIDs).Error; err != nil {
			return fmt.Errorf("list chat message ids failed: %w", err)
		}
		if err := tx.Model(&chat).Association("Messages").Clear(); err != nil {
			return fmt.Errorf("unlink chat messages failed: %w", err)
		}
		if len(messageIDs) > 0 {
			if err := tx.Where("id IN ?", messageIDs).Delete(&model.Message{}).Error; err != nil {
				return fmt.Errorf("delete chat messages failed: %w", err)
			}
		}
		if err := tx.Delete(&chat).Error; err != nil {
			return fmt.Errorf("delete chat failed: %w", err)
		}
		return nil
	})
}
