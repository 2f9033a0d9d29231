package app

import (
	"context"

	"orgrag/internal/model"
	"orgrag/internal/vectorstore"
)

// Embedder returns nil when no vector could be produced.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// VectorStore is the part of vectorstore.Adapter the services use.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, items []vectorstore.StoredItem) error
	Query(ctx context.Context, collection string, vector []float32, k int) []vectorstore.ContextItem
	Delete(ctx context.Context, collection string, ids []string) error
}

type ContextRetriever interface {
	Retrieve(ctx context.Context, prompt string, orgID, userID uint, k int) []vectorstore.ContextItem
}

type ChatStore interface {
	Create(chat *model.Chat) error
	GetByIDAndUser(chatID, userID, orgID uint) (*model.Chat, error)
	// ListByUser orders by most recent activity; limit <= 0 means all.
	ListByUser(userID, orgID uint, limit int) ([]model.Chat, error)
	UpdateTitle(chatID uint, title string) error
	AppendMessages(chatID uint, messages ...*model.Message) error
	DeleteByIDAndUser(chatID, userID, orgID uint) error
}

type MessageStore interface {
	Create(message *model.Message) error
	ListByChatID(chatID uint, limit int) ([]model.Message, error)
}

type DocumentStore interface {
	Create(doc *model.Document) error
	ListByOrganization(orgID uint) ([]model.Document, error)
	ExistsByFilename(orgID uint, filename string) (bool, error)
	GetByIDAndOrganization(id, orgID uint) (*model.Document, error)
	DeleteByIDAndOrganization(id, orgID uint) error
}

type UserStore interface {
	Create(user *model.User) error
	CreateWithOrganization(org *model.Organization, user *model.User) error
	GetByUsername(username string) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	GetByID(id uint) (*model.User, error)
}

type OrganizationStore interface {
	GetByID(id uint) (*model.Organization, error)
	GetByName(name string) (*model.Organization, error)
	UpdateName(id uint, name string) error
}

// TurnPublisher hands a persisted turn to the chat-history indexer.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, job model.TurnIndexJob) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, chatID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, chatID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, chatID uint) error
	MarkDirty(ctx context.Context, chatID uint) error
	IsDirty(ctx context.Context, chatID uint) (bool, error)
}
