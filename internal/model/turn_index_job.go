package model

// TurnIndexJob asks the worker to embed a persisted chat turn into the
// user's chat-history collection.
type TurnIndexJob struct {
	UserID         uint   `json:"user_id"`
	OrganizationID uint   `json:"organization_id"`
	ChatID         uint   `json:"chat_id"`
	Prompt         string `json:"prompt"`
	Response       string `json:"response"`
}
