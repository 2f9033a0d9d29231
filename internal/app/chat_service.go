package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"orgrag/internal/ai"
	"orgrag/internal/model"
)

type StreamState string

const (
	StateCompleted StreamState = "completed"
	StateAborted   StreamState = "aborted"
	StateFailed    StreamState = "failed"
)

var errTurnClosed = errors.New("turn already finished")

type ChatConfig struct {
	ContextK     int
	TitleChars   int
	HistoryLimit int
	SystemPrompt string
}

type ChatService struct {
	chats        ChatStore
	messages     MessageStore
	retriever    ContextRetriever
	generator    ai.Generator
	publisher    TurnPublisher
	historyCache HistoryCache
	cfg          ChatConfig
	logger       *slog.Logger
}

type StreamChatInput struct {
	UserID         uint
	OrganizationID uint
	ChatID         uint
	ForceNew       bool
	Prompt         string
}

type StreamChatResult struct {
	ChatID       uint        `json:"chatId"`
	State        StreamState `json:"state"`
	Response     string      `json:"response"`
	ContextItems int         `json:"contextItems"`
}

type ChatDetail struct {
	Chat     model.Chat      `json:"chat"`
	Messages []model.Message `json:"messages"`
}

func NewChatService(
	chats ChatStore,
	messages MessageStore,
	retriever ContextRetriever,
	generator ai.Generator,
	publisher TurnPublisher,
	historyCache HistoryCache,
	cfg ChatConfig,
	logger *slog.Logger,
) *ChatService {
	if cfg.ContextK <= 0 {
		cfg.ContextK = 5
	}
	if cfg.TitleChars <= 0 || cfg.TitleChars > 100 {
		cfg.TitleChars = 50
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		chats:        chats,
		messages:     messages,
		retriever:    retriever,
		generator:    generator,
		publisher:    publisher,
		historyCache: historyCache,
		cfg:          cfg,
		logger:       logger,
	}
}

// turn accumulates one streamed response and guarantees the persistence
// callback runs at most once, whichever of stream end and cancellation
// reaches finish first.
type turn struct {
	ctx context.Context

	mu     sync.Mutex
	buf    strings.Builder
	closed bool

	saved    atomic.Bool
	done     chan struct{}
	state    StreamState
	response string

	persist func(state StreamState, response string)
}

func newTurn(ctx context.Context, persist func(StreamState, string)) *turn {
	return &turn{ctx: ctx, done: make(chan struct{}), persist: persist}
}

// token forwards tok and appends it, unless the turn is over or the request
// has been cancelled.
func (t *turn) token(tok string, forward func(string) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errTurnClosed
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if forward != nil {
		if err := forward(tok); err != nil {
			return err
		}
	}
	t.buf.WriteString(tok)
	return nil
}

func (t *turn) finish(state StreamState) {
	if !t.saved.CompareAndSwap(false, true) {
		return
	}
	defer close(t.done)

	t.mu.Lock()
	t.closed = true
	t.response = t.buf.String()
	t.mu.Unlock()

	t.state = state
	if state != StateFailed {
		t.persist(state, t.response)
	}
}

// StreamChat runs one chat turn: resolve the chat, retrieve context, stream
// the answer through onToken, then persist the turn exactly once. Cancelling
// ctx stops the stream and persists what was received so far.
func (s *ChatService) StreamChat(ctx context.Context, input StreamChatInput, onToken func(string) error) (*StreamChatResult, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, ErrMessageEmpty
	}
	if input.UserID == 0 || input.OrganizationID == 0 {
		return nil, ErrInvalidInput
	}

	chat, err := s.resolveChat(input, prompt)
	if err != nil {
		return nil, err
	}

	items := s.retriever.Retrieve(ctx, prompt, input.OrganizationID, input.UserID, s.cfg.ContextK)
	messages := promptMessages(s.cfg.SystemPrompt, augmentPrompt(prompt, items))

	t := newTurn(ctx, func(state StreamState, response string) {
		s.persistTurn(context.WithoutCancel(ctx), chat, input, prompt, response, state)
	})
	stop := context.AfterFunc(ctx, func() { t.finish(StateAborted) })

	_, streamErr := s.generator.StreamComplete(ctx, messages, func(tok string) error {
		return t.token(tok, onToken)
	})

	var startErr *ai.StreamStartError
	switch {
	case streamErr == nil:
		t.finish(StateCompleted)
	case ctx.Err() != nil:
		t.finish(StateAborted)
	case errors.As(streamErr, &startErr):
		t.finish(StateFailed)
	default:
		s.logger.Warn("generation stream ended with error",
			"chat_id", chat.ID, "err", streamErr)
		t.finish(StateAborted)
	}
	stop()
	<-t.done

	result := &StreamChatResult{
		ChatID:       chat.ID,
		State:        t.state,
		Response:     t.response,
		ContextItems: len(items),
	}
	if t.state == StateFailed {
		s.logger.Warn("generation failed to start", "chat_id", chat.ID, "err", streamErr)
		return result, fmt.Errorf("%w: %v", ErrGenerationUnavailable, streamErr)
	}
	return result, nil
}

func (s *ChatService) resolveChat(input StreamChatInput, prompt string) (*model.Chat, error) {
	if input.ChatID != 0 && !input.ForceNew {
		chat, err := s.chats.GetByIDAndUser(input.ChatID, input.UserID, input.OrganizationID)
		if err != nil {
			return nil, err
		}
		if chat == nil {
			return nil, ErrChatNotFound
		}
		return chat, nil
	}

	chat := &model.Chat{
		OrganizationID: input.OrganizationID,
		UserID:         input.UserID,
		Title:          chatTitle(prompt, s.cfg.TitleChars),
	}
	if err := s.chats.Create(chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// persistTurn saves the user message, then the assistant message when the
// response is not blank, and links both to the chat. Failures are logged.
func (s *ChatService) persistTurn(ctx context.Context, chat *model.Chat, input StreamChatInput, prompt, response string, state StreamState) {
	log := s.logger.With("chat_id", chat.ID, "state", string(state))

	userMsg := &model.Message{
		OrganizationID: input.OrganizationID,
		UserID:         input.UserID,
		Role:           model.MessageRoleUser,
		Content:        prompt,
	}
	if err := s.messages.Create(userMsg); err != nil {
		log.Warn("persist user message failed", "err", err)
		return
	}
	linked := []*model.Message{userMsg}

	if strings.TrimSpace(response) != "" {
		assistantMsg := &model.Message{
			OrganizationID: input.OrganizationID,
			UserID:         input.UserID,
			Role:           model.MessageRoleAssistant,
			Content:        response,
		}
		if err := s.messages.Create(assistantMsg); err != nil {
			log.Warn("persist assistant message failed", "err", err)
		} else {
			linked = append(linked, assistantMsg)
		}
	}

	if err := s.chats.AppendMessages(chat.ID, linked...); err != nil {
		log.Warn("link messages to chat failed", "err", err)
	}
	s.invalidateHistory(ctx, chat.ID)

	if s.publisher == nil {
		return
	}
	job := model.TurnIndexJob{
		UserID:         input.UserID,
		OrganizationID: input.OrganizationID,
		ChatID:         chat.ID,
		Prompt:         prompt,
		Response:       response,
	}
	if err := s.publisher.PublishTurn(ctx, job); err != nil {
		log.Warn("publish turn index job failed", "err", err)
	}
}

func (s *ChatService) invalidateHistory(ctx context.Context, chatID uint) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.MarkDirty(ctx, chatID)
	_ = s.historyCache.DeleteHistory(ctx, chatID)
}

func (s *ChatService) ListChats(userID, orgID uint) ([]model.Chat, error) {
	if userID == 0 || orgID == 0 {
		return nil, ErrInvalidInput
	}
	return s.chats.ListByUser(userID, orgID, 0)
}

const (
	defaultRecentChats = 10
	maxRecentChats     = 50
)

// RecentChats returns the user's most recently active chats.
func (s *ChatService) RecentChats(userID, orgID uint, limit int) ([]model.Chat, error) {
	if userID == 0 || orgID == 0 {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = defaultRecentChats
	}
	return s.chats.ListByUser(userID, orgID, min(limit, maxRecentChats))
}

func (s *ChatService) RenameChat(userID, orgID, chatID uint, title string) (*model.Chat, error) {
	title = chatTitle(title, s.cfg.TitleChars)
	if userID == 0 || orgID == 0 || chatID == 0 || title == "" {
		return nil, ErrInvalidInput
	}
	chat, err := s.chats.GetByIDAndUser(chatID, userID, orgID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	if err := s.chats.UpdateTitle(chatID, title); err != nil {
		return nil, err
	}
	chat.Title = title
	return chat, nil
}

// GetChat returns the chat and its messages, served from the history cache
// unless a recent write marked it dirty.
func (s *ChatService) GetChat(ctx context.Context, userID, orgID, chatID uint) (*ChatDetail, error) {
	if userID == 0 || orgID == 0 || chatID == 0 {
		return nil, ErrInvalidInput
	}
	chat, err := s.chats.GetByIDAndUser(chatID, userID, orgID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, chatID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, chatID); cacheErr == nil && hit {
				return &ChatDetail{Chat: *chat, Messages: cached}, nil
			}
		}
	}

	messages, err := s.messages.ListByChatID(chatID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, chatID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, chatID, messages)
		}
	}
	return &ChatDetail{Chat: *chat, Messages: messages}, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, userID, orgID, chatID uint) error {
	if userID == 0 || orgID == 0 || chatID == 0 {
		return ErrInvalidInput
	}
	chat, err := s.chats.GetByIDAndUser(chatID, userID, orgID)
	if err != nil {
		return err
	}
	if chat == nil {
		return ErrChatNotFound
	}
	if err := s.chats.DeleteByIDAndUser(chatID, userID, orgID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, chatID)
	}
	return nil
}
