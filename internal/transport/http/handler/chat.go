package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"orgrag/internal/app"
	"orgrag/internal/model"
	"orgrag/internal/transport/http/middleware"
	"orgrag/internal/transport/http/response"
)

type ChatService interface {
	StreamChat(ctx context.Context, input app.StreamChatInput, onToken func(string) error) (*app.StreamChatResult, error)
	ListChats(userID, orgID uint) ([]model.Chat, error)
	RecentChats(userID, orgID uint, limit int) ([]model.Chat, error)
	RenameChat(userID, orgID, chatID uint, title string) (*model.Chat, error)
	GetChat(ctx context.Context, userID, orgID, chatID uint) (*app.ChatDetail, error)
	DeleteChat(ctx context.Context, userID, orgID, chatID uint) error
}

type ChatHandler struct {
	chatService ChatService
}

type ChatRequest struct {
	Prompt  string `json:"prompt" binding:"required"`
	ChatID  uint   `json:"chatId"`
	NewChat bool   `json:"newChat"`
}

type RenameChatRequest struct {
	Title string `json:"title" binding:"required"`
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat streams the answer as server-sent events: one data frame per token,
// then a done or error event. Errors raised before the first frame are sent
// as a plain JSON response.
func (h *ChatHandler) Chat(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	stream, ok := newEventStream(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	result, err := h.chatService.StreamChat(c.Request.Context(), app.StreamChatInput{
		UserID:         identity.UserID,
		OrganizationID: identity.OrganizationID,
		ChatID:         req.ChatID,
		ForceNew:       req.NewChat,
		Prompt:         req.Prompt,
	}, func(tok string) error {
		return stream.send("", gin.H{"token": tok})
	})

	if errors.Is(err, app.ErrGenerationUnavailable) && result != nil {
		_ = stream.send("error", gin.H{"chatId": result.ChatID, "state": result.State, "message": "generation backend unavailable"})
		return
	}
	if err != nil {
		if stream.started {
			_ = stream.send("error", gin.H{"message": "chat failed"})
			return
		}
		writeChatError(c, err, "chat failed")
		return
	}
	_ = stream.send("done", gin.H{"chatId": result.ChatID, "state": result.State})
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chats, err := h.chatService.ListChats(identity.UserID, identity.OrganizationID)
	if err != nil {
		writeChatError(c, err, "list chats failed")
		return
	}
	response.OK(c, chats)
}

// RecentChats takes an optional ?limit=, capped by the service.
func (h *ChatHandler) RecentChats(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
		return
	}

	chats, err := h.chatService.RecentChats(identity.UserID, identity.OrganizationID, limit)
	if err != nil {
		writeChatError(c, err, "list recent chats failed")
		return
	}
	response.OK(c, chats)
}

func (h *ChatHandler) RenameChat(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	chatID, ok := uintParam(c, "chatId")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chat id")
		return
	}
	var req RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	chat, err := h.chatService.RenameChat(identity.UserID, identity.OrganizationID, chatID, req.Title)
	if err != nil {
		writeChatError(c, err, "rename chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	chatID, ok := uintParam(c, "chatId")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chat id")
		return
	}

	detail, err := h.chatService.GetChat(c.Request.Context(), identity.UserID, identity.OrganizationID, chatID)
	if err != nil {
		writeChatError(c, err, "get chat failed")
		return
	}
	response.OK(c, detail)
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	chatID, ok := uintParam(c, "chatId")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chat id")
		return
	}

	if err := h.chatService.DeleteChat(c.Request.Context(), identity.UserID, identity.OrganizationID, chatID); err != nil {
		writeChatError(c, err, "delete chat failed")
		return
	}
	response.OK(c, gin.H{"deleted_chat_id": chatID})
}

func writeChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// eventStream writes SSE frames. Headers go out with the first frame so a
// request that fails early can still get a JSON error.
type eventStream struct {
	c       *gin.Context
	flusher http.Flusher
	started bool
}

func newEventStream(c *gin.Context) (*eventStream, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &eventStream{c: c, flusher: flusher}, true
}

func (s *eventStream) send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload failed: %w", err)
	}
	if !s.started {
		h := s.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}

	frame := "data: " + string(data) + "\n\n"
	if event != "" {
		frame = "event: " + event + "\n" + frame
	}
	if _, err := s.c.Writer.Write([]byte(frame)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
