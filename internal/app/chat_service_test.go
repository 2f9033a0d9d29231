package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrag/internal/model"
	"orgrag/internal/vectorstore"
)

type chatFixture struct {
	chats     *fakeChatStore
	messages  *fakeMessageStore
	publisher *fakePublisher
	cache     *fakeHistoryCache
	generator *fakeGenerator
	service   *ChatService
}

func newChatFixture(gen *fakeGenerator, items ...vectorstore.ContextItem) *chatFixture {
	f := &chatFixture{
		chats:     newFakeChatStore(),
		messages:  &fakeMessageStore{byChatID: map[uint][]model.Message{}},
		publisher: &fakePublisher{},
		cache:     newFakeHistoryCache(),
		generator: gen,
	}
	f.service = NewChatService(f.chats, f.messages, &fakeRetriever{items: items}, gen, f.publisher, f.cache, ChatConfig{}, nil)
	return f
}

func TestStreamChat_Completed(t *testing.T) {
	f := newChatFixture(&fakeGenerator{tokens: []string{"Hel", "lo"}},
		vectorstore.ContextItem{Document: "ctx", Source: SourceKnowledgeBase})

	var streamed []string
	res, err := f.service.StreamChat(context.Background(), StreamChatInput{
		UserID: 3, OrganizationID: 1, Prompt: "  hi there  ",
	}, func(tok string) error {
		streamed = append(streamed, tok)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, "Hello", res.Response)
	assert.Equal(t, 1, res.ContextItems)
	assert.Equal(t, []string{"Hel", "lo"}, streamed)

	require.Len(t, f.messages.created, 2)
	assert.Equal(t, model.MessageRoleUser, f.messages.created[0].Role)
	assert.Equal(t, "hi there", f.messages.created[0].Content)
	assert.Equal(t, model.MessageRoleAssistant, f.messages.created[1].Role)
	assert.Equal(t, "Hello", f.messages.created[1].Content)
	require.Len(t, f.chats.appended[res.ChatID], 1)
	assert.Len(t, f.chats.appended[res.ChatID][0], 2)

	require.Len(t, f.publisher.jobs, 1)
	assert.Equal(t, res.ChatID, f.publisher.jobs[0].ChatID)
	assert.Equal(t, "Hello", f.publisher.jobs[0].Response)
	assert.True(t, f.cache.dirty[res.ChatID])

	chat := f.chats.chats[res.ChatID]
	require.NotNil(t, chat)
	assert.Equal(t, "hi there", chat.Title)

	require.Len(t, f.generator.messages, 1)
	sent := f.generator.messages[0]
	require.Len(t, sent, 2)
	assert.Equal(t, model.MessageRoleSystem, sent[0].Role)
	assert.Equal(t, "Context 1 (knowledge_base): ctx\n\nUser: hi there", sent[1].Content)
}

func TestStreamChat_BlankResponseSavesOnlyPrompt(t *testing.T) {
	f := newChatFixture(&fakeGenerator{tokens: []string{"  ", "\n"}})

	res, err := f.service.StreamChat(context.Background(), StreamChatInput{UserID: 3, OrganizationID: 1, Prompt: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)

	require.Len(t, f.messages.created, 1)
	assert.Equal(t, model.MessageRoleUser, f.messages.created[0].Role)
}

func TestStreamChat_CancelPersistsPartialOnce(t *testing.T) {
	f := newChatFixture(&fakeGenerator{tokens: []string{"a", "b", "c", "d", "e"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sent := 0
	res, err := f.service.StreamChat(ctx, StreamChatInput{UserID: 3, OrganizationID: 1, Prompt: "hi"}, func(string) error {
		sent++
		if sent == 3 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, "abc", res.Response)
	assert.Equal(t, 3, sent)

	require.Len(t, f.messages.created, 2)
	assert.Equal(t, "abc", f.messages.created[1].Content)
	assert.Len(t, f.chats.appended[res.ChatID], 1)
	assert.Len(t, f.publisher.jobs, 1)
}

func TestStreamChat_MidStreamErrorAborts(t *testing.T) {
	f := newChatFixture(&fakeGenerator{tokens: []string{"par", "tial"}, midErr: errors.New("connection reset")})

	res, err := f.service.StreamChat(context.Background(), StreamChatInput{UserID: 3, OrganizationID: 1, Prompt: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, "partial", res.Response)
	assert.Len(t, f.messages.created, 2)
}

func TestStreamChat_StartFailure(t *testing.T) {
	f := newChatFixture(&fakeGenerator{startErr: errors.New("connection refused")})

	res, err := f.service.StreamChat(context.Background(), StreamChatInput{UserID: 3, OrganizationID: 1, Prompt: "hi"}, nil)
	require.ErrorIs(t, err, ErrGenerationUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, StateFailed, res.State)

	assert.Empty(t, f.messages.created)
	assert.Empty(t, f.publisher.jobs)
}

func TestStreamChat_Validation(t *testing.T) {
	f := newChatFixture(&fakeGenerator{})

	_, err := f.service.StreamChat(context.Background(), StreamChatInput{UserID: 3, OrganizationID: 1, Prompt: "   "}, nil)
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = f.service.StreamChat(context.Background(), StreamChatInput{OrganizationID: 1, Prompt: "hi"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, f.generator.messages)
}

func TestStreamChat_ChatResolution(t *testing.T) {
	f := newChatFixture(&fakeGenerator{tokens: []string{"ok"}})
	existing := &model.Chat{OrganizationID: 1, UserID: 3, Title: "old"}
	require.NoError(t, f.chats.Create(existing))

	res, err := f.service.StreamChat(context.Background(), StreamChatInput{
		UserID: 3, OrganizationID: 1, ChatID: existing.ID, Prompt: "again",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.ChatID)
	assert.Len(t, f.chats.chats, 1)

	res, err = f.service.StreamChat(context.Background(), StreamChatInput{
		UserID: 3, OrganizationID: 1, ChatID: existing.ID, ForceNew: true, Prompt: "fresh",
	}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, res.ChatID)
	assert.Len(t, f.chats.chats, 2)

	_, err = f.service.StreamChat(context.Background(), StreamChatInput{
		UserID: 4, OrganizationID: 1, ChatID: existing.ID, Prompt: "not mine",
	}, nil)
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestGetChat_UsesCacheUnlessDirty(t *testing.T) {
	f := newChatFixture(&fakeGenerator{})
	chat := &model.Chat{OrganizationID: 1, UserID: 3, Title: "t"}
	require.NoError(t, f.chats.Create(chat))
	f.messages.byChatID[chat.ID] = []model.Message{{ID: 1, Content: "from db"}}

	detail, err := f.service.GetChat(context.Background(), 3, 1, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "from db", detail.Messages[0].Content)
	assert.Equal(t, 1, f.messages.listed)

	detail, err = f.service.GetChat(context.Background(), 3, 1, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "from db", detail.Messages[0].Content)
	assert.Equal(t, 1, f.messages.listed)

	require.NoError(t, f.cache.MarkDirty(context.Background(), chat.ID))
	_, err = f.service.GetChat(context.Background(), 3, 1, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.messages.listed)

	_, err = f.service.GetChat(context.Background(), 9, 1, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestDeleteChat(t *testing.T) {
	f := newChatFixture(&fakeGenerator{})
	chat := &model.Chat{OrganizationID: 1, UserID: 3, Title: "t"}
	require.NoError(t, f.chats.Create(chat))
	require.NoError(t, f.cache.SetHistory(context.Background(), chat.ID, []model.Message{{ID: 1}}))

	assert.ErrorIs(t, f.service.DeleteChat(context.Background(), 4, 1, chat.ID), ErrChatNotFound)
	require.NoError(t, f.service.DeleteChat(context.Background(), 3, 1, chat.ID))

	assert.Equal(t, []uint{chat.ID}, f.chats.deleted)
	_, hit, _ := f.cache.GetHistory(context.Background(), chat.ID)
	assert.False(t, hit)
}

func TestRecentChats(t *testing.T) {
	f := newChatFixture(&fakeGenerator{})
	for i := 0; i < 12; i++ {
		require.NoError(t, f.chats.Create(&model.Chat{OrganizationID: 1, UserID: 3, Title: "t"}))
	}
	require.NoError(t, f.chats.Create(&model.Chat{OrganizationID: 1, UserID: 4, Title: "other user"}))

	chats, err := f.service.RecentChats(3, 1, 0)
	require.NoError(t, err)
	require.Len(t, chats, 10)
	assert.Equal(t, uint(12), chats[0].ID)

	chats, err = f.service.RecentChats(3, 1, 2)
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	all, err := f.service.ListChats(3, 1)
	require.NoError(t, err)
	assert.Len(t, all, 12)

	_, err = f.service.RecentChats(0, 1, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRenameChat(t *testing.T) {
	f := newChatFixture(&fakeGenerator{})
	chat := &model.Chat{OrganizationID: 1, UserID: 3, Title: "old"}
	require.NoError(t, f.chats.Create(chat))

	renamed, err := f.service.RenameChat(3, 1, chat.ID, "  Budget review  ")
	require.NoError(t, err)
	assert.Equal(t, "Budget review", renamed.Title)
	assert.Equal(t, "Budget review", f.chats.chats[chat.ID].Title)

	_, err = f.service.RenameChat(4, 1, chat.ID, "stolen")
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.Equal(t, "Budget review", f.chats.chats[chat.ID].Title)

	_, err = f.service.RenameChat(3, 1, chat.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
