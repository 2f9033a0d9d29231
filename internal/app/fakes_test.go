package app

import (
	"context"
	"sort"
	"strings"
	"sync"

	"orgrag/internal/ai"
	"orgrag/internal/model"
	"orgrag/internal/vectorstore"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if e.failOn[text] {
		return nil
	}
	return []float32{float32(len(text)), 1}
}

type fakeVectorStore struct {
	mu        sync.Mutex
	upserts   map[string][]vectorstore.StoredItem
	results   map[string][]vectorstore.ContextItem
	deleted   map[string][]string
	deleteErr error
	upsertErr error
	calls     []string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		upserts: map[string][]vectorstore.StoredItem{},
		results: map[string][]vectorstore.ContextItem{},
		deleted: map[string][]string{},
	}
}

func (s *fakeVectorStore) Upsert(_ context.Context, collection string, items []vectorstore.StoredItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "upsert")
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts[collection] = append(s.upserts[collection], items...)
	return nil
}

func (s *fakeVectorStore) Query(_ context.Context, collection string, _ []float32, k int) []vectorstore.ContextItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]vectorstore.ContextItem(nil), s.results[collection]...)
	if len(items) > k {
		items = items[:k]
	}
	return items
}

func (s *fakeVectorStore) Delete(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete")
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted[collection] = append(s.deleted[collection], ids...)
	return nil
}

func (s *fakeVectorStore) upserted(collection string) []vectorstore.StoredItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vectorstore.StoredItem(nil), s.upserts[collection]...)
}

type fakeRetriever struct {
	items []vectorstore.ContextItem
}

func (r *fakeRetriever) Retrieve(context.Context, string, uint, uint, int) []vectorstore.ContextItem {
	return r.items
}

// fakeGenerator streams tokens in order. A non-nil startErr fails the stream
// before any token is sent.
type fakeGenerator struct {
	tokens   []string
	startErr error
	midErr   error
	complete string

	mu       sync.Mutex
	messages [][]ai.ChatMessage
}

func (g *fakeGenerator) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	g.mu.Lock()
	g.messages = append(g.messages, messages)
	g.mu.Unlock()
	if g.startErr != nil {
		return "", g.startErr
	}
	return g.complete, nil
}

func (g *fakeGenerator) StreamComplete(_ context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	g.mu.Lock()
	g.messages = append(g.messages, messages)
	g.mu.Unlock()
	if g.startErr != nil {
		return "", &ai.StreamStartError{Err: g.startErr}
	}
	var b strings.Builder
	for _, tok := range g.tokens {
		if err := onChunk(tok); err != nil {
			return b.String(), err
		}
		b.WriteString(tok)
	}
	if g.midErr != nil {
		return b.String(), g.midErr
	}
	return b.String(), nil
}

type fakeChatStore struct {
	mu       sync.Mutex
	nextID   uint
	chats    map[uint]*model.Chat
	appended map[uint][][]*model.Message
	deleted  []uint
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{chats: map[uint]*model.Chat{}, appended: map[uint][][]*model.Message{}}
}

func (s *fakeChatStore) Create(chat *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	chat.ID = s.nextID
	cp := *chat
	s.chats[chat.ID] = &cp
	return nil
}

func (s *fakeChatStore) GetByIDAndUser(chatID, userID, orgID uint) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID || chat.OrganizationID != orgID {
		return nil, nil
	}
	cp := *chat
	return &cp, nil
}

// ListByUser orders newest id first, standing in for updated_at.
func (s *fakeChatStore) ListByUser(userID, orgID uint, limit int) ([]model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chat
	for _, c := range s.chats {
		if c.UserID == userID && c.OrganizationID == orgID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeChatStore) UpdateTitle(chatID uint, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		chat.Title = title
	}
	return nil
}

func (s *fakeChatStore) AppendMessages(chatID uint, messages ...*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended[chatID] = append(s.appended[chatID], messages)
	return nil
}

func (s *fakeChatStore) DeleteByIDAndUser(chatID, _, _ uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
	s.deleted = append(s.deleted, chatID)
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	nextID   uint
	created  []model.Message
	listed   int
	byChatID map[uint][]model.Message
}

func (s *fakeMessageStore) Create(message *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = s.nextID
	s.created = append(s.created, *message)
	return nil
}

func (s *fakeMessageStore) ListByChatID(chatID uint, _ int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed++
	return s.byChatID[chatID], nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []model.TurnIndexJob
}

func (p *fakePublisher) PublishTurn(_ context.Context, job model.TurnIndexJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

type fakeHistoryCache struct {
	mu      sync.Mutex
	history map[uint][]model.Message
	dirty   map[uint]bool
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{history: map[uint][]model.Message{}, dirty: map[uint]bool{}}
}

func (c *fakeHistoryCache) GetHistory(_ context.Context, chatID uint) ([]model.Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.history[chatID]
	return msgs, ok, nil
}

func (c *fakeHistoryCache) SetHistory(_ context.Context, chatID uint, messages []model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[chatID] = messages
	return nil
}

func (c *fakeHistoryCache) DeleteHistory(_ context.Context, chatID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, chatID)
	return nil
}

func (c *fakeHistoryCache) MarkDirty(_ context.Context, chatID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[chatID] = true
	return nil
}

func (c *fakeHistoryCache) IsDirty(_ context.Context, chatID uint) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[chatID], nil
}

type fakeDocumentStore struct {
	mu        sync.Mutex
	nextID    uint
	docs      map[uint]*model.Document
	createErr error
	deleted   []uint
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: map[uint]*model.Document{}}
}

func (s *fakeDocumentStore) Create(doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	doc.ID = s.nextID
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *fakeDocumentStore) ListByOrganization(orgID uint) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, d := range s.docs {
		if d.OrganizationID == orgID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeDocumentStore) ExistsByFilename(orgID uint, filename string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.OrganizationID == orgID && d.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeDocumentStore) GetByIDAndOrganization(id, orgID uint) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.OrganizationID != orgID {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *fakeDocumentStore) DeleteByIDAndOrganization(id, _ uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeUserStore struct {
	nextID uint
	users  map[uint]*model.User
	orgs   *fakeOrgStore
}

func newFakeUserStore(orgs *fakeOrgStore) *fakeUserStore {
	return &fakeUserStore{users: map[uint]*model.User{}, orgs: orgs}
}

func (s *fakeUserStore) Create(user *model.User) error {
	s.nextID++
	user.ID = s.nextID
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *fakeUserStore) CreateWithOrganization(org *model.Organization, user *model.User) error {
	s.orgs.add(org)
	user.OrganizationID = org.ID
	return s.Create(user)
}

func (s *fakeUserStore) GetByUsername(username string) (*model.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) GetByEmail(email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) GetByID(id uint) (*model.User, error) {
	return s.users[id], nil
}

type fakeOrgStore struct {
	nextID uint
	orgs   map[uint]*model.Organization
}

func newFakeOrgStore() *fakeOrgStore {
	return &fakeOrgStore{orgs: map[uint]*model.Organization{}}
}

func (s *fakeOrgStore) add(org *model.Organization) {
	s.nextID++
	org.ID = s.nextID
	cp := *org
	s.orgs[org.ID] = &cp
}

func (s *fakeOrgStore) GetByID(id uint) (*model.Organization, error) {
	return s.orgs[id], nil
}

func (s *fakeOrgStore) UpdateName(id uint, name string) error {
	if org, ok := s.orgs[id]; ok {
		org.Name = name
	}
	return nil
}

func (s *fakeOrgStore) GetByName(name string) (*model.Organization, error) {
	for _, o := range s.orgs {
		if o.Name == name {
			return o, nil
		}
	}
	return nil, nil
}
