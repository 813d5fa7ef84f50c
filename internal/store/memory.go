package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bisikin/server/internal/errs"
	"bisikin/server/internal/models"

	"github.com/google/uuid"
)

// Memory bundles map-backed store implementations with the same semantics as
// the Postgres ones. Used by tests and by local development without a
// database.
type Memory struct {
	Users       *MemoryUserStore
	Messages    *MemoryMessageStore
	Groups      *MemoryGroupStore
	Memberships *MemoryMembershipStore
}

// NewMemory builds the bundle. The group store recounts against the
// membership store, mirroring the SQL subselects.
func NewMemory() *Memory {
	users := &MemoryUserStore{users: map[string]*models.User{}}
	memberships := &MemoryMembershipStore{rows: map[string]*models.Membership{}}
	memberships.SetUserStore(users)
	return &Memory{
		Users:       users,
		Messages:    &MemoryMessageStore{direct: map[string]*models.DirectMessage{}, group: map[string]*models.GroupMessage{}},
		Groups:      &MemoryGroupStore{groups: map[string]*models.Group{}, memberships: memberships},
		Memberships: memberships,
	}
}

// MemoryUserStore is a map-backed identity directory.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func (s *MemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return errs.Validation("username already taken")
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *MemoryUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, errs.NotFound("user")
}

func (s *MemoryUserStore) GetByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, errs.NotFound("user")
}

// MemoryMessageStore keeps both variants in separate maps; the polymorphic
// collection is an artifact of SQL, not of the model.
type MemoryMessageStore struct {
	mu     sync.RWMutex
	direct map[string]*models.DirectMessage
	group  map[string]*models.GroupMessage
}

func (s *MemoryMessageStore) CreateDirect(_ context.Context, msg *models.DirectMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()
	if msg.DeletedFor == nil {
		msg.DeletedFor = []string{}
	}
	clone := *msg
	s.direct[msg.ID] = &clone
	return nil
}

func (s *MemoryMessageStore) CreateGroup(_ context.Context, msg *models.GroupMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()
	if msg.Type == "" {
		msg.Type = models.GroupMessageUser
	}
	if msg.DeletedFor == nil {
		msg.DeletedFor = []string{}
	}
	clone := *msg
	s.group[msg.ID] = &clone
	return nil
}

func (s *MemoryMessageStore) GetDirect(_ context.Context, id string) (*models.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.direct[id]; ok {
		clone := *m
		return &clone, nil
	}
	return nil, errs.NotFound("message")
}

func (s *MemoryMessageStore) GetGroup(_ context.Context, id string) (*models.GroupMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.group[id]; ok {
		clone := *m
		return &clone, nil
	}
	return nil, errs.NotFound("message")
}

func (s *MemoryMessageStore) UpdateDirect(_ context.Context, msg *models.DirectMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.direct[msg.ID]; !ok {
		return errs.NotFound("message")
	}
	clone := *msg
	s.direct[msg.ID] = &clone
	return nil
}

func (s *MemoryMessageStore) UpdateGroup(_ context.Context, msg *models.GroupMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.group[msg.ID]; !ok {
		return errs.NotFound("message")
	}
	clone := *msg
	s.group[msg.ID] = &clone
	return nil
}

func (s *MemoryMessageStore) AddDeletedFor(_ context.Context, messageID, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.direct[messageID]; ok {
		if !m.DeletedForViewer(viewerID) {
			m.DeletedFor = append(m.DeletedFor, viewerID)
		}
		return nil
	}
	if m, ok := s.group[messageID]; ok {
		if !m.DeletedForViewer(viewerID) {
			m.DeletedFor = append(m.DeletedFor, viewerID)
		}
		return nil
	}
	return errs.NotFound("message")
}

func (s *MemoryMessageStore) ListDirect(_ context.Context, userID, peerID string, limit, offset int) ([]models.DirectMessage, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := []models.DirectMessage{}
	for _, m := range s.direct {
		between := (m.SenderID == userID && m.ReceiverID == peerID) ||
			(m.SenderID == peerID && m.ReceiverID == userID)
		if between && !m.DeletedForViewer(userID) {
			matches = append(matches, *m)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	total := len(matches)
	return page(matches, limit, offset), total, nil
}

func (s *MemoryMessageStore) ListGroup(_ context.Context, groupID, viewerID string, limit, offset int) ([]models.GroupMessage, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := []models.GroupMessage{}
	for _, m := range s.group {
		if m.GroupID == groupID && !m.DeletedForViewer(viewerID) {
			matches = append(matches, *m)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	total := len(matches)
	return page(matches, limit, offset), total, nil
}

func (s *MemoryMessageStore) MarkDirectRead(_ context.Context, userID, peerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for _, m := range s.direct {
		if m.ReceiverID == userID && m.SenderID == peerID && !m.IsRead {
			m.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryMessageStore) UnreadDirectCount(_ context.Context, userID, peerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.direct {
		if m.ReceiverID == userID && m.SenderID == peerID && !m.IsRead && !m.DeletedForViewer(userID) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryMessageStore) UnreadGroupCount(_ context.Context, groupID, viewerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.group {
		if m.GroupID == groupID && m.Type == models.GroupMessageUser &&
			m.SenderID != viewerID && m.CreatedAt.After(since) &&
			!m.DeletedForViewer(viewerID) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryMessageStore) DirectConversations(_ context.Context, userID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPeer := map[string]*models.ConversationSummary{}
	for _, m := range s.direct {
		var peer string
		switch userID {
		case m.SenderID:
			peer = m.ReceiverID
		case m.ReceiverID:
			peer = m.SenderID
		default:
			continue
		}
		if m.DeletedForViewer(userID) {
			continue
		}
		summary, ok := byPeer[peer]
		if !ok {
			summary = &models.ConversationSummary{Type: models.ConversationDirect, PeerID: peer}
			byPeer[peer] = summary
		}
		if m.CreatedAt.After(summary.LastMessageAt) {
			summary.LastMessageAt = m.CreatedAt
		}
		if m.ReceiverID == userID && !m.IsRead {
			summary.UnreadCount++
		}
	}

	summaries := []models.ConversationSummary{}
	for _, s := range byPeer {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	return summaries, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// MemoryGroupStore keeps group summaries; Recount scans the membership store
// the same way the SQL version scans the memberships table.
type MemoryGroupStore struct {
	mu          sync.RWMutex
	groups      map[string]*models.Group
	memberships *MemoryMembershipStore
}

func (s *MemoryGroupStore) Create(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now
	clone := *group
	s.groups[group.ID] = &clone
	return nil
}

func (s *MemoryGroupStore) Get(_ context.Context, id string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.groups[id]; ok {
		clone := *g
		return &clone, nil
	}
	return nil, errs.NotFound("group")
}

func (s *MemoryGroupStore) Rename(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return errs.NotFound("group")
	}
	g.Name = name
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryGroupStore) SetLastMessage(_ context.Context, id string, at time.Time, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return errs.NotFound("group")
	}
	g.LastMessageAt = &at
	g.LastMessagePreview = preview
	g.UpdatedAt = at
	return nil
}

func (s *MemoryGroupStore) Recount(ctx context.Context, id string) error {
	active, err := s.memberships.ListActive(ctx, id)
	if err != nil {
		return err
	}
	admins := 0
	for _, m := range active {
		if m.Role == models.RoleAdmin {
			admins++
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return errs.NotFound("group")
	}
	g.MemberCount = len(active)
	g.AdminCount = admins
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryGroupStore) ListForUser(ctx context.Context, userID string) ([]models.Group, error) {
	ids, err := s.memberships.ActiveGroupIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := []models.Group{}
	for _, id := range ids {
		if g, ok := s.groups[id]; ok {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return lastActivity(groups[i]).After(lastActivity(groups[j]))
	})
	return groups, nil
}

func lastActivity(g models.Group) time.Time {
	if g.LastMessageAt != nil {
		return *g.LastMessageAt
	}
	return g.CreatedAt
}
