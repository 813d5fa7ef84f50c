package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bisikin/server/internal/errs"
	"bisikin/server/internal/models"
)

// MemoryMembershipStore mirrors the Postgres membership semantics, including
// the admin-floor checks, under one mutex.
type MemoryMembershipStore struct {
	mu   sync.Mutex
	rows map[string]*models.Membership // keyed by groupID+"/"+userID

	// users lets ListMembers join the roster; set by tests that need it.
	users *MemoryUserStore
}

// SetUserStore attaches the directory used for roster joins.
func (s *MemoryMembershipStore) SetUserStore(users *MemoryUserStore) {
	s.users = users
}

func memberKey(groupID, userID string) string {
	return groupID + "/" + userID
}

func (s *MemoryMembershipStore) Upsert(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	m.Status = models.StatusActive
	m.JoinedAt = now
	m.LastReadAt = now
	m.LeftAt = nil
	m.RemovedAt = nil
	m.RemovedBy = nil
	clone := *m
	s.rows[memberKey(m.GroupID, m.UserID)] = &clone
	return nil
}

func (s *MemoryMembershipStore) Get(_ context.Context, groupID, userID string) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rows[memberKey(groupID, userID)]; ok {
		clone := *m
		return &clone, nil
	}
	return nil, errs.NotFound("membership")
}

func (s *MemoryMembershipStore) ListActive(_ context.Context, groupID string) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listActiveLocked(groupID), nil
}

func (s *MemoryMembershipStore) listActiveLocked(groupID string) []models.Membership {
	members := []models.Membership{}
	for _, m := range s.rows {
		if m.GroupID == groupID && m.Status == models.StatusActive {
			members = append(members, *m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })
	return members
}

func (s *MemoryMembershipStore) ListMembers(ctx context.Context, groupID string) ([]models.MemberWithUser, error) {
	active, err := s.ListActive(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members := []models.MemberWithUser{}
	for _, m := range active {
		entry := models.MemberWithUser{Membership: m}
		if s.users != nil {
			if u, err := s.users.GetByID(ctx, m.UserID); err == nil {
				entry.User = u.ToResponse()
			}
		}
		members = append(members, entry)
	}
	return members, nil
}

func (s *MemoryMembershipStore) ActiveGroupIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for _, m := range s.rows {
		if m.UserID == userID && m.Status == models.StatusActive {
			ids = append(ids, m.GroupID)
		}
	}
	return ids, nil
}

func (s *MemoryMembershipStore) Promote(_ context.Context, groupID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[memberKey(groupID, targetID)]
	if !ok || m.Status != models.StatusActive {
		return errs.NotFound("active membership")
	}
	m.Role = models.RoleAdmin
	return nil
}

func (s *MemoryMembershipStore) Demote(_ context.Context, groupID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[memberKey(groupID, targetID)]
	if !ok {
		return errs.NotFound("membership")
	}
	if !m.IsActiveAdmin() {
		return errs.Validation("target is not an active admin")
	}
	if s.countLocked(groupID, true) <= 1 {
		return errs.Invariant("group would be left without an active admin")
	}
	m.Role = models.RoleMember
	return nil
}

func (s *MemoryMembershipStore) Remove(_ context.Context, groupID, targetID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[memberKey(groupID, targetID)]
	if !ok || m.Status != models.StatusActive {
		return errs.NotFound("active membership")
	}
	now := time.Now()
	m.Status = models.StatusRemoved
	m.RemovedAt = &now
	m.RemovedBy = &actorID
	return nil
}

func (s *MemoryMembershipStore) Leave(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[memberKey(groupID, userID)]
	if !ok || m.Status != models.StatusActive {
		return errs.NotFound("active membership")
	}
	if m.IsActiveAdmin() {
		admins := s.countLocked(groupID, true)
		members := s.countLocked(groupID, false)
		if admins == 1 && members > 1 {
			return errs.Invariant("sole admin cannot leave while other members remain")
		}
	}
	now := time.Now()
	m.Status = models.StatusLeft
	m.LeftAt = &now
	return nil
}

func (s *MemoryMembershipStore) UpdateLastRead(_ context.Context, groupID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[memberKey(groupID, userID)]
	if !ok || m.Status != models.StatusActive {
		return errs.NotFound("active membership")
	}
	m.LastReadAt = at
	return nil
}

func (s *MemoryMembershipStore) countLocked(groupID string, adminsOnly bool) int {
	count := 0
	for _, m := range s.rows {
		if m.GroupID != groupID || m.Status != models.StatusActive {
			continue
		}
		if adminsOnly && m.Role != models.RoleAdmin {
			continue
		}
		count++
	}
	return count
}
