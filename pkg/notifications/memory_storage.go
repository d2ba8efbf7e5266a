package notifications

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage for development and tests.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[string][]Notification // tenantID -> notifications
	now           func() time.Time
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string][]Notification),
		now:           time.Now,
	}
}

func (s *MemoryStorage) Create(_ context.Context, notif Notification) error {
	if notif.ID == "" {
		return ErrMissingID
	}
	if notif.TenantID == "" {
		return ErrMissingTenantID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = s.now()
	}
	s.notifications[notif.TenantID] = append(s.notifications[notif.TenantID], notif)
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, tenantID, notifID string) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications[tenantID] {
		if n.ID == notifID {
			return n, nil
		}
	}
	return Notification{}, ErrNotificationNotFound
}

func (s *MemoryStorage) List(_ context.Context, tenantID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	filtered := []Notification{}
	for _, n := range s.notifications[tenantID] {
		if n.IsExpiredAt(now) {
			continue
		}
		if opts.OnlyUnread && n.Read {
			continue
		}
		if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, n.Kind) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, n)
	}

	slices.SortStableFunc(filtered, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start := min(opts.Offset, len(filtered))
	end := len(filtered)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, end)
	}
	return filtered[start:end], nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, tenantID string, notifIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	notifications := s.notifications[tenantID]
	for i := range notifications {
		if slices.Contains(notifIDs, notifications[i].ID) {
			notifications[i].MarkAsReadAt(now)
		}
	}
	return nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	count := 0
	for _, n := range s.notifications[tenantID] {
		if !n.Read && !n.IsExpiredAt(now) {
			count++
		}
	}
	return count, nil
}
