package billing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. A single mutex serializes every write,
// which gives per-subscription atomicity for free.
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]Subscription
	payments      map[string]Payment
	order         []uuid.UUID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[uuid.UUID]Subscription),
		payments:      make(map[string]Payment),
	}
}

func (s *MemoryStore) CreateSubscription(_ context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subscriptions {
		if existing.TenantID == sub.TenantID && existing.Status != StatusCancelled {
			return ErrSubscriptionAlreadyExists
		}
	}
	s.subscriptions[sub.ID] = sub
	s.order = append(s.order, sub.ID)
	return nil
}

func (s *MemoryStore) GetSubscription(_ context.Context, id uuid.UUID) (Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	return sub, nil
}

func (s *MemoryStore) LatestSubscription(_ context.Context, tenantID uuid.UUID, statuses ...Status) (Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range slices.Backward(s.order) {
		sub := s.subscriptions[id]
		if sub.TenantID != tenantID {
			continue
		}
		if len(statuses) == 0 || slices.Contains(statuses, sub.Status) {
			return sub, nil
		}
	}
	return Subscription{}, ErrSubscriptionNotFound
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, id uuid.UUID, fn func(sub *Subscription) error) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	if err := fn(&sub); err != nil {
		return s.subscriptions[id], err
	}
	s.subscriptions[id] = sub
	return sub, nil
}

func (s *MemoryStore) RecordPayment(_ context.Context, subID uuid.UUID, transactionID string, fn func(sub *Subscription) (Payment, error)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subID)
	}
	if _, dup := s.payments[transactionID]; dup {
		return sub, ErrDuplicateTransaction
	}

	p, err := fn(&sub)
	if err != nil {
		return s.subscriptions[subID], err
	}
	s.subscriptions[subID] = sub
	if p.ID != uuid.Nil {
		s.payments[p.TransactionID] = p
	}
	return sub, nil
}

func (s *MemoryStore) PaymentByTransaction(_ context.Context, transactionID string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[transactionID]
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, transactionID)
	}
	return p, nil
}

func (s *MemoryStore) ListPayments(_ context.Context, subID uuid.UUID) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Payment
	for _, p := range s.payments {
		if p.SubscriptionID == subID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Payment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ExpiredTrials(_ context.Context, now time.Time) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, id := range s.order {
		sub := s.subscriptions[id]
		if sub.TrialExpiredAt(now) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListActiveTenants(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, id := range s.order {
		sub := s.subscriptions[id]
		if sub.Status == StatusCancelled {
			continue
		}
		if _, ok := seen[sub.TenantID]; ok {
			continue
		}
		seen[sub.TenantID] = struct{}{}
		out = append(out, sub.TenantID)
	}
	return out, nil
}
