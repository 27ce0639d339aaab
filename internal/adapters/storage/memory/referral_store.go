package memory

import (
	"context"
	"sync"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

// ReferralStore is a simple in-memory implementation of domain.ReferralStore.
// It is NOT persistent and is only suitable for development / local mode.
type ReferralStore struct {
	mu        sync.RWMutex
	referrals []*domain.Referral
}

func NewReferralStore() *ReferralStore {
	return &ReferralStore{}
}

func (s *ReferralStore) AppendReferral(_ context.Context, referral *domain.Referral) error {
	if referral == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.referrals = append(s.referrals, referral)
	return nil
}

// ListReferrals returns the last `limit` referrals, newest first.
// If limit <= 0, returns all.
func (s *ReferralStore) ListReferrals(_ context.Context, limit int) ([]*domain.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.referrals)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*domain.Referral, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.referrals[i])
	}
	return out, nil
}
