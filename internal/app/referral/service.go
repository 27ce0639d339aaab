package referral

import (
	"context"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

// Service holds the logic of reading referrals
type Service struct {
	store domain.ReferralStore
}

// NewService creates a referral service from a ReferralStore
func NewService(store domain.ReferralStore) *Service {
	return &Service{
		store: store,
	}
}

// ListReferrals returns the last `limit` referrals, newest first.
// If limit <= 0, a reasonable default value is used.
func (s *Service) ListReferrals(ctx context.Context, limit int) ([]*domain.Referral, error) {
	if s.store == nil {
		return []*domain.Referral{}, nil
	}

	if limit <= 0 {
		limit = 20
	}

	return s.store.ListReferrals(ctx, limit)
}
