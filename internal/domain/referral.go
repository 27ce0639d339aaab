package domain

import "context"

// ReferralKind is the follow-up a user chose at the recommendation step.
type ReferralKind string

const (
	ReferralSurvey     ReferralKind = "survey"
	ReferralScheduling ReferralKind = "scheduling"
)

// Referral is the hand-off record produced when a user asks for the KOOS
// survey or an appointment. The care team picks these up.
type Referral struct {
	ID        ReferralID   `json:"id"`
	SessionID SessionID    `json:"session_id"`
	UserID    UserID       `json:"user_id"`
	Kind      ReferralKind `json:"kind"`
	Choice    Answer       `json:"choice"`
	Eligible  bool         `json:"eligible"`
	Responses ResponseMap  `json:"responses"`
	Summary   string       `json:"summary"`
	CreatedAt Timestamp    `json:"created_at"`
}

// ReferralStore persists referrals.
type ReferralStore interface {
	AppendReferral(ctx context.Context, referral *Referral) error
	ListReferrals(ctx context.Context, limit int) ([]*Referral, error)
}
