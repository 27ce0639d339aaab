package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/metrics"
)

// DefaultSummaryTimeout bounds the summarizer call made for each referral.
const DefaultSummaryTimeout = 15 * time.Second

// Recorder saves a referral when a user picks the survey or an appointment
// at the recommendation step.
type Recorder struct {
	store      domain.ReferralStore
	summarizer domain.Summarizer
	timeout    time.Duration
	now        func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSummaryTimeout overrides DefaultSummaryTimeout. Zero or less disables
// the bound.
func WithSummaryTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.timeout = d }
}

// NewRecorder creates a new Recorder. summarizer may be nil, in which case
// referrals carry no summary.
func NewRecorder(store domain.ReferralStore, summarizer domain.Summarizer, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:      store,
		summarizer: summarizer,
		timeout:    DefaultSummaryTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores a referral for session. The session's responses must
// already include the recommendation choice.
func (r *Recorder) Record(ctx context.Context, session *domain.Session, kind domain.ReferralKind) (*domain.Referral, error) {
	if session == nil || session.ID == "" {
		return nil, fmt.Errorf("referral: missing session")
	}

	eligible := flow.Eligible(session.Responses)

	var note string
	if r.summarizer != nil {
		sctx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		var err error
		note, err = r.summarizer.Summarize(sctx, domain.SummaryInput{
			SessionID: session.ID,
			UserID:    session.UserID,
			Step:      session.Step,
			Responses: session.Responses.Clone(),
			Eligible:  eligible,
		})
		if err != nil {
			return nil, fmt.Errorf("referral: summarize: %w", err)
		}
	}

	now := r.now()
	ref := &domain.Referral{
		ID:        domain.ReferralID(ulid.Make().String()),
		SessionID: session.ID,
		UserID:    session.UserID,
		Kind:      kind,
		Choice:    session.Responses.Get(domain.StepRecommendation),
		Eligible:  eligible,
		Responses: session.Responses.Clone(),
		Summary:   note,
		CreatedAt: now,
	}

	if err := r.store.AppendReferral(ctx, ref); err != nil {
		return nil, fmt.Errorf("referral: append failed: %w", err)
	}

	metrics.Referrals.WithLabelValues(string(kind)).Inc()
	return ref, nil
}
