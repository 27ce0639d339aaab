package referral_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abhishekh011/chatbotDemo/internal/adapters/storage/memory"
	"github.com/abhishekh011/chatbotDemo/internal/adapters/summary"
	"github.com/abhishekh011/chatbotDemo/internal/app/referral"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

type failingSummarizer struct{}

func (failingSummarizer) Summarize(context.Context, domain.SummaryInput) (string, error) {
	return "", errors.New("model unavailable")
}

func finishedSession() *domain.Session {
	return &domain.Session{
		ID:     "s1",
		UserID: "u1",
		Step:   domain.StepFinal,
		Responses: domain.ResponseMap{
			domain.StepPain:           domain.AnswerPainSevere,
			domain.StepTreatments:     domain.AnswerYes,
			domain.StepRecommendation: domain.AnswerTakeSurvey,
		},
	}
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReferralStore()
	rec := referral.NewRecorder(store, summary.NewTemplateSummarizer())
	svc := referral.NewService(store)

	ref, err := rec.Record(ctx, finishedSession(), domain.ReferralSurvey)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !ref.Eligible || ref.Choice != domain.AnswerTakeSurvey || ref.Summary == "" {
		t.Fatalf("unexpected referral: %+v", ref)
	}

	list, err := svc.ListReferrals(ctx, 0)
	if err != nil {
		t.Fatalf("ListReferrals failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != ref.ID {
		t.Fatalf("expected the recorded referral, got %+v", list)
	}
}

func TestRecordSummarizerFailure(t *testing.T) {
	store := memory.NewReferralStore()
	rec := referral.NewRecorder(store, failingSummarizer{})

	if _, err := rec.Record(context.Background(), finishedSession(), domain.ReferralSurvey); err == nil {
		t.Fatalf("expected error")
	}
	list, _ := store.ListReferrals(context.Background(), 0)
	if len(list) != 0 {
		t.Fatalf("expected nothing stored on failure")
	}
}

func TestNilStoreService(t *testing.T) {
	list, err := referral.NewService(nil).ListReferrals(context.Background(), 5)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v %v", list, err)
	}
}

type blockingSummarizer struct{}

func (blockingSummarizer) Summarize(ctx context.Context, _ domain.SummaryInput) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRecordSummaryTimeout(t *testing.T) {
	store := memory.NewReferralStore()
	rec := referral.NewRecorder(store, blockingSummarizer{}, referral.WithSummaryTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := rec.Record(context.Background(), finishedSession(), domain.ReferralScheduling)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Record did not give up on a stuck summarizer")
	}
}
