package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/abhishekh011/chatbotDemo/internal/adapters/storage/redis"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

func newStore(t *testing.T, ttl time.Duration) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := redis.NewStore(context.Background(), "redis://"+mr.Addr(), ttl)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func session(id string, created time.Time) *domain.Session {
	return &domain.Session{
		ID:        domain.SessionID(id),
		UserID:    "u1",
		Channel:   domain.ChannelWeb,
		Step:      domain.StepInitial,
		Responses: domain.ResponseMap{},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 0)
	now := time.Now().UTC()

	sess := session("s1", now)
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.CreateSession(ctx, sess); !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}

	sess.Step = domain.StepPain
	sess.Responses[domain.StepAge] = domain.AnswerAge41To60
	sess.Generation = 2
	if err := store.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Step != domain.StepPain || got.Generation != 2 || got.Channel != domain.ChannelWeb {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.Responses.Get(domain.StepAge) != domain.AnswerAge41To60 {
		t.Fatalf("expected age answer, got %v", got.Responses)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.UpdateSession(ctx, session("missing", now)); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on update, got %v", err)
	}
}

func TestListSessionsByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 0)
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		if err := store.CreateSession(ctx, session(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	got, err := store.ListSessionsByUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListSessionsByUser failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestMessagesOrderAndTruncate(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 0)

	for _, text := range []string{"greeting", "yes", "age?", "41-60"} {
		err := store.AppendMessage(ctx, &domain.Message{
			ID:        domain.MessageID(text),
			SessionID: "s1",
			Author:    domain.RoleBot,
			Text:      text,
			Options:   []string{"a", "b"},
		})
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	last, err := store.GetMessagesBySession(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("GetMessagesBySession failed: %v", err)
	}
	if len(last) != 2 || last[0].Text != "age?" || last[1].Text != "41-60" {
		t.Fatalf("expected last two in order, got %+v", last)
	}

	if err := store.TruncateMessages(ctx, "s1", 1); err != nil {
		t.Fatalf("TruncateMessages failed: %v", err)
	}
	all, err := store.GetMessagesBySession(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("GetMessagesBySession failed: %v", err)
	}
	if len(all) != 1 || all[0].Text != "greeting" || len(all[0].Options) != 2 {
		t.Fatalf("expected only the greeting, got %+v", all)
	}
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, time.Hour)

	if err := store.CreateSession(ctx, session("s1", time.Now())); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	if _, err := store.GetSession(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestReferralsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 0)

	for _, id := range []domain.ReferralID{"r1", "r2", "r3"} {
		err := store.AppendReferral(ctx, &domain.Referral{
			ID:        id,
			Kind:      domain.ReferralScheduling,
			Responses: domain.ResponseMap{domain.StepPain: domain.AnswerPainSevere},
		})
		if err != nil {
			t.Fatalf("AppendReferral failed: %v", err)
		}
	}

	got, err := store.ListReferrals(ctx, 2)
	if err != nil {
		t.Fatalf("ListReferrals failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r3" || got[1].ID != "r2" {
		t.Fatalf("unexpected referrals %+v", got)
	}
	if got[0].Responses.Get(domain.StepPain) != domain.AnswerPainSevere {
		t.Fatalf("expected responses to survive encoding")
	}
}
