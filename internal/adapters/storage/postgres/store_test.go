package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/abhishekh011/chatbotDemo/internal/adapters/storage/postgres"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

// Runs only against a real database: KNEE_TEST_DATABASE_URL=postgres://...
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("KNEE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("KNEE_TEST_DATABASE_URL not set")
	}
	store, err := postgres.NewStore(context.Background(), url)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestSessionAndTranscript(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC()
	id := domain.SessionID(uuid.NewString())

	sess := &domain.Session{
		ID:        id,
		UserID:    domain.UserID("pg-" + string(id)),
		Channel:   domain.ChannelAPI,
		Step:      domain.StepInitial,
		Responses: domain.ResponseMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.CreateSession(ctx, sess); !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}

	sess.Responses[domain.StepAge] = domain.AnswerAgeOver60
	sess.Step = domain.StepPain
	if err := store.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	got, err := store.GetSession(ctx, id)
	if err != nil || got.Responses.Get(domain.StepAge) != domain.AnswerAgeOver60 {
		t.Fatalf("unexpected session %+v (%v)", got, err)
	}

	for i, text := range []string{"greeting", "Yes, start evaluation", "What is your age?"} {
		err := store.AppendMessage(ctx, &domain.Message{
			ID:        domain.MessageID(string(id) + "-" + text),
			SessionID: id,
			Author:    domain.RoleBot,
			Text:      text,
			CreatedAt: now.Add(time.Duration(-i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}
	if err := store.TruncateMessages(ctx, id, 1); err != nil {
		t.Fatalf("TruncateMessages failed: %v", err)
	}
	msgs, err := store.GetMessagesBySession(ctx, id, 0)
	if err != nil || len(msgs) != 1 || msgs[0].Text != "greeting" {
		t.Fatalf("expected only the greeting, got %+v (%v)", msgs, err)
	}
}
