package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/abhishekh011/chatbotDemo/internal/adapters/storage/memory"
	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/metrics"
)

// A reply whose timer already fired must still be dropped if a reset wins
// the session lock before it.
func TestDeliverDropsReplyFromEarlierGeneration(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewSessionStore(), memory.NewMessageStore(), nil, nil, 10*time.Millisecond)
	t.Cleanup(svc.Close)

	delivered := make(chan struct{}, 1)
	svc.OnReply(func(context.Context, *domain.Session, *domain.Message) {
		delivered <- struct{}{}
	})

	started, err := svc.StartSession(ctx, StartSessionInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	id := started.Session.ID

	if _, err := svc.Submit(ctx, SubmitInput{SessionID: id, Selection: "Yes, start evaluation"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	stale := metrics.RepliesDropped.WithLabelValues("stale")
	before := testutil.ToFloat64(stale)

	unlock := svc.locks.lock(id)
	deadline := time.Now().Add(2 * time.Second)
	for svc.PendingReplies(id) > 0 {
		if time.Now().After(deadline) {
			unlock()
			t.Fatalf("reply timer never fired")
		}
		time.Sleep(time.Millisecond)
	}

	out, err := svc.resetLocked(ctx, id)
	unlock()
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if out.Cancelled != 0 {
		t.Fatalf("expected the fired reply to be out of the scheduler, got %d cancelled", out.Cancelled)
	}

	for testutil.ToFloat64(stale) < before+1 {
		if time.Now().After(deadline) {
			t.Fatalf("stale reply was not dropped")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-delivered:
		t.Fatalf("stale reply was published")
	default:
	}

	_, msgs, err := svc.GetSessionTimeline(ctx, id, 0)
	if err != nil {
		t.Fatalf("GetSessionTimeline failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != flow.GreetingText {
		t.Fatalf("expected transcript [greeting], got %d messages", len(msgs))
	}
}
