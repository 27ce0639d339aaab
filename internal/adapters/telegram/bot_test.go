package telegram_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/abhishekh011/chatbotDemo/internal/adapters/storage/memory"
	"github.com/abhishekh011/chatbotDemo/internal/adapters/telegram"
	"github.com/abhishekh011/chatbotDemo/internal/app/conversation"
	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []*bot.SendMessageParams
	answered []*bot.AnswerCallbackQueryParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	return &models.Message{}, nil
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, params)
	return true, nil
}

func (f *fakeSender) last(t *testing.T) *bot.SendMessageParams {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

const chatID int64 = 42

func newHandler(t *testing.T) (*telegram.Handler, *fakeSender, *conversation.Service) {
	t.Helper()
	svc := conversation.NewService(memory.NewSessionStore(), memory.NewMessageStore(), nil, nil, 0)
	t.Cleanup(svc.Close)
	sender := &fakeSender{}
	return telegram.NewHandler(svc, sender), sender, svc
}

func message(text string) *models.Update {
	return &models.Update{Message: &models.Message{
		Chat: models.Chat{ID: chatID},
		From: &models.User{ID: chatID},
		Text: text,
	}}
}

func press(data string) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "cb",
		From: models.User{ID: chatID},
		Data: data,
	}}
}

func keyboardOf(t *testing.T, params *bot.SendMessageParams) [][]models.InlineKeyboardButton {
	t.Helper()
	kb, ok := params.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", params.ReplyMarkup)
	}
	return kb.InlineKeyboard
}

func buttons(t *testing.T, params *bot.SendMessageParams) []string {
	t.Helper()
	var out []string
	for _, row := range keyboardOf(t, params) {
		for _, b := range row {
			out = append(out, b.Text)
		}
	}
	return out
}

// tap presses the index-th button of a keyboard that was sent earlier.
func tap(t *testing.T, params *bot.SendMessageParams, index int) *models.Update {
	t.Helper()
	rows := keyboardOf(t, params)
	if index >= len(rows) {
		t.Fatalf("keyboard has %d buttons, wanted %d", len(rows), index)
	}
	return press(rows[index][0].CallbackData)
}

func TestStartSendsGreetingWithButtons(t *testing.T) {
	h, sender, _ := newHandler(t)

	h.Handle(context.Background(), message("/start"))

	last := sender.last(t)
	if last.Text != flow.GreetingText {
		t.Fatalf("expected greeting, got %q", last.Text)
	}
	if got := buttons(t, last); len(got) != 2 || got[0] != "Yes, start evaluation" {
		t.Fatalf("unexpected buttons %v", got)
	}
	if last.ChatID != chatID {
		t.Fatalf("expected chat %d, got %v", chatID, last.ChatID)
	}
}

func TestButtonPressAdvancesFlow(t *testing.T) {
	h, sender, _ := newHandler(t)
	ctx := context.Background()
	h.Handle(ctx, message("/start"))

	h.Handle(ctx, tap(t, sender.last(t), 0))

	last := sender.last(t)
	if last.Text != flow.AgeQuestion {
		t.Fatalf("expected age question, got %q", last.Text)
	}
	if len(sender.answered) != 1 {
		t.Fatalf("expected callback answered once, got %d", len(sender.answered))
	}
}

func TestStaleButtonIsRejected(t *testing.T) {
	tests := []struct {
		name string
		// press builds the tap from the greeting keyboard and the keyboard
		// sent after answering it.
		press func(t *testing.T, greeting, age *bot.SendMessageParams) *models.Update
	}{
		{
			name: "index out of range",
			press: func(t *testing.T, _, age *bot.SendMessageParams) *models.Update {
				owner, _, _ := strings.Cut(keyboardOf(t, age)[0][0].CallbackData, ":")
				return press(owner + ":7")
			},
		},
		{
			name: "malformed data",
			press: func(*testing.T, *bot.SendMessageParams, *bot.SendMessageParams) *models.Update {
				return press("0")
			},
		},
		{
			name: "older keyboard in range",
			press: func(t *testing.T, greeting, _ *bot.SendMessageParams) *models.Update {
				return tap(t, greeting, 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sender, svc := newHandler(t)
			ctx := context.Background()
			h.Handle(ctx, message("/start"))
			greeting := sender.last(t)
			h.Handle(ctx, tap(t, greeting, 0))
			age := sender.last(t)
			if age.Text != flow.AgeQuestion {
				t.Fatalf("expected age question, got %q", age.Text)
			}
			sent, answered := len(sender.sent), len(sender.answered)

			h.Handle(ctx, tt.press(t, greeting, age))

			if len(sender.sent) != sent {
				t.Fatalf("expected no message for stale button, got %q", sender.last(t).Text)
			}
			if len(sender.answered) != answered+1 || sender.answered[answered].Text == "" {
				t.Fatalf("expected callback answered with a notice, got %+v", sender.answered)
			}
			session, err := svc.LatestSession(ctx, "tg:42")
			if err != nil {
				t.Fatalf("LatestSession failed: %v", err)
			}
			if session.Step != domain.StepAge || session.Responses.Get(domain.StepAge) != "" {
				t.Fatalf("stale tap changed the session: step %s, responses %v", session.Step, session.Responses)
			}
		})
	}
}

func TestStartOverButtonResets(t *testing.T) {
	h, sender, _ := newHandler(t)
	ctx := context.Background()
	h.Handle(ctx, message("/start"))
	h.Handle(ctx, tap(t, sender.last(t), 1)) // No, maybe later

	if got := buttons(t, sender.last(t)); len(got) != 1 || got[0] != "Start Over" {
		t.Fatalf("expected Start Over button, got %v", got)
	}

	h.Handle(ctx, tap(t, sender.last(t), 0))

	if sender.last(t).Text != flow.GreetingText {
		t.Fatalf("expected greeting after Start Over, got %q", sender.last(t).Text)
	}
}

func TestTypedOptionCountsAsSelection(t *testing.T) {
	h, sender, _ := newHandler(t)
	ctx := context.Background()
	h.Handle(ctx, message("/start"))

	h.Handle(ctx, message("hello"))
	if sender.last(t).Text == flow.AgeQuestion {
		t.Fatalf("free text should not advance the flow")
	}

	h.Handle(ctx, message("Yes, start evaluation"))
	if sender.last(t).Text != flow.AgeQuestion {
		t.Fatalf("expected age question, got %q", sender.last(t).Text)
	}
}

func TestMessageWithoutSessionGetsHelp(t *testing.T) {
	h, sender, _ := newHandler(t)

	h.Handle(context.Background(), message("hi"))

	if sender.last(t).Text == "" || sender.last(t).ReplyMarkup != nil {
		t.Fatalf("expected plain help text, got %+v", sender.last(t))
	}
}
