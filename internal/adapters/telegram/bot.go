package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/abhishekh011/chatbotDemo/internal/app/conversation"
	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/observability"
)

const (
	userPrefix = "tg:"

	helpText   = "Send /start to begin the knee assessment."
	staleText  = "That option is no longer available."
	useButtons = "Please choose one of the options below."
)

// Sender is the part of *bot.Bot the handler needs.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Handler renders questionnaire sessions in Telegram chats. Each chat maps to
// the user "tg:<chat id>"; its newest session is the active one.
type Handler struct {
	svc    *conversation.Service
	sender Sender
}

// NewHandler registers the handler for delivered replies on svc.
func NewHandler(svc *conversation.Service, sender Sender) *Handler {
	h := &Handler{svc: svc, sender: sender}
	svc.OnReply(h.onReply)
	return h
}

// Bot couples a long-polling Telegram client to a Handler.
type Bot struct {
	client  *bot.Bot
	handler *Handler
}

func New(token string, svc *conversation.Service) (*Bot, error) {
	b := &Bot{}

	client, err := bot.New(token, bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		b.handler.Handle(ctx, update)
	}))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b.client = client
	b.handler = NewHandler(svc, client)
	return b, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.client.Start(ctx)
}

// Handle processes one update: /start, a button press, or free text.
func (h *Handler) Handle(ctx context.Context, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *models.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if text == "/start" {
		h.restart(ctx, chatID)
		return
	}

	session, err := h.svc.LatestSession(ctx, chatUser(chatID))
	if errors.Is(err, domain.ErrSessionNotFound) {
		h.send(ctx, chatID, helpText, "", nil)
		return
	}
	if err != nil {
		h.fail(ctx, chatID, err)
		return
	}

	// Typed text counts only when it matches a button.
	current, err := h.currentMessage(ctx, session.ID)
	if err != nil {
		h.fail(ctx, chatID, err)
		return
	}
	if current == nil {
		h.send(ctx, chatID, useButtons, "", nil)
		return
	}
	for _, opt := range current.Options {
		if opt == text {
			h.selectOption(ctx, chatID, session.ID, opt)
			return
		}
	}
	h.send(ctx, chatID, useButtons, current.ID, current.Options)
}

func (h *Handler) handleCallback(ctx context.Context, cq *models.CallbackQuery) {
	chatID := cq.From.ID
	if m := cq.Message.Message; m != nil {
		chatID = m.Chat.ID
	}

	answer := &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID}
	defer func() {
		if _, err := h.sender.AnswerCallbackQuery(ctx, answer); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to answer callback query")
		}
	}()

	session, err := h.svc.LatestSession(ctx, chatUser(chatID))
	if errors.Is(err, domain.ErrSessionNotFound) {
		answer.Text = helpText
		return
	}
	if err != nil {
		h.fail(ctx, chatID, err)
		return
	}

	current, err := h.currentMessage(ctx, session.ID)
	if err != nil {
		h.fail(ctx, chatID, err)
		return
	}

	// Only the keyboard of the newest message is live; older keyboards
	// stay visible in the chat but their taps are refused.
	owner, idx, ok := parseCallback(cq.Data)
	if !ok || current == nil || owner != current.ID || idx >= len(current.Options) {
		answer.Text = staleText
		return
	}

	h.selectOption(ctx, chatID, session.ID, current.Options[idx])
}

// currentMessage returns the last message of a session, the only one whose
// buttons may be pressed. While a reply is still typing it returns nil.
func (h *Handler) currentMessage(ctx context.Context, id domain.SessionID) (*domain.Message, error) {
	if h.svc.PendingReplies(id) > 0 {
		return nil, nil
	}
	_, msgs, err := h.svc.GetSessionTimeline(ctx, id, 1)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[len(msgs)-1], nil
}

func (h *Handler) selectOption(ctx context.Context, chatID int64, id domain.SessionID, option string) {
	if flow.IsRestart(option) {
		out, err := h.svc.Reset(ctx, id)
		if err != nil {
			h.fail(ctx, chatID, err)
			return
		}
		h.sendMessage(ctx, chatID, out.Messages[0])
		return
	}

	// The reply arrives through onReply once it is delivered.
	_, err := h.svc.Submit(ctx, conversation.SubmitInput{
		SessionID: id,
		Selection: option,
	})
	if err != nil {
		h.fail(ctx, chatID, err)
	}
}

// restart resets the chat's session, or opens one for a new chat.
func (h *Handler) restart(ctx context.Context, chatID int64) {
	userID := chatUser(chatID)

	session, err := h.svc.LatestSession(ctx, userID)
	switch {
	case err == nil:
		out, err := h.svc.Reset(ctx, session.ID)
		if err != nil {
			h.fail(ctx, chatID, err)
			return
		}
		h.sendMessage(ctx, chatID, out.Messages[0])
	case errors.Is(err, domain.ErrSessionNotFound):
		out, err := h.svc.StartSession(ctx, conversation.StartSessionInput{
			UserID:  userID,
			Channel: domain.ChannelTelegram,
		})
		if err != nil {
			h.fail(ctx, chatID, err)
			return
		}
		h.sendMessage(ctx, chatID, out.Greeting)
	default:
		h.fail(ctx, chatID, err)
	}
}

func (h *Handler) onReply(ctx context.Context, session *domain.Session, reply *domain.Message) {
	if session.Channel != domain.ChannelTelegram {
		return
	}
	chatID, ok := parseChatUser(session.UserID)
	if !ok {
		observability.Logger().Warn().
			Str("user_id", string(session.UserID)).
			Msg("telegram session without chat id")
		return
	}
	h.sendMessage(ctx, chatID, reply)
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, msg *domain.Message) {
	h.send(ctx, chatID, msg.Text, msg.ID, msg.Options)
}

// send posts text to a chat. Buttons, if any, belong to the transcript
// message owner.
func (h *Handler) send(ctx context.Context, chatID int64, text string, owner domain.MessageID, options []string) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if len(options) > 0 {
		params.ReplyMarkup = keyboard(owner, options)
	}

	if _, err := h.sender.SendMessage(ctx, params); err != nil {
		observability.LoggerFromContext(ctx).Error().
			Err(err).
			Int64("chat_id", chatID).
			Msg("error sending message")
	}
}

func (h *Handler) fail(ctx context.Context, chatID int64, err error) {
	observability.LoggerFromContext(ctx).Error().
		Err(err).
		Int64("chat_id", chatID).
		Msg("telegram update failed")
	h.send(ctx, chatID, "Something went wrong. Send /start to try again.", "", nil)
}

// keyboard lays options out one per row. Callback data is
// "<message id>:<option index>" so a tap can be matched to its keyboard.
func keyboard(owner domain.MessageID, options []string) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(options))
	for i, opt := range options {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: opt, CallbackData: string(owner) + ":" + strconv.Itoa(i)},
		})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func parseCallback(data string) (domain.MessageID, int, bool) {
	owner, raw, ok := strings.Cut(data, ":")
	if !ok || owner == "" {
		return "", 0, false
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return domain.MessageID(owner), idx, true
}

func chatUser(chatID int64) domain.UserID {
	return domain.UserID(userPrefix + strconv.FormatInt(chatID, 10))
}

func parseChatUser(id domain.UserID) (int64, bool) {
	raw, ok := strings.CutPrefix(string(id), userPrefix)
	if !ok {
		return 0, false
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	return chatID, err == nil
}
