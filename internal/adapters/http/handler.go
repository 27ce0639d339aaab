package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhishekh011/chatbotDemo/internal/app/conversation"
	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/app/referral"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/observability"
)

const maxBodyBytes = 8 * 1024

type Server struct {
	svc       *conversation.Service
	referrals *referral.Service
	pages     *pages
}

// NewServer builds the router: JSON API, chat page, health and metrics.
func NewServer(svc *conversation.Service, referrals *referral.Service) http.Handler {
	s := &Server{
		svc:       svc,
		referrals: referrals,
		pages:     loadPages(),
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(withRequestID)
	r.Use(chimw.RealIP)
	r.Use(withMetrics)
	r.Use(withLogging)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		// Open for the MVP; the page and the API are served from anywhere.
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimw.RequestSize(maxBodyBytes))

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/messages", s.handleSubmit)
		r.Post("/sessions/{id}/reset", s.handleReset)
		r.Get("/sessions/{id}/summary", s.handleSummary)

		r.Get("/flow", s.handleFlow)
		r.Get("/referrals", s.handleListReferrals)

		r.Get("/", s.handleIndexPage)
		r.Post("/chat", s.handleStartChat)
		r.Get("/chat/{id}", s.handleChatPage)
		r.Post("/chat/{id}", s.handleChatSelect)
	})

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel,omitempty"`
}

type createSessionResponse struct {
	Session  sessionResponse `json:"session"`
	Greeting messageResponse `json:"greeting"`
}

type sessionResponse struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Channel    string            `json:"channel"`
	Step       string            `json:"step"`
	Responses  map[string]string `json:"responses"`
	Generation int64             `json:"generation"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Options   []string  `json:"options,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type getSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
	Options  []string          `json:"options"`
	Pending  bool              `json:"pending"`
}

type submitRequest struct {
	Selection string `json:"selection"`
}

type submitResponse struct {
	UserMessage messageResponse  `json:"user_message"`
	Reply       *messageResponse `json:"reply,omitempty"`
	Pending     bool             `json:"pending"`
	Step        string           `json:"step"`
	Referral    *domain.Referral `json:"referral,omitempty"`
}

type resetResponse struct {
	Session   sessionResponse   `json:"session"`
	Messages  []messageResponse `json:"messages"`
	Cancelled int               `json:"cancelled_replies"`
}

type summaryResponse struct {
	SessionID string            `json:"session_id"`
	Step      string            `json:"step"`
	Eligible  bool              `json:"eligible"`
	Responses map[string]string `json:"responses"`
	Summary   string            `json:"summary"`
}

type flowStepResponse struct {
	Step    string   `json:"step"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type listReferralsResponse struct {
	Referrals []*domain.Referral `json:"referrals"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		badRequest(w, "user_id is required")
		return
	}

	channel, ok := parseChannel(req.Channel)
	if !ok {
		badRequest(w, "unknown channel")
		return
	}

	out, err := s.svc.StartSession(r.Context(), conversation.StartSessionInput{
		UserID:  domain.UserID(req.UserID),
		Channel: channel,
	})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		Session:  toSessionResponse(out.Session),
		Greeting: toMessageResponse(out.Greeting),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)

	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, "limit must be an integer")
		return
	}

	session, msgs, err := s.svc.GetSessionTimeline(r.Context(), id, limit)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	options := domain.LastOptions(msgs)
	if options == nil {
		options = []string{}
	}

	writeJSON(w, http.StatusOK, getSessionResponse{
		Session:  toSessionResponse(session),
		Messages: toMessagesResponse(msgs),
		Options:  options,
		Pending:  s.svc.PendingReplies(id) > 0,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if req.Selection == "" {
		badRequest(w, "selection is required")
		return
	}

	out, err := s.svc.Submit(r.Context(), conversation.SubmitInput{
		SessionID: sessionIDParam(r),
		Selection: req.Selection,
	})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	resp := submitResponse{
		UserMessage: toMessageResponse(out.UserMessage),
		Pending:     out.Pending,
		Step:        string(out.Session.Step),
		Referral:    out.Referral,
	}
	if out.Reply != nil {
		m := toMessageResponse(out.Reply)
		resp.Reply = &m
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Reset(r.Context(), sessionIDParam(r))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resetResponse{
		Session:   toSessionResponse(out.Session),
		Messages:  toMessagesResponse(out.Messages),
		Cancelled: out.Cancelled,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Summarize(r.Context(), sessionIDParam(r))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		SessionID: string(out.Session.ID),
		Step:      string(out.Session.Step),
		Eligible:  out.Eligible,
		Responses: out.Session.Responses.Strings(),
		Summary:   out.Text,
	})
}

func (s *Server) handleFlow(w http.ResponseWriter, _ *http.Request) {
	script := flow.Script()
	resp := make([]flowStepResponse, 0, len(script))
	for _, entry := range script {
		resp = append(resp, flowStepResponse{
			Step:    string(entry.Step),
			Text:    entry.Prompt.Text,
			Options: entry.Prompt.OptionStrings(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListReferrals(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, "limit must be an integer")
		return
	}

	refs, err := s.referrals.ListReferrals(r.Context(), limit)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if refs == nil {
		refs = []*domain.Referral{}
	}

	writeJSON(w, http.StatusOK, listReferralsResponse{Referrals: refs})
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func sessionIDParam(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "id"))
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseChannel(s string) (domain.Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "api":
		return domain.ChannelAPI, true
	case "web":
		return domain.ChannelWeb, true
	case "telegram":
		return domain.ChannelTelegram, true
	default:
		return "", false
	}
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:         string(s.ID),
		UserID:     string(s.UserID),
		Channel:    string(s.Channel),
		Step:       string(s.Step),
		Responses:  s.Responses.Strings(),
		Generation: s.Generation,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:        string(m.ID),
		SessionID: string(m.SessionID),
		Author:    string(m.Author),
		Text:      m.Text,
		Options:   m.Options,
		CreatedAt: m.CreatedAt,
	}
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "session not found",
	})
}

func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		notFound(w)
		return
	}

	observability.LoggerFromContext(r.Context()).Error().
		Err(err).
		Str("path", r.URL.Path).
		Msg("request failed")

	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}
