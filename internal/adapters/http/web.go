package httpadapter

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/abhishekh011/chatbotDemo/internal/app/conversation"
	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/observability"
)

// userCookie remembers an anonymous browser across chats.
const userCookie = "knee_user"

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	tmpl *template.Template
}

func loadPages() *pages {
	return &pages{
		tmpl: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
}

type chatView struct {
	SessionID string
	Messages  []*domain.Message
	Options   []string
	Pending   bool
}

func (p *pages) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := p.tmpl.ExecuteTemplate(w, name, data); err != nil {
		observability.LoggerFromContext(r.Context()).Error().
			Err(err).
			Str("template", name).
			Msg("failed to render page")
	}
}

func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, r, "index", nil)
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	userID := browserUser(w, r)

	out, err := s.svc.StartSession(r.Context(), conversation.StartSessionInput{
		UserID:  userID,
		Channel: domain.ChannelWeb,
	})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	http.Redirect(w, r, "/chat/"+string(out.Session.ID), http.StatusSeeOther)
}

func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)

	_, msgs, err := s.svc.GetSessionTimeline(r.Context(), id, 0)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	view := chatView{
		SessionID: string(id),
		Messages:  msgs,
		Options:   domain.LastOptions(msgs),
		Pending:   s.svc.PendingReplies(id) > 0,
	}
	// A selection with no scripted reply leaves the page without buttons.
	if !view.Pending && len(msgs) > 0 && msgs[len(msgs)-1].Author == domain.RoleUser {
		view.Options = []string{string(domain.AnswerStartOver)}
	}

	s.pages.render(w, r, "chat", view)
}

// handleChatSelect handles an option button. "Start Over" resets the chat
// instead of being submitted as an answer.
func (s *Server) handleChatSelect(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)

	if err := r.ParseForm(); err != nil {
		badRequest(w, "invalid form")
		return
	}
	option := r.PostForm.Get("option")
	if option == "" {
		badRequest(w, "option is required")
		return
	}

	var err error
	if flow.IsRestart(option) {
		_, err = s.svc.Reset(r.Context(), id)
	} else {
		_, err = s.svc.Submit(r.Context(), conversation.SubmitInput{
			SessionID: id,
			Selection: option,
		})
	}
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	http.Redirect(w, r, "/chat/"+string(id), http.StatusSeeOther)
}

func browserUser(w http.ResponseWriter, r *http.Request) domain.UserID {
	if c, err := r.Cookie(userCookie); err == nil && c.Value != "" {
		return domain.UserID(c.Value)
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     userCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
	})
	return domain.UserID(id)
}
