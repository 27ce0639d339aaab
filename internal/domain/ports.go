package domain

import "context"

// Summarizer turns a finished (or partial) questionnaire into a short note
// for the care team.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (string, error)
}

// SummaryInput is what a Summarizer gets to work with.
type SummaryInput struct {
	SessionID SessionID
	UserID    UserID
	Step      Step
	Responses ResponseMap
	Eligible  bool
}

// SessionStore defines session's persistence
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	// ListSessionsByUser returns the user's sessions, newest first.
	ListSessionsByUser(ctx context.Context, userID UserID, limit int) ([]*Session, error)
}

// MessageStore defines message's persistence
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	// GetMessagesBySession returns messages in creation order. With limit > 0
	// only the last limit messages are returned.
	GetMessagesBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
	// TruncateMessages keeps the first keep messages of a session and drops the rest.
	TruncateMessages(ctx context.Context, sessionID SessionID, keep int) error
}
