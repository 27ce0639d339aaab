package domain

// Message is one entry of a session transcript (user selection or bot prompt).
type Message struct {
	ID        MessageID
	SessionID SessionID
	Author    Role
	Text      string
	CreatedAt Timestamp

	// Options are the buttons offered with a bot message. Empty for user messages.
	Options []string
}

// LastOptions returns the options of the last message in a transcript.
func LastOptions(transcript []*Message) []string {
	if len(transcript) == 0 {
		return nil
	}
	return transcript[len(transcript)-1].Options
}

// Session is one run through the questionnaire.
type Session struct {
	ID        SessionID
	UserID    UserID
	Channel   Channel
	CreatedAt Timestamp
	UpdatedAt Timestamp

	Step      Step
	Responses ResponseMap

	// Generation is bumped on every reset. Replies scheduled under an older
	// generation are discarded on delivery.
	Generation int64
}

// Clone returns a copy that shares nothing mutable with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Responses = s.Responses.Clone()
	return &out
}
