package flow

import (
	"strconv"
	"time"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

// Engine runs one questionnaire session in memory. It owns the transcript,
// the recorded answers and the current step.
//
// A turn has two halves: Submit appends the user's selection and advances the
// step right away, Deliver appends the bot reply once the caller decides it
// is time (after the typing delay). Engine is not safe for concurrent use.
type Engine struct {
	sessionID  domain.SessionID
	transcript []*domain.Message
	responses  domain.ResponseMap
	step       domain.Step

	newID func() domain.MessageID
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDs sets the message id generator.
func WithIDs(fn func() domain.MessageID) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithClock sets the clock used to stamp messages.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// New starts a fresh session whose transcript holds only the greeting.
func New(sessionID domain.SessionID, opts ...Option) *Engine {
	e := newEngine(sessionID, opts)
	e.transcript = []*domain.Message{e.botMessage(greeting)}
	return e
}

// Restore rebuilds an Engine from persisted state. An empty transcript is
// seeded with the greeting so the first-message invariant holds.
func Restore(session *domain.Session, transcript []*domain.Message, opts ...Option) *Engine {
	e := newEngine(session.ID, opts)
	e.step = session.Step
	if !e.step.Valid() {
		e.step = domain.StepInitial
	}
	e.responses = session.Responses.Clone()
	e.transcript = append(e.transcript, transcript...)
	if len(e.transcript) == 0 {
		e.transcript = []*domain.Message{e.botMessage(greeting)}
	}
	return e
}

func newEngine(sessionID domain.SessionID, opts []Option) *Engine {
	e := &Engine{
		sessionID: sessionID,
		responses: domain.ResponseMap{},
		step:      domain.StepInitial,
		now:       time.Now,
	}
	var seq int
	e.newID = func() domain.MessageID {
		seq++
		return domain.MessageID(string(sessionID) + "-" + strconv.Itoa(seq))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Turn is the result of a submission.
type Turn struct {
	UserMessage *domain.Message
	// Reply is the bot message to deliver, nil when the selection has no answer.
	Reply *domain.Message
	From  domain.Step
	To    domain.Step
}

// Submit records selection at the current step and advances. The user
// message is appended immediately; the reply is returned for Deliver.
// Any string is accepted.
func (e *Engine) Submit(selection string) Turn {
	from := e.step

	userMsg := &domain.Message{
		ID:        e.newID(),
		SessionID: e.sessionID,
		Author:    domain.RoleUser,
		Text:      selection,
		CreatedAt: e.now(),
	}
	e.transcript = append(e.transcript, userMsg)
	e.responses[from] = domain.Answer(selection)

	out := Next(from, selection, e.responses)
	e.step = out.Next

	turn := Turn{UserMessage: userMsg, From: from, To: out.Next}
	if out.Reply != nil {
		turn.Reply = e.botMessage(*out.Reply)
	}
	return turn
}

// Deliver appends a bot reply produced by Submit.
func (e *Engine) Deliver(reply *domain.Message) {
	if reply == nil {
		return
	}
	e.transcript = append(e.transcript, reply)
}

// Reset truncates the transcript to the greeting, clears answers and returns
// to the initial step.
func (e *Engine) Reset() {
	e.transcript = e.transcript[:1:1]
	e.responses = domain.ResponseMap{}
	e.step = domain.StepInitial
}

// Transcript returns the messages in display order.
func (e *Engine) Transcript() []*domain.Message {
	out := make([]*domain.Message, len(e.transcript))
	copy(out, e.transcript)
	return out
}

// Options returns the buttons of the last message.
func (e *Engine) Options() []string {
	return domain.LastOptions(e.transcript)
}

func (e *Engine) Step() domain.Step {
	return e.step
}

// Responses returns a copy of the recorded answers.
func (e *Engine) Responses() domain.ResponseMap {
	return e.responses.Clone()
}

// Eligible evaluates the eligibility rule against the answers so far.
func (e *Engine) Eligible() bool {
	return Eligible(e.responses)
}

func (e *Engine) botMessage(p Prompt) *domain.Message {
	return &domain.Message{
		ID:        e.newID(),
		SessionID: e.sessionID,
		Author:    domain.RoleBot,
		Text:      p.Text,
		Options:   p.OptionStrings(),
		CreatedAt: e.now(),
	}
}
