package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/abhishekh011/chatbotDemo/internal/app/delivery"
	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/app/referral"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/metrics"
	"github.com/abhishekh011/chatbotDemo/internal/observability"
)

// deliveryTimeout bounds the store writes done when a delayed reply fires.
const deliveryTimeout = 10 * time.Second

// ReplyListener is told about every bot reply once it is appended to a
// session's transcript.
type ReplyListener func(ctx context.Context, session *domain.Session, reply *domain.Message)

type Service struct {
	sessionStore domain.SessionStore
	messageStore domain.MessageStore
	summarizer   domain.Summarizer
	recorder     *referral.Recorder
	now          func() time.Time

	scheduler  *delivery.Scheduler
	replyDelay time.Duration
	locks      *sessionLocks

	listenersMu sync.RWMutex
	listeners   []ReplyListener
}

// NewService wires the questionnaire to its stores. summarizer and recorder
// may be nil. replyDelay is the typing pause before a bot reply is appended;
// zero appends replies before Submit returns.
func NewService(
	sessionStore domain.SessionStore,
	messageStore domain.MessageStore,
	summarizer domain.Summarizer,
	recorder *referral.Recorder,
	replyDelay time.Duration,
) *Service {
	return &Service{
		sessionStore: sessionStore,
		messageStore: messageStore,
		summarizer:   summarizer,
		recorder:     recorder,
		now:          time.Now,
		scheduler:    delivery.NewScheduler(),
		replyDelay:   replyDelay,
		locks:        newSessionLocks(),
	}
}

// OnReply registers a listener for delivered replies.
func (s *Service) OnReply(l ReplyListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Close drops every reply still waiting to be delivered.
func (s *Service) Close() {
	s.scheduler.Stop()
}

// PendingReplies returns how many replies are still "typing" for a session.
func (s *Service) PendingReplies(id domain.SessionID) int {
	return s.scheduler.Pending(string(id))
}

func (s *Service) engineOptions() []flow.Option {
	return []flow.Option{
		flow.WithIDs(newMessageID),
		flow.WithClock(s.now),
	}
}

type StartSessionInput struct {
	UserID  domain.UserID
	Channel domain.Channel
}

type StartSessionOutput struct {
	Session  *domain.Session
	Greeting *domain.Message
}

func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	now := s.now()

	channel := in.Channel
	if channel == "" {
		channel = domain.ChannelAPI
	}

	log := observability.LoggerFromContext(ctx).With().
		Str("user_id", string(in.UserID)).
		Str("channel", string(channel)).
		Logger()
	log.Info().Msg("starting new session")

	session := &domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		UserID:    in.UserID,
		Channel:   channel,
		CreatedAt: now,
		UpdatedAt: now,
		Step:      domain.StepInitial,
		Responses: domain.ResponseMap{},
	}

	engine := flow.New(session.ID, s.engineOptions()...)
	greeting := engine.Transcript()[0]

	if err := s.sessionStore.CreateSession(ctx, session); err != nil {
		log.Error().Err(err).Msg("failed to create session")
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.messageStore.AppendMessage(ctx, greeting); err != nil {
		log.Error().Err(err).Msg("failed to append greeting")
		return nil, fmt.Errorf("append greeting: %w", err)
	}

	metrics.SessionsStarted.WithLabelValues(string(channel)).Inc()
	log.Info().Str("session_id", string(session.ID)).Msg("session started")

	return &StartSessionOutput{
		Session:  session,
		Greeting: greeting,
	}, nil
}

type SubmitInput struct {
	SessionID domain.SessionID
	Selection string
}

type SubmitOutput struct {
	Session     *domain.Session
	UserMessage *domain.Message
	// Reply is nil when the selection has no scripted answer.
	Reply *domain.Message
	// Pending is true while Reply waits out the typing delay.
	Pending bool
	// Referral is set when the selection asked for the survey or an appointment.
	Referral *domain.Referral
}

// Submit records one answer. The user message and new step are persisted
// before Submit returns; the bot reply follows after the typing delay.
// Referral hand-offs are recorded after the session lock is released.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitOutput, error) {
	out, inline, kind, err := s.submitLocked(ctx, in)
	if err != nil {
		return nil, err
	}

	if inline != nil {
		s.notify(ctx, out.Session, inline)
	}

	if kind != "" && s.recorder != nil {
		ref, err := s.recorder.Record(ctx, out.Session, kind)
		if err != nil {
			// The user still gets the link; the care team loses this hand-off.
			observability.LoggerFromContext(ctx).Error().Err(err).
				Str("session_id", string(in.SessionID)).
				Str("kind", string(kind)).
				Msg("failed to record referral")
		} else {
			out.Referral = ref
		}
	}

	return out, nil
}

// submitLocked persists the turn and delivers or schedules its reply. It
// returns the reply when it was appended inline, and the referral kind the
// selection asked for, if any.
func (s *Service) submitLocked(ctx context.Context, in SubmitInput) (*SubmitOutput, *domain.Message, domain.ReferralKind, error) {
	unlock := s.locks.lock(in.SessionID)
	defer unlock()

	session, err := s.sessionStore.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, nil, "", err
	}

	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(session.ID)).
		Str("step", string(session.Step)).
		Logger()
	log.Info().Str("selection", in.Selection).Msg("submitting answer")

	transcript, err := s.messageStore.GetMessagesBySession(ctx, session.ID, 0)
	if err != nil {
		log.Error().Err(err).Msg("failed to load transcript")
		return nil, nil, "", fmt.Errorf("load transcript: %w", err)
	}

	engine := flow.Restore(session, transcript, s.engineOptions()...)
	turn := engine.Submit(in.Selection)

	if err := s.messageStore.AppendMessage(ctx, turn.UserMessage); err != nil {
		log.Error().Err(err).Msg("failed to append user message")
		return nil, nil, "", fmt.Errorf("append user message: %w", err)
	}

	session.Step = engine.Step()
	session.Responses = engine.Responses()
	session.UpdatedAt = s.now()
	if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
		log.Error().Err(err).Msg("failed to update session")
		return nil, nil, "", fmt.Errorf("update session: %w", err)
	}

	metrics.Submissions.WithLabelValues(string(turn.From)).Inc()
	if turn.From == domain.StepTreatments {
		result := "ineligible"
		if engine.Eligible() {
			result = "eligible"
		}
		metrics.Outcomes.WithLabelValues(result).Inc()
		log.Info().Str("result", result).Msg("eligibility evaluated")
	}

	out := &SubmitOutput{
		Session:     session.Clone(),
		UserMessage: turn.UserMessage,
		Reply:       turn.Reply,
	}

	var kind domain.ReferralKind
	if k, ok := flow.ReferralFor(turn.From, in.Selection); ok {
		kind = k
	}

	if turn.Reply == nil {
		metrics.RepliesDropped.WithLabelValues("unhandled").Inc()
		log.Warn().Str("selection", in.Selection).Msg("no scripted reply for selection")
		return out, nil, kind, nil
	}

	if s.replyDelay <= 0 {
		if err := s.appendReply(ctx, session, turn.Reply); err != nil {
			return nil, nil, "", err
		}
		engine.Deliver(turn.Reply)
		return out, turn.Reply, kind, nil
	}

	// Same as engine.Deliver, but after the delay and only if no reset
	// happened in between.
	out.Pending = true
	generation := session.Generation
	reply := turn.Reply
	s.scheduler.Schedule(string(session.ID), s.replyDelay, func() {
		s.deliver(session.ID, generation, reply)
	})

	log.Debug().Dur("delay", s.replyDelay).Msg("reply scheduled")
	return out, nil, kind, nil
}

// deliver runs on the scheduler's goroutine once the typing delay is over.
func (s *Service) deliver(id domain.SessionID, generation int64, reply *domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	log := observability.Logger().With().Str("session_id", string(id)).Logger()

	unlock := s.locks.lock(id)
	session, err := s.sessionStore.GetSession(ctx, id)
	if err != nil {
		unlock()
		log.Error().Err(err).Msg("failed to load session for reply")
		return
	}
	if session.Generation != generation {
		unlock()
		metrics.RepliesDropped.WithLabelValues("stale").Inc()
		log.Info().Msg("dropping reply scheduled before reset")
		return
	}
	err = s.appendReply(ctx, session, reply)
	unlock()
	if err != nil {
		log.Error().Err(err).Msg("failed to deliver reply")
		return
	}

	s.notify(ctx, session, reply)
}

func (s *Service) appendReply(ctx context.Context, session *domain.Session, reply *domain.Message) error {
	if err := s.messageStore.AppendMessage(ctx, reply); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	metrics.RepliesDelivered.Inc()
	return nil
}

func (s *Service) notify(ctx context.Context, session *domain.Session, reply *domain.Message) {
	s.listenersMu.RLock()
	listeners := make([]ReplyListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ctx, session, reply)
	}
}

type ResetOutput struct {
	Session  *domain.Session
	Messages []*domain.Message
	// Cancelled counts replies that were still typing and got dropped.
	Cancelled int
}

// Reset returns a session to the greeting: answers cleared, step initial,
// pending replies cancelled. Resetting twice is the same as resetting once.
func (s *Service) Reset(ctx context.Context, id domain.SessionID) (*ResetOutput, error) {
	unlock := s.locks.lock(id)
	defer unlock()
	return s.resetLocked(ctx, id)
}

// resetLocked does the work of Reset; the caller holds the session lock.
func (s *Service) resetLocked(ctx context.Context, id domain.SessionID) (*ResetOutput, error) {
	session, err := s.sessionStore.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With().Str("session_id", string(id)).Logger()

	cancelled := s.scheduler.Cancel(string(id))
	if cancelled > 0 {
		metrics.RepliesDropped.WithLabelValues("cancelled").Add(float64(cancelled))
	}

	transcript, err := s.messageStore.GetMessagesBySession(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	engine := flow.Restore(session, transcript, s.engineOptions()...)
	engine.Reset()
	msgs := engine.Transcript()

	if len(transcript) == 0 {
		if err := s.messageStore.AppendMessage(ctx, msgs[0]); err != nil {
			return nil, fmt.Errorf("append greeting: %w", err)
		}
	} else if err := s.messageStore.TruncateMessages(ctx, id, 1); err != nil {
		log.Error().Err(err).Msg("failed to truncate transcript")
		return nil, fmt.Errorf("truncate transcript: %w", err)
	}

	session.Step = engine.Step()
	session.Responses = engine.Responses()
	session.Generation++
	session.UpdatedAt = s.now()
	if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
		log.Error().Err(err).Msg("failed to update session")
		return nil, fmt.Errorf("update session: %w", err)
	}

	metrics.Resets.Inc()
	log.Info().Int("cancelled_replies", cancelled).Msg("session reset")

	return &ResetOutput{
		Session:   session,
		Messages:  msgs,
		Cancelled: cancelled,
	}, nil
}

func (s *Service) GetSessionTimeline(
	ctx context.Context,
	sessionID domain.SessionID,
	limit int,
) (*domain.Session, []*domain.Message, error) {

	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(sessionID)).
		Int("limit", limit).
		Logger()

	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to get session")
		return nil, nil, err
	}

	msgs, err := s.messageStore.GetMessagesBySession(ctx, sessionID, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to get messages")
		return nil, nil, err
	}

	log.Debug().Int("message_count", len(msgs)).Msg("fetched session timeline")

	return session, msgs, nil
}

// LatestSession returns the user's most recent session, or ErrSessionNotFound.
func (s *Service) LatestSession(ctx context.Context, userID domain.UserID) (*domain.Session, error) {
	sessions, err := s.sessionStore.ListSessionsByUser(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return sessions[0], nil
}

type SummaryOutput struct {
	Session  *domain.Session
	Eligible bool
	Text     string
}

// Summarize builds the care-team note for a session's answers so far.
func (s *Service) Summarize(ctx context.Context, id domain.SessionID) (*SummaryOutput, error) {
	session, err := s.sessionStore.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &SummaryOutput{
		Session:  session,
		Eligible: flow.Eligible(session.Responses),
	}
	if s.summarizer == nil {
		return out, nil
	}

	text, err := s.summarizer.Summarize(ctx, domain.SummaryInput{
		SessionID: session.ID,
		UserID:    session.UserID,
		Step:      session.Step,
		Responses: session.Responses.Clone(),
		Eligible:  out.Eligible,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	out.Text = text
	return out, nil
}

func newMessageID() domain.MessageID {
	return domain.MessageID(ulid.Make().String())
}
