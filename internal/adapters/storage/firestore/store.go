package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/metrics"
)

const backendName = "firestore"

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (KNEE_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) referralsCol() *firestore.CollectionRef {
	return s.client.Collection("referrals")
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(backendName, op).Observe(time.Since(start).Seconds())
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	UserID     string            `firestore:"user_id"`
	Channel    string            `firestore:"channel"`
	Step       string            `firestore:"step"`
	Responses  map[string]string `firestore:"responses"`
	Generation int64             `firestore:"generation"`
	CreatedAt  time.Time         `firestore:"created_at"`
	UpdatedAt  time.Time         `firestore:"updated_at"`
}

func (d sessionDoc) toDomain(id domain.SessionID) *domain.Session {
	return &domain.Session{
		ID:         id,
		UserID:     domain.UserID(d.UserID),
		Channel:    domain.Channel(d.Channel),
		Step:       domain.Step(d.Step),
		Responses:  domain.ResponseMapFromStrings(d.Responses),
		Generation: d.Generation,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// Seq is stamped at append time; created_at can tie or arrive out of order
// when a delayed reply lands after a later submission.
type messageDoc struct {
	SessionID string    `firestore:"session_id"`
	Author    string    `firestore:"author"`
	Text      string    `firestore:"text"`
	Options   []string  `firestore:"options"`
	CreatedAt time.Time `firestore:"created_at"`
	Seq       int64     `firestore:"seq"`
}

type referralDoc struct {
	SessionID string            `firestore:"session_id"`
	UserID    string            `firestore:"user_id"`
	Kind      string            `firestore:"kind"`
	Choice    string            `firestore:"choice"`
	Eligible  bool              `firestore:"eligible"`
	Responses map[string]string `firestore:"responses"`
	Summary   string            `firestore:"summary"`
	CreatedAt time.Time         `firestore:"created_at"`
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	defer observe("create_session", time.Now())

	doc := sessionDoc{
		UserID:     string(session.UserID),
		Channel:    string(session.Channel),
		Step:       string(session.Step),
		Responses:  session.Responses.Strings(),
		Generation: session.Generation,
		CreatedAt:  session.CreatedAt,
		UpdatedAt:  session.UpdatedAt,
	}

	_, err := s.sessionDoc(session.ID).Create(ctx, doc)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

// UpdateSession replaces the mutable fields. Update (not Set with merge) so a
// cleared responses map really is cleared.
func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	defer observe("update_session", time.Now())

	_, err := s.sessionDoc(session.ID).Update(ctx, []firestore.Update{
		{Path: "step", Value: string(session.Step)},
		{Path: "responses", Value: session.Responses.Strings()},
		{Path: "generation", Value: session.Generation},
		{Path: "updated_at", Value: session.UpdatedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	defer observe("get_session", time.Now())

	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}

	return doc.toDomain(id), nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	defer observe("list_sessions", time.Now())

	q := s.sessionsCol().Where("user_id", "==", string(userID)).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListSessionsByUser: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}

		out = append(out, doc.toDomain(domain.SessionID(snap.Ref.ID)))
	}
	return out, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	defer observe("append_message", time.Now())

	doc := messageDoc{
		SessionID: string(msg.SessionID),
		Author:    string(msg.Author),
		Text:      msg.Text,
		Options:   msg.Options,
		CreatedAt: msg.CreatedAt,
		Seq:       time.Now().UnixNano(),
	}

	_, err := s.messagesCol(msg.SessionID).Doc(string(msg.ID)).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

// GetMessagesBySession returns messages in append order. With a limit it
// returns the most recent `limit` messages.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	defer observe("get_messages", time.Now())

	q := s.messagesCol(sessionID).OrderBy("seq", firestore.Asc)
	if limit > 0 {
		q = s.messagesCol(sessionID).OrderBy("seq", firestore.Desc).Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		out = append(out, &domain.Message{
			ID:        domain.MessageID(snap.Ref.ID),
			SessionID: sessionID,
			Author:    domain.Role(doc.Author),
			Text:      doc.Text,
			Options:   doc.Options,
			CreatedAt: doc.CreatedAt,
		})
	}

	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// TruncateMessages deletes everything after the first `keep` messages.
func (s *Store) TruncateMessages(ctx context.Context, sessionID domain.SessionID, keep int) error {
	defer observe("truncate_messages", time.Now())

	if keep < 0 {
		keep = 0
	}

	iter := s.messagesCol(sessionID).OrderBy("seq", firestore.Asc).Offset(keep).Documents(ctx)
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			bw.End()
			return fmt.Errorf("firestore TruncateMessages: %w", err)
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return fmt.Errorf("firestore TruncateMessages enqueue: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("firestore TruncateMessages delete: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────
// ReferralStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendReferral(ctx context.Context, ref *domain.Referral) error {
	defer observe("append_referral", time.Now())

	doc := referralDoc{
		SessionID: string(ref.SessionID),
		UserID:    string(ref.UserID),
		Kind:      string(ref.Kind),
		Choice:    string(ref.Choice),
		Eligible:  ref.Eligible,
		Responses: ref.Responses.Strings(),
		Summary:   ref.Summary,
		CreatedAt: ref.CreatedAt,
	}

	_, err := s.referralsCol().Doc(string(ref.ID)).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore AppendReferral: %w", err)
	}
	return nil
}

func (s *Store) ListReferrals(ctx context.Context, limit int) ([]*domain.Referral, error) {
	defer observe("list_referrals", time.Now())

	q := s.referralsCol().OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Referral
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListReferrals: %w", err)
		}

		var doc referralDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode referralDoc: %w", err)
		}

		out = append(out, &domain.Referral{
			ID:        domain.ReferralID(snap.Ref.ID),
			SessionID: domain.SessionID(doc.SessionID),
			UserID:    domain.UserID(doc.UserID),
			Kind:      domain.ReferralKind(doc.Kind),
			Choice:    domain.Answer(doc.Choice),
			Eligible:  doc.Eligible,
			Responses: domain.ResponseMapFromStrings(doc.Responses),
			Summary:   doc.Summary,
			CreatedAt: doc.CreatedAt,
		})
	}
	return out, nil
}
