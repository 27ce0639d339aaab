package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/metrics"
)

const backendName = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS knee_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	channel TEXT NOT NULL DEFAULT '',
	step TEXT NOT NULL,
	responses JSONB NOT NULL DEFAULT '{}',
	generation BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS knee_messages (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	author TEXT NOT NULL,
	text TEXT NOT NULL,
	options TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS knee_referrals (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	choice TEXT NOT NULL,
	eligible BOOLEAN NOT NULL DEFAULT FALSE,
	responses JSONB NOT NULL DEFAULT '{}',
	summary TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knee_sessions_user ON knee_sessions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_knee_messages_session ON knee_messages(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_knee_referrals_created ON knee_referrals(created_at DESC);
`

// Store handles PostgreSQL persistence through a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the pool, checks the connection and applies the schema.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(backendName, op).Observe(time.Since(start).Seconds())
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		sess                      domain.Session
		id, userID, channel, step string
		responses                 map[string]string
	)
	err := row.Scan(&id, &userID, &channel, &step, &responses, &sess.Generation, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.ID = domain.SessionID(id)
	sess.UserID = domain.UserID(userID)
	sess.Channel = domain.Channel(channel)
	sess.Step = domain.Step(step)
	sess.Responses = domain.ResponseMapFromStrings(responses)
	return &sess, nil
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	defer observe("create_session", time.Now())

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO knee_sessions (id, user_id, channel, step, responses, generation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, string(session.ID), string(session.UserID), string(session.Channel), string(session.Step),
		session.Responses.Strings(), session.Generation, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres CreateSession: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	defer observe("update_session", time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE knee_sessions
		SET step = $1, responses = $2, generation = $3, updated_at = $4
		WHERE id = $5
	`, string(session.Step), session.Responses.Strings(), session.Generation, session.UpdatedAt, string(session.ID))
	if err != nil {
		return fmt.Errorf("postgres UpdateSession: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	defer observe("get_session", time.Now())

	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, channel, step, responses, generation, created_at, updated_at
		FROM knee_sessions WHERE id = $1
	`, string(id))

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres GetSession: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	defer observe("list_sessions", time.Now())

	// LIMIT NULL means no limit.
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, channel, step, responses, generation, created_at, updated_at
		FROM knee_sessions WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(userID), lim)
	if err != nil {
		return nil, fmt.Errorf("postgres ListSessionsByUser: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres ListSessionsByUser scan: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	defer observe("append_message", time.Now())

	options := msg.Options
	if options == nil {
		options = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO knee_messages (id, session_id, author, text, options, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(msg.ID), string(msg.SessionID), string(msg.Author), msg.Text, options, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	defer observe("get_messages", time.Now())

	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, author, text, options, created_at FROM (
			SELECT seq, id, author, text, options, created_at
			FROM knee_messages WHERE session_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent ORDER BY seq ASC
	`, string(sessionID), lim)
	if err != nil {
		return nil, fmt.Errorf("postgres GetMessagesBySession: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var (
			id, author, text string
			options          []string
			createdAt        time.Time
		)
		if err := rows.Scan(&id, &author, &text, &options, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres GetMessagesBySession scan: %w", err)
		}
		if len(options) == 0 {
			options = nil
		}
		out = append(out, &domain.Message{
			ID:        domain.MessageID(id),
			SessionID: sessionID,
			Author:    domain.Role(author),
			Text:      text,
			Options:   options,
			CreatedAt: createdAt,
		})
	}
	return out, rows.Err()
}

func (s *Store) TruncateMessages(ctx context.Context, sessionID domain.SessionID, keep int) error {
	defer observe("truncate_messages", time.Now())

	if keep < 0 {
		keep = 0
	}

	_, err := s.pool.Exec(ctx, `
		DELETE FROM knee_messages
		WHERE session_id = $1 AND seq NOT IN (
			SELECT seq FROM knee_messages WHERE session_id = $1 ORDER BY seq ASC LIMIT $2
		)
	`, string(sessionID), keep)
	if err != nil {
		return fmt.Errorf("postgres TruncateMessages: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// ReferralStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendReferral(ctx context.Context, ref *domain.Referral) error {
	defer observe("append_referral", time.Now())

	_, err := s.pool.Exec(ctx, `
		INSERT INTO knee_referrals (id, session_id, user_id, kind, choice, eligible, responses, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, string(ref.ID), string(ref.SessionID), string(ref.UserID), string(ref.Kind), string(ref.Choice),
		ref.Eligible, ref.Responses.Strings(), ref.Summary, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres AppendReferral: %w", err)
	}
	return nil
}

func (s *Store) ListReferrals(ctx context.Context, limit int) ([]*domain.Referral, error) {
	defer observe("list_referrals", time.Now())

	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, user_id, kind, choice, eligible, responses, summary, created_at
		FROM knee_referrals
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres ListReferrals: %w", err)
	}
	defer rows.Close()

	var out []*domain.Referral
	for rows.Next() {
		var (
			ref                                 domain.Referral
			id, sessionID, userID, kind, choice string
			responses                           map[string]string
		)
		err := rows.Scan(&id, &sessionID, &userID, &kind, &choice, &ref.Eligible, &responses, &ref.Summary, &ref.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres ListReferrals scan: %w", err)
		}
		ref.ID = domain.ReferralID(id)
		ref.SessionID = domain.SessionID(sessionID)
		ref.UserID = domain.UserID(userID)
		ref.Kind = domain.ReferralKind(kind)
		ref.Choice = domain.Answer(choice)
		ref.Responses = domain.ResponseMapFromStrings(responses)
		out = append(out, &ref)
	}
	return out, rows.Err()
}
