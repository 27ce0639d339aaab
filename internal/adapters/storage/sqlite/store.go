package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/metrics"
)

const backendName = "sqlite"

// Store persists sessions, transcripts and referrals in a single SQLite file.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath.
// If dbPath is empty, defaults to "./data/knee.db"
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = "./data/knee.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		step TEXT NOT NULL,
		responses TEXT NOT NULL DEFAULT '{}',
		generation INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS referrals (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		choice TEXT NOT NULL,
		eligible INTEGER NOT NULL DEFAULT 0,
		responses TEXT NOT NULL DEFAULT '{}',
		summary TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_referrals_created ON referrals(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(backendName, op).Observe(time.Since(start).Seconds())
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess      domain.Session
		id        string
		userID    string
		channel   string
		step      string
		responses string
	)
	err := row.Scan(&id, &userID, &channel, &step, &responses, &sess.Generation, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(responses), &raw); err != nil {
		return nil, fmt.Errorf("decode responses: %w", err)
	}

	sess.ID = domain.SessionID(id)
	sess.UserID = domain.UserID(userID)
	sess.Channel = domain.Channel(channel)
	sess.Step = domain.Step(step)
	sess.Responses = domain.ResponseMapFromStrings(raw)
	return &sess, nil
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	defer observe("create_session", time.Now())

	responses, err := encodeJSON(session.Responses.Strings())
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, channel, step, responses, generation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, string(session.ID), string(session.UserID), string(session.Channel), string(session.Step),
		responses, session.Generation, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite CreateSession: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite CreateSession: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	defer observe("update_session", time.Now())

	responses, err := encodeJSON(session.Responses.Strings())
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET step = ?, responses = ?, generation = ?, updated_at = ?
		WHERE id = ?
	`, string(session.Step), responses, session.Generation, session.UpdatedAt, string(session.ID))
	if err != nil {
		return fmt.Errorf("sqlite UpdateSession: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite UpdateSession: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	defer observe("get_session", time.Now())

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, channel, step, responses, generation, created_at, updated_at
		FROM sessions WHERE id = ?
	`, string(id))

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("sqlite GetSession: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	defer observe("list_sessions", time.Now())

	if limit <= 0 {
		limit = -1 // no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel, step, responses, generation, created_at, updated_at
		FROM sessions WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListSessionsByUser: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite ListSessionsByUser scan: %w", err)
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
	encoded, err := encodeJSON(options)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, author, text, options, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(msg.ID), string(msg.SessionID), string(msg.Author), msg.Text, encoded, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite AppendMessage: %w", err)
	}
	return nil
}

// GetMessagesBySession returns messages in insertion order. With a limit it
// returns the most recent `limit` of them.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	defer observe("get_messages", time.Now())

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, text, options, created_at FROM (
			SELECT seq, id, author, text, options, created_at
			FROM messages WHERE session_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, string(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite GetMessagesBySession: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var (
			id, author, text, options string
			createdAt                 time.Time
		)
		if err := rows.Scan(&id, &author, &text, &options, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite GetMessagesBySession scan: %w", err)
		}

		var opts []string
		if err := json.Unmarshal([]byte(options), &opts); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
		if len(opts) == 0 {
			opts = nil
		}

		out = append(out, &domain.Message{
			ID:        domain.MessageID(id),
			SessionID: sessionID,
			Author:    domain.Role(author),
			Text:      text,
			Options:   opts,
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

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE session_id = ? AND seq NOT IN (
			SELECT seq FROM messages WHERE session_id = ? ORDER BY seq ASC LIMIT ?
		)
	`, string(sessionID), string(sessionID), keep)
	if err != nil {
		return fmt.Errorf("sqlite TruncateMessages: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// ReferralStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendReferral(ctx context.Context, ref *domain.Referral) error {
	defer observe("append_referral", time.Now())

	responses, err := encodeJSON(ref.Responses.Strings())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO referrals (id, session_id, user_id, kind, choice, eligible, responses, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(ref.ID), string(ref.SessionID), string(ref.UserID), string(ref.Kind), string(ref.Choice),
		ref.Eligible, responses, ref.Summary, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite AppendReferral: %w", err)
	}
	return nil
}

func (s *Store) ListReferrals(ctx context.Context, limit int) ([]*domain.Referral, error) {
	defer observe("list_referrals", time.Now())

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, kind, choice, eligible, responses, summary, created_at
		FROM referrals
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListReferrals: %w", err)
	}
	defer rows.Close()

	var out []*domain.Referral
	for rows.Next() {
		var (
			ref                                         domain.Referral
			id, sessionID, userID, kind, choice, respJS string
		)
		err := rows.Scan(&id, &sessionID, &userID, &kind, &choice, &ref.Eligible, &respJS, &ref.Summary, &ref.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite ListReferrals scan: %w", err)
		}

		var raw map[string]string
		if err := json.Unmarshal([]byte(respJS), &raw); err != nil {
			return nil, fmt.Errorf("decode responses: %w", err)
		}

		ref.ID = domain.ReferralID(id)
		ref.SessionID = domain.SessionID(sessionID)
		ref.UserID = domain.UserID(userID)
		ref.Kind = domain.ReferralKind(kind)
		ref.Choice = domain.Answer(choice)
		ref.Responses = domain.ResponseMapFromStrings(raw)
		out = append(out, &ref)
	}
	return out, rows.Err()
}
