package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/metrics"
)

const backendName = "redis"

// referralsKey holds every referral, newest at the head.
const referralsKey = "knee:referrals"

// Store keeps sessions as JSON strings, transcripts as lists and a per-user
// sorted set for listing. A non-zero ttl expires idle sessions together with
// their transcripts.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore connects to redisURL and verifies the connection.
func NewStore(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func sessionKey(id domain.SessionID) string {
	return fmt.Sprintf("knee:session:%s", id)
}

func messagesKey(id domain.SessionID) string {
	return fmt.Sprintf("knee:session:%s:messages", id)
}

func userSessionsKey(id domain.UserID) string {
	return fmt.Sprintf("knee:user:%s:sessions", id)
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(backendName, op).Observe(time.Since(start).Seconds())
}

type sessionRecord struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Channel    string            `json:"channel"`
	Step       string            `json:"step"`
	Responses  map[string]string `json:"responses"`
	Generation int64             `json:"generation"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func newSessionRecord(s *domain.Session) sessionRecord {
	return sessionRecord{
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

func (r sessionRecord) toDomain() *domain.Session {
	return &domain.Session{
		ID:         domain.SessionID(r.ID),
		UserID:     domain.UserID(r.UserID),
		Channel:    domain.Channel(r.Channel),
		Step:       domain.Step(r.Step),
		Responses:  domain.ResponseMapFromStrings(r.Responses),
		Generation: r.Generation,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type messageRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Options   []string  `json:"options,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	defer observe("create_session", time.Now())

	data, err := json.Marshal(newSessionRecord(session))
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis CreateSession: %w", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}

	userKey := userSessionsKey(session.UserID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, userKey, redis.Z{
		Score:  float64(session.CreatedAt.UnixNano()),
		Member: string(session.ID),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, userKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis CreateSession index: %w", err)
	}
	return nil
}

// UpdateSession overwrites an existing session and refreshes the expiry of
// the session and its transcript.
func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	defer observe("update_session", time.Now())

	data, err := json.Marshal(newSessionRecord(session))
	if err != nil {
		return err
	}

	ttl := s.ttl
	if ttl <= 0 {
		ttl = redis.KeepTTL
	}
	ok, err := s.client.SetXX(ctx, sessionKey(session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis UpdateSession: %w", err)
	}
	if !ok {
		return domain.ErrSessionNotFound
	}

	if s.ttl > 0 {
		s.client.Expire(ctx, messagesKey(session.ID), s.ttl)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	defer observe("get_session", time.Now())

	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis GetSession: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis GetSession decode: %w", err)
	}
	return rec.toDomain(), nil
}

// ListSessionsByUser returns the user's sessions newest first. Index entries
// whose session has expired are skipped.
func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	defer observe("list_sessions", time.Now())

	ids, err := s.client.ZRevRange(ctx, userSessionsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ListSessionsByUser: %w", err)
	}

	var out []*domain.Session
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		sess, err := s.GetSession(ctx, domain.SessionID(id))
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	defer observe("append_message", time.Now())

	data, err := json.Marshal(messageRecord{
		ID:        string(msg.ID),
		SessionID: string(msg.SessionID),
		Author:    string(msg.Author),
		Text:      msg.Text,
		Options:   msg.Options,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return err
	}

	key := messagesKey(msg.SessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	defer observe("get_messages", time.Now())

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	items, err := s.client.LRange(ctx, messagesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis GetMessagesBySession: %w", err)
	}

	out := make([]*domain.Message, 0, len(items))
	for _, item := range items {
		var rec messageRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("redis GetMessagesBySession decode: %w", err)
		}
		out = append(out, &domain.Message{
			ID:        domain.MessageID(rec.ID),
			SessionID: domain.SessionID(rec.SessionID),
			Author:    domain.Role(rec.Author),
			Text:      rec.Text,
			Options:   rec.Options,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) TruncateMessages(ctx context.Context, sessionID domain.SessionID, keep int) error {
	defer observe("truncate_messages", time.Now())

	key := messagesKey(sessionID)
	var err error
	if keep <= 0 {
		err = s.client.Del(ctx, key).Err()
	} else {
		err = s.client.LTrim(ctx, key, 0, int64(keep-1)).Err()
	}
	if err != nil {
		return fmt.Errorf("redis TruncateMessages: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// ReferralStore implementation
// ─────────────────────────────────────────

// Referrals are not subject to the session ttl.
func (s *Store) AppendReferral(ctx context.Context, ref *domain.Referral) error {
	defer observe("append_referral", time.Now())

	data, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	if err := s.client.LPush(ctx, referralsKey, data).Err(); err != nil {
		return fmt.Errorf("redis AppendReferral: %w", err)
	}
	return nil
}

func (s *Store) ListReferrals(ctx context.Context, limit int) ([]*domain.Referral, error) {
	defer observe("list_referrals", time.Now())

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	items, err := s.client.LRange(ctx, referralsKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ListReferrals: %w", err)
	}

	out := make([]*domain.Referral, 0, len(items))
	for _, item := range items {
		var ref domain.Referral
		if err := json.Unmarshal([]byte(item), &ref); err != nil {
			return nil, fmt.Errorf("redis ListReferrals decode: %w", err)
		}
		out = append(out, &ref)
	}
	return out, nil
}
