// Package redis provides Redis-based adapters for sessions and the admin flag.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
)

// SessionStore is a Redis-based session store for production use.
// It handles TTL semantics automatically based on session ExpiresAt and keeps
// a per-user index so every session of one account can be invalidated.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, "session:")
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

func (s *SessionStore) sessionKey(id string) string { return s.prefix + id }

func (s *SessionStore) userKey(uid string) string { return s.prefix + "user:" + uid }

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.ID), data, ttl)
	if sess.UserID != "" {
		userKey := s.userKey(sess.UserID)
		pipe.SAdd(ctx, userKey, sess.ID)
		// The index lives as long as its longest session.
		pipe.ExpireGT(ctx, userKey, ttl)
		pipe.ExpireNX(ctx, userKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	sess, err := s.load(ctx, id)
	if err != nil {
		return domainauth.Session{}, err
	}

	if time.Now().After(sess.ExpiresAt) {
		if deleteErr := s.Delete(ctx, id); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	return sess, nil
}

func (s *SessionStore) load(ctx context.Context, id string) (domainauth.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal(data, &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	sess, err := s.load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		// Unreadable record; drop the key and leave the index to expire.
		return s.client.Del(ctx, s.sessionKey(id)).Err()
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(id))
	if sess.UserID != "" {
		pipe.SRem(ctx, s.userKey(sess.UserID), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// MarkRefreshRequired flags every live session belonging to uid so that the
// next request must present a fresh token before a role is trusted.
func (s *SessionStore) MarkRefreshRequired(ctx context.Context, uid string) (int, error) {
	if uid == "" {
		return 0, nil
	}

	ids, err := s.client.SMembers(ctx, s.userKey(uid)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}

	marked := 0
	for _, id := range ids {
		ok, markErr := s.markOne(ctx, uid, id)
		if markErr != nil {
			return marked, markErr
		}
		if ok {
			marked++
		}
	}
	return marked, nil
}

func (s *SessionStore) markOne(ctx context.Context, uid, id string) (bool, error) {
	key := s.sessionKey(id)
	sess, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, s.client.SRem(ctx, s.userKey(uid), id).Err()
	}
	if err != nil {
		return false, err
	}
	if sess.State == domainauth.SessionRefreshRequired {
		return false, nil
	}

	sess.State = domainauth.SessionRefreshRequired
	data, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}
	// KeepTTL leaves the original expiry untouched.
	if setErr := s.client.SetArgs(ctx, key, data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err(); setErr != nil {
		if errors.Is(setErr, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis mark session: %w", setErr)
	}
	return true, nil
}

// ErrNotFound is returned when a session is not found.
var ErrNotFound error = apperrors.NotFound("session not found")
