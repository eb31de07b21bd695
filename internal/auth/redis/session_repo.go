// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

// Package redis implements auth.SessionRepository on Redis, using native key
// TTLs for expiry. Sessions are stored as JSON under the token hash, with a
// small id -> token hash index so Delete and Refresh can work from the
// session ID alone.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/doorward/doorward/internal/auth"
)

const (
	sessionKeyPrefix = "session:"
	indexKeyPrefix   = "session:id:"
)

// SessionRepository implements auth.SessionRepository using Redis.
type SessionRepository struct {
	rdb *redis.Client
}

// NewSessionRepository creates a new Redis-backed session repository.
func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

// sessionRecord is the JSON payload stored under the token hash key.
type sessionRecord struct {
	ID            string    `json:"id"`
	TokenHash     string    `json:"tokenHash"`
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	UserCreatedAt time.Time `json:"userCreatedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
	LastSeenAt    time.Time `json:"lastSeenAt"`
}

// Create stores a new session with a TTL matching its expiry.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	record := recordFromSession(session)
	payload, err := json.Marshal(record)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "marshal session").
			Wrap(err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").
			Errorf("session already expired at creation")
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.TokenHash, payload, ttl)
	pipe.Set(ctx, indexKeyPrefix+session.ID.String(), session.TokenHash, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "set session keys").
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash. Redis evicts expired
// keys itself, so a missing key covers both unknown and expired sessions.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKeyPrefix+tokenHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "unmarshal session").
			Wrap(err)
	}
	return record.toSession()
}

// Refresh extends a session's expiry and updates its last-seen time by
// rewriting both keys with the new TTL.
func (r *SessionRepository) Refresh(ctx context.Context, id ulid.ULID, expiresAt, lastSeen time.Time) error {
	tokenHash, err := r.rdb.Get(ctx, indexKeyPrefix+id.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return oops.Code("SESSION_NOT_FOUND").
				With("id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		return oops.Code("SESSION_REFRESH_FAILED").
			With("operation", "resolve session id").
			Wrap(err)
	}

	session, err := r.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return err
	}

	session.ExpiresAt = expiresAt
	session.LastSeenAt = lastSeen

	payload, err := json.Marshal(recordFromSession(session))
	if err != nil {
		return oops.Code("SESSION_REFRESH_FAILED").
			With("operation", "marshal session").
			Wrap(err)
	}

	ttl := time.Until(expiresAt)
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+tokenHash, payload, ttl)
	pipe.Set(ctx, indexKeyPrefix+id.String(), tokenHash, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_REFRESH_FAILED").
			With("operation", "rewrite session keys").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tokenHash, err := r.rdb.Get(ctx, indexKeyPrefix+id.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return oops.Code("SESSION_NOT_FOUND").
				With("id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "resolve session id").
			Wrap(err)
	}

	if err := r.rdb.Del(ctx, sessionKeyPrefix+tokenHash, indexKeyPrefix+id.String()).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session keys").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys on its own.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func recordFromSession(s *auth.Session) sessionRecord {
	return sessionRecord{
		ID:            s.ID.String(),
		TokenHash:     s.TokenHash,
		UserID:        s.User.ID.String(),
		Username:      s.User.Username,
		UserCreatedAt: s.User.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		CreatedAt:     s.CreatedAt,
		LastSeenAt:    s.LastSeenAt,
	}
}

func (rec sessionRecord) toSession() (*auth.Session, error) {
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("id", rec.ID).
			Wrap(err)
	}
	userID, err := ulid.Parse(rec.UserID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("user_id", rec.UserID).
			Wrap(err)
	}

	return &auth.Session{
		ID:        id,
		TokenHash: rec.TokenHash,
		User: auth.Snapshot{
			ID:        userID,
			Username:  rec.Username,
			Password:  auth.PasswordMask,
			CreatedAt: rec.UserCreatedAt,
		},
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
		LastSeenAt: rec.LastSeenAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
