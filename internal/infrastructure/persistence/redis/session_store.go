package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"drm-scribe-orchestra/internal/domain/entity"
	apperrors "drm-scribe-orchestra/pkg/errors"
)

const defaultSessionPrefix = "drm:session:"

// SessionStore 以 JSON 快照形式保存会话，每次写入刷新 TTL
type SessionStore struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewSessionStore 创建会话存储；ttl <= 0 表示不过期
func NewSessionStore(client *Client, prefix string, ttl time.Duration) *SessionStore {
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &SessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *SessionStore) key(id string) string {
	return s.prefix + id
}

// Save 写入快照
func (s *SessionStore) Save(ctx context.Context, snap *entity.SessionSnapshot) error {
	ctx, span := tracer.Start(ctx, "session.Save")
	span.SetAttributes(attribute.String("session.id", snap.ID))
	defer span.End()

	data, err := json.Marshal(snap)
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to marshal session")
	}
	if err := s.client.set(ctx, s.key(snap.ID), data, s.ttl); err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save session")
	}
	return nil
}

// Get 读取快照，不存在时返回 ErrSessionNotFound
func (s *SessionStore) Get(ctx context.Context, id string) (*entity.SessionSnapshot, error) {
	ctx, span := tracer.Start(ctx, "session.Get")
	span.SetAttributes(attribute.String("session.id", id))
	defer span.End()

	data, err := s.client.get(ctx, s.key(id))
	if err != nil {
		if IsNil(err) {
			return nil, apperrors.ErrSessionNotFound.WithDetail(id)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load session")
	}

	var snap entity.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, fmt.Sprintf("corrupt session %s", id))
	}
	return &snap, nil
}

// Delete 删除快照
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.client.del(ctx, s.key(id))
}
