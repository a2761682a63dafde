package repository

import (
	"context"

	"drm-scribe-orchestra/internal/domain/entity"
)

// SessionStore 会话快照存储（TTL 缓存语义，不保证持久化）
type SessionStore interface {
	Save(ctx context.Context, snap *entity.SessionSnapshot) error
	// Get 不存在时返回 ErrSessionNotFound
	Get(ctx context.Context, id string) (*entity.SessionSnapshot, error)
	Delete(ctx context.Context, id string) error
}
