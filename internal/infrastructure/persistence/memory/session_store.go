// Package memory 提供进程内会话存储
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
	apperrors "drm-scribe-orchestra/pkg/errors"
)

type record struct {
	data      []byte
	expiresAt time.Time
}

// SessionStore 单实例部署使用的会话存储；快照按 JSON 保存，读出的是独立副本
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]record
	ttl  time.Duration
	now  func() time.Time
}

// NewSessionStore ttl <= 0 表示不过期
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		data: make(map[string]record),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *SessionStore) Save(_ context.Context, snap *entity.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to marshal session")
	}
	rec := record{data: data}
	if s.ttl > 0 {
		rec.expiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.data[snap.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*entity.SessionSnapshot, error) {
	s.mu.RLock()
	rec, ok := s.data[id]
	s.mu.RUnlock()
	if !ok || s.expired(rec) {
		return nil, apperrors.ErrSessionNotFound.WithDetail(id)
	}
	var snap entity.SessionSnapshot
	if err := json.Unmarshal(rec.data, &snap); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "corrupt session")
	}
	return &snap, nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

// Purge 清除已过期的记录
func (s *SessionStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.data {
		if s.expired(rec) {
			delete(s.data, id)
			n++
		}
	}
	return n
}

func (s *SessionStore) expired(rec record) bool {
	return !rec.expiresAt.IsZero() && s.now().After(rec.expiresAt)
}
