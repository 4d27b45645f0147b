// Package store mirrors transcription sessions into durable storage.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/pgn-typist/internal/domain"
)

// Store persists session records. Load returns nil, nil for unknown ids.
type Store interface {
	Load(ctx context.Context, id string) (*domain.SessionRecord, error)
	Save(ctx context.Context, rec *domain.SessionRecord) error
	Delete(ctx context.Context, id string) error
	// Recent lists session ids, most recently updated first.
	Recent(ctx context.Context, limit int) ([]string, error)
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	ErrEmptyID   = staticErr("store: empty session id")
	ErrNilRecord = staticErr("store: nil record")
)

// Memory keeps records in process. Used by the terminal client and when no
// Redis URL is configured.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]*domain.SessionRecord
}

func NewMemory() *Memory {
	return &Memory{recs: make(map[string]*domain.SessionRecord)}
}

func (m *Memory) Load(_ context.Context, id string) (*domain.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *Memory) Save(_ context.Context, rec *domain.SessionRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return ErrEmptyID
	}
	m.mu.Lock()
	m.recs[id] = rec.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.recs, strings.TrimSpace(id))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	recs := make([]*domain.SessionRecord, 0, len(m.recs))
	for _, r := range m.recs {
		recs = append(recs, r)
	}
	m.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].UpdatedAt.After(recs[j].UpdatedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids, nil
}
