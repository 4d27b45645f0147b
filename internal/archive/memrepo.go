package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/pgn-typist/internal/domain"
)

// memrepo is used when no database is configured.
type memrepo struct {
	mu        sync.RWMutex
	nextID    int64
	byID      map[int64]*domain.ArchivedGame
	bySession map[string][]*domain.ArchivedGame
	seen      map[string]struct{} // sessionID|fingerprint
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:      make(map[int64]*domain.ArchivedGame),
		bySession: make(map[string][]*domain.ArchivedGame),
		seen:      make(map[string]struct{}),
	}
}

func (m *memrepo) Insert(_ context.Context, game *domain.ArchivedGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateExport
	}
	key := game.SessionID + "|" + Fingerprint(game.PGN)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.seen[key]; exists {
		return 0, ErrDuplicateExport
	}
	m.nextID++
	cp := cloneGame(game)
	cp.ID = m.nextID
	m.seen[key] = struct{}{}
	m.byID[cp.ID] = cp
	m.bySession[cp.SessionID] = append(m.bySession[cp.SessionID], cp)
	return cp.ID, nil
}

func (m *memrepo) Recent(_ context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	m.mu.RLock()
	items := append([]*domain.ArchivedGame(nil), m.bySession[sessionID]...)
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ExportedAt.Equal(items[j].ExportedAt) {
			return items[i].ExportedAt.After(items[j].ExportedAt)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.ArchivedGame, len(items))
	for i, g := range items {
		out[i] = cloneGame(g)
	}
	return out, nil
}

func (m *memrepo) Get(_ context.Context, id int64) (*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneGame(g), nil
}

func cloneGame(g *domain.ArchivedGame) *domain.ArchivedGame {
	cp := *g
	cp.Headers = g.Headers.Clone()
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	cp.Comments = make(map[int]string, len(g.Comments))
	for k, v := range g.Comments {
		cp.Comments[k] = v
	}
	return &cp
}
