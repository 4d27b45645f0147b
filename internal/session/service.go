// Package session owns live transcription sessions: one move-history engine
// per session, header and settings editing, asynchronous persistence and PGN
// export with archiving.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/pgn-typist/internal/archive"
	"github.com/park285/pgn-typist/internal/domain"
	"github.com/park285/pgn-typist/internal/metrics"
	"github.com/park285/pgn-typist/internal/movehistory"
	"github.com/park285/pgn-typist/internal/notation"
	"github.com/park285/pgn-typist/internal/pgn"
	"github.com/park285/pgn-typist/internal/rules"
	"github.com/park285/pgn-typist/internal/store"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrClosed          = errors.New("session service closed")
)

const maxHistoryLimit = 100

type Config struct {
	DefaultLang    string
	UndoLimit      int
	HistoryLimit   int
	PersistQueue   int
	PersistTimeout time.Duration
}

type Service struct {
	oracle  *rules.Oracle
	table   *notation.Table
	store   store.Store
	archive archive.Repository
	metrics *metrics.Metrics
	cfg     Config
	logger  *zap.Logger
	persist *persister
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*live
	closed   bool
	once     sync.Once
}

// live is one in-memory session. All fields are guarded by mu.
type live struct {
	mu        sync.Mutex
	id        string
	engine    *movehistory.Engine
	headers   pgn.Headers
	settings  domain.Settings
	createdAt time.Time
	updatedAt time.Time
	// deleted is set by Delete; later edits through a stale pointer must
	// not queue the record again.
	deleted bool
}

// NewService wires a service. A nil store keeps sessions in memory only and a
// nil archive disables export archiving.
func NewService(oracle *rules.Oracle, table *notation.Table, st store.Store, repo archive.Repository, m *metrics.Metrics, cfg Config, logger *zap.Logger) (*Service, error) {
	if oracle == nil {
		return nil, errors.New("rules oracle required")
	}
	if table == nil {
		return nil, errors.New("notation table required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.DefaultLang = strings.ToLower(strings.TrimSpace(cfg.DefaultLang))
	if cfg.DefaultLang == "" {
		cfg.DefaultLang = notation.English
	}
	if !table.Has(cfg.DefaultLang) {
		return nil, fmt.Errorf("unsupported default language %q", cfg.DefaultLang)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = maxHistoryLimit
	}
	if st == nil {
		st = store.NewMemory()
	}
	return &Service{
		oracle:   oracle,
		table:    table,
		store:    st,
		archive:  repo,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
		persist:  newPersister(st, cfg.PersistQueue, cfg.PersistTimeout, m, logger),
		now:      time.Now,
		sessions: make(map[string]*live),
	}, nil
}

// Languages lists the supported notation languages.
func (s *Service) Languages() []notation.Language { return s.table.Languages() }

// Create starts an empty session with default headers and settings.
func (s *Service) Create(ctx context.Context) (*State, error) {
	return s.create(ctx, nil)
}

// Import starts a session from PGN text. Only the mainline is kept.
func (s *Service) Import(ctx context.Context, text string) (*State, error) {
	game, err := pgn.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.create(ctx, game)
}

func (s *Service) create(_ context.Context, game *pgn.Game) (*State, error) {
	now := s.now()
	sess := &live{
		id:        uuid.NewString(),
		engine:    s.newEngine(),
		headers:   pgn.DefaultHeaders(now),
		settings:  domain.DefaultSettings(s.cfg.DefaultLang),
		createdAt: now,
		updatedAt: now,
	}
	if game != nil {
		kept := sess.engine.Load(game.Moves, game.Comments)
		if kept < len(game.Moves) {
			s.logger.Warn("pgn_import_truncated",
				zap.Int("moves", len(game.Moves)),
				zap.Int("kept", kept),
			)
		}
		for _, h := range game.Headers {
			sess.headers = sess.headers.Set(h.Key, h.Value)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.sessions[sess.id] = sess
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(active)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.deleted {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sess.id)
	}
	s.syncResult(sess)
	s.persist.save(s.record(sess))
	s.logger.Info("session_created",
		zap.String("session_id", sess.id),
		zap.Int("moves", sess.engine.Len()),
	)
	return s.stateOf(sess), nil
}

func (s *Service) newEngine() *movehistory.Engine {
	return movehistory.New(s.oracle, movehistory.WithUndoLimit(s.cfg.UndoLimit))
}

// lookup returns the live session, restoring it from the store on a miss.
func (s *Service) lookup(ctx context.Context, id string) (*live, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	rec, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}
	restored := s.restore(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	s.sessions[id] = restored
	s.metrics.SetActiveSessions(len(s.sessions))
	return restored, nil
}

func (s *Service) restore(rec *domain.SessionRecord) *live {
	engine := s.newEngine()
	kept := engine.Load(rec.Moves, rec.Comments)
	if kept < len(rec.Moves) {
		s.logger.Warn("session_restore_truncated",
			zap.String("session_id", rec.ID),
			zap.Int("moves", len(rec.Moves)),
			zap.Int("kept", kept),
		)
	}
	settings := rec.Settings.Normalize()
	if !s.table.Has(settings.Language) {
		settings.Language = s.cfg.DefaultLang
	}
	headers := rec.Headers.Clone()
	if len(headers) == 0 {
		headers = pgn.DefaultHeaders(rec.CreatedAt)
	}
	return &live{
		id:        rec.ID,
		engine:    engine,
		headers:   headers,
		settings:  settings,
		createdAt: rec.CreatedAt,
		updatedAt: rec.UpdatedAt,
	}
}

func (s *Service) record(sess *live) *domain.SessionRecord {
	return &domain.SessionRecord{
		ID:        sess.id,
		Moves:     sess.engine.Moves(),
		Comments:  domain.CommentMap(sess.engine.Comments()),
		Headers:   sess.headers.Clone(),
		Settings:  sess.settings,
		CreatedAt: sess.createdAt,
		UpdatedAt: sess.updatedAt,
	}
}

// syncResult writes the final result into the Result header once the game
// at the end of the sequence is over.
func (s *Service) syncResult(sess *live) {
	if r := sess.engine.FinalResult(); r != movehistory.ResultOngoing {
		sess.headers = sess.headers.Set("Result", r)
	}
}

// view runs fn under the session lock without persisting.
func (s *Service) view(ctx context.Context, id string, fn func(*live)) (*State, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.deleted {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if fn != nil {
		fn(sess)
	}
	return s.stateOf(sess), nil
}

// mutate runs fn under the session lock; when fn reports a change the
// session is stamped and queued for persistence.
func (s *Service) mutate(ctx context.Context, id, op string, fn func(*live) bool) (*State, error) {
	return s.mutateAs(ctx, id, op, metrics.OutcomeNoop, fn)
}

func (s *Service) mutateAs(ctx context.Context, id, op, unchanged string, fn func(*live) bool) (*State, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.mutateLive(sess, op, unchanged, fn)
}

// mutateLive applies fn to a session already looked up. The pointer may have
// been deleted since.
func (s *Service) mutateLive(sess *live, op, unchanged string, fn func(*live) bool) (*State, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.deleted {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sess.id)
	}
	if !fn(sess) {
		s.metrics.Edit(op, unchanged)
		return s.stateOf(sess), nil
	}
	sess.updatedAt = s.now()
	s.syncResult(sess)
	s.persist.save(s.record(sess))
	s.metrics.Edit(op, metrics.OutcomeApplied)
	s.logger.Debug("session_edit",
		zap.String("session_id", sess.id),
		zap.String("op", op),
		zap.Int("moves", sess.engine.Len()),
	)
	return s.stateOf(sess), nil
}

// Get returns the current state of a session.
func (s *Service) Get(ctx context.Context, id string) (*State, error) {
	return s.view(ctx, id, nil)
}

// SubmitMove translates input from lang (the session language when empty)
// and submits it at the cursor. An illegal move is not an error: the outcome
// reports Accepted=false and the state is unchanged.
func (s *Service) SubmitMove(ctx context.Context, id, input, lang string) (*MoveOutcome, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty move", ErrInvalidInput)
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang != "" && !s.table.Has(lang) {
		return nil, fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, lang)
	}
	out := &MoveOutcome{Input: input}
	state, err := s.mutateAs(ctx, id, "submit", metrics.OutcomeRejected, func(sess *live) bool {
		l := lang
		if l == "" {
			l = sess.settings.Language
		}
		edit, ok := sess.engine.SubmitMove(s.table.ToCanonical(input, l))
		if !ok {
			return false
		}
		out.Accepted = true
		out.Edit = edit
		if edit.Discarded > 0 {
			s.logger.Info("continuation_truncated",
				zap.String("session_id", sess.id),
				zap.Int("ply", edit.Ply),
				zap.Int("discarded", edit.Discarded),
			)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	out.State = state
	return out, nil
}

// SetCursor moves the cursor. Navigation is not persisted.
func (s *Service) SetCursor(ctx context.Context, id string, c movehistory.Cursor) (*State, error) {
	return s.view(ctx, id, func(sess *live) { sess.engine.SetCursor(c) })
}

// Navigate steps the cursor backward (negative) or forward (positive).
func (s *Service) Navigate(ctx context.Context, id string, step int) (*State, error) {
	return s.view(ctx, id, func(sess *live) { sess.engine.Navigate(step) })
}

func (s *Service) TruncateFrom(ctx context.Context, id string, index int) (*State, error) {
	return s.mutate(ctx, id, "truncate", func(sess *live) bool { return sess.engine.TruncateFrom(index) })
}

func (s *Service) DeleteLast(ctx context.Context, id string) (*State, error) {
	return s.mutate(ctx, id, "delete_last", func(sess *live) bool { return sess.engine.DeleteLast() })
}

func (s *Service) ClearAll(ctx context.Context, id string) (*State, error) {
	return s.mutate(ctx, id, "clear", func(sess *live) bool { return sess.engine.ClearAll() })
}

func (s *Service) SetComment(ctx context.Context, id string, ply int, text string) (*State, error) {
	return s.mutate(ctx, id, "set_comment", func(sess *live) bool { return sess.engine.SetComment(ply, text) })
}

func (s *Service) DeleteComment(ctx context.Context, id string, ply int) (*State, error) {
	return s.mutate(ctx, id, "delete_comment", func(sess *live) bool { return sess.engine.DeleteComment(ply) })
}

func (s *Service) ClearComments(ctx context.Context, id string) (*State, error) {
	return s.mutate(ctx, id, "clear_comments", func(sess *live) bool { return sess.engine.ClearAllComments() })
}

func (s *Service) Undo(ctx context.Context, id string) (*State, error) {
	return s.mutate(ctx, id, "undo", func(sess *live) bool { return sess.engine.Undo() })
}

func (s *Service) Redo(ctx context.Context, id string) (*State, error) {
	return s.mutate(ctx, id, "redo", func(sess *live) bool { return sess.engine.Redo() })
}

// SetHeader adds or updates a PGN tag.
func (s *Service) SetHeader(ctx context.Context, id, key, value string) (*State, error) {
	key = strings.TrimSpace(key)
	if !pgn.ValidKey(key) {
		return nil, fmt.Errorf("%w: header key %q", ErrInvalidInput, key)
	}
	value = pgn.CleanValue(value)
	return s.mutate(ctx, id, "set_header", func(sess *live) bool {
		if cur, ok := sess.headers.Get(key); ok && cur == value {
			return false
		}
		sess.headers = sess.headers.Set(key, value)
		return true
	})
}

func (s *Service) RemoveHeader(ctx context.Context, id, key string) (*State, error) {
	key = strings.TrimSpace(key)
	return s.mutate(ctx, id, "remove_header", func(sess *live) bool {
		if _, ok := sess.headers.Get(key); !ok {
			return false
		}
		sess.headers = sess.headers.Remove(key)
		return true
	})
}

// ResetHeaders restores the default tag set dated today.
func (s *Service) ResetHeaders(ctx context.Context, id string) (*State, error) {
	return s.mutate(ctx, id, "reset_headers", func(sess *live) bool {
		sess.headers = pgn.DefaultHeaders(s.now())
		return true
	})
}

// SettingsPatch carries the settings fields to change; nil fields are kept.
type SettingsPatch struct {
	Orientation      *string
	ShowLastMove     *bool
	ShowSelectedMove *bool
	Language         *string
}

func (s *Service) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (*State, error) {
	if patch.Orientation != nil {
		o := strings.ToLower(strings.TrimSpace(*patch.Orientation))
		if o != domain.OrientationWhite && o != domain.OrientationBlack {
			return nil, fmt.Errorf("%w: orientation %q", ErrInvalidInput, *patch.Orientation)
		}
		patch.Orientation = &o
	}
	if patch.Language != nil {
		l := strings.ToLower(strings.TrimSpace(*patch.Language))
		if !s.table.Has(l) {
			return nil, fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, *patch.Language)
		}
		patch.Language = &l
	}
	return s.mutate(ctx, id, "settings", func(sess *live) bool {
		next := sess.settings
		if patch.Orientation != nil {
			next.Orientation = *patch.Orientation
		}
		if patch.ShowLastMove != nil {
			next.ShowLastMove = *patch.ShowLastMove
		}
		if patch.ShowSelectedMove != nil {
			next.ShowSelectedMove = *patch.ShowSelectedMove
		}
		if patch.Language != nil {
			next.Language = *patch.Language
		}
		if next == sess.settings {
			return false
		}
		sess.settings = next
		return true
	})
}

// Export renders the session as PGN and archives it. Archive failures are
// logged; the PGN is returned regardless.
func (s *Service) Export(ctx context.Context, id string, withComments bool) (*ExportResult, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	moves := sess.engine.Moves()
	comments := map[int]string(sess.engine.Comments())
	headers := sess.headers.Clone()
	final := sess.engine.FinalResult()
	sess.mu.Unlock()

	text := pgn.Export(pgn.ExportOptions{
		Headers:      headers,
		Moves:        moves,
		Comments:     comments,
		Result:       final,
		WithComments: withComments,
	})
	code, title := s.oracle.Opening(moves)
	res := &ExportResult{
		PGN:     text,
		Result:  pgn.ResultToken(headers, final),
		ECO:     code,
		Opening: title,
	}
	if s.archive == nil {
		s.metrics.Exported("disabled")
		return res, nil
	}

	gameID, err := s.archive.Insert(ctx, &domain.ArchivedGame{
		SessionID:  id,
		Headers:    headers,
		MovesSAN:   moves,
		Comments:   comments,
		PGN:        text,
		Result:     res.Result,
		ECO:        code,
		Opening:    title,
		PlyCount:   len(moves),
		ExportedAt: s.now(),
	})
	switch {
	case err == nil:
		res.ArchiveID = gameID
		res.Archived = true
		s.metrics.Exported("stored")
	case errors.Is(err, archive.ErrDuplicateExport):
		s.metrics.Exported("duplicate")
	default:
		s.metrics.Exported("failed")
		s.logger.Warn("export_archive_failed", zap.String("session_id", id), zap.Error(err))
	}
	return res, nil
}

// History lists archived exports of a session, newest first.
func (s *Service) History(ctx context.Context, id string, limit int) ([]*domain.ArchivedGame, error) {
	if _, err := s.lookup(ctx, id); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, nil
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	games, err := s.archive.Recent(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	return games, nil
}

// ArchivedGame fetches one archived export.
func (s *Service) ArchivedGame(ctx context.Context, gameID int64) (*domain.ArchivedGame, error) {
	if s.archive == nil {
		return nil, archive.ErrNotFound
	}
	return s.archive.Get(ctx, gameID)
}

// Recent lists stored session ids, most recently updated first.
func (s *Service) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	ids, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// Delete drops a session from memory and from the store.
func (s *Service) Delete(ctx context.Context, id string) error {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.deleted = true
	s.mu.Lock()
	delete(s.sessions, id)
	active := len(s.sessions)
	s.mu.Unlock()
	sess.mu.Unlock()
	s.metrics.SetActiveSessions(active)
	if err := s.persist.remove(ctx, id); err != nil {
		return err
	}
	// the record must be gone before the next lookup
	return s.persist.flush(ctx)
}

// Flush waits until every write queued so far reached the store.
func (s *Service) Flush(ctx context.Context) error {
	return s.persist.flush(ctx)
}

// Close rejects further calls and drains pending writes.
func (s *Service) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.persist.close(ctx)
	})
	return err
}
