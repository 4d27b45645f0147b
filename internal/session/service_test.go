package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/park285/pgn-typist/internal/archive"
	"github.com/park285/pgn-typist/internal/domain"
	"github.com/park285/pgn-typist/internal/metrics"
	"github.com/park285/pgn-typist/internal/movehistory"
	"github.com/park285/pgn-typist/internal/notation"
	"github.com/park285/pgn-typist/internal/rules"
	"github.com/park285/pgn-typist/internal/store"
)

var testNow = time.Date(2024, time.June, 1, 8, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, st store.Store, repo archive.Repository) *Service {
	t.Helper()
	svc, err := NewService(rules.NewOracle(), notation.MustDefault(), st, repo, metrics.New(nil), Config{
		DefaultLang:    "en",
		PersistQueue:   16,
		PersistTimeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	svc.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func submit(t *testing.T, svc *Service, id string, moves ...string) *State {
	t.Helper()
	var st *State
	for _, mv := range moves {
		out, err := svc.SubmitMove(context.Background(), id, mv, "")
		if err != nil {
			t.Fatalf("SubmitMove(%s): %v", mv, err)
		}
		if !out.Accepted {
			t.Fatalf("SubmitMove(%s) rejected", mv)
		}
		st = out.State
	}
	return st
}

func TestNewServiceRejectsUnknownLanguage(t *testing.T) {
	_, err := NewService(rules.NewOracle(), notation.MustDefault(), nil, nil, nil, Config{DefaultLang: "xx"}, nil)
	if err == nil {
		t.Fatalf("expected error for unsupported default language")
	}
}

func TestCreateDefaults(t *testing.T) {
	svc := newTestService(t, nil, nil)
	st, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.ID == "" || len(st.Moves) != 0 || !st.Cursor.IsEnd() {
		t.Fatalf("unexpected state: %+v", st)
	}
	if v, _ := st.Headers.Get("Date"); v != "2024.06.01" {
		t.Fatalf("Date = %q", v)
	}
	if st.Settings != domain.DefaultSettings("en") {
		t.Fatalf("settings = %+v", st.Settings)
	}
	if len(st.LegalMoves) != 20 {
		t.Fatalf("legal moves = %d, want 20", len(st.LegalMoves))
	}
}

func TestSubmitMoveLocalized(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	submit(t, svc, st.ID, "e4", "e5")

	out, err := svc.SubmitMove(ctx, st.ID, "Cf3", "es")
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if !out.Accepted || out.Edit.Move != "Nf3" || out.Edit.Ply != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if _, err := svc.UpdateSettings(ctx, st.ID, SettingsPatch{Language: strPtr("es")}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	out, err = svc.SubmitMove(ctx, st.ID, "Cc6", "")
	if err != nil || !out.Accepted {
		t.Fatalf("session language not applied: %+v %v", out, err)
	}
	if diff := cmp.Diff([]string{"e4", "e5", "Cf3", "Cc6"}, out.State.Display); diff != "" {
		t.Fatalf("display mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitMoveRejected(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	submit(t, svc, st.ID, "e4")

	out, err := svc.SubmitMove(ctx, st.ID, "e4", "")
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if out.Accepted || len(out.State.Moves) != 1 {
		t.Fatalf("illegal move accepted: %+v", out)
	}
	if _, err := svc.SubmitMove(ctx, st.ID, "  ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank move: %v", err)
	}
	if _, err := svc.SubmitMove(ctx, st.ID, "Nf3", "xx"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown language: %v", err)
	}
	if _, err := svc.SubmitMove(ctx, "nope", "e4", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown session: %v", err)
	}
}

func TestReplaceAtCursorDropsOrphans(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	submit(t, svc, st.ID, "e4", "e5", "Bc4", "Nc6", "Qh5")
	if _, err := svc.SetComment(ctx, st.ID, 4, "threat"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	if _, err := svc.SetCursor(ctx, st.ID, movehistory.At(2)); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	out, err := svc.SubmitMove(ctx, st.ID, "Be2", "")
	if err != nil || !out.Accepted {
		t.Fatalf("SubmitMove: %+v %v", out, err)
	}
	if out.Edit.Discarded != 1 || !out.Edit.Replaced {
		t.Fatalf("edit = %+v", out.Edit)
	}
	if diff := cmp.Diff([]string{"e4", "e5", "Be2", "Nc6"}, out.State.Moves); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if len(out.State.Comments) != 0 {
		t.Fatalf("orphan comment kept: %v", out.State.Comments)
	}
	if i, ok := out.State.Cursor.Index(); !ok || i != 3 {
		t.Fatalf("cursor = %v", out.State.Cursor)
	}
}

func TestUndoRedoThroughService(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	submit(t, svc, st.ID, "d4", "d5")

	got, err := svc.Undo(ctx, st.ID)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(got.Moves) != 1 || !got.CanRedo {
		t.Fatalf("after undo: %+v", got)
	}
	got, _ = svc.Redo(ctx, st.ID)
	if len(got.Moves) != 2 || got.CanRedo {
		t.Fatalf("after redo: %+v", got)
	}
	got, _ = svc.DeleteLast(ctx, st.ID)
	if len(got.Moves) != 1 {
		t.Fatalf("after delete last: %v", got.Moves)
	}
	got, _ = svc.ClearAll(ctx, st.ID)
	if len(got.Moves) != 0 || !got.CanUndo {
		t.Fatalf("after clear: %+v", got)
	}
}

func TestNavigateIsNotAnEdit(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	submit(t, svc, st.ID, "e4", "e5")

	got, err := svc.Navigate(ctx, st.ID, -1)
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if i, ok := got.Cursor.Index(); !ok || i != 1 {
		t.Fatalf("cursor = %v", got.Cursor)
	}
	if got.Turn != "black" {
		t.Fatalf("turn at ply 1 = %s", got.Turn)
	}
	got, _ = svc.Undo(ctx, st.ID)
	if len(got.Moves) != 1 {
		t.Fatalf("navigation pushed a snapshot: %v", got.Moves)
	}
}

func TestResultHeaderFollowsMate(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	got := submit(t, svc, st.ID, "f3", "e5", "g4", "Qh4#")
	if v, _ := got.Headers.Get("Result"); v != "0-1" {
		t.Fatalf("Result header = %q", v)
	}
	if got.Status != "checkmate" || got.Final != "0-1" {
		t.Fatalf("status=%s final=%s", got.Status, got.Final)
	}
}

func TestHeaderEditing(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)

	got, err := svc.SetHeader(ctx, st.ID, "White", " Carlsen ")
	if err != nil {
		t.Fatalf("SetHeader: %v", err)
	}
	if v, _ := got.Headers.Get("White"); v != "Carlsen" {
		t.Fatalf("White = %q", v)
	}
	if _, err := svc.SetHeader(ctx, st.ID, "Bad Key", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad key: %v", err)
	}
	got, _ = svc.SetHeader(ctx, st.ID, "Annotator", "me")
	got, _ = svc.RemoveHeader(ctx, st.ID, "Annotator")
	if _, ok := got.Headers.Get("Annotator"); ok {
		t.Fatalf("Annotator not removed")
	}
	got, _ = svc.ResetHeaders(ctx, st.ID)
	if v, _ := got.Headers.Get("White"); v != "??" {
		t.Fatalf("reset White = %q", v)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	if _, err := svc.UpdateSettings(ctx, st.ID, SettingsPatch{Orientation: strPtr("sideways")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("orientation: %v", err)
	}
	off := false
	got, err := svc.UpdateSettings(ctx, st.ID, SettingsPatch{Orientation: strPtr("Black"), ShowLastMove: &off})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if got.Settings.Orientation != domain.OrientationBlack || got.Settings.ShowLastMove {
		t.Fatalf("settings = %+v", got.Settings)
	}
}

func TestExportArchivesOnce(t *testing.T) {
	repo := archive.NewMemoryRepository()
	svc := newTestService(t, nil, repo)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	submit(t, svc, st.ID, "e4", "e5", "Nf3")
	if _, err := svc.SetComment(ctx, st.ID, 0, "best by test"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}

	res, err := svc.Export(ctx, st.ID, true)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasSuffix(res.PGN, "1. e4 {best by test} e5 2. Nf3 *") {
		t.Fatalf("pgn = %q", res.PGN)
	}
	if !res.Archived || res.ArchiveID == 0 || res.ECO == "" {
		t.Fatalf("export = %+v", res)
	}
	again, err := svc.Export(ctx, st.ID, true)
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if again.Archived || again.PGN != res.PGN {
		t.Fatalf("duplicate archived: %+v", again)
	}

	games, err := svc.History(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(games) != 1 || games[0].PlyCount != 3 {
		t.Fatalf("history = %+v", games)
	}
	g, err := svc.ArchivedGame(ctx, res.ArchiveID)
	if err != nil || g.PGN != res.PGN {
		t.Fatalf("ArchivedGame = %+v, %v", g, err)
	}
}

func TestImport(t *testing.T) {
	svc := newTestService(t, nil, nil)
	st, err := svc.Import(context.Background(), "[Event \"Club\"]\n[White \"A\"]\n\n1. e4 e5 2. Nf3 *")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if diff := cmp.Diff([]string{"e4", "e5", "Nf3"}, st.Moves); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if v, _ := st.Headers.Get("Event"); v != "Club" {
		t.Fatalf("Event = %q", v)
	}
	if st.CanUndo {
		t.Fatalf("import recorded history")
	}
	if _, err := svc.Import(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty import: %v", err)
	}
}

func TestPersistAndRestoreFromRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	ctx := context.Background()
	rs, err := store.NewRedis(ctx, fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	first := newTestService(t, rs, nil)
	st, _ := first.Create(ctx)
	submit(t, first, st.ID, "e4", "c5")
	if _, err := first.SetComment(ctx, st.ID, 1, "Sicilian"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	if err := first.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	second := newTestService(t, rs, nil)
	got, err := second.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("Get restored: %v", err)
	}
	if diff := cmp.Diff([]string{"e4", "c5"}, got.Moves); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if got.Comments[1] != "Sicilian" || got.CanUndo {
		t.Fatalf("restored state = %+v", got)
	}
	ids, err := second.Recent(ctx, 10)
	if err != nil || len(ids) != 1 || ids[0] != st.ID {
		t.Fatalf("Recent = %v, %v", ids, err)
	}

	if err := second.Delete(ctx, st.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := second.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := second.Get(ctx, st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("deleted session still found: %v", err)
	}
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Load(context.Context, string) (*domain.SessionRecord, error) { return nil, nil }
func (f *failingStore) Delete(context.Context, string) error                        { return nil }
func (f *failingStore) Recent(context.Context, int) ([]string, error)               { return nil, nil }
func (f *failingStore) Save(context.Context, *domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("disk on fire")
}

func TestPersistFailureKeepsState(t *testing.T) {
	fs := &failingStore{}
	svc := newTestService(t, fs, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	submit(t, svc, st.ID, "e4", "e5")
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got, err := svc.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Moves) != 2 {
		t.Fatalf("moves = %v", got.Moves)
	}
	fs.mu.Lock()
	calls := fs.calls
	fs.mu.Unlock()
	if calls != 3 {
		t.Fatalf("save calls = %d, want 3", calls)
	}
}

func TestCloseRejectsCalls(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := svc.Get(ctx, st.ID); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after close: %v", err)
	}
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush after close: %v", err)
	}
}

func TestConcurrentSubmissionsAreSerialized(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.SubmitMove(ctx, st.ID, "e4", "")
			_, _ = svc.Get(ctx, st.ID)
		}()
	}
	wg.Wait()
	got, _ := svc.Get(ctx, st.ID)
	if diff := cmp.Diff([]string{"e4"}, got.Moves); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
}

func strPtr(s string) *string { return &s }

func TestQuotedHeaderReimports(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	st, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	submit(t, svc, st.ID, "e4")
	st, err = svc.SetHeader(ctx, st.ID, "Annotator", `a "q" b`)
	if err != nil {
		t.Fatalf("SetHeader: %v", err)
	}
	if v, _ := st.Headers.Get("Annotator"); v != "a 'q' b" {
		t.Fatalf("Annotator = %q", v)
	}
	res, err := svc.Export(ctx, st.ID, true)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	back, err := svc.Import(ctx, res.PGN)
	if err != nil {
		t.Fatalf("Import(%q): %v", res.PGN, err)
	}
	if v, _ := back.Headers.Get("Annotator"); v != "a 'q' b" {
		t.Fatalf("reimported Annotator = %q", v)
	}
}

func TestEditThroughDeletedSessionIsNotPersisted(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem, nil)
	ctx := context.Background()
	st, _ := svc.Create(ctx)
	submit(t, svc, st.ID, "e4")

	// a caller that looked the session up before Delete ran
	stale, err := svc.lookup(ctx, st.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := svc.Delete(ctx, st.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = svc.mutateLive(stale, "submit", metrics.OutcomeRejected, func(sess *live) bool {
		_, ok := sess.engine.SubmitMove("e5")
		return ok
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("edit after delete: %v", err)
	}
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if rec, err := mem.Load(ctx, st.ID); err != nil || rec != nil {
		t.Fatalf("record after delete = %+v, %v", rec, err)
	}
	if _, err := svc.Get(ctx, st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
}
