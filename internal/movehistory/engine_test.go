package movehistory_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/pgn-typist/internal/movehistory"
	"github.com/park285/pgn-typist/internal/rules"
)

func newEngine(t *testing.T, moves ...string) *movehistory.Engine {
	t.Helper()
	e := movehistory.New(rules.NewOracle())
	for _, mv := range moves {
		if _, ok := e.SubmitMove(mv); !ok {
			t.Fatalf("setup move %q rejected", mv)
		}
	}
	return e
}

func TestSubmitAppendAndReject(t *testing.T) {
	e := newEngine(t)
	edit, ok := e.SubmitMove("e4")
	if !ok {
		t.Fatalf("e4 rejected")
	}
	if edit.Ply != 0 || edit.Replaced || edit.Discarded != 0 {
		t.Fatalf("unexpected edit: %+v", edit)
	}
	if !e.Cursor().IsEnd() {
		t.Fatalf("cursor = %s, want end", e.Cursor())
	}
	if _, ok := e.SubmitMove("Nf3"); ok {
		t.Fatalf("Nf3 accepted for black")
	}
	if diff := cmp.Diff([]string{"e4"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if e.UndoDepth() != 1 {
		t.Fatalf("undo depth = %d, want 1", e.UndoDepth())
	}
}

func TestSubmitReplaceKeepsLegalContinuation(t *testing.T) {
	e := newEngine(t, "e4", "e5", "Nf3")
	e.SetCursor(movehistory.At(1))
	edit, ok := e.SubmitMove("Nc6")
	if !ok {
		t.Fatalf("Nc6 rejected")
	}
	if diff := cmp.Diff([]string{"e4", "Nc6", "Nf3"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if i, ok := e.Cursor().Index(); !ok || i != 2 {
		t.Fatalf("cursor = %s, want 2", e.Cursor())
	}
	if !edit.Replaced || edit.Discarded != 0 {
		t.Fatalf("unexpected edit: %+v", edit)
	}
}

func TestSubmitReplaceDropsOrphanedContinuation(t *testing.T) {
	e := newEngine(t, "e4", "e5", "Bc4", "Nc6", "Qh5")
	e.SetComment(1, "symmetrical")
	e.SetComment(4, "early queen")
	e.SetCursor(movehistory.At(2))
	// Be2 blocks the queen's diagonal, Nc6 still fits.
	edit, ok := e.SubmitMove("Be2")
	if !ok {
		t.Fatalf("Be2 rejected")
	}
	if diff := cmp.Diff([]string{"e4", "e5", "Be2", "Nc6"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if edit.Discarded != 1 {
		t.Fatalf("discarded = %d, want 1", edit.Discarded)
	}
	if diff := cmp.Diff(movehistory.Comments{1: "symmetrical"}, e.Comments()); diff != "" {
		t.Fatalf("comments mismatch (-want +got):\n%s", diff)
	}
	if i, ok := e.Cursor().Index(); !ok || i != 3 {
		t.Fatalf("cursor = %s, want 3", e.Cursor())
	}
}

func TestSubmitReplaceLastMoveReturnsToEnd(t *testing.T) {
	e := newEngine(t, "e4", "e5")
	e.SetCursor(movehistory.At(1))
	if _, ok := e.SubmitMove("e5"); !ok {
		t.Fatalf("e5 rejected")
	}
	if !e.Cursor().IsEnd() {
		t.Fatalf("cursor = %s, want end", e.Cursor())
	}
	// Identical content still counts as a history event.
	if e.UndoDepth() != 3 {
		t.Fatalf("undo depth = %d, want 3", e.UndoDepth())
	}
}

func TestSubmitAtZeroOnEmptyAppends(t *testing.T) {
	e := newEngine(t)
	e.SetCursor(movehistory.At(0))
	if _, ok := e.SubmitMove("d4"); !ok {
		t.Fatalf("d4 rejected")
	}
	if diff := cmp.Diff([]string{"d4"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if !e.Cursor().IsEnd() {
		t.Fatalf("cursor = %s, want end", e.Cursor())
	}
}

func TestRejectedSubmitLeavesState(t *testing.T) {
	e := newEngine(t, "e4", "e5")
	e.SetCursor(movehistory.At(1))
	before := e.Snapshot()
	if _, ok := e.SubmitMove("Ke3"); ok {
		t.Fatalf("Ke3 accepted")
	}
	if diff := cmp.Diff(before.Moves(), e.Moves()); diff != "" {
		t.Fatalf("moves changed (-want +got):\n%s", diff)
	}
	if i, ok := e.Cursor().Index(); !ok || i != 1 {
		t.Fatalf("cursor = %s, want 1", e.Cursor())
	}
	if e.UndoDepth() != 2 {
		t.Fatalf("undo depth = %d, want 2", e.UndoDepth())
	}
}

func TestTruncateFrom(t *testing.T) {
	e := newEngine(t, "e4", "e5", "Nf3", "Nc6", "Bb5")
	e.SetComment(2, "pin idea")
	depth := e.UndoDepth()
	if !e.TruncateFrom(2) {
		t.Fatalf("TruncateFrom(2) reported no change")
	}
	if diff := cmp.Diff([]string{"e4", "e5"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if len(e.Comments()) != 0 {
		t.Fatalf("comments = %v, want empty", e.Comments())
	}
	if e.UndoDepth() != depth+1 {
		t.Fatalf("undo depth = %d, want %d", e.UndoDepth(), depth+1)
	}
	for _, idx := range []int{-1, 2, 10} {
		if e.TruncateFrom(idx) {
			t.Fatalf("TruncateFrom(%d) changed state", idx)
		}
	}
	if e.UndoDepth() != depth+1 {
		t.Fatalf("out of range truncation pushed history")
	}
}

func TestDeleteLastOnEmptyIsNoop(t *testing.T) {
	e := newEngine(t)
	if e.DeleteLast() {
		t.Fatalf("DeleteLast on empty reported change")
	}
	if e.CanUndo() || e.Undo() {
		t.Fatalf("undo available after no-op")
	}
}

func TestDeleteLast(t *testing.T) {
	e := newEngine(t, "e4", "e5")
	e.SetComment(1, "solid")
	e.SetCursor(movehistory.At(0))
	if !e.DeleteLast() {
		t.Fatalf("DeleteLast reported no change")
	}
	if diff := cmp.Diff([]string{"e4"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if _, ok := e.Comment(1); ok {
		t.Fatalf("comment on deleted ply survived")
	}
	if !e.Cursor().IsEnd() {
		t.Fatalf("cursor = %s, want end", e.Cursor())
	}
}

func TestClearAll(t *testing.T) {
	e := newEngine(t)
	if e.ClearAll() {
		t.Fatalf("ClearAll on empty reported change")
	}
	e = newEngine(t, "e4")
	e.SetComment(0, "king pawn")
	if !e.ClearAll() {
		t.Fatalf("ClearAll reported no change")
	}
	if e.Len() != 0 || len(e.Comments()) != 0 {
		t.Fatalf("state not cleared: %v %v", e.Moves(), e.Comments())
	}
	e.Undo()
	if diff := cmp.Diff(movehistory.Comments{0: "king pawn"}, e.Comments()); diff != "" {
		t.Fatalf("comments mismatch after undo (-want +got):\n%s", diff)
	}
}

func TestCommentUndoRedo(t *testing.T) {
	e := newEngine(t, "e4", "e5")
	depth := e.UndoDepth()
	if !e.SetComment(0, "best by test") {
		t.Fatalf("SetComment reported no change")
	}
	if e.UndoDepth() != depth+1 {
		t.Fatalf("undo depth = %d, want %d", e.UndoDepth(), depth+1)
	}
	e.Undo()
	if len(e.Comments()) != 0 {
		t.Fatalf("comments after undo = %v", e.Comments())
	}
	e.Redo()
	if diff := cmp.Diff(movehistory.Comments{0: "best by test"}, e.Comments()); diff != "" {
		t.Fatalf("comments mismatch after redo (-want +got):\n%s", diff)
	}
}

func TestSetCommentBlankRemovesAndOutOfRangeIgnored(t *testing.T) {
	e := newEngine(t, "e4")
	e.SetComment(0, "x")
	e.SetComment(0, "   ")
	if _, ok := e.Comment(0); ok {
		t.Fatalf("blank comment stored")
	}
	depth := e.UndoDepth()
	if e.SetComment(1, "nope") || e.SetComment(-1, "nope") {
		t.Fatalf("out of range comment accepted")
	}
	if e.UndoDepth() != depth {
		t.Fatalf("out of range comment pushed history")
	}
}

func TestDeleteAndClearComments(t *testing.T) {
	e := newEngine(t, "e4", "e5")
	if e.DeleteComment(0) || e.ClearAllComments() {
		t.Fatalf("no-op comment removal reported change")
	}
	e.SetComment(0, "a")
	e.SetComment(1, "b")
	if !e.DeleteComment(0) {
		t.Fatalf("DeleteComment reported no change")
	}
	if !e.ClearAllComments() {
		t.Fatalf("ClearAllComments reported no change")
	}
	if len(e.Comments()) != 0 {
		t.Fatalf("comments = %v", e.Comments())
	}
	e.Undo()
	if diff := cmp.Diff(movehistory.Comments{1: "b"}, e.Comments()); diff != "" {
		t.Fatalf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestUndoRedoInverse(t *testing.T) {
	e := newEngine(t, "e4", "e5", "Nf3")
	before := e.Snapshot()
	e.SetCursor(movehistory.At(1))
	e.SubmitMove("c5")
	after := e.Snapshot()

	if !e.Undo() {
		t.Fatalf("undo unavailable")
	}
	if diff := cmp.Diff(before.Moves(), e.Moves()); diff != "" {
		t.Fatalf("undo mismatch (-want +got):\n%s", diff)
	}
	if !e.Cursor().IsEnd() {
		t.Fatalf("cursor after undo = %s", e.Cursor())
	}
	if !e.Redo() {
		t.Fatalf("redo unavailable")
	}
	if diff := cmp.Diff(after.Moves(), e.Moves()); diff != "" {
		t.Fatalf("redo mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEditClearsRedo(t *testing.T) {
	e := newEngine(t, "e4", "e5")
	e.Undo()
	if !e.CanRedo() {
		t.Fatalf("redo unavailable after undo")
	}
	e.SubmitMove("c5")
	if e.CanRedo() || e.Redo() {
		t.Fatalf("redo survived a new edit")
	}
	if diff := cmp.Diff([]string{"e4", "c5"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
}

func TestUndoRedoOnEmptyStacks(t *testing.T) {
	e := newEngine(t)
	if e.Undo() || e.Redo() {
		t.Fatalf("empty stacks reported change")
	}
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	e := newEngine(t, "e4")
	e.SetComment(0, "first")
	snap := e.Snapshot()
	c := snap.Comments()
	c[0] = "mutated"
	m := snap.Moves()
	m[0] = "d4"
	if got, _ := e.Comment(0); got != "first" {
		t.Fatalf("live comment changed through snapshot: %q", got)
	}
	if e.Moves()[0] != "e4" {
		t.Fatalf("live moves changed through snapshot")
	}
	e.SetComment(0, "second")
	e.Undo()
	if got, _ := e.Comment(0); got != "first" {
		t.Fatalf("undo restored %q, want first", got)
	}
}

func TestUndoLimit(t *testing.T) {
	e := movehistory.New(rules.NewOracle(), movehistory.WithUndoLimit(2))
	for _, mv := range []string{"e4", "e5", "Nf3", "Nc6"} {
		e.SubmitMove(mv)
	}
	if e.UndoDepth() != 2 {
		t.Fatalf("undo depth = %d, want 2", e.UndoDepth())
	}
	e.Undo()
	e.Undo()
	if e.Undo() {
		t.Fatalf("undo beyond limit")
	}
	if diff := cmp.Diff([]string{"e4", "e5"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
}

func TestPositionFollowsCursor(t *testing.T) {
	e := newEngine(t, "e4", "e5")
	e.SetCursor(movehistory.At(1))
	if e.Turn() != movehistory.Black {
		t.Fatalf("turn at ply 1 = %s, want black", e.Turn())
	}
	e.SetCursor(movehistory.At(0))
	if e.FEN() != rules.NewOracle().Start().FEN() {
		t.Fatalf("FEN at ply 0 = %s", e.FEN())
	}
	// A stale cursor beyond the sequence replays everything.
	e.SetCursor(movehistory.At(9))
	if e.Turn() != movehistory.White {
		t.Fatalf("turn at stale cursor = %s, want white", e.Turn())
	}
	if got := len(e.LegalMoves()); got != 29 {
		t.Fatalf("legal moves after 1.e4 e5 = %d, want 29", got)
	}
}

func TestResultCheckmate(t *testing.T) {
	e := newEngine(t, "f3", "e5", "g4", "Qh4#")
	if !e.IsTerminal() {
		t.Fatalf("fool's mate not terminal")
	}
	if got := e.Result(); got != movehistory.ResultBlackWins {
		t.Fatalf("result = %s, want 0-1", got)
	}
	e.SetCursor(movehistory.At(3))
	if got := e.Result(); got != movehistory.ResultOngoing {
		t.Fatalf("result before mate = %s, want *", got)
	}
	if got := e.FinalResult(); got != movehistory.ResultBlackWins {
		t.Fatalf("final result = %s, want 0-1", got)
	}
}

func TestNavigate(t *testing.T) {
	e := newEngine(t)
	e.Navigate(-1)
	if !e.Cursor().IsEnd() {
		t.Fatalf("left on empty moved cursor")
	}
	e = newEngine(t, "e4", "e5", "Nf3")
	steps := []struct {
		step int
		want string
	}{
		{-1, "2"}, {-1, "1"}, {-1, "0"}, {-1, "0"}, {1, "1"}, {1, "2"}, {1, "end"}, {1, "end"},
	}
	for i, s := range steps {
		e.Navigate(s.step)
		if got := e.Cursor().String(); got != s.want {
			t.Fatalf("step %d: cursor = %s, want %s", i, got, s.want)
		}
	}
	if e.UndoDepth() != 3 {
		t.Fatalf("navigation pushed history")
	}
}

func TestUpdateCursor(t *testing.T) {
	e := newEngine(t, "e4", "e5")
	e.UpdateCursor(func(movehistory.Cursor) movehistory.Cursor { return movehistory.At(0) })
	if i, ok := e.Cursor().Index(); !ok || i != 0 {
		t.Fatalf("cursor = %s, want 0", e.Cursor())
	}
}

func TestLoadKeepsLegalPrefix(t *testing.T) {
	e := newEngine(t, "d4")
	n := e.Load([]string{"e4", "e5", "Ke3", "Nf3"}, map[int]string{0: "ok", 1: " ", 2: "gone", 7: "gone"})
	if n != 2 {
		t.Fatalf("kept = %d, want 2", n)
	}
	if diff := cmp.Diff([]string{"e4", "e5"}, e.Moves()); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(movehistory.Comments{0: "ok"}, e.Comments()); diff != "" {
		t.Fatalf("comments mismatch (-want +got):\n%s", diff)
	}
	if e.CanUndo() || e.CanRedo() {
		t.Fatalf("load left history behind")
	}
}
