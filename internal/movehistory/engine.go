// Package movehistory keeps a linear, always-legal move list with per-ply
// comments, an edit cursor and snapshot based undo/redo.
package movehistory

// Snapshot is an immutable (moves, comments) pair.
type Snapshot struct {
	moves    []string
	comments Comments
}

func newSnapshot(moves []string, comments Comments) Snapshot {
	return Snapshot{moves: append([]string(nil), moves...), comments: comments.Clone()}
}

func (s Snapshot) Moves() []string    { return append([]string(nil), s.moves...) }
func (s Snapshot) Comments() Comments { return s.comments.Clone() }
func (s Snapshot) Len() int           { return len(s.moves) }

// Edit describes an accepted submission.
type Edit struct {
	// Ply is the index the move was written to.
	Ply int
	// Move is the canonical form stored in the sequence.
	Move string
	// Replaced is true when an existing ply was overwritten.
	Replaced bool
	// Discarded counts plies of the old continuation dropped because they
	// became illegal.
	Discarded int
}

type Option func(*Engine)

// WithUndoLimit caps the undo stack; the oldest snapshots are dropped first.
// Zero or negative means unlimited.
func WithUndoLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.undoLimit = n
		}
	}
}

// Engine is not safe for concurrent use.
type Engine struct {
	oracle    RulesOracle
	moves     []string
	comments  Comments
	cursor    Cursor
	undo      []Snapshot
	redo      []Snapshot // top is the last element
	undoLimit int
}

func New(oracle RulesOracle, opts ...Option) *Engine {
	e := &Engine{oracle: oracle, comments: Comments{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the state without recording history. Moves are replayed and
// the longest legal prefix is kept; comments outside it or blank are
// dropped. It returns the number of moves kept.
func (e *Engine) Load(moves []string, comments map[int]string) int {
	pos := e.oracle.Start()
	kept := make([]string, 0, len(moves))
	for _, mv := range moves {
		next, canon, err := e.oracle.Apply(pos, mv)
		if err != nil {
			break
		}
		kept = append(kept, canon)
		pos = next
	}
	filtered := Comments{}
	for k, v := range comments {
		if k >= 0 && k < len(kept) && !isBlank(v) {
			filtered[k] = v
		}
	}
	e.moves = kept
	e.comments = filtered
	e.cursor = End
	e.undo = nil
	e.redo = nil
	return len(kept)
}

func (e *Engine) cursorIndex() int {
	if i, ok := e.cursor.Index(); ok && i < len(e.moves) {
		return i
	}
	return len(e.moves)
}

// replay walks moves[:n] and stops at the first rejection.
func (e *Engine) replay(n int) Position {
	pos := e.oracle.Start()
	for _, mv := range e.moves[:min(n, len(e.moves))] {
		next, _, err := e.oracle.Apply(pos, mv)
		if err != nil {
			break
		}
		pos = next
	}
	return pos
}

func (e *Engine) record() {
	e.undo = append(e.undo, newSnapshot(e.moves, e.comments))
	if e.undoLimit > 0 && len(e.undo) > e.undoLimit {
		e.undo = append([]Snapshot(nil), e.undo[len(e.undo)-e.undoLimit:]...)
	}
	e.redo = nil
}

// SubmitMove validates san at the cursor and writes it. At End the move is
// appended; on a selected ply the move replaces it and the old continuation
// is replayed until its first illegal move.
func (e *Engine) SubmitMove(san string) (Edit, bool) {
	i := e.cursorIndex()
	pos := e.replay(i)
	next, canon, err := e.oracle.Apply(pos, san)
	if err != nil {
		return Edit{}, false
	}

	if i == len(e.moves) {
		e.record()
		e.moves = append(append([]string(nil), e.moves...), canon)
		e.comments = e.comments.Clone()
		e.cursor = End
		return Edit{Ply: i, Move: canon}, true
	}

	updated := make([]string, 0, len(e.moves))
	updated = append(updated, e.moves[:i]...)
	updated = append(updated, canon)
	for _, old := range e.moves[i+1:] {
		after, oldCanon, err := e.oracle.Apply(next, old)
		if err != nil {
			break
		}
		updated = append(updated, oldCanon)
		next = after
	}
	edit := Edit{Ply: i, Move: canon, Replaced: true, Discarded: len(e.moves) - len(updated)}

	e.record()
	e.moves = updated
	e.comments = e.comments.Below(len(updated))
	if i+1 < len(updated) {
		e.cursor = At(i + 1)
	} else {
		e.cursor = End
	}
	return edit, true
}

// SetCursor moves the edit position. No history is recorded.
func (e *Engine) SetCursor(c Cursor) { e.cursor = c }

// UpdateCursor applies f to the current cursor.
func (e *Engine) UpdateCursor(f func(Cursor) Cursor) {
	if f != nil {
		e.cursor = f(e.cursor)
	}
}

// Navigate steps the cursor left (negative) or right (positive).
func (e *Engine) Navigate(step int) {
	e.UpdateCursor(func(c Cursor) Cursor { return c.Step(step, len(e.moves)) })
}

// TruncateFrom drops ply index and everything after it. Out of range
// indexes are ignored.
func (e *Engine) TruncateFrom(index int) bool {
	if index < 0 || index >= len(e.moves) {
		return false
	}
	e.record()
	e.moves = append([]string(nil), e.moves[:index]...)
	e.comments = e.comments.Below(index)
	e.cursor = End
	return true
}

func (e *Engine) DeleteLast() bool {
	if len(e.moves) == 0 {
		return false
	}
	return e.TruncateFrom(len(e.moves) - 1)
}

func (e *Engine) ClearAll() bool {
	if len(e.moves) == 0 && len(e.comments) == 0 {
		return false
	}
	e.record()
	e.moves = nil
	e.comments = Comments{}
	e.cursor = End
	return true
}

// SetComment stores text on ply index; blank text removes the comment.
// Every in-range call is a history event.
func (e *Engine) SetComment(index int, text string) bool {
	if index < 0 || index >= len(e.moves) {
		return false
	}
	e.record()
	updated := e.comments.Clone()
	if isBlank(text) {
		delete(updated, index)
	} else {
		updated[index] = text
	}
	e.comments = updated
	return true
}

func (e *Engine) DeleteComment(index int) bool {
	if _, ok := e.comments[index]; !ok {
		return false
	}
	e.record()
	updated := e.comments.Clone()
	delete(updated, index)
	e.comments = updated
	return true
}

func (e *Engine) ClearAllComments() bool {
	if len(e.comments) == 0 {
		return false
	}
	e.record()
	e.comments = Comments{}
	return true
}

func (e *Engine) Undo() bool {
	if len(e.undo) == 0 {
		return false
	}
	prev := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, newSnapshot(e.moves, e.comments))
	e.restore(prev)
	return true
}

func (e *Engine) Redo() bool {
	if len(e.redo) == 0 {
		return false
	}
	next := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = append(e.undo, newSnapshot(e.moves, e.comments))
	e.restore(next)
	return true
}

func (e *Engine) restore(s Snapshot) {
	e.moves = s.Moves()
	e.comments = s.Comments()
	e.cursor = End
}

func (e *Engine) Moves() []string { return append([]string(nil), e.moves...) }

func (e *Engine) Len() int { return len(e.moves) }

func (e *Engine) Comments() Comments { return e.comments.Clone() }

func (e *Engine) Comment(index int) (string, bool) {
	c, ok := e.comments[index]
	return c, ok
}

func (e *Engine) Cursor() Cursor { return e.cursor }

func (e *Engine) Snapshot() Snapshot { return newSnapshot(e.moves, e.comments) }

func (e *Engine) CanUndo() bool { return len(e.undo) > 0 }
func (e *Engine) CanRedo() bool { return len(e.redo) > 0 }

// UndoDepth and RedoDepth report the stack sizes.
func (e *Engine) UndoDepth() int { return len(e.undo) }
func (e *Engine) RedoDepth() int { return len(e.redo) }

// Position replays the sequence up to the cursor.
func (e *Engine) Position() Position { return e.replay(e.cursorIndex()) }

func (e *Engine) FEN() string { return e.Position().FEN() }

func (e *Engine) Turn() Side { return e.Position().Turn() }

// LegalMoves lists the moves available at the cursor.
func (e *Engine) LegalMoves() []string { return e.oracle.LegalMoves(e.Position()) }

func (e *Engine) IsTerminal() bool { return e.oracle.Status(e.Position()).Terminal() }

// Result classifies the position at the cursor.
func (e *Engine) Result() string {
	pos := e.Position()
	return ResultFor(e.oracle.Status(pos), pos.Turn())
}

// FinalResult classifies the position after the whole sequence.
func (e *Engine) FinalResult() string {
	pos := e.replay(len(e.moves))
	return ResultFor(e.oracle.Status(pos), pos.Turn())
}

// Status reports the oracle status at the cursor.
func (e *Engine) Status() Status { return e.oracle.Status(e.Position()) }
