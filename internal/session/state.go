package session

import (
	"time"

	"github.com/park285/pgn-typist/internal/domain"
	"github.com/park285/pgn-typist/internal/movehistory"
	"github.com/park285/pgn-typist/internal/pgn"
)

// State is a read-only view of one session taken under its lock.
type State struct {
	ID string
	// Moves holds canonical SAN; Display the same moves in the session language.
	Moves    []string
	Display  []string
	Comments map[int]string
	Cursor   movehistory.Cursor

	FEN        string
	Turn       string
	Status     string
	Result     string
	Final      string
	LegalMoves []string
	CanUndo    bool
	CanRedo    bool

	ECO     string
	Opening string

	Headers   pgn.Headers
	Settings  domain.Settings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MoveOutcome reports a submission. On rejection Edit is zero and State is
// the unchanged session.
type MoveOutcome struct {
	Accepted bool
	Input    string
	Edit     movehistory.Edit
	State    *State
}

// ExportResult is a rendered PGN and its archive entry, if any.
type ExportResult struct {
	PGN       string
	Result    string
	ECO       string
	Opening   string
	ArchiveID int64
	// Archived is false when the archive is disabled, failed, or already
	// held the same text for this session.
	Archived bool
}

func (s *Service) stateOf(sess *live) *State {
	e := sess.engine
	moves := e.Moves()
	code, title := s.oracle.Opening(moves)
	return &State{
		ID:         sess.id,
		Moves:      moves,
		Display:    s.table.LocalizeAll(moves, sess.settings.Language),
		Comments:   map[int]string(e.Comments()),
		Cursor:     e.Cursor(),
		FEN:        e.FEN(),
		Turn:       e.Turn().String(),
		Status:     e.Status().String(),
		Result:     e.Result(),
		Final:      e.FinalResult(),
		LegalMoves: e.LegalMoves(),
		CanUndo:    e.CanUndo(),
		CanRedo:    e.CanRedo(),
		ECO:        code,
		Opening:    title,
		Headers:    sess.headers.Clone(),
		Settings:   sess.settings,
		CreatedAt:  sess.createdAt,
		UpdatedAt:  sess.updatedAt,
	}
}
