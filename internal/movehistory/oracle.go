package movehistory

import "errors"

// ErrIllegalMove is returned by RulesOracle.Apply implementations when the
// candidate is not a legal move in the given position.
var ErrIllegalMove = errors.New("illegal move")

type Side int

const (
	White Side = iota
	Black
)

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

// Status is the terminal classification of a position.
type Status int

const (
	Ongoing Status = iota
	Checkmate
	Stalemate
	Draw
)

func (s Status) String() string {
	switch s {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case Draw:
		return "draw"
	default:
		return "ongoing"
	}
}

// Terminal reports whether no further moves are expected.
func (s Status) Terminal() bool { return s != Ongoing }

// Position is an opaque oracle position. Implementations must be immutable
// from the engine's point of view.
type Position interface {
	FEN() string
	Turn() Side
}

// RulesOracle validates and applies moves in standard algebraic notation.
type RulesOracle interface {
	Start() Position
	// Apply returns the position after san and the move in canonical form.
	// pos is left untouched on rejection.
	Apply(pos Position, san string) (Position, string, error)
	LegalMoves(pos Position) []string
	Status(pos Position) Status
}

// Result tokens as written in PGN.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
	ResultOngoing   = "*"
)

// ResultFor maps a status and the side to move to a PGN result token.
func ResultFor(status Status, turn Side) string {
	switch status {
	case Checkmate:
		if turn == White {
			return ResultBlackWins
		}
		return ResultWhiteWins
	case Stalemate, Draw:
		return ResultDraw
	default:
		return ResultOngoing
	}
}
