package domain

import (
	"time"

	"github.com/park285/pgn-typist/internal/pgn"
)

// ArchivedGame is a PGN export kept for later retrieval.
type ArchivedGame struct {
	ID         int64
	SessionID  string
	Headers    pgn.Headers
	MovesSAN   []string
	Comments   map[int]string
	PGN        string
	Result     string
	ECO        string
	Opening    string
	PlyCount   int
	ExportedAt time.Time
}
