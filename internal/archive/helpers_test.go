package archive

import (
	"time"

	"github.com/park285/pgn-typist/internal/domain"
	"github.com/park285/pgn-typist/internal/pgn"
)

func sampleGame(session, text string, at time.Time) *domain.ArchivedGame {
	return &domain.ArchivedGame{
		SessionID:  session,
		Headers:    pgn.DefaultHeaders(at),
		MovesSAN:   []string{"e4", "e5"},
		Comments:   map[int]string{0: "open"},
		PGN:        text,
		Result:     "*",
		PlyCount:   2,
		ExportedAt: at,
	}
}
