package httpapi

import (
	"strconv"

	"github.com/park285/pgn-typist/internal/domain"
	"github.com/park285/pgn-typist/internal/notation"
	"github.com/park285/pgn-typist/internal/pgn"
	"github.com/park285/pgn-typist/internal/session"
	"github.com/park285/pgn-typist/pkg/typistdto"
)

func toStateDTO(st *session.State) *typistdto.SessionState {
	if st == nil {
		return nil
	}
	out := &typistdto.SessionState{
		ID:         st.ID,
		Moves:      nonNil(st.Moves),
		Display:    nonNil(st.Display),
		Comments:   make(map[string]string, len(st.Comments)),
		FEN:        st.FEN,
		Turn:       st.Turn,
		Status:     st.Status,
		Result:     st.Result,
		Final:      st.Final,
		LegalMoves: nonNil(st.LegalMoves),
		CanUndo:    st.CanUndo,
		CanRedo:    st.CanRedo,
		ECO:        st.ECO,
		Opening:    st.Opening,
		Headers:    toHeaderDTOs(st.Headers),
		Settings: typistdto.Settings{
			Orientation:      st.Settings.Orientation,
			ShowLastMove:     st.Settings.ShowLastMove,
			ShowSelectedMove: st.Settings.ShowSelectedMove,
			Language:         st.Settings.Language,
		},
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
	for ply, text := range st.Comments {
		out.Comments[strconv.Itoa(ply)] = text
	}
	if i, ok := st.Cursor.Index(); ok {
		out.Cursor = &i
	}
	return out
}

func toHeaderDTOs(h pgn.Headers) []typistdto.Header {
	out := make([]typistdto.Header, 0, len(h))
	for _, kv := range h {
		out = append(out, typistdto.Header{Key: kv.Key, Value: kv.Value})
	}
	return out
}

func toGameDTO(g *domain.ArchivedGame) typistdto.ArchivedGame {
	return typistdto.ArchivedGame{
		ID:         g.ID,
		SessionID:  g.SessionID,
		Result:     g.Result,
		ECO:        g.ECO,
		Opening:    g.Opening,
		PlyCount:   g.PlyCount,
		PGN:        g.PGN,
		ExportedAt: g.ExportedAt,
	}
}

func toLanguageDTOs(langs []notation.Language) []typistdto.Language {
	out := make([]typistdto.Language, 0, len(langs))
	for _, l := range langs {
		out = append(out, typistdto.Language{Code: l.Code, Name: l.Name, Pieces: l.Pieces})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
