// Package presenter renders session DTOs as terminal text.
package presenter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/pgn-typist/internal/msgcat"
	"github.com/park285/pgn-typist/pkg/typistdto"
)

const legalPreviewLimit = 12

// Formatter turns API payloads into text blocks using the message catalog.
type Formatter struct {
	cat *msgcat.Catalog
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	return &Formatter{cat: cat}
}

func (f *Formatter) Text(key string, data any) string { return f.cat.Text(key, data) }

func (f *Formatter) Help() string { return strings.TrimRight(f.cat.Text("cli.help", nil), "\n") }

// Prompt shows the move number and side the next submission is for.
func (f *Formatter) Prompt(st *typistdto.SessionState) string {
	ply := len(st.Moves)
	if st.Cursor != nil {
		ply = *st.Cursor
	}
	return f.cat.Text("cli.prompt", map[string]any{"Ply": ply/2 + 1, "Black": ply%2 == 1})
}

// Move describes a submission result.
func (f *Formatter) Move(resp *typistdto.MoveResponse) string {
	if resp == nil {
		return ""
	}
	if !resp.Accepted || resp.Edit == nil {
		legal := "-"
		if resp.State != nil && len(resp.State.LegalMoves) > 0 {
			legal = preview(resp.State.LegalMoves, legalPreviewLimit)
		}
		return f.cat.Text("move.rejected", map[string]any{"Input": resp.Input, "Legal": legal})
	}
	data := map[string]any{"Move": displayAt(resp.State, resp.Edit.Ply, resp.Edit.Move), "Ply": resp.Edit.Ply + 1}
	var sb strings.Builder
	if resp.Edit.Replaced {
		sb.WriteString(f.cat.Text("move.replaced", data))
	} else {
		sb.WriteString(f.cat.Text("move.accepted", data))
	}
	if resp.Edit.Discarded > 0 {
		sb.WriteString("\n")
		sb.WriteString(f.cat.Text("move.discarded", map[string]any{"Count": resp.Edit.Discarded}))
	}
	return sb.String()
}

// MoveList numbers the moves in the session language, brackets the move
// under the cursor and prints comments after their ply.
func (f *Formatter) MoveList(st *typistdto.SessionState) string {
	if st == nil || len(st.Moves) == 0 {
		return f.cat.Text("status.empty", nil)
	}
	moves := st.Display
	if len(moves) != len(st.Moves) {
		moves = st.Moves
	}
	var sb strings.Builder
	for i, mv := range moves {
		if i%2 == 0 {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("%3d. ", i/2+1))
		} else {
			sb.WriteString(" ")
		}
		if st.Cursor != nil && *st.Cursor == i {
			sb.WriteString("[" + mv + "]")
		} else {
			sb.WriteString(mv)
		}
		if c := strings.TrimSpace(st.Comments[strconv.Itoa(i)]); c != "" {
			sb.WriteString(" {" + c + "}")
		}
	}
	return sb.String()
}

// Status summarizes turn, result, opening, cursor and history availability.
func (f *Formatter) Status(st *typistdto.SessionState) string {
	if st == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(f.cat.Text("status.line", map[string]any{
		"Turn":    st.Turn,
		"Status":  st.Status,
		"Result":  st.Result,
		"ECO":     st.ECO,
		"Opening": st.Opening,
	}))
	sb.WriteString("\n")
	if st.Cursor == nil {
		sb.WriteString(f.cat.Text("status.cursor_end", nil))
	} else {
		sb.WriteString(f.cat.Text("status.cursor_at", map[string]any{
			"Ply":  *st.Cursor + 1,
			"Move": displayAt(st, *st.Cursor, ""),
		}))
	}
	sb.WriteString(" | ")
	sb.WriteString(f.cat.Text("status.history", map[string]any{"CanUndo": st.CanUndo, "CanRedo": st.CanRedo}))
	return sb.String()
}

// Board draws the position at the cursor, flipped for black orientation.
func (f *Formatter) Board(st *typistdto.SessionState) string {
	if st == nil || st.FEN == "" {
		return ""
	}
	opt, err := nchess.FEN(st.FEN)
	if err != nil {
		return f.cat.Text("error.generic", map[string]any{"Err": err})
	}
	board := nchess.NewGame(opt).Position().Board()

	ranks := []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	files := []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
	if st.Settings.Orientation == "black" {
		reverse(ranks)
		reverse(files)
	}

	var sb strings.Builder
	for _, rank := range ranks {
		sb.WriteString(fmt.Sprintf("%d ", int(rank)+1))
		for _, file := range files {
			sb.WriteByte(' ')
			sb.WriteByte(pieceLetter(board.Piece(nchess.NewSquare(file, rank))))
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  ")
	for _, file := range files {
		sb.WriteByte(' ')
		sb.WriteByte(byte('a' + int(file)))
	}
	return sb.String()
}

// History lists archived exports, newest first.
func (f *Formatter) History(games []typistdto.ArchivedGame) string {
	if len(games) == 0 {
		return f.cat.Text("export.history_empty", nil)
	}
	lines := make([]string, 0, len(games))
	for _, g := range games {
		lines = append(lines, f.cat.Text("export.history_item", map[string]any{
			"ID":     g.ID,
			"When":   formatShortTime(g.ExportedAt),
			"Result": g.Result,
			"Plies":  g.PlyCount,
			"ECO":    g.ECO,
		}))
	}
	return strings.Join(lines, "\n")
}

// Export prints the PGN followed by its archive status.
func (f *Formatter) Export(res *typistdto.ExportResponse) string {
	if res == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(res.PGN))
	sb.WriteString("\n\n")
	if res.Archived {
		sb.WriteString(f.cat.Text("export.archived", map[string]any{"ID": res.ArchiveID}))
	} else {
		sb.WriteString(f.cat.Text("export.duplicate", nil))
	}
	return sb.String()
}

func (f *Formatter) Languages(langs []typistdto.Language, current string) string {
	lines := make([]string, 0, len(langs))
	for _, l := range langs {
		mark := " "
		if l.Code == current {
			mark = "*"
		}
		pieces := fmt.Sprintf("%s %s %s %s %s", l.Pieces["K"], l.Pieces["Q"], l.Pieces["R"], l.Pieces["B"], l.Pieces["N"])
		lines = append(lines, fmt.Sprintf("%s %-3s %-12s %s", mark, l.Code, l.Name, pieces))
	}
	return strings.Join(lines, "\n")
}

func displayAt(st *typistdto.SessionState, ply int, fallback string) string {
	if st != nil && ply >= 0 && ply < len(st.Display) {
		return st.Display[ply]
	}
	if st != nil && ply >= 0 && ply < len(st.Moves) {
		return st.Moves[ply]
	}
	return fallback
}

func pieceLetter(p nchess.Piece) byte {
	if p == nchess.NoPiece {
		return '.'
	}
	var c byte
	switch p.Type() {
	case nchess.King:
		c = 'K'
	case nchess.Queen:
		c = 'Q'
	case nchess.Rook:
		c = 'R'
	case nchess.Bishop:
		c = 'B'
	case nchess.Knight:
		c = 'N'
	default:
		c = 'P'
	}
	if p.Color() == nchess.Black {
		c += 'a' - 'A'
	}
	return c
}

func preview(moves []string, limit int) string {
	if len(moves) <= limit {
		return strings.Join(moves, " ")
	}
	return strings.Join(moves[:limit], " ") + " ..."
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func formatShortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
