// Package pgn writes and reads single-game PGN text.
package pgn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrEmpty        = errors.New("pgn: no game found")
	ErrCustomStart  = errors.New("pgn: games starting from a FEN position are not supported")
	ErrNotSupported = errors.New("pgn: unsupported content")
)

// ContentType is the media type used when serving exports.
const ContentType = "application/x-chess-pgn"

type ExportOptions struct {
	Headers  Headers
	Moves    []string
	Comments map[int]string
	// Result is used when the Result header is missing or empty.
	Result       string
	WithComments bool
}

// Export renders headers, a blank line and the movetext terminated by the
// result token.
func Export(opts ExportOptions) string {
	var b strings.Builder
	for _, h := range opts.Headers {
		b.WriteString("[")
		b.WriteString(h.Key)
		b.WriteString(" \"")
		b.WriteString(escapeValue(h.Value))
		b.WriteString("\"]\n")
	}
	b.WriteString("\n")
	b.WriteString(Movetext(opts.Moves, opts.Comments, opts.WithComments))
	b.WriteString(ResultToken(opts.Headers, opts.Result))
	return b.String()
}

// Movetext numbers moves as "N. white black " and appends "{comment} " after
// commented plies when withComments is set.
func Movetext(moves []string, comments map[int]string, withComments bool) string {
	var b strings.Builder
	for i, mv := range moves {
		if i%2 == 0 {
			b.WriteString(strconv.Itoa(i/2 + 1))
			b.WriteString(". ")
		}
		b.WriteString(mv)
		b.WriteString(" ")
		if withComments {
			if c := strings.TrimSpace(comments[i]); c != "" {
				b.WriteString("{")
				b.WriteString(escapeComment(c))
				b.WriteString("} ")
			}
		}
	}
	return b.String()
}

// ResultToken prefers a non-empty Result header over the computed result.
func ResultToken(h Headers, computed string) string {
	if v, ok := h.Get("Result"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if strings.TrimSpace(computed) == "" {
		return "*"
	}
	return computed
}

func escapeValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return strings.ReplaceAll(s, "\n", " ")
}

func escapeComment(s string) string {
	return strings.ReplaceAll(s, "}", ")")
}

// Game is one parsed game.
type Game struct {
	Headers  Headers
	Moves    []string
	Comments map[int]string
	Result   string
}

// Parse reads the first game of text. Only the mainline is kept.
func Parse(text string) (*Game, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}
	opt, err := nchess.PGN(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse pgn: %w", err)
	}
	game := nchess.NewGame(opt)
	tags := tagPairs(text)
	if fen, ok := tags["FEN"]; ok && strings.TrimSpace(fen) != "" {
		return nil, ErrCustomStart
	}

	positions := game.Positions()
	played := game.Moves()
	out := &Game{
		Headers:  ordered(tags),
		Moves:    make([]string, 0, len(played)),
		Comments: make(map[int]string),
		Result:   game.Outcome().String(),
	}
	for i, mv := range played {
		if i >= len(positions) {
			return nil, fmt.Errorf("%w: move %d has no position", ErrNotSupported, i+1)
		}
		out.Moves = append(out.Moves, nchess.AlgebraicNotation{}.Encode(positions[i], mv))
		if c := strings.TrimSpace(mv.Comments()); c != "" {
			out.Comments[i] = c
		}
	}
	if out.Result == "" {
		out.Result = "*"
	}
	return out, nil
}

// tagPairs collects the tag section that opens text.
func tagPairs(text string) map[string]string {
	tags := make(map[string]string)
	lx := nchess.NewLexer(text)
	key := ""
	for i := 0; i <= len(text); i++ {
		tok := lx.NextToken()
		switch tok.Type {
		case nchess.TagStart, nchess.TagEnd:
		case nchess.TagKey:
			key = tok.Value
		case nchess.TagValue:
			if key != "" {
				tags[key] = tok.Value
				key = ""
			}
		default:
			return tags
		}
	}
	return tags
}
