// Package rules adapts github.com/corentings/chess/v2 to the move history
// engine's oracle contract.
package rules

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"

	"github.com/park285/pgn-typist/internal/movehistory"
)

// Position is a chess position together with the SAN line that reached it.
// The line is needed for repetition based draws.
type Position struct {
	pos  *nchess.Position
	line []string
}

func (p *Position) FEN() string { return p.pos.String() }

func (p *Position) Turn() movehistory.Side {
	if p.pos.Turn() == nchess.Black {
		return movehistory.Black
	}
	return movehistory.White
}

// Board exposes the underlying board for rendering.
func (p *Position) Board() *nchess.Board { return p.pos.Board() }

// Line returns the moves played from the initial position.
func (p *Position) Line() []string { return append([]string(nil), p.line...) }

// Oracle implements movehistory.RulesOracle. It is stateless and safe for
// concurrent use.
type Oracle struct {
	start *nchess.Position
}

func NewOracle() *Oracle {
	return &Oracle{start: nchess.NewGame().Position()}
}

var _ movehistory.RulesOracle = (*Oracle)(nil)

func (o *Oracle) Start() movehistory.Position {
	return &Position{pos: o.start}
}

func (o *Oracle) Apply(p movehistory.Position, san string) (movehistory.Position, string, error) {
	cur, err := o.unwrap(p)
	if err != nil {
		return nil, "", err
	}
	text := strings.TrimSpace(san)
	if text == "" {
		return nil, "", fmt.Errorf("%w: empty move", movehistory.ErrIllegalMove)
	}
	decoded, err := nchess.AlgebraicNotation{}.Decode(cur.pos, text)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", movehistory.ErrIllegalMove, text)
	}
	mv := legalMatch(cur.pos, decoded)
	if mv == nil {
		return nil, "", fmt.Errorf("%w: %s", movehistory.ErrIllegalMove, text)
	}
	canon := nchess.AlgebraicNotation{}.Encode(cur.pos, mv)
	next := cur.pos.Update(mv)
	if next == nil {
		return nil, "", fmt.Errorf("%w: %s", movehistory.ErrIllegalMove, text)
	}
	line := make([]string, len(cur.line), len(cur.line)+1)
	copy(line, cur.line)
	return &Position{pos: next, line: append(line, canon)}, canon, nil
}

func (o *Oracle) LegalMoves(p movehistory.Position) []string {
	cur, err := o.unwrap(p)
	if err != nil {
		return nil
	}
	valid := cur.pos.ValidMoves()
	out := make([]string, 0, len(valid))
	for i := range valid {
		out = append(out, nchess.AlgebraicNotation{}.Encode(cur.pos, &valid[i]))
	}
	return out
}

// Status reports checkmate and stalemate from the position and draws from
// the game reached by replaying its line: automatic draws plus claimable
// threefold repetition and the fifty-move rule.
func (o *Oracle) Status(p movehistory.Position) movehistory.Status {
	cur, err := o.unwrap(p)
	if err != nil {
		return movehistory.Ongoing
	}
	switch cur.pos.Status() {
	case nchess.Checkmate:
		return movehistory.Checkmate
	case nchess.Stalemate:
		return movehistory.Stalemate
	}
	game := o.game(cur.line)
	if game.Outcome() == nchess.Draw {
		return movehistory.Draw
	}
	for _, m := range game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
			return movehistory.Draw
		}
	}
	return movehistory.Ongoing
}

// Opening returns the ECO code and name of the deepest book line matching
// the given SAN moves.
func (o *Oracle) Opening(moves []string) (code, title string) {
	book := ecoBook()
	if book == nil || len(moves) == 0 {
		return "", ""
	}
	game := o.game(moves)
	if eco := book.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

// game replays moves into a library game, stopping at the first illegal one.
func (o *Oracle) game(moves []string) *nchess.Game {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.AlgebraicNotation{}, nil); err != nil {
			break
		}
	}
	return game
}

func (o *Oracle) unwrap(p movehistory.Position) (*Position, error) {
	cur, ok := p.(*Position)
	if !ok || cur == nil || cur.pos == nil {
		return nil, fmt.Errorf("rules: foreign position %T", p)
	}
	return cur, nil
}

// legalMatch returns the generated legal move equal to mv, which carries the
// check and capture tags used by the SAN encoder.
func legalMatch(pos *nchess.Position, mv *nchess.Move) *nchess.Move {
	if mv == nil {
		return nil
	}
	valid := pos.ValidMoves()
	i := slices.IndexFunc(valid, func(v nchess.Move) bool {
		return v.S1() == mv.S1() && v.S2() == mv.S2() && v.Promo() == mv.Promo()
	})
	if i < 0 {
		return nil
	}
	return &valid[i]
}

var (
	ecoOnce sync.Once
	ecoInst *opening.BookECO
)

func ecoBook() *opening.BookECO {
	ecoOnce.Do(func() { ecoInst = opening.NewBookECO() })
	return ecoInst
}
