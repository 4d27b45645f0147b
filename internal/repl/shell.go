// Package repl is the line-oriented front end of typist-cli.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/pgn-typist/internal/presenter"
	"github.com/park285/pgn-typist/internal/typistclient"
	"github.com/park285/pgn-typist/pkg/typistdto"
)

var errQuit = errors.New("quit")

type Shell struct {
	client *typistclient.Client
	fmt    *presenter.Formatter
	out    io.Writer
	logger *zap.Logger

	lang  string
	state *typistdto.SessionState
}

func New(client *typistclient.Client, f *presenter.Formatter, out io.Writer, logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{client: client, fmt: f, out: out, logger: logger}
}

// Open attaches to an existing session, or creates one when id is empty.
func (s *Shell) Open(ctx context.Context, id, lang string) error {
	var (
		st  *typistdto.SessionState
		err error
	)
	if id == "" {
		st, err = s.client.Create(ctx, "")
	} else {
		st, err = s.client.Get(ctx, id)
	}
	if err != nil {
		return err
	}
	s.state = st
	if lang != "" && lang != st.Settings.Language {
		l := lang
		st, err = s.client.UpdateSettings(ctx, st.ID, typistdto.SettingsRequest{Language: &l})
		if err != nil {
			return err
		}
		s.state = st
	}
	s.lang = s.state.Settings.Language
	return nil
}

// SessionID is empty before Open.
func (s *Shell) SessionID() string {
	if s.state == nil {
		return ""
	}
	return s.state.ID
}

// Run reads commands until EOF or quit.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	s.println(s.fmt.Text("cli.banner", nil))
	s.println(s.fmt.Text("cli.session", map[string]any{"ID": s.SessionID()}))
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.fmt.Prompt(s.state))
		if !sc.Scan() {
			break
		}
		err := s.Exec(ctx, sc.Text())
		if errors.Is(err, errQuit) {
			s.println(s.fmt.Text("cli.bye", nil))
			return nil
		}
		if err != nil {
			s.logger.Debug("command_failed", zap.String("line", sc.Text()), zap.Error(err))
			s.println(s.describe(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return sc.Err()
}

// Exec runs one command line. Anything that is not a command is a move.
func (s *Shell) Exec(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	id := s.SessionID()

	switch cmd {
	case "help", "?":
		s.println(s.fmt.Help())
	case "quit", "exit":
		return errQuit
	case "go":
		if len(args) != 1 {
			return s.usage("go <ply>|end")
		}
		if strings.EqualFold(args[0], "end") {
			return s.show(s.client.CursorEnd(ctx, id))
		}
		ply, err := plyArg(args[0])
		if err != nil {
			return s.usage("go <ply>|end")
		}
		return s.show(s.client.SetCursor(ctx, id, ply))
	case "<":
		return s.show(s.client.Step(ctx, id, -1))
	case ">":
		return s.show(s.client.Step(ctx, id, 1))
	case "del":
		if len(args) == 0 {
			return s.show(s.client.DeleteLast(ctx, id))
		}
		ply, err := plyArg(args[0])
		if err != nil {
			return s.usage("del [ply]")
		}
		return s.show(s.client.TruncateFrom(ctx, id, ply))
	case "clear":
		return s.show(s.client.ClearAll(ctx, id))
	case "undo":
		return s.show(s.client.Undo(ctx, id))
	case "redo":
		return s.show(s.client.Redo(ctx, id))
	case "note":
		if len(args) < 1 {
			return s.usage("note <ply> <text>")
		}
		ply, err := plyArg(args[0])
		if err != nil {
			return s.usage("note <ply> <text>")
		}
		return s.show(s.client.SetComment(ctx, id, ply, strings.Join(args[1:], " ")))
	case "unnote":
		if len(args) != 1 {
			return s.usage("unnote <ply>|unnote all")
		}
		if strings.EqualFold(args[0], "all") {
			return s.show(s.client.ClearComments(ctx, id))
		}
		ply, err := plyArg(args[0])
		if err != nil {
			return s.usage("unnote <ply>|unnote all")
		}
		return s.show(s.client.DeleteComment(ctx, id, ply))
	case "tag":
		return s.tag(ctx, id, args)
	case "lang":
		if len(args) != 1 {
			return s.usage("lang <code>")
		}
		code := strings.ToLower(args[0])
		st, err := s.client.UpdateSettings(ctx, id, typistdto.SettingsRequest{Language: &code})
		if err != nil {
			return err
		}
		s.lang = st.Settings.Language
		return s.show(st, nil)
	case "flip":
		orientation := "black"
		if s.state.Settings.Orientation == "black" {
			orientation = "white"
		}
		st, err := s.client.UpdateSettings(ctx, id, typistdto.SettingsRequest{Orientation: &orientation})
		if err != nil {
			return err
		}
		s.state = st
		s.println(s.fmt.Board(st))
	case "board":
		st, err := s.client.Get(ctx, id)
		if err != nil {
			return err
		}
		s.state = st
		s.println(s.fmt.Board(st))
		s.println(s.fmt.Status(st))
	case "moves":
		st, err := s.client.Get(ctx, id)
		if err != nil {
			return err
		}
		return s.show(st, nil)
	case "pgn":
		withComments := !(len(args) == 1 && strings.EqualFold(args[0], "nocomments"))
		res, err := s.client.Export(ctx, id, withComments)
		if err != nil {
			return err
		}
		s.println(s.fmt.Export(res))
	case "exports":
		if len(args) == 1 {
			gid, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
			if err != nil {
				return s.usage("exports [id]")
			}
			g, err := s.client.ArchivedGame(ctx, gid)
			if err != nil {
				return err
			}
			s.println(strings.TrimSpace(g.PGN))
			return nil
		}
		games, err := s.client.History(ctx, id, 10)
		if err != nil {
			return err
		}
		s.println(s.fmt.History(games))
	case "langs":
		langs, err := s.client.Languages(ctx)
		if err != nil {
			return err
		}
		s.println(s.fmt.Languages(langs, s.lang))
	default:
		// treat the whole line as a move
		resp, err := s.client.Submit(ctx, id, strings.TrimSpace(line), s.lang)
		if err != nil {
			return err
		}
		if resp.State != nil {
			s.state = resp.State
		}
		s.println(s.fmt.Move(resp))
	}
	return nil
}

func (s *Shell) tag(ctx context.Context, id string, args []string) error {
	const usage = "tag <Key> <value> | tag -<Key> | tag reset"
	switch {
	case len(args) == 1 && strings.EqualFold(args[0], "reset"):
		return s.show(s.client.ResetHeaders(ctx, id))
	case len(args) == 1 && strings.HasPrefix(args[0], "-") && len(args[0]) > 1:
		return s.show(s.client.RemoveHeader(ctx, id, args[0][1:]))
	case len(args) >= 2:
		return s.show(s.client.SetHeader(ctx, id, args[0], strings.Join(args[1:], " ")))
	default:
		return s.usage(usage)
	}
}

func (s *Shell) show(st *typistdto.SessionState, err error) error {
	if err != nil {
		return err
	}
	s.state = st
	s.println(s.fmt.MoveList(st))
	return nil
}

func (s *Shell) usage(u string) error {
	s.println(s.fmt.Text("cli.usage", map[string]any{"Usage": u}))
	return nil
}

func (s *Shell) describe(err error) string {
	if typistclient.IsNotFound(err) {
		return s.fmt.Text("error.not_found", nil)
	}
	var apiErr *typistclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return s.fmt.Text("error.generic", map[string]any{"Err": apiErr.Message})
	}
	return s.fmt.Text("error.generic", map[string]any{"Err": err})
}

func (s *Shell) println(text string) {
	if text == "" {
		return
	}
	fmt.Fprintln(s.out, text)
}

// plyArg converts a 1-based ply from the command line to an index.
func plyArg(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid ply %q", raw)
	}
	return n - 1, nil
}
