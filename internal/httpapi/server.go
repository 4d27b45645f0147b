// Package httpapi exposes the session service as a JSON API over fasthttp.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/park285/pgn-typist/internal/archive"
	"github.com/park285/pgn-typist/internal/metrics"
	"github.com/park285/pgn-typist/internal/movehistory"
	"github.com/park285/pgn-typist/internal/pgn"
	"github.com/park285/pgn-typist/internal/session"
	"github.com/park285/pgn-typist/pkg/typistdto"
)

const (
	contentTypeJSON = "application/json"
	maxBodySize     = 1 << 20
	requestTimeout  = 10 * time.Second
)

type Server struct {
	svc     *session.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
	promh   fasthttp.RequestHandler
	srv     *fasthttp.Server
}

// New builds the API. A nil gatherer disables /metrics.
func New(svc *session.Service, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, metrics: m, logger: logger}
	if gatherer != nil {
		s.promh = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "pgn-typist",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxRequestBodySize: maxBodySize,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("http_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

// Serve accepts connections from ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// Handler returns the routing handler wrapped with request metrics.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		route := s.route(ctx)
		s.metrics.HTTPObserved(route, ctx.Response.StatusCode(), time.Since(start))
		if code := ctx.Response.StatusCode(); code >= 500 {
			s.logger.Warn("http_error",
				zap.String("method", string(ctx.Method())),
				zap.String("path", string(ctx.Path())),
				zap.Int("status", code),
			)
		}
	}
}

// route dispatches the request and returns the route label used for metrics.
func (s *Server) route(ctx *fasthttp.RequestCtx) string {
	path := strings.Trim(string(ctx.Path()), "/")
	parts := strings.Split(path, "/")
	method := string(ctx.Method())

	switch {
	case path == "healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
		return "/healthz"
	case path == "metrics":
		if s.promh == nil {
			writeError(ctx, fasthttp.StatusNotFound, typistdto.CodeNotFound, "metrics disabled")
		} else {
			s.promh(ctx)
		}
		return "/metrics"
	case len(parts) < 2 || parts[0] != "api":
		writeError(ctx, fasthttp.StatusNotFound, typistdto.CodeNotFound, "no such route")
		return "unmatched"
	}

	rctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch parts[1] {
	case "languages":
		if !allow(ctx, method, fasthttp.MethodGet) {
			return "/api/languages"
		}
		writeJSON(ctx, fasthttp.StatusOK, toLanguageDTOs(s.svc.Languages()))
		return "/api/languages"
	case "exports":
		if len(parts) != 3 {
			break
		}
		if allow(ctx, method, fasthttp.MethodGet) {
			s.getArchived(rctx, ctx, parts[2])
		}
		return "/api/exports/:id"
	case "sessions":
		return s.routeSessions(rctx, ctx, method, parts[2:])
	}
	writeError(ctx, fasthttp.StatusNotFound, typistdto.CodeNotFound, "no such route")
	return "unmatched"
}

func (s *Server) routeSessions(rctx context.Context, ctx *fasthttp.RequestCtx, method string, rest []string) string {
	if len(rest) == 0 {
		switch method {
		case fasthttp.MethodPost:
			s.create(rctx, ctx)
		case fasthttp.MethodGet:
			s.list(rctx, ctx)
		default:
			methodNotAllowed(ctx)
		}
		return "/api/sessions"
	}

	id := rest[0]
	if len(rest) == 1 {
		switch method {
		case fasthttp.MethodGet:
			s.reply(ctx)(s.svc.Get(rctx, id))
		case fasthttp.MethodDelete:
			if err := s.svc.Delete(rctx, id); err != nil {
				s.fail(ctx, err)
				return "/api/sessions/:id"
			}
			ctx.SetStatusCode(fasthttp.StatusNoContent)
		default:
			methodNotAllowed(ctx)
		}
		return "/api/sessions/:id"
	}

	sub := rest[1]
	switch {
	case sub == "moves" && len(rest) == 2:
		switch method {
		case fasthttp.MethodPost:
			s.submit(rctx, ctx, id)
		case fasthttp.MethodDelete:
			if from := ctx.QueryArgs().Peek("from"); len(from) > 0 {
				n, err := strconv.Atoi(string(from))
				if err != nil {
					writeError(ctx, fasthttp.StatusBadRequest, typistdto.CodeBadRequest, "from must be an integer")
					break
				}
				s.reply(ctx)(s.svc.TruncateFrom(rctx, id, n))
				break
			}
			s.reply(ctx)(s.svc.ClearAll(rctx, id))
		default:
			methodNotAllowed(ctx)
		}
		return "/api/sessions/:id/moves"
	case sub == "moves" && len(rest) == 3 && rest[2] == "last":
		if allow(ctx, method, fasthttp.MethodDelete) {
			s.reply(ctx)(s.svc.DeleteLast(rctx, id))
		}
		return "/api/sessions/:id/moves/last"
	case sub == "cursor" && len(rest) == 2:
		if allow(ctx, method, fasthttp.MethodPut) {
			s.cursor(rctx, ctx, id)
		}
		return "/api/sessions/:id/cursor"
	case sub == "comments" && len(rest) == 2:
		if allow(ctx, method, fasthttp.MethodDelete) {
			s.reply(ctx)(s.svc.ClearComments(rctx, id))
		}
		return "/api/sessions/:id/comments"
	case sub == "comments" && len(rest) == 3:
		s.comment(rctx, ctx, method, id, rest[2])
		return "/api/sessions/:id/comments/:ply"
	case (sub == "undo" || sub == "redo") && len(rest) == 2:
		if allow(ctx, method, fasthttp.MethodPost) {
			if sub == "undo" {
				s.reply(ctx)(s.svc.Undo(rctx, id))
			} else {
				s.reply(ctx)(s.svc.Redo(rctx, id))
			}
		}
		return "/api/sessions/:id/" + sub
	case sub == "headers" && len(rest) == 2:
		if allow(ctx, method, fasthttp.MethodPut) {
			var req typistdto.HeaderRequest
			if decode(ctx, &req) {
				s.reply(ctx)(s.svc.SetHeader(rctx, id, req.Key, req.Value))
			}
		}
		return "/api/sessions/:id/headers"
	case sub == "headers" && len(rest) == 3 && rest[2] == "reset":
		if allow(ctx, method, fasthttp.MethodPost) {
			s.reply(ctx)(s.svc.ResetHeaders(rctx, id))
		}
		return "/api/sessions/:id/headers/reset"
	case sub == "headers" && len(rest) == 3:
		if allow(ctx, method, fasthttp.MethodDelete) {
			s.reply(ctx)(s.svc.RemoveHeader(rctx, id, rest[2]))
		}
		return "/api/sessions/:id/headers/:key"
	case sub == "settings" && len(rest) == 2:
		if allow(ctx, method, fasthttp.MethodPut) {
			var req typistdto.SettingsRequest
			if decode(ctx, &req) {
				s.reply(ctx)(s.svc.UpdateSettings(rctx, id, session.SettingsPatch{
					Orientation:      req.Orientation,
					ShowLastMove:     req.ShowLastMove,
					ShowSelectedMove: req.ShowSelectedMove,
					Language:         req.Language,
				}))
			}
		}
		return "/api/sessions/:id/settings"
	case sub == "pgn" && len(rest) == 2:
		if allow(ctx, method, fasthttp.MethodGet) {
			s.export(rctx, ctx, id)
		}
		return "/api/sessions/:id/pgn"
	case sub == "exports" && len(rest) == 2:
		if allow(ctx, method, fasthttp.MethodGet) {
			s.history(rctx, ctx, id)
		}
		return "/api/sessions/:id/exports"
	}
	writeError(ctx, fasthttp.StatusNotFound, typistdto.CodeNotFound, "no such route")
	return "unmatched"
}

func (s *Server) create(rctx context.Context, ctx *fasthttp.RequestCtx) {
	var req typistdto.CreateSessionRequest
	if len(ctx.PostBody()) > 0 && !decode(ctx, &req) {
		return
	}
	var (
		st  *session.State
		err error
	)
	if strings.TrimSpace(req.PGN) != "" {
		st, err = s.svc.Import(rctx, req.PGN)
	} else {
		st, err = s.svc.Create(rctx)
	}
	if err != nil {
		s.fail(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, toStateDTO(st))
}

func (s *Server) list(rctx context.Context, ctx *fasthttp.RequestCtx) {
	ids, err := s.svc.Recent(rctx, ctx.QueryArgs().GetUintOrZero("limit"))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(ctx, fasthttp.StatusOK, typistdto.SessionListResponse{IDs: ids})
}

func (s *Server) submit(rctx context.Context, ctx *fasthttp.RequestCtx, id string) {
	var req typistdto.MoveRequest
	if !decode(ctx, &req) {
		return
	}
	out, err := s.svc.SubmitMove(rctx, id, req.Move, req.Lang)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	resp := typistdto.MoveResponse{
		Accepted: out.Accepted,
		Input:    out.Input,
		State:    toStateDTO(out.State),
	}
	if !out.Accepted {
		writeJSON(ctx, fasthttp.StatusUnprocessableEntity, resp)
		return
	}
	resp.Edit = &typistdto.Edit{
		Ply:       out.Edit.Ply,
		Move:      out.Edit.Move,
		Replaced:  out.Edit.Replaced,
		Discarded: out.Edit.Discarded,
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) cursor(rctx context.Context, ctx *fasthttp.RequestCtx, id string) {
	var req typistdto.CursorRequest
	if !decode(ctx, &req) {
		return
	}
	set := 0
	for _, b := range []bool{req.Index != nil, req.End, req.Step != nil} {
		if b {
			set++
		}
	}
	if set != 1 {
		writeError(ctx, fasthttp.StatusBadRequest, typistdto.CodeBadRequest, "set exactly one of index, end, step")
		return
	}
	switch {
	case req.End:
		s.reply(ctx)(s.svc.SetCursor(rctx, id, movehistory.End))
	case req.Index != nil:
		s.reply(ctx)(s.svc.SetCursor(rctx, id, movehistory.At(*req.Index)))
	default:
		s.reply(ctx)(s.svc.Navigate(rctx, id, *req.Step))
	}
}

func (s *Server) comment(rctx context.Context, ctx *fasthttp.RequestCtx, method, id, rawPly string) {
	ply, err := strconv.Atoi(rawPly)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, typistdto.CodeBadRequest, "ply must be an integer")
		return
	}
	switch method {
	case fasthttp.MethodPut:
		var req typistdto.CommentRequest
		if decode(ctx, &req) {
			s.reply(ctx)(s.svc.SetComment(rctx, id, ply, req.Text))
		}
	case fasthttp.MethodDelete:
		s.reply(ctx)(s.svc.DeleteComment(rctx, id, ply))
	default:
		methodNotAllowed(ctx)
	}
}

func (s *Server) export(rctx context.Context, ctx *fasthttp.RequestCtx, id string) {
	args := ctx.QueryArgs()
	withComments := args.GetBool("comments")
	res, err := s.svc.Export(rctx, id, withComments)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	if string(args.Peek("format")) == "json" {
		writeJSON(ctx, fasthttp.StatusOK, typistdto.ExportResponse{
			PGN:       res.PGN,
			Result:    res.Result,
			ECO:       res.ECO,
			Opening:   res.Opening,
			ArchiveID: res.ArchiveID,
			Archived:  res.Archived,
		})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(pgn.ContentType)
	if res.Archived {
		ctx.Response.Header.Set("X-Archive-Id", strconv.FormatInt(res.ArchiveID, 10))
	}
	ctx.SetBodyString(res.PGN)
}

func (s *Server) history(rctx context.Context, ctx *fasthttp.RequestCtx, id string) {
	games, err := s.svc.History(rctx, id, ctx.QueryArgs().GetUintOrZero("limit"))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	resp := typistdto.HistoryResponse{Games: make([]typistdto.ArchivedGame, 0, len(games))}
	for _, g := range games {
		resp.Games = append(resp.Games, toGameDTO(g))
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) getArchived(rctx context.Context, ctx *fasthttp.RequestCtx, raw string) {
	gameID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || gameID <= 0 {
		writeError(ctx, fasthttp.StatusBadRequest, typistdto.CodeBadRequest, "invalid export id")
		return
	}
	g, err := s.svc.ArchivedGame(rctx, gameID)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toGameDTO(g))
}

// reply returns a sink for service calls that yield a session state.
func (s *Server) reply(ctx *fasthttp.RequestCtx) func(*session.State, error) {
	return func(st *session.State, err error) {
		if err != nil {
			s.fail(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, toStateDTO(st))
	}
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, archive.ErrNotFound):
		writeError(ctx, fasthttp.StatusNotFound, typistdto.CodeNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidInput):
		writeError(ctx, fasthttp.StatusBadRequest, typistdto.CodeBadRequest, err.Error())
	case errors.Is(err, session.ErrClosed), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, typistdto.DomainError{
			Code:      typistdto.CodeUnavailable,
			Message:   err.Error(),
			Retryable: true,
		})
	default:
		s.logger.Error("request_failed", zap.String("path", string(ctx.Path())), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, typistdto.CodeInternal, "internal error")
	}
}

func allow(ctx *fasthttp.RequestCtx, method, want string) bool {
	if method == want {
		return true
	}
	methodNotAllowed(ctx)
	return false
}

func methodNotAllowed(ctx *fasthttp.RequestCtx) {
	writeError(ctx, fasthttp.StatusMethodNotAllowed, typistdto.CodeBadRequest, "method not allowed")
}

func decode(ctx *fasthttp.RequestCtx, out any) bool {
	if err := json.Unmarshal(ctx.PostBody(), out); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, typistdto.CodeBadRequest, "malformed JSON body")
		return false
	}
	return true
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, msg string) {
	writeJSON(ctx, status, typistdto.DomainError{Code: code, Message: msg})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"code":"internal"}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType(contentTypeJSON)
	ctx.SetBody(body)
}
