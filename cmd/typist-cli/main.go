package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/park285/pgn-typist/internal/archive"
	"github.com/park285/pgn-typist/internal/httpapi"
	"github.com/park285/pgn-typist/internal/msgcat"
	"github.com/park285/pgn-typist/internal/notation"
	"github.com/park285/pgn-typist/internal/obslog"
	"github.com/park285/pgn-typist/internal/presenter"
	"github.com/park285/pgn-typist/internal/repl"
	"github.com/park285/pgn-typist/internal/rules"
	"github.com/park285/pgn-typist/internal/session"
	"github.com/park285/pgn-typist/internal/store"
	"github.com/park285/pgn-typist/internal/typistclient"
)

func main() {
	server := flag.String("server", os.Getenv("TYPIST_SERVER"), "API base URL; empty runs an in-process server")
	sessionID := flag.String("session", "", "attach to an existing session")
	lang := flag.String("lang", "", "notation language for this session")
	messages := flag.String("messages", os.Getenv("TYPIST_MESSAGES_DIR"), "directory with message overrides")
	flag.Parse()

	opts := obslog.OptionsFromEnv()
	opts.Stderr = true
	if os.Getenv("LOG_LEVEL") == "" {
		opts.Level = "warn"
	}
	if err := obslog.Init(opts); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.Named("cli")

	cat, err := msgcat.New(*messages)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}

	var client *typistclient.Client
	if strings.TrimSpace(*server) != "" {
		client = typistclient.New(*server)
	} else {
		c, stop, err := inProcess(logger)
		if err != nil {
			log.Fatalf("local server error: %v", err)
		}
		defer stop()
		client = c
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sh := repl.New(client, presenter.NewFormatter(cat), os.Stdout, logger)
	if err := sh.Open(ctx, *sessionID, *lang); err != nil {
		log.Fatalf("open session: %v", err)
	}
	if err := sh.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		logger.Warn("repl_stopped", zap.Error(err))
	}
}

// inProcess serves the API on an in-memory listener so the shell uses the
// same client path as against a remote server.
func inProcess(logger *zap.Logger) (*typistclient.Client, func(), error) {
	table, err := notation.Load(os.Getenv("TYPIST_NOTATION_DIR"))
	if err != nil {
		return nil, nil, err
	}
	svc, err := session.NewService(rules.NewOracle(), table, store.NewMemory(), archive.NewMemoryRepository(), nil,
		session.Config{DefaultLang: "en"}, logger.Named("session"))
	if err != nil {
		return nil, nil, err
	}
	srv := httpapi.New(svc, nil, nil, logger.Named("http"))
	ln := fasthttputil.NewInmemoryListener()
	go func() {
		if err := srv.Serve(ln); err != nil {
			logger.Warn("local_server_stopped", zap.Error(err))
		}
	}()
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = svc.Close(ctx)
	}
	client := typistclient.New("http://typist.local",
		typistclient.WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
	)
	return client, stop, nil
}
