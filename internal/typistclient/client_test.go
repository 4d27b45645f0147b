package typistclient_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/pgn-typist/internal/archive"
	"github.com/park285/pgn-typist/internal/httpapi"
	"github.com/park285/pgn-typist/internal/notation"
	"github.com/park285/pgn-typist/internal/rules"
	"github.com/park285/pgn-typist/internal/session"
	"github.com/park285/pgn-typist/internal/typistclient"
	"github.com/park285/pgn-typist/pkg/typistdto"
)

func newClient(t *testing.T) *typistclient.Client {
	t.Helper()
	svc, err := session.NewService(rules.NewOracle(), notation.MustDefault(), nil, archive.NewMemoryRepository(), nil,
		session.Config{DefaultLang: "en"}, nil)
	require.NoError(t, err)
	srv := httpapi.New(svc, nil, nil, nil)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.Close(context.Background())
	})
	return typistclient.New("http://typist.local",
		typistclient.WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
		typistclient.WithTimeout(5*time.Second),
	)
}

func TestClientRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	st, err := c.Create(ctx, "")
	require.NoError(t, err)

	for _, mv := range []string{"e4", "e5", "Nf3"} {
		resp, err := c.Submit(ctx, st.ID, mv, "")
		require.NoError(t, err)
		require.True(t, resp.Accepted, mv)
	}
	resp, err := c.Submit(ctx, st.ID, "Qxf7", "")
	require.NoError(t, err)
	assert.False(t, resp.Accepted)

	got, err := c.SetCursor(ctx, st.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, got.Cursor)
	assert.Equal(t, 0, *got.Cursor)

	got, err = c.Step(ctx, st.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, *got.Cursor)

	got, err = c.CursorEnd(ctx, st.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Cursor)

	got, err = c.SetComment(ctx, st.ID, 2, "develops")
	require.NoError(t, err)
	assert.Equal(t, "develops", got.Comments["2"])

	lang := "de"
	_, err = c.UpdateSettings(ctx, st.ID, typistdto.SettingsRequest{Language: &lang})
	var apiErr *typistclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fasthttp.StatusBadRequest, apiErr.Status)

	exp, err := c.Export(ctx, st.ID, true)
	require.NoError(t, err)
	assert.Contains(t, exp.PGN, "2. Nf3 {develops} *")
	assert.True(t, exp.Archived)

	games, err := c.History(ctx, st.ID, 5)
	require.NoError(t, err)
	require.Len(t, games, 1)
	g, err := c.ArchivedGame(ctx, games[0].ID)
	require.NoError(t, err)
	assert.Equal(t, exp.PGN, g.PGN)

	got, err = c.Undo(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Comments)
	got, err = c.DeleteLast(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"e4", "e5"}, got.Moves)
}

func TestClientNotFound(t *testing.T) {
	c := newClient(t)
	_, err := c.Get(context.Background(), "missing")
	assert.True(t, typistclient.IsNotFound(err), "%v", err)
}
