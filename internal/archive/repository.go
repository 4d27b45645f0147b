// Package archive keeps exported games.
package archive

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/pgn-typist/internal/domain"
	"github.com/park285/pgn-typist/internal/pgn"
)

var (
	ErrDuplicateExport = errors.New("export already archived")
	ErrNotFound        = errors.New("archived game not found")
)

const defaultRecentLimit = 10

type Repository interface {
	Insert(ctx context.Context, game *domain.ArchivedGame) (int64, error)
	Recent(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error)
	Get(ctx context.Context, id int64) (*domain.ArchivedGame, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS typist_games (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	pgn_sha256  TEXT NOT NULL,
	headers     JSONB NOT NULL,
	moves_san   JSONB NOT NULL,
	comments    JSONB NOT NULL,
	pgn         TEXT NOT NULL,
	result      TEXT NOT NULL,
	eco         TEXT NOT NULL DEFAULT '',
	opening     TEXT NOT NULL DEFAULT '',
	ply_count   INTEGER NOT NULL,
	exported_at TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, pgn_sha256)
);
CREATE INDEX IF NOT EXISTS typist_games_session_idx ON typist_games (session_id, exported_at DESC);`

type postgres struct {
	db *sql.DB
}

// Open connects with lib/pq, applies pool limits and pings the server.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewRepository(db *sql.DB) Repository {
	return &postgres{db: db}
}

// EnsureSchema creates the archive table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// Fingerprint identifies an export by its PGN text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (r *postgres) Insert(ctx context.Context, game *domain.ArchivedGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil archived game")
	}
	headers, err := json.Marshal(game.Headers)
	if err != nil {
		return 0, fmt.Errorf("marshal headers: %w", err)
	}
	moves, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}
	comments, err := json.Marshal(game.Comments)
	if err != nil {
		return 0, fmt.Errorf("marshal comments: %w", err)
	}

	const query = `
		INSERT INTO typist_games (
			session_id, pgn_sha256, headers, moves_san, comments,
			pgn, result, eco, opening, ply_count, exported_at
		)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5::jsonb, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id, pgn_sha256) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(ctx, query,
		game.SessionID,
		Fingerprint(game.PGN),
		headers,
		moves,
		comments,
		game.PGN,
		game.Result,
		game.ECO,
		game.Opening,
		game.PlyCount,
		game.ExportedAt,
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateExport
	}
	if err != nil {
		return 0, fmt.Errorf("insert archived game: %w", err)
	}
	return id.Int64, nil
}

const selectColumns = `id, session_id, headers, moves_san, comments, pgn, result, eco, opening, ply_count, exported_at`

func (r *postgres) Recent(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	query := `SELECT ` + selectColumns + ` FROM typist_games
		WHERE session_id = $1
		ORDER BY exported_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select archived games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ArchivedGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived games: %w", err)
	}
	return games, nil
}

func (r *postgres) Get(ctx context.Context, id int64) (*domain.ArchivedGame, error) {
	query := `SELECT ` + selectColumns + ` FROM typist_games WHERE id = $1`
	game, err := scanGame(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return game, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (*domain.ArchivedGame, error) {
	var (
		game                          domain.ArchivedGame
		headersJSON, movesJSON, comms []byte
	)
	if err := row.Scan(
		&game.ID,
		&game.SessionID,
		&headersJSON,
		&movesJSON,
		&comms,
		&game.PGN,
		&game.Result,
		&game.ECO,
		&game.Opening,
		&game.PlyCount,
		&game.ExportedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan archived game: %w", err)
	}
	var headers pgn.Headers
	if err := json.Unmarshal(headersJSON, &headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	if err := json.Unmarshal(movesJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	var comments domain.CommentMap
	if err := json.Unmarshal(comms, &comments); err != nil {
		return nil, fmt.Errorf("unmarshal comments: %w", err)
	}
	game.Headers = headers
	game.Comments = comments
	return &game, nil
}
