// Package sqlitestore persists games in an embedded SQLite database. The pool
// is capped at one connection, so each Update transaction is serialized.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/store/sqlitestore/migrations"
)

type Store struct {
	db *sql.DB
}

var _ handbrain.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (or creates) the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const gameColumns = `id, status, white_hand, white_brain, black_hand, black_brain,
	current_team, current_role, selected_piece, position, initial_position, winner, end_reason,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*handbrain.Game, error) {
	var (
		g                  handbrain.Game
		created, updated   int64
		status, team, role string
		piece, winner, end string
	)
	err := row.Scan(&g.ID, &status, &g.WhiteHand, &g.WhiteBrain, &g.BlackHand, &g.BlackBrain,
		&team, &role, &piece, &g.Position, &g.InitialPosition, &winner, &end, &created, &updated)
	if err != nil {
		return nil, err
	}
	g.Status = handbrain.Status(status)
	g.CurrentTeam = handbrain.Team(team)
	g.CurrentRole = handbrain.Role(role)
	g.SelectedPiece = handbrain.PieceType(piece)
	g.Winner = handbrain.Team(winner)
	g.EndReason = handbrain.EndReason(end)
	g.CreatedAt = fromMillis(created)
	g.UpdatedAt = fromMillis(updated)
	return &g, nil
}

func (s *Store) CreateGame(ctx context.Context, g *handbrain.Game) error {
	if g == nil || strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("sqlitestore: game id required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, string(g.Status), g.WhiteHand, g.WhiteBrain, g.BlackHand, g.BlackBrain,
		string(g.CurrentTeam), string(g.CurrentRole), string(g.SelectedPiece), g.Position, g.InitialPosition,
		string(g.Winner), string(g.EndReason), toMillis(g.CreatedAt), toMillis(g.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlitestore: game %s already exists", g.ID)
		}
		return fmt.Errorf("create game: %w", err)
	}
	return nil
}

func (s *Store) LoadGame(ctx context.Context, id string) (*handbrain.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	return g, nil
}

// Update runs fn inside a single SQL transaction. Sequence numbers continue
// from the highest persisted ones.
func (s *Store) Update(ctx context.Context, id string, fn handbrain.UpdateFunc) (_ *handbrain.Game, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cur, err := scanGame(tx.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, handbrain.GameNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	var lastS, lastM int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM suggestions WHERE game_id = ?`, id).Scan(&lastS); err != nil {
		return nil, fmt.Errorf("last suggestion: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM moves WHERE game_id = ?`, id).Scan(&lastM); err != nil {
		return nil, fmt.Errorf("last move: %w", err)
	}

	txn := handbrain.NewTxn(cur, lastS, lastM, func() ([]string, error) {
		return moveNotations(ctx, tx, id)
	})
	if err := fn(txn); err != nil {
		return nil, err
	}

	g := txn.Game
	_, err = tx.ExecContext(ctx,
		`UPDATE games SET status = ?, white_hand = ?, white_brain = ?, black_hand = ?, black_brain = ?,
		   current_team = ?, current_role = ?, selected_piece = ?, position = ?, initial_position = ?,
		   winner = ?, end_reason = ?, updated_at = ?
		 WHERE id = ?`,
		string(g.Status), g.WhiteHand, g.WhiteBrain, g.BlackHand, g.BlackBrain,
		string(g.CurrentTeam), string(g.CurrentRole), string(g.SelectedPiece), g.Position, g.InitialPosition,
		string(g.Winner), string(g.EndReason), toMillis(g.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update game %s: %w", id, err)
	}
	for _, sg := range txn.Suggestions() {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO suggestions (game_id, seq, player_id, piece_type, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, sg.Sequence, sg.PlayerID, string(sg.PieceType), toMillis(sg.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("insert suggestion: %w", conflictOr(err))
		}
	}
	for _, mv := range txn.Moves() {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO moves (game_id, seq, player_id, notation, san, position, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, mv.Sequence, mv.PlayerID, mv.Notation, mv.SAN, mv.Position, toMillis(mv.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("insert move: %w", conflictOr(err))
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return g, nil
}

func moveNotations(ctx context.Context, tx *sql.Tx, gameID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT notation FROM moves WHERE game_id = ? ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list notations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan notation: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// conflictOr maps a duplicate sequence number to ErrTxConflict.
func conflictOr(err error) error {
	if isUniqueViolation(err) {
		return handbrain.ErrTxConflict
	}
	return err
}

func (s *Store) ListGames(ctx context.Context, status handbrain.Status) ([]*handbrain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	out := make([]*handbrain.Game, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) ListSuggestions(ctx context.Context, gameID string) ([]*handbrain.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, player_id, piece_type, created_at FROM suggestions WHERE game_id = ? ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	out := make([]*handbrain.Suggestion, 0)
	for rows.Next() {
		sg := handbrain.Suggestion{GameID: gameID}
		var piece string
		var created int64
		if err := rows.Scan(&sg.Sequence, &sg.PlayerID, &piece, &created); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		sg.PieceType = handbrain.PieceType(piece)
		sg.CreatedAt = fromMillis(created)
		out = append(out, &sg)
	}
	return out, rows.Err()
}

func (s *Store) ListMoves(ctx context.Context, gameID string) ([]*handbrain.Move, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, player_id, notation, san, position, created_at FROM moves WHERE game_id = ? ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	defer rows.Close()

	out := make([]*handbrain.Move, 0)
	for rows.Next() {
		mv := handbrain.Move{GameID: gameID}
		var created int64
		if err := rows.Scan(&mv.Sequence, &mv.PlayerID, &mv.Notation, &mv.SAN, &mv.Position, &created); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		mv.CreatedAt = fromMillis(created)
		out = append(out, &mv)
	}
	return out, rows.Err()
}

func (s *Store) DeleteGame(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, q := range []string{
		`DELETE FROM suggestions WHERE game_id = ?`,
		`DELETE FROM moves WHERE game_id = ?`,
		`DELETE FROM games WHERE id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete game %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
