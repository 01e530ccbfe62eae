// Package archive writes finished games to Postgres together with their PGN.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/rules"
)

const schema = `CREATE TABLE IF NOT EXISTS hnb_games (
    game_id TEXT PRIMARY KEY,
    white_brain TEXT NOT NULL,
    white_hand TEXT NOT NULL,
    black_brain TEXT NOT NULL,
    black_hand TEXT NOT NULL,
    result TEXT NOT NULL,
    end_reason TEXT NOT NULL,
    eco TEXT NOT NULL DEFAULT '',
    opening TEXT NOT NULL DEFAULT '',
    moves_uci JSONB NOT NULL,
    moves_san JSONB NOT NULL,
    pgn TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
)`

// Repository is a handbrain.Archiver backed by Postgres.
type Repository struct {
	db *sql.DB
}

var _ handbrain.Archiver = (*Repository)(nil)

// Open connects to databaseURL and creates the archive table if needed.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure hnb_games: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// ArchiveGame upserts the final record of g. Re-archiving a game overwrites it.
func (r *Repository) ArchiveGame(ctx context.Context, g *handbrain.Game, moves []*handbrain.Move) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	uci := make([]string, 0, len(moves))
	san := make([]string, 0, len(moves))
	for _, mv := range moves {
		uci = append(uci, mv.Notation)
		san = append(san, mv.SAN)
	}
	// an unclassifiable line still archives, just without ECO headers
	op, _, _ := rules.ClassifyOpening(uci)
	uciRaw, _ := json.Marshal(uci)
	sanRaw, _ := json.Marshal(san)
	result := ResultToken(g)
	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO hnb_games (
        game_id, white_brain, white_hand, black_brain, black_hand,
        result, end_reason, eco, opening, moves_uci, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
      ) ON CONFLICT (game_id) DO UPDATE SET
        result=EXCLUDED.result,
        end_reason=EXCLUDED.end_reason,
        eco=EXCLUDED.eco,
        opening=EXCLUDED.opening,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.ID,
		g.WhiteBrain, g.WhiteHand,
		g.BlackBrain, g.BlackHand,
		result, string(g.EndReason), op.Code, op.Title,
		string(uciRaw), string(sanRaw), BuildPGN(g, san, op),
		g.CreatedAt, g.UpdatedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("archive game %s: %w", g.ID, err)
	}
	return nil
}

// ResultToken is the PGN result for g: "1-0", "0-1", "1/2-1/2" or "*".
func ResultToken(g *handbrain.Game) string {
	if g == nil || g.Status != handbrain.StatusFinished {
		return "*"
	}
	switch g.Winner {
	case handbrain.White:
		return "1-0"
	case handbrain.Black:
		return "0-1"
	}
	return "1/2-1/2"
}

// BuildPGN renders the game with numbered SAN moves. ECO headers are written
// only when op has a code.
func BuildPGN(g *handbrain.Game, san []string, op rules.Opening) string {
	if g == nil {
		return ""
	}
	result := ResultToken(g)
	date := g.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	var b strings.Builder
	b.WriteString("[Event \"Hand and Brain\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", team(g.WhiteBrain, g.WhiteHand))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", team(g.BlackBrain, g.BlackHand))
	if g.EndReason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitize(string(g.EndReason)))
	}
	if op.Code != "" {
		fmt.Fprintf(&b, "[ECO \"%s\"]\n", sanitize(op.Code))
		fmt.Fprintf(&b, "[Opening \"%s\"]\n", sanitize(op.Title))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(san); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(san[i]))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func team(brain, hand string) string {
	return sanitize(brain) + " / " + sanitize(hand)
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
