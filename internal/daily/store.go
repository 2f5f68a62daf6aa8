package daily

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/robalobadob/tesseract/internal/game"
)

// ErrAlreadyPlayed is returned when a player records a second daily run for
// the same date.
var ErrAlreadyPlayed = errors.New("daily already played")

// Run is one completed game.
type Run struct {
	ID          string                  `json:"id"`
	UserID      string                  `json:"userId,omitempty"`
	AnonymousID string                  `json:"-"`
	Mode        string                  `json:"mode"`
	Date        string                  `json:"date"`
	TotalMoves  int                     `json:"totalMoves"`
	TotalMs     int64                   `json:"totalMs"`
	Phases      map[int]game.PhaseStats `json:"phases"`
	CreatedAt   string                  `json:"createdAt,omitempty"`
}

// NewRun builds a Run from the per-phase stats of a completed session.
func NewRun(mode, date string, stats map[int]game.PhaseStats) Run {
	r := Run{ID: uuid.NewString(), Mode: mode, Date: date, Phases: make(map[int]game.PhaseStats, len(stats))}
	for phase, st := range stats {
		r.Phases[phase] = st
		r.TotalMoves += st.Moves
		r.TotalMs += st.ElapsedMs
	}
	return r
}

// Store persists runs in SQLite.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// AlreadyPlayed reports whether owner (user or anonymous ID) has a daily run
// for date.
func (s *Store) AlreadyPlayed(ctx context.Context, owner, date string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM runs
		 WHERE mode='daily' AND date=? AND COALESCE(user_id, anonymous_id)=?`,
		date, owner,
	).Scan(&cnt)
	return cnt > 0, err
}

// InsertRun records r and, for signed-in users, updates their totals.
// A second daily run by the same player for the same date returns
// ErrAlreadyPlayed.
func (s *Store) InsertRun(ctx context.Context, r Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	p := func(phase int) game.PhaseStats { return r.Phases[phase] }
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, user_id, anonymous_id, mode, date, total_moves, total_ms,
		                  phase1_moves, phase1_ms, phase2_moves, phase2_ms, phase3_moves, phase3_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, nullable(r.UserID), nullable(r.AnonymousID), r.Mode, r.Date, r.TotalMoves, r.TotalMs,
		p(1).Moves, p(1).ElapsedMs, p(2).Moves, p(2).ElapsedMs, p(3).Moves, p(3).ElapsedMs,
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrAlreadyPlayed
		}
		return fmt.Errorf("insert run: %w", err)
	}

	if r.UserID != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users
			SET runs_completed = runs_completed + 1,
			    best_ms = CASE WHEN best_ms IS NULL OR ? < best_ms THEN ? ELSE best_ms END
			WHERE id = ?`, r.TotalMs, r.TotalMs, r.UserID,
		); err != nil {
			return fmt.Errorf("update user totals: %w", err)
		}
	}
	return tx.Commit()
}

// LBRow is one leaderboard line.
type LBRow struct {
	Player     string `json:"player"`
	TotalMoves int    `json:"totalMoves"`
	TotalMs    int64  `json:"totalMs"`
}

// Leaderboard returns the fastest daily runs for date, ties broken by
// moves then submission order. Anonymous players are listed as "anonymous".
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(u.username, 'anonymous'), r.total_moves, r.total_ms
		FROM runs r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.mode='daily' AND r.date=?
		ORDER BY r.total_ms ASC, r.total_moves ASC, r.created_at ASC
		LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.Player, &r.TotalMoves, &r.TotalMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunsForUser returns a user's runs, newest first.
func (s *Store) RunsForUser(ctx context.Context, userID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, date, total_moves, total_ms,
		       phase1_moves, phase1_ms, phase2_moves, phase2_ms, phase3_moves, phase3_ms, created_at
		FROM runs
		WHERE user_id=?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r := Run{UserID: userID, Phases: make(map[int]game.PhaseStats, 3)}
		var m [3]int
		var ms [3]int64
		if err := rows.Scan(&r.ID, &r.Mode, &r.Date, &r.TotalMoves, &r.TotalMs,
			&m[0], &ms[0], &m[1], &ms[1], &m[2], &ms[2], &r.CreatedAt); err != nil {
			return nil, err
		}
		for i := range m {
			r.Phases[i+1] = game.PhaseStats{
				Moves:     m[i],
				ElapsedMs: ms[i],
				Time:      game.FormatClock(msDuration(ms[i])),
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
