// Package importer loads workout history from a legacy training-log export
// into the session store. Sessions arrive pre-finished: each one is scored on
// the way in against the targets the legacy app recorded.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/ironvow/internal/storage"
	_ "modernc.org/sqlite"
)

// Stats tracks import progress.
type Stats struct {
	SessionsRead     int `json:"sessions_read"`
	SessionsInserted int `json:"sessions_inserted"`
	SessionsSkipped  int `json:"sessions_skipped"`
	SetsRead         int `json:"sets_read"`
}

// Importer converts legacy sessions and inserts them into the database.
type Importer struct {
	db     *storage.DB
	log    *slog.Logger
	dryRun bool
	stats  Stats
}

// New creates a new Importer.
func New(db *storage.DB, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{db: db, log: log, dryRun: dryRun}
}

// ImportFile reads a legacy SQLite export and inserts every session it holds
// for the given user. Ids are derived from session content, so re-running the
// import skips rows that already exist.
func (imp *Importer) ImportFile(ctx context.Context, path string, userID int) (*Stats, error) {
	sessions, err := readExport(ctx, path)
	if err != nil {
		return &imp.stats, err
	}
	return imp.InsertSessions(ctx, userID, sessions)
}

// InsertSessions scores and inserts the given legacy sessions. Shared by the
// CLI (SQLite file) and the HTTP ingest endpoint (JSON payload).
func (imp *Importer) InsertSessions(ctx context.Context, userID int, sessions []LegacySession) (*Stats, error) {
	for _, ls := range sessions {
		imp.stats.SessionsRead++
		for _, ex := range ls.Exercises {
			imp.stats.SetsRead += len(ex.Sets)
		}

		if len(ls.Exercises) == 0 {
			imp.stats.SessionsSkipped++
			imp.log.Warn("skipping empty legacy session", "name", ls.Name, "date", ls.Date)
			continue
		}

		sess := convert(ls, userID)
		if imp.dryRun {
			imp.log.Info("dry run: would insert session",
				"name", ls.Name, "date", ls.Date, "score", *sess.DevotionScore)
			continue
		}

		if err := imp.db.InsertFinishedSession(ctx, sess); err != nil {
			return &imp.stats, fmt.Errorf("inserting session %q (%s): %w", ls.Name, ls.Date, err)
		}
		imp.stats.SessionsInserted++
	}
	return &imp.stats, nil
}

// readExport loads all sessions from a legacy SQLite export. The export
// schema is three tables: sessions, exercises, sets.
func readExport(ctx context.Context, path string) ([]LegacySession, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening export %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, name, date, duration_min FROM sessions ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying legacy sessions: %w", err)
	}
	defer rows.Close()

	var (
		sessions []LegacySession
		ids      []int64
	)
	for rows.Next() {
		var (
			id      int64
			ls      LegacySession
			dateStr string
		)
		if err := rows.Scan(&id, &ls.Name, &dateStr, &ls.DurationMin); err != nil {
			return nil, fmt.Errorf("scanning legacy session: %w", err)
		}
		ls.Date, err = parseLegacyDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", ls.Name, err)
		}
		sessions = append(sessions, ls)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		exercises, err := readExercises(ctx, db, id)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", sessions[i].Name, err)
		}
		sessions[i].Exercises = exercises
	}
	return sessions, nil
}

func readExercises(ctx context.Context, db *sql.DB, sessionID int64) ([]LegacyExercise, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, number, name, equipment, target_reps
		 FROM exercises WHERE session_id = ? ORDER BY number ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying legacy exercises: %w", err)
	}
	defer rows.Close()

	var (
		exercises []LegacyExercise
		ids       []int64
	)
	for rows.Next() {
		var (
			id int64
			le LegacyExercise
		)
		if err := rows.Scan(&id, &le.Number, &le.Name, &le.Equipment, &le.TargetReps); err != nil {
			return nil, fmt.Errorf("scanning legacy exercise: %w", err)
		}
		exercises = append(exercises, le)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		setRows, err := db.QueryContext(ctx,
			`SELECT set_number, weight_kg, reps, is_warmup
			 FROM sets WHERE exercise_id = ? ORDER BY set_number ASC`,
			id)
		if err != nil {
			return nil, fmt.Errorf("querying legacy sets: %w", err)
		}
		for setRows.Next() {
			var set LegacySet
			if err := setRows.Scan(&set.Number, &set.WeightKg, &set.Reps, &set.IsWarmup); err != nil {
				setRows.Close()
				return nil, fmt.Errorf("scanning legacy set: %w", err)
			}
			exercises[i].Sets = append(exercises[i].Sets, set)
		}
		if err := setRows.Err(); err != nil {
			setRows.Close()
			return nil, err
		}
		setRows.Close()
	}
	return exercises, nil
}

func parseLegacyDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
