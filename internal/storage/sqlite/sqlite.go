// Package sqlite is the durable side of the routing core: append-only
// incident and evaluation trails, the singleton routing threshold, and the
// small operator/insight registries around them.
package sqlite

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/guard"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/judge"
)

const (
	// DefaultMinLengthForReasoning seeds the threshold row: a 600 cut
	// corresponds to a 0.6 complexity score.
	DefaultMinLengthForReasoning = 600

	maxIncidentDetailChars = 2000
	maxExcerptChars        = 400
)

// Store wraps the sqlite handle. Constructed once at startup and passed into
// each component that persists something; no package-level database state.
type Store struct {
	db *sql.DB
}

func InitDB(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS incidents (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		detail      TEXT DEFAULT '',
		model       TEXT DEFAULT '',
		route       TEXT DEFAULT '',
		occurred_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_occurred_at ON incidents(occurred_at);
	CREATE INDEX IF NOT EXISTS idx_incidents_kind ON incidents(kind);

	CREATE TABLE IF NOT EXISTS eval_events (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id           TEXT DEFAULT '',
		session_id        TEXT DEFAULT '',
		route             TEXT DEFAULT '',
		message_excerpt   TEXT DEFAULT '',
		reply_excerpt     TEXT DEFAULT '',
		latency_ms        INTEGER DEFAULT 0,
		judge_empathy     REAL,
		judge_helpfulness REAL,
		judge_safety      REAL,
		judge_notes       TEXT DEFAULT '',
		created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_eval_events_created_at ON eval_events(created_at);

	CREATE TABLE IF NOT EXISTS router_thresholds (
		id                       INTEGER PRIMARY KEY CHECK (id = 1),
		min_length_for_reasoning INTEGER NOT NULL,
		updated_at               DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prompt_insights (
		route      TEXT NOT NULL,
		pattern    TEXT NOT NULL,
		insight    TEXT DEFAULT '',
		hits       INTEGER DEFAULT 1,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (route, pattern)
	);

	CREATE TABLE IF NOT EXISTS user_devices (
		user_id   TEXT NOT NULL,
		player_id TEXT NOT NULL,
		PRIMARY KEY (user_id, player_id)
	);

	CREATE TABLE IF NOT EXISTS retrieval_logs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT DEFAULT '',
		query      TEXT DEFAULT '',
		topk       INTEGER DEFAULT 0,
		chunk_ids  TEXT DEFAULT '',
		score_mean REAL DEFAULT 0,
		outcome    TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	// Seed the singleton threshold row; an existing row wins.
	_, err = db.Exec(
		`INSERT OR IGNORE INTO router_thresholds (id, min_length_for_reasoning, updated_at) VALUES (1, ?, ?)`,
		DefaultMinLengthForReasoning, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertIncident appends one classified failure. Detail is truncated so a
// runaway provider error body cannot bloat the table.
func (s *Store) InsertIncident(inc guard.Incident) error {
	_, err := s.db.Exec(
		`INSERT INTO incidents (kind, detail, model, route, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		inc.Kind, truncate(inc.Detail, maxIncidentDetailChars), inc.Model, inc.Route, inc.OccurredAt.UTC(),
	)
	return err
}

// RecentIncidents returns the newest incidents, for dashboards and tests.
func (s *Store) RecentIncidents(limit int) ([]guard.Incident, error) {
	rows, err := s.db.Query(
		`SELECT kind, detail, model, route, occurred_at FROM incidents ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []guard.Incident
	for rows.Next() {
		var inc guard.Incident
		if err := rows.Scan(&inc.Kind, &inc.Detail, &inc.Model, &inc.Route, &inc.OccurredAt); err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// EvalEvent is one append-only row in the evaluation trail. Request rows
// carry route and latency; judge rows carry the three scores. Judge columns
// stay NULL on request rows, which is what the tuner filters on.
type EvalEvent struct {
	UserID         string
	SessionID      string
	Route          string
	MessageExcerpt string
	ReplyExcerpt   string
	LatencyMs      int64
	Empathy        *float64
	Helpfulness    *float64
	Safety         *float64
	Notes          string
}

func (s *Store) InsertEvalEvent(ev EvalEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO eval_events
		 (user_id, session_id, route, message_excerpt, reply_excerpt, latency_ms, judge_empathy, judge_helpfulness, judge_safety, judge_notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.UserID, ev.SessionID, ev.Route,
		truncate(ev.MessageExcerpt, maxExcerptChars), truncate(ev.ReplyExcerpt, maxExcerptChars),
		ev.LatencyMs, ev.Empathy, ev.Helpfulness, ev.Safety, ev.Notes,
	)
	return err
}

// LogRequestEvent appends a request-path telemetry row (no judgment yet).
func (s *Store) LogRequestEvent(userID, sessionID, route string, latencyMs int64) error {
	return s.InsertEvalEvent(EvalEvent{
		UserID:    userID,
		SessionID: sessionID,
		Route:     route,
		LatencyMs: latencyMs,
	})
}

// InsertJudgment appends a judged row to the evaluation trail.
func (s *Store) InsertJudgment(rec judge.Judgment) error {
	return s.InsertEvalEvent(EvalEvent{
		UserID:         rec.UserID,
		SessionID:      rec.SessionID,
		MessageExcerpt: rec.MessageExcerpt,
		ReplyExcerpt:   rec.ReplyExcerpt,
		Empathy:        &rec.Empathy,
		Helpfulness:    &rec.Helpfulness,
		Safety:         &rec.Safety,
		Notes:          rec.Notes,
	})
}

// RecentHelpfulness returns the newest judged helpfulness values, newest
// first, skipping rows without a judgment.
func (s *Store) RecentHelpfulness(limit int) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT judge_helpfulness FROM eval_events
		 WHERE judge_helpfulness IS NOT NULL
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Threshold reads the singleton routing threshold row.
func (s *Store) Threshold() (int, time.Time, error) {
	var value int
	var updatedAt time.Time
	err := s.db.QueryRow(
		`SELECT min_length_for_reasoning, updated_at FROM router_thresholds WHERE id = 1`,
	).Scan(&value, &updatedAt)
	return value, updatedAt, err
}

// UpdateThreshold rewrites the threshold in a single statement. The 24h
// rate limit lives in the tuner; this method just persists atomically.
func (s *Store) UpdateThreshold(value int, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE router_thresholds SET min_length_for_reasoning = ?, updated_at = ? WHERE id = 1`,
		value, now.UTC(),
	)
	return err
}

// UpsertPromptInsight folds a judge note into the per-route insight bucket,
// counting repeats.
func (s *Store) UpsertPromptInsight(route, pattern, insight string) error {
	_, err := s.db.Exec(
		`INSERT INTO prompt_insights (route, pattern, insight) VALUES (?, ?, ?)
		 ON CONFLICT(route, pattern) DO UPDATE SET
		   insight = excluded.insight,
		   hits = hits + 1,
		   updated_at = CURRENT_TIMESTAMP`,
		route, pattern, insight,
	)
	return err
}

// PromptInsightHits returns how often an insight bucket was reinforced.
func (s *Store) PromptInsightHits(route, pattern string) (int, error) {
	var hits int
	err := s.db.QueryRow(
		`SELECT hits FROM prompt_insights WHERE route = ? AND pattern = ?`,
		route, pattern,
	).Scan(&hits)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return hits, err
}

// OperatorDeviceIDs resolves the push targets registered for an operator.
func (s *Store) OperatorDeviceIDs(userID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT player_id FROM user_devices WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// RegisterDevice adds a push device for a user. Duplicate registrations are
// ignored.
func (s *Store) RegisterDevice(userID, playerID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO user_devices (user_id, player_id) VALUES (?, ?)`,
		userID, playerID,
	)
	return err
}

// RetrievalLog is one read-path query record, kept for recall debugging.
type RetrievalLog struct {
	UserID    string
	Query     string
	TopK      int
	ChunkIDs  []string
	ScoreMean float64
	Outcome   string
}

func (s *Store) InsertRetrievalLog(rl RetrievalLog) error {
	_, err := s.db.Exec(
		`INSERT INTO retrieval_logs (user_id, query, topk, chunk_ids, score_mean, outcome) VALUES (?, ?, ?, ?, ?, ?)`,
		rl.UserID, rl.Query, rl.TopK, strings.Join(rl.ChunkIDs, ","), rl.ScoreMean, rl.Outcome,
	)
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
