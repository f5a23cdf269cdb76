// Package store provides SQLite persistence for activities, clusters and
// personas.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database; each call gets its own.
func Open(path string) (*SQLiteStore, error) {
	connStr := path
	if path == ":memory:" {
		connStr = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		tool TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT,
		source_url TEXT,
		ts INTEGER NOT NULL,
		refs TEXT NOT NULL DEFAULT '[]',
		raw TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_activities_ts ON activities(ts);

	CREATE TABLE IF NOT EXISTS clusters (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cluster_members (
		cluster_id TEXT NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
		activity_id TEXT NOT NULL,
		PRIMARY KEY (cluster_id, activity_id)
	);

	CREATE TABLE IF NOT EXISTS personas (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveActivities upserts activities and returns how many were written.
func (s *SQLiteStore) SaveActivities(ctx context.Context, activities []model.Activity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(activities) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activities (id, tool, title, body, source_url, ts, refs, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tool = excluded.tool,
			title = excluded.title,
			body = excluded.body,
			source_url = excluded.source_url,
			ts = excluded.ts,
			refs = excluded.refs,
			raw = excluded.raw
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, a := range activities {
		refs, err := json.Marshal(orEmpty(a.References))
		if err != nil {
			return 0, err
		}
		var raw sql.NullString
		if len(a.Raw) > 0 {
			raw = sql.NullString{String: string(a.Raw), Valid: true}
		}
		var body sql.NullString
		if a.Body != nil {
			body = sql.NullString{String: *a.Body, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, a.ID, string(a.Tool), a.Title, body, a.SourceURL,
			a.Timestamp.UTC().UnixMilli(), string(refs), raw); err != nil {
			return 0, fmt.Errorf("save activity %s: %w", a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(activities), nil
}

// Lookup returns the activities that exist among ids. Unknown ids are
// skipped.
func (s *SQLiteStore) Lookup(ctx context.Context, ids []string) ([]model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryActivities(ctx, `
		SELECT id, tool, title, body, source_url, ts, refs, raw
		FROM activities
		WHERE id IN (`+placeholders+`)
		ORDER BY ts, id
	`, args...)
}

// ListActivities returns activities at or after since, oldest first. A
// zero since returns everything.
func (s *SQLiteStore) ListActivities(ctx context.Context, since time.Time) ([]model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var from int64
	if !since.IsZero() {
		from = since.UTC().UnixMilli()
	} else {
		from = -1 << 62
	}
	return s.queryActivities(ctx, `
		SELECT id, tool, title, body, source_url, ts, refs, raw
		FROM activities
		WHERE ts >= ?
		ORDER BY ts, id
	`, from)
}

func (s *SQLiteStore) queryActivities(ctx context.Context, query string, args ...any) ([]model.Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a         model.Activity
			tool      string
			body, raw sql.NullString
			sourceURL sql.NullString
			ts        int64
			refs      string
		)
		if err := rows.Scan(&a.ID, &tool, &a.Title, &body, &sourceURL, &ts, &refs, &raw); err != nil {
			return nil, err
		}
		a.Tool = model.ToolType(tool)
		a.SourceURL = sourceURL.String
		a.Timestamp = time.UnixMilli(ts).UTC()
		if body.Valid {
			b := body.String
			a.Body = &b
		}
		if raw.Valid {
			a.Raw = json.RawMessage(raw.String)
		}
		if err := json.Unmarshal([]byte(refs), &a.References); err != nil {
			return nil, fmt.Errorf("decode refs of %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveClusters replaces the stored cluster set with clusters.
func (s *SQLiteStore) SaveClusters(ctx context.Context, clusters []model.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_members; DELETE FROM clusters;`); err != nil {
		return fmt.Errorf("clear clusters: %w", err)
	}
	now := time.Now().UTC().UnixMilli()
	for _, c := range clusters {
		doc, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO clusters (id, doc, created_at) VALUES (?, ?, ?)`, c.ID, string(doc), now); err != nil {
			return fmt.Errorf("save cluster %s: %w", c.ID, err)
		}
		for _, id := range c.ActivityIDs {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cluster_members (cluster_id, activity_id) VALUES (?, ?)`, c.ID, id); err != nil {
				return fmt.Errorf("save member %s of %s: %w", id, c.ID, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetCluster(ctx context.Context, id string) (model.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c model.Cluster
	if err := s.getDoc(ctx, `SELECT doc FROM clusters WHERE id = ?`, id, &c); err != nil {
		return model.Cluster{}, fmt.Errorf("cluster %s: %w", id, err)
	}
	return c, nil
}

// ListClusters returns stored clusters, largest first.
func (s *SQLiteStore) ListClusters(ctx context.Context) ([]model.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.doc FROM clusters c
		LEFT JOIN cluster_members m ON m.cluster_id = c.id
		GROUP BY c.id
		ORDER BY count(m.activity_id) DESC, c.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Cluster
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var c model.Cluster
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SavePersona(ctx context.Context, p model.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (id, display_name, doc) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, doc = excluded.doc
	`, p.ID, p.DisplayName, string(doc))
	if err != nil {
		return fmt.Errorf("save persona %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPersona(ctx context.Context, id string) (model.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p model.Persona
	if err := s.getDoc(ctx, `SELECT doc FROM personas WHERE id = ?`, id, &p); err != nil {
		return model.Persona{}, fmt.Errorf("persona %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) getDoc(ctx context.Context, query, id string, v any) error {
	var doc string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(doc), v)
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
