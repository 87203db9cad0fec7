package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"
)

const healthProbeTimeout = 2 * time.Second

var expectedTables = []string{"podcasts", "episodes", "episode_content", "episode_audio"}

// ActiveEpisodes lists active runs whose heartbeat is missing or older than
// cutoff. A zero cutoff lists every active run, which is what startup wants.
func (s *Store) ActiveEpisodes(ctx context.Context, cutoff time.Time) ([]*Episode, error) {
	var b strings.Builder
	b.WriteString(episodeSelect)
	b.WriteString(` WHERE e.status = ?`)
	args := []any{StatusActive}
	if !cutoff.IsZero() {
		b.WriteString(` AND (e.last_heartbeat IS NULL OR e.last_heartbeat < ?)`)
		args = append(args, cutoff.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString(` ORDER BY e.id`)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list active episodes: %w", err)
	}
	defer rows.Close()

	var out []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// Stats counts episodes per status. Statuses with no episodes are absent.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM episodes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count episodes by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CheckHealth inspects the database file and schema. The returned value is
// filled as far as the checks got, so callers can render it even on error.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	h := DatabaseHealth{DBPath: s.path}
	fail := func(err error) (DatabaseHealth, error) {
		h.Error = err.Error()
		return h, err
	}

	switch info, err := os.Stat(s.path); {
	case s.path == "":
		return fail(errors.New("database path is not set"))
	case errors.Is(err, fs.ErrNotExist):
		return h, nil
	case err != nil:
		return fail(fmt.Errorf("stat database: %w", err))
	case info.IsDir():
		return fail(fmt.Errorf("database path %s is a directory", s.path))
	}
	h.DatabaseExists = true
	if s.db == nil {
		return fail(errors.New("database is not open"))
	}

	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fail(fmt.Errorf("ping database: %w", err))
	}
	h.DatabaseReadable = true

	present, err := s.tableNames(ctx)
	if err != nil {
		return fail(err)
	}
	for _, table := range expectedTables {
		if !slices.Contains(present, table) {
			h.MissingTables = append(h.MissingTables, table)
		}
	}
	if len(h.MissingTables) == 0 {
		if h.SchemaVersion, err = s.userVersion(ctx); err != nil {
			return fail(err)
		}
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&h.TotalEpisodes); err != nil {
			return fail(fmt.Errorf("count episodes: %w", err))
		}
	}

	var verdict string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&verdict); err != nil {
		return fail(fmt.Errorf("integrity check: %w", err))
	}
	h.IntegrityCheck = strings.EqualFold(verdict, "ok")
	return h, nil
}

func (s *Store) tableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
