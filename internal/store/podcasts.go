package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// NewPodcast inserts a podcast that episodes can be attached to.
func (s *Store) NewPodcast(ctx context.Context, title, description string) (*Podcast, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("podcast title is required")
	}
	ts := timestamp()
	res, err := s.exec(
		ctx,
		`INSERT INTO podcasts (title, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		title,
		nullIfEmpty(strings.TrimSpace(description)),
		ts,
		ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert podcast: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetPodcast(ctx, id)
}

// GetPodcast fetches a podcast by identifier.
func (s *Store) GetPodcast(ctx context.Context, id int64) (*Podcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+podcastColumns+` FROM podcasts WHERE id = ?`, id)
	podcast, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get podcast: %w", err)
	}
	return podcast, nil
}

// ListPodcasts returns all podcasts ordered by creation time.
func (s *Store) ListPodcasts(ctx context.Context) ([]*Podcast, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+podcastColumns+` FROM podcasts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	defer rows.Close()

	var podcasts []*Podcast
	for rows.Next() {
		podcast, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		podcasts = append(podcasts, podcast)
	}
	return podcasts, rows.Err()
}

// DeletePodcast removes a podcast and, through cascade, its episodes and artifacts.
func (s *Store) DeletePodcast(ctx context.Context, id int64) (bool, error) {
	removed, err := s.changed(ctx, `DELETE FROM podcasts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete podcast: %w", err)
	}
	return removed, nil
}

const podcastColumns = "id, title, description, created_at, updated_at"

func scanPodcast(scanner interface{ Scan(dest ...any) error }) (*Podcast, error) {
	var (
		podcast     Podcast
		description sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&podcast.ID, &podcast.Title, &description, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	podcast.Description = description.String
	podcast.CreatedAt, _ = parseTimestamp(createdRaw)
	podcast.UpdatedAt, _ = parseTimestamp(updatedRaw)
	return &podcast, nil
}
