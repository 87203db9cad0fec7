package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NewEpisode validates the request and inserts an episode in pending state.
// ErrPodcastNotFound is returned when the parent podcast does not exist.
func (s *Store) NewEpisode(ctx context.Context, req Request) (*Episode, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM podcasts WHERE id = ?`, req.PodcastID).Scan(&exists); err != nil {
			return fmt.Errorf("check podcast: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: id %d", ErrPodcastNotFound, req.PodcastID)
		}
		ts := timestamp()
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO episodes (
                podcast_id, topic, length, level, format, voice1, voice2, instruction,
                status, step, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
			req.PodcastID,
			req.Topic,
			req.Length,
			req.Level,
			req.Format,
			req.Voice1,
			nullIfEmpty(req.Voice2),
			nullIfEmpty(req.Instruction),
			StatusPending,
			ts,
			ts,
		)
		if err != nil {
			return fmt.Errorf("insert episode: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetEpisode(ctx, id)
}

// GetEpisode fetches an episode with its content and audio, if any.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, episodeSelect+` WHERE e.id = ?`, id)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return episode, nil
}

// ListEpisodes returns episodes matching the filter, newest first.
func (s *Store) ListEpisodes(ctx context.Context, filter ListFilter) ([]*Episode, error) {
	query := episodeSelect
	var (
		clauses []string
		args    []any
	)
	if filter.PodcastID > 0 {
		clauses = append(clauses, `e.podcast_id = ?`)
		args = append(args, filter.PodcastID)
	}
	if len(filter.Statuses) > 0 {
		marks, statusArgs := inClause(filter.Statuses)
		clauses = append(clauses, `e.status IN (`+marks+`)`)
		args = append(args, statusArgs...)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	query += ` ORDER BY e.created_at DESC, e.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

// DeleteEpisode removes an episode; content and audio rows cascade.
func (s *Store) DeleteEpisode(ctx context.Context, id int64) (bool, error) {
	removed, err := s.changed(ctx, `DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete episode: %w", err)
	}
	return removed, nil
}

const episodeSelect = `SELECT
    e.id, e.podcast_id, e.topic, e.length, e.level, e.format, e.voice1, e.voice2, e.instruction,
    e.status, e.step, e.run_ref, e.research_text, e.usage_tokens, e.failure_marker,
    e.created_at, e.updated_at, e.last_heartbeat,
    c.title, c.summary, c.transcript, c.created_at,
    a.object_key, a.duration_seconds, a.size_bytes, a.created_at
FROM episodes e
LEFT JOIN episode_content c ON c.episode_id = e.id
LEFT JOIN episode_audio a ON a.episode_id = e.id`

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		ep            Episode
		length        string
		level         string
		format        string
		voice2        sql.NullString
		instruction   sql.NullString
		status        string
		step          sql.NullString
		runRef        sql.NullString
		researchText  sql.NullString
		failureMarker sql.NullString
		createdRaw    string
		updatedRaw    string
		heartbeatRaw  sql.NullString

		contentTitle      sql.NullString
		contentSummary    sql.NullString
		contentTranscript sql.NullString
		contentCreated    sql.NullString

		audioKey      sql.NullString
		audioDuration sql.NullInt64
		audioSize     sql.NullInt64
		audioCreated  sql.NullString
	)

	if err := scanner.Scan(
		&ep.ID,
		&ep.Request.PodcastID,
		&ep.Request.Topic,
		&length,
		&level,
		&format,
		&ep.Request.Voice1,
		&voice2,
		&instruction,
		&status,
		&step,
		&runRef,
		&researchText,
		&ep.UsageTokens,
		&failureMarker,
		&createdRaw,
		&updatedRaw,
		&heartbeatRaw,
		&contentTitle,
		&contentSummary,
		&contentTranscript,
		&contentCreated,
		&audioKey,
		&audioDuration,
		&audioSize,
		&audioCreated,
	); err != nil {
		return nil, err
	}

	ep.Request.Length = Length(length)
	ep.Request.Level = Level(level)
	ep.Request.Format = Format(format)
	ep.Request.Voice2 = voice2.String
	ep.Request.Instruction = instruction.String
	ep.Status = Status(status)
	ep.Step = Step(step.String)
	ep.RunRef = runRef.String
	ep.ResearchText = researchText.String
	ep.FailureMarker = failureMarker.String
	ep.CreatedAt, _ = parseTimestamp(createdRaw)
	ep.UpdatedAt, _ = parseTimestamp(updatedRaw)
	ep.LastHeartbeat = parseNullTimestamp(heartbeatRaw)

	if contentTitle.Valid {
		ep.Content = &Content{
			EpisodeID:  ep.ID,
			Title:      contentTitle.String,
			Summary:    contentSummary.String,
			Transcript: contentTranscript.String,
		}
		if created := parseNullTimestamp(contentCreated); created != nil {
			ep.Content.CreatedAt = *created
		}
	}
	if audioKey.Valid {
		ep.Audio = &Audio{
			EpisodeID:       ep.ID,
			ObjectKey:       audioKey.String,
			DurationSeconds: int(audioDuration.Int64),
			SizeBytes:       audioSize.Int64,
		}
		if created := parseNullTimestamp(audioCreated); created != nil {
			ep.Audio.CreatedAt = *created
		}
	}
	return &ep, nil
}
