package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Every transition below is a conditional UPDATE guarded on the live
// statuses, so a run that reached completed, failed, or cancelled never
// moves again. The boolean result reports whether the row actually changed.

// Activate moves a pending episode to active/research and records the
// executor's run reference.
func (s *Store) Activate(ctx context.Context, id int64, runRef string) (bool, error) {
	ts := timestamp()
	ok, err := s.changed(
		ctx,
		`UPDATE episodes
         SET status = ?, step = ?, run_ref = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusActive,
		StepResearch,
		nullIfEmpty(runRef),
		ts,
		ts,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("activate episode: %w", err)
	}
	return ok, nil
}

// AttachRunRef replaces the run reference of an active episode, used when a
// run is resubmitted after a restart.
func (s *Store) AttachRunRef(ctx context.Context, id int64, runRef string) (bool, error) {
	ts := timestamp()
	ok, err := s.changed(
		ctx,
		`UPDATE episodes SET run_ref = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		nullIfEmpty(runRef),
		ts,
		ts,
		id,
		StatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("attach run ref: %w", err)
	}
	return ok, nil
}

// Advance commits the side effect of the completed step and moves the run to
// the following step in one transaction. Nothing is written when the run is no
// longer active at step from. The final step is committed with Complete.
func (s *Store) Advance(ctx context.Context, id int64, from Step, effects Effects) (bool, error) {
	to := from.Next()
	if to == StepNone {
		return false, fmt.Errorf("advance from %q: no following step, use Complete", from)
	}
	if err := effects.Check(from); err != nil {
		return false, err
	}

	var advanced bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ts := timestamp()
		res, err := tx.ExecContext(
			ctx,
			`UPDATE episodes
             SET step = ?, research_text = COALESCE(?, research_text),
                 usage_tokens = usage_tokens + ?, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ? AND step = ?`,
			to,
			nullIfEmpty(effects.ResearchText),
			effects.UsageTokens,
			ts,
			ts,
			id,
			StatusActive,
			from,
		)
		if err != nil {
			return fmt.Errorf("advance step: %w", err)
		}
		if advanced, err = rowsChanged(res); err != nil || !advanced {
			return err
		}
		if effects.Content != nil {
			return insertContent(ctx, tx, id, effects.Content, ts)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return advanced, nil
}

// Complete commits the voice step's audio and marks the run completed with no
// step, in one transaction.
func (s *Store) Complete(ctx context.Context, id int64, effects Effects) (bool, error) {
	if err := effects.Check(StepVoice); err != nil {
		return false, err
	}
	if effects.Audio == nil {
		return false, fmt.Errorf("complete episode %d: audio is required", id)
	}

	var completed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ts := timestamp()
		res, err := tx.ExecContext(
			ctx,
			`UPDATE episodes
             SET status = ?, step = NULL, usage_tokens = usage_tokens + ?,
                 last_heartbeat = NULL, updated_at = ?
             WHERE id = ? AND status = ? AND step = ?`,
			StatusCompleted,
			effects.UsageTokens,
			ts,
			id,
			StatusActive,
			StepVoice,
		)
		if err != nil {
			return fmt.Errorf("complete episode: %w", err)
		}
		if completed, err = rowsChanged(res); err != nil || !completed {
			return err
		}
		return insertAudio(ctx, tx, id, effects.Audio, ts)
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}

// Fail marks a live run failed with a short marker. Terminal runs are left
// untouched.
func (s *Store) Fail(ctx context.Context, id int64, marker string) (bool, error) {
	ok, err := s.terminate(ctx, id, StatusFailed, marker)
	if err != nil {
		return false, fmt.Errorf("fail episode: %w", err)
	}
	return ok, nil
}

// Cancel marks a live run cancelled. Terminal runs are left untouched.
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	ok, err := s.terminate(ctx, id, StatusCancelled, "")
	if err != nil {
		return false, fmt.Errorf("cancel episode: %w", err)
	}
	return ok, nil
}

func (s *Store) terminate(ctx context.Context, id int64, status Status, marker string) (bool, error) {
	marks, live := inClause(liveStatuses)
	args := append([]any{status, nullIfEmpty(marker), timestamp(), id}, live...)
	return s.changed(
		ctx,
		`UPDATE episodes
         SET status = ?, step = NULL, failure_marker = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status IN (`+marks+`)`,
		args...,
	)
}

// UpdateHeartbeat refreshes the heartbeat of an active run.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.exec(
		ctx,
		`UPDATE episodes SET last_heartbeat = ? WHERE id = ? AND status = ?`,
		ts,
		id,
		StatusActive,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

func insertContent(ctx context.Context, tx *sql.Tx, id int64, content *Content, ts string) error {
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO episode_content (episode_id, title, summary, transcript, created_at) VALUES (?, ?, ?, ?, ?)`,
		id,
		content.Title,
		content.Summary,
		content.Transcript,
		ts,
	); err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

func insertAudio(ctx context.Context, tx *sql.Tx, id int64, audio *Audio, ts string) error {
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO episode_audio (episode_id, object_key, duration_seconds, size_bytes, created_at) VALUES (?, ?, ?, ?, ?)`,
		id,
		audio.ObjectKey,
		audio.DurationSeconds,
		audio.SizeBytes,
		ts,
	); err != nil {
		return fmt.Errorf("insert audio: %w", err)
	}
	return nil
}

func rowsChanged(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
