package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"episodegen/internal/logging"
	"episodegen/internal/services"
	"episodegen/internal/store"
)

// AudioURL returns a presigned URL for streaming the episode's audio.
func (c *Controller) AudioURL(ctx context.Context, id int64) (string, error) {
	return c.presign(ctx, id, c.audioURLTTL)
}

// DownloadURL returns a short-lived presigned URL for downloading the audio.
func (c *Controller) DownloadURL(ctx context.Context, id int64) (string, error) {
	return c.presign(ctx, id, c.downloadURLTTL)
}

func (c *Controller) presign(ctx context.Context, id int64, ttl time.Duration) (string, error) {
	ep, err := c.store.GetEpisode(ctx, id)
	if err != nil {
		return "", err
	}
	if ep == nil {
		return "", services.Wrap(services.ErrNotFound, "", "audio", fmt.Sprintf("episode %d not found", id), nil)
	}
	if ep.Audio == nil || ep.Audio.ObjectKey == "" {
		return "", services.Wrap(services.ErrNotFound, "", "audio", fmt.Sprintf("episode %d has no audio", id), nil)
	}
	if _, err := c.blob.Stat(ctx, c.bucket, ep.Audio.ObjectKey); err != nil {
		return "", err
	}
	return c.blob.PresignedGet(ctx, c.bucket, ep.Audio.ObjectKey, ttl)
}

// Delete removes an episode. A live run is cancelled first, then the stored
// audio is removed (a missing object is fine), then the row with its content.
func (c *Controller) Delete(ctx context.Context, id int64) (bool, error) {
	ep, err := c.store.GetEpisode(ctx, id)
	if err != nil {
		return false, err
	}
	if ep == nil {
		return false, nil
	}
	if err := c.release(ctx, ep); err != nil {
		return false, err
	}
	removed, err := c.store.DeleteEpisode(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		logging.WithContext(services.WithEpisodeID(ctx, id), c.logger).Info("episode deleted",
			logging.String(logging.FieldEventType, "episode_deleted"),
		)
	}
	return removed, nil
}

// DeletePodcast removes a podcast after releasing every episode it owns.
func (c *Controller) DeletePodcast(ctx context.Context, podcastID int64) (bool, error) {
	podcast, err := c.store.GetPodcast(ctx, podcastID)
	if err != nil {
		return false, err
	}
	if podcast == nil {
		return false, nil
	}
	episodes, err := c.store.ListEpisodes(ctx, store.ListFilter{PodcastID: podcastID})
	if err != nil {
		return false, err
	}
	for _, ep := range episodes {
		if err := c.release(ctx, ep); err != nil {
			return false, err
		}
	}
	removed, err := c.store.DeletePodcast(ctx, podcastID)
	if err != nil {
		return false, err
	}
	if removed {
		c.logger.Info("podcast deleted",
			logging.String(logging.FieldEventType, "podcast_deleted"),
			logging.Int64(logging.FieldPodcastID, podcastID),
			logging.Int("episodes", len(episodes)),
		)
	}
	return removed, nil
}

func (c *Controller) release(ctx context.Context, ep *store.Episode) error {
	if !ep.Status.IsTerminal() {
		if err := c.Cancel(ctx, ep.ID); err != nil && !errors.Is(err, services.ErrNotFound) {
			return fmt.Errorf("cancel episode %d: %w", ep.ID, err)
		}
	}
	if ep.Audio == nil || ep.Audio.ObjectKey == "" {
		return nil
	}
	if err := c.blob.Delete(ctx, c.bucket, ep.Audio.ObjectKey); err != nil && !errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("delete audio for episode %d: %w", ep.ID, err)
	}
	return nil
}
