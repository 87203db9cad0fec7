package audio

import (
	"context"
	"fmt"

	"episodegen/internal/services"
)

// Putter writes an object to blob storage, replacing any existing object.
type Putter interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// ObjectKey is the storage key for an episode's audio.
func ObjectKey(podcastID, episodeID int64) string {
	return fmt.Sprintf("%d/%d.mp3", podcastID, episodeID)
}

// Upload stores encoded audio under key. Empty buffers are refused so nothing
// is ever written for a failed encode.
func Upload(ctx context.Context, blob Putter, bucket, key string, encoded Encoded) error {
	if len(encoded.Data) == 0 {
		return services.Wrap(services.ErrEmptyAudio, "audio", "upload", "refusing to store empty audio", nil)
	}
	contentType := encoded.ContentType
	if contentType == "" {
		contentType = ContentType
	}
	if err := blob.Put(ctx, bucket, key, encoded.Data, contentType); err != nil {
		return services.Wrap(services.ErrExternalService, "audio", "upload", key, err)
	}
	return nil
}
