package testsupport

import (
	"context"
	"testing"

	"episodegen/internal/config"
	"episodegen/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewPodcast creates a podcast for tests using the provided store.
func NewPodcast(t testing.TB, st *store.Store, title string) *store.Podcast {
	t.Helper()

	podcast, err := st.NewPodcast(context.Background(), title, "")
	if err != nil {
		t.Fatalf("store.NewPodcast: %v", err)
	}
	return podcast
}

// NewEpisode creates a pending episode attached to podcastID with a
// single-speaker story request.
func NewEpisode(t testing.TB, st *store.Store, podcastID int64, topic string) *store.Episode {
	t.Helper()

	episode, err := st.NewEpisode(context.Background(), store.Request{
		PodcastID: podcastID,
		Topic:     topic,
		Length:    store.LengthShort,
		Format:    store.FormatStory,
		Voice1:    "jake",
	})
	if err != nil {
		t.Fatalf("store.NewEpisode: %v", err)
	}
	return episode
}

// PCM returns frames of 16-bit mono silence.
func PCM(frames int) []byte {
	return make([]byte, frames*2)
}
