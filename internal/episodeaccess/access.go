// Package episodeaccess gives CLI read paths one interface over either the
// daemon API or the episode database.
package episodeaccess

import (
	"context"

	"episodegen/internal/api"
	"episodegen/internal/ipc"
	"episodegen/internal/store"
)

// Access provides episode reads regardless of daemon or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	Podcasts(ctx context.Context) ([]api.Podcast, error)
	Episodes(ctx context.Context, podcastID int64, statuses []string) ([]api.Episode, error)
	Episode(ctx context.Context, id int64) (*api.Episode, error)
	DatabaseHealth(ctx context.Context) (api.DatabaseHealth, error)
	// Remote reports whether reads go through a running daemon.
	Remote() bool
}

// NewDaemonAccess returns an Access backed by the daemon API.
func NewDaemonAccess(client *ipc.Client) Access {
	return &daemonAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(st *store.Store) Access {
	return &storeAccess{store: st}
}

type daemonAccess struct {
	client *ipc.Client
}

func (a *daemonAccess) Stats(ctx context.Context) (map[string]int, error) {
	resp, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return resp.EpisodeStats, nil
}

func (a *daemonAccess) Podcasts(ctx context.Context) ([]api.Podcast, error) {
	return a.client.Podcasts(ctx)
}

func (a *daemonAccess) Episodes(ctx context.Context, podcastID int64, statuses []string) ([]api.Episode, error) {
	return a.client.Episodes(ctx, podcastID, statuses)
}

func (a *daemonAccess) Episode(ctx context.Context, id int64) (*api.Episode, error) {
	return a.client.Episode(ctx, id)
}

func (a *daemonAccess) DatabaseHealth(ctx context.Context) (api.DatabaseHealth, error) {
	resp, err := a.client.DatabaseHealth(ctx)
	if err != nil {
		return api.DatabaseHealth{}, err
	}
	return *resp, nil
}

func (a *daemonAccess) Remote() bool { return true }

type storeAccess struct {
	store *store.Store
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return api.FromStats(stats), nil
}

func (a *storeAccess) Podcasts(ctx context.Context) ([]api.Podcast, error) {
	podcasts, err := a.store.ListPodcasts(ctx)
	if err != nil {
		return nil, err
	}
	return api.FromPodcasts(podcasts), nil
}

func (a *storeAccess) Episodes(ctx context.Context, podcastID int64, statuses []string) ([]api.Episode, error) {
	filter, err := api.ParseStatusFilter(statuses)
	if err != nil {
		return nil, err
	}
	episodes, err := a.store.ListEpisodes(ctx, store.ListFilter{PodcastID: podcastID, Statuses: filter})
	if err != nil {
		return nil, err
	}
	return api.FromEpisodes(episodes), nil
}

func (a *storeAccess) Episode(ctx context.Context, id int64) (*api.Episode, error) {
	ep, err := a.store.GetEpisode(ctx, id)
	if err != nil || ep == nil {
		return nil, err
	}
	dto := api.FromEpisode(ep)
	return &dto, nil
}

func (a *storeAccess) DatabaseHealth(ctx context.Context) (api.DatabaseHealth, error) {
	health, err := a.store.CheckHealth(ctx)
	return api.FromDatabaseHealth(health), err
}

func (a *storeAccess) Remote() bool { return false }
