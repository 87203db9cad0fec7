package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"episodegen/internal/api"
	"episodegen/internal/daemonrun"
	"episodegen/internal/logging"
	"episodegen/internal/store"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var req api.EpisodeRequest
	var podcastTitle string
	var timeout time.Duration
	var logLevel string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one episode in this process and wait for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := cfg.Logging.Level
			if strings.TrimSpace(logLevel) != "" {
				level = logLevel
			}
			logger, err := logging.New(logging.Options{
				Level:  level,
				Format: cfg.Logging.Format,
				Writer: cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := daemonrun.Assemble(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close(30 * time.Second)

			if req.PodcastID == 0 {
				podcast, err := ensurePodcast(runCtx, rt.Store, podcastTitle)
				if err != nil {
					return err
				}
				req.PodcastID = podcast.ID
			}

			handle, err := rt.Pipeline.Start(runCtx, req.ToRequest())
			if err != nil {
				return err
			}
			if !ctx.JSONMode() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Generating episode %d (run %s)\n", handle.EpisodeID, handle.RunRef)
			}

			waitCtx := runCtx
			if timeout > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(runCtx, timeout)
				defer cancel()
			}
			ep, err := rt.Pipeline.Wait(waitCtx, handle.EpisodeID, 500*time.Millisecond)
			if err != nil {
				// Interrupted or out of time: stop the run before exiting.
				cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
				defer cancel()
				if cancelErr := rt.Pipeline.Cancel(cancelCtx, handle.EpisodeID); cancelErr != nil {
					logger.Warn("cancel after interrupt failed", logging.Error(cancelErr))
				}
				return fmt.Errorf("episode %d did not finish: %w", handle.EpisodeID, err)
			}

			dto := api.FromEpisode(ep)
			if ctx.JSONMode() {
				if err := writeJSON(cmd, api.EpisodeResponse{Episode: dto}); err != nil {
					return err
				}
			} else {
				printEpisodeDetail(cmd.OutOrStdout(), dto, false)
			}
			if ep.Status != store.StatusCompleted {
				return fmt.Errorf("episode %d %s", ep.ID, episodeState(dto))
			}
			if !ctx.JSONMode() {
				if url, err := rt.Pipeline.AudioURL(runCtx, ep.ID); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Audio URL: %s\n", url)
				}
			}
			return nil
		},
	}

	bindRequestFlags(cmd, &req)
	cmd.Flags().StringVar(&podcastTitle, "podcast-title", "Episodes", "Podcast to file the episode under when --podcast is not set (created if missing)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up and cancel after this long (0 waits indefinitely)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func ensurePodcast(ctx context.Context, st *store.Store, title string) (*store.Podcast, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("either --podcast or --podcast-title is required")
	}
	podcasts, err := st.ListPodcasts(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range podcasts {
		if strings.EqualFold(p.Title, title) {
			return p, nil
		}
	}
	return st.NewPodcast(ctx, title, "")
}
