package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"episodegen/internal/api"
	"episodegen/internal/episodeaccess"
	"episodegen/internal/ipc"
	"episodegen/internal/store"
)

func newPodcastCommand(ctx *commandContext) *cobra.Command {
	podcastCmd := &cobra.Command{
		Use:     "podcast",
		Aliases: []string{"podcasts"},
		Short:   "Manage podcasts",
	}

	podcastCmd.AddCommand(newPodcastCreateCommand(ctx))
	podcastCmd.AddCommand(newPodcastListCommand(ctx))
	podcastCmd.AddCommand(newPodcastDeleteCommand(ctx))

	return podcastCmd
}

func newPodcastCreateCommand(ctx *commandContext) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a podcast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(args[0])
			if title == "" {
				return fmt.Errorf("title is required")
			}
			podcast, err := createPodcast(cmd, ctx, title, strings.TrimSpace(description))
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, podcast)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Podcast %d created: %s\n", podcast.ID, podcast.Title)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Podcast description")
	return cmd
}

// createPodcast needs no pipeline, so it writes the store directly when the
// daemon is down.
func createPodcast(cmd *cobra.Command, ctx *commandContext, title, description string) (api.Podcast, error) {
	if client, err := ctx.dialClient(); err == nil {
		defer client.Close()
		podcast, err := client.CreatePodcast(cmd.Context(), title, description)
		if err != nil {
			return api.Podcast{}, err
		}
		return *podcast, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return api.Podcast{}, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return api.Podcast{}, err
	}
	defer st.Close()
	podcast, err := st.NewPodcast(cmd.Context(), title, description)
	if err != nil {
		return api.Podcast{}, err
	}
	return api.FromPodcast(podcast), nil
}

func newPodcastListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List podcasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access episodeaccess.Access) error {
				podcasts, err := access.Podcasts(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.PodcastListResponse{Podcasts: podcasts})
				}
				if len(podcasts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No podcasts")
					return nil
				}
				rows := make([][]string, 0, len(podcasts))
				for _, p := range podcasts {
					rows = append(rows, []string{strconv.FormatInt(p.ID, 10), p.Title, truncate(p.Description, 40), p.CreatedAt})
				}
				printTable(cmd.OutOrStdout(), []column{
					{title: "ID", numeric: true},
					{title: "Title"},
					{title: "Description"},
					{title: "Created"},
				}, rows)
				return nil
			})
		},
	}
}

func newPodcastDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a podcast, its episodes, and their audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				removed, err := client.DeletePodcast(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("podcast %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Podcast %d deleted\n", id)
				return nil
			})
		},
	}
}
