package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"episodegen/internal/api"
	"episodegen/internal/episodeaccess"
	"episodegen/internal/ipc"
)

func newEpisodeCommand(ctx *commandContext) *cobra.Command {
	episodeCmd := &cobra.Command{
		Use:     "episode",
		Aliases: []string{"episodes"},
		Short:   "Inspect and manage episodes",
	}

	episodeCmd.AddCommand(newEpisodeListCommand(ctx))
	episodeCmd.AddCommand(newEpisodeShowCommand(ctx))
	episodeCmd.AddCommand(newEpisodeCreateCommand(ctx))
	episodeCmd.AddCommand(newEpisodeCancelCommand(ctx))
	episodeCmd.AddCommand(newEpisodeResumeCommand(ctx))
	episodeCmd.AddCommand(newEpisodeDeleteCommand(ctx))
	episodeCmd.AddCommand(newEpisodeURLCommand(ctx))

	return episodeCmd
}

func newEpisodeListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var podcastID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List episodes (filter with --status ongoing|completed|failed|cancelled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access episodeaccess.Access) error {
				episodes, err := access.Episodes(cmd.Context(), podcastID, statuses)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.EpisodeListResponse{Episodes: episodes})
				}
				if len(episodes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No episodes")
					return nil
				}
				printTable(cmd.OutOrStdout(), []column{
					{title: "ID", numeric: true},
					{title: "Podcast", numeric: true},
					{title: "Title"},
					{title: "Status"},
					{title: "Created"},
				}, episodeListRows(episodes))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Status filter (repeatable or comma separated)")
	cmd.Flags().Int64Var(&podcastID, "podcast", 0, "Only list episodes of this podcast")
	return cmd
}

func newEpisodeShowCommand(ctx *commandContext) *cobra.Command {
	var transcript bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withAccess(func(access episodeaccess.Access) error {
				ep, err := access.Episode(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ep == nil {
					return fmt.Errorf("episode %d not found", id)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.EpisodeResponse{Episode: *ep})
				}
				printEpisodeDetail(cmd.OutOrStdout(), *ep, transcript)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&transcript, "transcript", false, "Print the transcript")
	return cmd
}

func newEpisodeCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.EpisodeRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit an episode to the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				handle, err := client.CreateEpisode(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, handle)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %d submitted (run %s)\n", handle.EpisodeID, handle.RunRef)
				return nil
			})
		},
	}

	bindRequestFlags(cmd, &req)
	return cmd
}

func newEpisodeCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				ep, err := client.CancelEpisode(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.EpisodeResponse{Episode: *ep})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %d is %s\n", ep.ID, episodeState(*ep))
				return nil
			})
		},
	}
}

func newEpisodeResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Relaunch a live episode from its current step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				handle, err := client.ResumeEpisode(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, handle)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %d resumed (run %s)\n", handle.EpisodeID, handle.RunRef)
				return nil
			})
		},
	}
}

func newEpisodeDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an episode and its audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				removed, err := client.DeleteEpisode(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("episode %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %d deleted\n", id)
				return nil
			})
		},
	}
}

func newEpisodeURLCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "url <id>",
		Short: "Print a time-limited audio URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AudioURL(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.URL)
				return nil
			})
		},
	}
}

func bindRequestFlags(cmd *cobra.Command, req *api.EpisodeRequest) {
	flags := cmd.Flags()
	flags.Int64Var(&req.PodcastID, "podcast", 0, "Podcast id")
	flags.StringVarP(&req.Topic, "topic", "t", "", "Episode topic")
	flags.StringVar(&req.Length, "length", "", "short or long")
	flags.StringVar(&req.Level, "level", "", "beginner, intermediate, or advanced")
	flags.StringVar(&req.Format, "format", "", "interview, conversation, story, or analysis")
	flags.StringVar(&req.Voice1, "voice1", "maya", "First host persona")
	flags.StringVar(&req.Voice2, "voice2", "", "Second host persona (two-speaker formats)")
	flags.StringVar(&req.Instruction, "instruction", "", "Extra guidance for the script")
	_ = cmd.MarkFlagRequired("topic")
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}
