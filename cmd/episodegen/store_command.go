package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"episodegen/internal/api"
	"episodegen/internal/episodeaccess"
)

func newStoreCommand(ctx *commandContext) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Episode database utilities",
	}
	storeCmd.AddCommand(newStoreHealthCommand(ctx), newStoreStatsCommand(ctx))
	return storeCmd
}

func newStoreHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the episode database schema and integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access episodeaccess.Access) error {
				resp, err := access.DatabaseHealth(cmd.Context())
				if err != nil && resp.Error == "" {
					resp.Error = err.Error()
				}
				if resp.Error == "" && !resp.Healthy() {
					resp.Error = "database is degraded"
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				for _, line := range healthReport(resp) {
					fmt.Fprintf(out, "%s: %s\n", line[0], line[1])
				}
				return nil
			})
		},
	}
}

func newStoreStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show episode counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access episodeaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				rows := statsRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No episodes")
					return nil
				}
				printTable(cmd.OutOrStdout(), []column{{title: "Status"}, {title: "Count", numeric: true}}, rows)
				return nil
			})
		},
	}
}

// healthReport lists the health fields as label/value pairs in display order.
func healthReport(resp api.DatabaseHealth) [][2]string {
	missing := "none"
	if len(resp.MissingTables) > 0 {
		missing = strings.Join(resp.MissingTables, ", ")
	}
	lines := [][2]string{
		{"Database path", resp.DBPath},
		{"Database exists", yesNo(resp.DatabaseExists)},
		{"Readable", yesNo(resp.DatabaseReadable)},
		{"Schema version", strconv.Itoa(resp.SchemaVersion)},
		{"Missing tables", missing},
		{"Integrity check", yesNo(resp.IntegrityCheck)},
		{"Total episodes", strconv.Itoa(resp.TotalEpisodes)},
	}
	if resp.Error != "" {
		lines = append(lines, [2]string{"Error", resp.Error})
	}
	return lines
}
