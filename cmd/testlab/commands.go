package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"testlab/internal/db"
	"testlab/internal/ingest"
	"testlab/internal/live"
	"testlab/internal/report"
	"testlab/internal/server"
	"testlab/internal/testlab"
)

func parseDifficultyFlag(raw string) (testlab.Difficulty, error) {
	if raw == "" {
		return "", nil
	}
	return testlab.ParseDifficulty(raw)
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	reportCmd := &cobra.Command{Use: "report", Short: "Print win-rate and timing reports"}

	var difficulty string

	groupsCmd := &cobra.Command{
		Use:   "groups",
		Short: "Test groups against race-build opponents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := parseDifficultyFlag(difficulty)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			matches, err := a.store.ListMatches(cmd.Context(), testlab.ReportFilter(d))
			if err != nil {
				return err
			}
			return report.WriteGroups(cmd.OutOrStdout(), report.GroupPivot(matches, d))
		},
	}
	groupsCmd.Flags().StringVar(&difficulty, "difficulty", "", "only this opponent difficulty")

	mapsCmd := &cobra.Command{
		Use:   "maps",
		Short: "Maps against race-difficulty-build opponents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := parseDifficultyFlag(difficulty)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			matches, err := a.store.ListMatches(cmd.Context(), testlab.ReportFilter(d))
			if err != nil {
				return err
			}
			return report.WriteMaps(cmd.OutOrStdout(), report.MapBreakdown(matches, d))
		},
	}
	mapsCmd.Flags().StringVar(&difficulty, "difficulty", "", "only this opponent difficulty")

	buildingsCmd := &cobra.Command{
		Use:   "buildings",
		Short: "Building timings per test group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.store.ListBuildingEvents(cmd.Context())
			if err != nil {
				return err
			}
			return report.WriteBuildings(cmd.OutOrStdout(), report.BuildingTiming(events))
		},
	}

	reportCmd.AddCommand(groupsCmd, mapsCmd, buildingsCmd)
	return reportCmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import JSONL exports (.jsonl or .jsonl.gz) from the bot runner",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			im := ingest.NewImporter(a.store, a.log)
			var total ingest.Stats
			for _, path := range args {
				stats, err := im.ImportFile(cmd.Context(), path)
				total.Add(stats)
				if err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d results, %d events (%d duplicates, %d malformed)\n",
				total.Results, total.Events, total.Duplicates, total.Malformed)
			return nil
		},
	}
}

func newNextGroupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next-group",
		Short: "Print the id the next test group should use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			next, err := a.store.NextTestGroupID(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), next)
			return nil
		},
	}
}

func newPendingCmd(opts *rootOptions) *cobra.Command {
	var race, build, difficulty string
	var group int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Queue a match and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.store.CreatePendingMatch(cmd.Context(), db.PendingMatch{
				TestGroupID: group,
				Race:        testlab.Race(race),
				Build:       testlab.Build(build),
				Difficulty:  testlab.Difficulty(difficulty),
			})
			if err != nil {
				return err
			}
			a.log.Debug("Queued match", zap.Int64("match_id", id), zap.Int("test_group_id", group))
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&race, "race", "", "opponent race: Protoss|Terran|Zerg|Random")
	cmd.Flags().StringVar(&build, "build", "", "opponent build: Air|Macro|Power|Rush|Timing|RandomBuild")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "opponent difficulty (default CheatInsane)")
	cmd.Flags().IntVar(&group, "group", testlab.SingleRunGroup, "test group id; -1 is a single run")
	_ = cmd.MarkFlagRequired("race")
	_ = cmd.MarkFlagRequired("build")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.FromConfig(a.cfg, a.store, a.log)
			ctx := server.SetupSignalHandler(a.log, nil)
			return srv.ListenAndServe(ctx, a.cfg.Addr())
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live update events from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if serverURL == "" {
				addr := a.cfg.Addr()
				if strings.HasPrefix(addr, ":") {
					addr = "localhost" + addr
				}
				serverURL = "http://" + addr
			}
			wsURL, err := live.WebSocketURL(serverURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			client := live.NewClient(func(ev live.Event) {
				if ev.TestGroupID != nil {
					_, _ = fmt.Fprintf(out, "%s group=%d\n", ev.Type, *ev.TestGroupID)
					return
				}
				_, _ = fmt.Fprintln(out, ev.Type)
			})
			if err := client.Connect(wsURL); err != nil {
				return err
			}
			defer client.Disconnect()

			ctx := server.SetupSignalHandler(a.log, nil)
			select {
			case <-ctx.Done():
			case <-client.Done():
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "server closed the connection")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "dashboard server base URL (default from config port)")
	return cmd
}
