package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/churchtools-client/internal/memberfields"
	"github.com/Sternrassler/churchtools-client/internal/songexport"
)

func newSyncMembersCmd(a *app) *cobra.Command {
	var (
		mappingPath string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "sync-members",
		Short: "Copy member field values from a source group into target groups",
		Long: `Copies the member fields of the source group into every target group
for members whose target membership is commented "Auto Insert".
Synced memberships are re-commented "Updated over API".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mapping, err := memberfields.LoadMapping(mappingPath)
			if err != nil {
				return err
			}

			c, rdb, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll(c, rdb)

			syncer := memberfields.NewSyncer(c, mapping, a.logger)
			syncer.DryRun = dryRun

			report, err := syncer.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "groups: %d, updated: %d, planned: %d, missing: %d, failed: %d\n",
				report.Groups, report.Updated, report.Planned, report.Missing, len(report.Failures))
			return report.Err()
		},
	}

	cmd.Flags().StringVar(&mappingPath, "mapping", "", "member field mapping file (yaml or json)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log planned updates without sending them")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

func newExportSongsCmd(a *app) *cobra.Command {
	var (
		categoryID int
		dir        string
	)

	cmd := &cobra.Command{
		Use:   "export-songs",
		Short: "Download the first file of every song in a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, rdb, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll(c, rdb)

			report, err := songexport.NewExporter(c, categoryID, dir, a.logger).Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "songs: %d, downloaded: %d, skipped: %d, failed: %d\n",
				report.Songs, report.Downloaded, report.Skipped, len(report.Failures))
			if n := len(report.Failures); n > 0 {
				return fmt.Errorf("%d downloads failed", n)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&categoryID, "category", 1, "song category id")
	cmd.Flags().StringVar(&dir, "dir", "songs", "output directory")
	return cmd
}
