package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lmsbridge/internal/codec"
	"lmsbridge/internal/config"
	"lmsbridge/internal/repository"
)

func (c *cli) reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse archived completion reports",
	}

	var (
		success string
		since   time.Duration
		root    string
		limit   int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := repository.ReportFilter{Root: root, Limit: limit}
			if success != "" {
				b, err := strconv.ParseBool(success)
				if err != nil {
					return fmt.Errorf("invalid --success %q", success)
				}
				filter.Success = &b
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			repo, err := c.openArchive()
			if err != nil {
				return err
			}
			defer repo.Close()

			reports, err := repo.ListReports(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return c.print(cmd, reports)
		},
	}
	list.Flags().StringVar(&success, "success", "", "Only reports that succeeded (true) or failed (false)")
	list.Flags().DurationVar(&since, "since", 0, "Only reports started within this long")
	list.Flags().StringVar(&root, "root", "", "Only reports for this launch location")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports")

	var operations bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := c.openArchive()
			if err != nil {
				return err
			}
			defer repo.Close()

			if operations {
				ops, err := repo.ListOperations(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(cmd, ops)
			}
			report, err := repo.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, report)
		},
	}
	show.Flags().BoolVar(&operations, "operations", false, "Print only the writes the report made")

	var before time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete reports older than --older-than (default: database.retention)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age := before
			if age <= 0 {
				age = c.cfg.Database.Retention.Duration()
			}
			if age <= 0 {
				return fmt.Errorf("no age given and database.retention is not set")
			}

			repo, err := c.openArchive()
			if err != nil {
				return err
			}
			defer repo.Close()

			n, err := repo.DeleteReportsBefore(cmd.Context(), time.Now().Add(-age))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d reports\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&before, "older-than", 0, "Age threshold")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Archive a report printed by `complete -o json`",
		Long: `Reads a JSON completion report, for example one produced on another
machine with --archive=false, and stores it in the local archive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			report, err := codec.NewJSONCodec().ParseReport(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if report.ID == "" || report.StartedAt.IsZero() {
				return errors.New("not a completion report: id and started_at are required")
			}

			repo, err := c.openArchive()
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.SaveReport(cmd.Context(), report); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", report.ID)
			return nil
		},
	}

	cmd.AddCommand(list, show, prune, importCmd)
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), c.cfg.Summary())
			return nil
		},
	}

	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "Destination (default: user config directory)")

	cmd.AddCommand(show, initCmd)
	return cmd
}
