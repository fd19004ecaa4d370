package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/app"
	"clipforge/internal/config"
	"clipforge/internal/models"
)

func newJobsCmd(e *env) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and recover render jobs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := models.JobFilter{Status: models.JobStatus(status), Limit: limit}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}

			ctx := cmd.Context()
			stores, err := e.openStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			jobs, err := stores.Jobs.ListByOwner(ctx, owner, filter)
			if err != nil {
				return fmt.Errorf("error listing jobs: %w", err)
			}
			if jobs == nil {
				jobs = []models.Job{}
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		},
	}
	listCmd.Flags().StringP("owner", "o", "", "Owner whose jobs to list")
	listCmd.Flags().StringP("status", "s", "", "Only jobs in this status")
	listCmd.Flags().IntP("limit", "n", models.DefaultJobListLimit, "Maximum number of jobs")
	_ = listCmd.MarkFlagRequired("owner")

	getCmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stores, err := e.openStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			job, err := stores.Jobs.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("error fetching job: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}

	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Re-enqueue unfinished jobs that stopped making progress",
		Long: `Re-enqueue every queued, submitted or polling job whose record has not
changed for --older-than. Workers resume each job from its stored status.
Pick --older-than well above the poll interval so live jobs are left alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg := e.cfg
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if cfg.QueueBackend != config.QueueRedis {
				return fmt.Errorf("recover needs QUEUE_BACKEND=redis; the API re-enqueues on start with the memory queue")
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, e.log)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.RecoverStale(ctx, olderThan, limit)
			if err != nil {
				return fmt.Errorf("error recovering jobs: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"recovered":  n,
				"older_than": olderThan.String(),
			})
		},
	}
	recoverCmd.Flags().Duration("older-than", 10*time.Minute, "Minimum time since the job was last updated")
	recoverCmd.Flags().Int("limit", 500, "Maximum number of jobs to re-enqueue")

	jobsCmd.AddCommand(listCmd, getCmd, recoverCmd)
	return jobsCmd
}
