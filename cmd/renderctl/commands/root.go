// Package commands implements renderctl, the operator CLI for credit grants,
// job inspection, stale-job recovery and the Drive consent flow.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"clipforge/internal/app"
	"clipforge/internal/config"
	"clipforge/internal/pkg/logger"
)

// flag names
const (
	flagDatabaseURL = "database-url"
	flagVerbose     = "verbose"
)

// env is the state shared by every subcommand of one invocation.
type env struct {
	cfg config.Config
	log *logger.Logger
}

// NewRootCmd builds a fresh command tree. Each call is independent, so tests
// can execute several trees in one process.
func NewRootCmd() *cobra.Command {
	e := &env{}
	var (
		databaseURL string
		verbose     bool
	)

	root := &cobra.Command{
		Use:           "renderctl",
		Short:         "renderctl - operator tooling for clipforge",
		Long:          `renderctl manages credit balances, inspects and recovers render jobs, and runs the Google Drive consent flow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e.cfg = config.LoadUnchecked()
			if cmd.Flags().Changed(flagDatabaseURL) {
				e.cfg.DatabaseURL = databaseURL
			}

			level := "error"
			if verbose {
				level = "debug"
			}
			e.log = logger.New(logger.Config{
				Level:       level,
				Format:      "text",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "renderctl",
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&databaseURL, flagDatabaseURL, "", "Database URL, postgres://... or sqlite:path (env: DATABASE_URL)")
	root.PersistentFlags().BoolVarP(&verbose, flagVerbose, "v", false, "Log debug output to stderr")

	root.AddCommand(newCreditsCmd(e))
	root.AddCommand(newJobsCmd(e))
	root.AddCommand(newGDriveAuthCmd(e))
	return root
}

// openStores connects only the database.
func (e *env) openStores(ctx context.Context) (*app.Stores, error) {
	if e.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required (--%s or DATABASE_URL)", flagDatabaseURL)
	}
	return app.OpenStores(ctx, e.cfg, e.log)
}

// printJSON pretty prints v to w.
func printJSON(w io.Writer, v any) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(prettyJSON))
	return err
}

