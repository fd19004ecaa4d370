package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/pkg/errors"
)

func newCreditsCmd(e *env) *cobra.Command {
	creditsCmd := &cobra.Command{
		Use:   "credits",
		Short: "Manage owner credit balances",
	}

	grantCmd := &cobra.Command{
		Use:   "grant <owner-id> <amount>",
		Short: "Add credits to an owner",
		Long:  `Add credits to an owner's balance, creating the account if it does not exist.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID := strings.TrimSpace(args[0])
			if ownerID == "" {
				return fmt.Errorf("owner id cannot be empty")
			}
			n, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || n <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}

			ctx := cmd.Context()
			stores, err := e.openStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			balance, err := stores.Credits.Grant(ctx, ownerID, n)
			if err != nil {
				return fmt.Errorf("error granting credits: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"owner_id": ownerID,
				"granted":  n,
				"balance":  balance,
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <owner-id>",
		Short: "Show an owner's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stores, err := e.openStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			balance, err := stores.Credits.Balance(ctx, args[0])
			if err != nil && !errors.IsNotFound(err) {
				return fmt.Errorf("error reading balance: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"owner_id": args[0],
				"balance":  balance,
			})
		},
	}

	creditsCmd.AddCommand(grantCmd, showCmd)
	return creditsCmd
}
