package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rancherdx/pawfect-livechat/internal/console"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

func newSessionsCmd() *cobra.Command {
	var status string
	var page int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List chat sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.StatusFilter(status)
			if _, ok := filter.Statuses(); !ok {
				return fmt.Errorf("unknown status %q", status)
			}
			p, err := apiClient().ListSessions(cmd.Context(), domain.SessionQuery{
				Status: filter,
				Page:   page,
				Limit:  opts.pageSize,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderSessions(filter, p.Data, p.Pagination, ""))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(domain.FilterPending), "pending, active, closed, archived or all")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

type sessionAction func(c *console.APIClient, ctx context.Context, sessionID string) (*domain.ChatSession, error)

func newActionCmd(use, short string, action sessionAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := action(apiClient(), cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", session.ID, statusLabel(session.Status))
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a conversation and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, err := apiClient().GetHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderLog(args[0], messages, opts.adminID, 0))
			return nil
		},
	}
}
