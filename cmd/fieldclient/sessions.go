package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, inspect and move inventory sessions through their lifecycle",
	}

	var req models.CreateSessionRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Open a new session in draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.client.CreateSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), session)
		},
	}
	create.Flags().StringVar(&req.Code, "code", "", "Session code, e.g. SES-001")
	create.Flags().StringVar(&req.Name, "name", "", "Session name")
	create.Flags().StringVar(&req.Description, "description", "", "Free text description")
	_ = create.MarkFlagRequired("code")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := a.client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sessions)
		},
	}

	show := &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, origin, err := a.client.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cachedNotice(cmd.ErrOrStderr(), origin)
			return printJSON(cmd.OutOrStdout(), session)
		},
	}

	cmd.AddCommand(create, list, show)
	for _, op := range []models.SessionOp{models.OpStart, models.OpPause, models.OpComplete, models.OpCancel} {
		cmd.AddCommand(newTransitionCmd(a, op))
	}
	return cmd
}

func newTransitionCmd(a *app, op models.SessionOp) *cobra.Command {
	return &cobra.Command{
		Use:   string(op) + " SESSION_ID",
		Short: fmt.Sprintf("Apply %q to a session", op),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.client.Transition(cmd.Context(), args[0], op)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), session)
		},
	}
}

func newExpectedCmd(a *app) *cobra.Command {
	var (
		filter   models.ExpectedAssetFilter
		verified string
	)
	cmd := &cobra.Command{
		Use:   "expected SESSION_ID",
		Short: "List the expected assets of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verified != "" {
				v, err := strconv.ParseBool(verified)
				if err != nil {
					return fmt.Errorf("--verified: %w", err)
				}
				filter.Verified = &v
			}
			page, origin, err := a.client.ListExpected(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			cachedNotice(cmd.ErrOrStderr(), origin)
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().IntVar(&filter.Skip, "skip", 0, "Number of assets to skip")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Page size")
	cmd.Flags().StringVar(&verified, "verified", "", "Filter on verification (true|false)")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Search asset code or description")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats SESSION_ID",
		Short: "Show the completion statistics of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, origin, err := a.client.Statistics(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cachedNotice(cmd.ErrOrStderr(), origin)
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
