package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/codeteam/internal/appserver"
)

// buildSessionsCmd creates the "sessions" command group. Each subcommand
// builds the full dependency graph and talks to the session store directly,
// bypassing HTTP, so it works even with the server stopped.
func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage chat sessions",
	}
	cmd.AddCommand(buildSessionsListCmd(), buildSessionsShowCmd(), buildSessionsDeleteCmd())
	return cmd
}

func openApp(configPath string) (*appserver.App, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	provider, err := appserver.BuildDefaultProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build LLM provider: %w", err)
	}
	return appserver.Build(cfg, provider)
}

func buildSessionsListCmd() *cobra.Command {
	var (
		configPath string
		owner      string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.Sessions.List(cmd.Context(), owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Title, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "assistant.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&owner, "owner", "anonymous", "Owner ID to list sessions for")
	return cmd
}

func buildSessionsShowCmd() *cobra.Command {
	var (
		configPath string
		owner      string
	)
	cmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show a session's message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			msgs, err := app.Sessions.ListMessages(cmd.Context(), args[0], owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s (%s): %s\n", m.Timestamp.Format("15:04:05"), m.Sender, m.Role, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "assistant.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&owner, "owner", "anonymous", "Owner ID the session belongs to")
	return cmd
}

func buildSessionsDeleteCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete a session, its messages, and its sandbox container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			sessionID := args[0]
			if err := app.Sessions.Delete(cmd.Context(), sessionID); err != nil {
				return err
			}
			_ = app.Sandbox.DestroySessionContainer(cmd.Context(), sessionID)
			_ = app.State.ClearSessionState(sessionID)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", sessionID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "assistant.yaml", "Path to YAML configuration file")
	return cmd
}
