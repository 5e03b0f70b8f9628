package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/codeteam/internal/sandbox"
)

// buildSandboxCmd creates the "sandbox" command group for launching,
// destroying, and shelling into a session's Docker container without going
// through the HTTP API.
func buildSandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Manage per-session sandbox containers",
	}
	cmd.AddCommand(buildSandboxLaunchCmd(), buildSandboxDestroyCmd(), buildSandboxExecCmd())
	return cmd
}

func buildSandboxLaunchCmd() *cobra.Command {
	var (
		configPath string
		owner      string
	)
	cmd := &cobra.Command{
		Use:   "launch [session-id]",
		Short: "Ensure a sandbox container exists for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			inst, err := app.Sandbox.EnsureSessionContainer(cmd.Context(), args[0], owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Container:  %s\n", inst.ContainerName)
			fmt.Fprintf(out, "Workspace:  %s\n", inst.WorkspacePath)
			for containerPort, hostPort := range inst.PortMap {
				fmt.Fprintf(out, "Port:       %d -> %d\n", containerPort, hostPort)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "assistant.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&owner, "owner", "anonymous", "Owner ID for the sandbox")
	return cmd
}

func buildSandboxDestroyCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "destroy [session-id]",
		Short: "Stop and remove a session's sandbox container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Sandbox.DestroySessionContainer(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Destroyed sandbox for session %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "assistant.yaml", "Path to YAML configuration file")
	return cmd
}

func buildSandboxExecCmd() *cobra.Command {
	var (
		configPath string
		owner      string
		cwd        string
	)
	cmd := &cobra.Command{
		Use:   "exec [session-id] [command]",
		Short: "Run a shell command inside a session's sandbox container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Commands.RunCommand(cmd.Context(), args[0], owner, cwd, args[1], sandbox.DefaultCommandTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, result.Stdout)
			if result.Stderr != "" {
				fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
			}
			if result.TimedOut {
				return fmt.Errorf("command timed out")
			}
			if result.ExitCode != 0 {
				return fmt.Errorf("command exited with status %d", result.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "assistant.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&owner, "owner", "anonymous", "Owner ID for the sandbox")
	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory inside the sandbox (relative to /workspace)")
	return cmd
}
