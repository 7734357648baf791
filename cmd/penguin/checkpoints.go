package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildCheckpointsCmd groups the checkpoint passthrough operations
// (list/create/rollback/branch) core.Core exposes over a session's
// checkpoint.Manager.
func buildCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect and rewind agent checkpoints",
	}
	cmd.AddCommand(
		buildCheckpointsListCmd(),
		buildCheckpointsCreateCmd(),
		buildCheckpointsRollbackCmd(),
		buildCheckpointsBranchCmd(),
	)
	return cmd
}

func buildCheckpointsListCmd() *cobra.Command {
	var agentID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints for an agent, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath, workspaceDir)
			if err != nil {
				return err
			}
			defer a.cleanup()

			summaries, err := a.core.ListCheckpoints(agentID, limit)
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Printf("%s\t%-8s\t%s\t%s\n", s.ID, s.Type, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id (default: the active agent)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum checkpoints to list (0 = all)")
	return cmd
}

func buildCheckpointsCreateCmd() *cobra.Command {
	var agentID, description string

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a manual checkpoint of an agent's current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath, workspaceDir)
			if err != nil {
				return err
			}
			defer a.cleanup()

			cp, err := a.core.CreateCheckpoint(agentID, args[0], description)
			if err != nil {
				return err
			}
			fmt.Println(cp.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id (default: the active agent)")
	cmd.Flags().StringVar(&description, "description", "", "optional checkpoint description")
	return cmd
}

func buildCheckpointsRollbackCmd() *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "rollback [checkpoint-id]",
		Short: "Restore an agent's session to a prior checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath, workspaceDir)
			if err != nil {
				return err
			}
			defer a.cleanup()

			return a.core.RollbackToCheckpoint(agentID, args[0])
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id (default: the active agent)")
	return cmd
}

func buildCheckpointsBranchCmd() *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "branch [checkpoint-id] [new-agent-id] [name]",
		Short: "Branch a new independent agent off a checkpoint",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath, workspaceDir)
			if err != nil {
				return err
			}
			defer a.cleanup()

			entry, err := a.core.BranchFromCheckpoint(agentID, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Println(entry.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "source agent id (default: the active agent)")
	return cmd
}
