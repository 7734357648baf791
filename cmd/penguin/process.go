package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/penguin-run/penguin/pkg/core"
	"github.com/spf13/cobra"
)

// buildProcessCmd runs exactly one bounded turn on an agent: one model
// call, its tool dispatch, done. Maps to core.Core.Process.
func buildProcessCmd() *cobra.Command {
	var agentID string
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "process [input...]",
		Short: "Run one bounded turn on an agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath, workspaceDir)
			if err != nil {
				return err
			}
			defer a.cleanup()

			result, err := a.core.Process(context.Background(), strings.Join(args, " "), core.ProcessOptions{
				AgentID:       agentID,
				MaxIterations: maxIterations,
			})
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id (default: the active agent)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 1, "maximum read/propose/apply iterations for this turn")
	return cmd
}

// buildRunCmd starts an open-ended task run on an agent: it iterates until
// a completion sentinel, a clarification request, or the iteration ceiling
// is hit. Maps to core.Core.StartRunMode.
func buildRunCmd() *cobra.Command {
	var agentID string
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run an agent to completion on an open-ended task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath, workspaceDir)
			if err != nil {
				return err
			}
			defer a.cleanup()

			result, err := a.core.StartRunMode(context.Background(), strings.Join(args, " "), core.RunOptions{
				AgentID:       agentID,
				MaxIterations: maxIterations,
			})
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id (default: the active agent)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "maximum iterations (0 = engine default)")
	return cmd
}

func printResult(result core.ProcessResult) {
	fmt.Println(result.AssistantResponse)
	if len(result.ActionResults) > 0 {
		fmt.Printf("\n(%d tool call(s), %d iteration(s))\n", len(result.ActionResults), result.Iterations)
	}
}
