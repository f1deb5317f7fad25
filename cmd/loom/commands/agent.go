package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect available agent types",
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the agent types configured for this project",
	RunE:  runAgentList,
}

func init() {
	agentCmd.AddCommand(agentListCmd)
}

func runAgentList(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tBUILT-IN\tDESCRIPTION")
	for _, ag := range a.agents.List() {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", ag.Name, ag.Mode, ag.BuiltIn, ag.Description)
	}
	return w.Flush()
}
