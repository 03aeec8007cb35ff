package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Shows extraction service health and its container",
		RunE:  runStatusCommand,
	}
}

func runStatusCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	lc := appInstance.Lifecycle()

	fmt.Fprintf(out, "health: %s\n", appInstance.Prober().Probe(ctx))
	fmt.Fprintf(out, "unit: %s\n", lc.Discover(ctx))

	units, err := lc.List(ctx)
	if err != nil {
		fmt.Fprintf(out, "containers: unavailable (%v)\n", err)
		return nil
	}
	if len(units) == 0 {
		fmt.Fprintln(out, "containers: none of the candidates exist")
		return nil
	}
	for _, u := range units {
		fmt.Fprintf(out, "container %s: %s\n", u.Name, u.Status)
	}
	return nil
}
