package cli

import (
	"fmt"
	"text/tabwriter"

	"archpilot/internal/render"

	"github.com/spf13/cobra"
)

func newArchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arch",
		Short: "Look up stored architectures and assets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "names <prefix>",
		Short: "List stored architecture names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			names, err := client.ArchNames(ctx, args[0])
			if err != nil {
				return err
			}
			return printLines(cmd, names)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <prefix>",
		Short: "Search assets by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			assets, err := client.SearchAssets(ctx, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDOMAIN\tCAPABILITY")
			for _, asset := range assets {
				fmt.Fprintf(w, "%s\t%s\t%s\n", asset.ID, asset.Domain, asset.Capability)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "code <name>",
		Short: "Show a stored architecture and its analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			diagram, err := client.ArchCode(ctx, args[0])
			if err != nil {
				return err
			}
			return render.New(cmd.OutOrStdout(), a.opts.NoColor).Diagram(diagram)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info <asset-id>",
		Short: "Show the diagram an asset was uploaded with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			diagram, err := client.DiagramInfo(ctx, args[0])
			if err != nil {
				return err
			}
			return render.New(cmd.OutOrStdout(), a.opts.NoColor).Diagram(diagram)
		},
	})
	return cmd
}

func printLines(cmd *cobra.Command, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return err
		}
	}
	return nil
}
