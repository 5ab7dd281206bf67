package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"archpilot/internal/agent"

	"github.com/spf13/cobra"
)

type graphQueryOptions struct {
	Direction string
	Depth     int
}

type graphScopeOptions struct {
	Domain     string
	Capability string
}

func newGraphCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Explore application dependencies",
	}

	cmd.AddCommand(newGraphQueryCmd(a))
	cmd.AddCommand(newGraphInterfacesCmd(a))
	cmd.AddCommand(newGraphCountsCmd(a))
	cmd.AddCommand(newGraphSearchCmd(a, "domains <prefix>", "List asset domains", (*agent.Client).Domains))
	cmd.AddCommand(newGraphSearchCmd(a, "capabilities <prefix>", "List asset capabilities", (*agent.Client).Capabilities))
	return cmd
}

func newGraphQueryCmd(a *app) *cobra.Command {
	opts := &graphQueryOptions{}
	cmd := &cobra.Command{
		Use:   "query <node-id>",
		Short: "List relationships reachable from an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := agent.ParseDirection(opts.Direction)
			if err != nil {
				return err
			}
			client, err := a.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			edges, err := client.QueryGraph(ctx, args[0], dir, opts.Depth)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FROM\tRELATION\tTO")
			for _, e := range edges {
				fmt.Fprintf(w, "%s\t%s\t%s\n", nodeLabel(e.From), e.Relation, nodeLabel(e.To))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&opts.Direction, "direction", "upstream", "upstream, downstream or both")
	cmd.Flags().IntVar(&opts.Depth, "depth", 1, "relationship hops to follow")
	return cmd
}

func newGraphInterfacesCmd(a *app) *cobra.Command {
	opts := &graphScopeOptions{}
	cmd := &cobra.Command{
		Use:   "interfaces <interface-type>",
		Short: "List integrations of one interface type within a domain and capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			links, err := client.NodesByInterface(ctx, opts.Domain, opts.Capability, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FROM\tTO\tTYPE\tPROTOCOL")
			for _, l := range links {
				fmt.Fprintf(w, "%s (%s)\t%s (%s)\t%s\t%s\n",
					l.FromNode, l.SourceName, l.ToNode, l.TargetName, l.InterfaceType, l.Protocol)
			}
			return w.Flush()
		},
	}
	bindScopeFlags(cmd, opts)
	return cmd
}

func newGraphCountsCmd(a *app) *cobra.Command {
	opts := &graphScopeOptions{}
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Count integrations per interface type within a domain and capability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			counts, err := client.InterfaceTypeCounts(ctx, opts.Domain, opts.Capability)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tCOUNT")
			for _, c := range counts {
				fmt.Fprintf(w, "%s\t%d\n", c.Type, c.Count)
			}
			return w.Flush()
		},
	}
	bindScopeFlags(cmd, opts)
	return cmd
}

type prefixLookup func(*agent.Client, context.Context, string) ([]string, error)

func newGraphSearchCmd(a *app, use, short string, lookup prefixLookup) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			values, err := lookup(client, ctx, args[0])
			if err != nil {
				return err
			}
			return printLines(cmd, values)
		},
	}
}

func bindScopeFlags(cmd *cobra.Command, opts *graphScopeOptions) {
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "asset domain")
	cmd.Flags().StringVar(&opts.Capability, "capability", "", "asset capability")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("capability")
}

func nodeLabel(n agent.GraphNode) string {
	if n.Name == "" || n.Name == n.ID {
		return n.ID
	}
	return n.ID + " (" + n.Name + ")"
}
