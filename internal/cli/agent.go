package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"archpilot/internal/agent"
	"archpilot/internal/render"

	"github.com/spf13/cobra"
)

type agentOptions struct {
	ArchName  string
	InputFile string
	Debug     bool
}

func newAgentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run ArchPilot planning agents",
	}

	cmd.AddCommand(newAgentStreamCmd(a))
	cmd.AddCommand(newAgentRunCmd(a))
	cmd.AddCommand(newAgentListCmd())
	return cmd
}

func newAgentStreamCmd(a *app) *cobra.Command {
	opts := &agentOptions{}
	cmd := &cobra.Command{
		Use:   "stream <endpoint> [mermaid...]",
		Short: "Stream step events from an agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentStream(cmd, a, opts, args)
		},
	}
	bindAgentFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "show agent reasoning (overrides agent.debug)")
	return cmd
}

func newAgentRunCmd(a *app) *cobra.Command {
	opts := &agentOptions{}
	cmd := &cobra.Command{
		Use:   "run <endpoint> [mermaid...]",
		Short: "Run an agent and print its final summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentRun(cmd, a, opts, args)
		},
	}
	bindAgentFlags(cmd, opts)
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agent endpoints",
		Annotations: map[string]string{
			skipConfigAnnotation: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPATH\tPOLICY")
			for _, name := range agent.EndpointNames() {
				ep, _ := agent.LookupEndpoint(name)
				fmt.Fprintf(w, "%s\t%s\t%s\n", ep.Name, ep.StreamPath(), ep.Policy.Name())
			}
			return w.Flush()
		},
	}
}

func bindAgentFlags(cmd *cobra.Command, opts *agentOptions) {
	cmd.Flags().StringVar(&opts.ArchName, "arch", "", "stored architecture to load the diagram from")
	cmd.Flags().StringVarP(&opts.InputFile, "file", "F", "", "mermaid diagram file, use -F- for stdin")
}

func runAgentStream(cmd *cobra.Command, a *app, opts *agentOptions, args []string) error {
	ep, err := agent.LookupEndpoint(args[0])
	if err != nil {
		return err
	}
	req, err := buildAgentRequest(cmd, opts, args[1:])
	if err != nil {
		return err
	}
	debug := a.cfg.Agent.Debug
	if cmd.Flags().Changed("debug") {
		debug = opts.Debug
	}
	client, err := a.newClient(debug)
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(cmd)
	defer cancel()

	renderer := render.New(cmd.OutOrStdout(), a.opts.NoColor)
	if err := client.Stream(ctx, ep, req, renderer.Event); err != nil {
		return fmt.Errorf("%s stream: %w", ep.Name, err)
	}
	return nil
}

func runAgentRun(cmd *cobra.Command, a *app, opts *agentOptions, args []string) error {
	ep, err := agent.LookupEndpoint(args[0])
	if err != nil {
		return err
	}
	req, err := buildAgentRequest(cmd, opts, args[1:])
	if err != nil {
		return err
	}
	client, err := a.newClient(false)
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(cmd)
	defer cancel()

	summary, err := client.Run(ctx, ep, req)
	if err != nil {
		return fmt.Errorf("%s: %w", ep.Name, err)
	}
	return render.New(cmd.OutOrStdout(), a.opts.NoColor).Summary(ep.Name, summary)
}

func buildAgentRequest(cmd *cobra.Command, opts *agentOptions, args []string) (agent.Request, error) {
	arch := strings.TrimSpace(opts.ArchName)
	if arch != "" {
		if len(args) > 0 || opts.InputFile != "" {
			return agent.Request{}, fmt.Errorf("--arch cannot be combined with a mermaid diagram")
		}
		return agent.Request{ArchName: arch}, nil
	}
	mermaid, err := readInput(args, opts.InputFile, cmd.InOrStdin())
	if err != nil {
		return agent.Request{}, err
	}
	if strings.TrimSpace(mermaid) == "" {
		return agent.Request{}, fmt.Errorf("mermaid diagram is empty")
	}
	return agent.Request{MermaidCode: mermaid}, nil
}
