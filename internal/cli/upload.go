package cli

import (
	"fmt"
	"os"

	"archpilot/internal/agent"
	"archpilot/internal/render"

	"github.com/spf13/cobra"
)

type uploadOptions struct {
	Name       string
	AssetID    string
	Confluence string
}

func newUploadCmd(a *app) *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload <image> | --confluence URL",
		Short: "Upload an architecture diagram for analysis",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Confluence != "" {
				if len(args) > 0 {
					return fmt.Errorf("--confluence cannot be combined with an image")
				}
				return runConfluenceImport(cmd, a, opts)
			}
			if len(args) == 0 {
				return fmt.Errorf("missing image: provide a file or --confluence")
			}
			return runUpload(cmd, a, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "diagram name to store the analysis under")
	cmd.Flags().StringVar(&opts.AssetID, "asset", "", "asset id the diagram belongs to")
	cmd.Flags().StringVar(&opts.Confluence, "confluence", "", "confluence page describing the architecture")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runConfluenceImport(cmd *cobra.Command, a *app, opts *uploadOptions) error {
	client, err := a.newClient(false)
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(cmd)
	defer cancel()

	diagram, err := client.ImportConfluence(ctx, opts.Name, opts.AssetID, opts.Confluence)
	if err != nil {
		return fmt.Errorf("import %s: %w", opts.Confluence, err)
	}
	return render.New(cmd.OutOrStdout(), a.opts.NoColor).Diagram(diagram)
}

func runUpload(cmd *cobra.Command, a *app, opts *uploadOptions, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	client, err := a.newClient(false)
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(cmd)
	defer cancel()

	diagram, err := client.Upload(ctx, agent.UploadRequest{
		DiagramName: opts.Name,
		AssetID:     opts.AssetID,
		FileName:    path,
		Image:       f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return render.New(cmd.OutOrStdout(), a.opts.NoColor).Diagram(diagram)
}
