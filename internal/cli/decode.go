package cli

import (
	"fmt"

	"archpilot/internal/render"
	"archpilot/internal/sse"

	"github.com/spf13/cobra"
)

type decodeOptions struct {
	InputFile string
	Policy    string
	Debug     bool
}

func newDecodeCmd(a *app) *cobra.Command {
	opts := &decodeOptions{}
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a captured agent event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, a, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.InputFile, "file", "F", "-", "captured stream file, - for stdin")
	cmd.Flags().StringVar(&opts.Policy, "policy", "multi", "decode policy: multi or single")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "show agent reasoning")
	return cmd
}

func runDecode(cmd *cobra.Command, a *app, opts *decodeOptions) error {
	policy, err := sse.PolicyFor(opts.Policy)
	if err != nil {
		return err
	}
	in, err := openStream(opts.InputFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer in.Close()

	dropped := 0
	decoder := sse.NewDecoder(
		sse.WithPolicy(policy),
		sse.WithDebug(opts.Debug),
		sse.WithLogger(a.logger),
		sse.WithErrorObserver(func(frame string, err error) {
			dropped++
			a.logger.Warn("dropping undecodable frame", "error", err, "frame_bytes", len(frame))
		}),
	)
	renderer := render.New(cmd.OutOrStdout(), a.opts.NoColor)
	if err := decoder.Decode(in, renderer.Event); err != nil {
		return err
	}
	if dropped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d undecodable frame(s) dropped\n", dropped)
	}
	return nil
}
