package cli

import (
	"fmt"

	"archpilot/internal/render"

	"github.com/spf13/cobra"
)

type chatOptions struct {
	Session   string
	Reset     bool
	InputFile string
}

func newChatCmd(a *app) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [question...]",
		Short: "Ask the architecture assistant a question",
		Long: "Ask the architecture assistant a question. Conversation memory is kept by the\n" +
			"backend per session; pass --session (or set chat.session) to continue one, or omit it to start a\n" +
			"new one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, a, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.Session, "session", "", "existing chat session id (overrides chat.session)")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "clear the memory of --session and exit")
	cmd.Flags().StringVarP(&opts.InputFile, "file", "F", "", "question file, use -F- for stdin")
	return cmd
}

func runChat(cmd *cobra.Command, a *app, opts *chatOptions, args []string) error {
	client, err := a.newClient(false)
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(cmd)
	defer cancel()

	session := firstNonEmpty(opts.Session, a.cfg.Chat.Session)
	if opts.Reset {
		if session == "" {
			return fmt.Errorf("--reset requires --session or chat.session")
		}
		if err := client.ResetSession(ctx, session); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "session %s cleared\n", session)
		return err
	}

	question, err := readInput(args, opts.InputFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if session == "" {
		session, err = client.GenerateSession(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", session)
	}

	answer, err := client.Chat(ctx, session, question)
	if err != nil {
		return err
	}
	return render.New(cmd.OutOrStdout(), a.opts.NoColor).Summary("answer", answer)
}
