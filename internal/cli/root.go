package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"archpilot/internal/agent"
	"archpilot/internal/config"
	"archpilot/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const skipConfigAnnotation = "archpilot/skip-config"

type Options struct {
	Config  string
	NoColor bool
}

// app is the state shared by every subcommand once configuration has been
// resolved in the root's pre-run hook.
type app struct {
	opts   *Options
	v      *viper.Viper
	cfg    config.Config
	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{
		opts:   &Options{},
		v:      viper.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	root := &cobra.Command{
		Use:           "archpilot",
		Short:         "archpilot - client for the ArchPilot agent backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.Config, "config", "", "config file (default: ./archpilot.yaml)")
	flags.String("agent-url", "", "agent backend base url")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.opts.NoColor, "no-color", false, "disable colored output")
	_ = a.v.BindPFlag("agent.url", flags.Lookup("agent-url"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(newVersionCmd())
	root.AddCommand(newAgentCmd(a))
	root.AddCommand(newChatCmd(a))
	root.AddCommand(newDecodeCmd(a))
	root.AddCommand(newUploadCmd(a))
	root.AddCommand(newArchCmd(a))
	root.AddCommand(newGraphCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	config.SetDefaults(a.v)
	if err := initConfig(a.v, a.opts.Config); err != nil {
		return err
	}
	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), cfg.Log)
	return nil
}

func initConfig(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("archpilot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/archpilot")
	}

	v.SetEnvPrefix("ARCHPILOT")
	v.SetEnvKeyReplacer(config.EnvKeyReplacer())
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// requestContext bounds a backend call by agent.timeout. Expiry aborts the
// transport, which the stream decoder reports as a transport failure.
func (a *app) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.Agent.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Agent.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *app) newClient(debug bool) (*agent.Client, error) {
	return agent.NewClient(agent.Config{
		BaseURL: a.cfg.Agent.URL,
		Debug:   debug,
		Logger:  a.logger,
	})
}
