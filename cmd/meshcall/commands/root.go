package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/meshcall/internal/config"
)

var (
	debug bool
	cfg   *config.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:           "meshcall",
		Short:         "Peer-mesh call signaling node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize zerolog global logger early so config.Load can use it.
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}

			c, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg = c
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.String(config.FlagConfigEnv, "", "config environment, selects config/config.<env>.yaml")
	pf.String(config.FlagIdentity, "", "local identity (default random)")
	pf.String(config.FlagRelay, "", "websocket relay URL (default in-process relay)")
	pf.Int(config.FlagPort, 8080, "HTTP control port")
	pf.BoolVar(&debug, "debug", false, "debug logging")

	root.AddCommand(serveCmd())
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("meshcall failed")
		return err
	}
	return nil
}
