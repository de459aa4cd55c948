// main.go
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/alsub25/Pocket-RPG-sub006/internal/config"
)

const Version = "0.1.0"

// globalFlags are shared by every subcommand
type globalFlags struct {
	home   string
	events bool
	quiet  bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "pocketsave",
		Short:         "Pocket RPG save tool",
		Long:          "pocketsave inspects, migrates and manages Pocket RPG saves in the configured store.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(cmd.ErrOrStderr())
			if flags.quiet {
				log.SetOutput(io.Discard)
			}
		},
	}
	rootCmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.home, "home", "", "data directory (default $POCKETRPG_HOME or ~/.pocketrpg)")
	pf.BoolVar(&flags.events, "events", false, "log every persistence event")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "suppress log output")

	rootCmd.AddCommand(
		newNewCmd(flags),
		newLoadCmd(flags),
		newSaveCmd(flags),
		newSlotsCmd(flags),
		newAuditCmd(flags),
		newKeysCmd(flags),
		newResetCmd(flags),
		newMigrateCmd(flags),
		newVerifyCmd(flags),
		newConfigCmd(flags),
	)
	return rootCmd
}

// loadConfig resolves the config, honoring --home
func (f *globalFlags) loadConfig() (*config.Config, error) {
	if f.home != "" {
		return config.LoadFrom(f.home)
	}
	return config.Load()
}

// openApp starts an App against the configured store. The cleanup func
// shuts it down.
func openApp(ctx context.Context, f *globalFlags) (*App, func(), error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	app := NewApp()
	if err := app.StartupWithConfig(ctx, cfg); err != nil {
		return nil, nil, err
	}
	if f.events {
		app.SetEventHubBroadcaster(&logBroadcaster{logger: log.Default()})
	}
	return app, func() { app.Shutdown(ctx) }, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
