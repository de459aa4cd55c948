// commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// heroSummary is the part of the live state the CLI prints after a load
type heroSummary struct {
	LoadInfo
	Player any `json:"player"`
	Area   any `json:"area"`
	Meta   any `json:"meta"`
}

func printHero(cmd *cobra.Command, app *App) error {
	info, err := app.LastLoad()
	if err != nil {
		return err
	}
	blob, err := app.CurrentState()
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), heroSummary{
		LoadInfo: info,
		Player:   blob["player"],
		Area:     blob["area"],
		Meta:     blob["meta"],
	})
}

func newNewCmd(flags *globalFlags) *cobra.Command {
	var classID string

	cmd := &cobra.Command{
		Use:   "new <hero-name>",
		Short: "Start a fresh hero and write it as the autosave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.NewGame(args[0], classID); err != nil {
				return err
			}
			return printHero(cmd, app)
		},
	}
	cmd.Flags().StringVar(&classID, "class", "warrior", "class id")
	return cmd
}

func newLoadCmd(flags *globalFlags) *cobra.Command {
	var (
		slot     string
		recovery bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run the loader against the autosave or a slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if slot != "" {
				err = app.LoadGameFromSlot(slot)
			} else {
				err = app.LoadGame(recovery)
			}
			if err != nil {
				return err
			}
			return printHero(cmd, app)
		},
	}
	cmd.Flags().StringVar(&slot, "slot", "", "load a manual slot instead of the autosave")
	cmd.Flags().BoolVar(&recovery, "recovery", false, "mark this as a recovery attempt")
	return cmd
}

func newSaveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Load the autosave and write it back through the save pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.LoadGame(false); err != nil {
				return err
			}
			if err := app.SaveGame(true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "saved")
			return nil
		},
	}
}

func newSlotsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage manual save slots",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List manual slots and the autosave, most recently played first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := app.GetAllSavesWithAuto()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}

	var label string
	save := &cobra.Command{
		Use:   "save [id]",
		Short: "Copy the autosave into a slot (a new slot when id is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.LoadGame(false); err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			entry, err := app.SaveGameToSlot(id, label)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
	save.Flags().StringVar(&label, "label", "", "slot label (default hero name and level)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a manual slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.DeleteSaveSlot(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, save, del)
	return cmd
}

func newAuditCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Load the autosave and print an integrity report",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.LoadGame(false); err != nil {
				return err
			}
			report, err := app.AuditState()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newKeysCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List stored keys with their sizes and digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			keys, err := app.ListStoredKeys()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), keys)
		},
	}
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored save and slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			app, cleanup, err := openApp(context.Background(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.ResetStore(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every save")
	return cmd
}

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	var patch string

	cmd := &cobra.Command{
		Use:   "migrate <file>",
		Short: "Print a save file upgraded to the current schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			blob, err := MigrateSaveData(string(data), patch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), blob)
		},
	}
	cmd.Flags().StringVar(&patch, "patch", "cli", "patch label stamped on migrated saves")
	return cmd
}

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	var patch string

	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a save file's checksum and whether it migrates cleanly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			report, err := VerifySave(string(data), patch)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			switch {
			case !report.Checksum.OK:
				return fmt.Errorf("checksum invalid: %s", report.Checksum.Reason)
			case report.Corrupt != "":
				return fmt.Errorf("save corrupt: %s", report.Corrupt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&patch, "patch", "cli", "patch label used for the trial migration")
	return cmd
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write persistence settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}

	write := &cobra.Command{
		Use:   "init",
		Short: "Write the resolved settings to persistence.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.WriteSettings(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfg.SettingsPath)
			return nil
		},
	}

	cmd.AddCommand(show, write)
	return cmd
}
