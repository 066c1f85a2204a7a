package main

import (
	"encoding/json"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/Astemirdum/library-circulation/library/app"
	"github.com/Astemirdum/library-circulation/library/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "librarian",
		Short:        "Maintenance commands for the library circulation service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errors.Wrap(err, "load .env")
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	loadConfig := func() config.Config {
		var ops []config.Option
		if verbose {
			ops = append(ops, config.WithLogLevel(zapcore.DebugLevel))
		}
		return config.NewConfig(ops...)
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Migrate(cmd.Context(), loadConfig()); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Cancel abandoned requests and expire lapsed reservation holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.Sweep(cmd.Context(), loadConfig())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	})

	return root
}
