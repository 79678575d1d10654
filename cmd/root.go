// root.go viper root command code
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auralis-audio/auralis/cmd/analyze"
	"github.com/auralis-audio/auralis/cmd/play"
	"github.com/auralis-audio/auralis/cmd/scan"
	"github.com/auralis-audio/auralis/cmd/sidecar"
	"github.com/auralis-audio/auralis/internal/conf"
	"github.com/auralis-audio/auralis/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "auralis",
		Short: "Auralis adaptive mastering core CLI",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		play.Command(settings),
		analyze.Command(settings),
		scan.Command(settings),
		sidecar.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Init()
		return nil
	}

	return rootCmd
}

// setupFlags binds the global flags shared by every subcommand.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	cmd.PersistentFlags().StringVar(&settings.DatabasePath, "database", settings.DatabasePath, "Path to the catalog database")

	if err := viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding debug flag: %w", err)
	}
	if err := viper.BindPFlag("database_path", cmd.PersistentFlags().Lookup("database")); err != nil {
		return fmt.Errorf("error binding database flag: %w", err)
	}
	return nil
}
