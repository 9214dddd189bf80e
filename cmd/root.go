package cmd

import (
	"fmt"
	"github.com/ValentinKolb/kiln/cmd/backup"
	"github.com/ValentinKolb/kiln/cmd/migrate"
	"github.com/ValentinKolb/kiln/cmd/store"
	"github.com/ValentinKolb/kiln/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kiln",
		Short: "collection store of the studio dashboard",
		Long: fmt.Sprintf(`kiln (v%s)

Stores the collections of the studio dashboard (customers, pieces, events,
bookings, settings and templates) either in a local snapshot file or in a
remote relational database, and moves whole stores between the two with
backups.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kiln",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kiln v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(store.StoreCommands)
	RootCmd.AddCommand(backup.BackupCommands)
	RootCmd.AddCommand(migrate.MigrateCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("Log level (debug, info, warning, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
