package store

import (
	"github.com/ValentinKolb/kiln/cmd/util"
	"github.com/spf13/cobra"
)

var (
	handle *util.Handle

	// StoreCommands represents the store command group
	StoreCommands = &cobra.Command{
		Use:                "store",
		Short:              "Read and write records of the studio collections",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add backend flags to the store command
	util.SetupStoreFlags(StoreCommands)

	// Add subcommands
	StoreCommands.AddCommand(getCmd)
	StoreCommands.AddCommand(listCmd)
	StoreCommands.AddCommand(putCmd)
	StoreCommands.AddCommand(patchCmd)
	StoreCommands.AddCommand(patchManyCmd)
	StoreCommands.AddCommand(delCmd)
	StoreCommands.AddCommand(existsCmd)
	StoreCommands.AddCommand(clearCmd)
	StoreCommands.AddCommand(perfTestCmd)
}

// setupStore opens the store of the configured backend
func setupStore(cmd *cobra.Command, _ []string) error {
	var err error
	handle, err = util.Prepare(cmd)
	return err
}

// closeStore persists and closes the store
func closeStore(_ *cobra.Command, _ []string) error {
	if handle == nil {
		return nil
	}
	return handle.Close()
}
