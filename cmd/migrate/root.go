package migrate

import (
	"fmt"
	"github.com/ValentinKolb/kiln/cmd/util"
	"github.com/ValentinKolb/kiln/lib/common"
	"github.com/ValentinKolb/kiln/lib/store/migrate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sort"
)

// MigrateCmd moves legacy data of the local data file into the configured store
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrates legacy data into the configured store",
	Long: `Migrates legacy data into the configured store.

The legacy layout keeps every collection as one JSON array under
<legacy-prefix><collection> in the local data file. Collections that already
exist in the store are not touched. The migration is recorded in the data file,
running it again does nothing.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	util.SetupStoreFlags(MigrateCmd)

	key := "legacy-prefix"
	MigrateCmd.Flags().String(key, migrate.DefaultLegacyPrefix, util.WrapString("Prefix of the legacy collection keys"))
	key = "remove-legacy"
	MigrateCmd.Flags().Bool(key, false, util.WrapString("Remove the legacy keys after a successful migration"))
	key = "create-tables"
	MigrateCmd.Flags().Bool(key, false, util.WrapString("Create the studio tables first (remote backend with a sql driver only)"))
}

func run(cmd *cobra.Command, _ []string) error {
	// the migration itself is the explicit step, never run it twice
	viper.Set("auto-migrate", false)

	h, err := util.Prepare(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			fmt.Printf("error closing store: %v\n", err)
		}
	}()

	if viper.GetBool("create-tables") {
		if h.Config.Backend != common.BackendRemote {
			return fmt.Errorf("--create-tables requires the remote backend")
		}
		if err := h.CreateTables(); err != nil {
			return err
		}
		fmt.Println("tables created")
	}

	report, err := h.Migrate(migrate.Config{
		LegacyPrefix: viper.GetString("legacy-prefix"),
		RemoveLegacy: viper.GetBool("remove-legacy"),
	})
	if err != nil {
		return err
	}

	if report.AlreadyDone {
		fmt.Println("legacy data was already migrated, nothing to do")
		return nil
	}

	collections := make([]string, 0, len(report.Migrated))
	for collection := range report.Migrated {
		collections = append(collections, collection)
	}
	sort.Strings(collections)
	for _, collection := range collections {
		fmt.Printf("  %-16s %d records\n", collection, report.Migrated[collection])
	}
	for _, collection := range report.Kept {
		fmt.Printf("  %-16s kept (already populated)\n", collection)
	}
	if report.Skipped > 0 {
		fmt.Printf("%d legacy records could not be converted and were skipped\n", report.Skipped)
	}
	fmt.Println("migration complete")
	return nil
}
