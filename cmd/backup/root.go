package backup

import (
	"fmt"
	"github.com/ValentinKolb/kiln/cmd/util"
	"github.com/ValentinKolb/kiln/lib/common"
	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/spf13/cobra"
	"io"
	"os"
	"time"
)

var (
	handle *util.Handle

	// BackupCommands represents the backup command group
	BackupCommands = &cobra.Command{
		Use:                "backup",
		Short:              "Create and restore whole-store backups",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: closeStore,
	}

	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Writes a backup document of the whole store",
		Long: `Writes a backup document of the whole store. Without --out the document is written
to kiln-backup-<timestamp>.json, with --out - it is written to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := handle.Store.Backup()
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "-" {
				return store.EncodeDocument(os.Stdout, doc)
			}
			if out == "" {
				out = fmt.Sprintf("kiln-backup-%s.json", doc.Timestamp.Format("20060102-150405"))
			}
			if err := db.WriteFile(out, func(w io.Writer) error { return store.EncodeDocument(w, doc) }); err != nil {
				return err
			}
			fmt.Printf("backup of %d collections written to %s\n", len(doc.CollectionNames()), out)
			return nil
		},
	}

	restoreCmd = &cobra.Command{
		Use:   "restore [file]",
		Short: "Replaces every collection contained in a backup document",
		Long: `Replaces every collection contained in a backup document. Collections missing
from the document are left untouched. An invalid document is rejected before anything is changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := store.DecodeDocument(f)
			if err != nil {
				return err
			}
			if err := handle.Store.Restore(doc); err != nil {
				return err
			}
			handle.MarkModified()
			fmt.Printf("restored %v from the %s backup of %s\n", doc.CollectionNames(), doc.Backend, doc.Timestamp.Format(time.RFC3339))
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	util.SetupStoreFlags(BackupCommands)
	createCmd.Flags().String("out", "", util.WrapString("Target file of the backup (- for stdout)"))

	BackupCommands.AddCommand(createCmd)
	BackupCommands.AddCommand(restoreCmd)
}

func setupStore(cmd *cobra.Command, _ []string) error {
	// keep stdout clean for --out -
	if out, _ := cmd.Flags().GetString("out"); out == "-" {
		common.LogOutput = os.Stderr
	}

	var err error
	handle, err = util.Prepare(cmd)
	return err
}

func closeStore(_ *cobra.Command, _ []string) error {
	if handle == nil {
		return nil
	}
	return handle.Close()
}
