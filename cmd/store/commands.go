package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/codec"
	"github.com/ValentinKolb/kiln/lib/model"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"sort"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [collection] [id]",
		Short: "Reads a single record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, id := args[0], args[1]
			record, ok, err := handle.Store.ReadOne(collection, id)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("collection=%s, id=%s, found=false\n", collection, id)
				return nil
			}
			return printJSON(record)
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [collection]",
		Short: "Reads every record of a collection (sorted by id)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := handle.Store.ReadAll(args[0])
			if err != nil {
				return err
			}
			sort.Slice(records, func(i, j int) bool { return records[i].ID() < records[j].ID() })
			trees := make([]any, 0, len(records))
			for _, record := range records {
				tree, err := codec.Encode(map[string]any(record))
				if err != nil {
					return err
				}
				trees = append(trees, tree)
			}
			return printJSON(trees)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [collection] [json]",
		Short: "Inserts or replaces a record",
		Long: `Inserts or replaces a record. Dates are written as {"$date": "<RFC 3339>"}.
The id is taken from --id, then from the "id" field of the record. Without either a new id is generated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			record, err := parseRecord(args[1])
			if err != nil {
				return err
			}

			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				id = record.ID()
			}
			if id == "" {
				id = uuid.NewString()
			}

			if err := handle.Store.WriteOne(collection, id, record); err != nil {
				return err
			}
			handle.MarkModified()
			fmt.Printf("put %s/%s successfully\n", collection, id)
			return nil
		},
	}
	patchCmd = &cobra.Command{
		Use:   "patch [collection] [id] [json]",
		Short: "Merges fields into an existing record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, id := args[0], args[1]
			patch, err := model.DecodePatch(collection, []byte(args[2]))
			if err != nil {
				return err
			}
			if err := handle.Store.UpdatePartial(collection, id, patch); err != nil {
				return err
			}
			handle.MarkModified()
			fmt.Printf("patch %s/%s successfully\n", collection, id)
			return nil
		},
	}
	patchManyCmd = &cobra.Command{
		Use:   "patch-many [collection] [json]",
		Short: `Applies a list of partial updates ([{"id": "...", "fields": {...}}, ...]) in one batch`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			var entries []struct {
				ID     string          `json:"id"`
				Fields json.RawMessage `json:"fields"`
			}
			if err := json.Unmarshal([]byte(args[1]), &entries); err != nil {
				return fmt.Errorf("invalid update list: %w", err)
			}

			updates := make([]store.BulkUpdate, 0, len(entries))
			for i, entry := range entries {
				if entry.ID == "" {
					return fmt.Errorf("update %d has no id", i)
				}
				patch, err := model.DecodePatch(collection, entry.Fields)
				if err != nil {
					return fmt.Errorf("update %d: %w", i, err)
				}
				updates = append(updates, store.BulkUpdate{ID: entry.ID, Patch: patch})
			}

			if err := handle.Store.UpdateBulk(collection, updates); err != nil {
				return err
			}
			handle.MarkModified()
			fmt.Printf("patched %d records of %s successfully\n", len(updates), collection)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [collection] [id]",
		Short: "Deletes a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, id := args[0], args[1]
			loaded, err := handle.Store.DeleteOne(collection, id)
			if err != nil {
				return err
			}
			if loaded {
				handle.MarkModified()
			}
			fmt.Printf("collection=%s, id=%s, deleted=%t\n", collection, id, loaded)
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [collection]",
		Short: "Checks if a collection holds at least one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exists, err := handle.Store.Exists(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("collection=%s, exists=%t\n", args[0], exists)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear [collection]",
		Short: "Removes every record of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := handle.Store.Clear(args[0]); err != nil {
				return err
			}
			handle.MarkModified()
			fmt.Printf("cleared %s successfully\n", args[0])
			return nil
		},
	}
)

func init() {
	putCmd.Flags().String("id", "", "Id of the record")
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseRecord parses a JSON object in codec form.
func parseRecord(raw string) (store.Record, error) {
	record, err := codec.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return record, nil
}

// printJSON prints v (records are codec encoded first) as indented JSON.
func printJSON(v any) error {
	var b []byte
	var err error
	if record, ok := v.(store.Record); ok {
		b, err = codec.Marshal(record)
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return err
	}
	fmt.Println(out.String())
	return nil
}
