package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/journal"
)

// errJournalDisabled is returned when database.enabled is false.
var errJournalDisabled = errors.New("command journal is disabled (database.enabled is false)")

func newJournalCmd(configPath *string) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recently routed commands, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return errJournalDisabled
			}

			db, err := openJournal(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only listing

			entries, err := journal.NewSQLiteRepository(db.DB).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return printJournal(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to list (1-500)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func printJournal(w io.Writer, entries []journal.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tCOMMAND\tCOMMAND_ID\tOUTCOME\tDETAIL")
	for _, e := range entries {
		commandID := e.CommandID
		if commandID == "" {
			commandID = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ReceivedAt.Local().Format(time.DateTime), e.Command, commandID, e.Outcome, e.Detail)
	}
	return tw.Flush()
}
