package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/anushabukke/peerBench-sub002/internal/ledger"
)

func newLedgerCommand(a *app) *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Query the record of finalized output files",
		Long: `Query the SQLite ledger of finalized response and score files.

Files are recorded when the ledger is enabled in .peerbench.yaml.`,
	}
	cmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "Ledger database (default from config)")

	open := func() (*ledger.Ledger, error) {
		return ledger.Open(cmp.Or(ledgerPath, a.cfg.Ledger.Path))
	}

	var (
		runID   string
		asJSON  bool
		printTo = func(w io.Writer, entries []ledger.Entry) error {
			if asJSON {
				if entries == nil {
					entries = []ledger.Entry{}
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			writeEntries(w, entries)
			return nil
		}
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded files, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			defer l.Close() //nolint:errcheck

			entries, err := l.List(cmd.Context(), runID)
			if err != nil {
				return err
			}
			return printTo(cmd.OutOrStdout(), entries)
		},
	}
	list.Flags().StringVar(&runID, "run", "", "Only list files of this run")
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	lookup := &cobra.Command{
		Use:   "lookup <cid>",
		Short: "Find recorded files by content identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			defer l.Close() //nolint:errcheck

			entries, err := l.LookupCID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no file with cid %s", args[0])
			}
			return printTo(cmd.OutOrStdout(), entries)
		},
	}
	lookup.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	cmd.AddCommand(list, lookup)
	return cmd
}

func writeEntries(w io.Writer, entries []ledger.Entry) {
	header := []string{"CREATED", "KIND", "RECORDS", "SIGNED", "CID", "PATH"}
	rows := [][]string{header}
	for _, e := range entries {
		signed := "no"
		if e.Signed {
			signed = "yes"
		}
		rows = append(rows, []string{
			time.UnixMilli(e.CreatedAtUnixMs).UTC().Format(time.RFC3339),
			e.Kind,
			fmt.Sprintf("%d", e.Records),
			signed,
			e.CID,
			e.Path,
		})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range rows {
		for i, cell := range row {
			if i == len(row)-1 {
				fmt.Fprintln(w, cell)
				continue
			}
			fmt.Fprint(w, runewidth.FillRight(cell, widths[i]), "  ")
		}
	}
}
