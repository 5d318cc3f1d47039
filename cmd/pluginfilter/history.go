package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/plugin-filter/internal/history"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit       int
		runID       string
		invalidOnly bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List outcomes stored by previous runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolveConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.History.Enabled() {
				return errors.New("no history store configured (use --history-dsn or PLUGINFILTER_HISTORY_DSN)")
			}

			store, err := history.Open(cfg.History.Driver, cfg.History.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			q := history.Query{Limit: limit, RunID: runID}
			if invalidOnly {
				valid := false
				q.Valid = &valid
			}
			res, err := store.List(cmd.Context(), q)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tRUN\tNAME\tURL\tRESULT")
			for _, e := range res.Data {
				result := "valid"
				if !e.Valid {
					result = e.Reason
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), shortID(e.RunID), e.Name, e.URL, result)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nshowing %d of %d\n", len(res.Data), res.Total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries to show")
	cmd.Flags().StringVar(&runID, "run-id", "", "only show one run")
	cmd.Flags().BoolVar(&invalidOnly, "invalid", false, "only show invalid outcomes")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
