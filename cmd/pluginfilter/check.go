package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/plugin-filter/plugin"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [plugin-file]",
		Short: "Validate the structure of a plugin list without probing any URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := opts.resolveConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.InputFile
			}

			doc, err := plugin.Load(path)
			if err != nil {
				return err
			}

			missing := 0
			for _, p := range doc.Plugins {
				if p.URL == "" {
					missing++
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %s is a valid plugin list\n", path)
			if doc.Desc != "" {
				fmt.Fprintf(out, "  Description: %s\n", doc.Desc)
			}
			fmt.Fprintf(out, "  Plugins:     %d\n", len(doc.Plugins))
			if missing > 0 {
				fmt.Fprintf(out, "  Missing URL: %d\n", missing)
			}
			return nil
		},
	}
}
