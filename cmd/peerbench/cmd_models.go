package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/anushabukke/peerBench-sub002/internal/spinner"
)

func newModelsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models <provider>",
		Short: "List the models a provider serves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			provs, closeProviders, err := a.buildProviders(ctx, args)
			if err != nil {
				return err
			}
			defer closeProviders()
			p := provs[0]

			var stop func()
			if f, ok := cmd.ErrOrStderr().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				s := spinner.Start(f, fmt.Sprintf("Listing %s models...", args[0]))
				stop = s.Stop
			}
			list, err := p.ListModels(ctx)
			if stop != nil {
				stop()
			}
			if err != nil {
				return err
			}

			width := len("MODEL")
			for _, m := range list {
				width = max(width, runewidth.StringWidth(m.ID))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", runewidth.FillRight("MODEL", width), "OWNER")
			for _, m := range list {
				fmt.Fprintf(out, "%s  %s\n", runewidth.FillRight(m.ID, width), m.Owner)
			}
			return nil
		},
	}
}
