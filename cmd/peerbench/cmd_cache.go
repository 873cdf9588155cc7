package main

import (
	"cmp"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anushabukke/peerBench-sub002/internal/cache"
)

func newCacheCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the forward response cache",
		Long: `Manage the forward response cache.

The cache stores model responses so that repeating a request with the same
provider, model, system prompt, prompt content and sampling settings does not
call the provider again.`,
	}

	cmd.AddCommand(newCacheClearCommand(a))

	return cmd
}

func newCacheClearCommand(a *app) *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the forward response cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			absDir, err := filepath.Abs(cmp.Or(cacheDir, a.cfg.Cache.Dir))
			if err != nil {
				return fmt.Errorf("resolving cache directory: %w", err)
			}

			if err := cache.New(absDir).Clear(); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", absDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory to clear (default from config)")

	return cmd
}
