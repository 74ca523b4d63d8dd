package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/skiwithcare/datagen/internal/geocache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and edit the geocode caches",
	Long: `The geocode caches are JSON files keyed by "name|state" (resorts) or facility id.
A failure marker (null lat/lon) is never looked up again until it is removed.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [file...]",
	Short: "Show entry, resolved and failed counts",
	Long:  "Shows counts for the given cache files, or for every configured cache.",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			paths = []string{cfg.Paths.ResortCache, cfg.Paths.HospitalCache, cfg.Paths.FacilityCache}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-40s %8s %8s %8s\n", "CACHE", "ENTRIES", "RESOLVED", "FAILED")
		for _, path := range paths {
			c, err := geocache.Open(path)
			if err != nil {
				return err
			}
			s := c.Stats()
			fmt.Fprintf(out, "%-40s %8d %8d %8d\n", path, s.Entries, s.Resolved, s.Failed)
		}
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune <file>",
	Short: "Remove failure markers or specific keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failures, _ := cmd.Flags().GetBool("failures")
		keys, _ := cmd.Flags().GetStringSlice("key")
		if !failures && len(keys) == 0 {
			return eris.New("cache prune: nothing to remove, pass --failures or --key")
		}

		c, err := geocache.Open(args[0])
		if err != nil {
			return err
		}

		removed := 0
		if failures {
			removed += c.PruneFailures()
		}
		for _, k := range keys {
			if c.Delete(k) {
				removed++
			}
		}
		if err := c.Save(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries from %s (%d left)\n", removed, args[0], c.Len())
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().Bool("failures", false, "remove every failure marker")
	cachePruneCmd.Flags().StringSlice("key", nil, "remove this key (repeatable)")

	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
