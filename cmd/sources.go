package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the data sources each dataset can be built from",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := newRegistry(cfg)
		if err != nil {
			return err
		}

		selected := map[string]string{
			"resorts":   cfg.Build.ResortSource,
			"hospitals": cfg.Build.HospitalSource,
			"clinics":   cfg.Build.ClinicSource,
		}
		out := cmd.OutOrStdout()
		for _, e := range reg.Entries() {
			marker := ""
			if selected[e.Dataset] == e.Name {
				marker = " (configured)"
			}
			fmt.Fprintf(out, "%s%s\n", e, marker)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
