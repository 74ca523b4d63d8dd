package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/skiwithcare/datagen/internal/schemas"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dataset...]",
	Short: "Check the built datasets against their JSON schemas",
	Long:  "Validates resorts.json, hospitals.json and clinics.json (or the named datasets) in the output directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("output-dir")
		if dir == "" {
			dir = cfg.Paths.OutputDir
		}
		datasets := args
		if len(datasets) == 0 {
			datasets = schemas.Datasets
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, dataset := range datasets {
			path := filepath.Join(dir, dataset+".json")
			err := schemas.ValidateFile(dataset, path)
			if err == nil {
				fmt.Fprintf(out, "ok      %s\n", path)
				continue
			}
			failed++

			var verr *schemas.ValidationError
			if !errors.As(err, &verr) {
				fmt.Fprintf(out, "error   %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(out, "invalid %s (%d problems)\n", path, len(verr.Errors))
			for _, fe := range verr.Errors {
				fmt.Fprintf(out, "        %s: %s\n", fe.Field, fe.Message)
			}
		}

		if failed > 0 {
			return eris.Errorf("validate: %d of %d datasets failed", failed, len(datasets))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().String("output-dir", "", "directory holding the datasets (overrides paths.output_dir)")
	rootCmd.AddCommand(validateCmd)
}
