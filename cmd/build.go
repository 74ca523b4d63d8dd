package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/build"
	"github.com/skiwithcare/datagen/internal/config"
	"github.com/skiwithcare/datagen/internal/model"
)

var (
	buildOutputDir string
	buildGeoJSON   bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the published datasets",
	Long: `Builds resorts.json, hospitals.json and clinics.json.

Coordinates come from the source, the geocode caches, or the geocoders, in that
order. Facility builds match against the resorts built in the same run or, when
run alone, against the existing resorts.json. Interrupting a build saves the
caches so the next run resumes where this one stopped.`,
}

var buildResortsCmd = &cobra.Command{
	Use:   "resorts",
	Short: "Build resorts.json",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBuild(cmd, "resorts")
	},
}

var buildHospitalsCmd = &cobra.Command{
	Use:   "hospitals",
	Short: "Build hospitals.json against the built resorts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBuild(cmd, "hospitals")
	},
}

var buildClinicsCmd = &cobra.Command{
	Use:   "clinics",
	Short: "Build clinics.json against the built resorts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBuild(cmd, "clinics")
	},
}

var buildAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Build resorts, then hospitals, then clinics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBuild(cmd, "resorts", "hospitals", "clinics")
	},
}

func runBuild(cmd *cobra.Command, datasets ...string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := buildConfig(cmd, cfg)
	opts, err := buildOptions(cmd, builderOptions(c))
	if err != nil {
		return err
	}
	b, cleanup, err := newBuilder(ctx, c, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	zap.L().Info("build started", zap.String("run_id", b.RunID()), zap.Strings("datasets", datasets))
	for _, dataset := range datasets {
		stats, err := buildDataset(ctx, b, dataset)
		if stats != nil {
			printStats(cmd.OutOrStdout(), stats)
		}
		if err != nil {
			return eris.Wrapf(err, "build %s", dataset)
		}
	}
	return nil
}

func buildDataset(ctx context.Context, b *build.Builder, dataset string) (*build.Stats, error) {
	if dataset == "resorts" {
		return b.BuildResorts(ctx)
	}
	kind, err := model.ParseFacilityKind(dataset)
	if err != nil {
		return nil, err
	}
	return b.BuildFacilities(ctx, kind)
}

// buildConfig returns cfg with --retag applied, leaving cfg untouched.
func buildConfig(cmd *cobra.Command, c *config.Config) *config.Config {
	f := cmd.Flags().Lookup("retag")
	if f == nil || !f.Changed {
		return c
	}
	out := *c
	out.Build.RetagResorts = f.Value.String() == "true"
	return &out
}

// buildOptions applies command-line overrides to opts. --source and
// --max-distance belong to the single-dataset commands.
func buildOptions(cmd *cobra.Command, opts build.Options) (build.Options, error) {
	if f := cmd.Flag("output-dir"); f != nil && f.Changed {
		opts.OutputDir = buildOutputDir
	}
	if f := cmd.Flag("geojson"); f != nil && f.Changed {
		opts.GeoJSON = buildGeoJSON
	}

	if f := cmd.Flags().Lookup("source"); f != nil && f.Changed {
		switch cmd.Name() {
		case "resorts":
			opts.ResortSource = f.Value.String()
		case "hospitals":
			opts.HospitalSource = f.Value.String()
		case "clinics":
			opts.ClinicSource = f.Value.String()
		}
	}
	if cmd.Flags().Lookup("max-distance") != nil && cmd.Flags().Changed("max-distance") {
		d, err := cmd.Flags().GetFloat64("max-distance")
		if err != nil {
			return opts, eris.Wrap(err, "parse --max-distance")
		}
		if d < 0 {
			return opts, eris.Errorf("--max-distance must not be negative, got %v", d)
		}
		switch cmd.Name() {
		case "hospitals":
			opts.HospitalMaxDistance = d
		case "clinics":
			opts.ClinicMaxDistance = d
		}
	}
	return opts, nil
}

func printStats(w io.Writer, s *build.Stats) {
	fmt.Fprintf(w, "%-10s total=%d skipped=%d supplied=%d cached=%d geocoded=%d failed=%d",
		s.Dataset, s.Total, s.Skipped, s.Supplied, s.Cached, s.Geocoded, s.Failed)
	if s.Dataset != "resorts" {
		fmt.Fprintf(w, " matched=%d beyond=%d", s.Matched, s.Beyond)
	}
	fmt.Fprintf(w, " emitted=%d -> %s\n", s.Emitted, s.Output)
}

func init() {
	buildCmd.PersistentFlags().StringVar(&buildOutputDir, "output-dir", "", "directory for the built datasets (overrides paths.output_dir)")
	buildCmd.PersistentFlags().BoolVar(&buildGeoJSON, "geojson", false, "also write a GeoJSON FeatureCollection per dataset")

	buildResortsCmd.Flags().String("source", "", "resort source: static, osm or file")
	buildResortsCmd.Flags().Bool("retag", false, "re-derive pass network and region for the file source (overrides build.retag_resorts)")
	buildHospitalsCmd.Flags().String("source", "", "hospital source: cms, static or osm")
	buildClinicsCmd.Flags().String("source", "", "clinic source: cms")
	buildHospitalsCmd.Flags().Float64("max-distance", 0, "keep hospitals within this many miles of a resort; 0 keeps all")
	buildClinicsCmd.Flags().Float64("max-distance", 0, "keep clinics within this many miles of a resort; 0 keeps all")

	buildCmd.AddCommand(buildResortsCmd, buildHospitalsCmd, buildClinicsCmd, buildAllCmd)
	rootCmd.AddCommand(buildCmd)
}
