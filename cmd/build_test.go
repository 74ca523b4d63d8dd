package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiwithcare/datagen/internal/build"
)

// setFlag sets a flag for one test and restores it afterwards.
func setFlag(t *testing.T, c *cobra.Command, name, value string) {
	t.Helper()
	f := c.Flag(name)
	require.NotNil(t, f, "flag %q", name)
	prev := f.Value.String()
	require.NoError(t, f.Value.Set(value))
	f.Changed = true
	t.Cleanup(func() {
		if sv, ok := f.Value.(interface{ Replace([]string) error }); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(prev)
		}
		f.Changed = false
	})
}

func TestBuildOptions_Defaults(t *testing.T) {
	c := testConfig(t)
	opts, err := buildOptions(buildAllCmd, builderOptions(c))
	require.NoError(t, err)

	assert.Equal(t, "public", opts.OutputDir)
	assert.Equal(t, "static", opts.ResortSource)
	assert.Equal(t, "cms", opts.HospitalSource)
	assert.Equal(t, "cms", opts.ClinicSource)
	assert.Equal(t, 75.0, opts.HospitalMaxDistance)
	assert.Equal(t, 200.0, opts.ClinicMaxDistance)
	assert.Equal(t, 1000, opts.BatchSize)
	assert.Equal(t, 100, opts.CacheSaveEvery)
	assert.False(t, opts.GeoJSON)
}

func TestBuildOptions_Overrides(t *testing.T) {
	c := testConfig(t)

	t.Run("output dir and geojson apply to every subcommand", func(t *testing.T) {
		setFlag(t, buildCmd, "output-dir", "/tmp/out")
		setFlag(t, buildCmd, "geojson", "true")

		opts, err := buildOptions(buildResortsCmd, builderOptions(c))
		require.NoError(t, err)
		assert.Equal(t, "/tmp/out", opts.OutputDir)
		assert.True(t, opts.GeoJSON)
	})

	t.Run("source", func(t *testing.T) {
		setFlag(t, buildResortsCmd, "source", "osm")
		setFlag(t, buildHospitalsCmd, "source", "static")

		opts, err := buildOptions(buildResortsCmd, builderOptions(c))
		require.NoError(t, err)
		assert.Equal(t, "osm", opts.ResortSource)
		assert.Equal(t, "cms", opts.HospitalSource)

		opts, err = buildOptions(buildHospitalsCmd, builderOptions(c))
		require.NoError(t, err)
		assert.Equal(t, "static", opts.HospitalSource)
		assert.Equal(t, "static", opts.ResortSource)
	})

	t.Run("max distance", func(t *testing.T) {
		setFlag(t, buildClinicsCmd, "max-distance", "50")

		opts, err := buildOptions(buildClinicsCmd, builderOptions(c))
		require.NoError(t, err)
		assert.Equal(t, 50.0, opts.ClinicMaxDistance)
		assert.Equal(t, 75.0, opts.HospitalMaxDistance)
	})

	t.Run("negative max distance", func(t *testing.T) {
		setFlag(t, buildHospitalsCmd, "max-distance", "-1")

		_, err := buildOptions(buildHospitalsCmd, builderOptions(c))
		assert.Error(t, err)
	})
}

func TestBuildConfig_Retag(t *testing.T) {
	c := testConfig(t)
	assert.Same(t, c, buildConfig(buildResortsCmd, c))

	setFlag(t, buildResortsCmd, "retag", "true")
	got := buildConfig(buildResortsCmd, c)
	assert.True(t, got.Build.RetagResorts)
	assert.False(t, c.Build.RetagResorts, "global config is not modified")
	assert.Same(t, c, buildConfig(buildHospitalsCmd, c))
}

func TestBuildDataset_UnknownDataset(t *testing.T) {
	b := build.New(nil, nil, nil, build.Caches{}, build.Options{OutputDir: t.TempDir()})
	_, err := buildDataset(context.Background(), b, "lifts")
	assert.Error(t, err)
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, &build.Stats{Dataset: "resorts", Total: 3, Geocoded: 2, Emitted: 2, Output: "public/resorts.json"})
	assert.Equal(t, "resorts    total=3 skipped=0 supplied=0 cached=0 geocoded=2 failed=0 emitted=2 -> public/resorts.json\n", buf.String())

	buf.Reset()
	printStats(&buf, &build.Stats{Dataset: "clinics", Total: 5, Matched: 4, Beyond: 1, Emitted: 4, Output: "public/clinics.json"})
	assert.Contains(t, buf.String(), "matched=4 beyond=1 emitted=4")
}
