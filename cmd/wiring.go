package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/build"
	"github.com/skiwithcare/datagen/internal/config"
	"github.com/skiwithcare/datagen/internal/db"
	"github.com/skiwithcare/datagen/internal/fetcher"
	"github.com/skiwithcare/datagen/internal/geocache"
	"github.com/skiwithcare/datagen/internal/resilience"
	"github.com/skiwithcare/datagen/internal/source"
	"github.com/skiwithcare/datagen/pkg/geocode"
)

func retryConfig(c config.RetryConfig) resilience.RetryConfig {
	return resilience.FromRetryConfig(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs, c.Multiplier, c.JitterFraction)
}

// newRegistry registers every built-in source over a shared HTTP fetcher.
func newRegistry(c *config.Config) (*source.Registry, error) {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.Geocode.UserAgent,
		Timeout:   time.Duration(c.OSM.TimeoutSecs+60) * time.Second,
		Retry:     retryConfig(c.Retry),
		// Every configured mirror is throttled, not only the public defaults.
		AdaptiveRates: fetcher.HostRates(c.OSM.Endpoints, c.OSM.RPS),
	})
	return source.NewDefaultRegistry(source.Deps{
		Fetcher: f,
		Overpass: source.OverpassOptions{
			Endpoints:    c.OSM.Endpoints,
			States:       c.OSM.States,
			QueryTimeout: c.OSM.TimeoutSecs,
		},
		Hospitals: source.CMSOptions{
			MetadataURL: c.CMS.HospitalMetadataURL,
			States:      c.CMS.HospitalStates,
		},
		Clinics: source.CMSOptions{
			MetadataURL: c.CMS.DialysisMetadataURL,
			FallbackURL: c.CMS.DialysisFallbackURL,
			States:      c.CMS.ClinicStates,
		},
		ResortsFile:  c.Paths.ResortsFile,
		RetagResorts: c.Build.RetagResorts,
	})
}

// newAddressClient returns the facility address geocoder: Census with the
// optional Google fallback, behind PostGIS TIGER when a database is
// configured. The returned func releases the database pool.
func newAddressClient(ctx context.Context, c *config.Config) (geocode.Client, func(), error) {
	census := geocode.NewClient(
		geocode.WithRateLimit(c.Geocode.CensusRPS),
		geocode.WithRetry(retryConfig(c.Retry)),
		geocode.WithGoogleAPIKey(c.Geocode.GoogleAPIKey),
	)
	if c.Geocode.TigerDatabaseURL == "" {
		return census, func() {}, nil
	}

	pool, err := db.Connect(ctx, c.Geocode.TigerDatabaseURL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "connect tiger database")
	}
	cascade := geocode.NewCascadeClient(
		geocode.NewTigerProvider(pool, c.Geocode.TigerMaxRating),
		geocode.NewClientProvider("census", census),
	)
	zap.L().Info("address geocoding cascade", zap.Strings("providers", cascade.Providers()))
	return cascade, pool.Close, nil
}

func newPlaceGeocoder(c *config.Config) (geocode.PlaceGeocoder, error) {
	return geocode.NewNominatim(
		geocode.WithNominatimURL(c.Geocode.NominatimURL),
		geocode.WithUserAgent(c.Geocode.UserAgent),
		geocode.WithNominatimRateLimit(c.Geocode.NominatimRPS),
		geocode.WithNominatimRetry(retryConfig(c.Retry)),
	)
}

func openCaches(c *config.Config) (build.Caches, error) {
	var caches build.Caches
	for _, slot := range []struct {
		path string
		dst  **geocache.Cache
	}{
		{c.Paths.ResortCache, &caches.Resorts},
		{c.Paths.HospitalCache, &caches.Hospitals},
		{c.Paths.FacilityCache, &caches.Clinics},
	} {
		cache, err := geocache.Open(slot.path)
		if err != nil {
			return build.Caches{}, err
		}
		*slot.dst = cache
	}
	return caches, nil
}

func builderOptions(c *config.Config) build.Options {
	return build.Options{
		OutputDir:           c.Paths.OutputDir,
		ResortSource:        c.Build.ResortSource,
		HospitalSource:      c.Build.HospitalSource,
		ClinicSource:        c.Build.ClinicSource,
		HospitalMaxDistance: c.Build.HospitalMaxDistanceMiles,
		ClinicMaxDistance:   c.Build.ClinicMaxDistanceMiles,
		BatchSize:           c.Geocode.CensusBatchSize,
		CacheSaveEvery:      c.Build.CacheSaveEvery,
		GeoJSON:             c.Build.GeoJSON,
	}
}

// newBuilder wires sources, geocoders and caches into a Builder. The returned
// func releases external resources.
func newBuilder(ctx context.Context, c *config.Config, opts build.Options) (*build.Builder, func(), error) {
	reg, err := newRegistry(c)
	if err != nil {
		return nil, nil, err
	}
	places, err := newPlaceGeocoder(c)
	if err != nil {
		return nil, nil, err
	}
	caches, err := openCaches(c)
	if err != nil {
		return nil, nil, err
	}
	addresses, closeAddresses, err := newAddressClient(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	return build.New(reg, places, addresses, caches, opts), closeAddresses, nil
}
