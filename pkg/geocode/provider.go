package geocode

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/db"
)

// Provider represents a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
	Available() bool
}

// batchProvider is implemented by providers with a native batch endpoint.
type batchProvider interface {
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// TigerProvider geocodes via PostGIS TIGER/Line data.
type TigerProvider struct {
	pool      db.Pool
	maxRating int
}

// NewTigerProvider creates a TigerProvider with the given pool and max rating threshold.
func NewTigerProvider(pool db.Pool, maxRating int) *TigerProvider {
	return &TigerProvider{pool: pool, maxRating: maxRating}
}

// Name implements Provider.
func (p *TigerProvider) Name() string { return "tiger" }

// Available implements Provider.
func (p *TigerProvider) Available() bool { return p.pool != nil }

// Geocode implements Provider. No candidate or a rating above the threshold
// is an unmatched Result; database failures are errors.
func (p *TigerProvider) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := addr.OneLine()
	if oneLine == "" {
		r := unmatched("tiger", "")
		return &r, nil
	}

	var lat, lon float64
	var rating int
	var matchedAddr string
	var countyFIPS sql.NullString

	row := p.pool.QueryRow(ctx, `
		SELECT
			ST_Y(geomout) AS lat,
			ST_X(geomout) AS lon,
			rating,
			pprint_addy(addy) AS matched_address,
			(addy).statefp || (addy).countyfp AS county_fips
		FROM geocode($1, 1)`,
		oneLine,
	)

	err := row.Scan(&lat, &lon, &rating, &matchedAddr, &countyFIPS)
	if errors.Is(err, pgx.ErrNoRows) {
		zap.L().Debug("tiger provider: no match", zap.String("address", oneLine))
		r := unmatched("tiger", oneLine)
		return &r, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: tiger query %q", oneLine)
	}

	if rating > p.maxRating {
		zap.L().Debug("tiger provider: rating exceeds threshold",
			zap.String("address", oneLine),
			zap.Int("rating", rating),
			zap.Int("max_rating", p.maxRating),
		)
		return &Result{Matched: false, Source: "tiger", Rating: rating, Query: oneLine}, nil
	}

	result := &Result{
		Latitude:  lat,
		Longitude: lon,
		Source:    "tiger",
		Quality:   ratingToQuality(rating),
		Matched:   true,
		Query:     oneLine,
		Rating:    rating,
	}
	if countyFIPS.Valid {
		result.CountyFIPS = countyFIPS.String
	}
	return result, nil
}

// ratingToQuality maps PostGIS geocoder rating to quality taxonomy.
// Lower ratings are better: 0 = exact match.
func ratingToQuality(rating int) string {
	switch {
	case rating < 10:
		return "rooftop"
	case rating < 20:
		return "range"
	case rating < 50:
		return "centroid"
	default:
		return "approximate"
	}
}

// ClientProvider adapts a Client to the Provider interface, keeping its batch
// endpoint available to CascadeClient.
type ClientProvider struct {
	name   string
	client Client
}

// NewClientProvider wraps client under name.
func NewClientProvider(name string, client Client) *ClientProvider {
	return &ClientProvider{name: name, client: client}
}

// Name implements Provider.
func (p *ClientProvider) Name() string { return p.name }

// Available implements Provider.
func (p *ClientProvider) Available() bool { return p.client != nil }

// Geocode implements Provider.
func (p *ClientProvider) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	return p.client.Geocode(ctx, addr)
}

// BatchGeocode delegates to the wrapped client.
func (p *ClientProvider) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	return p.client.BatchGeocode(ctx, addrs)
}

// CascadeClient tries providers in order and keeps the first match. It
// implements Client.
type CascadeClient struct {
	providers []Provider
}

// NewCascadeClient creates a CascadeClient over providers, skipping the
// unavailable ones.
func NewCascadeClient(providers ...Provider) *CascadeClient {
	var active []Provider
	for _, p := range providers {
		if p != nil && p.Available() {
			active = append(active, p)
		}
	}
	return &CascadeClient{providers: active}
}

// Providers returns the names of the active providers in cascade order.
func (c *CascadeClient) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Geocode implements Client. A provider error moves on to the next provider;
// the error is returned only when no provider produced an answer.
func (c *CascadeClient) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	var last *Result
	var lastErr error
	for _, p := range c.providers {
		r, err := p.Geocode(ctx, addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "geocode: cancelled")
			}
			zap.L().Debug("geocode: provider failed",
				zap.String("provider", p.Name()), zap.String("address", addr.OneLine()), zap.Error(err))
			lastErr = err
			continue
		}
		if r.Matched {
			return r, nil
		}
		last = r
	}
	if last != nil {
		return last, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	r := unmatched("", addr.OneLine())
	return &r, nil
}

// BatchGeocode implements Client. Each provider sees only the addresses the
// previous providers left unmatched; batch-capable providers get them in one call.
func (c *CascadeClient) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	results := make([]Result, len(addrs))
	answered := make([]bool, len(addrs))
	pending := make([]int, len(addrs))
	for i := range addrs {
		pending[i] = i
		results[i] = unmatched("", addrs[i].OneLine())
	}

	var lastErr error
	for _, p := range c.providers {
		if len(pending) == 0 {
			break
		}
		batch := make([]AddressInput, len(pending))
		for j, i := range pending {
			batch[j] = addrs[i]
		}

		got, errs := c.runProvider(ctx, p, batch)
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "geocode: cancelled")
		}

		var next []int
		for j, i := range pending {
			if errs[j] != nil {
				lastErr = errs[j]
				next = append(next, i)
				continue
			}
			results[i] = got[j]
			answered[i] = true
			if !got[j].Matched {
				next = append(next, i)
			}
		}
		pending = next
	}

	// Only a total outage is an error; scattered failures stay unmatched.
	for _, ok := range answered {
		if ok {
			return results, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return results, nil
}

// runProvider geocodes batch with p, returning a per-address error slice.
func (c *CascadeClient) runProvider(ctx context.Context, p Provider, batch []AddressInput) ([]Result, []error) {
	errs := make([]error, len(batch))
	if bp, ok := p.(batchProvider); ok {
		got, err := bp.BatchGeocode(ctx, batch)
		if err == nil && len(got) == len(batch) {
			return got, errs
		}
		if err == nil {
			err = eris.Errorf("geocode: %s returned %d results for %d addresses", p.Name(), len(got), len(batch))
		}
		for j := range errs {
			errs[j] = err
		}
		return make([]Result, len(batch)), errs
	}

	got := make([]Result, len(batch))
	for j, addr := range batch {
		r, err := p.Geocode(ctx, addr)
		if err != nil {
			errs[j] = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		got[j] = *r
	}
	return got, errs
}
