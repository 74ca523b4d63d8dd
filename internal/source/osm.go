package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/classify"
	"github.com/skiwithcare/datagen/internal/fetcher"
	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/model"
	"github.com/skiwithcare/datagen/internal/resilience"
)

// DefaultOverpassEndpoints are the public Overpass mirrors, tried in order.
var DefaultOverpassEndpoints = []string{
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass-api.de/api/interpreter",
}

// SkiStates are the states queried by default.
var SkiStates = []string{
	"CA", "CO", "UT", "WY", "MT", "ID", "NM", "AZ", "NV",
	"WA", "OR",
	"VT", "NH", "ME", "NY", "PA", "MA", "CT", "NJ",
	"MI", "WI", "MN", "OH", "IN", "MO",
	"WV", "VA", "NC", "TN",
}

const resortQuery = `[out:json][timeout:%d];
area["name"="%s"]["admin_level"="4"]->.state;
(
  nwr["landuse"="winter_sports"]["name"](area.state);
  nwr["sport"="skiing"]["name"](area.state);
  nwr["piste:type"="downhill"]["name"](area.state);
  nwr["leisure"="ski_resort"]["name"](area.state);
);
out center tags;`

const hospitalQuery = `[out:json][timeout:%d];
area["name"="%s"]["admin_level"="4"]->.state;
(
  nwr["amenity"="hospital"]["name"](area.state);
);
out center tags;`

type overpassResponse struct {
	Elements []osmElement `json:"elements"`
}

type osmElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *osmCenter        `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type osmCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// coordinate returns a node's position or a way/relation's center.
func (e osmElement) coordinate() (geo.Coordinate, bool) {
	var c geo.Coordinate
	switch {
	case e.Type == "node" && e.Lat != nil && e.Lon != nil:
		c = geo.Coordinate{Lat: *e.Lat, Lon: *e.Lon}
	case e.Center != nil:
		c = geo.Coordinate{Lat: e.Center.Lat, Lon: e.Center.Lon}
	default:
		return c, false
	}
	return c, c.Valid() && (c.Lat != 0 || c.Lon != 0)
}

// OverpassOptions configures the Overpass client.
type OverpassOptions struct {
	Endpoints    []string
	States       []string // two-letter codes
	QueryTimeout int      // seconds, passed to the Overpass server
	Breakers     *resilience.Breakers
}

// Overpass queries OpenStreetMap state by state with mirror failover. Each
// mirror sits behind its own circuit breaker so a dead mirror is skipped for
// the rest of the run.
type Overpass struct {
	fetcher   fetcher.Fetcher
	endpoints []string
	states    []string
	timeout   int
	breakers  *resilience.Breakers
}

// NewOverpass creates an Overpass client on f.
func NewOverpass(f fetcher.Fetcher, opts OverpassOptions) *Overpass {
	o := &Overpass{
		fetcher:   f,
		endpoints: opts.Endpoints,
		states:    opts.States,
		timeout:   opts.QueryTimeout,
		breakers:  opts.Breakers,
	}
	if len(o.endpoints) == 0 {
		o.endpoints = DefaultOverpassEndpoints
	}
	if len(o.states) == 0 {
		o.states = SkiStates
	}
	if o.timeout <= 0 {
		o.timeout = 60
	}
	if o.breakers == nil {
		o.breakers = resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return o
}

// query runs q against each mirror in turn until one answers.
func (o *Overpass) query(ctx context.Context, q string) ([]osmElement, error) {
	var lastErr error
	for _, endpoint := range o.endpoints {
		cb := o.breakers.Get(endpoint)
		resp, err := resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*overpassResponse, error) {
			body, err := o.fetcher.PostForm(ctx, endpoint, url.Values{"data": {q}})
			if err != nil {
				return nil, err
			}
			defer body.Close() //nolint:errcheck
			return fetcher.DecodeJSONObject[overpassResponse](body)
		})
		if err == nil {
			return resp.Elements, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "source: overpass cancelled")
		}
		zap.L().Warn("source: overpass mirror failed",
			zap.String("endpoint", endpoint), zap.Error(err))
		lastErr = err
	}
	return nil, eris.Wrap(lastErr, "source: all overpass mirrors failed")
}

// eachState runs the query built by tmpl for every configured state. A state
// whose mirrors all fail is skipped; every state failing is an error.
func (o *Overpass) eachState(ctx context.Context, tmpl string, fn func(state string, elements []osmElement)) error {
	queried, failed := 0, 0
	for _, state := range o.states {
		name, ok := classify.StateName(state)
		if !ok {
			zap.L().Warn("source: unknown state, skipping", zap.String("state", state))
			continue
		}
		queried++

		elements, err := o.query(ctx, fmt.Sprintf(tmpl, o.timeout, name))
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failed++
			zap.L().Warn("source: overpass state failed", zap.String("state", state), zap.Error(err))
			continue
		}
		zap.L().Debug("source: overpass state fetched",
			zap.String("state", state), zap.Int("elements", len(elements)))
		fn(state, elements)
	}
	if failed > 0 {
		zap.L().Info("source: overpass mirror states",
			zap.Int("failed_states", failed), zap.Any("mirrors", o.MirrorStates()))
	}
	if queried > 0 && failed == queried {
		return eris.Errorf("source: overpass failed for all %d states", queried)
	}
	return nil
}

// MirrorStates reports the circuit state of every mirror queried so far.
func (o *Overpass) MirrorStates() map[string]string {
	states := o.breakers.States()
	out := make(map[string]string, len(states))
	for endpoint, st := range states {
		out[endpoint] = st.String()
	}
	return out
}

// OSMResorts lists ski areas from OpenStreetMap, tagged by pass network and
// region. Names are de-duplicated across states, first state wins.
type OSMResorts struct {
	overpass *Overpass
}

// NewOSMResorts creates the OSM resort source.
func NewOSMResorts(o *Overpass) *OSMResorts {
	return &OSMResorts{overpass: o}
}

// Name implements ResortSource.
func (s *OSMResorts) Name() string { return "osm" }

// Resorts implements ResortSource.
func (s *OSMResorts) Resorts(ctx context.Context) ([]model.Resort, error) {
	var out []model.Resort
	seen := make(map[string]bool)
	err := s.overpass.eachState(ctx, resortQuery, func(state string, elements []osmElement) {
		for _, el := range elements {
			name := strings.TrimSpace(el.Tags["name"])
			if name == "" {
				continue
			}
			c, ok := el.coordinate()
			if !ok {
				continue
			}
			key := classify.NameKey(name)
			if seen[key] {
				continue
			}
			seen[key] = true

			r := model.NewResort(name, state, classify.PassNetwork(name), classify.Region(state))
			r.Coordinate = &c
			out = append(out, r)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OSMHospitals lists hospitals from OpenStreetMap.
type OSMHospitals struct {
	overpass *Overpass
}

// NewOSMHospitals creates the OSM hospital source.
func NewOSMHospitals(o *Overpass) *OSMHospitals {
	return &OSMHospitals{overpass: o}
}

// Name implements FacilitySource.
func (s *OSMHospitals) Name() string { return "osm" }

// Kind implements FacilitySource.
func (s *OSMHospitals) Kind() model.FacilityKind { return model.KindHospital }

// Facilities implements FacilitySource.
func (s *OSMHospitals) Facilities(ctx context.Context) ([]model.Facility, error) {
	var out []model.Facility
	seen := make(map[int64]bool)
	err := s.overpass.eachState(ctx, hospitalQuery, func(state string, elements []osmElement) {
		for _, el := range elements {
			if f, ok := osmHospital(el, state); ok && !seen[el.ID] {
				seen[el.ID] = true
				out = append(out, f)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, eris.New("source: overpass returned no hospitals")
	}
	return out, nil
}

func osmHospital(el osmElement, state string) (model.Facility, bool) {
	name := strings.TrimSpace(el.Tags["name"])
	if name == "" {
		return model.Facility{}, false
	}
	c, ok := el.coordinate()
	if !ok {
		return model.Facility{}, false
	}

	street := el.Tags["addr:street"]
	if hn := el.Tags["addr:housenumber"]; hn != "" && street != "" {
		street = hn + " " + street
	}

	return model.Facility{
		ID:           "osm-" + strconv.FormatInt(el.ID, 10),
		Kind:         model.KindHospital,
		Name:         name,
		Address:      street,
		City:         el.Tags["addr:city"],
		State:        state,
		Zip:          el.Tags["addr:postcode"],
		Phone:        el.Tags["phone"],
		Coordinate:   &c,
		HasEmergency: el.Tags["emergency"] == "yes" || strings.Contains(strings.ToLower(name), "emergency"),
	}, true
}
