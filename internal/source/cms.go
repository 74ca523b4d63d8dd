package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/classify"
	"github.com/skiwithcare/datagen/internal/fetcher"
	"github.com/skiwithcare/datagen/internal/model"
)

const (
	// DefaultHospitalMetadataURL is the CMS provider-data metastore entry for
	// the Hospital General Information dataset.
	DefaultHospitalMetadataURL = "https://data.cms.gov/provider-data/api/1/metastore/schemas/dataset/items/xubh-q36u"
	// DefaultDialysisMetadataURL is the metastore entry for Dialysis Facility
	// listings.
	DefaultDialysisMetadataURL = "https://data.cms.gov/provider-data/api/1/metastore/schemas/dataset/items/23ew-n7w9"
	// DefaultDialysisFallbackURL is a known CSV snapshot used when the
	// metastore cannot be reached.
	DefaultDialysisFallbackURL = "https://data.cms.gov/provider-data/sites/default/files/resources/c04d84bc5c641284494bee4f20f17f9c_1759341903/DFC_FACILITY.csv"
)

type cmsMetadata struct {
	Distribution []struct {
		DownloadURL string `json:"downloadURL"`
		MediaType   string `json:"mediaType"`
	} `json:"distribution"`
}

// CMSOptions configures a CMS facility table source.
type CMSOptions struct {
	MetadataURL string
	// FallbackURL is used when the metastore lookup fails. Empty makes that
	// failure fatal.
	FallbackURL string
	// States keeps only rows in these states. Empty keeps every row.
	States []string
}

// CMS reads a CMS provider-data CSV table. Metadata is resolved on every run
// because CMS rotates the CSV path when the table is refreshed.
type CMS struct {
	kind    model.FacilityKind
	fetcher fetcher.Fetcher
	opts    CMSOptions
	states  map[string]bool
	columns []string
	row     func(fetcher.Record) model.Facility
}

var hospitalColumns = []string{
	"Facility ID", "Facility Name", "Address", "City/Town", "State", "ZIP Code",
	"Telephone Number", "Emergency Services",
}

var dialysisColumns = []string{
	"CMS Certification Number (CCN)", "Facility Name", "Address Line 1",
	"City/Town", "State", "ZIP Code", "Chain Organization",
}

// NewCMSHospitals creates the CMS hospital source.
func NewCMSHospitals(f fetcher.Fetcher, opts CMSOptions) *CMS {
	if opts.MetadataURL == "" {
		opts.MetadataURL = DefaultHospitalMetadataURL
	}
	return newCMS(model.KindHospital, f, opts, hospitalColumns, hospitalRow)
}

// NewCMSDialysis creates the CMS dialysis clinic source.
func NewCMSDialysis(f fetcher.Fetcher, opts CMSOptions) *CMS {
	if opts.MetadataURL == "" {
		opts.MetadataURL = DefaultDialysisMetadataURL
	}
	return newCMS(model.KindClinic, f, opts, dialysisColumns, dialysisRow)
}

func newCMS(kind model.FacilityKind, f fetcher.Fetcher, opts CMSOptions, columns []string, row func(fetcher.Record) model.Facility) *CMS {
	var states map[string]bool
	if len(opts.States) > 0 {
		states = make(map[string]bool, len(opts.States))
		for _, s := range opts.States {
			states[strings.ToUpper(strings.TrimSpace(s))] = true
		}
	}
	return &CMS{kind: kind, fetcher: f, opts: opts, states: states, columns: columns, row: row}
}

// Name implements FacilitySource.
func (c *CMS) Name() string { return "cms" }

// Kind implements FacilitySource.
func (c *CMS) Kind() model.FacilityKind { return c.kind }

// Facilities implements FacilitySource. A failed download, an unreadable
// table or an empty result is fatal.
func (c *CMS) Facilities(ctx context.Context) ([]model.Facility, error) {
	log := zap.L().With(zap.String("component", "cms"), zap.String("dataset", c.kind.Dataset()))

	csvURL, err := c.resolveCSV(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("downloading facility table", zap.String("url", csvURL))

	body, err := c.fetcher.Download(ctx, csvURL)
	if err != nil {
		return nil, eris.Wrapf(err, "source: download %s table", c.kind.Dataset())
	}
	defer body.Close() //nolint:errcheck

	var out []model.Facility
	rows, skipped := 0, 0
	err = fetcher.ForEachRecord(ctx, body, c.columns, func(rec fetcher.Record) error {
		rows++
		f := c.row(rec)
		if f.ID == "" || f.Name == "" {
			skipped++
			return nil
		}
		if c.states != nil && !c.states[f.State] {
			return nil
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: parse %s table", c.kind.Dataset())
	}

	log.Info("facility table parsed",
		zap.Int("rows", rows),
		zap.Int("kept", len(out)),
		zap.Int("skipped", skipped),
	)
	if len(out) == 0 {
		return nil, eris.Errorf("source: %s table has no rows in scope", c.kind.Dataset())
	}
	return out, nil
}

// resolveCSV looks up the current CSV download URL in the metastore.
func (c *CMS) resolveCSV(ctx context.Context) (string, error) {
	u, err := c.metadataCSV(ctx)
	if err == nil {
		return u, nil
	}
	if ctx.Err() != nil || c.opts.FallbackURL == "" {
		return "", err
	}
	zap.L().Warn("source: cms metadata unavailable, using fallback csv",
		zap.String("fallback", c.opts.FallbackURL), zap.Error(err))
	return c.opts.FallbackURL, nil
}

func (c *CMS) metadataCSV(ctx context.Context) (string, error) {
	body, err := c.fetcher.Download(ctx, c.opts.MetadataURL)
	if err != nil {
		return "", eris.Wrap(err, "source: fetch cms metadata")
	}
	defer body.Close() //nolint:errcheck

	meta, err := fetcher.DecodeJSONObject[cmsMetadata](body)
	if err != nil {
		return "", eris.Wrap(err, "source: decode cms metadata")
	}
	for _, d := range meta.Distribution {
		if strings.Contains(strings.ToLower(d.MediaType), "csv") && d.DownloadURL != "" {
			return d.DownloadURL, nil
		}
	}
	return "", eris.New("source: cms metadata lists no csv distribution")
}

func hospitalRow(rec fetcher.Record) model.Facility {
	return model.Facility{
		ID:           rec.Get("Facility ID"),
		Kind:         model.KindHospital,
		Name:         rec.Get("Facility Name"),
		Address:      rec.Get("Address"),
		City:         rec.Get("City/Town"),
		State:        strings.ToUpper(rec.Get("State")),
		Zip:          rec.Get("ZIP Code"),
		Phone:        rec.Get("Telephone Number"),
		HasEmergency: strings.EqualFold(rec.Get("Emergency Services"), "yes"),
	}
}

func dialysisRow(rec fetcher.Record) model.Facility {
	return model.Facility{
		ID:       rec.Get("CMS Certification Number (CCN)"),
		Kind:     model.KindClinic,
		Name:     rec.Get("Facility Name"),
		Address:  rec.Get("Address Line 1"),
		City:     rec.Get("City/Town"),
		State:    strings.ToUpper(rec.Get("State")),
		Zip:      rec.Get("ZIP Code"),
		Provider: classify.Provider(rec.Get("Chain Organization")),
	}
}
