// Package source provides the resort and facility lists a build starts from.
// Every source is addressed by name in a Registry, so the builder runs the
// same pipeline whether its input is a static list, OpenStreetMap, the CMS
// provider catalog, or a previously built file.
package source

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/skiwithcare/datagen/internal/model"
)

// ErrUnknownSource is returned when a requested source is not registered.
var ErrUnknownSource = eris.New("source: unknown source")

// ResortSource lists resorts. Coordinates may be left unresolved.
type ResortSource interface {
	Name() string
	Resorts(ctx context.Context) ([]model.Resort, error)
}

// FacilitySource lists facilities of one kind. An error means the upstream
// list itself could not be obtained.
type FacilitySource interface {
	Name() string
	Kind() model.FacilityKind
	Facilities(ctx context.Context) ([]model.Facility, error)
}

// Entry describes one registered source.
type Entry struct {
	Dataset string // "resorts", "hospitals" or "clinics"
	Name    string
}

func (e Entry) String() string { return fmt.Sprintf("%s/%s", e.Dataset, e.Name) }

// Registry holds sources by dataset and name, in registration order.
type Registry struct {
	resorts    []ResortSource
	facilities []FacilitySource
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterResorts adds s, replacing any resort source with the same name.
func (r *Registry) RegisterResorts(s ResortSource) {
	for i, existing := range r.resorts {
		if existing.Name() == s.Name() {
			r.resorts[i] = s
			return
		}
	}
	r.resorts = append(r.resorts, s)
}

// RegisterFacilities adds s, replacing any source with the same kind and name.
func (r *Registry) RegisterFacilities(s FacilitySource) {
	for i, existing := range r.facilities {
		if existing.Kind() == s.Kind() && existing.Name() == s.Name() {
			r.facilities[i] = s
			return
		}
	}
	r.facilities = append(r.facilities, s)
}

// ResortSource looks up a resort source by name.
func (r *Registry) ResortSource(name string) (ResortSource, error) {
	for _, s := range r.resorts {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, eris.Wrapf(ErrUnknownSource, "resorts/%s", name)
}

// FacilitySource looks up a facility source by kind and name.
func (r *Registry) FacilitySource(kind model.FacilityKind, name string) (FacilitySource, error) {
	for _, s := range r.facilities {
		if s.Kind() == kind && s.Name() == name {
			return s, nil
		}
	}
	return nil, eris.Wrapf(ErrUnknownSource, "%s/%s", kind.Dataset(), name)
}

// Entries lists every registered source, resorts first.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.resorts)+len(r.facilities))
	for _, s := range r.resorts {
		out = append(out, Entry{Dataset: "resorts", Name: s.Name()})
	}
	for _, s := range r.facilities {
		out = append(out, Entry{Dataset: s.Kind().Dataset(), Name: s.Name()})
	}
	return out
}

// Names lists every registered source as "dataset/name".
func (r *Registry) Names() []string {
	entries := r.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.String()
	}
	return names
}
