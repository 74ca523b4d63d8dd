// Package geocache persists geocoding results in a hand-editable JSON file
// keyed by resort "name|state" or facility id.
//
// A cached failure (null lat/lon) counts as a hit: the key is not looked up
// again until it is removed by hand or with PruneFailures. Nothing expires.
package geocache

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/jsonfile"
)

// Entry is one cached lookup. Lat and Lon are both nil for a failure marker.
type Entry struct {
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Query string   `json:"query,omitempty"`
}

// Resolved returns an entry holding c.
func Resolved(c geo.Coordinate, query string) Entry {
	lat, lon := c.Lat, c.Lon
	return Entry{Lat: &lat, Lon: &lon, Query: query}
}

// Failed returns a failure marker for query.
func Failed(query string) Entry {
	return Entry{Query: query}
}

// Resolved reports whether the entry carries a usable coordinate.
func (e Entry) Resolved() bool {
	if e.Lat == nil || e.Lon == nil {
		return false
	}
	return geo.Coordinate{Lat: *e.Lat, Lon: *e.Lon}.Valid()
}

// Coordinate returns the cached coordinate, if resolved.
func (e Entry) Coordinate() (geo.Coordinate, bool) {
	if !e.Resolved() {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Lat: *e.Lat, Lon: *e.Lon}, true
}

// ResortKey is the cache key for a resort.
func ResortKey(name, state string) string {
	return name + "|" + state
}

// Stats summarises cache contents.
type Stats struct {
	Entries  int `json:"entries"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// Cache is a key to coordinate map backed by a JSON file. It is not safe for
// concurrent use.
type Cache struct {
	path    string
	entries map[string]Entry
	dirty   bool
}

// New returns an empty cache bound to path. Call Load to read existing entries.
func New(path string) *Cache {
	return &Cache{path: path, entries: make(map[string]Entry)}
}

// Open returns a cache bound to path with its entries loaded.
func Open(path string) (*Cache, error) {
	c := New(path)
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewMemory returns a cache with no backing file; Load and Save do nothing.
func NewMemory() *Cache {
	return New("")
}

// Path returns the backing file path, empty for a memory cache.
func (c *Cache) Path() string { return c.path }

// Load replaces the in-memory entries with the file contents. A missing file
// leaves the cache empty. A file that does not parse is an error so that a bad
// hand edit is never overwritten by the next Save.
func (c *Cache) Load() error {
	if c.path == "" {
		return nil
	}
	entries := make(map[string]Entry)
	found, err := jsonfile.Read(c.path, &entries)
	if err != nil {
		return eris.Wrapf(err, "geocache: load %s", c.path)
	}
	c.entries = entries
	c.dirty = false
	zap.L().Debug("geocache: loaded",
		zap.String("path", c.path),
		zap.Bool("found", found),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// Save writes the cache if it changed since the last Load or Save. Keys are
// written sorted with 2-space indentation.
func (c *Cache) Save() error {
	if c.path == "" || !c.dirty {
		return nil
	}
	if err := jsonfile.Write(c.path, c.entries); err != nil {
		return eris.Wrapf(err, "geocache: save %s", c.path)
	}
	c.dirty = false
	return nil
}

// Lookup returns the entry stored under key. A failure marker is returned with
// ok true; callers check Entry.Resolved.
func (c *Cache) Lookup(key string) (Entry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Store records e under key, replacing any previous entry.
func (c *Cache) Store(key string, e Entry) {
	c.entries[key] = e
	c.dirty = true
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.dirty = true
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int { return len(c.entries) }

// Stats counts resolved and failed entries.
func (c *Cache) Stats() Stats {
	s := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		if e.Resolved() {
			s.Resolved++
		} else {
			s.Failed++
		}
	}
	return s
}

// PruneFailures removes every failure marker so the keys are retried on the
// next build. It returns the number removed.
func (c *Cache) PruneFailures() int {
	n := 0
	for k, e := range c.entries {
		if !e.Resolved() {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.dirty = true
	}
	return n
}
