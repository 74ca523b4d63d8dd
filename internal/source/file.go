package source

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/skiwithcare/datagen/internal/classify"
	"github.com/skiwithcare/datagen/internal/fetcher"
	"github.com/skiwithcare/datagen/internal/model"
)

// FileResorts reads a previously built or hand-curated resorts.json.
// Records missing a pass network or region get them from the classifiers.
type FileResorts struct {
	path  string
	retag bool
}

// NewFileResorts returns a source reading path.
func NewFileResorts(path string) *FileResorts {
	return &FileResorts{path: path}
}

// Name implements ResortSource.
func (s *FileResorts) Name() string { return "file" }

// WithRetag makes the source re-derive pass network and region for every
// record, discarding the values stored in the file.
func (s *FileResorts) WithRetag(retag bool) *FileResorts {
	s.retag = retag
	return s
}

// Path returns the file the source reads.
func (s *FileResorts) Path() string { return s.path }

// Resorts implements ResortSource.
func (s *FileResorts) Resorts(ctx context.Context) ([]model.Resort, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open resorts file %s", s.path)
	}
	defer f.Close() //nolint:errcheck

	resorts, err := fetcher.ReadJSONArray[model.Resort](ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read resorts file %s", s.path)
	}
	for i := range resorts {
		r := &resorts[i]
		if s.retag || r.PassNetwork == "" {
			r.PassNetwork = classify.PassNetwork(r.Name)
		}
		if s.retag || r.Region == "" {
			r.Region = classify.Region(r.State)
		}
	}
	return resorts, nil
}
