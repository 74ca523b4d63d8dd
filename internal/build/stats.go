package build

import "go.uber.org/zap"

// Stats counts what happened to each entity of one dataset build.
type Stats struct {
	Dataset  string `json:"dataset"`
	Total    int    `json:"total"`
	Skipped  int    `json:"skipped"`  // non-US or duplicate entries
	Supplied int    `json:"supplied"` // coordinate came with the source
	Cached   int    `json:"cached"`
	Geocoded int    `json:"geocoded"`
	Failed   int    `json:"failed"`
	Matched  int    `json:"matched"`
	Beyond   int    `json:"beyond"` // nearest resort farther than the cutoff
	Invalid  int    `json:"invalid"`
	Emitted  int    `json:"emitted"`
	Output   string `json:"output"`
}

// Fields renders the stats as log fields.
func (s *Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("total", s.Total),
		zap.Int("skipped", s.Skipped),
		zap.Int("supplied", s.Supplied),
		zap.Int("cached", s.Cached),
		zap.Int("geocoded", s.Geocoded),
		zap.Int("failed", s.Failed),
		zap.Int("matched", s.Matched),
		zap.Int("beyond_max", s.Beyond),
		zap.Int("invalid", s.Invalid),
		zap.Int("emitted", s.Emitted),
	}
}
