package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	Comment    rune            // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV rows and sends them to a channel.
// Caller must consume the returned row channel. Errors are sent on the error
// channel. Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// Record is a CSV row addressable by header name.
type Record struct {
	index map[string]int
	row   []string
}

// Get returns the trimmed value under column, or "" when the column is absent
// or the row is short.
func (r Record) Get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

// ForEachRecord streams a CSV with a header row and calls fn for every data
// row. Missing required columns fail before any row is delivered. A UTF-8 BOM
// on the first header cell is ignored. fn returning an error stops the stream.
func ForEachRecord(ctx context.Context, r io.Reader, required []string, fn func(Record) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{HasHeader: true, HeaderCh: headerCh, LazyQuotes: true})

	var index map[string]int
	for row := range rowCh {
		if index == nil {
			var err error
			if index, err = headerIndex(<-headerCh, required); err != nil {
				return err
			}
		}
		if err := fn(Record{index: index, row: row}); err != nil {
			return err
		}
	}
	if err := <-errCh; err != nil {
		return err
	}
	if index == nil {
		// Header-only or empty input: still check the header.
		select {
		case header := <-headerCh:
			_, err := headerIndex(header, required)
			return err
		default:
			return eris.New("csv: empty input")
		}
	}
	return nil
}

func headerIndex(header []string, required []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		index[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("csv: missing columns %q", missing)
	}
	return index, nil
}
