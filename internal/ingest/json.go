package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/model"
)

func loadJSON(ctx context.Context, path string) ([]model.RawActivity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open json")
	}
	defer f.Close() //nolint:errcheck
	return decodeJSON(ctx, f)
}

// decodeJSON accepts either a JSON array of records or a stream of
// records, one per line.
func decodeJSON(ctx context.Context, r io.Reader) ([]model.RawActivity, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read json")
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return nil, eris.Wrap(err, "ingest: read opening token")
		}
	}

	var out []model.RawActivity
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var a model.RawActivity
		if err := dec.Decode(&a); err != nil {
			return nil, eris.Wrapf(err, "ingest: decode record %d", len(out)+1)
		}
		out = append(out, a)
	}

	if first == '[' {
		if _, err := dec.Token(); err != nil && err != io.EOF {
			return nil, eris.Wrap(err, "ingest: read closing token")
		}
	}
	return out, nil
}

func peekNonSpace(br *bufio.Reader) (rune, error) {
	for {
		r, _, err := br.ReadRune()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(r) {
			return r, br.UnreadRune()
		}
	}
}
