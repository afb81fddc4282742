package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrMalformed marks a source file that cannot be loaded as-is.
var ErrMalformed = eris.New("ingest: malformed source file")

// CSVOptions configures source decoding.
type CSVOptions struct {
	Delimiter rune   // default ','
	Encoding  string // WHATWG label, default "utf-8"
}

// Batch is a fully parsed source file.
type Batch struct {
	Header []string
	Rows   [][]string
}

// ParseCSV decodes data with the configured encoding and parses it into a
// header and rows. A leading byte order mark is stripped. Empty files,
// blank or duplicate header names, rows whose arity differs from the header
// and undecodable text are reported as ErrMalformed.
func ParseCSV(data []byte, opts CSVOptions) (*Batch, error) {
	dec, utf8Source, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(transform.NewReader(bytes.NewReader(data), dec))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, eris.Wrap(ErrMalformed, "empty file")
	}
	if err != nil {
		return nil, malformed(err)
	}
	if err := validateHeader(header, utf8Source); err != nil {
		return nil, err
	}

	batch := &Batch{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}
		if utf8Source {
			for _, field := range record {
				if !utf8.ValidString(field) {
					line, _ := reader.FieldPos(0)
					return nil, eris.Wrapf(ErrMalformed, "line %d: invalid UTF-8", line)
				}
			}
		}
		batch.Rows = append(batch.Rows, record)
	}
	return batch, nil
}

func validateHeader(header []string, utf8Source bool) error {
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		header[i] = name
		if name == "" {
			return eris.Wrapf(ErrMalformed, "header column %d is blank", i+1)
		}
		if utf8Source && !utf8.ValidString(name) {
			return eris.Wrapf(ErrMalformed, "header column %d: invalid UTF-8", i+1)
		}
		if seen[name] {
			return eris.Wrapf(ErrMalformed, "duplicate header column %q", name)
		}
		seen[name] = true
	}
	return nil
}

// malformed converts csv parse errors (arity mismatch, bare quotes) and
// decoder failures into ErrMalformed. The input is already in memory, so
// every read error describes the content.
func malformed(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return eris.Wrapf(ErrMalformed, "line %d: %v", pe.Line, pe.Err)
	}
	return eris.Wrapf(ErrMalformed, "csv: read row: %v", err)
}

// decoder resolves a WHATWG encoding label. UTF-8 input passes through
// untouched so invalid sequences can be detected rather than replaced.
func decoder(label string) (transform.Transformer, bool, error) {
	if label == "" {
		label = "utf-8"
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, false, eris.Wrapf(err, "ingest: unknown encoding %q", label)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return unicode.BOMOverride(transform.Nop), true, nil
	}
	return unicode.BOMOverride(enc.NewDecoder()), false, nil
}
