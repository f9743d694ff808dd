package core

// input.go prepares uploaded dataset bytes for the decoder.
//
// Uploads may come from tools that write a UTF-8 BOM or a legacy charset
// (GBK exports are common). NewInputReader normalizes both to UTF-8 without
// buffering the whole file, and CountingReader tracks bytes consumed so runs
// can log how much input they read.

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultEncoding is used when an upload does not name its charset.
const DefaultEncoding = "utf-8"

// ErrUnsupportedEncoding is returned for a charset label x/text does not know.
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

// LookupEncoding resolves a charset label such as "utf-8", "gbk" or
// "windows-1251". An empty label means UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedEncoding, name)
	}
	return enc, nil
}

// NewInputReader wraps r so that reads yield UTF-8. A leading byte order mark
// is consumed, and invalid UTF-8 in UTF-8 input is replaced with U+FFFD.
func NewInputReader(r io.Reader, encodingName string) (io.Reader, error) {
	enc, err := LookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader creates a counting reader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}
