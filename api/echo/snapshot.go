// Package echo turns an inbound request into an immutable Snapshot and renders
// it back as JSON or HTML.
package echo

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/fnproject/httpecho/api/wire"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Header is a single (name, value) pair. It marshals as a two element array.
type Header [2]string

func (h Header) Name() string  { return h[0] }
func (h Header) Value() string { return h[1] }

// Snapshot is what the server saw for one request.
type Snapshot struct {
	Method  string   `json:"method"`
	URL     string   `json:"url"`
	Headers []Header `json:"headers"`
	Body    string   `json:"body"`
}

// Capture reads r's body to the end and builds its Snapshot. Header fields
// keep their arrival order when r came over a recording wire connection. Body
// and header bytes that are not valid UTF-8 are replaced with U+FFFD. The only
// error is a failed body read, which means the connection is gone.
func Capture(r *http.Request) (Snapshot, error) {
	// the head is claimed before the body is read so a recording connection
	// skips the body instead of buffering it
	headers := orderedHeaders(r)

	var raw []byte
	if r.Body != nil {
		var err error
		raw, err = io.ReadAll(r.Body)
		if err != nil {
			return Snapshot{}, fmt.Errorf("reading request body: %w", err)
		}
	}

	return Snapshot{
		Method:  r.Method,
		URL:     RequestURL(r),
		Headers: headers,
		Body:    decodeBody(raw),
	}, nil
}

// RequestURL is the path and query of r, without scheme or host.
func RequestURL(r *http.Request) string {
	p := r.URL.EscapedPath()
	if p == "" {
		p = "/"
	}
	if r.URL.RawQuery != "" {
		p += "?" + r.URL.RawQuery
	}
	return p
}

func orderedHeaders(r *http.Request) []Header {
	if fields, ok := wire.Fields(r); ok {
		headers := make([]Header, 0, len(fields))
		for _, f := range fields {
			headers = append(headers, Header{decodeField(f.Name), decodeField(f.Value)})
		}
		return headers
	}

	// no wire order available: Host first, then keys sorted, values in order
	headers := make([]Header, 0, len(r.Header)+1)
	if r.Host != "" {
		headers = append(headers, Header{"Host", decodeField(r.Host)})
	}
	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range r.Header[k] {
			headers = append(headers, Header{decodeField(k), decodeField(v)})
		}
	}
	return headers
}

// decodeBody decodes b as UTF-8, dropping a leading byte order mark and
// replacing invalid sequences.
func decodeBody(b []byte) string {
	return decode(unicode.UTF8BOM.NewDecoder(), b)
}

func decodeField(s string) string {
	return decode(unicode.UTF8.NewDecoder(), []byte(s))
}

func decode(d *encoding.Decoder, b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, err := d.Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}
