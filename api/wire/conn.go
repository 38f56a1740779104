// Package wire keeps the raw HTTP/1.x request head of every connection so the
// header fields of a request can be read back in the order the client sent
// them. net/http folds headers into a map and loses that order.
package wire

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/textproto"
	"sync"
)

// MaxPending bounds the bytes a connection may hold while waiting for a
// handler to claim its request head. Past it the connection stops recording
// and Fields reports false for the rest of its requests.
const MaxPending = 256 << 10

// Field is one header line, name in canonical MIME form.
type Field struct {
	Name  string
	Value string
}

// Listener wraps accepted connections in a recording Conn.
type Listener struct {
	net.Listener
}

// NewListener returns a Listener recording every connection accepted from l.
func NewListener(l net.Listener) *Listener {
	return &Listener{Listener: l}
}

// Accept implements net.Listener.
func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: c}, nil
}

// Conn records everything read from the underlying connection until a handler
// claims the request head. Body bytes of a claimed request, known length or
// chunked, are skipped instead of recorded.
type Conn struct {
	net.Conn

	mu       sync.Mutex
	pending  []byte
	skip     int64
	chunks   *chunkSkipper
	disabled bool
}

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.record(p[:n])
	}
	return n, err
}

func (c *Conn) record(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return
	}
	if c.chunks != nil {
		rest, done, ok := c.chunks.skip(b)
		if !ok {
			c.disable()
			return
		}
		if !done {
			return
		}
		c.chunks = nil
		b = rest
	}
	if c.skip > 0 {
		if int64(len(b)) <= c.skip {
			c.skip -= int64(len(b))
			return
		}
		b = b[c.skip:]
		c.skip = 0
	}
	if len(c.pending)+len(b) > MaxPending {
		c.disable()
		return
	}
	c.pending = append(c.pending, b...)
}

func (c *Conn) disable() {
	c.disabled = true
	c.pending = nil
	c.skip = 0
	c.chunks = nil
}

type connKey struct{}

// ConnContext is meant for http.Server.ConnContext; it makes the recording
// connection reachable from each request's context.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	if wc, ok := c.(*Conn); ok {
		return context.WithValue(ctx, connKey{}, wc)
	}
	return ctx
}

// Fields returns r's header fields in arrival order, duplicates included.
// It reports false when the request did not arrive over a recording HTTP/1.x
// connection or its head can no longer be found; callers fall back to
// r.Header then. Each request head can be claimed once.
func Fields(r *http.Request) ([]Field, bool) {
	c, ok := r.Context().Value(connKey{}).(*Conn)
	if !ok {
		return nil, false
	}
	if r.ProtoMajor != 1 {
		// h2c took over the connection, nothing left to record
		c.mu.Lock()
		c.disable()
		c.mu.Unlock()
		return nil, false
	}
	return c.claim(r)
}

func (c *Conn) claim(r *http.Request) ([]Field, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return nil, false
	}

	start := findRequestLine(c.pending, []byte(r.Method+" "+r.RequestURI+" "+r.Proto))
	if start < 0 {
		return nil, false
	}
	fields, end, ok := parseHead(c.pending[start:])
	if !ok {
		return nil, false
	}

	rest := c.pending[start+end:]
	if len(r.TransferEncoding) > 0 {
		s := &chunkSkipper{}
		after, done, ok := s.skip(rest)
		if !ok {
			c.disable()
			return fields, true
		}
		if done {
			rest = after
		} else {
			c.chunks = s
			rest = nil
		}
	} else if r.ContentLength > 0 {
		n := r.ContentLength
		if int64(len(rest)) >= n {
			rest = rest[n:]
		} else {
			c.skip = n - int64(len(rest))
			rest = nil
		}
	}
	c.pending = append(c.pending[:0], rest...)
	return fields, true
}

// findRequestLine returns the offset of line in b where it occupies a whole
// line, or -1.
func findRequestLine(b, line []byte) int {
	off := 0
	for {
		i := bytes.Index(b[off:], line)
		if i < 0 {
			return -1
		}
		i += off
		atStart := i == 0 || b[i-1] == '\n'
		after := b[i+len(line):]
		atEnd := bytes.HasPrefix(after, []byte("\r\n")) || bytes.HasPrefix(after, []byte("\n"))
		if atStart && atEnd {
			return i
		}
		off = i + 1
	}
}

// parseHead reads the header block that follows the request line at the start
// of b. end is the offset just past the terminating empty line.
func parseHead(b []byte) (fields []Field, end int, ok bool) {
	nl := bytes.IndexByte(b, '\n')
	if nl < 0 {
		return nil, 0, false
	}
	pos := nl + 1
	fields = []Field{}
	for {
		nl := bytes.IndexByte(b[pos:], '\n')
		if nl < 0 {
			return nil, 0, false
		}
		line := bytes.TrimSuffix(b[pos:pos+nl], []byte("\r"))
		pos += nl + 1
		if len(line) == 0 {
			return fields, pos, true
		}
		if (line[0] == ' ' || line[0] == '\t') && len(fields) > 0 {
			// obsolete line folding continues the previous value
			last := &fields[len(fields)-1]
			last.Value += " " + string(bytes.Trim(line, " \t"))
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		fields = append(fields, Field{
			Name:  textproto.CanonicalMIMEHeaderKey(string(line[:colon])),
			Value: string(bytes.Trim(line[colon+1:], " \t")),
		})
	}
}
