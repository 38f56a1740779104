package wire

import (
	"bytes"
	"strconv"
)

// maxChunkLine bounds a chunk size or trailer line.
const maxChunkLine = 4096

const (
	chunkSize = iota
	chunkData
	chunkDataEnd
	chunkTrailer
)

// chunkSkipper walks the framing of a chunked request body without keeping
// any of it, so the next request head on the connection can be found.
type chunkSkipper struct {
	state     int
	remaining int64
	line      []byte
}

// skip consumes body bytes from b. Once the terminating chunk and trailers
// are through, done is true and rest holds whatever follows the body. ok is
// false when the framing is broken.
func (s *chunkSkipper) skip(b []byte) (rest []byte, done, ok bool) {
	for len(b) > 0 {
		if s.state == chunkData {
			if int64(len(b)) < s.remaining {
				s.remaining -= int64(len(b))
				return nil, false, true
			}
			b = b[s.remaining:]
			s.remaining = 0
			s.state = chunkDataEnd
			continue
		}

		nl := bytes.IndexByte(b, '\n')
		if nl < 0 {
			s.line = append(s.line, b...)
			return nil, false, len(s.line) <= maxChunkLine
		}
		s.line = append(s.line, b[:nl]...)
		b = b[nl+1:]
		if len(s.line) > maxChunkLine {
			return nil, false, false
		}
		line := bytes.TrimSuffix(s.line, []byte("\r"))
		s.line = s.line[:0]

		switch s.state {
		case chunkSize:
			if i := bytes.IndexByte(line, ';'); i >= 0 {
				line = line[:i]
			}
			n, err := strconv.ParseInt(string(bytes.TrimSpace(line)), 16, 64)
			if err != nil || n < 0 {
				return nil, false, false
			}
			if n == 0 {
				s.state = chunkTrailer
			} else {
				s.remaining = n
				s.state = chunkData
			}
		case chunkDataEnd:
			if len(line) != 0 {
				return nil, false, false
			}
			s.state = chunkSize
		case chunkTrailer:
			if len(line) == 0 {
				return b, true, true
			}
		}
	}
	return nil, false, true
}
