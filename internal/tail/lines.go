package tail

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxLineBytes bounds a single line, terminator included.
const maxLineBytes = 1 << 20

// lineReader assembles newline-terminated lines from a bufio.Reader. A line
// longer than max is dropped whole, through its newline, however the bytes
// arrive. Unterminated bytes stay buffered across io.EOF.
type lineReader struct {
	source     string
	max        int
	r          *bufio.Reader
	buf        []byte
	discarding bool
	dropped    int
}

func newLineReader(source string, r io.Reader, max int) *lineReader {
	return &lineReader{source: source, max: max, r: bufio.NewReader(r)}
}

// reset points the reader at r and forgets any buffered or discarded line.
func (lr *lineReader) reset(r io.Reader) {
	lr.r.Reset(r)
	lr.buf = lr.buf[:0]
	lr.discarding = false
	lr.dropped = 0
}

// next returns the next complete line without its terminator and the number
// of bytes consumed from the underlying reader. It returns io.EOF once the
// reader is dry; n still counts what was consumed before that.
func (lr *lineReader) next() (line string, n int, err error) {
	for {
		frag, err := lr.r.ReadSlice('\n')
		n += len(frag)

		if !lr.discarding && len(lr.buf)+len(frag) > lr.max {
			lr.discarding = true
			lr.dropped = len(lr.buf)
			lr.buf = lr.buf[:0]
		}
		if lr.discarding {
			lr.dropped += len(frag)
		} else {
			lr.buf = append(lr.buf, frag...)
		}

		switch {
		case err == nil:
			if lr.discarding {
				lr.skip()
				continue
			}
			line = strings.TrimRight(string(lr.buf), "\r\n")
			lr.buf = lr.buf[:0]
			return line, n, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return "", n, err
		}
	}
}

// flush returns a final unterminated line, used once the input is finite
// and exhausted.
func (lr *lineReader) flush() (string, bool) {
	if lr.discarding {
		lr.skip()
		return "", false
	}
	if len(lr.buf) == 0 {
		return "", false
	}
	line := strings.TrimRight(string(lr.buf), "\r\n")
	lr.buf = lr.buf[:0]
	return line, true
}

func (lr *lineReader) skip() {
	log.Warn().
		Str("source", lr.source).
		Int("bytes", lr.dropped).
		Int("max_bytes", lr.max).
		Msg("dropping oversized line")
	lr.discarding = false
	lr.dropped = 0
}
