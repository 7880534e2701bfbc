package tail

import (
	"context"
	"errors"
	"io"
)

// Reader is a finite line source over an io.Reader, used to replay
// existing logs. It returns io.EOF once the input is exhausted. Lines over
// the size cap are skipped, not fatal.
type Reader struct {
	lines *lineReader
	eof   bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{lines: newLineReader("replay", r, maxLineBytes)}
}

// NextLine returns the next line or io.EOF.
func (r *Reader) NextLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.eof {
		return "", io.EOF
	}

	line, _, err := r.lines.next()
	if err == nil {
		return line, nil
	}
	if !errors.Is(err, io.EOF) {
		return "", err
	}

	r.eof = true
	if last, ok := r.lines.flush(); ok {
		return last, nil
	}
	return "", io.EOF
}
