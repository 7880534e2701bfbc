// Package tail follows an append-only log file line by line.
//
// DESIGN: File is a pull-based source for the watcher engine:
//   - Open waits (bounded) for the file to exist and hold data
//   - NextLine returns complete lines only; a partial trailing line is
//     buffered until its newline is written
//   - when no line is ready it returns watcher.ErrPending and checks for
//     rotation (path now names another file) and truncation (file shrank)
//   - Wake delivers fsnotify write/create/rename events so the engine can
//     stop idling early; without fsnotify the engine simply polls
package tail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/compresr/pool-watcher/internal/watcher"
)

// ErrNotReady is returned by Open when the file did not become readable in time.
var ErrNotReady = errors.New("log file not ready")

// Config contains tailing settings.
type Config struct {
	Path                string        `yaml:"path"`                   // log file to follow
	ReadyTimeout        time.Duration `yaml:"ready_timeout"`          // max wait for the file to appear with data
	ReadyPollInterval   time.Duration `yaml:"ready_poll_interval"`    // readiness check period
	IdlePollInterval    time.Duration `yaml:"idle_poll_interval"`     // first idle sleep when no data
	MaxIdlePollInterval time.Duration `yaml:"max_idle_poll_interval"` // idle sleep ceiling
	StartAtEnd          bool          `yaml:"start_at_end"`           // skip existing content
}

// File follows one log file.
type File struct {
	path   string
	f      *os.File
	info   os.FileInfo
	lines  *lineReader
	offset int64

	watcher *fsnotify.Watcher
	wake    chan struct{}
	done    chan struct{}
}

// Open waits for cfg.Path to exist and be non-empty, then opens it.
func Open(ctx context.Context, cfg Config) (*File, error) {
	if cfg.Path == "" {
		return nil, errors.New("tail: path is required")
	}
	if err := waitReady(ctx, cfg); err != nil {
		return nil, err
	}

	t := &File{
		path: cfg.Path,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if err := t.reopen(cfg.StartAtEnd); err != nil {
		return nil, err
	}
	t.watch()

	log.Info().
		Str("path", cfg.Path).
		Int64("offset", t.offset).
		Bool("fsnotify", t.watcher != nil).
		Msg("tailing log file")
	return t, nil
}

func waitReady(ctx context.Context, cfg Config) error {
	poll := cfg.ReadyPollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	start := time.Now()

	for {
		if info, err := os.Stat(cfg.Path); err == nil && info.Size() > 0 {
			log.Info().Str("path", cfg.Path).Int64("bytes", info.Size()).Msg("log file ready")
			return nil
		}

		elapsed := time.Since(start)
		if elapsed >= cfg.ReadyTimeout {
			return fmt.Errorf("%w: %s after %s", ErrNotReady, cfg.Path, cfg.ReadyTimeout)
		}
		log.Info().
			Str("path", cfg.Path).
			Dur("elapsed", elapsed.Round(time.Second)).
			Dur("max_wait", cfg.ReadyTimeout).
			Msg("waiting for log file")

		wait := min(poll, cfg.ReadyTimeout-elapsed)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// reopen (re)opens the path, at its end when atEnd is set.
func (t *File) reopen(atEnd bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", t.path, err)
	}

	var offset int64
	if atEnd {
		if offset, err = f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return fmt.Errorf("seek %s: %w", t.path, err)
		}
	}

	if t.f != nil {
		t.f.Close()
	}
	t.f = f
	t.info = info
	t.offset = offset
	if t.lines == nil {
		t.lines = newLineReader(t.path, f, maxLineBytes)
	} else {
		t.lines.reset(f)
	}
	return nil
}

// watch subscribes to changes in the log's directory so rotations that
// replace the file are seen too.
func (t *File) watch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("fsnotify unavailable, falling back to polling")
		return
	}
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		w.Close()
		log.Warn().Err(err).Msg("fsnotify watch failed, falling back to polling")
		return
	}
	t.watcher = w

	name := filepath.Clean(t.path)
	go func() {
		for {
			select {
			case <-t.done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name {
					continue
				}
				select {
				case t.wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Debug().Err(err).Msg("fsnotify error")
			}
		}
	}()
}

// Wake signals that the log file changed.
func (t *File) Wake() <-chan struct{} { return t.wake }

// NextLine returns the next complete line without its line terminator.
func (t *File) NextLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	line, n, err := t.lines.next()
	t.offset += int64(n)
	if err == nil {
		return line, nil
	}
	if !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", t.path, err)
	}

	if err := t.checkRotation(); err != nil {
		return "", err
	}
	return "", watcher.ErrPending
}

// checkRotation reopens the path when it was replaced and rewinds when the
// file was truncated. A missing path is tolerated: rotation may be midway.
func (t *File) checkRotation() error {
	info, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", t.path, err)
	}

	if !os.SameFile(info, t.info) {
		log.Info().Str("path", t.path).Msg("log file rotated, reopening")
		return t.reopen(false)
	}

	if info.Size() < t.offset {
		log.Info().Str("path", t.path).Int64("size", info.Size()).Int64("offset", t.offset).Msg("log file truncated, rewinding")
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek %s: %w", t.path, err)
		}
		t.offset = 0
		t.lines.reset(t.f)
	}
	return nil
}

// Close stops watching and closes the file.
func (t *File) Close() error {
	select {
	case <-t.done:
		return nil
	default:
		close(t.done)
	}
	if t.watcher != nil {
		t.watcher.Close()
	}
	return t.f.Close()
}
