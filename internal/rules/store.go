package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"reembed/internal/services"
)

// snapshot is the committed (generation, compiled) pair.
type snapshot struct {
	generation uint64
	compiled   *Compiled
}

// Store owns the rule file and serves compiled views to many readers.
//
// Writers serialize on mu, which guards both the file and the committed pair.
// generation mirrors the committed generation and is published while mu is
// still held, so a reader that sees the counter match its cache can skip the
// lock entirely.
type Store struct {
	path string

	mu        sync.Mutex
	file      *os.File
	committed snapshot

	generation atomic.Uint64
	readers    sync.Pool
}

// Open loads the rule file at path, creating it with the default document when
// missing or empty, and rewrites it in canonical form.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create rules directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		cfg, err = Parse(string(data))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	compiled, err := Compile(cfg)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	encoded, err := Marshal(cfg)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	if err := rewrite(file, encoded); err != nil {
		file.Close()
		return nil, fmt.Errorf("write rules file: %w", err)
	}

	s := &Store{path: path, file: file}
	s.committed = snapshot{generation: 1, compiled: compiled}
	s.generation.Store(1)
	s.readers.New = func() any { return s.Reader() }
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Generation returns the most recently committed generation.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// Edit replaces the committed configuration with raw. Parsing and pattern
// compilation happen before the store is touched; on any failure the
// previous configuration stays in effect.
func (s *Store) Edit(raw string) error {
	cfg, err := Parse(raw)
	if err != nil {
		return err
	}
	compiled, err := Compile(cfg)
	if err != nil {
		return err
	}
	encoded, err := Marshal(cfg)
	if err != nil {
		return services.Wrap(services.ErrValidation, "rules", "encode", "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.New("rules store is closed")
	}
	previous, err := Marshal(s.committed.compiled.Config())
	if err != nil {
		return fmt.Errorf("encode committed rules: %w", err)
	}
	if err := rewrite(s.file, encoded); err != nil {
		if restoreErr := rewrite(s.file, previous); restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("restore previous rules: %w", restoreErr))
		}
		return fmt.Errorf("write rules file: %w", err)
	}

	next := s.committed.generation + 1
	s.committed = snapshot{generation: next, compiled: compiled}
	s.generation.Store(next)
	return nil
}

// Dump returns the current file contents.
func (s *Store) Dump() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return "", errors.New("rules store is closed")
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek rules file: %w", err)
	}
	data, err := io.ReadAll(s.file)
	if err != nil {
		return "", fmt.Errorf("read rules file: %w", err)
	}
	return string(data), nil
}

// Read returns the current compiled view using a pooled Reader, so callers
// without a long-lived worker still avoid the lock when nothing changed.
func (s *Store) Read() *Compiled {
	r := s.readers.Get().(*Reader)
	compiled := r.Read()
	s.readers.Put(r)
	return compiled
}

// Close releases the backing file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Store) load() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Reader caches the last pair it observed. A Reader must not be shared
// between goroutines; create one per worker with Store.Reader.
type Reader struct {
	store  *Store
	cached snapshot
}

// Reader returns a new private cache over s.
func (s *Store) Reader() *Reader {
	return &Reader{store: s}
}

// Read returns the committed view. It only takes the store lock when the
// generation moved since the last call, and never returns a generation older
// than one it has already returned.
func (r *Reader) Read() *Compiled {
	return r.ReadGeneration().Compiled
}

// Generation returns the generation of the last view this Reader returned.
func (r *Reader) Generation() uint64 {
	return r.cached.generation
}

// ReadGeneration is Read plus the generation stamp of the returned view.
func (r *Reader) ReadGeneration() Snapshot {
	for {
		current := r.store.generation.Load()
		if r.cached.compiled != nil && r.cached.generation == current {
			return Snapshot{Generation: current, Compiled: r.cached.compiled}
		}
		r.cached = r.store.load()
		if r.store.generation.Load() == r.cached.generation {
			return Snapshot{Generation: r.cached.generation, Compiled: r.cached.compiled}
		}
	}
}

// Snapshot is a committed view with its generation.
type Snapshot struct {
	Generation uint64
	Compiled   *Compiled
}

func rewrite(file *os.File, data []byte) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		return err
	}
	return file.Sync()
}
