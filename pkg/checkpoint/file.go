package checkpoint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
)

// FileStore is a MemoryStore that appends every save to a msgpack log per
// collection under dir. Logs are replayed and compacted on open.
type FileStore struct {
	*MemoryStore
	dir string

	mu    sync.Mutex
	files []*os.File
}

// OpenFileStore replays the logs in dir, creating it when missing.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create data dir: %w", err)
	}
	s := &FileStore{MemoryStore: NewMemoryStore(), dir: dir}
	if err := errors.Join(
		attach(s, "sessions", s.sessions),
		attach(s, "balances", s.balances),
		attach(s, "trades", s.trades),
		attach(s, "my_trades", s.myTrades),
		attach(s, "periods", s.periods),
		attach(s, "markers", s.markers),
	); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

// Close flushes and closes every log.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, f := range s.files {
		if err := f.Sync(); err != nil {
			errs = append(errs, err)
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = nil
	return errors.Join(errs...)
}

func attach[T any](s *FileStore, name string, t *table[T]) error {
	path := filepath.Join(s.dir, name+".msgpack")
	if err := replay(path, t); err != nil {
		return err
	}
	if err := compact(path, t.all()); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("checkpoint: open %s: %w", name, err)
	}
	s.mu.Lock()
	s.files = append(s.files, f)
	s.mu.Unlock()

	enc := msgpack.NewEncoder(f)
	t.onSave = func(rec T) error {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("checkpoint: append %s: %w", name, err)
		}
		return nil
	}
	return nil
}

func replay[T any](path string, t *table[T]) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	defer f.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(f))
	n := 0
	for {
		var rec T
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// A torn tail from a crash mid-append. Keep what decoded; the
			// compaction that follows rewrites the log without it.
			logx.Errorf("checkpoint: %s: dropping unreadable tail after %d records: %v", path, n, err)
			return nil
		}
		t.load(rec)
		n++
	}
}

func compact[T any](path string, rows []T) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("checkpoint: compact %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	enc := msgpack.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return fmt.Errorf("checkpoint: compact %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("checkpoint: compact %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("checkpoint: compact %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
