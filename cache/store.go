package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/xid"
)

const (
	DirName    = "meter"
	subDirName = "usage"
	filePrefix = "cache_"
)

// DefaultDir returns the platform cache directory for meter entries.
func DefaultDir() (string, error) {
	cacheDir := xdg.CacheHome
	if cacheDir == "" {
		userCacheDir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("cache dir: %w", err)
		}
		cacheDir = userCacheDir
	}
	return filepath.Join(cacheDir, DirName, subDirName), nil
}

// Store keeps one rendered output per request signature. An entry's age is
// the modification time of its file, so a fresh entry must never be
// rewritten or its lifetime would be extended.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file backing the entry for sig.
func (s *Store) Path(sig string) string {
	return filepath.Join(s.dir, filePrefix+sig)
}

// Lookup returns the cached text for sig if the entry is still fresh at now.
// A ttlMinutes of zero disables the cache.
func (s *Store) Lookup(sig string, ttlMinutes int, now time.Time) (string, bool, error) {
	path := s.Path(sig)

	fresh, err := isFresh(path, ttlMinutes, now)
	if err != nil || !fresh {
		return "", false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read cache %s: %w", path, err)
	}
	return string(data), true, nil
}

// Put writes text for sig unless a fresh entry already exists. It reports
// whether a write happened. The write goes through a temporary file and a
// rename so readers never observe a partial entry.
func (s *Store) Put(sig, text string, ttlMinutes int, now time.Time) (bool, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return false, fmt.Errorf("create cache dir %s: %w", s.dir, err)
	}

	path := s.Path(sig)
	fresh, err := isFresh(path, ttlMinutes, now)
	if err != nil {
		return false, err
	}
	if fresh {
		return false, nil
	}

	tmp := fmt.Sprintf("%s.%s.tmp", path, xid.New().String())
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return false, fmt.Errorf("write cache %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("write cache %s: %w", path, err)
	}
	return true, nil
}

// isFresh reports whether path exists and mtime + ttl is not before now.
// The boundary is inclusive.
func isFresh(path string, ttlMinutes int, now time.Time) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat cache %s: %w", path, err)
	}
	if ttlMinutes <= 0 {
		return false, nil
	}

	expires := info.ModTime().Add(time.Duration(ttlMinutes) * time.Minute)
	return !now.After(expires), nil
}
