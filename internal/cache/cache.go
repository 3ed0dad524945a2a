// Package cache implements the session's content-addressable on-disk mirror.
//
// Storage layout (one root per session, recreated empty on connect and
// deleted wholesale on disconnect):
//
//	root/
//	  <address>/           (song bundle, extracted from an archive)
//	  _album_covers/
//	    <address>.png      (album art, raw bytes)
//	  library.cache        (song-library scan cache, written by the caller)
//	  scores.rec           (score records, consumed by the final upload)
//	  .tmp/                (in-flight downloads)
//
// An entry's existence alone marks completion; entries are never updated in
// place and there is no re-validation against the remote copy.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	coverDirName    = "_album_covers"
	tmpDirName      = ".tmp"
	libraryFileName = "library.cache"
	scoreFileName   = "scores.rec"
)

// Address computes the content address for a logical remote path. Identical
// paths always yield the same address; it is the sole dedup key and doubles
// as the local directory or file name.
func Address(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:])
}

// Cache maps logical remote paths to their local materializations.
type Cache struct {
	root string
}

// New creates a cache rooted at dir. The directory is not touched until
// Reset is called.
func New(dir string) *Cache {
	return &Cache{root: dir}
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Reset wipes any stale root left over from a prior run and recreates the
// empty session layout. A previous session's cache is never assumed valid.
func (c *Cache) Reset() error {
	if err := os.RemoveAll(c.root); err != nil {
		return fmt.Errorf("wipe cache root: %w", err)
	}
	for _, dir := range []string{c.root, c.CoverDir(), c.tmpDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Destroy deletes the entire cache root recursively.
func (c *Cache) Destroy() error {
	if err := os.RemoveAll(c.root); err != nil {
		return fmt.Errorf("delete cache root: %w", err)
	}
	return nil
}

// SongDir returns the directory a song bundle extracts into.
func (c *Cache) SongDir(address string) string {
	return filepath.Join(c.root, address)
}

// CoverDir returns the flat album art directory.
func (c *Cache) CoverDir() string {
	return filepath.Join(c.root, coverDirName)
}

// CoverPath returns the on-disk location for an album cover.
func (c *Cache) CoverPath(address string) string {
	return filepath.Join(c.CoverDir(), address+".png")
}

// HasSong reports whether a song bundle is already materialized.
func (c *Cache) HasSong(address string) bool {
	info, err := os.Stat(c.SongDir(address))
	return err == nil && info.IsDir()
}

// HasCover reports whether an album cover is already materialized.
func (c *Cache) HasCover(address string) bool {
	_, err := os.Stat(c.CoverPath(address))
	return err == nil
}

// LibraryPath returns the song-library cache file location.
func (c *Cache) LibraryPath() string {
	return filepath.Join(c.root, libraryFileName)
}

// ScorePath returns the score-record file location.
func (c *Cache) ScorePath() string {
	return filepath.Join(c.root, scoreFileName)
}

// TempFile returns a fresh path for an in-flight download.
func (c *Cache) TempFile(suffix string) string {
	return filepath.Join(c.tmpDir(), uuid.NewString()+suffix)
}

func (c *Cache) tmpDir() string {
	return filepath.Join(c.root, tmpDirName)
}
