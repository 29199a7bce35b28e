package build

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// CacheFile is the encode cache's file name inside the export root.
const CacheFile = "srcbuild-cache.db"

// Cache records completed texture encodes so unchanged sources are skipped
// on later runs. A nil *Cache is valid and degrades to mtime checks alone.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the encode cache at path.
func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS encodes (
		src TEXT PRIMARY KEY,
		dst TEXT NOT NULL,
		src_mtime INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Record stores the encode of src into dst at src's current mtime.
func (c *Cache) Record(src, dst string) error {
	if c == nil {
		return nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	_, err = c.db.Exec(
		`INSERT INTO encodes (src, dst, src_mtime) VALUES (?, ?, ?)
		 ON CONFLICT(src) DO UPDATE SET dst = excluded.dst, src_mtime = excluded.src_mtime`,
		cacheKey(src), dst, info.ModTime().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record encode: %w", err)
	}
	return nil
}

// UpToDate reports whether dst is a current encode of src: dst must exist
// no older than src, and any recorded source mtime must match the current
// one. Without a cache entry the mtime comparison alone decides.
func (c *Cache) UpToDate(src, dst string) bool {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return false
	}
	if dstInfo.ModTime().Before(srcInfo.ModTime()) {
		return false
	}
	if c == nil {
		return true
	}
	var recorded int64
	row := c.db.QueryRow(`SELECT src_mtime FROM encodes WHERE src = ?`, cacheKey(src))
	switch err := row.Scan(&recorded); err {
	case nil:
		return recorded == srcInfo.ModTime().Unix()
	case sql.ErrNoRows:
		return true
	default:
		return false
	}
}

func cacheKey(src string) string {
	abs, err := filepath.Abs(src)
	if err != nil {
		abs = src
	}
	return strings.ToLower(filepath.ToSlash(abs))
}
