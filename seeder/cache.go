package seeder

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-spatial/geom/slippy"
)

// DefaultCacheRoot is created relative to the working directory.
const DefaultCacheRoot = "cache_data"

// CacheDir is the directory holding one cache's tiles for one SRS:
// <root>/<cache>_<srs-without-colon>/
func CacheDir(root, cacheName, srs string) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s", cacheName, strings.ReplaceAll(srs, ":", "")))
}

// LevelDir is the directory for one zoom level within a cache dir.
func LevelDir(cacheDir string, level int) string {
	return filepath.Join(cacheDir, fmt.Sprintf("%d", level))
}

// TilePath is the on-disk location of one tile: <z>/<x>/<y>.<ext>
func TilePath(cacheDir string, tile *slippy.Tile, extension string) string {
	return filepath.Join(
		LevelDir(cacheDir, int(tile.Z)),
		fmt.Sprintf("%d", tile.X),
		fmt.Sprintf("%d.%s", tile.Y, extension),
	)
}
