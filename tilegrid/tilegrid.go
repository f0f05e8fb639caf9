// Package tilegrid implements the tile pyramid math for a grid defined
// by an extent, an upper-left origin, a tile size and an explicit
// resolution list (one entry per zoom level, coarsest first).
package tilegrid

import (
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/wmts2geotiff/proj"
)

type Grid struct {
	SRS         string
	Extent      geom.Extent // in SRS units
	TileWidth   int
	TileHeight  int
	Resolutions []float64
}

// TileRange is an inclusive range of tile indices at one level.
type TileRange struct {
	Level                  int
	MinX, MinY, MaxX, MaxY uint
}

// New builds a grid. The extent is given in extentSRS and projected
// into the grid SRS when the two differ.
func New(srs string, extent *geom.Extent, extentSRS string, tileWidth, tileHeight int, resolutions []float64) (*Grid, error) {
	if !proj.Supported(srs) {
		return nil, fmt.Errorf("unsupported grid SRS %q", srs)
	}
	if len(resolutions) == 0 {
		return nil, fmt.Errorf("grid needs at least one resolution")
	}
	if extentSRS == "" {
		extentSRS = srs
	}
	native := extent
	if extentSRS != srs {
		if !proj.IsGeographic(extentSRS) {
			return nil, fmt.Errorf("grid extent SRS %q is not WGS84", extentSRS)
		}
		var err error
		native, err = proj.ExtentToNative(srs, extent)
		if err != nil {
			return nil, err
		}
	}
	return &Grid{
		SRS:         srs,
		Extent:      *native,
		TileWidth:   tileWidth,
		TileHeight:  tileHeight,
		Resolutions: resolutions,
	}, nil
}

func (g *Grid) Levels() int {
	return len(g.Resolutions)
}

func (g *Grid) Res(level int) (float64, error) {
	if level < 0 || level >= len(g.Resolutions) {
		return 0, fmt.Errorf("level %d outside grid range [0,%d]", level, len(g.Resolutions)-1)
	}
	return g.Resolutions[level], nil
}

// LevelSize returns the number of tile columns and rows at a level.
func (g *Grid) LevelSize(level int) (cols, rows uint, err error) {
	res, err := g.Res(level)
	if err != nil {
		return 0, 0, err
	}
	cols = uint(math.Ceil(g.Extent.XSpan() / (res * float64(g.TileWidth))))
	rows = uint(math.Ceil(g.Extent.YSpan() / (res * float64(g.TileHeight))))
	if cols == 0 {
		cols = 1
	}
	if rows == 0 {
		rows = 1
	}
	return cols, rows, nil
}

// TileExtent returns the native extent of one tile. Row 0 is at the
// upper-left origin.
func (g *Grid) TileExtent(tile *slippy.Tile) (*geom.Extent, error) {
	res, err := g.Res(int(tile.Z))
	if err != nil {
		return nil, err
	}
	tileSpanX := res * float64(g.TileWidth)
	tileSpanY := res * float64(g.TileHeight)
	minX := g.Extent.MinX() + float64(tile.X)*tileSpanX
	maxY := g.Extent.MaxY() - float64(tile.Y)*tileSpanY
	return &geom.Extent{minX, maxY - tileSpanY, minX + tileSpanX, maxY}, nil
}

// TileRange computes the tiles at a level intersecting the given
// native extent, clamped to the grid. ok is false when the extent does
// not intersect the grid at all.
func (g *Grid) TileRange(level int, extent *geom.Extent) (rng TileRange, ok bool, err error) {
	res, err := g.Res(level)
	if err != nil {
		return rng, false, err
	}
	clipped, intersects := g.Extent.Intersect(extent)
	if !intersects {
		return rng, false, nil
	}
	cols, rows, err := g.LevelSize(level)
	if err != nil {
		return rng, false, err
	}
	tileSpanX := res * float64(g.TileWidth)
	tileSpanY := res * float64(g.TileHeight)

	// a hair of tolerance so extents ending exactly on a tile boundary
	// do not drag in the neighboring tile
	const eps = 1e-9
	minX := int(math.Floor((clipped.MinX() - g.Extent.MinX()) / tileSpanX))
	maxX := int(math.Floor((clipped.MaxX() - g.Extent.MinX() - eps) / tileSpanX))
	minY := int(math.Floor((g.Extent.MaxY() - clipped.MaxY()) / tileSpanY))
	maxY := int(math.Floor((g.Extent.MaxY() - clipped.MinY() - eps) / tileSpanY))

	rng = TileRange{
		Level: level,
		MinX:  clampTileIndex(minX, cols),
		MaxX:  clampTileIndex(maxX, cols),
		MinY:  clampTileIndex(minY, rows),
		MaxY:  clampTileIndex(maxY, rows),
	}
	return rng, true, nil
}

func clampTileIndex(i int, size uint) uint {
	if i < 0 {
		return 0
	}
	if uint(i) >= size {
		return size - 1
	}
	return uint(i)
}

func (r TileRange) Count() int64 {
	return int64(r.MaxX-r.MinX+1) * int64(r.MaxY-r.MinY+1)
}

// Tiles calls fn for every tile in the range, row by row, until fn
// returns false.
func (r TileRange) Tiles(fn func(*slippy.Tile) bool) {
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			if !fn(slippy.NewTile(uint(r.Level), x, y)) {
				return
			}
		}
	}
}
