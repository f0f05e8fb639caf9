package tilegrid

import (
	"testing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a WGS84 world grid: level 0 has 2x1 tiles of 256px at 0.703125
// degrees per pixel, every next level halves the cell size.
func worldGrid(t *testing.T, levels int) *Grid {
	t.Helper()
	resolutions := make([]float64, levels)
	res := 0.703125
	for i := range resolutions {
		resolutions[i] = res
		res /= 2
	}
	grid, err := New("EPSG:4326", &geom.Extent{-180, -90, 180, 90}, "EPSG:4326", 256, 256, resolutions)
	require.NoError(t, err)
	return grid
}

func TestNewRejectsUnknownSRS(t *testing.T) {
	_, err := New("EPSG:28992", &geom.Extent{0, 0, 1, 1}, "", 256, 256, []float64{1})
	require.Error(t, err)
}

func TestNewProjectsExtent(t *testing.T) {
	grid, err := New("EPSG:3857", &geom.Extent{-180, -85.06, 180, 85.06}, "EPSG:4326", 256, 256, []float64{156543.03392804097})
	require.NoError(t, err)
	assert.InDelta(t, -20037508.342789244, grid.Extent.MinX(), 1e-3)
	assert.InDelta(t, 20037508.342789244, grid.Extent.MaxX(), 1e-3)
}

func TestLevelSize(t *testing.T) {
	grid := worldGrid(t, 3)

	cols, rows, err := grid.LevelSize(0)
	require.NoError(t, err)
	assert.Equal(t, uint(2), cols)
	assert.Equal(t, uint(1), rows)

	cols, rows, err = grid.LevelSize(2)
	require.NoError(t, err)
	assert.Equal(t, uint(8), cols)
	assert.Equal(t, uint(4), rows)

	_, _, err = grid.LevelSize(3)
	require.Error(t, err)
}

func TestTileExtent(t *testing.T) {
	grid := worldGrid(t, 2)

	ext, err := grid.TileExtent(slippy.NewTile(1, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, -180, ext.MinX(), 1e-9)
	assert.InDelta(t, 0, ext.MinY(), 1e-9)
	assert.InDelta(t, -90, ext.MaxX(), 1e-9)
	assert.InDelta(t, 90, ext.MaxY(), 1e-9)

	ext, err = grid.TileExtent(slippy.NewTile(1, 3, 1))
	require.NoError(t, err)
	assert.InDelta(t, 90, ext.MinX(), 1e-9)
	assert.InDelta(t, -90, ext.MinY(), 1e-9)
	assert.InDelta(t, 180, ext.MaxX(), 1e-9)
	assert.InDelta(t, 0, ext.MaxY(), 1e-9)
}

func TestTileRange(t *testing.T) {
	grid := worldGrid(t, 2)

	rng, ok, err := grid.TileRange(1, &geom.Extent{-179, 1, -91, 89})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TileRange{Level: 1, MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}, rng)
	assert.Equal(t, int64(1), rng.Count())

	// an extent ending exactly on a tile boundary does not drag in
	// the neighboring tile
	rng, ok, err = grid.TileRange(1, &geom.Extent{-180, 0, -90, 90})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TileRange{Level: 1, MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}, rng)

	// spanning all four upper tiles
	rng, ok, err = grid.TileRange(1, &geom.Extent{-179, 1, 179, 89})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TileRange{Level: 1, MinX: 0, MinY: 0, MaxX: 3, MaxY: 0}, rng)
	assert.Equal(t, int64(4), rng.Count())
}

func TestTileRangeDisjoint(t *testing.T) {
	grid, err := New("EPSG:4326", &geom.Extent{0, 0, 10, 10}, "", 256, 256, []float64{10.0 / 256})
	require.NoError(t, err)

	_, ok, err := grid.TileRange(0, &geom.Extent{20, 20, 30, 30})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTilesIteration(t *testing.T) {
	rng := TileRange{Level: 2, MinX: 1, MinY: 2, MaxX: 2, MaxY: 3}
	var got []slippy.Tile
	rng.Tiles(func(tile *slippy.Tile) bool {
		got = append(got, *tile)
		return true
	})
	require.Len(t, got, 4)
	assert.Equal(t, slippy.Tile{Z: 2, X: 1, Y: 2}, got[0])
	assert.Equal(t, slippy.Tile{Z: 2, X: 2, Y: 3}, got[3])
}
