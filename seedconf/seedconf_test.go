package seedconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/wmts2geotiff/coverage"
	"github.com/pdok/wmts2geotiff/wmts"
	"github.com/pdok/wmts2geotiff/yamlhelp"
)

func testLayerMetadata() *wmts.LayerMetadata {
	return &wmts.LayerMetadata{
		LayerName:       "lufo",
		Title:           "Luchtfoto Actueel",
		TileMatrixSetID: "EPSG:3857",
		Format:          "image/png",
		FormatExtension: "png",
		Resolutions:     []float64{156543.033928, 78271.516964, 39135.758482, 19567.879241},
		WGS84BBox:       &geom.Extent{-180, -85.06, 180, 85.06},
	}
}

func TestSynthesize(t *testing.T) {
	meta := testLayerMetadata()
	userBBox := [4]float64{4.8, 52.3, 5.0, 52.4}

	doc, err := Synthesize(meta, "https://example.com/wmts", userBBox, 2, "EPSG:3857")
	require.NoError(t, err)

	require.Len(t, doc.Layers, 1)
	assert.Equal(t, "lufo", doc.Layers[0].Name)
	assert.Equal(t, []string{"lufo_cache"}, doc.Layers[0].Sources)

	cache, ok := yamlhelp.Get(doc.Caches, "lufo_cache")
	require.True(t, ok)
	assert.Equal(t, []string{"EPSG:3857"}, cache.Grids)
	assert.Equal(t, []string{"lufo_source"}, cache.Sources)

	src, ok := yamlhelp.Get(doc.Sources, "lufo_source")
	require.True(t, ok)
	assert.Equal(t, "tile", src.Type)
	assert.Equal(t, "https://example.com/wmts", src.URL)
	assert.Equal(t, "png", src.Extension)
	require.NotNil(t, src.Coverage)
	assert.Equal(t, userBBox, src.Coverage.BBox)
	assert.Equal(t, "EPSG:4326", src.Coverage.SRS)

	grid, ok := yamlhelp.Get(doc.Grids, "EPSG:3857")
	require.True(t, ok)
	assert.Equal(t, "EPSG:3857", grid.SRS)
	assert.Equal(t, "EPSG:4326", grid.BBoxSRS)
	// resolutions stop at the requested zoom level
	assert.Equal(t, meta.Resolutions[:3], grid.Resolutions)
}

func TestSynthesizeZoomOutOfRange(t *testing.T) {
	meta := testLayerMetadata()
	_, err := Synthesize(meta, "https://example.com/wmts", [4]float64{0, 0, 1, 1}, 4, "EPSG:3857")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zoom level 4")

	_, err = Synthesize(meta, "https://example.com/wmts", [4]float64{0, 0, 1, 1}, -1, "EPSG:3857")
	require.Error(t, err)
}

func TestSynthesizeUnsupportedSRS(t *testing.T) {
	meta := testLayerMetadata()
	_, err := Synthesize(meta, "https://example.com/wmts", [4]float64{0, 0, 1, 1}, 1, "EPSG:28992")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EPSG:28992")
}

func TestWriteLoadRoundTrip(t *testing.T) {
	meta := testLayerMetadata()
	doc, err := Synthesize(meta, "https://example.com/wmts", [4]float64{4.8, 52.3, 5.0, 52.4}, 1, "EPSG:3857")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mapproxy_config.yaml")
	require.NoError(t, Write(doc, path))

	cfg, err := Load(path, SeedMode)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)

	// the reloaded document carries the same structure
	assert.Equal(t, doc.Layers, cfg.Doc.Layers)
	src, ok := yamlhelp.Get(cfg.Doc.Sources, "lufo_source")
	require.True(t, ok)
	assert.Equal(t, "lufo", src.WMTSLayer)

	grid, ok := yamlhelp.Get(cfg.Doc.Grids, "EPSG:3857")
	require.True(t, ok)
	assert.Equal(t, "EPSG:3857", grid.SRS)
	assert.Equal(t, []int{256, 256}, grid.TileSize)
	assert.Equal(t, meta.Resolutions[:2], grid.Resolutions)

	// the initial seed coverage comes from the source section
	require.False(t, cfg.Coverage.Empty())
	assert.Equal(t, &geom.Extent{4.8, 52.3, 5.0, 52.4}, cfg.Coverage.Extent)
	assert.Equal(t, "EPSG:4326", cfg.Coverage.SRS)
}

func TestLoadRejectsUnknownReference(t *testing.T) {
	const broken = `services:
  wmts:
    md:
      title: test
layers:
  - name: lufo
    title: lufo
    sources: [lufo_cache]
caches:
  lufo_cache:
    grids: [missing_grid]
    sources: [lufo_source]
sources:
  lufo_source:
    type: tile
    grid: missing_grid
    url: https://example.com/wmts
    extension: png
    wmts_layer: lufo
    wmts_tile_matrix_set: missing_grid
grids:
  some_other_grid:
    srs: EPSG:3857
    bbox: [-180, -85.06, 180, 85.06]
    bbox_srs: EPSG:4326
    resolutions: [156543.033928]
`
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	_, err := Load(path, SeedMode)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_grid")
}

func TestValidateAppliesGridDefaults(t *testing.T) {
	doc := &Document{
		Layers: []LayerSection{{Name: "l", Sources: []string{"c"}}},
		Caches: yamlhelp.Single("c", CacheSection{Grids: []string{"g"}, Sources: []string{"s"}}),
		Sources: yamlhelp.Single("s", SourceSection{
			Type: "tile", Grid: "g", URL: "https://example.com", Extension: "png",
			WMTSLayer: "l", WMTSTileMatrixSet: "g",
		}),
		Grids: yamlhelp.Single("g", GridSection{
			SRS:         "EPSG:4326",
			BBox:        [4]float64{-180, -90, 180, 90},
			Resolutions: []float64{0.703125},
		}),
	}
	require.NoError(t, doc.Validate())

	grid, ok := yamlhelp.Get(doc.Grids, "g")
	require.True(t, ok)
	assert.Equal(t, "ul", grid.Origin)
	assert.Equal(t, []int{256, 256}, grid.TileSize)
	assert.Equal(t, 2, grid.ResFactor)
}

func TestConfigGrid(t *testing.T) {
	meta := testLayerMetadata()
	doc, err := Synthesize(meta, "https://example.com/wmts", [4]float64{4.8, 52.3, 5.0, 52.4}, 1, "EPSG:3857")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, Write(doc, path))
	cfg, err := Load(path, SeedMode)
	require.NoError(t, err)

	grid, err := cfg.Grid("lufo_cache")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3857", grid.SRS)
	assert.Len(t, grid.Resolutions, 2)

	_, err = cfg.Grid("nope_cache")
	require.Error(t, err)
}

func TestRestrictCoverage(t *testing.T) {
	cfg := &Config{
		Coverage: &coverage.Coverage{
			Extent: &geom.Extent{0, 0, 10, 10},
			SRS:    "EPSG:4326",
		},
	}
	cfg.RestrictCoverage(coverage.ForGrid(&geom.Extent{5, 5, 20, 20}, "EPSG:3857", "c", 4, false))

	require.False(t, cfg.Coverage.Empty())
	assert.Equal(t, &geom.Extent{5, 5, 10, 10}, cfg.Coverage.Extent)
	assert.Equal(t, 4, cfg.Coverage.MinLevel)
	assert.Equal(t, "c", cfg.Coverage.CacheName)
}
