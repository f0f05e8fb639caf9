// Package mosaic assembles the cached tiles of one zoom level into a
// single GeoTIFF raster.
package mosaic

import (
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	// tile decoders for the formats a WMTS source serves
	_ "image/jpeg"
	_ "image/png"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/pdok/wmts2geotiff/geotiff"
	"github.com/pdok/wmts2geotiff/proj"
	"github.com/pdok/wmts2geotiff/seeder"
	"github.com/pdok/wmts2geotiff/tilegrid"
)

// NoDataError means the seeding stage produced no cache directory for
// the layer and zoom level.
type NoDataError struct {
	Layer string
	Zoom  int
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data found for layer %s at zoom level %d", e.Layer, e.Zoom)
}

type Options struct {
	CacheDir   string // the cache's directory, without the zoom level
	LayerName  string
	ZoomLevel  int
	Extension  string
	Grid       *tilegrid.Grid
	SRS        string // output SRS
	OutputPath string
	Log        *logrus.Logger

	// BlockRows sets the strip height used when copying windows;
	// 0 selects the default.
	BlockRows int
}

const defaultBlockRows = 64

type tileFile struct {
	path string
	tile *slippy.Tile
}

// Build mosaics every cached tile under the cache directory for the
// zoom level into one GeoTIFF. Tiles are processed in sorted path
// order; where warped tiles overlap, the last-processed tile wins.
func Build(opts Options) error {
	if opts.BlockRows <= 0 {
		opts.BlockRows = defaultBlockRows
	}
	levelDir := seeder.LevelDir(opts.CacheDir, opts.ZoomLevel)
	if fi, err := os.Stat(levelDir); err != nil || !fi.IsDir() {
		return &NoDataError{Layer: opts.LayerName, Zoom: opts.ZoomLevel}
	}

	files, err := collectTiles(levelDir, opts.ZoomLevel, opts.Extension)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return &NoDataError{Layer: opts.LayerName, Zoom: opts.ZoomLevel}
	}
	opts.Log.Infof("mosaicking %d tiles from %s", len(files), levelDir)

	res, err := opts.Grid.Res(opts.ZoomLevel)
	if err != nil {
		return err
	}

	// the first tile is the template for band count and block layout
	template, err := decodeTile(files[0].path)
	if err != nil {
		return err
	}
	bands := bandCount(template)

	canvas, err := canvasExtent(opts.Grid, files)
	if err != nil {
		return err
	}
	width := roundToPixels(canvas.XSpan(), res)
	height := roundToPixels(canvas.YSpan(), res)

	epsg, err := proj.EPSGCode(opts.SRS)
	if err != nil {
		return err
	}
	writer, err := geotiff.NewWriter(opts.OutputPath, geotiff.Profile{
		Width:  width,
		Height: height,
		Bands:  bands,
	}, geotiff.GeoInfo{
		EPSG:       epsg,
		OriginX:    canvas.MinX(),
		OriginY:    canvas.MaxY(),
		PixelSizeX: res,
		PixelSizeY: res,
	})
	if err != nil {
		return err
	}

	for i, tf := range files {
		img := template
		if i > 0 {
			if img, err = decodeTile(tf.path); err != nil {
				return err
			}
		}
		srcExtent, err := opts.Grid.TileExtent(tf.tile)
		if err != nil {
			return err
		}
		view, err := NewWarpedView(img, srcExtent, opts.Grid.SRS, opts.SRS,
			canvas.MinX(), canvas.MaxY(), res, bands)
		if err != nil {
			return err
		}
		for _, win := range view.BlockWindows(opts.BlockRows) {
			px, empty, err := view.ReadWindow(win)
			if err != nil {
				return err
			}
			if empty {
				continue
			}
			if err := writer.WriteWindow(win, px); err != nil {
				return err
			}
		}
	}

	return writer.Close()
}

// collectTiles walks the level directory and returns every tile file
// with the expected extension, sorted by path so the overwrite order
// on overlaps is deterministic.
func collectTiles(levelDir string, zoom int, extension string) ([]tileFile, error) {
	suffix := "." + extension
	var files []tileFile
	err := filepath.WalkDir(levelDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		tile, err := parseTilePath(levelDir, path, zoom)
		if err != nil {
			return err
		}
		files = append(files, tileFile{path: path, tile: tile})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking cache dir %s: %w", levelDir, err)
	}
	slices.SortFunc(files, func(a, b tileFile) int { return strings.Compare(a.path, b.path) })
	return files, nil
}

// parseTilePath recovers the tile indices from the <x>/<y>.<ext>
// layout below the level directory.
func parseTilePath(levelDir, path string, zoom int) (*slippy.Tile, error) {
	rel, err := filepath.Rel(levelDir, path)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("unexpected tile path layout: %s", rel)
	}
	x, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("tile column in %s: %w", rel, err)
	}
	base := strings.TrimSuffix(parts[1], filepath.Ext(parts[1]))
	y, err := strconv.ParseUint(base, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("tile row in %s: %w", rel, err)
	}
	return slippy.NewTile(uint(zoom), uint(x), uint(y)), nil
}

func decodeTile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tile %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding tile %s: %w", path, err)
	}
	return img, nil
}

func bandCount(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64, *image.Paletted:
		return 4
	default:
		return 3
	}
}

// canvasExtent is the union of the tiles' native extents.
func canvasExtent(grid *tilegrid.Grid, files []tileFile) (*geom.Extent, error) {
	var union *geom.Extent
	for _, tf := range files {
		ext, err := grid.TileExtent(tf.tile)
		if err != nil {
			return nil, err
		}
		if union == nil {
			union = ext
		} else {
			union.Add(ext)
		}
	}
	return union, nil
}

func roundToPixels(span, res float64) int {
	px := int(span/res + 0.5)
	if px < 1 {
		px = 1
	}
	return px
}
