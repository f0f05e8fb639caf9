// Package geotiff reads and writes uncompressed 8-bit GeoTIFF rasters
// at the TIFF tag level: strip-based layout plus the ModelPixelScale,
// ModelTiepoint and GeoKeyDirectory tags that carry the
// georeferencing.
package geotiff

// TIFF tags used by this package.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagExtraSamples    = 338
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
)

// TIFF field types.
const (
	ftShort  = 3
	ftLong   = 4
	ftDouble = 12
)

// GeoTIFF geokey IDs.
const (
	gkModelType      = 1024
	gkRasterType     = 1025
	gkGeographicType = 2048
	gkProjectedCS    = 3072
)

const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterTypePixelIsArea = 1
)

// Profile is the raster shape: 8 bits per sample, interleaved bands.
type Profile struct {
	Width  int
	Height int
	Bands  int
}

// GeoInfo georeferences the raster: the world coordinate of the
// upper-left pixel corner and the pixel size in CRS units.
type GeoInfo struct {
	EPSG       int
	OriginX    float64
	OriginY    float64
	PixelSizeX float64
	PixelSizeY float64
}

// Window is a pixel region within a raster.
type Window struct {
	X, Y, W, H int
}

func (w Window) Empty() bool {
	return w.W <= 0 || w.H <= 0
}

// Intersect clips the window against a raster of the given size.
func (w Window) Intersect(width, height int) Window {
	minX, minY := w.X, w.Y
	maxX, maxY := w.X+w.W, w.Y+w.H
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX > width {
		maxX = width
	}
	if maxY > height {
		maxY = height
	}
	return Window{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// geographicEPSG reports whether an EPSG code denotes a geographic
// (lon/lat) system. Only the codes this tool emits matter here.
func geographicEPSG(epsg int) bool {
	return epsg == 4326
}
