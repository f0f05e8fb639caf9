package geotiff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillPattern(n int) []byte {
	px := make([]byte, n)
	for i := range px {
		px[i] = byte(i % 251)
	}
	return px
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter("x.tiff", Profile{Width: 0, Height: 10, Bands: 3}, GeoInfo{})
	require.Error(t, err)
	_, err = NewWriter("x.tiff", Profile{Width: 10, Height: 10, Bands: 2}, GeoInfo{})
	require.Error(t, err)
	w, err := NewWriter("x.tiff", Profile{Width: 10, Height: 10, Bands: 4}, GeoInfo{})
	require.NoError(t, err)
	assert.Equal(t, 4, w.Profile().Bands)
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gtiff")
	profile := Profile{Width: 8, Height: 8, Bands: 3}
	geo := GeoInfo{EPSG: 3857, OriginX: -20037508.34, OriginY: 20037508.34, PixelSizeX: 100, PixelSizeY: 100}

	w, err := NewWriter(path, profile, geo)
	require.NoError(t, err)
	px := fillPattern(8 * 8 * 3)
	require.NoError(t, w.WriteWindow(Window{X: 0, Y: 0, W: 8, H: 8}, px))
	require.NoError(t, w.Close())

	info, data, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, profile, info.Profile)
	assert.Equal(t, 3857, info.Geo.EPSG)
	assert.InDelta(t, geo.OriginX, info.Geo.OriginX, 1e-6)
	assert.InDelta(t, geo.OriginY, info.Geo.OriginY, 1e-6)
	assert.InDelta(t, 100.0, info.Geo.PixelSizeX, 1e-9)
	assert.Equal(t, px, data)
}

func TestWriteReadMultiStrip(t *testing.T) {
	// 100 rows exceeds the strip height, forcing a second strip
	path := filepath.Join(t.TempDir(), "tall.gtiff")
	profile := Profile{Width: 10, Height: 100, Bands: 1}

	w, err := NewWriter(path, profile, GeoInfo{EPSG: 4326, PixelSizeX: 1, PixelSizeY: 1})
	require.NoError(t, err)
	px := fillPattern(10 * 100)
	require.NoError(t, w.WriteWindow(Window{X: 0, Y: 0, W: 10, H: 100}, px))
	require.NoError(t, w.Close())

	info, data, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, profile, info.Profile)
	assert.Equal(t, 4326, info.Geo.EPSG)
	assert.Equal(t, px, data)
}

func TestWriteWindowClipsToRaster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.gtiff")
	w, err := NewWriter(path, Profile{Width: 4, Height: 4, Bands: 1}, GeoInfo{EPSG: 4326, PixelSizeX: 1, PixelSizeY: 1})
	require.NoError(t, err)

	// a 3x3 block hanging off the lower-right corner: only its
	// top-left 2x2 lands inside the raster
	px := []byte{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	require.NoError(t, w.WriteWindow(Window{X: 2, Y: 2, W: 3, H: 3}, px))

	// and one hanging off the top-left
	require.NoError(t, w.WriteWindow(Window{X: -2, Y: -2, W: 3, H: 3}, px))
	require.NoError(t, w.Close())

	_, data, err := Read(path)
	require.NoError(t, err)
	want := []byte{
		9, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 1, 2,
		0, 0, 4, 5,
	}
	assert.Equal(t, want, data)
}

func TestWriteWindowOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlap.gtiff")
	w, err := NewWriter(path, Profile{Width: 4, Height: 1, Bands: 1}, GeoInfo{EPSG: 4326, PixelSizeX: 1, PixelSizeY: 1})
	require.NoError(t, err)

	require.NoError(t, w.WriteWindow(Window{X: 0, Y: 0, W: 3, H: 1}, []byte{1, 1, 1}))
	require.NoError(t, w.WriteWindow(Window{X: 2, Y: 0, W: 2, H: 1}, []byte{7, 7}))
	require.NoError(t, w.Close())

	_, data, err := Read(path)
	require.NoError(t, err)
	// the later window wins where they overlap
	assert.Equal(t, []byte{1, 1, 7, 7}, data)
}

func TestWriteWindowSizeMismatch(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "x.gtiff"), Profile{Width: 4, Height: 4, Bands: 3}, GeoInfo{})
	require.NoError(t, err)
	err = w.WriteWindow(Window{X: 0, Y: 0, W: 2, H: 2}, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestWriterClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.gtiff")
	w, err := NewWriter(path, Profile{Width: 1, Height: 1, Bands: 1}, GeoInfo{EPSG: 4326, PixelSizeX: 1, PixelSizeY: 1})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Error(t, w.WriteWindow(Window{X: 0, Y: 0, W: 1, H: 1}, []byte{1}))
	// closing twice is harmless
	require.NoError(t, w.Close())
}

func TestGeoKeysGeographicVsProjected(t *testing.T) {
	dir := t.TempDir()

	write := func(name string, epsg int) Info {
		path := filepath.Join(dir, name)
		w, err := NewWriter(path, Profile{Width: 1, Height: 1, Bands: 1}, GeoInfo{EPSG: epsg, PixelSizeX: 1, PixelSizeY: 1})
		require.NoError(t, err)
		require.NoError(t, w.WriteWindow(Window{X: 0, Y: 0, W: 1, H: 1}, []byte{1}))
		require.NoError(t, w.Close())
		info, err := ReadInfo(path)
		require.NoError(t, err)
		return info
	}

	assert.Equal(t, 4326, write("geo.gtiff", 4326).Geo.EPSG)
	assert.Equal(t, 3857, write("merc.gtiff", 3857).Geo.EPSG)
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gtiff")
	require.NoError(t, os.WriteFile(path, []byte("PNG not tiff"), 0o644))
	_, _, err := Read(path)
	require.Error(t, err)
}

func TestWindowIntersect(t *testing.T) {
	assert.True(t, Window{X: 0, Y: 0, W: 0, H: 5}.Empty())
	clipped := Window{X: -3, Y: 2, W: 10, H: 10}.Intersect(5, 5)
	assert.Equal(t, Window{X: 0, Y: 2, W: 5, H: 3}, clipped)
	assert.True(t, Window{X: 10, Y: 10, W: 5, H: 5}.Intersect(5, 5).Empty())
}
