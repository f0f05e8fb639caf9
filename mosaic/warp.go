package mosaic

import (
	"image"
	"image/color"
	"math"

	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"

	"github.com/pdok/wmts2geotiff/geotiff"
	"github.com/pdok/wmts2geotiff/proj"
)

// WarpedView is an on-the-fly reprojection of one source tile onto the
// output raster's pixel grid. Reading a window samples the source with
// nearest-neighbor lookup through the SRS transform; when source and
// output share an SRS the transform is the identity.
type WarpedView struct {
	src       image.Image
	srcExtent *geom.Extent
	srcSRS    string
	srcResX   float64
	srcResY   float64

	dstSRS     string
	dstOriginX float64 // world X of the output's upper-left corner
	dstOriginY float64 // world Y of the output's upper-left corner
	dstRes     float64

	rect  geotiff.Window // footprint within the output raster
	bands int
}

func NewWarpedView(src image.Image, srcExtent *geom.Extent, srcSRS, dstSRS string,
	dstOriginX, dstOriginY, dstRes float64, bands int) (*WarpedView, error) {

	dstExtent := srcExtent
	if srcSRS != dstSRS {
		ll, err := toWGS84Extent(srcSRS, srcExtent)
		if err != nil {
			return nil, err
		}
		dstExtent, err = proj.ExtentToNative(dstSRS, ll)
		if err != nil {
			return nil, err
		}
	}

	bounds := src.Bounds()
	v := &WarpedView{
		src:        src,
		srcExtent:  srcExtent,
		srcSRS:     srcSRS,
		srcResX:    srcExtent.XSpan() / float64(bounds.Dx()),
		srcResY:    srcExtent.YSpan() / float64(bounds.Dy()),
		dstSRS:     dstSRS,
		dstOriginX: dstOriginX,
		dstOriginY: dstOriginY,
		dstRes:     dstRes,
		bands:      bands,
	}
	v.rect = geotiff.Window{
		X: int(math.Round((dstExtent.MinX() - dstOriginX) / dstRes)),
		Y: int(math.Round((dstOriginY - dstExtent.MaxY()) / dstRes)),
		W: int(math.Round(dstExtent.XSpan() / dstRes)),
		H: int(math.Round(dstExtent.YSpan() / dstRes)),
	}
	return v, nil
}

// Rect is the view's footprint in output pixel coordinates.
func (v *WarpedView) Rect() geotiff.Window {
	return v.rect
}

// BlockWindows enumerates the view's natural block windows: full-width
// strips of at most blockRows rows, in top-down order.
func (v *WarpedView) BlockWindows(blockRows int) []geotiff.Window {
	if blockRows <= 0 {
		blockRows = v.rect.H
	}
	var windows []geotiff.Window
	for y := 0; y < v.rect.H; y += blockRows {
		h := blockRows
		if y+h > v.rect.H {
			h = v.rect.H - y
		}
		windows = append(windows, geotiff.Window{X: v.rect.X, Y: v.rect.Y + y, W: v.rect.W, H: h})
	}
	return windows
}

// ReadWindow samples the reprojected pixels for one window (given in
// output pixel coordinates). empty reports an all-background block, so
// the caller can skip the write.
func (v *WarpedView) ReadWindow(win geotiff.Window) (px []byte, empty bool, err error) {
	px = make([]byte, win.W*win.H*v.bands)
	empty = true
	srcBounds := v.src.Bounds()
	for row := 0; row < win.H; row++ {
		worldY := v.dstOriginY - (float64(win.Y+row)+0.5)*v.dstRes
		for col := 0; col < win.W; col++ {
			worldX := v.dstOriginX + (float64(win.X+col)+0.5)*v.dstRes
			pt, err := proj.Transform(v.dstSRS, v.srcSRS, orb.Point{worldX, worldY})
			if err != nil {
				return nil, false, err
			}
			sx := int(math.Floor((pt.X() - v.srcExtent.MinX()) / v.srcResX))
			sy := int(math.Floor((v.srcExtent.MaxY() - pt.Y()) / v.srcResY))
			if sx < 0 || sy < 0 || sx >= srcBounds.Dx() || sy >= srcBounds.Dy() {
				continue
			}
			off := (row*win.W + col) * v.bands
			if samplePixel(v.src, srcBounds.Min.X+sx, srcBounds.Min.Y+sy, v.bands, px[off:]) {
				empty = false
			}
		}
	}
	return px, empty, nil
}

// samplePixel writes one pixel's bands into out and reports whether
// any sample is non-background.
func samplePixel(img image.Image, x, y, bands int, out []byte) bool {
	c := img.At(x, y)
	switch bands {
	case 1:
		g := color.GrayModel.Convert(c).(color.Gray)
		out[0] = g.Y
		return g.Y != 0
	case 4:
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		out[0], out[1], out[2], out[3] = n.R, n.G, n.B, n.A
		return n.A != 0
	default:
		r, g, b, _ := c.RGBA()
		out[0], out[1], out[2] = uint8(r>>8), uint8(g>>8), uint8(b>>8)
		return out[0] != 0 || out[1] != 0 || out[2] != 0
	}
}

func toWGS84Extent(srs string, e *geom.Extent) (*geom.Extent, error) {
	minPt, err := proj.ToWGS84(srs, orb.Point{e.MinX(), e.MinY()})
	if err != nil {
		return nil, err
	}
	maxPt, err := proj.ToWGS84(srs, orb.Point{e.MaxX(), e.MaxY()})
	if err != nil {
		return nil, err
	}
	return &geom.Extent{minPt.X(), minPt.Y(), maxPt.X(), maxPt.Y()}, nil
}
