package seeder

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/wmts2geotiff/seedconf"
)

// TileURL builds the fetch URL for one tile. URLs carrying {x}/{y}/{z}
// or {TileCol}/{TileRow}/{TileMatrix} placeholders are treated as
// templates; anything else gets a WMTS GetTile KVP request appended.
func TileURL(src *seedconf.SourceSection, tile *slippy.Tile) string {
	u := src.URL
	if strings.Contains(u, "{") {
		r := strings.NewReplacer(
			"{x}", strconv.Itoa(int(tile.X)),
			"{y}", strconv.Itoa(int(tile.Y)),
			"{z}", strconv.Itoa(int(tile.Z)),
			"{TileCol}", strconv.Itoa(int(tile.X)),
			"{TileRow}", strconv.Itoa(int(tile.Y)),
			"{TileMatrix}", strconv.Itoa(int(tile.Z)),
			"{Layer}", src.WMTSLayer,
			"{TileMatrixSet}", src.WMTSTileMatrixSet,
		)
		return r.Replace(u)
	}

	q := url.Values{}
	q.Set("SERVICE", "WMTS")
	q.Set("REQUEST", "GetTile")
	q.Set("VERSION", "1.0.0")
	q.Set("LAYER", src.WMTSLayer)
	q.Set("STYLE", "default")
	q.Set("TILEMATRIXSET", src.WMTSTileMatrixSet)
	q.Set("TILEMATRIX", strconv.Itoa(int(tile.Z)))
	q.Set("TILEROW", strconv.Itoa(int(tile.Y)))
	q.Set("TILECOL", strconv.Itoa(int(tile.X)))
	q.Set("FORMAT", formatForExtension(src.Extension))

	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s", u, sep, q.Encode())
}

func formatForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "image/" + ext
	}
}
