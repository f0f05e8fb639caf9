// Package proj converts points and extents between the two spatial
// reference systems this tool supports: EPSG:4326 (WGS84 lon/lat) and
// EPSG:3857 (Web Mercator).
package proj

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	WGS84       = "EPSG:4326"
	WebMercator = "EPSG:3857"
)

// metersPerDegree at the equator, used to convert scale denominators
// for geographic reference systems.
const metersPerDegree = 111319.49079327358

func Supported(srs string) bool {
	switch normalize(srs) {
	case WGS84, WebMercator:
		return true
	}
	return false
}

// EPSGCode parses an "EPSG:<code>" identifier.
func EPSGCode(srs string) (int, error) {
	parts := strings.SplitN(normalize(srs), ":", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "EPSG") {
		return 0, fmt.Errorf("not an EPSG identifier: %q", srs)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid EPSG code in %q: %w", srs, err)
	}
	return code, nil
}

// MetersPerUnit returns the ground size of one CRS unit at the equator.
func MetersPerUnit(srs string) float64 {
	if IsGeographic(srs) {
		return metersPerDegree
	}
	return 1
}

func IsGeographic(srs string) bool {
	return normalize(srs) == WGS84
}

// ToNative projects a WGS84 point into the given SRS.
func ToNative(srs string, pt orb.Point) (orb.Point, error) {
	switch normalize(srs) {
	case WGS84:
		return pt, nil
	case WebMercator:
		return project.WGS84.ToMercator(pt), nil
	}
	return orb.Point{}, fmt.Errorf("unsupported SRS %q", srs)
}

// ToWGS84 unprojects a point in the given SRS back to WGS84.
func ToWGS84(srs string, pt orb.Point) (orb.Point, error) {
	switch normalize(srs) {
	case WGS84:
		return pt, nil
	case WebMercator:
		return project.Mercator.ToWGS84(pt), nil
	}
	return orb.Point{}, fmt.Errorf("unsupported SRS %q", srs)
}

// Transform converts a point from one supported SRS to another.
func Transform(fromSRS, toSRS string, pt orb.Point) (orb.Point, error) {
	if normalize(fromSRS) == normalize(toSRS) {
		return pt, nil
	}
	ll, err := ToWGS84(fromSRS, pt)
	if err != nil {
		return orb.Point{}, err
	}
	return ToNative(toSRS, ll)
}

// ExtentToNative projects a WGS84 extent into the given SRS.
// Sufficient for the axis-aligned transforms between 4326 and 3857.
func ExtentToNative(srs string, e *geom.Extent) (*geom.Extent, error) {
	minPt, err := ToNative(srs, orb.Point{e.MinX(), clampLat(srs, e.MinY())})
	if err != nil {
		return nil, err
	}
	maxPt, err := ToNative(srs, orb.Point{e.MaxX(), clampLat(srs, e.MaxY())})
	if err != nil {
		return nil, err
	}
	return &geom.Extent{minPt.X(), minPt.Y(), maxPt.X(), maxPt.Y()}, nil
}

// clampLat keeps latitudes inside the Web Mercator validity range so
// global WGS84 extents project to a finite extent.
func clampLat(srs string, lat float64) float64 {
	if normalize(srs) != WebMercator {
		return lat
	}
	const maxLat = 85.05112877980659
	if lat > maxLat {
		return maxLat
	}
	if lat < -maxLat {
		return -maxLat
	}
	return lat
}

func normalize(srs string) string {
	return strings.ToUpper(strings.TrimSpace(srs))
}
