// Package coverage models the geometric region that restricts which
// tiles are in scope for seeding.
package coverage

import (
	"fmt"

	"github.com/go-spatial/geom"
)

// Coverage is a bounding box in a given SRS together with the seed
// task it applies to: one cache, one zoom range.
type Coverage struct {
	Extent    *geom.Extent // nil means empty
	SRS       string
	CacheName string
	MinLevel  int
	MaxLevel  int
	DryRun    bool
}

func (c *Coverage) Empty() bool {
	return c == nil || c.Extent == nil
}

func (c *Coverage) String() string {
	if c.Empty() {
		return "coverage(empty)"
	}
	return fmt.Sprintf("coverage(%s %v levels %d-%d)", c.SRS, *c.Extent, c.MinLevel, c.MaxLevel)
}

// ForGrid builds the coverage for a full grid extent at a single
// level: min and max level collapse to the requested one.
func ForGrid(gridExtent *geom.Extent, srs string, cacheName string, level int, dryRun bool) *Coverage {
	return &Coverage{
		Extent:    gridExtent,
		SRS:       srs,
		CacheName: cacheName,
		MinLevel:  level,
		MaxLevel:  level,
		DryRun:    dryRun,
	}
}

// Intersect merges two coverages with set-intersection semantics. The
// task tags (cache name, levels, dry-run) of the restriction win. Both
// extents must be expressed in the same SRS; a disjoint pair yields an
// empty coverage, not an error.
func Intersect(existing, restriction *Coverage) *Coverage {
	if restriction.Empty() {
		return &Coverage{
			SRS:       restriction.SRS,
			CacheName: restriction.CacheName,
			MinLevel:  restriction.MinLevel,
			MaxLevel:  restriction.MaxLevel,
			DryRun:    restriction.DryRun,
		}
	}
	merged := *restriction
	if existing.Empty() {
		return &merged
	}
	clipped, ok := restriction.Extent.Intersect(existing.Extent)
	if !ok {
		merged.Extent = nil
		return &merged
	}
	merged.Extent = clipped
	return &merged
}
