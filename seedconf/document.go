// Package seedconf synthesizes, serializes and validates the seed
// configuration document that drives the tile seeding engine. The
// document has the five classic sections of a tile proxy config:
// services, layers, caches, sources and grids.
package seedconf

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/wmts2geotiff/coverage"
	"github.com/pdok/wmts2geotiff/proj"
	"github.com/pdok/wmts2geotiff/wmts"
	"github.com/pdok/wmts2geotiff/yamlhelp"

	"github.com/go-spatial/geom"
)

type Document struct {
	Services ServicesSection                               `yaml:"services"`
	Layers   []LayerSection                                `yaml:"layers" validate:"min=1,dive"`
	Caches   *orderedmap.OrderedMap[string, CacheSection]  `yaml:"caches"`
	Sources  *orderedmap.OrderedMap[string, SourceSection] `yaml:"sources"`
	Grids    *orderedmap.OrderedMap[string, GridSection]   `yaml:"grids"`
}

type ServicesSection struct {
	WMTS WMTSService `yaml:"wmts"`
}

type WMTSService struct {
	MD ServiceMetadata `yaml:"md"`
}

type ServiceMetadata struct {
	Title string `yaml:"title"`
}

type LayerSection struct {
	Name    string   `yaml:"name" validate:"required"`
	Title   string   `yaml:"title"`
	Sources []string `yaml:"sources" validate:"min=1"`
}

type CacheSection struct {
	Grids   []string `yaml:"grids" validate:"min=1"`
	Sources []string `yaml:"sources" validate:"min=1"`
}

type SourceSection struct {
	Type              string           `yaml:"type" validate:"required,oneof=tile wms"`
	Grid              string           `yaml:"grid" validate:"required"`
	URL               string           `yaml:"url" validate:"required"`
	Extension         string           `yaml:"extension" validate:"required"`
	WMTSLayer         string           `yaml:"wmts_layer" validate:"required"`
	WMTSTileMatrixSet string           `yaml:"wmts_tile_matrix_set" validate:"required"`
	Coverage          *CoverageSection `yaml:"coverage,omitempty"`
}

type CoverageSection struct {
	BBox [4]float64 `yaml:"bbox"`
	SRS  string     `yaml:"srs" validate:"required"`
}

type GridSection struct {
	SRS         string     `yaml:"srs" validate:"required"`
	Origin      string     `yaml:"origin" default:"ul" validate:"oneof=ul ll"`
	BBox        [4]float64 `yaml:"bbox"`
	BBoxSRS     string     `yaml:"bbox_srs,omitempty"`
	TileSize    []int      `yaml:"tile_size" default:"[256,256]" validate:"len=2"`
	ResFactor   int        `yaml:"res_factor" default:"2"`
	Resolutions []float64  `yaml:"resolutions" validate:"min=1"`
}

// Synthesize renders the configuration document for one WMTS layer,
// restricted to the user bounding box and truncated to the resolutions
// up to and including the requested zoom level. Finer levels are never
// requested by the seed task, so they would be dead metadata.
func Synthesize(meta *wmts.LayerMetadata, wmtsURL string, userBBox [4]float64, zoomLevel int, srs string) (*Document, error) {
	if zoomLevel < 0 || zoomLevel >= len(meta.Resolutions) {
		return nil, fmt.Errorf("zoom level %d outside tile matrix set %q (levels 0-%d)",
			zoomLevel, meta.TileMatrixSetID, len(meta.Resolutions)-1)
	}
	if !proj.Supported(srs) {
		return nil, fmt.Errorf("unsupported SRS %q", srs)
	}

	cacheName := meta.LayerName + "_cache"
	sourceName := meta.LayerName + "_source"
	gridName := meta.TileMatrixSetID

	doc := &Document{
		Services: ServicesSection{WMTS: WMTSService{MD: ServiceMetadata{Title: "WMTS Layer Proxy"}}},
		Layers: []LayerSection{{
			Name:    meta.LayerName,
			Title:   meta.Title,
			Sources: []string{cacheName},
		}},
		Caches: yamlhelp.Single(cacheName, CacheSection{
			Grids:   []string{gridName},
			Sources: []string{sourceName},
		}),
		Sources: yamlhelp.Single(sourceName, SourceSection{
			Type:              "tile",
			Grid:              gridName,
			URL:               wmtsURL,
			Extension:         meta.FormatExtension,
			WMTSLayer:         meta.LayerName,
			WMTSTileMatrixSet: gridName,
			Coverage: &CoverageSection{
				BBox: userBBox,
				SRS:  proj.WGS84,
			},
		}),
		Grids: yamlhelp.Single(gridName, GridSection{
			SRS:         srs,
			Origin:      "ul",
			BBox:        extentToBBox(meta.WGS84BBox),
			BBoxSRS:     proj.WGS84,
			TileSize:    []int{256, 256},
			ResFactor:   2,
			Resolutions: meta.Resolutions[:zoomLevel+1],
		}),
	}
	return doc, nil
}

// Validate applies defaults to zero fields and checks the document and
// its cross-references (layer→cache, cache→grid/source).
func (doc *Document) Validate() error {
	if err := defaults.Set(doc); err != nil {
		return err
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("invalid configuration document: %w", err)
	}
	// ordered maps are opaque to defaults.Set and the struct
	// validator, walk the sections by hand
	for _, key := range yamlhelp.Keys(doc.Caches) {
		cache, _ := yamlhelp.Get(doc.Caches, key)
		if err := validate.Struct(cache); err != nil {
			return fmt.Errorf("invalid cache %q: %w", key, err)
		}
	}
	for _, key := range yamlhelp.Keys(doc.Sources) {
		src, _ := yamlhelp.Get(doc.Sources, key)
		if err := defaults.Set(&src); err != nil {
			return err
		}
		if err := validate.Struct(src); err != nil {
			return fmt.Errorf("invalid source %q: %w", key, err)
		}
		doc.Sources.Set(key, src)
	}
	for _, key := range yamlhelp.Keys(doc.Grids) {
		grid, _ := yamlhelp.Get(doc.Grids, key)
		if err := defaults.Set(&grid); err != nil {
			return err
		}
		if err := validate.Struct(grid); err != nil {
			return fmt.Errorf("invalid grid %q: %w", key, err)
		}
		doc.Grids.Set(key, grid)
	}
	return doc.checkReferences()
}

func (doc *Document) checkReferences() error {
	for _, layer := range doc.Layers {
		for _, cacheName := range layer.Sources {
			if _, ok := yamlhelp.Get(doc.Caches, cacheName); !ok {
				return fmt.Errorf("layer %q references unknown cache %q", layer.Name, cacheName)
			}
		}
	}
	for _, cacheName := range yamlhelp.Keys(doc.Caches) {
		cache, _ := yamlhelp.Get(doc.Caches, cacheName)
		for _, gridName := range cache.Grids {
			if _, ok := yamlhelp.Get(doc.Grids, gridName); !ok {
				return fmt.Errorf("cache %q references unknown grid %q", cacheName, gridName)
			}
		}
		for _, sourceName := range cache.Sources {
			if _, ok := yamlhelp.Get(doc.Sources, sourceName); !ok {
				return fmt.Errorf("cache %q references unknown source %q", cacheName, sourceName)
			}
		}
	}
	return nil
}

func extentToBBox(e *geom.Extent) [4]float64 {
	return [4]float64{e.MinX(), e.MinY(), e.MaxX(), e.MaxY()}
}

// BBoxToExtent is the inverse of the bbox serialization.
func BBoxToExtent(bbox [4]float64) *geom.Extent {
	return &geom.Extent{bbox[0], bbox[1], bbox[2], bbox[3]}
}

// sourceCoverage lifts the source's coverage section into the
// geometric form used by the seeder.
func (s *SourceSection) sourceCoverage() *coverage.Coverage {
	if s.Coverage == nil {
		return nil
	}
	return &coverage.Coverage{
		Extent: BBoxToExtent(s.Coverage.BBox),
		SRS:    s.Coverage.SRS,
	}
}
