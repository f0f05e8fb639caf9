package seedconf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pdok/wmts2geotiff/coverage"
	"github.com/pdok/wmts2geotiff/tilegrid"
	"github.com/pdok/wmts2geotiff/yamlhelp"
)

// Mode selects what the loaded configuration will be used for. Only
// seeding is implemented; there is no render daemon in this tool.
type Mode int

const (
	SeedMode Mode = iota
)

// Config is a loaded and validated configuration document, ready for
// the seeding engine. Its coverage starts out as the source's coverage
// section and is narrowed once by RestrictCoverage.
type Config struct {
	Doc      *Document
	Mode     Mode
	Path     string
	Coverage *coverage.Coverage
}

// Write serializes the document to path, overwriting any existing
// file.
func Write(doc *Document, path string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing configuration to %s: %w", path, err)
	}
	return nil
}

// Load reads a configuration document back from disk and validates it.
func Load(path string, mode Mode) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration from %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing configuration %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	cfg := &Config{
		Doc:  &doc,
		Mode: mode,
		Path: path,
	}
	if _, src, ok := yamlhelp.First(doc.Sources); ok {
		cfg.Coverage = src.sourceCoverage()
	}
	return cfg, nil
}

// Cache resolves a cache section by name.
func (c *Config) Cache(name string) (CacheSection, error) {
	cache, ok := yamlhelp.Get(c.Doc.Caches, name)
	if !ok {
		return CacheSection{}, fmt.Errorf("unknown cache %q", name)
	}
	return cache, nil
}

// Source resolves the (first) source feeding a cache.
func (c *Config) Source(cacheName string) (SourceSection, error) {
	cache, err := c.Cache(cacheName)
	if err != nil {
		return SourceSection{}, err
	}
	src, ok := yamlhelp.Get(c.Doc.Sources, cache.Sources[0])
	if !ok {
		return SourceSection{}, fmt.Errorf("cache %q references unknown source %q", cacheName, cache.Sources[0])
	}
	return src, nil
}

// Grid builds the tile grid for a cache from its (first) grid section.
func (c *Config) Grid(cacheName string) (*tilegrid.Grid, error) {
	cache, err := c.Cache(cacheName)
	if err != nil {
		return nil, err
	}
	gridName := cache.Grids[0]
	section, ok := yamlhelp.Get(c.Doc.Grids, gridName)
	if !ok {
		return nil, fmt.Errorf("cache %q references unknown grid %q", cacheName, gridName)
	}
	return tilegrid.New(
		section.SRS,
		BBoxToExtent(section.BBox),
		section.BBoxSRS,
		section.TileSize[0],
		section.TileSize[1],
		section.Resolutions,
	)
}

// GridName returns the grid key a cache is bound to.
func (c *Config) GridName(cacheName string) (string, error) {
	cache, err := c.Cache(cacheName)
	if err != nil {
		return "", err
	}
	return cache.Grids[0], nil
}

// RestrictCoverage intersects the configuration's current coverage
// with the given one and installs the result as the new seed region.
func (c *Config) RestrictCoverage(cov *coverage.Coverage) {
	c.Coverage = coverage.Intersect(c.Coverage, cov)
}
