package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/pdok/wmts2geotiff/coverage"
	"github.com/pdok/wmts2geotiff/mosaic"
	"github.com/pdok/wmts2geotiff/seedconf"
	"github.com/pdok/wmts2geotiff/seeder"
	"github.com/pdok/wmts2geotiff/wmts"
)

const WMTSURL string = `wmts-url`
const LAYERNAME string = `layer-name`
const ZOOMLEVEL string = `zoom-level`
const BBOX string = `bbox`
const MAPPROXYCONFIG string = `mapproxy-config`
const OUTPUT string = `output`
const SRS string = `srs`
const LOGLEVEL string = `log-level`

func main() {
	app := cli.NewApp()
	app.Name = "wmts2geotiff"
	app.Usage = "Mosaic a bounding box of a WMTS layer at one zoom level into a single GeoTIFF"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     WMTSURL,
			Aliases:  []string{"u"},
			Usage:    "The WMTS URL from which the layer definition will be fetched",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(WMTSURL)},
		},
		&cli.StringFlag{
			Name:     LAYERNAME,
			Aliases:  []string{"l"},
			Usage:    "The layer name for which the configuration should be generated",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(LAYERNAME)},
		},
		&cli.IntFlag{
			Name:     ZOOMLEVEL,
			Aliases:  []string{"z"},
			Usage:    "The zoom level of the layer to be turned into a single GeoTIFF",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(ZOOMLEVEL)},
		},
		&cli.Float64SliceFlag{
			Name:     BBOX,
			Aliases:  []string{"b"},
			Usage:    "The bounding box for the GeoTIFF in WGS84 coordinates: minx,miny,maxx,maxy",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(BBOX)},
		},
		&cli.StringFlag{
			Name:    MAPPROXYCONFIG,
			Aliases: []string{"c"},
			Usage:   "Generated seed configuration file name",
			Value:   "mapproxy_config.yaml",
			EnvVars: []string{strcase.ToScreamingSnake(MAPPROXYCONFIG)},
		},
		&cli.StringFlag{
			Name:    OUTPUT,
			Aliases: []string{"o"},
			Usage:   "The name of the resulting GeoTIFF file",
			Value:   "output.gtiff",
			EnvVars: []string{strcase.ToScreamingSnake(OUTPUT)},
		},
		&cli.StringFlag{
			Name:    SRS,
			Aliases: []string{"s"},
			Usage:   "The SRS definition for the output GeoTIFF (EPSG:3857 or EPSG:4326)",
			Value:   "EPSG:3857",
			EnvVars: []string{strcase.ToScreamingSnake(SRS)},
		},
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Hidden:  true,
			EnvVars: []string{strcase.ToScreamingSnake(LOGLEVEL)},
		},
	}

	var log *logrus.Logger
	app.Action = func(c *cli.Context) error {
		log = initLogging(c.String(LOGLEVEL))
		return run(c, log)
	}

	if err := app.Run(os.Args); err != nil {
		if log == nil {
			log = initLogging("info")
		}
		// the two "not found" cases get their own message, anything
		// else is reported as a generic pipeline failure
		var layerNotFound *wmts.LayerNotFoundError
		var noData *mosaic.NoDataError
		switch {
		case errors.As(err, &layerNotFound):
			log.Error(layerNotFound.Error())
		case errors.As(err, &noData):
			log.Error(noData.Error())
		default:
			log.Errorf("error during process: %s", err)
		}
		os.Exit(1)
	}
}

func run(c *cli.Context, log *logrus.Logger) error {
	ctx := context.Background()

	bboxValues := c.Float64Slice(BBOX)
	if len(bboxValues) != 4 {
		return fmt.Errorf("bbox needs exactly 4 values (minx,miny,maxx,maxy), got %d", len(bboxValues))
	}
	var userBBox [4]float64
	copy(userBBox[:], bboxValues)

	wmtsURL := c.String(WMTSURL)
	layerName := c.String(LAYERNAME)
	zoomLevel := c.Int(ZOOMLEVEL)
	srs := c.String(SRS)
	configPath := c.String(MAPPROXYCONFIG)
	outputPath := c.String(OUTPUT)

	// 1. fetch the layer's metadata from the service
	client := wmts.NewClient()
	caps, err := client.GetCapabilities(ctx, wmtsURL)
	if err != nil {
		return err
	}
	meta, err := caps.LayerMetadata(layerName)
	if err != nil {
		return err
	}
	log.Infof("layer %s uses tile matrix set %s (%d levels)", layerName, meta.TileMatrixSetID, len(meta.Resolutions))

	// 2. synthesize the seed configuration and write it to disk
	doc, err := seedconf.Synthesize(meta, wmtsURL, userBBox, zoomLevel, srs)
	if err != nil {
		return err
	}
	if err := seedconf.Write(doc, configPath); err != nil {
		return err
	}

	// 3. reload and validate it in seed mode
	cfg, err := seedconf.Load(configPath, seedconf.SeedMode)
	if err != nil {
		return err
	}

	// 4. restrict the seed coverage to the grid extent at the target
	// zoom; the intersection with the user bbox comes from the
	// source's own coverage section
	cacheName := layerName + "_cache"
	cfg.RestrictCoverage(coverage.ForGrid(meta.WGS84BBox, srs, cacheName, zoomLevel, false))

	// 5. seed the coverage to the local cache, one fetch at a time
	sdr := seeder.New(log)
	err = sdr.Seed(ctx, cfg, seeder.Directive{
		SeedOnly:    []string{cacheName},
		Concurrency: 1,
	})
	if err != nil {
		return err
	}

	// 6. mosaic the cached tiles into the output raster
	grid, err := cfg.Grid(cacheName)
	if err != nil {
		return err
	}
	err = mosaic.Build(mosaic.Options{
		CacheDir:   seeder.CacheDir(seeder.DefaultCacheRoot, cacheName, srs),
		LayerName:  layerName,
		ZoomLevel:  zoomLevel,
		Extension:  meta.FormatExtension,
		Grid:       grid,
		SRS:        srs,
		OutputPath: outputPath,
		Log:        log,
	})
	if err != nil {
		return err
	}

	log.Infof("GeoTIFF generated successfully. Output: %s", outputPath)
	return nil
}
