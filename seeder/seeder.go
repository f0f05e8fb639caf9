// Package seeder downloads the tiles of a restricted coverage into a
// local disk cache, so a later stage can read them back without
// touching the network.
package seeder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-spatial/geom/slippy"
	"github.com/muesli/reflow/truncate"
	"github.com/sirupsen/logrus"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/pdok/wmts2geotiff/proj"
	"github.com/pdok/wmts2geotiff/seedconf"
	"github.com/pdok/wmts2geotiff/tilegrid"
)

// Directive tells the seeder what to do: which caches to seed and how
// many tile fetches may run at once.
type Directive struct {
	SeedOnly    []string
	Concurrency int
}

type Seeder struct {
	log        *logrus.Logger
	httpClient *http.Client
	cacheRoot  string
}

type Option func(*Seeder)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Seeder) { s.httpClient = c }
}

func WithCacheRoot(root string) Option {
	return func(s *Seeder) { s.cacheRoot = root }
}

func New(log *logrus.Logger, opts ...Option) *Seeder {
	s := &Seeder{
		log:        log,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cacheRoot:  DefaultCacheRoot,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed fetches every missing tile of the configuration's coverage for
// each cache named in the directive. Tiles already on disk are kept.
// Individual tile failures are logged and skipped; the engine's policy
// is to deliver as much of the coverage as the source allows.
func (s *Seeder) Seed(ctx context.Context, cfg *seedconf.Config, d Directive) error {
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if len(d.SeedOnly) == 0 {
		return fmt.Errorf("seed directive names no cache")
	}
	if err := os.MkdirAll(s.cacheRoot, 0o755); err != nil {
		return fmt.Errorf("creating cache root %s: %w", s.cacheRoot, err)
	}
	for _, cacheName := range d.SeedOnly {
		if err := s.seedCache(ctx, cfg, cacheName, d.Concurrency); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedCache(ctx context.Context, cfg *seedconf.Config, cacheName string, concurrency int) error {
	cov := cfg.Coverage
	if cov.Empty() {
		s.log.Infof("coverage for cache %s is empty, nothing to seed", cacheName)
		return nil
	}
	if cov.DryRun {
		s.log.Infof("dry run, not seeding cache %s", cacheName)
		return nil
	}

	grid, err := cfg.Grid(cacheName)
	if err != nil {
		return err
	}
	src, err := cfg.Source(cacheName)
	if err != nil {
		return err
	}

	// coverage extents are kept in WGS84; bring them into grid units
	nativeExtent, err := proj.ExtentToNative(grid.SRS, cov.Extent)
	if err != nil {
		return err
	}

	cacheDir := CacheDir(s.cacheRoot, cacheName, cov.SRS)

	for level := cov.MinLevel; level <= cov.MaxLevel; level++ {
		rng, ok, err := grid.TileRange(level, nativeExtent)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Infof("coverage misses grid extent at level %d, nothing to seed", level)
			continue
		}
		if err := s.seedLevel(ctx, cacheDir, &src, rng, concurrency); err != nil {
			return err
		}
	}
	return nil
}

type tileJob struct {
	tile *slippy.Tile
	path string
}

func (s *Seeder) seedLevel(ctx context.Context, cacheDir string, src *seedconf.SourceSection, rng tilegrid.TileRange, concurrency int) error {
	bar := pb.New64(rng.Count()).Prefix(fmt.Sprintf("zoom %d: ", rng.Level))
	bar.SetRefreshRate(time.Second)
	bar.Start()
	defer bar.Finish()

	var wg sync.WaitGroup
	workers := make(chan struct{}, concurrency)

	var aborted error
	rng.Tiles(func(tile *slippy.Tile) bool {
		if err := ctx.Err(); err != nil {
			aborted = err
			return false
		}
		bar.Increment()

		job := tileJob{tile: tile, path: TilePath(cacheDir, tile, src.Extension)}
		if _, err := os.Stat(job.path); err == nil {
			// already cached
			return true
		}

		workers <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				wg.Done()
				<-workers
			}()
			s.fetchTile(ctx, src, job)
		}()
		return true
	})
	wg.Wait()

	return aborted
}

func (s *Seeder) fetchTile(ctx context.Context, src *seedconf.SourceSection, job tileJob) {
	start := time.Now()
	tileURL := TileURL(src, job.tile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		s.log.Debugf("building request for %s failed: %s", truncateURL(tileURL), err)
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Debugf("fetch %s failed: %s", truncateURL(tileURL), err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.log.Debugf("fetch %s: status %d", truncateURL(tileURL), resp.StatusCode)
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.log.Debugf("read tile %v failed: %s", job.tile, err)
		return
	}
	if len(body) == 0 {
		s.log.Debugf("empty tile body for %v", job.tile)
		return
	}

	if err := os.MkdirAll(filepath.Dir(job.path), 0o755); err != nil {
		s.log.Errorf("creating tile dir for %s: %s", job.path, err)
		return
	}
	if err := os.WriteFile(job.path, body, 0o644); err != nil {
		s.log.Errorf("writing tile %s: %s", job.path, err)
		return
	}

	s.log.Debugf("tile z:%d x:%d y:%d, %dms, %.2f kb, %s",
		job.tile.Z, job.tile.X, job.tile.Y,
		time.Since(start).Milliseconds(), float32(len(body))/1024.0, truncateURL(tileURL))
}

func truncateURL(u string) string {
	return truncate.StringWithTail(u, 96, "…")
}
